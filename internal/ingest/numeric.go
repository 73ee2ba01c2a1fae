package ingest

import (
	"math"
	"strconv"
	"strings"
)

// parseLocaleNumber reads numbers written with configured decimal and
// thousands separators, e.g. "1.234,5" with DecimalSeparator=','.
func parseLocaleNumber(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if raw == "" {
		return 0, false
	}
	dec := opt.DecimalSeparator
	if dec == 0 {
		dec = '.'
	}
	thou := opt.ThousandsSeparator
	if thou == 0 {
		// any common separator other than the decimal one groups thousands
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		if strings.Contains(raw, ".") {
			return 0, false
		}
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	if strings.ContainsAny(raw, "xXpP_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseSeparator maps CLI spellings to a separator rune.
func ParseSeparator(s string) (rune, bool) {
	switch s {
	case " ":
		return ' ', true
	case "\t":
		return '\t', true
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, true
	case ",", "comma":
		return ',', true
	case ".", "dot":
		return '.', true
	case "space":
		return ' ', true
	case ";", "semicolon":
		return ';', true
	case "tab", `\t`:
		return '\t', true
	}
	return 0, false
}
