package profile

import (
	"strings"
	"time"
)

// dateLayouts is the fixed allow-list used for DateTime detection.
var dateLayouts = []string{
	time.RFC3339, time.RFC3339Nano,
	"2006-01-02", "2006/01/02",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02T15:04:05",
	"1/2/2006", "1/2/2006 15:04", "1/2/2006 15:04:05",
	"2 Jan 2006", "Jan 2, 2006",
}

var boolTokens = map[string]struct{}{
	"true": {}, "false": {}, "1": {}, "0": {}, "yes": {}, "no": {},
}

// Infer classifies a column. Checks run in fixed order (numeric, datetime,
// boolean) and a single non-conforming value falls through to the next one.
func Infer(values []Value) ColumnType {
	nonMissing := 0
	numeric, date, boolean := true, true, true
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		nonMissing++
		if v.Kind != KindNumber {
			numeric = false
		}
		if date && !isDate(v.Raw) {
			date = false
		}
		if boolean && !isBool(v.Raw) {
			boolean = false
		}
		if !numeric && !date && !boolean {
			break
		}
	}
	switch {
	case nonMissing == 0:
		return TypeUnknown
	case numeric:
		return TypeNumeric
	case date:
		return TypeDateTime
	case boolean:
		return TypeBoolean
	default:
		return TypeCategorical
	}
}

func isDate(s string) bool {
	_, ok := ParseDate(s)
	return ok
}

// ParseDate tries each allowed layout against the trimmed input.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isBool(s string) bool {
	_, ok := boolTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}
