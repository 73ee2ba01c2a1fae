package profile

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind tags a Value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNumber
	KindText
)

// Value is a single cell after ingestion. Raw keeps the original text so
// non-numeric consumers (dates, booleans, categories) never need the source row.
type Value struct {
	Kind Kind
	Num  float64
	Raw  string
}

// Missing returns the missing marker.
func Missing() Value { return Value{Kind: KindMissing} }

// Number wraps a finite float. raw may be empty, in which case a canonical
// text form is used.
func Number(f float64, raw string) Value {
	if raw == "" {
		raw = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return Value{Kind: KindNumber, Num: f, Raw: raw}
}

// Text wraps a non-numeric string.
func Text(s string) Value { return Value{Kind: KindText, Raw: s} }

// IsMissing reports whether v is the missing marker.
func (v Value) IsMissing() bool { return v.Kind == KindMissing }

// ParseValue classifies a raw cell. Only the empty string is missing;
// whitespace-only text stays Text.
func ParseValue(raw string) Value {
	if raw == "" {
		return Missing()
	}
	if f, ok := parseFinite(strings.TrimSpace(raw)); ok {
		return Number(f, raw)
	}
	return Text(raw)
}

// FromAny converts a decoded JSON or spreadsheet scalar.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Missing()
	case Value:
		return x
	case string:
		return ParseValue(x)
	case json.Number:
		return ParseValue(x.String())
	case bool:
		if x {
			return Text("true")
		}
		return Text("false")
	case float64:
		return finiteOrText(x)
	case float32:
		return finiteOrText(float64(x))
	case int:
		return Number(float64(x), "")
	case int8:
		return Number(float64(x), "")
	case int16:
		return Number(float64(x), "")
	case int32:
		return Number(float64(x), "")
	case int64:
		return Number(float64(x), "")
	case uint:
		return Number(float64(x), "")
	case uint8:
		return Number(float64(x), "")
	case uint16:
		return Number(float64(x), "")
	case uint32:
		return Number(float64(x), "")
	case uint64:
		return Number(float64(x), "")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return Missing()
		}
		return Text(string(b))
	}
}

func finiteOrText(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Text(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return Number(f, "")
}

// parseFinite accepts plain decimal and exponent notation only.
func parseFinite(s string) (float64, bool) {
	if s == "" || strings.ContainsAny(s, "xXpP_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
