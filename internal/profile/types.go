package profile

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColumnType is the inferred kind of a column.
type ColumnType uint8

const (
	TypeUnknown ColumnType = iota
	TypeNumeric
	TypeCategorical
	TypeDateTime
	TypeBoolean
)

var typeNames = [...]string{
	TypeUnknown:     "unknown",
	TypeNumeric:     "numeric",
	TypeCategorical: "categorical",
	TypeDateTime:    "datetime",
	TypeBoolean:     "boolean",
}

func (t ColumnType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

func (t ColumnType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ColumnType) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range typeNames {
		if n == s {
			*t = ColumnType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown column type %q", string(b))
}

// Percent is a percentage rounded to one decimal. It serializes as a string
// such as "20.0".
type Percent float64

// PercentOf returns part/whole*100 rounded to one decimal, or 0 when whole is 0.
func PercentOf(part, whole int) Percent {
	if whole <= 0 {
		return 0
	}
	return Percent(round1(float64(part) * 100 / float64(whole)))
}

func (p Percent) String() string { return strconv.FormatFloat(float64(p), 'f', 1, 64) }

func (p Percent) MarshalJSON() ([]byte, error) { return []byte(strconv.Quote(p.String())), nil }

func (p *Percent) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse percent %q: %w", s, err)
	}
	*p = Percent(round1(f))
	return nil
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
