package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/KaramelBytes/datasage-cli/internal/profile"
)

// ColumnStatistics is the backend's per-column statistics payload. Numeric
// fields are nil for non-numeric columns.
type ColumnStatistics struct {
	Column               string   `json:"column,omitempty" yaml:"column,omitempty"`
	Type                 string   `json:"type,omitempty" yaml:"type,omitempty"`
	Mean                 *float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Median               *float64 `json:"median,omitempty" yaml:"median,omitempty"`
	StdDev               *float64 `json:"std_dev,omitempty" yaml:"std_dev,omitempty"`
	Min                  *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max                  *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	MissingValuesPercent float64  `json:"missing_values_percent" yaml:"missing_values_percent"`
	Count                int      `json:"count" yaml:"count"`
	UniqueCount          int      `json:"unique_count" yaml:"unique_count"`
	MostCommon           string   `json:"most_common,omitempty" yaml:"most_common,omitempty"`
}

// UnmarshalJSON accepts the statistics either at the top level or inside a
// "statistics" envelope, and tolerates numbers encoded as strings.
func (s *ColumnStatistics) UnmarshalJSON(b []byte) error {
	var env struct {
		Column     string          `json:"column"`
		Statistics json.RawMessage `json:"statistics"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("decode statistics: %w", err)
	}
	body := b
	if len(env.Statistics) > 0 && !bytes.Equal(env.Statistics, []byte("null")) {
		body = env.Statistics
	}
	var raw struct {
		Column               string      `json:"column"`
		Type                 string      `json:"type"`
		Mean                 *flexNumber `json:"mean"`
		Median               *flexNumber `json:"median"`
		StdDev               *flexNumber `json:"std_dev"`
		Std                  *flexNumber `json:"std"`
		Min                  *flexNumber `json:"min"`
		Max                  *flexNumber `json:"max"`
		MissingValuesPercent flexNumber  `json:"missing_values_percent"`
		Count                flexNumber  `json:"count"`
		UniqueCount          flexNumber  `json:"unique_count"`
		MostCommon           *flexLabel  `json:"most_common"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("decode statistics: %w", err)
	}
	out := ColumnStatistics{
		Column:               raw.Column,
		Type:                 raw.Type,
		Mean:                 raw.Mean.ptr(),
		Median:               raw.Median.ptr(),
		StdDev:               raw.StdDev.ptr(),
		Min:                  raw.Min.ptr(),
		Max:                  raw.Max.ptr(),
		MissingValuesPercent: float64(raw.MissingValuesPercent),
		Count:                raw.Count.toInt(),
		UniqueCount:          raw.UniqueCount.toInt(),
	}
	if out.StdDev == nil {
		out.StdDev = raw.Std.ptr()
	}
	if out.Column == "" {
		out.Column = env.Column
	}
	if raw.MostCommon != nil {
		out.MostCommon = string(*raw.MostCommon)
	}
	*s = out
	return nil
}

// DistributionBin is one labelled bucket of a distribution.
type DistributionBin struct {
	Label string `json:"bin_label" yaml:"bin_label"`
	Count int    `json:"count" yaml:"count"`
}

// Distribution is the backend's histogram payload.
type Distribution struct {
	Column string            `json:"column,omitempty" yaml:"column,omitempty"`
	Bins   []DistributionBin `json:"distribution" yaml:"distribution"`
}

// Total sums the bucket counts.
func (d Distribution) Total() int {
	n := 0
	for _, b := range d.Bins {
		n += b.Count
	}
	return n
}

// UnmarshalJSON accepts {distribution:[{bin_label|bin, count|frequency}]} or
// parallel {bins, counts} arrays. When bins holds one more entry than counts
// the bins are treated as edges and labelled as ranges.
func (d *Distribution) UnmarshalJSON(b []byte) error {
	var raw struct {
		Column       string `json:"column"`
		Distribution []struct {
			BinLabel  *flexLabel  `json:"bin_label"`
			Bin       *flexLabel  `json:"bin"`
			Count     *flexNumber `json:"count"`
			Frequency *flexNumber `json:"frequency"`
		} `json:"distribution"`
		Bins   []flexLabel  `json:"bins"`
		Counts []flexNumber `json:"counts"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode distribution: %w", err)
	}
	out := Distribution{Column: raw.Column}
	switch {
	case raw.Distribution != nil:
		for i, e := range raw.Distribution {
			var bin DistributionBin
			switch {
			case e.BinLabel != nil:
				bin.Label = string(*e.BinLabel)
			case e.Bin != nil:
				bin.Label = string(*e.Bin)
			default:
				return fmt.Errorf("decode distribution: entry %d has no bin label", i)
			}
			switch {
			case e.Count != nil:
				bin.Count = e.Count.toInt()
			case e.Frequency != nil:
				bin.Count = e.Frequency.toInt()
			}
			out.Bins = append(out.Bins, bin)
		}
	case raw.Bins != nil || raw.Counts != nil:
		edges := len(raw.Bins) == len(raw.Counts)+1
		if !edges && len(raw.Bins) != len(raw.Counts) {
			return fmt.Errorf("decode distribution: %d bins but %d counts", len(raw.Bins), len(raw.Counts))
		}
		for i, c := range raw.Counts {
			label := string(raw.Bins[i])
			if edges {
				label = string(raw.Bins[i]) + " - " + string(raw.Bins[i+1])
			}
			out.Bins = append(out.Bins, DistributionBin{Label: label, Count: c.toInt()})
		}
	}
	*d = out
	return nil
}

// CorrelationPair is one off-diagonal correlation. Correlation is nil when
// the backend reported it as undefined.
type CorrelationPair struct {
	Column1     string   `json:"column1" yaml:"column1"`
	Column2     string   `json:"column2" yaml:"column2"`
	Correlation *float64 `json:"correlation" yaml:"correlation"`
}

// Correlation is the backend's correlation payload.
type Correlation struct {
	Columns []string          `json:"columns" yaml:"columns"`
	Pairs   []CorrelationPair `json:"correlation_matrix" yaml:"correlation_matrix"`
}

// Get returns the correlation between a and b in either order.
func (c Correlation) Get(a, b string) (float64, bool) {
	for _, p := range c.Pairs {
		if (p.Column1 == a && p.Column2 == b) || (p.Column1 == b && p.Column2 == a) {
			if p.Correlation == nil {
				return 0, false
			}
			return *p.Correlation, true
		}
	}
	return 0, false
}

// UnmarshalJSON accepts the pairs under correlation_matrix, correlation or
// correlations, each as a list of pairs or a map of maps.
func (c *Correlation) UnmarshalJSON(b []byte) error {
	var raw struct {
		Columns           []string        `json:"columns"`
		CorrelationMatrix json.RawMessage `json:"correlation_matrix"`
		Correlation       json.RawMessage `json:"correlation"`
		Correlations      json.RawMessage `json:"correlations"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode correlation: %w", err)
	}
	body := raw.CorrelationMatrix
	for _, alt := range []json.RawMessage{raw.Correlation, raw.Correlations} {
		if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(body, []byte("null")) {
			body = alt
		}
	}
	out := Correlation{Columns: raw.Columns}
	body = bytes.TrimSpace(body)
	switch {
	case len(body) == 0 || bytes.Equal(body, []byte("null")):
	case body[0] == '[':
		var list []struct {
			Column1     string      `json:"column1"`
			Column2     string      `json:"column2"`
			Correlation *flexNumber `json:"correlation"`
		}
		if err := json.Unmarshal(body, &list); err != nil {
			return fmt.Errorf("decode correlation: %w", err)
		}
		seen := map[string]bool{}
		for _, c := range out.Columns {
			seen[c] = true
		}
		for _, e := range list {
			out.Pairs = append(out.Pairs, CorrelationPair{Column1: e.Column1, Column2: e.Column2, Correlation: e.Correlation.ptr()})
			for _, name := range []string{e.Column1, e.Column2} {
				if !seen[name] {
					seen[name] = true
					out.Columns = append(out.Columns, name)
				}
			}
		}
	case body[0] == '{':
		var m map[string]map[string]*flexNumber
		if err := json.Unmarshal(body, &m); err != nil {
			return fmt.Errorf("decode correlation: %w", err)
		}
		if len(out.Columns) == 0 {
			for k := range m {
				out.Columns = append(out.Columns, k)
			}
			sort.Strings(out.Columns)
		}
		for i := 0; i < len(out.Columns); i++ {
			for j := i + 1; j < len(out.Columns); j++ {
				a, b := out.Columns[i], out.Columns[j]
				v := m[a][b]
				if v == nil {
					v = m[b][a]
				}
				out.Pairs = append(out.Pairs, CorrelationPair{Column1: a, Column2: b, Correlation: v.ptr()})
			}
		}
	default:
		return fmt.Errorf("decode correlation: unexpected payload %.20q", body)
	}
	*c = out
	return nil
}

// StatisticsFromProfile converts a local column profile to the backend shape.
func StatisticsFromProfile(p profile.ColumnProfile) ColumnStatistics {
	s := ColumnStatistics{
		Column:               p.Name,
		Type:                 p.Type.String(),
		MissingValuesPercent: float64(p.MissingPercent),
		Count:                p.Count,
		UniqueCount:          p.Unique,
	}
	if p.NumericSummary != nil && p.NonMissing-p.Unusable > 0 {
		s.Mean = floatPtr(p.Mean)
		s.Median = floatPtr(p.Median)
		s.StdDev = floatPtr(p.StdDev)
		s.Min = floatPtr(p.Min)
		s.Max = floatPtr(p.Max)
	}
	if p.CategoricalSummary != nil {
		s.MostCommon = p.MostFrequent
	}
	return s
}

// DistributionFromHistogram converts a local histogram to the backend shape.
func DistributionFromHistogram(h profile.Histogram) Distribution {
	d := Distribution{Column: h.Column, Bins: []DistributionBin{}}
	prec := edgePrecision(h.Bins)
	for _, b := range h.Bins {
		label := strconv.FormatFloat(b.BinStart, 'g', prec, 64) + " - " + strconv.FormatFloat(b.BinEnd, 'g', prec, 64)
		d.Bins = append(d.Bins, DistributionBin{Label: label, Count: b.Count})
	}
	for _, c := range h.Categories {
		d.Bins = append(d.Bins, DistributionBin{Label: c.Category, Count: c.Count})
	}
	return d
}

// CorrelationFromMatrix converts a local correlation matrix to the backend shape.
func CorrelationFromMatrix(m *profile.CorrMatrix) Correlation {
	out := Correlation{Columns: []string{}, Pairs: []CorrelationPair{}}
	if m == nil {
		return out
	}
	out.Columns = append(out.Columns, m.Columns...)
	for i := 0; i < len(m.Columns); i++ {
		for j := i + 1; j < len(m.Columns); j++ {
			out.Pairs = append(out.Pairs, CorrelationPair{Column1: m.Columns[i], Column2: m.Columns[j], Correlation: floatPtr(m.Values[i][j])})
		}
	}
	return out
}

func floatPtr(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// flexNumber decodes a JSON number, a numeric string, or null (as zero).
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*n = flexNumber(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = flexNumber(f)
	return nil
}

func (n *flexNumber) ptr() *float64 {
	if n == nil {
		return nil
	}
	return floatPtr(float64(*n))
}

func (n flexNumber) toInt() int { return int(math.Round(float64(n))) }

// flexLabel decodes a string, number or boolean into its textual form.
type flexLabel string

func (l *flexLabel) UnmarshalJSON(b []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*l = ""
	case string:
		*l = flexLabel(x)
	case json.Number:
		*l = flexLabel(x.String())
	case bool:
		*l = flexLabel(strconv.FormatBool(x))
	default:
		out, _ := json.Marshal(x)
		*l = flexLabel(out)
	}
	return nil
}

// edgePrecision is the fewest significant digits, at least four, at which
// distinct bin edges still print distinctly.
func edgePrecision(bins []profile.Bin) int {
	for prec := 4; prec < 17; prec++ {
		ok := true
		for _, b := range bins {
			if b.BinStart != b.BinEnd &&
				strconv.FormatFloat(b.BinStart, 'g', prec, 64) == strconv.FormatFloat(b.BinEnd, 'g', prec, 64) {
				ok = false
				break
			}
		}
		if ok {
			return prec
		}
	}
	return 17
}
