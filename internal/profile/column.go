package profile

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// ColumnProfile is the read-only summary of one column. Exactly one of the
// embedded summaries is set for typed columns; Unknown columns carry neither.
type ColumnProfile struct {
	Name           string     `json:"name" yaml:"name"`
	Type           ColumnType `json:"type" yaml:"type"`
	Count          int        `json:"count" yaml:"count"`
	Missing        int        `json:"missing" yaml:"missing"`
	MissingPercent Percent    `json:"missing_percent" yaml:"missing_percent"`
	NonMissing     int        `json:"non_missing" yaml:"non_missing"`
	Unique         int        `json:"unique" yaml:"unique"`
	// Unusable counts non-missing entries a numeric profile could not parse.
	Unusable int `json:"unusable" yaml:"unusable"`

	*NumericSummary     `yaml:"numeric,omitempty"`
	*CategoricalSummary `yaml:"categorical,omitempty"`
}

// NumericSummary holds descriptive statistics over the parsed numbers.
type NumericSummary struct {
	Mean            float64        `json:"mean" yaml:"mean"`
	Median          float64        `json:"median" yaml:"median"`
	StdDev          float64        `json:"std_dev" yaml:"std_dev"`
	Min             float64        `json:"min" yaml:"min"`
	Max             float64        `json:"max" yaml:"max"`
	Q1              float64        `json:"q1" yaml:"q1"`
	Q3              float64        `json:"q3" yaml:"q3"`
	IQR             float64        `json:"iqr" yaml:"iqr"`
	Range           float64        `json:"range" yaml:"range"`
	Outliers        int            `json:"outliers" yaml:"outliers"`
	OutliersPercent Percent        `json:"outliers_percent" yaml:"outliers_percent"`
	Skewness        float64        `json:"skewness" yaml:"skewness"`
	Kurtosis        float64        `json:"kurtosis" yaml:"kurtosis"`
	Normality       *NormalityTest `json:"normality,omitempty" yaml:"normality,omitempty"`
}

// CategoricalSummary describes the dominant value of a non-numeric column.
type CategoricalSummary struct {
	MostFrequent        string  `json:"most_frequent" yaml:"most_frequent"`
	MostFrequentCount   int     `json:"most_frequent_count" yaml:"most_frequent_count"`
	MostFrequentPercent Percent `json:"most_frequent_percent" yaml:"most_frequent_percent"`
}

// ProfileValues summarizes one column of values as type t. It never fails:
// empty input yields a zeroed profile.
func ProfileValues(name string, values []Value, t ColumnType) ColumnProfile {
	p := ColumnProfile{Name: name, Type: t, Count: len(values)}
	for _, v := range values {
		if v.IsMissing() {
			p.Missing++
		}
	}
	p.NonMissing = p.Count - p.Missing
	p.MissingPercent = PercentOf(p.Missing, p.Count)

	switch t {
	case TypeNumeric:
		nums := numbers(values)
		p.Unusable = p.NonMissing - len(nums)
		p.Unique = uniqueNumeric(values)
		p.NumericSummary = summarizeNumbers(nums)
	case TypeCategorical, TypeBoolean, TypeDateTime:
		freq := frequencies(values)
		p.Unique = len(freq)
		p.CategoricalSummary = &CategoricalSummary{}
		if len(freq) > 0 {
			top := freq[0]
			p.MostFrequent = top.Category
			p.MostFrequentCount = top.Count
			p.MostFrequentPercent = PercentOf(top.Count, p.NonMissing)
		}
	default:
		p.Unique = len(frequencies(values))
	}
	return p
}

func numbers(values []Value) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v.Kind == KindNumber {
			out = append(out, v.Num)
		}
	}
	return out
}

func uniqueNumeric(values []Value) int {
	nums := make(map[float64]struct{})
	texts := make(map[string]struct{})
	for _, v := range values {
		switch v.Kind {
		case KindNumber:
			nums[v.Num] = struct{}{}
		case KindText:
			texts[v.Raw] = struct{}{}
		}
	}
	return len(nums) + len(texts)
}

func summarizeNumbers(nums []float64) *NumericSummary {
	s := &NumericSummary{}
	n := len(nums)
	if n == 0 {
		return s
	}
	sorted := make([]float64, n)
	copy(sorted, nums)
	sort.Float64s(sorted)

	s.Min, s.Max = sorted[0], sorted[n-1]
	s.Range = saturate(s.Max - s.Min)

	// Moments of huge magnitudes overflow; take them on values scaled by a
	// power of two and scale back. Skew, kurtosis and K² are scale-free.
	base, scale := scaleDown(sorted, math.Max(math.Abs(s.Min), math.Abs(s.Max)))
	mean, _ := stats.Mean(base)
	median, _ := stats.Median(base)
	s.Mean = finite(mean * scale)
	s.Median = finite(median * scale)
	if n > 1 && s.Min != s.Max {
		sd, _ := stats.StandardDeviationPopulation(base)
		s.StdDev = finite(sd * scale)
	}

	// nearest-rank quartiles, no interpolation
	s.Q1 = sorted[n/4]
	s.Q3 = sorted[3*n/4]
	iqr := s.Q3 - s.Q1
	s.IQR = saturate(iqr)
	lo, hi := s.Q1-1.5*iqr, s.Q3+1.5*iqr
	for _, x := range sorted {
		if x < lo || x > hi {
			s.Outliers++
		}
	}
	s.OutliersPercent = PercentOf(s.Outliers, n)

	if s.StdDev > 0 {
		if n >= 3 {
			s.Skewness = finite(stat.Skew(base, nil))
		}
		if n >= 4 {
			s.Kurtosis = finite(stat.ExKurtosis(base, nil))
		}
		if n > normalityMinSamples {
			s.Normality = normalityTest(base)
		}
	}
	return s
}

// scaleThreshold is the magnitude above which sums of squares may overflow.
const scaleThreshold = 1e100

// scaleDown returns sorted unchanged with scale 1 for ordinary magnitudes,
// otherwise a copy divided by a power of two near peak.
func scaleDown(sorted []float64, peak float64) ([]float64, float64) {
	if peak <= scaleThreshold {
		return sorted, 1
	}
	_, exp := math.Frexp(peak)
	scale := math.Ldexp(1, exp-1)
	out := make([]float64, len(sorted))
	for i, x := range sorted {
		out[i] = x / scale
	}
	return out, scale
}

// frequencies counts non-missing raw values, ordered by count descending with
// ties kept in first-encountered order.
func frequencies(values []Value) []CategoryCount {
	idx := make(map[string]int)
	var out []CategoryCount
	for _, v := range values {
		if v.IsMissing() {
			continue
		}
		if i, ok := idx[v.Raw]; ok {
			out[i].Count++
			continue
		}
		idx[v.Raw] = len(out)
		out = append(out, CategoryCount{Category: v.Raw, Count: 1})
	}
	sortByCount(out)
	return out
}

// saturate clamps overflowed differences to ±MaxFloat64.
func saturate(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case math.IsInf(f, 1):
		return math.MaxFloat64
	case math.IsInf(f, -1):
		return -math.MaxFloat64
	}
	return f
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
