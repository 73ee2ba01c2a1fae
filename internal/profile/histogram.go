package profile

import (
	"math"
	"sort"
)

const (
	// MaxCategories is how many categories a histogram lists before folding
	// the remainder into OtherCategory.
	MaxCategories = 10
	OtherCategory = "Other"
	minBins       = 5
)

// Bin is one numeric histogram bucket.
type Bin struct {
	BinStart          float64 `json:"bin_start" yaml:"bin_start"`
	BinEnd            float64 `json:"bin_end" yaml:"bin_end"`
	Count             int     `json:"count" yaml:"count"`
	CumulativePercent float64 `json:"cumulative_percent" yaml:"cumulative_percent"`
}

// CategoryCount is one categorical bucket.
type CategoryCount struct {
	Category string `json:"category" yaml:"category"`
	Count    int    `json:"count" yaml:"count"`
}

// Histogram holds numeric bins or categorical buckets, never both.
type Histogram struct {
	Column     string          `json:"column" yaml:"column"`
	Type       ColumnType      `json:"type" yaml:"type"`
	Bins       []Bin           `json:"bins,omitempty" yaml:"bins,omitempty"`
	Categories []CategoryCount `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// Empty reports whether the histogram has no buckets.
func (h Histogram) Empty() bool { return len(h.Bins) == 0 && len(h.Categories) == 0 }

// Total is the number of values counted across all buckets.
func (h Histogram) Total() int {
	n := 0
	for _, b := range h.Bins {
		n += b.Count
	}
	for _, c := range h.Categories {
		n += c.Count
	}
	return n
}

// BuildHistogram buckets values according to t.
func BuildHistogram(values []Value, t ColumnType) Histogram {
	h := Histogram{Type: t}
	switch t {
	case TypeNumeric:
		h.Bins = numericBins(numbers(values))
	case TypeUnknown:
	default:
		h.Categories = categoryBuckets(values)
	}
	return h
}

// SturgesBins returns max(5, ceil(1 + 3.322*log10(n))).
func SturgesBins(n int) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Ceil(1 + 3.322*math.Log10(float64(n))))
	if k < minBins {
		return minBins
	}
	return k
}

func numericBins(nums []float64) []Bin {
	n := len(nums)
	if n == 0 {
		return nil
	}
	lo, hi := nums[0], nums[0]
	for _, x := range nums[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if lo == hi {
		return []Bin{{BinStart: lo, BinEnd: hi, Count: n, CumulativePercent: 100}}
	}

	k := SturgesBins(n)
	g := newBinGrid(lo, hi, k)
	bins := make([]Bin, k)
	for i := range bins {
		bins[i].BinStart = g.edge(i)
		bins[i].BinEnd = g.edge(i + 1)
	}
	bins[k-1].BinEnd = hi

	for _, x := range nums {
		i := k - 1
		if x != hi {
			i = g.index(x)
		}
		bins[i].Count++
	}

	running := 0
	for i := range bins {
		running += bins[i].Count
		bins[i].CumulativePercent = round1(float64(running) * 100 / float64(n))
	}
	return bins
}

// binGrid splits [lo, hi] into k equal-width bins. When hi-lo overflows,
// offsets are taken on halved values so every edge and index stays finite.
type binGrid struct {
	lo, hi float64
	k      int
	width  float64
	wide   bool
}

func newBinGrid(lo, hi float64, k int) binGrid {
	d := hi - lo
	return binGrid{lo: lo, hi: hi, k: k, width: d / float64(k), wide: math.IsInf(d, 0)}
}

func (g binGrid) edge(i int) float64 {
	if !g.wide {
		return g.lo + float64(i)*g.width
	}
	t := float64(i) / float64(g.k)
	return g.lo*(1-t) + g.hi*t
}

func (g binGrid) index(x float64) int {
	var f float64
	if g.wide {
		f = math.Floor((x/2 - g.lo/2) / (g.hi/2 - g.lo/2) * float64(g.k))
	} else {
		f = math.Floor((x - g.lo) / g.width)
	}
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f >= float64(g.k):
		return g.k - 1
	}
	return int(f)
}

func categoryBuckets(values []Value) []CategoryCount {
	freq := frequencies(values)
	if len(freq) <= MaxCategories {
		return freq
	}
	out := make([]CategoryCount, MaxCategories, MaxCategories+1)
	copy(out, freq[:MaxCategories])
	other := 0
	for _, c := range freq[MaxCategories:] {
		other += c.Count
	}
	if other > 0 {
		out = append(out, CategoryCount{Category: OtherCategory, Count: other})
	}
	return out
}

// sortByCount orders buckets by count descending, stable on ties.
func sortByCount(c []CategoryCount) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Count > c[j].Count })
}
