package profile

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StrongCorrelation is the |r| above which a pair is reported as an insight.
const StrongCorrelation = 0.7

// CorrMatrix is a symmetric Pearson correlation matrix over numeric columns.
type CorrMatrix struct {
	Columns []string    `json:"columns" yaml:"columns"`
	Values  [][]float64 `json:"values" yaml:"values"`
}

// PairCorr is one off-diagonal entry of a CorrMatrix.
type PairCorr struct {
	A string  `json:"a" yaml:"a"`
	B string  `json:"b" yaml:"b"`
	R float64 `json:"r" yaml:"r"`
}

// Correlations computes pairwise Pearson r over the dataset's numeric
// columns, using only rows where both values are numbers. Pairs with fewer
// than three such rows or zero variance get 0.
func Correlations(ds *Dataset) (*CorrMatrix, error) {
	if ds == nil {
		return nil, &ProfilingError{Op: "correlations", Err: ErrNilDataset}
	}
	var cols []string
	var series [][]Value
	for _, c := range ds.Header() {
		values := ds.Values(c)
		if Infer(values) == TypeNumeric {
			cols = append(cols, c)
			series = append(series, values)
		}
	}
	m := &CorrMatrix{Columns: cols, Values: make([][]float64, len(cols))}
	for i := range cols {
		m.Values[i] = make([]float64, len(cols))
		m.Values[i][i] = 1
	}
	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			r := pearson(series[i], series[j])
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m, nil
}

func pearson(a, b []Value) float64 {
	xs := make([]float64, 0, len(a))
	ys := make([]float64, 0, len(a))
	for k := range a {
		if a[k].Kind == KindNumber && b[k].Kind == KindNumber {
			xs = append(xs, a[k].Num)
			ys = append(ys, b[k].Num)
		}
	}
	if len(xs) < 3 || constant(xs) || constant(ys) {
		return 0
	}
	return finite(stat.Correlation(xs, ys, nil))
}

func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

// Pairs lists off-diagonal pairs ordered by |r| descending, then by name.
func (m *CorrMatrix) Pairs() []PairCorr {
	var out []PairCorr
	for i := 0; i < len(m.Columns); i++ {
		for j := i + 1; j < len(m.Columns); j++ {
			out = append(out, PairCorr{A: m.Columns[i], B: m.Columns[j], R: m.Values[i][j]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].R), math.Abs(out[j].R)
		if ai == aj {
			return out[i].A+out[i].B < out[j].A+out[j].B
		}
		return ai > aj
	})
	return out
}

// StrongPairs returns the pairs with |r| >= threshold.
func (m *CorrMatrix) StrongPairs(threshold float64) []PairCorr {
	var out []PairCorr
	for _, p := range m.Pairs() {
		if math.Abs(p.R) < threshold {
			break
		}
		out = append(out, p)
	}
	return out
}
