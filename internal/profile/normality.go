package profile

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	normalityMinSamples = 8
	normalityAlpha      = 0.05
)

// NormalityTest is the D'Agostino-Pearson omnibus result.
type NormalityTest struct {
	Statistic float64 `json:"statistic" yaml:"statistic"`
	PValue    float64 `json:"p_value" yaml:"p_value"`
	Normal    bool    `json:"normal" yaml:"normal"`
}

// normalityTest combines the skewness and kurtosis z-scores into K² and
// evaluates it against chi-square with two degrees of freedom. It returns nil
// when the statistic is not defined for the sample.
func normalityTest(x []float64) *NormalityTest {
	n := float64(len(x))
	if len(x) <= normalityMinSamples {
		return nil
	}
	m2 := stat.Moment(2, x, nil)
	if m2 <= 0 {
		return nil
	}
	b1 := stat.Moment(3, x, nil) / math.Pow(m2, 1.5)
	b2 := stat.Moment(4, x, nil) / (m2 * m2)

	zs := skewZ(b1, n)
	zk := kurtosisZ(b2, n)
	k2 := zs*zs + zk*zk
	if math.IsNaN(k2) || math.IsInf(k2, 0) {
		return nil
	}
	p := 1 - distuv.ChiSquared{K: 2}.CDF(k2)
	return &NormalityTest{Statistic: k2, PValue: p, Normal: p >= normalityAlpha}
}

func skewZ(b1, n float64) float64 {
	y := b1 * math.Sqrt((n+1)*(n+3)/(6*(n-2)))
	beta2 := 3 * (n*n + 27*n - 70) * (n + 1) * (n + 3) / ((n - 2) * (n + 5) * (n + 7) * (n + 9))
	w2 := -1 + math.Sqrt(2*(beta2-1))
	delta := 1 / math.Sqrt(0.5*math.Log(w2))
	alpha := math.Sqrt(2 / (w2 - 1))
	if y == 0 {
		y = 1
	}
	r := y / alpha
	return delta * math.Log(r+math.Sqrt(r*r+1))
}

func kurtosisZ(b2, n float64) float64 {
	e := 3 * (n - 1) / (n + 1)
	varb2 := 24 * n * (n - 2) * (n - 3) / ((n + 1) * (n + 1) * (n + 3) * (n + 5))
	x := (b2 - e) / math.Sqrt(varb2)
	sqrtBeta1 := 6 * (n*n - 5*n + 2) / ((n + 7) * (n + 9)) * math.Sqrt(6*(n+3)*(n+5)/(n*(n-2)*(n-3)))
	a := 6 + 8/sqrtBeta1*(2/sqrtBeta1+math.Sqrt(1+4/(sqrtBeta1*sqrtBeta1)))
	term1 := 1 - 2/(9*a)
	denom := 1 + x*math.Sqrt(2/(a-4))
	if denom == 0 {
		return math.NaN()
	}
	term2 := math.Cbrt((1 - 2/a) / math.Abs(denom))
	if denom < 0 {
		term2 = -term2
	}
	return (term1 - term2) / math.Sqrt(2/(9*a))
}
