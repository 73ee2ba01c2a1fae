package profile

import (
	"fmt"
	"math"
)

// RecommendationKind identifies which rule produced a Recommendation.
type RecommendationKind string

const (
	RecHighMissing     RecommendationKind = "high_missing"
	RecModerateMissing RecommendationKind = "moderate_missing"
	RecHighOutliers    RecommendationKind = "high_outliers"
	RecSomeOutliers    RecommendationKind = "some_outliers"
	RecSkewed          RecommendationKind = "skewed"
	RecHighVariance    RecommendationKind = "high_variance"
	RecHighCardinality RecommendationKind = "high_cardinality"
	RecConstant        RecommendationKind = "constant"
	RecIdentifier      RecommendationKind = "likely_identifier"
	RecLooksFine       RecommendationKind = "looks_fine"
)

// Recommendation is one advisory message about a column.
type Recommendation struct {
	Kind    RecommendationKind `json:"kind" yaml:"kind"`
	Message string             `json:"message" yaml:"message"`
}

// Recommend derives data-quality advice from a profile. Rules are evaluated in
// a fixed order and every matching rule contributes a message. When nothing
// matches a single looks-fine message is returned.
func Recommend(p ColumnProfile) []Recommendation {
	var out []Recommendation
	add := func(k RecommendationKind, format string, args ...any) {
		out = append(out, Recommendation{Kind: k, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case p.MissingPercent > 20:
		add(RecHighMissing, "High missing values (%s%%). Consider imputing or dropping this column.", p.MissingPercent)
	case p.MissingPercent > 5:
		add(RecModerateMissing, "Moderate missing values (%s%%). Consider filling with the mean, median or mode.", p.MissingPercent)
	}

	if p.Type == TypeNumeric && p.NumericSummary != nil {
		s := p.NumericSummary
		switch {
		case s.OutliersPercent > 10:
			add(RecHighOutliers, "High outlier ratio (%s%%). Review extreme values or apply outlier treatment.", s.OutliersPercent)
		case s.OutliersPercent > 0:
			add(RecSomeOutliers, "Some outliers detected (%s%%). Consider capping or robust scaling.", s.OutliersPercent)
		}
		if s.StdDev > 0 && math.Abs(s.Mean-s.Median)/s.StdDev > 0.5 {
			add(RecSkewed, "Distribution appears skewed. Consider a log or power transform.")
		}
		if s.Mean != 0 && s.StdDev/math.Abs(s.Mean) > 1 {
			add(RecHighVariance, "High variance relative to the mean. Consider standardization.")
		}
	}

	if p.Type == TypeCategorical {
		if p.Unique > 100 {
			add(RecHighCardinality, "High cardinality (%d unique values). Consider grouping rare categories.", p.Unique)
		}
		if p.Unique == 1 {
			add(RecConstant, "Only one unique value. This column carries no information and can be dropped.")
		}
		if p.NonMissing > 0 && float64(p.Unique)/float64(p.NonMissing) > 0.9 {
			add(RecIdentifier, "Nearly all values are unique. This column may be an identifier or free text.")
		}
	}

	if len(out) == 0 {
		add(RecLooksFine, "No data quality issues detected.")
	}
	return out
}

// Messages flattens recommendations to their text.
func Messages(recs []Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Message
	}
	return out
}
