package report

import (
	"fmt"

	"github.com/KaramelBytes/datasage-cli/internal/ingest"
	"github.com/KaramelBytes/datasage-cli/internal/profile"
)

// Options selects the optional report sections.
type Options struct {
	SampleRows      int
	Correlations    bool
	Recommendations bool
}

// DefaultOptions returns the options used by the profile command.
func DefaultOptions() Options {
	return Options{SampleRows: 5, Recommendations: true}
}

// Report is a rendered-ready view of one profiled dataset.
type Report struct {
	Name            string                              `json:"name" yaml:"name"`
	SourceRows      int                                 `json:"source_rows" yaml:"source_rows"`
	Truncated       bool                                `json:"truncated" yaml:"truncated"`
	Profile         *profile.DatasetProfile             `json:"profile" yaml:"profile"`
	Correlations    *profile.CorrMatrix                 `json:"correlations,omitempty" yaml:"correlations,omitempty"`
	Recommendations map[string][]profile.Recommendation `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	Columns         []string                            `json:"-" yaml:"-"`
	Samples         [][]string                          `json:"samples,omitempty" yaml:"samples,omitempty"`
	Warnings        []string                            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Build profiles a loaded dataset and gathers the requested sections.
func Build(res *ingest.Result, opt Options) (*Report, error) {
	if res == nil || res.Dataset == nil {
		return nil, fmt.Errorf("build report: %w", profile.ErrNilDataset)
	}
	ds := res.Dataset
	p, err := profile.ProfileDataset(ds)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	r := &Report{
		Name:       ds.Name,
		SourceRows: res.TotalRows,
		Truncated:  res.Truncated,
		Profile:    p,
		Columns:    ds.Header(),
		Warnings:   append([]string(nil), res.Warnings...),
	}
	if opt.Correlations {
		m, err := profile.Correlations(ds)
		if err != nil {
			return nil, fmt.Errorf("build report: %w", err)
		}
		r.Correlations = m
	}
	if opt.Recommendations {
		r.Recommendations = profile.RecommendationsFor(p)
	}
	n := opt.SampleRows
	if n > len(ds.Rows) {
		n = len(ds.Rows)
	}
	for _, row := range ds.Rows[:max(n, 0)] {
		rec := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			rec[i] = row[c].Raw
		}
		r.Samples = append(r.Samples, rec)
	}
	return r, nil
}
