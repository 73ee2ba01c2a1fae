package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/KaramelBytes/datasage-cli/internal/profile"
	"github.com/KaramelBytes/datasage-cli/internal/utils"
)

const (
	maxCorrPairs  = 10
	maxSampleCell = 80
)

// Markdown renders a compact report suitable for terminals or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	p := r.Profile
	if p == nil {
		p = &profile.DatasetProfile{}
	}

	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	if r.Truncated {
		b.WriteString(fmt.Sprintf("Rows: ~%d (processed %d)\n", r.SourceRows, p.TotalRows))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", p.TotalRows))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n", p.TotalColumns))
	b.WriteString(fmt.Sprintf("Missing cells: %d (%s%%)\n", p.MissingCells, p.MissingPercent))
	b.WriteString(fmt.Sprintf("Duplicate rows: %d\n", p.DuplicateRows))
	tc := p.TypeCounts
	b.WriteString(fmt.Sprintf("Types: numeric %d, categorical %d, datetime %d, boolean %d, unknown %d\n\n",
		tc.Numeric, tc.Categorical, tc.DateTime, tc.Boolean, tc.Unknown))

	b.WriteString("[SCHEMA]\n")
	for _, c := range p.Fields {
		b.WriteString(fmt.Sprintf("- %s: %s (non-missing %d, missing %s%%, unique %d)",
			safeName(c.Name), c.Type, c.NonMissing, c.MissingPercent, c.Unique))
		switch {
		case c.NumericSummary != nil && c.NonMissing > 0:
			b.WriteString(fmt.Sprintf("; min %.4g, q1 %.4g, median %.4g, q3 %.4g, max %.4g, mean %.4g, std %.4g",
				c.Min, c.Q1, c.Median, c.Q3, c.Max, c.Mean, c.StdDev))
			b.WriteString(fmt.Sprintf("; outliers %d (%s%%)", c.Outliers, c.OutliersPercent))
			if c.Skewness != 0 {
				b.WriteString(fmt.Sprintf("; skew %.2f", c.Skewness))
			}
			if c.Unusable > 0 {
				b.WriteString(fmt.Sprintf("; unusable %d", c.Unusable))
			}
		case c.CategoricalSummary != nil && c.MostFrequentCount > 0:
			b.WriteString(fmt.Sprintf("; top %s (%d, %s%%)", safeVal(c.MostFrequent), c.MostFrequentCount, c.MostFrequentPercent))
		}
		b.WriteString("\n")
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\n[RECOMMENDATIONS]\n")
		for _, c := range p.Fields {
			for _, rec := range r.Recommendations[c.Name] {
				if rec.Kind == profile.RecLooksFine {
					continue
				}
				b.WriteString(fmt.Sprintf("- %s: %s\n", safeName(c.Name), rec.Message))
			}
		}
	}

	if r.Correlations != nil && len(r.Correlations.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		pairs := r.Correlations.Pairs()
		for i := 0; i < len(pairs) && i < maxCorrPairs; i++ {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", pairs[i].A, pairs[i].B, pairs[i].R))
		}
	}

	if insights := r.insights(); len(insights) > 0 {
		b.WriteString("\n[INSIGHTS]\n")
		for _, s := range insights {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}

	if len(r.Samples) > 0 && len(r.Columns) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n\n")
		b.WriteString("| ")
		for i, c := range r.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeVal(safeName(c)))
		}
		b.WriteString(" |\n|")
		for range r.Columns {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Columns {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				b.WriteString(safeVal(utils.Truncate(val, maxSampleCell)))
			}
			b.WriteString(" |\n")
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// insights lists strong correlations and columns that are mostly missing.
func (r *Report) insights() []string {
	var out []string
	if r.Correlations != nil {
		for _, pc := range r.Correlations.StrongPairs(profile.StrongCorrelation) {
			dir := "positive"
			if pc.R < 0 {
				dir = "negative"
			}
			out = append(out, fmt.Sprintf("Strong %s correlation between %s and %s (r=%.3f)", dir, pc.A, pc.B, pc.R))
		}
	}
	if r.Profile != nil {
		for _, f := range r.Profile.Fields {
			if f.MissingPercent > 50 {
				out = append(out, fmt.Sprintf("%s is mostly empty (%s%% missing)", f.Name, f.MissingPercent))
			}
		}
	}
	return out
}

// HTML renders the Markdown report as a standalone HTML page.
func (r *Report) HTML() []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	title := "Dataset profile"
	if r.Name != "" {
		title += ": " + r.Name
	}
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: title,
	})
	return markdown.ToHTML([]byte(r.Markdown()), p, renderer)
}

// HistogramText draws a histogram as horizontal bars at most width wide.
func HistogramText(h profile.Histogram, width int) string {
	if width <= 0 {
		width = 40
	}
	type bar struct {
		label string
		count int
		extra string
	}
	var bars []bar
	for _, bin := range h.Bins {
		bars = append(bars, bar{
			label: fmt.Sprintf("[%.4g, %.4g]", bin.BinStart, bin.BinEnd),
			count: bin.Count,
			extra: fmt.Sprintf(" (cum %.1f%%)", bin.CumulativePercent),
		})
	}
	for _, c := range h.Categories {
		bars = append(bars, bar{label: safeVal(c.Category), count: c.Count})
	}
	if len(bars) == 0 {
		return "(no values)\n"
	}
	peak, labelW := 0, 0
	for _, bb := range bars {
		peak = max(peak, bb.count)
		labelW = max(labelW, len(bb.label))
	}
	var b strings.Builder
	for _, bb := range bars {
		n := 0
		if peak > 0 {
			n = int(math.Round(float64(bb.count) * float64(width) / float64(peak)))
		}
		b.WriteString(fmt.Sprintf("%-*s | %s %d%s\n", labelW, bb.label, strings.Repeat("#", n), bb.count, bb.extra))
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
