package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/datasage-cli/internal/ingest"
	"github.com/KaramelBytes/datasage-cli/internal/profile"
	"github.com/KaramelBytes/datasage-cli/internal/report"
	"github.com/KaramelBytes/datasage-cli/internal/utils"
)

var (
	colRead   readFlags
	colFormat string
	colWidth  int
)

// columnView is the serialized form of the column command's output.
type columnView struct {
	Profile         profile.ColumnProfile    `json:"profile" yaml:"profile"`
	Histogram       profile.Histogram        `json:"histogram" yaml:"histogram"`
	Recommendations []profile.Recommendation `json:"recommendations" yaml:"recommendations"`
}

var columnCmd = &cobra.Command{
	Use:   "column <file> <column>",
	Short: "Profile one column: statistics, histogram and recommendations",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := colRead.options()
		if err != nil {
			return err
		}
		res, err := ingest.Load(args[0], opt)
		if err != nil {
			return err
		}
		p, err := profile.ProfileColumn(res.Dataset, args[1])
		if err != nil {
			return err
		}
		h, err := profile.HistogramFor(res.Dataset, args[1])
		if err != nil {
			return err
		}
		v := columnView{Profile: p, Histogram: h, Recommendations: profile.Recommend(p)}

		out := cmd.OutOrStdout()
		switch strings.ToLower(colFormat) {
		case "json":
			b, err := utils.PrettyJSON(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
		case "yaml":
			b, err := yaml.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal yaml: %w", err)
			}
			fmt.Fprint(out, string(b))
		case "text", "":
			writeColumnText(out, v, colWidth)
		default:
			return fmt.Errorf("unsupported --format: %s (use text|json|yaml)", colFormat)
		}
		return nil
	},
}

func writeColumnText(w io.Writer, v columnView, width int) {
	p := v.Profile
	fmt.Fprintf(w, "Column: %s\n", p.Name)
	fmt.Fprintf(w, "Type: %s\n", p.Type)
	fmt.Fprintf(w, "Values: %d (%d missing, %s%%), %d unique\n", p.Count, p.Missing, p.MissingPercent, p.Unique)
	if s := p.NumericSummary; s != nil {
		fmt.Fprintf(w, "Mean: %.4g  Median: %.4g  Std: %.4g\n", s.Mean, s.Median, s.StdDev)
		fmt.Fprintf(w, "Min: %.4g  Q1: %.4g  Q3: %.4g  Max: %.4g\n", s.Min, s.Q1, s.Q3, s.Max)
		fmt.Fprintf(w, "Outliers: %d (%s%%)  Skewness: %.3f  Kurtosis: %.3f\n", s.Outliers, s.OutliersPercent, s.Skewness, s.Kurtosis)
		if p.Unusable > 0 {
			fmt.Fprintf(w, "Unparseable: %d\n", p.Unusable)
		}
	}
	if s := p.CategoricalSummary; s != nil && s.MostFrequent != "" {
		fmt.Fprintf(w, "Most frequent: %s (%d, %s%%)\n", s.MostFrequent, s.MostFrequentCount, s.MostFrequentPercent)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Histogram:")
	fmt.Fprint(w, report.HistogramText(v.Histogram, width))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Recommendations:")
	for _, r := range v.Recommendations {
		fmt.Fprintf(w, "- %s\n", r.Message)
	}
}

func init() {
	rootCmd.AddCommand(columnCmd)
	colRead.register(columnCmd)
	columnCmd.Flags().StringVar(&colFormat, "format", "text", "output format: text|json|yaml")
	columnCmd.Flags().IntVar(&colWidth, "width", 40, "histogram bar width in characters")
}
