package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datasage-cli/internal/backend"
	"github.com/KaramelBytes/datasage-cli/internal/explorer"
	"github.com/KaramelBytes/datasage-cli/internal/ingest"
	"github.com/KaramelBytes/datasage-cli/internal/profile"
	"github.com/KaramelBytes/datasage-cli/internal/report"
	"github.com/KaramelBytes/datasage-cli/internal/session"
	"github.com/KaramelBytes/datasage-cli/internal/utils"
)

var (
	statsRead         readFlags
	statsSession      string
	statsFile         string
	statsDistribution bool
	statsCorrelation  bool
	statsText         bool
)

var statsCmd = &cobra.Command{
	Use:   "stats [column]",
	Short: "Query column statistics, a distribution or correlations",
	Long: `Query a session's dataset. When backend_url is configured the analysis backend
answers first; on any backend failure the local engine answers instead. With
--file the query always runs locally. The payload is printed as JSON and its
source (backend or local) is reported on stderr.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (statsSession == "") == (statsFile == "") {
			return fmt.Errorf("specify exactly one of --session or --file")
		}
		if statsDistribution && statsCorrelation {
			return fmt.Errorf("--distribution and --correlation are mutually exclusive")
		}
		column := ""
		if len(args) == 1 {
			column = args[0]
		}
		if !statsCorrelation && column == "" {
			return fmt.Errorf("a column name is required unless --correlation is set")
		}

		sessionID, path := "", statsFile
		if statsSession != "" {
			root, err := sessionsDir()
			if err != nil {
				return err
			}
			sess, err := session.Find(root, statsSession)
			if err != nil {
				return err
			}
			sessionID = sess.ID
			if path = sess.DatasetPath(); path == "" {
				return fmt.Errorf("session '%s' has no dataset attached", sess.Name)
			}
		}
		opt, err := statsRead.options()
		if err != nil {
			return err
		}
		res, err := ingest.Load(path, opt)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, requestTimeout())
		defer cancel()
		ex := newExplorer()
		out := cmd.OutOrStdout()
		var (
			payload any
			src     explorer.Source
		)
		switch {
		case statsCorrelation:
			c, s, err := ex.Correlation(ctx, sessionID, res.Dataset)
			if err != nil {
				return err
			}
			payload, src = c, s
			if statsText {
				writeCorrelationText(out, c)
			}
		case statsDistribution:
			d, s, err := ex.Distribution(ctx, sessionID, res.Dataset, column)
			if err != nil {
				return err
			}
			payload, src = d, s
			if statsText {
				writeDistributionText(out, d)
			}
		default:
			st, s, err := ex.ColumnStatistics(ctx, sessionID, res.Dataset, column)
			if err != nil {
				return err
			}
			payload, src = st, s
			if statsText {
				writeStatisticsText(out, st)
			}
		}
		if !statsText {
			b, err := utils.PrettyJSON(payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "source: %s\n", src)
		return nil
	},
}

func writeStatisticsText(w io.Writer, st *backend.ColumnStatistics) {
	fmt.Fprintf(w, "Column: %s (%s)\n", st.Column, st.Type)
	fmt.Fprintf(w, "Count: %d  Unique: %d  Missing: %.1f%%\n", st.Count, st.UniqueCount, st.MissingValuesPercent)
	opt := func(label string, v *float64) {
		if v != nil {
			fmt.Fprintf(w, "%s: %.4g\n", label, *v)
		}
	}
	opt("Mean", st.Mean)
	opt("Median", st.Median)
	opt("Std", st.StdDev)
	opt("Min", st.Min)
	opt("Max", st.Max)
	if st.MostCommon != "" {
		fmt.Fprintf(w, "Most common: %s\n", st.MostCommon)
	}
}

func writeDistributionText(w io.Writer, d *backend.Distribution) {
	h := profile.Histogram{Column: d.Column}
	for _, b := range d.Bins {
		h.Categories = append(h.Categories, profile.CategoryCount{Category: b.Label, Count: b.Count})
	}
	if d.Column != "" {
		fmt.Fprintf(w, "Distribution of %s (%d values)\n", d.Column, d.Total())
	}
	fmt.Fprint(w, report.HistogramText(h, 40))
}

func writeCorrelationText(w io.Writer, c *backend.Correlation) {
	if len(c.Pairs) == 0 {
		fmt.Fprintln(w, "(no numeric column pairs)")
		return
	}
	for _, p := range c.Pairs {
		r := "n/a"
		if p.Correlation != nil {
			r = fmt.Sprintf("%.3f", *p.Correlation)
		}
		fmt.Fprintf(w, "%s ~ %s: r=%s\n", p.Column1, p.Column2, r)
	}
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsRead.register(statsCmd)
	statsCmd.Flags().StringVarP(&statsSession, "session", "s", "", "session name or ID to query")
	statsCmd.Flags().StringVar(&statsFile, "file", "", "dataset file to query locally")
	statsCmd.Flags().BoolVar(&statsDistribution, "distribution", false, "show the column's distribution")
	statsCmd.Flags().BoolVar(&statsCorrelation, "correlation", false, "show pairwise correlations between numeric columns")
	statsCmd.Flags().BoolVar(&statsText, "text", false, "print a human-readable summary instead of the JSON payload")
}

// requestTimeout bounds a single interactive query including retries.
func requestTimeout() time.Duration {
	c := settings()
	per := time.Duration(max(c.HTTPTimeoutSec, 1)) * time.Second
	return per * time.Duration(max(c.RetryMaxAttempts, 1))
}
