package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datasage-cli/internal/ingest"
	"github.com/KaramelBytes/datasage-cli/internal/report"
	"github.com/KaramelBytes/datasage-cli/internal/session"
)

var (
	profRead       readFlags
	profOutputPath string
	profFormat     string
	profSampleRows int
	profCorr       bool
	profNoRecs     bool
	profSession    string
)

var profileCmd = &cobra.Command{
	Use:   "profile [file]",
	Short: "Profile a CSV/TSV/XLSX/JSON dataset: types, statistics and recommendations",
	Long: `Profile a dataset file, or the dataset attached to a session with --session.
With --session the profile is also recorded as a snapshot in the history database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := checkFormat(profFormat)
		if err != nil {
			return err
		}
		if len(args) == 0 && profSession == "" {
			return fmt.Errorf("provide a dataset file or --session")
		}
		if len(args) == 1 && profSession != "" {
			return fmt.Errorf("use either a dataset file or --session, not both")
		}
		opt, err := profRead.options()
		if err != nil {
			return err
		}

		var sess *session.Session
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			root, err := sessionsDir()
			if err != nil {
				return err
			}
			if sess, err = session.Find(root, profSession); err != nil {
				return err
			}
			if path = sess.DatasetPath(); path == "" {
				return fmt.Errorf("session '%s' has no dataset attached", sess.Name)
			}
		}

		rep, err := buildReport(path, opt, reportOptions(profSampleRows, profCorr, profNoRecs))
		if err != nil {
			return err
		}
		if sess != nil {
			rep.Name = sess.Name
			if err := recordSnapshot(cmd.Context(), sess, rep); err != nil {
				return err
			}
		}
		for _, w := range rep.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %s\n", w)
		}
		out, err := render(rep, format)
		if err != nil {
			return err
		}

		if profOutputPath != "" {
			if err := os.WriteFile(profOutputPath, out, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote profile to %s\n", profOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

// reportOptions resolves report flags against configured defaults. A negative
// sampleRows means "not given".
func reportOptions(sampleRows int, corr, noRecs bool) report.Options {
	ropt := report.DefaultOptions()
	if c := settings(); c.SampleRows > 0 {
		ropt.SampleRows = c.SampleRows
	}
	if sampleRows >= 0 {
		ropt.SampleRows = sampleRows
	}
	ropt.Correlations = corr
	ropt.Recommendations = !noRecs
	return ropt
}

// buildReport loads path and profiles it.
func buildReport(path string, opt ingest.Options, ropt report.Options) (*report.Report, error) {
	res, err := ingest.Load(path, opt)
	if err != nil {
		return nil, err
	}
	appLogger().Debug("profiling dataset",
		zap.String("path", path),
		zap.Int("rows", len(res.Dataset.Rows)),
		zap.Bool("truncated", res.Truncated),
	)
	return report.Build(res, ropt)
}

// recordSnapshot stores the profile in history and refreshes the session's
// recorded shape.
func recordSnapshot(ctx context.Context, sess *session.Session, rep *report.Report) error {
	if ctx == nil {
		ctx = context.Background()
	}
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()
	snap, err := h.SaveSnapshot(ctx, sess.ID, rep.Profile)
	if err != nil {
		return err
	}
	sess.Touch(rep.Profile.TotalRows, rep.Profile.TotalColumns)
	if err := sess.Save(); err != nil {
		return err
	}
	appLogger().Info("snapshot saved", zap.String("session", sess.ID), zap.String("snapshot", snap.ID))
	return nil
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profRead.register(profileCmd)
	profileCmd.Flags().StringVarP(&profOutputPath, "output", "o", "", "optional path to write the profile")
	profileCmd.Flags().StringVar(&profFormat, "format", "markdown", "output format: markdown|json|yaml|html")
	profileCmd.Flags().IntVar(&profSampleRows, "sample-rows", -1, "number of sample rows to include (default from config)")
	profileCmd.Flags().BoolVar(&profCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	profileCmd.Flags().BoolVar(&profNoRecs, "no-recommendations", false, "omit per-column recommendations")
	profileCmd.Flags().StringVarP(&profSession, "session", "s", "", "profile the dataset attached to this session and record a snapshot")
}
