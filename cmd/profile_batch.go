package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/datasage-cli/internal/utils"
)

var (
	pbRead       readFlags
	pbOutDir     string
	pbFormat     string
	pbSampleRows int
	pbCorr       bool
	pbNoRecs     bool
	pbJobs       int
	pbQuiet      bool
)

var profileBatchCmd = &cobra.Command{
	Use:   "profile-batch <files...>",
	Short: "Profile multiple dataset files concurrently with progress",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		format, err := checkFormat(pbFormat)
		if err != nil {
			return err
		}
		opt, err := pbRead.options()
		if err != nil {
			return err
		}
		ropt := reportOptions(pbSampleRows, pbCorr, pbNoRecs)

		var targets []string
		if pbOutDir != "" {
			if err := utils.EnsureDir(pbOutDir); err != nil {
				return fmt.Errorf("ensure out dir: %w", err)
			}
			targets = outputNames(pbOutDir, files, formatExt[format])
		}

		out := cmd.OutOrStdout()
		rendered := make([][]byte, len(files))
		var (
			mu   sync.Mutex
			done int
		)
		g := new(errgroup.Group)
		g.SetLimit(max(pbJobs, 1))
		for i, path := range files {
			i, path := i, path
			g.Go(func() error {
				rep, err := buildReport(path, opt, ropt)
				if err != nil {
					return fmt.Errorf("%s: %w", filepath.Base(path), err)
				}
				b, err := render(rep, format)
				if err != nil {
					return fmt.Errorf("%s: %w", filepath.Base(path), err)
				}
				if targets != nil {
					if err := os.WriteFile(targets[i], b, 0o644); err != nil {
						return fmt.Errorf("write %s: %w", targets[i], err)
					}
				} else {
					rendered[i] = b
				}
				mu.Lock()
				done++
				if !pbQuiet {
					fmt.Fprintf(out, "[%d/%d] Profiled %s\n", done, len(files), filepath.Base(path))
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if targets != nil {
			if !pbQuiet {
				fmt.Fprintf(out, "✓ Wrote %d %s to %s\n", len(targets), utils.Plural(len(targets), "profile", "profiles"), pbOutDir)
			}
			return nil
		}
		for _, b := range rendered {
			fmt.Fprintln(out, string(b))
		}
		return nil
	},
}

// expandInputs resolves globs and literal paths into a sorted, de-duplicated
// file list.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

// outputNames assigns each input a "<base>.profile.<ext>" file in dir. Inputs
// sharing a base name, or names already on disk, get a "__N" suffix.
func outputNames(dir string, files []string, ext string) []string {
	taken := map[string]bool{}
	names := make([]string, len(files))
	for i, f := range files {
		base := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		cand := filepath.Join(dir, base+".profile."+ext)
		for idx := 2; ; idx++ {
			if _, err := os.Stat(cand); !taken[cand] && os.IsNotExist(err) {
				break
			}
			cand = filepath.Join(dir, fmt.Sprintf("%s__%d.profile.%s", base, idx, ext))
		}
		taken[cand] = true
		names[i] = cand
	}
	return names
}

func init() {
	rootCmd.AddCommand(profileBatchCmd)
	pbRead.register(profileBatchCmd)
	profileBatchCmd.Flags().StringVar(&pbOutDir, "out-dir", "", "directory to write one profile per input (default: stdout)")
	profileBatchCmd.Flags().StringVar(&pbFormat, "format", "markdown", "output format: markdown|json|yaml|html")
	profileBatchCmd.Flags().IntVar(&pbSampleRows, "sample-rows", -1, "number of sample rows to include (default from config)")
	profileBatchCmd.Flags().BoolVar(&pbCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	profileBatchCmd.Flags().BoolVar(&pbNoRecs, "no-recommendations", false, "omit per-column recommendations")
	profileBatchCmd.Flags().IntVarP(&pbJobs, "jobs", "j", 4, "number of files to profile concurrently")
	profileBatchCmd.Flags().BoolVar(&pbQuiet, "quiet", false, "suppress progress and non-essential output")
}
