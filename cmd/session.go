package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datasage-cli/internal/ingest"
	"github.com/KaramelBytes/datasage-cli/internal/session"
	"github.com/KaramelBytes/datasage-cli/internal/store"
)

var (
	sessFile        string
	sessDescription string
	sessHistoryMax  int
	sessRead        readFlags
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Manage analysis sessions (a named dataset plus its profile history)",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a session from a dataset file and record its first profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessFile == "" {
			return fmt.Errorf("--file is required")
		}
		if !ingest.Supported(sessFile) {
			return fmt.Errorf("%w: %s", ingest.ErrUnsupportedFormat, sessFile)
		}
		root, err := sessionsDir()
		if err != nil {
			return err
		}
		// Names must stay resolvable.
		if existing, err := session.Find(root, args[0]); err == nil {
			return fmt.Errorf("session '%s' already exists (%s)", existing.Name, existing.ID)
		} else if !errors.Is(err, session.ErrNotFound) {
			return err
		}
		opt, err := sessRead.options()
		if err != nil {
			return err
		}
		// Profile before copying so unreadable files never become sessions.
		rep, err := buildReport(sessFile, opt, reportOptions(0, false, true))
		if err != nil {
			return err
		}
		s := session.New(root, args[0], sessDescription)
		if err := s.AttachDataset(sessFile); err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			return err
		}
		if err := recordSnapshot(cmd.Context(), s, rep); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Session created: %s (%s)\n", s.Name, s.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "  %d rows x %d columns\n", s.Rows, s.Columns)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := sessionsDir()
		if err != nil {
			return err
		}
		list, err := session.List(root)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "(no sessions)")
			return nil
		}
		for _, s := range list {
			fmt.Fprintf(out, "- %s: %s (%d rows x %d columns, created %s)\n",
				s.ID, s.Name, s.Rows, s.Columns, s.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Show a session and its latest profile summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := findSession(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID: %s\n", s.ID)
		fmt.Fprintf(out, "Name: %s\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(out, "Description: %s\n", s.Description)
		}
		fmt.Fprintf(out, "Source: %s\n", s.SourcePath)
		fmt.Fprintf(out, "Shape: %d rows x %d columns\n", s.Rows, s.Columns)
		fmt.Fprintf(out, "Updated: %s\n", s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

		h, err := openHistory()
		if err != nil {
			return err
		}
		defer h.Close()
		snap, err := h.Latest(ctxOf(cmd), s.ID)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintln(out, "Latest profile: (none)")
			return nil
		}
		if err != nil {
			return err
		}
		p := snap.Profile
		fmt.Fprintf(out, "Latest profile: %s (%s)\n", snap.ID, snap.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  Missing cells: %d, duplicate rows: %d\n", p.MissingCells, p.DuplicateRows)
		for _, f := range p.Fields {
			fmt.Fprintf(out, "  - %s: %s (%s%% missing, %d unique)\n", f.Name, f.Type, f.MissingPercent, f.Unique)
		}
		return nil
	},
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history <session>",
	Short: "List recorded profile snapshots of a session, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := findSession(args[0])
		if err != nil {
			return err
		}
		h, err := openHistory()
		if err != nil {
			return err
		}
		defer h.Close()
		snaps, err := h.ListSnapshots(ctxOf(cmd), s.ID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(snaps) == 0 {
			fmt.Fprintln(out, "(no snapshots)")
			return nil
		}
		if sessHistoryMax > 0 && len(snaps) > sessHistoryMax {
			snaps = snaps[:sessHistoryMax]
		}
		for _, sn := range snaps {
			fmt.Fprintf(out, "- %s  %s  rows=%d columns=%d missing=%d\n",
				sn.CreatedAt.Local().Format("2006-01-02 15:04:05"), sn.ID, sn.Rows, sn.Columns, sn.MissingCells)
		}
		return nil
	},
}

var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh <session>",
	Short: "Re-profile a session's dataset and record a new snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := findSession(args[0])
		if err != nil {
			return err
		}
		if sessFile != "" {
			if err := s.AttachDataset(sessFile); err != nil {
				return err
			}
		}
		path := s.DatasetPath()
		if path == "" {
			return fmt.Errorf("session '%s' has no dataset attached", s.Name)
		}
		opt, err := sessRead.options()
		if err != nil {
			return err
		}
		rep, err := buildReport(path, opt, reportOptions(0, false, true))
		if err != nil {
			return err
		}
		if err := recordSnapshot(cmd.Context(), s, rep); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Refreshed %s: %d rows x %d columns\n", s.Name, s.Rows, s.Columns)
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session>",
	Short: "Delete a session, its dataset copy and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := findSession(args[0])
		if err != nil {
			return err
		}
		h, err := openHistory()
		if err != nil {
			return err
		}
		defer h.Close()
		n, err := h.DeleteSession(ctxOf(cmd), s.ID)
		if err != nil {
			return err
		}
		if err := s.Delete(); err != nil {
			return err
		}
		appLogger().Info("session deleted", zap.String("session", s.ID), zap.Int64("snapshots", n))
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted session %s (%d snapshots)\n", s.Name, n)
		return nil
	},
}

func findSession(ref string) (*session.Session, error) {
	root, err := sessionsDir()
	if err != nil {
		return nil, err
	}
	return session.Find(root, ref)
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionCreateCmd, sessionListCmd, sessionShowCmd, sessionHistoryCmd, sessionRefreshCmd, sessionDeleteCmd)

	sessionCreateCmd.Flags().StringVarP(&sessFile, "file", "f", "", "dataset file to attach")
	sessionCreateCmd.Flags().StringVarP(&sessDescription, "desc", "d", "", "session description")
	sessRead.register(sessionCreateCmd)

	sessionRefreshCmd.Flags().StringVarP(&sessFile, "file", "f", "", "replace the attached dataset with this file first")
	sessRead.register(sessionRefreshCmd)

	sessionHistoryCmd.Flags().IntVarP(&sessHistoryMax, "limit", "n", 0, "show at most this many snapshots (0 = all)")
}
