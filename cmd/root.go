package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datasage-cli/internal/backend"
	cfgpkg "github.com/KaramelBytes/datasage-cli/internal/config"
	"github.com/KaramelBytes/datasage-cli/internal/explorer"
	"github.com/KaramelBytes/datasage-cli/internal/logging"
	"github.com/KaramelBytes/datasage-cli/internal/store"
	"github.com/KaramelBytes/datasage-cli/internal/utils"
)

var (
	// Global flags
	cfgFile        string
	debug          bool
	flagBackendURL string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration and logger
	cfg    *cfgpkg.Global
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "datasage",
	Short: "DataSage CLI: profile tabular datasets and explore their columns",
	Long: `DataSage profiles CSV, TSV, XLSX and JSON datasets: inferred column types,
summary statistics, histograms, correlations and data-quality recommendations.
Column queries go to a DataSage analysis backend when one is configured and
fall back to the local engine otherwise.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.datasage/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagBackendURL, "backend-url", "", "analysis backend base URL (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		if c, err = cfgpkg.Defaults(); err != nil {
			return
		}
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("backend-url") {
		cfg.BackendURL = flagBackendURL
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}

	l, err := logging.New(cfg.LogLevel, debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v; logging disabled\n", err)
		l = zap.NewNop()
	}
	logger = l
}

// settings returns the loaded configuration, loading it on first use when
// the command tree runs without cobra's initializer (as in tests).
func settings() *cfgpkg.Global {
	if cfg == nil {
		loadConfig()
	}
	if cfg == nil {
		cfg = &cfgpkg.Global{}
	}
	return cfg
}

func appLogger() *zap.Logger {
	return logging.OrNop(logger)
}

// newExplorer wires the configured backend, if any, into an Explorer.
func newExplorer() *explorer.Explorer {
	c := settings()
	if c.BackendURL == "" {
		return explorer.New(nil, appLogger())
	}
	client := backend.NewClient(
		c.BackendURL,
		time.Duration(c.HTTPTimeoutSec)*time.Second,
		c.RetryMaxAttempts,
		time.Duration(c.RetryBaseDelayMs)*time.Millisecond,
		time.Duration(c.RetryMaxDelayMs)*time.Millisecond,
	)
	return explorer.New(client, appLogger())
}

// sessionsDir returns the configured sessions root, creating it if needed.
func sessionsDir() (string, error) {
	dir := settings().SessionsDir
	if dir == "" {
		base, err := cfgpkg.Dir()
		if err != nil {
			return "", err
		}
		dir = base + string(os.PathSeparator) + "sessions"
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("ensure sessions dir: %w", err)
	}
	return dir, nil
}

// openHistory opens the snapshot database named in the configuration.
func openHistory() (*store.Store, error) {
	path := settings().HistoryDB
	if path == "" {
		base, err := cfgpkg.Dir()
		if err != nil {
			return nil, err
		}
		path = base + string(os.PathSeparator) + "history.db"
	}
	return store.Open(path)
}
