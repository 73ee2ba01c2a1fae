package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Analysis backend; empty disables it and every query runs locally.
	BackendURL string `mapstructure:"backend_url" yaml:"backend_url"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	SessionsDir string `mapstructure:"sessions_dir" yaml:"sessions_dir"`
	HistoryDB   string `mapstructure:"history_db" yaml:"history_db"`

	// Ingestion and report defaults
	MaxRows    int `mapstructure:"max_rows" yaml:"max_rows"`
	SampleRows int `mapstructure:"sample_rows" yaml:"sample_rows"`

	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"backend_url",
	"http_timeout_sec",
	"retry_max_attempts",
	"retry_base_delay_ms",
	"retry_max_delay_ms",
	"sessions_dir",
	"history_db",
	"max_rows",
	"sample_rows",
	"listen_addr",
	"log_level",
}

// Dir returns ~/.datasage.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".datasage"), nil
}

// Defaults returns the built-in configuration.
func Defaults() (*Global, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return &Global{
		HTTPTimeoutSec:   30,
		RetryMaxAttempts: 3,
		RetryBaseDelayMs: 500,
		RetryMaxDelayMs:  4000,
		SessionsDir:      filepath.Join(dir, "sessions"),
		HistoryDB:        filepath.Join(dir, "history.db"),
		MaxRows:          100000,
		SampleRows:       5,
		ListenAddr:       "127.0.0.1:5000",
		LogLevel:         "info",
	}, nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.datasage/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. A .env file in the working
// directory is loaded into the environment first; it never overrides
// variables that are already set.
func Load(cfgFile string) (*Global, error) {
	_ = godotenv.Load()

	def, err := Defaults()
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetEnvPrefix("DATASAGE")
	v.AutomaticEnv()

	v.SetDefault("backend_url", def.BackendURL)
	v.SetDefault("http_timeout_sec", def.HTTPTimeoutSec)
	v.SetDefault("retry_max_attempts", def.RetryMaxAttempts)
	v.SetDefault("retry_base_delay_ms", def.RetryBaseDelayMs)
	v.SetDefault("retry_max_delay_ms", def.RetryMaxDelayMs)
	v.SetDefault("sessions_dir", def.SessionsDir)
	v.SetDefault("history_db", def.HistoryDB)
	v.SetDefault("max_rows", def.MaxRows)
	v.SetDefault("sample_rows", def.SampleRows)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("log_level", def.LogLevel)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	c.SessionsDir = expandHome(c.SessionsDir)
	c.HistoryDB = expandHome(c.HistoryDB)
	return &c, nil
}

// Set assigns a key from its textual form.
func (c *Global) Set(key, value string) error {
	value = strings.TrimSpace(value)
	ints := map[string]*int{
		"http_timeout_sec":    &c.HTTPTimeoutSec,
		"retry_max_attempts":  &c.RetryMaxAttempts,
		"retry_base_delay_ms": &c.RetryBaseDelayMs,
		"retry_max_delay_ms":  &c.RetryMaxDelayMs,
		"max_rows":            &c.MaxRows,
		"sample_rows":         &c.SampleRows,
	}
	if p, ok := ints[key]; ok {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, value)
		}
		*p = n
		return nil
	}
	switch key {
	case "backend_url":
		c.BackendURL = strings.TrimRight(value, "/")
	case "sessions_dir":
		c.SessionsDir = expandHome(value)
	case "history_db":
		c.HistoryDB = expandHome(value)
	case "listen_addr":
		c.ListenAddr = value
	case "log_level":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(value)
		default:
			return fmt.Errorf("log_level must be debug, info, warn or error")
		}
	default:
		return fmt.Errorf("unknown key: %s (valid: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

// Get returns the textual form of a key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "backend_url":
		return c.BackendURL, nil
	case "http_timeout_sec":
		return fmt.Sprint(c.HTTPTimeoutSec), nil
	case "retry_max_attempts":
		return fmt.Sprint(c.RetryMaxAttempts), nil
	case "retry_base_delay_ms":
		return fmt.Sprint(c.RetryBaseDelayMs), nil
	case "retry_max_delay_ms":
		return fmt.Sprint(c.RetryMaxDelayMs), nil
	case "sessions_dir":
		return c.SessionsDir, nil
	case "history_db":
		return c.HistoryDB, nil
	case "max_rows":
		return fmt.Sprint(c.MaxRows), nil
	case "sample_rows":
		return fmt.Sprint(c.SampleRows), nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "log_level":
		return c.LogLevel, nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
