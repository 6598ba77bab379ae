package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the imgkeeper CLI.
//
// Fields:
//   - APIBaseURL: root URL of the image-hosting API.
//   - DataDir: directory holding the local session database.
//   - DBFile: database file name inside DataDir.
//   - RefreshInterval: background refresh period of the images view; 0 disables it.
//   - MaxParallelURLFetches: bound on concurrent signed-URL requests during a refresh.
//   - WatchDebounce: quiet period before a watched file is uploaded.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	APIBaseURL            string
	DataDir               string
	DBFile                string
	RefreshInterval       time.Duration
	MaxParallelURLFetches int
	WatchDebounce         time.Duration
	LogLevel              string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://localhost:8000"
	c.DataDir = ".imgkeeper"
	c.DBFile = "session.db"
	c.RefreshInterval = 60 * time.Second
	c.MaxParallelURLFetches = 8
	c.WatchDebounce = 500 * time.Millisecond
	c.LogLevel = "info"
}

// DBPath is the session database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.DBFile)
}

func (c *Config) Validate() error {
	var errs []error
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("api url is empty"))
	}
	if c.DataDir == "" || c.DBFile == "" {
		errs = append(errs, errors.New("data dir and db file must be set"))
	}
	if c.RefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("refresh interval %s is negative", c.RefreshInterval))
	}
	if c.WatchDebounce < 0 {
		errs = append(errs, fmt.Errorf("watch debounce %s is negative", c.WatchDebounce))
	}
	if c.MaxParallelURLFetches <= 0 {
		errs = append(errs, fmt.Errorf("max parallel url fetches must be positive, got %d", c.MaxParallelURLFetches))
	}
	return errors.Join(errs...)
}

// Load builds a Config from defaults, then the config file named by
// -c/--config in args, then the environment, then flags in args. Later
// sources take precedence over earlier ones.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	parseEnv(cfg, getenv)
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
