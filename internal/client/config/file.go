package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/imgkeeper/internal/flagx"
	"github.com/dmitrijs2005/imgkeeper/internal/timex"
)

// FileConfig is a DTO used exclusively for config file decoding. Pointer
// fields tell "absent" from "zero", so a file only overrides what it sets.
// Durations use timex.Duration and may be written as "3s" or as integer
// nanoseconds.
type FileConfig struct {
	APIBaseURL            *string         `json:"api_url" yaml:"api_url"`
	DataDir               *string         `json:"data_dir" yaml:"data_dir"`
	DBFile                *string         `json:"db_file" yaml:"db_file"`
	RefreshInterval       *timex.Duration `json:"refresh_interval" yaml:"refresh_interval"`
	MaxParallelURLFetches *int            `json:"max_parallel_url_fetches" yaml:"max_parallel_url_fetches"`
	WatchDebounce         *timex.Duration `json:"watch_debounce" yaml:"watch_debounce"`
	LogLevel              *string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays cfg with the file named by -c/--config, if any. The
// format follows the extension: .yaml and .yml are YAML, anything else JSON.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc FileConfig) apply(cfg *Config) {
	if fc.APIBaseURL != nil {
		cfg.APIBaseURL = *fc.APIBaseURL
	}
	if fc.DataDir != nil {
		cfg.DataDir = *fc.DataDir
	}
	if fc.DBFile != nil {
		cfg.DBFile = *fc.DBFile
	}
	if fc.RefreshInterval != nil {
		cfg.RefreshInterval = fc.RefreshInterval.Duration
	}
	if fc.MaxParallelURLFetches != nil {
		cfg.MaxParallelURLFetches = *fc.MaxParallelURLFetches
	}
	if fc.WatchDebounce != nil {
		cfg.WatchDebounce = fc.WatchDebounce.Duration
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
}
