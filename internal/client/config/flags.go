package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/imgkeeper/internal/flagx"
)

// FlagNames lists every flag parseFlags understands, without dashes. The
// CLI declares the same names so its own parser accepts them.
var FlagNames = []string{"a", "api-url", "d", "data-dir", "i", "interval", "log-level"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a, --api-url string    API base URL
//	-d, --data-dir string   local data directory
//	-i, --interval int      background refresh interval (in seconds, 0 disables)
//	--log-level string      debug, info, warn or error
//
// args is filtered with flagx.FilterArgs first, so flags and positional
// arguments that belong to sub-commands are ignored.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, FlagNames)

	fs := flag.NewFlagSet("imgkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "API base URL")
	fs.StringVar(&cfg.APIBaseURL, "api-url", cfg.APIBaseURL, "API base URL")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "local data directory")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "local data directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	seconds := int(cfg.RefreshInterval / time.Second)
	fs.IntVar(&seconds, "i", seconds, "refresh interval (in seconds)")
	fs.IntVar(&seconds, "interval", seconds, "refresh interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	intervalSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" || f.Name == "interval" {
			intervalSet = true
		}
	})
	if intervalSet {
		cfg.RefreshInterval = time.Duration(seconds) * time.Second
	}
	return nil
}
