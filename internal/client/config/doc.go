// Package config loads runtime configuration for the imgkeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or --config: JSON, or YAML when
//     the name ends in .yaml/.yml.
//  3. Environment: IMGKEEPER_API_URL, IMGKEEPER_DATA_DIR, IMGKEEPER_LOG_LEVEL.
//  4. Command-line flags, which override everything above.
//
// Supported flags
//
//	-a, --api-url string    API base URL
//	-d, --data-dir string   directory of the local session database
//	-i, --interval int      background refresh interval (seconds, 0 disables)
//	--log-level string      debug, info, warn or error
//
// # File schema
//
// Durations use timex.Duration, so values can be strings like "30s" or
// integer nanoseconds:
//
//	{
//	  "api_url": "https://img.example.com",
//	  "data_dir": "/home/me/.imgkeeper",
//	  "refresh_interval": "30s",
//	  "max_parallel_url_fetches": 4,
//	  "watch_debounce": "1s",
//	  "log_level": "debug"
//	}
//
// Keys missing from the file keep their earlier value.
package config
