package config

// Environment variables read by parseEnv.
const (
	EnvAPIURL   = "IMGKEEPER_API_URL"
	EnvDataDir  = "IMGKEEPER_DATA_DIR"
	EnvLogLevel = "IMGKEEPER_LOG_LEVEL"
)

// parseEnv overlays non-empty environment values.
func parseEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := getenv(EnvAPIURL); v != "" {
		cfg.APIBaseURL = v
	}
	if v := getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}
