// Package config loads runtime settings from the environment and the sheet
// profile from YAML.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SourceKind selects where raw tables come from.
type SourceKind string

const (
	SourceSheets   SourceKind = "sheets"
	SourceWorkbook SourceKind = "xlsx"
	SourceDump     SourceKind = "json"
)

// Config holds the process configuration.
type Config struct {
	ListenAddr     string
	MetricsAddr    string   // empty disables the metrics server
	AllowedOrigins []string // extra WebSocket origins, "*" for any

	RefreshInterval time.Duration
	FetchTimeout    time.Duration

	Source        SourceKind
	SourcePath    string // workbook file or dump directory
	SheetsAPIKey  string
	SheetsToken   string // OAuth2 bearer token, used instead of the API key when set
	SheetsBaseURL string
	DNSRefresh    time.Duration

	ProfilePath string

	RedisURL string // empty disables the snapshot cache
	CacheTTL time.Duration

	RunLogPath      string // empty disables the run log
	RunLogRetention time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from PULSE_FLEET_* environment variables.
// A .env file is loaded if present but not required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	duration := func(key string, fallback time.Duration) time.Duration {
		d, err := envOrDefaultDuration(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}

	cfg := &Config{
		ListenAddr:      envOrDefault("PULSE_FLEET_LISTEN", ":8080"),
		MetricsAddr:     envOrDefault("PULSE_FLEET_METRICS_ADDR", ":9091"),
		RefreshInterval: duration("PULSE_FLEET_REFRESH_INTERVAL", 5*time.Minute),
		FetchTimeout:    duration("PULSE_FLEET_FETCH_TIMEOUT", 30*time.Second),
		Source:          SourceKind(strings.ToLower(envOrDefault("PULSE_FLEET_SOURCE", string(SourceSheets)))),
		SourcePath:      strings.TrimSpace(os.Getenv("PULSE_FLEET_SOURCE_PATH")),
		SheetsAPIKey:    strings.TrimSpace(os.Getenv("PULSE_FLEET_SHEETS_API_KEY")),
		SheetsToken:     strings.TrimSpace(os.Getenv("PULSE_FLEET_SHEETS_TOKEN")),
		SheetsBaseURL:   envOrDefault("PULSE_FLEET_SHEETS_BASE_URL", "https://sheets.googleapis.com"),
		DNSRefresh:      duration("PULSE_FLEET_DNS_REFRESH", 5*time.Minute),
		ProfilePath:     strings.TrimSpace(os.Getenv("PULSE_FLEET_PROFILE")),
		RedisURL:        strings.TrimSpace(os.Getenv("PULSE_FLEET_REDIS_URL")),
		CacheTTL:        duration("PULSE_FLEET_CACHE_TTL", time.Hour),
		RunLogPath:      envOrDefault("PULSE_FLEET_RUNLOG_PATH", "pulse-fleet.db"),
		RunLogRetention: duration("PULSE_FLEET_RUNLOG_RETENTION", 30*24*time.Hour),
		LogLevel:        envOrDefault("PULSE_FLEET_LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("PULSE_FLEET_LOG_FORMAT", "auto"),
	}
	for _, origin := range strings.Split(os.Getenv("PULSE_FLEET_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}
	if v, ok := os.LookupEnv("PULSE_FLEET_METRICS_ADDR"); ok && strings.TrimSpace(v) == "" {
		cfg.MetricsAddr = ""
	}
	if v, ok := os.LookupEnv("PULSE_FLEET_RUNLOG_PATH"); ok && strings.TrimSpace(v) == "" {
		cfg.RunLogPath = ""
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	if c.RefreshInterval <= 0 {
		problems = append(problems, "PULSE_FLEET_REFRESH_INTERVAL must be greater than 0")
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "PULSE_FLEET_FETCH_TIMEOUT must be greater than 0")
	}
	if c.CacheTTL <= 0 {
		problems = append(problems, "PULSE_FLEET_CACHE_TTL must be greater than 0")
	}

	switch c.Source {
	case SourceSheets:
		if c.SheetsAPIKey == "" && c.SheetsToken == "" {
			problems = append(problems, "PULSE_FLEET_SHEETS_API_KEY or PULSE_FLEET_SHEETS_TOKEN is required for the sheets source")
		}
		if u, err := url.Parse(c.SheetsBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, "PULSE_FLEET_SHEETS_BASE_URL must be an http(s) URL with a host")
		}
	case SourceWorkbook, SourceDump:
		if c.SourcePath == "" {
			problems = append(problems, fmt.Sprintf("PULSE_FLEET_SOURCE_PATH is required for the %s source", c.Source))
		}
	default:
		problems = append(problems, fmt.Sprintf("PULSE_FLEET_SOURCE must be one of sheets, xlsx, json, got %q", c.Source))
	}

	if c.RedisURL != "" {
		if _, err := url.Parse(c.RedisURL); err != nil {
			problems = append(problems, "PULSE_FLEET_REDIS_URL must be a valid URL")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	// bare integers are seconds
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 5m or 300, got %q", key, v)
	}
	return time.Duration(n) * time.Second, nil
}
