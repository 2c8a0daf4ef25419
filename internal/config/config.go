package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Values come from defaults, an optional .env file and the environment,
// with the environment taking precedence.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Storage
	StoreDriver     string // sqlite | memory
	DatabasePath    string
	DatabaseLogMode bool

	// Ledger
	LocalUserID   string
	SweepInterval time.Duration

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Hijri calendar table source
	HijriTableURL   string
	HijriTableYears []int

	// Auth; empty disables bearer auth
	AuthSecret string
}

var defaults = map[string]any{
	"PORT":                        8080,
	"LOG_LEVEL":                   "info",
	"STORE_DRIVER":                "sqlite",
	"DATABASE_PATH":               "ledger.db",
	"DATABASE_LOG_MODE":           false,
	"LOCAL_USER_ID":               "local",
	"SWEEP_INTERVAL":              "1h",
	"HTTP_TIMEOUT":                "10s",
	"MAX_RETRIES":                 3,
	"INITIAL_BACKOFF":             "100ms",
	"MAX_CONCURRENCY":             50,
	"CACHE_TTL":                   "5m",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"HIJRI_TABLE_URL":             "",
	"HIJRI_TABLE_YEARS":           "",
	"AUTH_SECRET":                 "",
}

// Load reads configuration. envFile names an optional dotenv file; a
// missing file is not an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read env file: %w", err)
			}
		}
	}

	years, err := parseYears(v.GetString("HIJRI_TABLE_YEARS"))
	if err != nil {
		return nil, err
	}

	c := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		StoreDriver:     strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabasePath:    v.GetString("DATABASE_PATH"),
		DatabaseLogMode: v.GetBool("DATABASE_LOG_MODE"),

		LocalUserID:   v.GetString("LOCAL_USER_ID"),
		SweepInterval: v.GetDuration("SWEEP_INTERVAL"),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		MaxRetries:     v.GetInt("MAX_RETRIES"),
		InitialBackoff: v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		CacheTTL: v.GetDuration("CACHE_TTL"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		HijriTableURL:   v.GetString("HIJRI_TABLE_URL"),
		HijriTableYears: years,

		AuthSecret: v.GetString("AUTH_SECRET"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations the binaries cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("config: DATABASE_PATH is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q (want sqlite or memory)", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if c.LocalUserID == "" {
		return fmt.Errorf("config: LOCAL_USER_ID must not be empty")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("config: SWEEP_INTERVAL must not be negative, got %s", c.SweepInterval)
	}
	return nil
}

// parseYears reads a comma separated list such as "2025,2026".
func parseYears(raw string) ([]int, error) {
	var years []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("config: invalid HIJRI_TABLE_YEARS entry %q", part)
		}
		years = append(years, y)
	}
	return years, nil
}
