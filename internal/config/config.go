// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, the process exits.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	defaultPort           = "8083"
	defaultGRPCPort       = "9093"
	defaultSchedule       = "0 2 * * *"
	defaultStaleAfterDays = 30
	defaultConcurrency    = 4
	defaultHTTPTimeout    = 15 * time.Second
	defaultUpstreamRPS    = 5.0
	defaultLockTTL        = 30 * time.Minute
	defaultSourcesFile    = "sources.yml"
	defaultLogLevel       = "info"
)

// Config holds all runtime configuration for the aggregator service.
type Config struct {
	Port        string `validate:"required,numeric"`
	GRPCPort    string `validate:"required,numeric"`
	DatabaseURL string `validate:"required"`
	// RedisURL is optional; without it the sync lock is process-local and no
	// events are published.
	RedisURL string

	SyncSchedule   string `validate:"required"`
	SyncOnStartup  bool
	StaleAfterDays int           `validate:"min=1"`
	Concurrency    int           `validate:"min=1,max=64"`
	HTTPTimeout    time.Duration `validate:"gt=0"`
	UpstreamRPS    float64       `validate:"gte=0"`
	LockTTL        time.Duration `validate:"gt=0"`

	SourcesFile    string
	MigrateOnStart bool
	LogLevel       string `validate:"oneof=debug info warn error"`
	Development    bool
}

// StaleAfter is the staleness window as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterDays) * 24 * time.Hour
}

// LoadDotEnv loads .env.local then .env into the process environment. Values
// already set in the environment win; missing files are ignored.
func LoadDotEnv() {
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var errs []error
	cfg := &Config{
		Port:           envString("AGGREGATOR_PORT", defaultPort),
		GRPCPort:       envString("AGGREGATOR_GRPC_PORT", defaultGRPCPort),
		DatabaseURL:    dbURL,
		RedisURL:       os.Getenv("REDIS_URL"),
		SyncSchedule:   envString("SYNC_SCHEDULE", ""),
		SourcesFile:    envString("SOURCES_FILE", defaultSourcesFile),
		LogLevel:       strings.ToLower(envString("LOG_LEVEL", defaultLogLevel)),
		SyncOnStartup:  envBool("SYNC_ON_STARTUP", false, &errs),
		MigrateOnStart: envBool("MIGRATE_ON_START", true, &errs),
		Development:    envBool("LOG_DEVELOPMENT", false, &errs),
		StaleAfterDays: envInt("STALE_AFTER_DAYS", defaultStaleAfterDays, &errs),
		Concurrency:    envInt("SYNC_CONCURRENCY", defaultConcurrency, &errs),
		HTTPTimeout:    envDuration("HTTP_TIMEOUT", defaultHTTPTimeout, &errs),
		UpstreamRPS:    envFloat("UPSTREAM_RPS", defaultUpstreamRPS, &errs),
		LockTTL:        envDuration("SYNC_LOCK_TTL", defaultLockTTL, &errs),
	}

	// SCRAPE_INTERVAL_HOURS is the older interval-style setting; SYNC_SCHEDULE wins.
	if cfg.SyncSchedule == "" {
		cfg.SyncSchedule = defaultSchedule
		if s := os.Getenv("SCRAPE_INTERVAL_HOURS"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 {
				errs = append(errs, fmt.Errorf("SCRAPE_INTERVAL_HOURS must be a positive integer, got %q", s))
			} else {
				cfg.SyncSchedule = fmt.Sprintf("@every %dh", v)
			}
		}
	}
	if _, err := cron.ParseStandard(cfg.SyncSchedule); err != nil {
		errs = append(errs, fmt.Errorf("SYNC_SCHEDULE %q is not a valid cron expression: %w", cfg.SyncSchedule, err))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int, errs *[]error) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, s))
		return def
	}
	return v
}

func envFloat(key string, def float64, errs *[]error) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a number, got %q", key, s))
		return def
	}
	return v
}

func envBool(key string, def bool, errs *[]error) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", key, s))
		return def
	}
	return v
}

func envDuration(key string, def time.Duration, errs *[]error) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration like 15s, got %q", key, s))
		return def
	}
	return v
}
