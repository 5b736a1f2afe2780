// Package config loads and validates application configuration from
// environment variables (spec section 6, "Environment" and section 9,
// "process-wide configuration").
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration, populated once at startup by
// Load and passed explicitly to constructors rather than read from globals.
type Config struct {
	// HTTP server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Auth.
	AuthSecret string // Shared HMAC secret for bearer-token signing (spec section 6).

	// Database settings (spec section 6: DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME).
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// CORS settings.
	CORSAllowedOrigins []string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible
// defaults. Returns an error if any environment variable contains an
// unparseable value.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		AuthSecret:   envStr("AUTH_SECRET", ""),
		DBHost:       envStr("DB_HOST", "localhost"),
		DBUser:       envStr("DB_USER", "postgres"),
		DBPassword:   envStr("DB_PASSWORD", "postgres"),
		DBName:       envStr("DB_NAME", "agent_trace"),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "agenttrace"),
		LogLevel:     envStr("AGENTTRACE_LOG_LEVEL", "info"),

		CORSAllowedOrigins: envStrSlice("AGENTTRACE_CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	cfg.Port, errs = collectInt(errs, "PORT", 8080)
	cfg.DBPort, errs = collectInt(errs, "DB_PORT", 5432)

	var maxReqBody int
	maxReqBody, errs = collectInt(errs, "AGENTTRACE_MAX_REQUEST_BODY_BYTES", 4*1024*1024)
	cfg.MaxRequestBodyBytes = int64(maxReqBody)

	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	cfg.ReadTimeout, errs = collectDuration(errs, "AGENTTRACE_READ_TIMEOUT", 30*time.Second)
	cfg.WriteTimeout, errs = collectDuration(errs, "AGENTTRACE_WRITE_TIMEOUT", 30*time.Second)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DatabaseURL assembles a PostgreSQL connection string from the individual
// DB_* fields, mirroring the original implementation's _build_database_url.
func (c Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectBool parses a bool env var, appending any error to the accumulator.
func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	var errs []error

	if c.AuthSecret == "" {
		errs = append(errs, errors.New("config: AUTH_SECRET is required"))
	}
	if c.DBHost == "" {
		errs = append(errs, errors.New("config: DB_HOST is required"))
	}
	if c.DBName == "" {
		errs = append(errs, errors.New("config: DB_NAME is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.New("config: PORT must be between 1 and 65535"))
	}
	if c.DBPort < 1 || c.DBPort > 65535 {
		errs = append(errs, errors.New("config: DB_PORT must be between 1 and 65535"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("config: AGENTTRACE_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("config: AGENTTRACE_READ_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("config: AGENTTRACE_WRITE_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

// envStrSlice reads a comma-separated env var into a string slice.
// Returns fallback if the env var is empty or unset.
func envStrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
