// Package config provides configuration loading and validation for the
// ranking engine services. It uses koanf to merge environment variables
// with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server and grader.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (classification + threshold caches)
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// Weight calibration file (optional JSON overrides)
	CalibrationPath string `koanf:"calibration_path"`

	// Cache TTLs
	ClassificationTTLMinutes int `koanf:"classification_ttl_minutes"`
	ThresholdTTLMinutes      int `koanf:"threshold_ttl_minutes"`

	// Grade recompute job
	GradeRecomputeIntervalMinutes int `koanf:"grade_recompute_interval_minutes"`
	GradeRecomputeTimeoutSeconds  int `koanf:"grade_recompute_timeout_seconds"`

	// Tracing (disabled when endpoint is empty)
	OTLPEndpoint string `koanf:"otlp_endpoint"`

	// Browser origins allowed to call the API (empty disables CORS)
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrInvalidRedisDB     = errors.New("REDIS_DB must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                          = 8080
	DefaultEnv                           = "development"
	DefaultRedisAddr                     = "localhost:6379"
	DefaultClassificationTTLMinutes      = 60
	DefaultThresholdTTLMinutes           = 5
	DefaultGradeRecomputeIntervalMinutes = 5
	DefaultGradeRecomputeTimeoutSeconds  = 120
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try UNILIST_PORT first, then PORT
	port, portErr := getEnvIntOrDefaultMulti([]string{"UNILIST_PORT", "PORT"}, k.Int("port"), DefaultPort, ErrInvalidPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	redisDB, redisDBErr := getEnvIntOrDefaultMulti([]string{"REDIS_DB"}, k.Int("redis_db"), 0, ErrInvalidRedisDB)
	if redisDBErr != nil {
		loadErrs = append(loadErrs, redisDBErr)
	}

	classificationTTL, err := getEnvIntOrDefaultMulti([]string{"CLASSIFICATION_TTL_MINUTES"},
		k.Int("classification_ttl_minutes"), DefaultClassificationTTLMinutes, nil)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	thresholdTTL, err := getEnvIntOrDefaultMulti([]string{"THRESHOLD_TTL_MINUTES"},
		k.Int("threshold_ttl_minutes"), DefaultThresholdTTLMinutes, nil)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	recomputeInterval, err := getEnvIntOrDefaultMulti([]string{"GRADE_RECOMPUTE_INTERVAL_MINUTES"},
		k.Int("grade_recompute_interval_minutes"), DefaultGradeRecomputeIntervalMinutes, nil)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	recomputeTimeout, err := getEnvIntOrDefaultMulti([]string{"GRADE_RECOMPUTE_TIMEOUT_SECONDS"},
		k.Int("grade_recompute_timeout_seconds"), DefaultGradeRecomputeTimeoutSeconds, nil)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                          port,
		Env:                           getEnvOrDefaultMulti([]string{"UNILIST_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:                   getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisAddr:                     getEnvOrDefaultMulti([]string{"REDIS_ADDR"}, k.String("redis_addr"), DefaultRedisAddr),
		RedisPassword:                 getEnvOrKoanf("REDIS_PASSWORD", k, "redis_password"),
		RedisDB:                       redisDB,
		CalibrationPath:               getEnvOrKoanf("CALIBRATION_PATH", k, "calibration_path"),
		ClassificationTTLMinutes:      classificationTTL,
		ThresholdTTLMinutes:           thresholdTTL,
		GradeRecomputeIntervalMinutes: recomputeInterval,
		GradeRecomputeTimeoutSeconds:  recomputeTimeout,
		OTLPEndpoint:                  getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		CORSAllowedOrigins:            getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvListOrKoanf returns the environment variable split on commas if set,
// otherwise the koanf string slice. Blank entries are dropped.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	raw := k.Strings(koanfKey)
	if val := os.Getenv(envKey); val != "" {
		raw = strings.Split(val, ",")
	}
	var out []string
	for _, entry := range raw {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
// Note: a zero value from a YAML file falls back to the default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int, sentinel error) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				if sentinel != nil {
					return 0, fmt.Errorf("%s must be a valid integer: %w", key, sentinel)
				}
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                             fmt.Sprintf("%d", c.Port),
		"env":                              c.Env,
		"database_url":                     maskDatabaseURL(c.DatabaseURL),
		"redis_addr":                       c.RedisAddr,
		"redis_password":                   maskSecret(c.RedisPassword),
		"redis_db":                         fmt.Sprintf("%d", c.RedisDB),
		"calibration_path":                 c.CalibrationPath,
		"classification_ttl_minutes":       fmt.Sprintf("%d", c.ClassificationTTLMinutes),
		"threshold_ttl_minutes":            fmt.Sprintf("%d", c.ThresholdTTLMinutes),
		"grade_recompute_interval_minutes": fmt.Sprintf("%d", c.GradeRecomputeIntervalMinutes),
		"grade_recompute_timeout_seconds":  fmt.Sprintf("%d", c.GradeRecomputeTimeoutSeconds),
		"otlp_endpoint":                    c.OTLPEndpoint,
		"cors_allowed_origins":             strings.Join(c.CORSAllowedOrigins, ","),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
