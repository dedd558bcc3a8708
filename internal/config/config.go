// Package config loads migration settings from the environment with an
// optional YAML file underneath. Environment variables always win over
// the file, and the file wins over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPTimeout       = 30 * time.Second
	defaultRateLimitAttempts = 8
	defaultRateLimitElapsed  = 5 * time.Minute
	defaultLogLevel          = "info"
	defaultEnvironment       = "development"

	// configPathEnvVar points at a YAML file when no --config flag is given.
	configPathEnvVar = "TENANTSHIFT_CONFIG"
)

// Account holds the coordinates and vendor credentials for one platform
// account. A migration always needs two of these: where the users live
// now and where they are going.
type Account struct {
	BaseURL  string `yaml:"base_url"`
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"secret"`
}

// RateLimit bounds how long the client keeps retrying throttled requests.
type RateLimit struct {
	MaxAttempts int
	MaxElapsed  time.Duration
}

// Config is the resolved runtime configuration for a migration run.
type Config struct {
	Source      Account
	Destination Account
	HTTPTimeout time.Duration
	RateLimit   RateLimit
	LogLevel    string
	Environment string
}

// fileConfig mirrors the YAML layout. Durations are strings there so a
// config file can say "45s" or "10m" the same way the environment does.
type fileConfig struct {
	Source      Account `yaml:"source"`
	Destination Account `yaml:"destination"`
	HTTPTimeout string  `yaml:"http_timeout"`
	RateLimit   struct {
		MaxAttempts *int   `yaml:"max_attempts"`
		MaxElapsed  string `yaml:"max_elapsed"`
	} `yaml:"rate_limit"`
	LogLevel string `yaml:"log_level"`
}

// Load resolves configuration in three layers: built-in defaults, then an
// optional YAML file, then environment variables. configPath names the
// file explicitly; when empty, TENANTSHIFT_CONFIG is consulted and then
// ~/.config/tenantshift/config.yaml. A missing file is only an error when
// it was asked for by name.
//
// A .env file in the working directory is loaded first, without
// overriding variables that are already set.
func Load(configPath string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPTimeout: defaultHTTPTimeout,
		RateLimit: RateLimit{
			MaxAttempts: defaultRateLimitAttempts,
			MaxElapsed:  defaultRateLimitElapsed,
		},
		LogLevel:    defaultLogLevel,
		Environment: resolveEnvironment(),
	}

	path, required := resolveConfigPath(configPath)
	if path != "" {
		if err := applyFile(&cfg, path, required); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// resolveConfigPath picks the YAML file to read and reports whether its
// absence is an error.
func resolveConfigPath(explicit string) (string, bool) {
	if path := strings.TrimSpace(explicit); path != "" {
		return path, true
	}
	if path := strings.TrimSpace(os.Getenv(configPathEnvVar)); path != "" {
		return path, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".config", "tenantshift", "config.yaml"), false
}

func applyFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	applyAccountFile(&cfg.Source, raw.Source)
	applyAccountFile(&cfg.Destination, raw.Destination)

	if raw.HTTPTimeout != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(raw.HTTPTimeout))
		if err != nil {
			return fmt.Errorf("http_timeout in %s must be a valid duration: %w", path, err)
		}
		cfg.HTTPTimeout = parsed
	}
	if raw.RateLimit.MaxAttempts != nil {
		cfg.RateLimit.MaxAttempts = *raw.RateLimit.MaxAttempts
	}
	if raw.RateLimit.MaxElapsed != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(raw.RateLimit.MaxElapsed))
		if err != nil {
			return fmt.Errorf("rate_limit.max_elapsed in %s must be a valid duration: %w", path, err)
		}
		cfg.RateLimit.MaxElapsed = parsed
	}
	if raw.LogLevel != "" {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

func applyAccountFile(dst *Account, src Account) {
	if v := strings.TrimSpace(src.BaseURL); v != "" {
		dst.BaseURL = v
	}
	if v := strings.TrimSpace(src.ClientID); v != "" {
		dst.ClientID = v
	}
	if v := strings.TrimSpace(src.Secret); v != "" {
		dst.Secret = v
	}
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("SOURCE_BASE_URL")); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SOURCE_CLIENT_ID")); v != "" {
		cfg.Source.ClientID = v
	}
	if v := getEnvOrFile("SOURCE_SECRET", "SOURCE_SECRET_FILE"); v != "" {
		cfg.Source.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("DEST_BASE_URL")); v != "" {
		cfg.Destination.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DEST_CLIENT_ID")); v != "" {
		cfg.Destination.ClientID = v
	}
	if v := getEnvOrFile("DEST_SECRET", "DEST_SECRET_FILE"); v != "" {
		cfg.Destination.Secret = v
	}

	var err error
	if cfg.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return err
	}
	if cfg.RateLimit.MaxAttempts, err = envInt("RATE_LIMIT_MAX_ATTEMPTS", cfg.RateLimit.MaxAttempts); err != nil {
		return err
	}
	if cfg.RateLimit.MaxElapsed, err = envDuration("RATE_LIMIT_MAX_ELAPSED", cfg.RateLimit.MaxElapsed); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// getEnvOrFile returns the value of envVar, or else the trimmed contents
// of the file named by fileVar. Secrets mounted by an orchestrator arrive
// as files, and those files usually end in a newline.
func getEnvOrFile(envVar, fileVar string) string {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v
	}
	path := strings.TrimSpace(os.Getenv(fileVar))
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Validate checks that everything a migration run needs is present.
// Error messages name the environment variable to set.
func (c Config) Validate() error {
	if err := c.Source.validate("SOURCE"); err != nil {
		return err
	}
	if err := c.Destination.validate("DEST"); err != nil {
		return err
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be greater than zero")
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_ATTEMPTS must be greater than zero")
	}
	if c.RateLimit.MaxElapsed < 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_ELAPSED must not be negative")
	}
	return nil
}

func (a Account) validate(prefix string) error {
	if strings.TrimSpace(a.BaseURL) == "" {
		return fmt.Errorf("%s_BASE_URL is required", prefix)
	}
	if strings.TrimSpace(a.ClientID) == "" {
		return fmt.Errorf("%s_CLIENT_ID is required", prefix)
	}
	if strings.TrimSpace(a.Secret) == "" {
		return fmt.Errorf("%s_SECRET is required", prefix)
	}
	return nil
}

// Production reports whether the run is happening in a shared environment
// rather than on a developer machine.
func (c Config) Production() bool {
	return isNonDevelopment(c.Environment)
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}
	return parsed, nil
}

func envInt(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
	}
	return parsed, nil
}

func resolveEnvironment() string {
	for _, envVar := range []string{"APP_ENV", "ENVIRONMENT", "GO_ENV"} {
		if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
			return strings.ToLower(value)
		}
	}
	return defaultEnvironment
}

func isNonDevelopment(environment string) bool {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "", "dev", "development", "local", "test":
		return false
	default:
		return true
	}
}
