// Package config loads the relay configuration from an optional YAML file
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	AuthorizationURL string `yaml:"authorization_url"`
	TokenURL         string `yaml:"token_url"`
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	RedirectURI      string `yaml:"redirect_uri"`
	Scope            string `yaml:"scope"`

	SessionSecret   string        `yaml:"session_secret"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	InsecureCookies bool          `yaml:"insecure_cookies"`

	ListenAddr string `yaml:"listen_addr"`

	DBDriver          string        `yaml:"db_driver"`
	DBDSN             string        `yaml:"db_dsn"`
	ReconnectBackoff  time.Duration `yaml:"reconnect_backoff"`
	ReconnectAttempts uint64        `yaml:"reconnect_attempts"`

	ExchangeTimeout time.Duration `yaml:"exchange_timeout"`

	RefreshSchedule    string `yaml:"refresh_schedule"`
	RefreshMaxAgeDays  int    `yaml:"refresh_max_age_days"`
	RefreshConcurrency int    `yaml:"refresh_concurrency"`
	ReapSchedule       string `yaml:"reap_schedule"`

	TemplatesDir string `yaml:"templates_dir"`

	AdminPasswordHash        string `yaml:"admin_password_hash"`
	RequireRefreshCredential bool   `yaml:"require_refresh_credential"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() *Config {
	return &Config{
		SessionTTL:         30 * time.Minute,
		ListenAddr:         ":8080",
		DBDriver:           "sqlite",
		DBDSN:              "oauth.db",
		ReconnectBackoff:   5 * time.Second,
		ReconnectAttempts:  5,
		ExchangeTimeout:    15 * time.Second,
		RefreshSchedule:    "0 0 * * *",
		RefreshMaxAgeDays:  3,
		RefreshConcurrency: 4,
		ReapSchedule:       "0 * * * *",
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads path (when non-empty), then applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml of '%s': %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"authorization_url", c.AuthorizationURL},
		{"token_url", c.TokenURL},
		{"client_id", c.ClientID},
		{"client_secret", c.ClientSecret},
		{"redirect_uri", c.RedirectURI},
		{"scope", c.Scope},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: missing required field '%s'", ErrInvalid, r.name)
		}
	}

	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported db_driver '%s'", ErrInvalid, c.DBDriver)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: session_ttl must be positive", ErrInvalid)
	}
	if c.ExchangeTimeout <= 0 {
		return fmt.Errorf("%w: exchange_timeout must be positive", ErrInvalid)
	}
	if c.RefreshMaxAgeDays < 0 {
		return fmt.Errorf("%w: refresh_max_age_days must not be negative", ErrInvalid)
	}
	if c.RefreshConcurrency < 1 {
		return fmt.Errorf("%w: refresh_concurrency must be at least 1", ErrInvalid)
	}
	return nil
}

type lookupFunc func(name string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"AUTHORIZATION_URL":   &cfg.AuthorizationURL,
		"TOKEN_URL":           &cfg.TokenURL,
		"CLIENT_ID":           &cfg.ClientID,
		"CLIENT_SECRET":       &cfg.ClientSecret,
		"REDIRECT_URI":        &cfg.RedirectURI,
		"SCOPE":               &cfg.Scope,
		"SESSION_SECRET":      &cfg.SessionSecret,
		"LISTEN_ADDR":         &cfg.ListenAddr,
		"DB_DRIVER":           &cfg.DBDriver,
		"DB_DSN":              &cfg.DBDSN,
		"REFRESH_SCHEDULE":    &cfg.RefreshSchedule,
		"REAP_SCHEDULE":       &cfg.ReapSchedule,
		"TEMPLATES_DIR":       &cfg.TemplatesDir,
		"ADMIN_PASSWORD_HASH": &cfg.AdminPasswordHash,
		"LOG_LEVEL":           &cfg.LogLevel,
		"LOG_FORMAT":          &cfg.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"SESSION_TTL":       &cfg.SessionTTL,
		"RECONNECT_BACKOFF": &cfg.ReconnectBackoff,
		"EXCHANGE_TIMEOUT":  &cfg.ExchangeTimeout,
	}
	for name, dst := range durations {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: env var '%s' could not be parsed as duration (\"%v\")", ErrInvalid, name, v)
		}
		*dst = d
	}

	ints := map[string]*int{
		"REFRESH_MAX_AGE_DAYS": &cfg.RefreshMaxAgeDays,
		"REFRESH_CONCURRENCY":  &cfg.RefreshConcurrency,
	}
	for name, dst := range ints {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: env var '%s' could not be parsed as integer (\"%v\")", ErrInvalid, name, v)
		}
		*dst = i
	}

	if v, ok := lookup("RECONNECT_ATTEMPTS"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: env var 'RECONNECT_ATTEMPTS' could not be parsed as integer (\"%v\")", ErrInvalid, v)
		}
		cfg.ReconnectAttempts = n
	}

	bools := map[string]*bool{
		"INSECURE_COOKIES":           &cfg.InsecureCookies,
		"REQUIRE_REFRESH_CREDENTIAL": &cfg.RequireRefreshCredential,
	}
	for name, dst := range bools {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: env var '%s' could not be parsed as bool (\"%v\")", ErrInvalid, name, v)
		}
		*dst = b
	}

	return nil
}
