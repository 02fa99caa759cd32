// Package config loads service configuration from defaults, an optional
// YAML file, an optional .env file and COURSESYNC_* environment variables,
// in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// EnvPrefix namespaces environment overrides. A double underscore separates
// nesting levels: COURSESYNC_GITHUB__APP_ID sets github.app_id.
const EnvPrefix = "COURSESYNC_"

// Config is the service configuration.
type Config struct {
	LogLevel   string `koanf:"log_level"`
	APIKeyFile string `koanf:"api_key_file"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	GitHub   GitHubConfig   `koanf:"github"`
	Canvas   CanvasConfig   `koanf:"canvas"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Email    EmailConfig    `koanf:"email"`
}

// ServerConfig holds the HTTP listeners.
type ServerConfig struct {
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ShutdownDrainWait time.Duration `koanf:"shutdown_drain_wait"` // 0 skips draining
	AllowedOrigins    []string      `koanf:"allowed_origins"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// GitHubConfig identifies the GitHub App.
type GitHubConfig struct {
	APIURL         string `koanf:"api_url"`
	AppID          int64  `koanf:"app_id"`
	PrivateKeyFile string `koanf:"private_key_file"`
}

// CanvasConfig locates the Canvas API. The token is used for courses that
// carry none of their own.
type CanvasConfig struct {
	BaseURL   string `koanf:"base_url"`
	TokenFile string `koanf:"token_file"`
}

// GatewayConfig tunes the outbound HTTP transport.
type GatewayConfig struct {
	Timeout          time.Duration `koanf:"timeout"`
	MaxRetries       int           `koanf:"max_retries"`
	BackoffInitial   time.Duration `koanf:"backoff_initial"`
	BackoffMax       time.Duration `koanf:"backoff_max"`
	BreakerThreshold int           `koanf:"breaker_threshold"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`
}

// ScheduleConfig holds cron expressions. An empty expression disables the entry.
type ScheduleConfig struct {
	MembershipAudit string `koanf:"membership_audit"`
}

// EmailConfig configures roster email canonicalization.
type EmailConfig struct {
	AliasDomain     string `koanf:"alias_domain"`
	CanonicalDomain string `koanf:"canonical_domain"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:              "8080",
			MetricsPort:       "9090",
			ShutdownDrainWait: 5 * time.Second,
			AllowedOrigins:    []string{"*"},
		},
		Database: DatabaseConfig{Path: "coursesync.db"},
		GitHub:   GitHubConfig{APIURL: "https://api.github.com"},
		Gateway: GatewayConfig{
			Timeout:          30 * time.Second,
			MaxRetries:       3,
			BackoffInitial:   200 * time.Millisecond,
			BackoffMax:       5 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Schedule: ScheduleConfig{MembershipAudit: "0 * * * *"},
	}
}

// Load builds the configuration. path and envFile are optional; a missing
// file is skipped, an unreadable one is an error.
func Load(path, envFile string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if envFile != "" {
		// Variables already present in the environment are not overridden.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// envKey maps COURSESYNC_SERVER__METRICS_PORT to server.metrics_port.
// List values are comma separated.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if strings.HasSuffix(key, "allowed_origins") {
		var list []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				list = append(list, v)
			}
		}
		return key, list
	}
	return key, value
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validatePort("server.metrics_port", c.Server.MetricsPort); err != nil {
		return err
	}
	if c.Server.ShutdownDrainWait < 0 {
		return fmt.Errorf("server.shutdown_drain_wait must be non-negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}
	if err := validateURL("github.api_url", c.GitHub.APIURL, true); err != nil {
		return err
	}
	if c.GitHub.AppID < 0 {
		return fmt.Errorf("github.app_id must be non-negative")
	}
	if c.GitHub.AppID != 0 && c.GitHub.PrivateKeyFile == "" {
		return fmt.Errorf("github.private_key_file is required when github.app_id is set")
	}
	if err := validateURL("canvas.base_url", c.Canvas.BaseURL, false); err != nil {
		return err
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive")
	}
	if c.Gateway.MaxRetries < 0 {
		return fmt.Errorf("gateway.max_retries must be non-negative")
	}
	if c.Gateway.BackoffInitial < 0 || c.Gateway.BackoffMax < 0 {
		return fmt.Errorf("gateway backoff durations must be non-negative")
	}
	if c.Gateway.BreakerThreshold <= 0 {
		return fmt.Errorf("gateway.breaker_threshold must be positive")
	}
	if c.Gateway.BreakerCooldown <= 0 {
		return fmt.Errorf("gateway.breaker_cooldown must be positive")
	}
	if spec := c.Schedule.MembershipAudit; spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid schedule.membership_audit %q: %w", spec, err)
		}
	}
	if (c.Email.AliasDomain == "") != (c.Email.CanonicalDomain == "") {
		return fmt.Errorf("email.alias_domain and email.canonical_domain must be set together")
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}
	return level, nil
}

func validatePort(name, port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid %s %q: must be a number between 1 and 65535", name, port)
	}
	return nil
}

func validateURL(name, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an http or https URL", name, raw)
	}
	return nil
}

// ReadSecretFile reads a secret from a file path, trimming surrounding
// whitespace. Works with Docker secrets (/run/secrets/) and K8s secrets
// (mounted volumes). An empty path yields an empty secret.
func ReadSecretFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
