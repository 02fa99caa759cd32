package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should be valid, got: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Server.MetricsPort != "9090" {
		t.Errorf("ports = %s/%s", cfg.Server.Port, cfg.Server.MetricsPort)
	}
	if cfg.Schedule.MembershipAudit != "0 * * * *" {
		t.Errorf("membership_audit = %q", cfg.Schedule.MembershipAudit)
	}
	if cfg.Gateway.Timeout != 30*time.Second {
		t.Errorf("gateway.timeout = %v", cfg.Gateway.Timeout)
	}
}

func TestLoad_MissingFilesUseDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.yaml"), filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load should not fail for missing files: %v", err)
	}
	if cfg.Database.Path != "coursesync.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "coursesync.yaml", `
log_level: debug
server:
  port: "8181"
  allowed_origins: ["https://a.example", "https://b.example"]
database:
  path: /var/lib/coursesync/db.sqlite
github:
  app_id: 1234
  private_key_file: /run/secrets/github.pem
gateway:
  timeout: 10s
  max_retries: 1
schedule:
  membership_audit: "*/15 * * * *"
email:
  alias_domain: umail.ucsb.edu
  canonical_domain: ucsb.edu
`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Server.Port != "8181" {
		t.Errorf("server.port = %q", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != "9090" {
		t.Errorf("server.metrics_port = %q, want default kept", cfg.Server.MetricsPort)
	}
	if !slices.Equal(cfg.Server.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("allowed_origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.GitHub.AppID != 1234 {
		t.Errorf("github.app_id = %d", cfg.GitHub.AppID)
	}
	if cfg.Gateway.Timeout != 10*time.Second || cfg.Gateway.MaxRetries != 1 {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Gateway.BreakerThreshold != 5 {
		t.Errorf("breaker_threshold = %d, want default kept", cfg.Gateway.BreakerThreshold)
	}
	if cfg.Schedule.MembershipAudit != "*/15 * * * *" {
		t.Errorf("membership_audit = %q", cfg.Schedule.MembershipAudit)
	}
	if cfg.Email.AliasDomain != "umail.ucsb.edu" {
		t.Errorf("email.alias_domain = %q", cfg.Email.AliasDomain)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "coursesync.yaml", "server:\n  port: \"8181\"\ngithub:\n  app_id: 1\n")
	t.Setenv("COURSESYNC_SERVER__PORT", "8282")
	t.Setenv("COURSESYNC_GITHUB__APP_ID", "987")
	t.Setenv("COURSESYNC_GATEWAY__BREAKER_COOLDOWN", "1m")
	t.Setenv("COURSESYNC_SERVER__ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("COURSESYNC_SCHEDULE__MEMBERSHIP_AUDIT", "")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8282" {
		t.Errorf("server.port = %q, want env value", cfg.Server.Port)
	}
	if cfg.GitHub.AppID != 987 {
		t.Errorf("github.app_id = %d", cfg.GitHub.AppID)
	}
	if cfg.Gateway.BreakerCooldown != time.Minute {
		t.Errorf("breaker_cooldown = %v", cfg.Gateway.BreakerCooldown)
	}
	if !slices.Equal(cfg.Server.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("allowed_origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Schedule.MembershipAudit != "" {
		t.Errorf("membership_audit = %q, want disabled", cfg.Schedule.MembershipAudit)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "COURSESYNC_DATABASE__PATH=/tmp/from-dotenv.db\nCOURSESYNC_LOG_LEVEL=warn\n")
	t.Setenv("COURSESYNC_LOG_LEVEL", "error")
	t.Cleanup(func() { os.Unsetenv("COURSESYNC_DATABASE__PATH") })

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/from-dotenv.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("log_level = %q, want the real environment to win over .env", cfg.LogLevel)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server: [unterminated\n")
	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = "http" }, wantErr: "server.port"},
		{name: "port out of range", mutate: func(c *Config) { c.Server.MetricsPort = "70000" }, wantErr: "server.metrics_port"},
		{name: "negative drain", mutate: func(c *Config) { c.Server.ShutdownDrainWait = -time.Second }, wantErr: "shutdown_drain_wait"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "empty database", mutate: func(c *Config) { c.Database.Path = " " }, wantErr: "database.path"},
		{name: "missing github url", mutate: func(c *Config) { c.GitHub.APIURL = "" }, wantErr: "github.api_url is required"},
		{name: "bad github url", mutate: func(c *Config) { c.GitHub.APIURL = "api.github.com" }, wantErr: "github.api_url"},
		{name: "app without key", mutate: func(c *Config) { c.GitHub.AppID = 12 }, wantErr: "private_key_file"},
		{name: "bad canvas url", mutate: func(c *Config) { c.Canvas.BaseURL = "ftp://canvas" }, wantErr: "canvas.base_url"},
		{name: "zero timeout", mutate: func(c *Config) { c.Gateway.Timeout = 0 }, wantErr: "gateway.timeout"},
		{name: "negative retries", mutate: func(c *Config) { c.Gateway.MaxRetries = -1 }, wantErr: "max_retries"},
		{name: "zero breaker threshold", mutate: func(c *Config) { c.Gateway.BreakerThreshold = 0 }, wantErr: "breaker_threshold"},
		{name: "zero breaker cooldown", mutate: func(c *Config) { c.Gateway.BreakerCooldown = 0 }, wantErr: "breaker_cooldown"},
		{name: "bad cron", mutate: func(c *Config) { c.Schedule.MembershipAudit = "hourly" }, wantErr: "membership_audit"},
		{name: "disabled schedule", mutate: func(c *Config) { c.Schedule.MembershipAudit = "" }},
		{name: "half email rule", mutate: func(c *Config) { c.Email.AliasDomain = "umail.ucsb.edu" }, wantErr: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadSecretFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "api-key", "  s3cret\n")
	got, err := ReadSecretFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "s3cret" {
		t.Errorf("ReadSecretFile() = %q", got)
	}

	if got, err := ReadSecretFile(""); err != nil || got != "" {
		t.Errorf("empty path = (%q, %v)", got, err)
	}
	if _, err := ReadSecretFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
