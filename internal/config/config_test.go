package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "qrgate",
				Password: "secret",
				Name:     "qrgate",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=qrgate password=secret dbname=qrgate sslmode=require",
		},
		{
			name: "disable ssl mode",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "admin",
				Password: "pass",
				Name:     "mydb",
				SSLMode:  "disable",
			},
			want: "host=db.example.com port=5433 user=admin password=pass dbname=mydb sslmode=disable",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "user",
				Name:    "dbname",
				SSLMode: "prefer",
			},
			want: "host=localhost port=5432 user=user password= dbname=dbname sslmode=prefer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetDSN(); got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 8080}
	if got := cfg.GetAddress(); got != "0.0.0.0:8080" {
		t.Errorf("GetAddress() = %q, want 0.0.0.0:8080", got)
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("Database.SSLMode = %s, want require", cfg.Database.SSLMode)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled = false, want true by default")
	}
	if cfg.Redis.HealthCooldown != 60*time.Second {
		t.Errorf("Redis.HealthCooldown = %v, want 60s", cfg.Redis.HealthCooldown)
	}
	if cfg.Auth.APIKeys.Prefix != "qrk" {
		t.Errorf("Auth.APIKeys.Prefix = %s, want qrk", cfg.Auth.APIKeys.Prefix)
	}
	if cfg.RateLimiting.RequestsPerMinute != 60 {
		t.Errorf("RateLimiting.RequestsPerMinute = %d, want 60", cfg.RateLimiting.RequestsPerMinute)
	}
	if cfg.RateLimiting.VerifyLimit != 5 {
		t.Errorf("RateLimiting.VerifyLimit = %d, want 5", cfg.RateLimiting.VerifyLimit)
	}
	if cfg.RateLimiting.VerifyWindow != 15*time.Minute {
		t.Errorf("RateLimiting.VerifyWindow = %v, want 15m", cfg.RateLimiting.VerifyWindow)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %s, want json", cfg.Logging.Format)
	}
	if cfg.Jobs.UsageResetInterval != time.Hour {
		t.Errorf("Jobs.UsageResetInterval = %v, want 1h", cfg.Jobs.UsageResetInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QRG_SERVER_PORT", "9999")
	t.Setenv("QRG_DATABASE_HOST", "db.internal")
	t.Setenv("QRG_REDIS_ENABLED", "false")
	t.Setenv("QRG_RATE_LIMITING_REQUESTS_PER_MINUTE", "120")
	t.Setenv("QRG_AUTH_API_KEYS_PREFIX", "qrt")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %s, want db.internal", cfg.Database.Host)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled = true, want false")
	}
	if cfg.RateLimiting.RequestsPerMinute != 120 {
		t.Errorf("RateLimiting.RequestsPerMinute = %d, want 120", cfg.RateLimiting.RequestsPerMinute)
	}
	if cfg.Auth.APIKeys.Prefix != "qrt" {
		t.Errorf("Auth.APIKeys.Prefix = %s, want qrt", cfg.Auth.APIKeys.Prefix)
	}
}

func TestLoad_PasswordExpansion(t *testing.T) {
	t.Setenv("TEST_DB_SECRET", "expanded-secret")
	t.Setenv("QRG_DATABASE_PASSWORD", "${TEST_DB_SECRET}")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "expanded-secret" {
		t.Errorf("Database.Password = %q, want expanded-secret", cfg.Database.Password)
	}
}

func TestLoad_MissingExplicitFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() with missing explicit file error = nil, want error")
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	content := `
server:
  port: 8181
redis:
  enabled: false
logging:
  level: debug
  format: text
`
	path := writeTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Server.Port = %d, want 8181", cfg.Server.Port)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled = true, want false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()
	return f.Name()
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "qrgate", User: "qrgate"},
		Redis: RedisConfig{
			Enabled:        true,
			Addr:           "localhost:6379",
			HealthCooldown: time.Minute,
		},
		Auth: AuthConfig{APIKeys: APIKeyConfig{Prefix: "qrk"}},
		RateLimiting: RateLimitingConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			VerifyLimit:       5,
			VerifyWindow:      15 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing db name", func(c *Config) { c.Database.Name = "" }, "database.name"},
		{"missing db user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"redis enabled without addr", func(c *Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"zero health cooldown", func(c *Config) { c.Redis.HealthCooldown = 0 }, "health_cooldown"},
		{"redis disabled skips redis checks", func(c *Config) {
			c.Redis.Enabled = false
			c.Redis.Addr = ""
		}, ""},
		{"zero requests per minute", func(c *Config) { c.RateLimiting.RequestsPerMinute = 0 }, "requests_per_minute"},
		{"zero verify limit", func(c *Config) { c.RateLimiting.VerifyLimit = 0 }, "verify_limit"},
		{"zero verify window", func(c *Config) { c.RateLimiting.VerifyWindow = 0 }, "verify_window"},
		{"rate limiting disabled skips limit checks", func(c *Config) {
			c.RateLimiting.Enabled = false
			c.RateLimiting.RequestsPerMinute = 0
		}, ""},
		{"missing key prefix", func(c *Config) { c.Auth.APIKeys.Prefix = "" }, "prefix"},
		{"bad logging level", func(c *Config) { c.Logging.Level = "verbose" }, "logging level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
