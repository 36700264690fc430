package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Sandbox.BlobTTL)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "cdn", cfg.Vendor.Mode)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Sandbox, cfg.Sandbox)
	assert.Equal(t, def.Vendor, cfg.Vendor)
	assert.Equal(t, def.Templates, cfg.Templates)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                    "9000",
		"LOG_LEVEL":               "debug",
		"LOG_DEV":                 "true",
		"RATE_LIMIT_RPS":          "500",
		"SANDBOX_BLOB_TTL":        "90s",
		"SANDBOX_ALLOWED_ORIGINS": "https://a.test,https://b.test",
		"STORAGE_BACKEND":         "s3",
		"S3_BUCKET":               "workspaces",
		"S3_USE_PATH_STYLE":       "true",
		"DATABASE_URL":            "postgres://u:p@db/vibe?sslmode=disable",
		"TEMPLATES_IGNORE":        "dist/**",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 90*time.Second, cfg.Sandbox.BlobTTL)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Sandbox.AllowedOrigins)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.True(t, cfg.Storage.S3UsePathStyle)
	assert.Equal(t, "postgres://u:p@db/vibe?sslmode=disable", cfg.Database.DSN)
	assert.Equal(t, []string{"dist/**"}, cfg.Templates.Ignore)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("SANDBOX_BLOB_TTL", "forever")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, false},
		{"s3 with bucket", func(c *Config) { c.Storage.Backend = "s3"; c.Storage.S3Bucket = "b" }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, false},
		{"mirror vendor", func(c *Config) { c.Vendor.Mode = "mirror" }, true},
		{"unknown vendor", func(c *Config) { c.Vendor.Mode = "local" }, false},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}
