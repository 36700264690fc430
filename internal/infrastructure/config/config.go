package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Sandbox   SandboxConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Vendor    VendorConfig
	Templates TemplatesConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	PublicURL       string        `envconfig:"PUBLIC_URL" default:""`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SandboxConfig holds preview runner configuration.
type SandboxConfig struct {
	BlobTTL         time.Duration `envconfig:"SANDBOX_BLOB_TTL" default:"5m"`
	SweepInterval   time.Duration `envconfig:"SANDBOX_SWEEP_INTERVAL" default:"30s"`
	MaxBlobBytes    int64         `envconfig:"SANDBOX_MAX_BLOB_BYTES" default:"67108864"`
	AllowedOrigins  []string      `envconfig:"SANDBOX_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	ConsoleLimit    int           `envconfig:"SANDBOX_CONSOLE_LIMIT" default:"1000"`
	HeadlessTimeout time.Duration `envconfig:"SANDBOX_HEADLESS_TIMEOUT" default:"2s"`
	HeadlessPool    int           `envconfig:"SANDBOX_HEADLESS_POOL" default:"4"`
	RelayTokenTTL   time.Duration `envconfig:"SANDBOX_RELAY_TOKEN_TTL" default:"1h"`
	RelayRPS        int           `envconfig:"SANDBOX_RELAY_RPS" default:"500"`
}

// StorageConfig selects where workspace documents are persisted.
type StorageConfig struct {
	Backend        string `envconfig:"STORAGE_BACKEND" default:"file"`
	Dir            string `envconfig:"STORAGE_DIR" default:"./data"`
	S3Bucket       string `envconfig:"S3_BUCKET" default:""`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint     string `envconfig:"S3_ENDPOINT" default:""`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY" default:""`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY" default:""`
	S3UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"false"`
}

// DatabaseConfig holds the project repository connection.
// postgres:// DSNs select lib/pq, anything else sqlite.
type DatabaseConfig struct {
	DSN string `envconfig:"DATABASE_URL" default:"file:vibecoder.db?_foreign_keys=on"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	Enabled   bool   `envconfig:"AUTH_ENABLED" default:"false"`
	JWTSecret string `envconfig:"JWT_SECRET" default:""`
	DevOwner  string `envconfig:"AUTH_DEV_OWNER" default:"dev"`
}

// VendorConfig controls where React and Babel are loaded from.
type VendorConfig struct {
	Mode     string        `envconfig:"VENDOR_MODE" default:"cdn"`
	React    string        `envconfig:"VENDOR_REACT_URL" default:"https://unpkg.com/react@18/umd/react.development.js"`
	ReactDOM string        `envconfig:"VENDOR_REACT_DOM_URL" default:"https://unpkg.com/react-dom@18/umd/react-dom.development.js"`
	Babel    string        `envconfig:"VENDOR_BABEL_URL" default:"https://unpkg.com/@babel/standalone/babel.min.js"`
	Timeout  time.Duration `envconfig:"VENDOR_TIMEOUT" default:"10s"`
	Retries  int           `envconfig:"VENDOR_RETRIES" default:"3"`
}

// TemplatesConfig holds directory template import settings.
type TemplatesConfig struct {
	Dir    string   `envconfig:"TEMPLATES_DIR" default:""`
	Ignore []string `envconfig:"TEMPLATES_IGNORE" default:"node_modules/**,.git/**,**/*.map"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sandbox: SandboxConfig{
			BlobTTL:         5 * time.Minute,
			SweepInterval:   30 * time.Second,
			MaxBlobBytes:    64 << 20,
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			ConsoleLimit:    1000,
			HeadlessTimeout: 2 * time.Second,
			HeadlessPool:    4,
			RelayTokenTTL:   time.Hour,
			RelayRPS:        500,
		},
		Storage: StorageConfig{
			Backend:  "file",
			Dir:      "./data",
			S3Region: "us-east-1",
		},
		Database: DatabaseConfig{
			DSN: "file:vibecoder.db?_foreign_keys=on",
		},
		Auth: AuthConfig{
			DevOwner: "dev",
		},
		Vendor: VendorConfig{
			Mode:     "cdn",
			React:    "https://unpkg.com/react@18/umd/react.development.js",
			ReactDOM: "https://unpkg.com/react-dom@18/umd/react-dom.development.js",
			Babel:    "https://unpkg.com/@babel/standalone/babel.min.js",
			Timeout:  10 * time.Second,
			Retries:  3,
		},
		Templates: TemplatesConfig{
			Ignore: []string{"node_modules/**", ".git/**", "**/*.map"},
		},
	}
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch c.Vendor.Mode {
	case "cdn", "mirror":
	default:
		return fmt.Errorf("unknown VENDOR_MODE %q", c.Vendor.Mode)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is set")
	}
	return nil
}
