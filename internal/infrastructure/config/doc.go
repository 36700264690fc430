// Package config provides 12-factor configuration management for the
// VibeCoder backend.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, public URL)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Sandbox: Blob TTL, relay origins, console and headless limits
//   - Storage: Workspace document backend (file or s3)
//   - Database: Project repository DSN
//   - Auth: Bearer token verification
//   - Vendor: React/Babel source (cdn or mirror)
//   - Templates: Directory template import
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
