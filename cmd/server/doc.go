// Package main is the entry point for the VibeCoder sandbox backend.
//
// The server keeps editor workspaces, renders their files into sandboxed
// preview documents and relays the preview's console output back to the
// editor.
//
// Architecture:
//
//	Editor (React) → REST /api        → workspaces, runs, projects
//	               → WS /ws/.../console → live console and run state
//	Preview iframe → /sandbox/blobs    → rendered document and files
//	               → /sandbox/relay    → console messages
//
// Configuration:
//   - Environment variables (12-factor), see internal/infrastructure/config
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev -templates ./templates
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
