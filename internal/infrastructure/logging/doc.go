// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components take a *Logger and derive a named child for their own output;
// a nil logger is replaced with a no-op one via OrNop.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	log := logger.Named("renderer")
//	log.Info("Preview published", zap.String("run", runID))
//	log.Error("Assembly failed", zap.Error(err))
package logging
