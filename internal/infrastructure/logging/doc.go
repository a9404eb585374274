// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Log Levels:
//   - Debug: Verbose debugging information (per-dispatch traces)
//   - Info: General informational messages
//   - Warn: Warning messages (failed dispatches, slow peers)
//   - Error: Error messages
//
// Features:
//   - Zero-allocation logging in production
//   - Structured fields for dispatch context (id, target, method)
//   - Nop logger for components that run without one
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "3000"))
//	logger.Error("Failed to bind channel", zap.Error(err))
package logging
