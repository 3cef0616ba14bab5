// Package logging provides structured logging for the homeserver service.
//
// It wraps Go's standard log/slog package so every component logs with the
// same handler, level filter and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("refresh complete", "devices", 3)
//	logger.Error("status request failed", "device_id", id, "error", err)
//
// Never log homeserver or broker credentials.
package logging
