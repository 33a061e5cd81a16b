// Package logging provides structured logging for Fritz!Presence.
//
// This package wraps Go's standard log/slog package. Every entry carries the
// service name and version. The presence "debug" switch maps onto the debug
// level through WithDebug.
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
//	logger := logging.New(cfg.Logging, version, logging.WithDebug(cfg.Presence.Debug))
//	logger.Info("polling router", "interval", interval)
//
// Never log router or Domoticz passwords.
package logging
