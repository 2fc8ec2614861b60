// Package logging provides structured logging for the LED controller service.
//
// It wraps log/slog so every record carries the same default fields
// (service, version) and every component logs the same way.
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
//	logger.Component("bridge").Info("started", "prefix", "ledcontroller")
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
