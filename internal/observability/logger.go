package observability

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Logger is the logging surface accepted by library packages. Both
// *logging.Logger and *zap.Logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return zap.NewNop()
}

var (
	// CLILogger writes human-oriented output for one-shot commands.
	CLILogger *logging.Logger

	// ServerLogger writes JSON lines for the gateway and dispatcher.
	ServerLogger *logging.Logger
)

var severities = map[string]string{
	"TRACE":   "TRACE",
	"DEBUG":   "DEBUG",
	"INFO":    "INFO",
	"WARN":    "WARN",
	"WARNING": "WARN",
	"ERROR":   "ERROR",
}

// InitCLILogger sets CLILogger. Verbose drops the level to DEBUG.
func InitCLILogger(serviceName string, verbose bool) error {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		return fmt.Errorf("cli logger: %w", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
	return nil
}

// InitServerLogger sets ServerLogger to a structured stderr logger with
// correlation IDs. Unknown levels fall back to INFO.
func InitServerLogger(serviceName string, level string) error {
	logger, err := logging.New(serverLoggerConfig(serviceName, parseLogLevel(level)))
	if err != nil {
		return fmt.Errorf("server logger: %w", err)
	}
	ServerLogger = logger
	return nil
}

func serverLoggerConfig(serviceName, level string) *logging.LoggerConfig {
	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: level,
		Service:      serviceName,
		Environment:  "production",
		StaticFields: map[string]any{"component": "dispatcher"},
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

func parseLogLevel(level string) string {
	if sev, ok := severities[strings.ToUpper(strings.TrimSpace(level))]; ok {
		return sev
	}
	return "INFO"
}
