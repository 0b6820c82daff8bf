package observability

import (
	"github.com/hsdfat/go-zlog/logger"
	"go.uber.org/zap"
)

// Log is the global logger instance for the fieldops project
var Log logger.LoggerI = logger.NewLogger()

func init() {
	Log.(*logger.Logger).SugaredLogger = Log.(*logger.Logger).SugaredLogger.WithOptions(zap.AddCallerSkip(1))
}

// SetLevel sets the global log level
// Valid levels: "debug", "info", "warn", "error", "fatal"
func SetLevel(level string) {
	logger.SetLevel(level)
}

// Logger is an alias for the underlying logger interface
type Logger = logger.LoggerI

// New creates a new logger with a component name; a non-empty level also
// changes the global level
func New(name, level string) Logger {
	if level != "" {
		logger.SetLevel(level)
	}
	return Log.With("component", name).(logger.LoggerI)
}
