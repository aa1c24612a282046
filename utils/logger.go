package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogFile receives a copy of everything written to stdout
const DefaultLogFile = "solarb.log"

var (
	log  *zap.Logger
	once sync.Once
)

// LoggerOptions tune the global logger. Zero values keep the defaults.
type LoggerOptions struct {
	Debug       bool
	OutputPaths []string
}

// InitLogger initializes the global logger instance
func InitLogger(debug bool) *zap.Logger {
	return InitLoggerWithOptions(LoggerOptions{Debug: debug})
}

// InitLoggerWithOptions initializes the global logger once; later calls
// return the already built logger and ignore opts. GetLogger builds the
// default logger when called first, so commands must initialize before
// anything logs for debug and output path settings to apply.
func InitLoggerWithOptions(opts LoggerOptions) *zap.Logger {
	once.Do(func() {
		config := zap.NewProductionConfig()
		if opts.Debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		config.OutputPaths = []string{"stdout", DefaultLogFile}
		if len(opts.OutputPaths) > 0 {
			config.OutputPaths = opts.OutputPaths
		}
		config.ErrorOutputPaths = []string{"stderr"}

		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.StacktraceKey = "stacktrace"

		logger, err := config.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		if err != nil {
			panic(err)
		}

		log = logger
	})

	return log
}

// GetLogger returns the global logger instance, building a default one if
// InitLogger has not run
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
