// Package logging builds the zap loggers used across the service. Levels and
// output format are configured through the environment so deployments can
// switch between JSON (collectors) and console (dev) output.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for the named component.
// level: "debug", "info", "warn", "error" (default "info").
// format: "json" or "console" (default "json").
func New(level, format, component string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	if component != "" {
		logger = logger.With(zap.String("component", component))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		logger = logger.With(zap.String("hostname", hostname))
	}
	return logger, nil
}

// FromEnv builds a logger from BLOODCORE_LOG_LEVEL and BLOODCORE_LOG_FORMAT.
func FromEnv(component string) (*zap.Logger, error) {
	return New(os.Getenv("BLOODCORE_LOG_LEVEL"), os.Getenv("BLOODCORE_LOG_FORMAT"), component)
}

// EngineLogger adapts a zap logger to the key-value logging surface the
// engine service expects.
type EngineLogger struct {
	s *zap.SugaredLogger
}

// NewEngineLogger wraps the given zap logger.
func NewEngineLogger(logger *zap.Logger) *EngineLogger {
	return &EngineLogger{s: logger.Sugar()}
}

func (l *EngineLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *EngineLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *EngineLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *EngineLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
