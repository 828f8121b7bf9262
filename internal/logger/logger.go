package logger

import (
	"github.com/rabbitdeck/backend/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger zap wrapper
type Logger struct {
	*zap.Logger
}

// NewLogger creates the application logger (Fx compatible)
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := New(&cfg.Logging)
	if err != nil {
		return nil, err
	}
	return logger.Logger, nil
}

// New creates a logger from logging config
func New(cfg *config.LoggingConfig) (*Logger, error) {
	var zapConfig zap.Config

	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	if cfg.OutputPath != "stdout" {
		zapConfig.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// WithContext adds context fields
func (l *Logger) WithContext(fields ...zap.Field) *Logger {
	return &Logger{l.With(fields...)}
}

// Close flushes buffered log entries
func (l *Logger) Close() error {
	return l.Sync()
}

// sugared shortcuts
func (l *Logger) Debugf(msg string, args ...interface{}) {
	l.Sugar().Debugf(msg, args...)
}

func (l *Logger) Infof(msg string, args ...interface{}) {
	l.Sugar().Infof(msg, args...)
}

func (l *Logger) Warnf(msg string, args ...interface{}) {
	l.Sugar().Warnf(msg, args...)
}

func (l *Logger) Errorf(msg string, args ...interface{}) {
	l.Sugar().Errorf(msg, args...)
}

func (l *Logger) Fatalf(msg string, args ...interface{}) {
	l.Sugar().Fatalf(msg, args...)
}
