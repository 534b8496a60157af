// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging field.
type Field = zap.Field

// Logger is the structured logger passed through the player components
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

// zapLogger wraps a zap.Logger
type zapLogger struct {
	log *zap.Logger
}

// New creates a new logger at info level
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a new logger with specific level
func NewWithLevel(level string) Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	log, err := config.Build()
	if err != nil {
		return &noOpLogger{}
	}

	return FromZap(log)
}

// NewLogger creates a new info level logger with a name
func NewLogger(name string) Logger {
	l := NewWithLevel("info")
	zl, ok := l.(*zapLogger)
	if !ok {
		return l
	}
	return FromZap(zl.log.Named(name))
}

// FromZap adapts an existing zap logger.
func FromZap(l *zap.Logger) Logger {
	if l == nil {
		return &noOpLogger{}
	}
	return &zapLogger{log: l}
}

// ParseLevel maps a level name onto a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NoOp returns a no-op logger
func NoOp() Logger {
	return &noOpLogger{}
}

// NoLog is a no-op logger instance
var NoLog = NoOp()

func (l *zapLogger) Debug(msg string, fields ...Field) { l.log.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.log.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.log.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.log.Error(msg, fields...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{log: l.log.With(fields...)}
}

// Sync flushes any buffered log entries
func (l *zapLogger) Sync() error {
	return l.log.Sync()
}

// noOpLogger is a logger that does nothing
type noOpLogger struct{}

func (n *noOpLogger) Debug(string, ...Field) {}
func (n *noOpLogger) Info(string, ...Field)  {}
func (n *noOpLogger) Warn(string, ...Field)  {}
func (n *noOpLogger) Error(string, ...Field) {}
func (n *noOpLogger) With(...Field) Logger   { return n }
func (n *noOpLogger) Sync() error            { return nil }

func String(key, val string) Field {
	return zap.String(key, val)
}

func Int(key string, val int) Field {
	return zap.Int(key, val)
}

func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

func Stringer(key string, val fmt.Stringer) Field {
	return zap.Stringer(key, val)
}

func Error(err error) Field {
	return zap.Error(err)
}
