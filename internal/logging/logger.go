// Package logging builds the process logger. Because stdout carries the MCP
// wire protocol, all log output goes to stderr, optionally teeing into a
// rotated file.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	Level string // debug, info, warn, error
	// File enables an additional rotated log file when non-empty.
	File       string
	MaxSizeMB  int // per rotated file, default 50
	MaxBackups int // default 3
}

// New creates a zap logger writing JSON to stderr and, when configured, to a
// rotated file.
func New(opts Options) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	var lvl zapcore.Level
	switch opts.Level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl),
	}

	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(enc, w, lvl))
	}

	return zap.New(zapcore.NewTee(cores...))
}

// Nop returns a logger that discards everything. Used by tests and as the
// default when no logger is injected.
func Nop() *zap.Logger {
	return zap.NewNop()
}
