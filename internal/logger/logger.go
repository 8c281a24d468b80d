// Package logger builds the process logger and the field sets the screening
// components attach to their entries.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a stdout logger. json selects the JSON encoder over the
// console one; debug lowers the level and keeps stack traces.
func New(json bool, debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig = encoderConfig()
	cfg.DisableStacktrace = !debug

	cfg.Encoding = "console"
	if json {
		cfg.Encoding = "json"
	}

	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}

	return cfg.Build()
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.MessageKey = "step"
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.RFC3339TimeEncoder
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	ec.NameKey = "component"
	return ec
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// TruncateForLog trims s and cuts it to limit runes, marking the cut with "...".
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	for i := range s {
		if limit == 0 {
			return s[:i] + "..."
		}
		limit--
	}
	return s
}
