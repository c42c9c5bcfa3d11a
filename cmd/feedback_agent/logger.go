package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jonathan/doc-feedback/internal/config"
)

// newLogger builds the process logger. console is meant for terminals, json for log collectors.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "json":
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "time"
		zc.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	case "console", "":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		zc.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
		zc.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: expected console or json", cfg.Format)
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}

	return zc.Build(zap.AddStacktrace(zap.DPanicLevel))
}
