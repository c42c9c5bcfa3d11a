package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/jonathan/doc-feedback/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantLevel zapcore.Level
		wantErr   string
	}{
		{name: "console info", cfg: config.LogConfig{Level: "info", Format: "console"}, wantLevel: zapcore.InfoLevel},
		{name: "json debug", cfg: config.LogConfig{Level: "debug", Format: "json"}, wantLevel: zapcore.DebugLevel},
		{name: "format is case insensitive", cfg: config.LogConfig{Level: "warn", Format: "JSON"}, wantLevel: zapcore.WarnLevel},
		{name: "bad level", cfg: config.LogConfig{Level: "loud", Format: "console"}, wantErr: "invalid LOG_LEVEL"},
		{name: "bad format", cfg: config.LogConfig{Level: "info", Format: "xml"}, wantErr: "invalid LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := newLogger(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
		})
	}
}
