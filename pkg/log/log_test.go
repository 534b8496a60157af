// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFromZap_WithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core)).With(String("session", "s-1"))

	logger.Debug("hop fetched", Int("hop", 2))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "hop fetched", entry.Message)
	fields := entry.ContextMap()
	require.Equal(t, "s-1", fields["session"])
	require.EqualValues(t, 2, fields["hop"])
}

func TestNoOp(t *testing.T) {
	logger := NoOp().With(String("k", "v"))
	logger.Info("ignored")
	require.NoError(t, logger.Sync())
	require.NotNil(t, FromZap(nil))
}

func TestNewLogger_ZapBacked(t *testing.T) {
	for _, l := range []Logger{New(), NewWithLevel("debug"), NewLogger("player")} {
		_, ok := l.(*zapLogger)
		require.True(t, ok)
	}
}
