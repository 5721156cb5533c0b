package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcludeArgSet(t *testing.T) {
	t.Parallel()

	var a excludeArg

	require := assert.New(t)
	require.NoError(a.Set(" foo "))
	require.NoError(a.Set("bar"))
	require.Equal(excludeArg{"foo", "bar"}, a)
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"bogus", defaultLogLevel, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		assert.Equal(t, tt.want, got)

		if tt.wantErr {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestIsInside(t *testing.T) {
	t.Parallel()

	assert.True(t, isInside("/mirror", "/mirror"))
	assert.True(t, isInside("/mirror", "/mirror/sub"))
	assert.False(t, isInside("/mirror", "/mirror-other"))
	assert.False(t, isInside("/mirror", "/other"))
}
