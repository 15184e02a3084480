package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("bridge").
		With("marker", "/tmp/hot").
		Warn(context.Background(), errors.New("gone"), "marker missing", "attempt", 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "marker missing", entry["msg"])
	assert.Equal(t, "bridge", entry["component"])
	assert.Equal(t, "gone", entry["error"])
	assert.Equal(t, "/tmp/hot", entry["marker"])
	assert.Equal(t, float64(2), entry["attempt"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "debug line")
	logger.Info(ctx, "info line")
	logger.Warn(ctx, nil, "warn line")
	logger.Error(ctx, nil, "error line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "warn line")
	assert.Contains(t, out, "error line")
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &buf})
	_ = parent.With("child", true)

	parent.Info(context.Background(), "parent line")
	assert.NotContains(t, buf.String(), "child=")
}

func TestOddFieldsIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &buf})

	logger.Info(context.Background(), "odd", "key")
	assert.Contains(t, buf.String(), "msg=odd")
	assert.NotContains(t, buf.String(), "key=")
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		l := Nop()
		l.Error(context.Background(), errors.New("x"), "discarded")
	})
}

func TestLogFormatter(t *testing.T) {
	plain := &LogFormatter{}
	assert.Equal(t, "DJANGO", plain.Bold("DJANGO"))

	color := &LogFormatter{UseColors: true}
	assert.Equal(t, "\033[31mDJANGO\033[0m", color.Red("DJANGO"))
	assert.True(t, strings.HasPrefix(color.Dim("plugin"), "\033[2m"))
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Output: &buf})

	op := StartOperation(logger, "fetch-config")
	op.End(context.Background())

	assert.Contains(t, buf.String(), "operation=fetch-config")
	assert.Contains(t, buf.String(), "duration_ms=")
}
