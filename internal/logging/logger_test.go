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
	testCases := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"trace", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newJSONLogger(buf *bytes.Buffer, level LogLevel) *StructuredLogger {
	return NewLogger(&LoggerConfig{Level: level, Format: "json", Output: buf})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var records []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestStructuredLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelDebug).
		WithComponent("session").
		With("path", "/tmp/doc.md")

	logger.Warn(context.Background(), errors.New("permission denied"), "Failed to read document", "seq", 7)

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "Failed to read document", rec["msg"])
	assert.Equal(t, "session", rec["component"])
	assert.Equal(t, "permission denied", rec["error"])
	assert.Equal(t, "/tmp/doc.md", rec["path"])
	assert.Equal(t, float64(7), rec["seq"])
}

func TestStructuredLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelWarn)

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "hidden")
	logger.Warn(context.Background(), nil, "shown")
	logger.Error(context.Background(), nil, "shown too")

	records := decodeLines(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, "shown", records[0]["msg"])
	assert.Equal(t, "shown too", records[1]["msg"])
}

func TestStructuredLoggerDropsDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelDebug)

	logger.Info(context.Background(), "odd fields", "viewers", 2, "dangling")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, float64(2), records[0]["viewers"])
	_, ok := records[0]["dangling"]
	assert.False(t, ok)
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := newJSONLogger(&buf, LevelDebug)
	_ = parent.With("viewer", "abc")

	parent.Info(context.Background(), "parent")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	_, ok := records[0]["viewer"]
	assert.False(t, ok)
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "discarded")
		logger.WithComponent("c").Info(context.Background(), "discarded")
	})
}

func TestPerfLoggerEnd(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelDebug)

	perf := StartOperation(logger, "render")
	duration := perf.End(context.Background(), "bytes", 12)

	assert.GreaterOrEqual(t, duration.Nanoseconds(), int64(0))
	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "render", records[0]["operation"])
	assert.Equal(t, float64(12), records[0]["bytes"])
	assert.Contains(t, records[0], "duration_ms")
}
