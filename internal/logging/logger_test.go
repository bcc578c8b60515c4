package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetState(t *testing.T) {
	t.Helper()
	mutex.Lock()
	modules = make(map[string]*moduleLogger)
	current = Config{}
	initialized = false
	logBuffer = nil
	logCallback = nil
	mutex.Unlock()
}

func enabled(l *slog.Logger, level slog.Level) bool {
	return l.Handler().Enabled(context.Background(), level)
}

func TestModuleLevelOverride(t *testing.T) {
	resetState(t)
	Initialize(Config{
		Level:   "info",
		Modules: map[string]string{"capture": "debug", "api": "warn"},
	})

	tests := []struct {
		module string
		lowest slog.Level
	}{
		{"capture", slog.LevelDebug},
		{"api", slog.LevelWarn},
		{"monitor", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			logger := GetLogger(tt.module)
			assert.True(t, enabled(logger, tt.lowest))
			assert.False(t, enabled(logger, tt.lowest-4))
		})
	}
}

func TestGetLoggerIsCached(t *testing.T) {
	resetState(t)
	assert.Same(t, GetLogger("sim"), GetLogger("sim"))
}

func TestLoggerBeforeInitializeFollowsConfig(t *testing.T) {
	resetState(t)

	early := GetLogger("v4l2")
	assert.False(t, enabled(early, slog.LevelDebug))

	Initialize(Config{Level: "info", Modules: map[string]string{"v4l2": "debug"}})

	// The early handler reads the same LevelVar.
	assert.True(t, enabled(early, slog.LevelDebug))
	assert.True(t, enabled(GetLogger("v4l2"), slog.LevelDebug))
}

func TestSetLevel(t *testing.T) {
	resetState(t)
	Initialize(Config{Level: "info", Modules: map[string]string{"sim": "debug"}})
	capture, sim := GetLogger("capture"), GetLogger("sim")

	require.NoError(t, SetLevel("none"))
	assert.False(t, enabled(capture, slog.LevelError))
	assert.False(t, enabled(sim, slog.LevelError))

	require.NoError(t, SetLevel("debug"))
	assert.True(t, enabled(capture, slog.LevelDebug))
	assert.True(t, enabled(GetLogger("format"), slog.LevelDebug), "new loggers inherit the runtime level")

	assert.Error(t, SetLevel("loud"))
}

func TestSetModuleLevel(t *testing.T) {
	resetState(t)
	Initialize(Config{Level: "info"})

	require.NoError(t, SetModuleLevel("monitor", "error"))
	assert.False(t, enabled(GetLogger("monitor"), slog.LevelWarn))
	assert.True(t, enabled(GetLogger("capture"), slog.LevelInfo))
	assert.Error(t, SetModuleLevel("monitor", "chatty"))
}

func TestApplyLevels(t *testing.T) {
	resetState(t)
	Initialize(Config{Level: "info", Format: "json"})
	capture, v4l2 := GetLogger("capture"), GetLogger("v4l2")

	require.NoError(t, ApplyLevels(Config{Level: "warn", Modules: map[string]string{"v4l2": "debug"}}))
	assert.False(t, enabled(capture, slog.LevelInfo))
	assert.True(t, enabled(v4l2, slog.LevelDebug))

	err := ApplyLevels(Config{Level: "warn", Modules: map[string]string{"sim": "chatty"}})
	assert.ErrorContains(t, err, "module sim")
	assert.True(t, enabled(v4l2, slog.LevelDebug), "a rejected config changes nothing")

	require.NoError(t, ApplyLevels(Config{}))
	assert.True(t, enabled(capture, slog.LevelInfo), "empty level means info")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"none", LevelNone, true},
		{"off", LevelNone, true},
		{"verbose", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestBufferCapturesEntries(t *testing.T) {
	resetState(t)
	Initialize(Config{Level: "debug"})

	var seen []LogEntry
	SetLogCallback(func(e LogEntry) { seen = append(seen, e) })

	GetLogger("devices").
		WithGroup("node").
		Info("Device added", "path", "/dev/video0", "settle", 250*time.Millisecond, "error", errors.New("busy"))

	entries := GetBuffer().Snapshot()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "devices", e.Module)
	assert.Equal(t, "info", e.Level)
	assert.Equal(t, "Device added", e.Message)
	assert.Equal(t, "/dev/video0", e.Attributes["node.path"])
	assert.Equal(t, "250ms", e.Attributes["node.settle"])
	assert.Equal(t, "busy", e.Attributes["node.error"])
	assert.Len(t, seen, 1)
}

func TestBufferSkipsSilencedLevels(t *testing.T) {
	resetState(t)
	Initialize(Config{Level: "warn"})

	GetLogger("capture").Info("dropped")
	GetLogger("capture").Warn("kept")

	entries := GetBuffer().Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
}

func TestFanoutDeliversOncePerMember(t *testing.T) {
	var debugOut, infoOut bytes.Buffer
	h := fanout{
		slog.NewTextHandler(&debugOut, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&infoOut, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}
	logger := slog.New(h).With("module", "test")

	logger.Debug("debug only")
	assert.Contains(t, debugOut.String(), "debug only")
	assert.Contains(t, debugOut.String(), "module=test")
	assert.Empty(t, infoOut.String())

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestFlattenGroups(t *testing.T) {
	got := map[string]string{}
	attr := slog.Group("fmt", slog.String("fourcc", "I420"), slog.Group("size", slog.Int("w", 640)))
	flatten([]string{"capture"}, attr, "_", func(key string, v slog.Value) {
		got[key] = v.String()
	})
	assert.Equal(t, map[string]string{"capture_fmt_fourcc": "I420", "capture_fmt_size_w": "640"}, got)
}

func TestJournalValue(t *testing.T) {
	assert.Equal(t, "29.97", journalValue(slog.Float64Value(29.97)))
	assert.Equal(t, "true", journalValue(slog.BoolValue(true)))
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01T12:00:00Z", journalValue(slog.TimeValue(ts)))
}

func TestRingBufferTail(t *testing.T) {
	rb := NewRingBuffer(4)
	assert.Nil(t, rb.Tail(3))

	for _, msg := range []string{"a", "b", "c", "d", "e", "f"} {
		rb.Write(LogEntry{Message: msg})
	}

	messages := func(entries []LogEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Message
		}
		return out
	}
	assert.Equal(t, 4, rb.Len())
	assert.Equal(t, []string{"e", "f"}, messages(rb.Tail(2)))
	assert.Equal(t, []string{"c", "d", "e", "f"}, messages(rb.Tail(0)))
	assert.Equal(t, []string{"c", "d", "e", "f"}, messages(rb.Tail(10)))
	assert.Equal(t, []string{"c", "d", "e", "f"}, messages(rb.Snapshot()))
}

func TestRingBufferPartial(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write(LogEntry{Message: "a"})
	rb.Write(LogEntry{Message: "b"})

	tail := rb.Tail(1)
	require.Len(t, tail, 1)
	assert.Equal(t, "b", tail[0].Message)
	assert.Len(t, rb.Snapshot(), 2)
}
