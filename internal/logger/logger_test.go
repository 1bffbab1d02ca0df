package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects output to a buffer and restores the previous writer,
// level and format on cleanup.
func capture(t *testing.T, level, format string) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.RLock()
	prevOut, prevColor := output, useColor
	mu.RUnlock()
	prevLevel := Level(currentLevel.Load())
	prevFormat, _ := currentFormat.Load().(string)

	InitWithWriter(buf, level, format, false)

	t.Cleanup(func() {
		currentLevel.Store(int32(prevLevel))
		currentFormat.Store(prevFormat)
		InitWithWriter(prevOut, "", "", prevColor)
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		present []string
		absent  []string
	}{
		{"DEBUG", []string{"d-msg", "i-msg", "w-msg", "e-msg"}, nil},
		{"INFO", []string{"i-msg", "w-msg", "e-msg"}, []string{"d-msg"}},
		{"WARN", []string{"w-msg", "e-msg"}, []string{"d-msg", "i-msg"}},
		{"ERROR", []string{"e-msg"}, []string{"d-msg", "i-msg", "w-msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := capture(t, tt.level, "text")

			Debug("d-msg")
			Info("i-msg")
			Warn("w-msg")
			Error("e-msg")

			out := buf.String()
			for _, s := range tt.present {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	capture(t, "WARN", "text")
	SetLevel("chatty")
	assert.Equal(t, LevelWarn, Level(currentLevel.Load()))
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("warning")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, l)

	_, ok = ParseLevel("nope")
	assert.False(t, ok)
}

func TestTextFormat(t *testing.T) {
	buf := capture(t, "DEBUG", "text")

	Info("phase done", KeyPhase, "drain", InodeID(42), "note", "two words")

	out := buf.String()
	assert.Contains(t, out, "[INFO] phase done")
	assert.Contains(t, out, "phase=drain")
	assert.Contains(t, out, "inode_id=42")
	assert.Contains(t, out, `note="two words"`)
	assert.NotContains(t, out, "\033[")
}

func TestTextGroupsAndWith(t *testing.T) {
	buf := capture(t, "DEBUG", "text")

	With(KeyFilesystem, "scratch").WithGroup("bdev").Info("invalidated", "buffers", 3)

	out := buf.String()
	assert.Contains(t, out, "fs=scratch")
	assert.Contains(t, out, "bdev.buffers=3")
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, "INFO", "json")

	Info("sweep finished", KeyVisited, 7, Err(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "sweep finished", rec["msg"])
	assert.Equal(t, float64(7), rec[KeyVisited])
	assert.Equal(t, "boom", rec[KeyError])
}

func TestErrNilIsDropped(t *testing.T) {
	buf := capture(t, "INFO", "text")

	Info("ok", Err(nil))

	assert.NotContains(t, buf.String(), KeyError)
}

func TestContextFields(t *testing.T) {
	buf := capture(t, "DEBUG", "text")

	lc := NewLogContext().WithSweep("abc", "strict").WithFilesystem("data")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "visiting")
	DebugCtx(context.Background(), "no context")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "sweep_id=abc")
	assert.Contains(t, lines[0], "policy=strict")
	assert.Contains(t, lines[0], "fs=data")
	assert.NotContains(t, lines[1], "sweep_id")
}

func TestLogContextClone(t *testing.T) {
	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Zero(t, nilCtx.DurationMs())

	lc := &LogContext{StartTime: time.Now().Add(-5 * time.Millisecond)}
	c := lc.WithTrace("t", "s")
	assert.Empty(t, lc.TraceID)
	assert.Equal(t, "t", c.TraceID)
	assert.GreaterOrEqual(t, c.DurationMs(), 5.0)
}

func TestConcurrentLogging(t *testing.T) {
	buf := capture(t, "INFO", "text")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("tick", "worker", n)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 400, strings.Count(buf.String(), "tick"))
}
