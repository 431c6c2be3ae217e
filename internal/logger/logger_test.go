package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	originalFormat := format
	output = buf
	useColor = false
	format = "text"
	mu.Unlock()
	originalLevel := level.Level()

	reconfigure()

	return buf, func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		format = originalFormat
		mu.Unlock()
		level.Set(originalLevel)
		reconfigure()
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"DEBUG", []string{"debug msg", "info msg", "warn msg", "error msg"}, nil},
		{"INFO", []string{"info msg", "warn msg", "error msg"}, []string{"debug msg"}},
		{"WARN", []string{"warn msg", "error msg"}, []string{"debug msg", "info msg"}},
		{"ERROR", []string{"error msg"}, []string{"debug msg", "info msg", "warn msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf, cleanup := captureOutput()
			defer cleanup()

			SetLevel(tt.level)
			Debug("debug msg")
			Info("info msg")
			Warn("warn msg")
			Error("error msg")

			out := buf.String()
			for _, s := range tt.visible {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.hidden {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		_, cleanup := captureOutput()
		defer cleanup()

		SetLevel("debug")
		assert.Equal(t, "DEBUG", GetLevel())
		SetLevel("Warn")
		assert.Equal(t, "WARN", GetLevel())
	})

	t.Run("IgnoresInvalidValues", func(t *testing.T) {
		_, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")
		SetLevel("LOUD")
		assert.Equal(t, "ERROR", GetLevel())
	})

	t.Run("AppliesWithoutReconfigure", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")
		Info("hidden")
		SetLevel("INFO")
		Info("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestTextFormat(t *testing.T) {
	t.Run("TimestampAndLevel", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Warn("careful")

		out := buf.String()
		assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\] \[WARN\] careful`, out)
	})

	t.Run("StructuredFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("request handled", KeyMachine, "alpha", KeyClientID, 7, KeyOperation, "open")

		out := buf.String()
		assert.Contains(t, out, "machine=alpha")
		assert.Contains(t, out, "client_id=7")
		assert.Contains(t, out, "op=open")
	})

	t.Run("QuotesStringsWithSpaces", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("raw", "text", "write f hello world")

		assert.Contains(t, buf.String(), `text="write f hello world"`)
	})

	t.Run("GroupsFlattenToDottedKeys", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		With("component", "udp").WithGroup("peer").Info("datagram", "ip", "10.0.0.1")
		Info("nested", slog.Group("lock", slog.String("state", "read")))

		out := buf.String()
		assert.Contains(t, out, "component=udp")
		assert.Contains(t, out, "peer.ip=10.0.0.1")
		assert.Contains(t, out, "lock.state=read")
	})
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("json")
	Info("json message", KeySequence, 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "json message", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 3, entry[KeySequence])
	assert.Contains(t, entry, "time")
}

func TestFormatSwitching(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("yaml")
	Info("still text")
	assert.True(t, strings.HasPrefix(buf.String(), "["))
}

func TestContextLogging(t *testing.T) {
	t.Run("InjectsLogContextFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		lc := NewLogContext("req-1", "192.168.1.10").
			WithClient("alpha", 2, 17, 1).
			WithOperation("read")
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "handled", KeyStatus, 0)

		out := buf.String()
		assert.Contains(t, out, "request_id=req-1")
		assert.Contains(t, out, "client_ip=192.168.1.10")
		assert.Contains(t, out, "machine=alpha")
		assert.Contains(t, out, "client_id=2")
		assert.Contains(t, out, "seq=17")
		assert.Contains(t, out, "op=read")
		assert.Contains(t, out, "status=0")
		assert.Less(t, strings.Index(out, "request_id"), strings.Index(out, "status"))
	})

	t.Run("ContextWithoutLogContext", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		WarnCtx(context.Background(), "plain")
		assert.Contains(t, buf.String(), "plain")
	})

	t.Run("NilContext", func(t *testing.T) {
		//nolint:staticcheck // nil context is tolerated on purpose
		assert.Nil(t, FromContext(nil))
	})
}

func TestLogContext(t *testing.T) {
	t.Run("CloneIsIndependent", func(t *testing.T) {
		lc := NewLogContext("id", "10.0.0.1")
		clone := lc.WithOperation("write")

		assert.Empty(t, lc.Operation)
		assert.Equal(t, "write", clone.Operation)
		assert.Equal(t, lc.RequestID, clone.RequestID)
	})

	t.Run("CloneNil", func(t *testing.T) {
		var lc *LogContext
		assert.Nil(t, lc.Clone())
		assert.Nil(t, lc.WithTrace("a", "b"))
		assert.Zero(t, lc.DurationMs())
	})
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, slog.Attr{}, Err(nil))
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
	assert.Equal(t, int64(5), Sequence(5).Value.Int64())
	assert.Equal(t, KeyFilename, Filename("f").Key)
}

func TestPrintfStyleLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("DEBUG")
	Debugf("debug %d", 1)
	Infof("info %s", "two")
	Warnf("warn %v", 3.5)
	Errorf("error %q", "four")

	out := buf.String()
	assert.Contains(t, out, "debug 1")
	assert.Contains(t, out, "info two")
	assert.Contains(t, out, "warn 3.5")
	assert.Contains(t, out, `error "four"`)
}

func TestConcurrentLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", "worker", n)
				if j%10 == 0 {
					SetLevel("INFO")
				}
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Count(buf.String(), "\n")
	assert.Equal(t, 400, lines)
}

func TestInitWithWriter(t *testing.T) {
	_, cleanup := captureOutput()
	defer cleanup()

	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)
	Info("nope")
	Warn("yes")

	assert.NotContains(t, buf.String(), "nope")
	assert.Contains(t, buf.String(), "yes")
}
