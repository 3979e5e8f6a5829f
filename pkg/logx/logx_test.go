package logx

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vnykmshr/tickflow/internal/testutil"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	testutil.AssertEqual(t, l.IsZero(), true)
	l.Error("should not panic", String("k", "v"))
}

func TestNewWritesJSON(t *testing.T) {
	var buf testutil.LogBuffer
	l := New(Config{Level: "debug", Out: &buf}).With(String("component", "scheduler"))

	l.Warn("job failed", String("job", "CollectEntities"), Duration("elapsed", 20*time.Millisecond), Err(errors.New("boom")))

	lines := buf.Lines()
	testutil.AssertEqual(t, len(lines), 1)

	var rec map[string]any
	testutil.AssertNoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	testutil.AssertEqual(t, rec["level"], any("warn"))
	testutil.AssertEqual(t, rec["message"], any("job failed"))
	testutil.AssertEqual(t, rec["component"], any("scheduler"))
	testutil.AssertEqual(t, rec["job"], any("CollectEntities"))
	testutil.AssertEqual(t, rec["error"], any("boom"))
	if c, _ := rec["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Errorf("caller = %q, want logx_test.go:<line>", c)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf testutil.LogBuffer
	l := New(Config{Level: "warn", Out: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Error("shown")

	testutil.AssertEqual(t, len(buf.Lines()), 1)
	testutil.AssertEqual(t, l.Enabled(LevelDebug), false)
	testutil.AssertEqual(t, l.Enabled(LevelError), true)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{" warning ", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, LevelInfo); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
