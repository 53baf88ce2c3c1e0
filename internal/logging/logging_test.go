package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "json")

	logger.Info().Msg("dropped")
	logger.Warn().Str("session_id", "s1").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["message"] != "kept" || rec["session_id"] != "s1" || rec["level"] != "warn" {
		t.Errorf("record = %v", rec)
	}
	if _, ok := rec["time"]; !ok {
		t.Error("record has no timestamp")
	}
}

func TestNewWithWriter_LevelFallback(t *testing.T) {
	for _, level := range []string{"", "loud", "INFO"} {
		if got := NewWithWriter(&bytes.Buffer{}, level, "json").GetLevel(); got != zerolog.InfoLevel {
			t.Errorf("level %q → %v, want info", level, got)
		}
	}
	if got := NewWithWriter(&bytes.Buffer{}, "debug", "json").GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("level debug → %v", got)
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "console")
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Errorf("console output = %q", buf.String())
	}
}
