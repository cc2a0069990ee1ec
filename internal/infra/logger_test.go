package infra

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerProductionWritesJSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	logger := newLogger("production", &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Str("user_id", "u1").Msg("credits granted")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "credits granted" || line["service"] != "blogpilot" || line["user_id"] != "u1" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestNewLoggerLevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	logger := newLogger("development", &bytes.Buffer{})
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("level = %s, want warn", logger.GetLevel())
	}
}
