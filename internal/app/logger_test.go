package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		env, level string
		want       slog.Level
	}{
		{"prod", "", slog.LevelInfo},
		{"dev", "", slog.LevelDebug},
		{"prod", "debug", slog.LevelDebug},
		{"dev", "WARN", slog.LevelWarn},
		{"dev", " error ", slog.LevelError},
		{"prod", "chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.env, tt.level); got != tt.want {
			t.Errorf("env=%s level=%q: want %s got %s", tt.env, tt.level, tt.want, got)
		}
	}
}

func TestProdLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "prod", "warn")
	log.Info("relay.join")
	log.Warn("relay.join.evicted", "session", "c-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("info should be filtered at warn level, got %d lines", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["svc"] != "classroom-relay" || rec["session"] != "c-1" {
		t.Fatalf("unexpected record %v", rec)
	}
}
