package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestFanout_RespectsEachLevel(t *testing.T) {
	var jsonBuf, textBuf bytes.Buffer
	logger := slog.New(fanout{
		slog.NewJSONHandler(&jsonBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&textBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	})

	logger.With("component", "retriever").Info("corpus indexed", "snippets", 12)
	logger.Warn("rate limit exceeded")

	lines := strings.Split(strings.TrimSpace(jsonBuf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("json lines = %d; want 2", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["component"] != "retriever" || rec["snippets"] != float64(12) {
		t.Errorf("record = %v; want attrs carried through", rec)
	}

	if strings.Contains(textBuf.String(), "corpus indexed") {
		t.Error("text handler should drop info records below its level")
	}
	if !strings.Contains(textBuf.String(), "rate limit exceeded") {
		t.Error("text handler should receive warn records")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v; want %v", in, got, want)
		}
	}
}
