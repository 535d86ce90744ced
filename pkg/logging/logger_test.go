package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		enable  slog.Level
		disable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"warn level", "warn", slog.LevelWarn, slog.LevelInfo},
		{"warning alias", "WARNING", slog.LevelWarn, slog.LevelInfo},
		{"default info", "", slog.LevelInfo, slog.LevelDebug},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
			if logger.Enabled(ctx, tt.disable) {
				t.Fatalf("expected level %s to be disabled", tt.disable)
			}
		})
	}
}

func TestDefaultLoggerIsNotShared(t *testing.T) {
	if Default() == Default() {
		t.Error("Default() returned the same instance twice")
	}
}

func TestWithComponentTagsOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).WithComponent("intent")
	logger.Info("classified", "intent", "greeting")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["component"] != "intent" {
		t.Fatalf("component attr = %v", line["component"])
	}
	if line["intent"] != "greeting" {
		t.Fatalf("intent attr = %v", line["intent"])
	}
}

func TestNilLoggerHelpers(t *testing.T) {
	var l *Logger
	if l.WithComponent("x") == nil {
		t.Fatal("WithComponent on nil receiver returned nil")
	}
	if l.With("k", "v") == nil {
		t.Fatal("With on nil receiver returned nil")
	}
	Discard().Error("dropped")
}
