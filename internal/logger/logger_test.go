package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.log")
	log := New(Config{FilePath: path})
	log.Info("daemon listening", "port", 8080)

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, "daemon listening") || !strings.Contains(out, "port=8080") {
		t.Fatalf("unexpected log content: %q", out)
	}
}

func TestColorHandlerAddsLevelColor(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	r := slog.NewRecord(time.Now(), slog.LevelWarn, "careful", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "\033[33m") || !strings.Contains(out, "careful") {
		t.Fatalf("expected yellow WARN prefix, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	log.Debug("hidden")
	log.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record leaked past warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn record missing")
	}
}
