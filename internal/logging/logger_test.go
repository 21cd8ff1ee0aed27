package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, LevelInfo)
	logger.Debugf("hidden %d", 1)
	logger.Infof("visible %d", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["message"] != "visible 2" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestWithAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, LevelDebug).With("apiclient").Warnf("slow")
	if !strings.Contains(buf.String(), `"component":"apiclient"`) {
		t.Fatalf("component field missing: %s", buf.String())
	}
}

func TestNewCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	logger, err := New(path, LevelDebug)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Errorf("boom")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "boom") {
		t.Fatalf("log file missing entry: %s", data)
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := Nop()
	ctx := WithContext(context.Background(), logger)
	got, ok := FromContext(ctx)
	if !ok || got != logger {
		t.Fatalf("logger not found in context")
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected logger in empty context")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Infof("nothing")
	if logger.Level() != LevelInfo {
		t.Fatalf("nil logger level")
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
