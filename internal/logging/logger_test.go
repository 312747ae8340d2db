package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONRecordsToDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(context.Background(), WithDir(dir), WithRunID("abc123"))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Logger.Info("session finished", "bytes", 42)
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if filepath.Dir(logger.Path()) != dir {
		t.Fatalf("log path = %q, want file in %q", logger.Path(), dir)
	}
	if !strings.HasSuffix(logger.Path(), "-abc123.log") {
		t.Fatalf("log path = %q, want run id suffix", logger.Path())
	}

	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &record); err != nil {
		t.Fatalf("decode record %q: %v", lines[len(lines)-1], err)
	}
	if record["msg"] != "session finished" {
		t.Fatalf("msg = %v, want session finished", record["msg"])
	}
	if record["run_id"] != "abc123" {
		t.Fatalf("run_id = %v, want abc123", record["run_id"])
	}
}

func TestNewRespectsLevel(t *testing.T) {
	t.Parallel()

	logger, err := New(context.Background(), WithDir(t.TempDir()), WithLevel("warn"))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Logger.Info("hidden")
	logger.Logger.Warn("shown")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Fatalf("info record written at warn level: %s", data)
	}
	if !strings.Contains(string(data), "shown") {
		t.Fatalf("warn record missing: %s", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), WithDir(t.TempDir()), WithLevel("loud")); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewGeneratesRunID(t *testing.T) {
	t.Parallel()

	logger, err := New(context.Background(), WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	if len(logger.RunID()) != 8 {
		t.Fatalf("run id = %q, want 8 hex characters", logger.RunID())
	}
}

func TestNilRuntimeLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var logger *RuntimeLogger
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if logger.Path() != "" || logger.RunID() != "" {
		t.Fatal("nil logger should report empty path and run id")
	}
}
