package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/optimalversion/claude-usage/internal/config"
	"github.com/optimalversion/claude-usage/internal/locator"
	"github.com/optimalversion/claude-usage/internal/report"
	"github.com/optimalversion/claude-usage/internal/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usageTranscript = "\x1b[2J\x1b[HCurrent session\n" +
	"\x1b[32m45% used\x1b[0m\n" +
	"Resets 3:00pm (America/NY)\n" +
	"Current week (all models)\n" +
	"12% used\n" +
	"Resets Jan 5, 2025\n" +
	"Current week (Sonnet only)\n" +
	"7% used\n"

type stubs struct {
	located    string
	explicit   string
	captured   string
	transcript string
	locateErr  error
	captureErr error
	endpoint   string
}

func installStubs(t *testing.T, cfg config.Config, s *stubs) {
	t.Helper()

	previousLoad, previousLocate, previousCapture, previousTelemetry := loadConfigFn, locateFn, captureFn, telemetryInitFn
	t.Cleanup(func() {
		loadConfigFn, locateFn, captureFn, telemetryInitFn = previousLoad, previousLocate, previousCapture, previousTelemetry
	})

	if cfg.LogDir == "" {
		cfg.LogDir = t.TempDir()
	}
	loadConfigFn = func(context.Context) (*config.Config, error) {
		copied := cfg
		return &copied, nil
	}
	locateFn = func(explicit string) (string, error) {
		s.explicit = explicit
		if s.locateErr != nil {
			return "", s.locateErr
		}
		return s.located, nil
	}
	captureFn = func(_ context.Context, path string, _ *log.Logger) (string, error) {
		s.captured = path
		return s.transcript, s.captureErr
	}
	telemetryInitFn = func(_ context.Context, endpoint string) (func(), error) {
		s.endpoint = endpoint
		return func() {}, nil
	}
}

func defaultConfig() config.Config {
	return config.Defaults()
}

func runForTest(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func decodeResult(t *testing.T, output string) map[string]any {
	t.Helper()
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &decoded), "output: %s", output)
	return decoded
}

func TestRootCommandVersionFlag(t *testing.T) {
	originalVersion := Version
	defer func() {
		Version = originalVersion
	}()
	Version = "v0.1.0-test"

	stdout, _, err := runForTest(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "v0.1.0-test", strings.TrimSpace(stdout))
}

func TestRootCommandHelpListsFlags(t *testing.T) {
	stdout, _, err := runForTest(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"bugreport", "--claude", "--format", "--log-level", "--otel-endpoint", "--raw"} {
		assert.Contains(t, stdout, name)
	}
}

func TestRunPrintsParsedUsageAsJSON(t *testing.T) {
	s := &stubs{located: "/opt/claude/bin/claude", transcript: usageTranscript}
	installStubs(t, defaultConfig(), s)

	stdout, stderr, err := runForTest(t)
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Equal(t, "/opt/claude/bin/claude", s.captured)

	decoded := decodeResult(t, stdout)
	assert.Equal(t, float64(45), decoded["session_percent"])
	assert.Equal(t, "3:00pm (America/NY)", decoded["session_reset"])
	assert.Equal(t, float64(12), decoded["weekly_percent"])
	assert.Equal(t, "Jan 5, 2025", decoded["weekly_reset"])
	assert.Equal(t, float64(7), decoded["sonnet_percent"])
	assert.Nil(t, decoded["error"])
	assert.Contains(t, decoded["raw"], "Current session")
}

func TestRunReportsMissingExecutable(t *testing.T) {
	s := &stubs{locateErr: locator.ErrNotFound}
	installStubs(t, defaultConfig(), s)

	stdout, _, err := runForTest(t)
	require.ErrorIs(t, err, errReported)
	assert.Empty(t, s.captured)

	decoded := decodeResult(t, stdout)
	assert.Equal(t, report.NotFoundMessage, decoded["error"])
	assert.Equal(t, float64(0), decoded["session_percent"])
}

func TestRunReportsCaptureFailure(t *testing.T) {
	s := &stubs{
		located:    "/usr/bin/claude",
		captureErr: &terminal.SessionError{Op: "launch", Err: errors.New("fork failed")},
	}
	installStubs(t, defaultConfig(), s)

	stdout, _, err := runForTest(t)
	require.ErrorIs(t, err, errReported)

	decoded := decodeResult(t, stdout)
	assert.Equal(t, "Unexpected error: launch: fork failed", decoded["error"])
}

func TestRunReportsConfigFailureAsJSON(t *testing.T) {
	installStubs(t, defaultConfig(), &stubs{})
	loadConfigFn = func(context.Context) (*config.Config, error) {
		return nil, errors.New("bad toml")
	}

	stdout, _, err := runForTest(t)
	require.ErrorIs(t, err, errReported)

	decoded := decodeResult(t, stdout)
	assert.Equal(t, "Unexpected error: load config: bad toml", decoded["error"])
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.ClaudePath = "/from/config/claude"
	cfg.OTELEndpoint = "http://config:4318"
	s := &stubs{located: "/from/flag/claude", transcript: usageTranscript}
	installStubs(t, cfg, s)

	_, _, err := runForTest(t, "--claude", " /from/flag/claude ", "--otel-endpoint", "http://flag:4318")
	require.NoError(t, err)
	assert.Equal(t, "/from/flag/claude", s.explicit)
	assert.Equal(t, "http://flag:4318", s.endpoint)
}

func TestConfigValuesUsedWithoutFlags(t *testing.T) {
	cfg := defaultConfig()
	cfg.ClaudePath = "/from/config/claude"
	cfg.OTELEndpoint = "http://config:4318"
	s := &stubs{located: "/from/config/claude", transcript: usageTranscript}
	installStubs(t, cfg, s)

	_, _, err := runForTest(t)
	require.NoError(t, err)
	assert.Equal(t, "/from/config/claude", s.explicit)
	assert.Equal(t, "http://config:4318", s.endpoint)
}

func TestTextFormatRendersBars(t *testing.T) {
	s := &stubs{located: "/usr/bin/claude", transcript: usageTranscript}
	installStubs(t, defaultConfig(), s)

	stdout, _, err := runForTest(t, "--format", "TEXT")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Current session")
	assert.Contains(t, stdout, "45%")
	assert.Contains(t, stdout, "resets Jan 5, 2025")
	assert.NotContains(t, stdout, "{")
}

func TestTextFormatFailure(t *testing.T) {
	s := &stubs{locateErr: locator.ErrNotFound}
	cfg := defaultConfig()
	cfg.Format = config.FormatText
	installStubs(t, cfg, s)

	stdout, _, err := runForTest(t)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stdout, report.NotFoundMessage)
}

func TestRawFlagPrintsCleanedTranscript(t *testing.T) {
	s := &stubs{located: "/usr/bin/claude", transcript: usageTranscript}
	installStubs(t, defaultConfig(), s)

	stdout, _, err := runForTest(t, "--raw")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "\x1b")
	assert.Contains(t, stdout, "45% used")
	assert.NotContains(t, stdout, "session_percent")
}

func TestInvalidFormatFlagIsUsageError(t *testing.T) {
	installStubs(t, defaultConfig(), &stubs{located: "/usr/bin/claude"})

	stdout, _, err := runForTest(t, "--format", "yaml")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errReported))
	assert.Contains(t, err.Error(), "unsupported format")
	assert.Empty(t, stdout)
}

func TestPositionalArgumentsRejected(t *testing.T) {
	installStubs(t, defaultConfig(), &stubs{located: "/usr/bin/claude"})

	_, _, err := runForTest(t, "extra")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errReported))
}

func TestRunWritesLogFile(t *testing.T) {
	cfg := defaultConfig()
	cfg.LogDir = t.TempDir()
	cfg.LogLevel = "debug"
	installStubs(t, cfg, &stubs{located: "/usr/bin/claude", transcript: usageTranscript})

	_, _, err := runForTest(t)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(cfg.LogDir, "claude-usage-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	contents, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(contents), "usage parsed")
	assert.Contains(t, string(contents), "claude executable resolved")
}

func TestUnwritableLogDirFallsBackToDiscard(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := defaultConfig()
	cfg.LogDir = filepath.Join(blocker, "logs")
	installStubs(t, cfg, &stubs{located: "/usr/bin/claude", transcript: usageTranscript})

	stdout, stderr, err := runForTest(t)
	require.NoError(t, err)
	assert.Contains(t, stderr, "file logging disabled")
	assert.Nil(t, decodeResult(t, stdout)["error"])
}
