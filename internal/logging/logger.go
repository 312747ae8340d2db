package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	appDirName = ".claude-usage"
	filePrefix = "claude-usage"
)

// Option configures RuntimeLogger creation.
type Option func(*newOptions)

type newOptions struct {
	dir   string
	level string
	runID string
	now   func() time.Time
}

// WithDir writes the log file into dir instead of ~/.claude-usage/logs.
func WithDir(dir string) Option {
	return func(opts *newOptions) {
		opts.dir = strings.TrimSpace(dir)
	}
}

// WithLevel sets the minimum level ("debug", "info", "warn", "error").
func WithLevel(level string) Option {
	return func(opts *newOptions) {
		opts.level = strings.TrimSpace(level)
	}
}

// WithRunID configures the run_id field used in emitted log records.
func WithRunID(runID string) Option {
	return func(opts *newOptions) {
		opts.runID = strings.TrimSpace(runID)
	}
}

// RuntimeLogger writes structured JSON logs to disk. Nothing is written to
// stdout, which carries the command's result.
type RuntimeLogger struct {
	Logger *log.Logger
	file   *os.File
	path   string
	runID  string
}

// New opens a fresh log file for this run.
func New(ctx context.Context, options ...Option) (*RuntimeLogger, error) {
	resolved := resolveOptions(options)

	logDir := resolved.dir
	if logDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		logDir = filepath.Join(homeDir, appDirName, "logs")
	}
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	level, err := log.ParseLevel(resolved.level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	timestamp := resolved.now().UTC().Format("20060102-150405")
	filePath := filepath.Join(logDir, fmt.Sprintf("%s-%s-%s.log", filePrefix, timestamp, resolved.runID))
	// #nosec G304 -- filePath is constructed from trusted local paths.
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := log.NewWithOptions(file, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	logger.SetFormatter(log.JSONFormatter)

	runtimeLogger := &RuntimeLogger{
		Logger: logger.With("run_id", resolved.runID),
		file:   file,
		path:   filePath,
		runID:  resolved.runID,
	}
	runtimeLogger.Logger.With("log_file", filePath).Debug("logger initialized")

	_ = ctx
	return runtimeLogger, nil
}

// Close flushes and closes the log file.
func (r *RuntimeLogger) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Path returns the current log file path.
func (r *RuntimeLogger) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// RunID returns the identifier stamped on every record of this run.
func (r *RuntimeLogger) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

func resolveOptions(options []Option) newOptions {
	resolved := newOptions{
		level: "info",
		now:   time.Now,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&resolved)
	}
	if resolved.level == "" {
		resolved.level = "info"
	}
	if resolved.runID == "" {
		resolved.runID = newRunID()
	}
	return resolved
}

func newRunID() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "run"
	}
	return hex.EncodeToString(buf[:])
}
