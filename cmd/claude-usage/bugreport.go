package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/optimalversion/claude-usage/internal/config"
	"github.com/spf13/cobra"
)

const (
	bugreportLogLimit     = 3
	bugreportVersionLimit = 10 * time.Second
)

var (
	bugreportNowFn = func() time.Time {
		return time.Now().UTC()
	}
	bugreportHomeDirFn = os.UserHomeDir
	bugreportGetwdFn   = os.Getwd
	bugreportRunCmdFn  = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}
)

func newBugreportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bugreport",
		Short: "Collect recent logs and settings into an archive for debugging",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigFn(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: using default settings: %v\n", err)
				defaults := config.Defaults()
				cfg = &defaults
			}
			return runBugReport(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func runBugReport(ctx context.Context, out io.Writer, cfg *config.Config) error {
	homeDir, err := bugreportHomeDirFn()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	homeDir = filepath.Clean(homeDir)
	if strings.TrimSpace(homeDir) == "" || homeDir == "." {
		return fmt.Errorf("home directory is not valid")
	}

	cwd, err := bugreportGetwdFn()
	if err != nil {
		return fmt.Errorf("resolve current directory: %w", err)
	}
	cwd = filepath.Clean(cwd)

	if cfg == nil {
		defaults := config.Defaults()
		cfg = &defaults
	}

	timestamp := bugreportNowFn().Format("20060102-150405")
	bundlePath := filepath.Join(cwd, fmt.Sprintf(".claude-usage-bugreport-%s.tar.gz", timestamp))

	stagingDir, err := os.MkdirTemp("", "claude-usage-bugreport-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(stagingDir)
	}()

	summary, err := collectBugreportArtifacts(ctx, homeDir, cwd, stagingDir, cfg)
	if err != nil {
		return err
	}
	if err := writeBugreportREADME(stagingDir, summary); err != nil {
		return err
	}
	if err := archiveBugreport(stagingDir, bundlePath); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(out, "Bug report written to: %s. Share for debugging.\n", bundlePath); err != nil {
		return fmt.Errorf("write bugreport output: %w", err)
	}
	return nil
}

type bugreportSummary struct {
	Timestamp string
	Version   string
	LogFiles  []string
	RunID     string
	TraceID   string
	Warnings  []string
}

func collectBugreportArtifacts(
	ctx context.Context,
	homeDir string,
	cwd string,
	stagingDir string,
	cfg *config.Config,
) (bugreportSummary, error) {
	summary := bugreportSummary{
		Timestamp: bugreportNowFn().Format(time.RFC3339),
		Version:   Version,
		Warnings:  make([]string, 0),
	}

	logsDir := strings.TrimSpace(cfg.LogDir)
	if logsDir == "" {
		logsDir = filepath.Join(homeDir, config.DirName, "logs")
	}
	logFiles, warnings := copyRecentLogs(logsDir, stagingDir, bugreportLogLimit)
	summary.LogFiles = logFiles
	summary.Warnings = append(summary.Warnings, warnings...)

	summary.RunID, summary.TraceID = extractLastCorrelation(logFiles)
	if summary.RunID == "" && summary.TraceID == "" {
		summary.Warnings = append(summary.Warnings, "no run_id/trace_id found in copied logs")
	}

	if err := writeLastRunFile(stagingDir, summary.RunID, summary.TraceID); err != nil {
		return bugreportSummary{}, err
	}
	if err := writeVersionFile(ctx, stagingDir, summary.Version, cfg.ClaudePath, &summary); err != nil {
		return bugreportSummary{}, err
	}
	configSources := map[string]string{
		"config-user.toml":    filepath.Join(homeDir, config.DirName, "config.toml"),
		"config-project.toml": filepath.Join(cwd, config.DirName, "config.toml"),
	}
	for name, source := range configSources {
		if err := copyRedactedConfig(source, filepath.Join(stagingDir, name)); err != nil {
			return bugreportSummary{}, err
		}
	}

	return summary, nil
}

func copyRecentLogs(logsDir string, stagingDir string, limit int) ([]string, []string) {
	files, err := newestFiles(logsDir, limit)
	if err != nil {
		return nil, []string{fmt.Sprintf("unable to read logs directory: %v", err)}
	}

	destDir := filepath.Join(stagingDir, "logs")
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, []string{fmt.Sprintf("unable to create logs staging directory: %v", err)}
	}

	warnings := make([]string, 0)
	copiedPaths := make([]string, 0, len(files))
	for _, file := range files {
		// #nosec G304 -- source path comes from the log directory listing.
		data, readErr := os.ReadFile(file.path)
		if readErr != nil {
			warnings = append(warnings, fmt.Sprintf("unable to read log %s: %v", file.path, readErr))
			continue
		}
		dstPath := filepath.Join(destDir, filepath.Base(file.path))
		if writeErr := os.WriteFile(dstPath, data, 0o600); writeErr != nil {
			warnings = append(warnings, fmt.Sprintf("unable to stage log %s: %v", file.path, writeErr))
			continue
		}
		copiedPaths = append(copiedPaths, file.path)
	}
	return copiedPaths, warnings
}

// extractLastCorrelation scans logs newest first and returns the run_id and
// trace_id of the last record that carries either.
func extractLastCorrelation(logPaths []string) (string, string) {
	for _, logPath := range logPaths {
		// #nosec G304 -- log paths come from the log directory listing.
		data, err := os.ReadFile(logPath)
		if err != nil {
			continue
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			line := strings.TrimSpace(lines[i])
			if line == "" {
				continue
			}
			record := map[string]any{}
			if err := json.Unmarshal([]byte(line), &record); err != nil {
				continue
			}
			runID := asString(record["run_id"])
			traceID := asString(record["trace_id"])
			if runID == "" && traceID == "" {
				continue
			}
			return runID, traceID
		}
	}
	return "", ""
}

func writeLastRunFile(stagingDir, runID, traceID string) error {
	content := fmt.Sprintf("run_id: %s\ntrace_id: %s\n", runID, traceID)
	if err := os.WriteFile(filepath.Join(stagingDir, "last-run.txt"), []byte(content), 0o600); err != nil {
		return fmt.Errorf("write last-run.txt: %w", err)
	}
	return nil
}

func writeVersionFile(ctx context.Context, stagingDir, version, explicit string, summary *bugreportSummary) error {
	lines := []string{fmt.Sprintf("claude-usage version: %s", strings.TrimSpace(version))}

	path, err := locateFn(explicit)
	if err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("claude executable not found: %v", err))
		lines = append(lines, "claude path: not found")
	} else {
		versionCtx, cancel := context.WithTimeout(ctx, bugreportVersionLimit)
		defer cancel()
		lines = append(lines,
			fmt.Sprintf("claude path: %s", path),
			fmt.Sprintf("claude version: %s", runCommandForBugreport(versionCtx, path, "--version")),
		)
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(stagingDir, "version.txt"), []byte(content), 0o600); err != nil {
		return fmt.Errorf("write version.txt: %w", err)
	}
	return nil
}

func copyRedactedConfig(source, destination string) error {
	// #nosec G304 -- config paths are fixed under the settings directories.
	configData, err := os.ReadFile(source)
	if err != nil {
		configData = []byte(fmt.Sprintf("# %s unavailable\n", source))
	}
	if err := os.WriteFile(destination, []byte(redactSensitiveConfig(string(configData))), 0o600); err != nil {
		return fmt.Errorf("write redacted config %s: %w", filepath.Base(destination), err)
	}
	return nil
}

// redactSensitiveConfig masks the value of every TOML key that looks like a
// credential, e.g. an OTLP header token.
func redactSensitiveConfig(configText string) string {
	lines := strings.Split(configText, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if !isSensitiveKey(strings.ToLower(strings.TrimSpace(parts[0]))) {
			continue
		}
		lines[i] = parts[0] + `= "***REDACTED***"`
	}
	return strings.Join(lines, "\n")
}

func isSensitiveKey(key string) bool {
	for _, marker := range []string{"token", "password", "secret", "apikey", "api_key", "auth", "bearer", "header"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

func runCommandForBugreport(ctx context.Context, name string, args ...string) string {
	output, err := bugreportRunCmdFn(ctx, name, args...)
	text := strings.TrimSpace(string(output))
	if err == nil {
		return text
	}
	if text == "" {
		return fmt.Sprintf("error: %v", err)
	}
	return text + "\nerror: " + err.Error()
}

func writeBugreportREADME(stagingDir string, summary bugreportSummary) error {
	builder := strings.Builder{}
	builder.WriteString("claude-usage Bug Report\n")
	builder.WriteString("=======================\n\n")
	builder.WriteString(fmt.Sprintf("Generated: %s\n", summary.Timestamp))
	builder.WriteString(fmt.Sprintf("Version: %s\n", summary.Version))
	builder.WriteString(fmt.Sprintf("run_id: %s\n", summary.RunID))
	builder.WriteString(fmt.Sprintf("trace_id: %s\n\n", summary.TraceID))
	builder.WriteString("Included artifacts:\n")
	builder.WriteString(fmt.Sprintf("- logs/ (up to last %d log files)\n", bugreportLogLimit))
	builder.WriteString("- config-user.toml, config-project.toml (redacted)\n")
	builder.WriteString("- version.txt\n")
	builder.WriteString("- last-run.txt\n\n")
	builder.WriteString("Usage:\n")
	builder.WriteString("- Attach `claude-usage --raw` output when usage numbers look wrong.\n")
	builder.WriteString("- Use run_id/trace_id to correlate logs with traces.\n")
	if len(summary.Warnings) > 0 {
		builder.WriteString("\nWarnings:\n")
		for _, warning := range summary.Warnings {
			builder.WriteString("- " + warning + "\n")
		}
	}

	if err := os.WriteFile(filepath.Join(stagingDir, "README.txt"), []byte(builder.String()), 0o600); err != nil {
		return fmt.Errorf("write README.txt: %w", err)
	}
	return nil
}

func archiveBugreport(stagingDir, destination string) (err error) {
	// #nosec G304 -- destination is generated in the working directory with a fixed name pattern.
	archiveFile, err := os.OpenFile(destination, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", destination, err)
	}
	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)
	defer func() {
		for _, closer := range []io.Closer{tarWriter, gzipWriter, archiveFile} {
			if closeErr := closer.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("finalize archive %s: %w", destination, closeErr)
			}
		}
	}()

	walkErr := filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("read file info for %s: %w", path, err)
		}
		relPath, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return fmt.Errorf("compute archive path for %s: %w", path, err)
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("create tar header for %s: %w", path, err)
		}
		header.Name = filepath.ToSlash(relPath)
		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar header for %s: %w", path, err)
		}

		// #nosec G304 -- walk paths originate from the staging directory.
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s for archive: %w", path, err)
		}
		defer file.Close()
		if _, err := io.Copy(tarWriter, file); err != nil {
			return fmt.Errorf("copy %s into archive: %w", path, err)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("archive bugreport: %w", walkErr)
	}
	return nil
}

type datedFile struct {
	path    string
	modTime time.Time
}

func newestFiles(dir string, limit int) ([]datedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]datedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, datedFile{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func asString(value any) string {
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return ""
}
