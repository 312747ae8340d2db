package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// DirName is the per-user and per-project settings directory.
	DirName  = ".claude-usage"
	fileName = "config.toml"

	// FormatJSON prints the usage record as a single JSON object.
	FormatJSON = "json"
	// FormatText prints labeled usage bars for people.
	FormatText = "text"

	defaultFormat   = FormatJSON
	defaultLogLevel = "info"
)

var (
	validFormats   = map[string]struct{}{FormatJSON: {}, FormatText: {}}
	validLogLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}
)

// Config stores runtime settings loaded from TOML files.
type Config struct {
	ClaudePath   string
	Format       string
	LogLevel     string
	LogDir       string
	OTELEndpoint string
}

type fileConfig struct {
	ClaudePath   *string     `toml:"claude_path"`
	Format       *string     `toml:"format"`
	LogLevel     *string     `toml:"log_level"`
	LogDir       *string     `toml:"log_dir"`
	OTLPEndpoint *string     `toml:"otel_endpoint"`
	OTEL         *otelConfig `toml:"otel"`
}

type otelConfig struct {
	Endpoint *string `toml:"endpoint"`
}

// Load reads config from ~/.claude-usage/config.toml and overlays a
// project-local .claude-usage/config.toml.
func Load(ctx context.Context) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	_ = ctx
	return LoadFiles(
		filepath.Join(homeDir, DirName, fileName),
		filepath.Join(workingDir, DirName, fileName),
	)
}

// LoadFiles applies each existing file over the defaults, in order. Missing
// files are skipped.
func LoadFiles(paths ...string) (*Config, error) {
	cfg := Defaults()
	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Defaults returns the settings used when no file overrides them.
func Defaults() Config {
	return Config{
		Format:   defaultFormat,
		LogLevel: defaultLogLevel,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	return applyOverrides(cfg, decoded, path)
}

func applyOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.ClaudePath != nil {
		cfg.ClaudePath = strings.TrimSpace(*decoded.ClaudePath)
	}
	if decoded.Format != nil {
		format, err := NormalizeFormat(*decoded.Format)
		if err != nil {
			return fmt.Errorf("parse format in %q: %w", path, err)
		}
		cfg.Format = format
	}
	if decoded.LogLevel != nil {
		level, err := NormalizeLogLevel(*decoded.LogLevel)
		if err != nil {
			return fmt.Errorf("parse log_level in %q: %w", path, err)
		}
		cfg.LogLevel = level
	}
	if decoded.LogDir != nil {
		cfg.LogDir = strings.TrimSpace(*decoded.LogDir)
	}
	if decoded.OTLPEndpoint != nil {
		cfg.OTELEndpoint = strings.TrimSpace(*decoded.OTLPEndpoint)
	}
	if decoded.OTEL != nil && decoded.OTEL.Endpoint != nil {
		cfg.OTELEndpoint = strings.TrimSpace(*decoded.OTEL.Endpoint)
	}
	return nil
}

// NormalizeFormat lowercases value and checks it names a known output format.
func NormalizeFormat(value string) (string, error) {
	format := normalizeKey(value)
	if _, ok := validFormats[format]; !ok {
		return "", fmt.Errorf("unsupported format %q (want %s or %s)", value, FormatJSON, FormatText)
	}
	return format, nil
}

// NormalizeLogLevel lowercases value and checks it names a known log level.
func NormalizeLogLevel(value string) (string, error) {
	level := normalizeKey(value)
	if _, ok := validLogLevels[level]; !ok {
		return "", fmt.Errorf("unsupported log level %q", value)
	}
	return level, nil
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
