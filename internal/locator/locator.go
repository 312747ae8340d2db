package locator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const binaryName = "claude"

// ErrNotFound reports that no claude executable could be located.
var ErrNotFound = errors.New("claude executable not found")

// Locator resolves the claude executable: an explicit path first, then PATH,
// then well-known install locations.
type Locator struct {
	lookPath func(file string) (string, error)
	stat     func(name string) (fs.FileInfo, error)
	homeDir  func() (string, error)
}

// New returns a Locator backed by the real filesystem.
func New() *Locator {
	return &Locator{
		lookPath: exec.LookPath,
		stat:     os.Stat,
		homeDir:  os.UserHomeDir,
	}
}

// Find returns the absolute path of the claude executable. A non-empty
// explicit path is validated and used as-is without searching.
func (l *Locator) Find(explicit string) (string, error) {
	if l == nil {
		return "", errors.New("locator is nil")
	}

	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if !l.isExecutable(explicit) {
			return "", fmt.Errorf("configured claude path %q is not an executable file: %w", explicit, ErrNotFound)
		}
		return absPath(explicit), nil
	}

	if path, err := l.lookPath(binaryName); err == nil && strings.TrimSpace(path) != "" {
		return absPath(path), nil
	}

	for _, candidate := range l.candidates() {
		if l.isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}

// candidates lists install locations in the order they are probed.
func (l *Locator) candidates() []string {
	paths := make([]string, 0, 5)
	home, err := l.homeDir()
	home = strings.TrimSpace(home)
	if err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".local", "bin", binaryName))
	}
	paths = append(paths, "/usr/local/bin/claude", "/opt/homebrew/bin/claude")
	if err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".npm-global", "bin", binaryName))
	}
	return append(paths, "/usr/bin/claude")
}

func (l *Locator) isExecutable(path string) bool {
	info, err := l.stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
