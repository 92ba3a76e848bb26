// Package appdir locates the mcproxy data directory used by the CLI for its
// default configuration file. The core bridge subsystem never touches this
// package directly; it only ever consumes an in-memory child configuration
// list handed to it by the CLI.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// DirEnv overrides the mcproxy data directory.
	DirEnv = "MCPROXY_DIR"

	// ConfigFileName is the default name of the child-configuration file.
	ConfigFileName = "config.yaml"
)

var (
	cachedDir string
	mu        sync.RWMutex
)

// Dir returns the mcproxy data directory path:
//  1. MCPROXY_DIR environment variable, if set
//  2. macOS: ~/Library/Application Support/mcproxy
//  3. Windows: %APPDATA%\mcproxy
//  4. else: $XDG_DATA_HOME/mcproxy or ~/.local/share/mcproxy
//
// This only computes the path; it does not create the directory.
func Dir() (string, error) {
	mu.RLock()
	if cachedDir != "" {
		dir := cachedDir
		mu.RUnlock()
		return dir, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if cachedDir != "" {
		return cachedDir, nil
	}

	dir, err := resolveDir()
	if err != nil {
		return "", err
	}

	cachedDir = dir
	return dir, nil
}

func resolveDir() (string, error) {
	if envDir := os.Getenv(DirEnv); envDir != "" {
		return envDir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, "Library", "Application Support", "mcproxy"), nil

	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		return filepath.Join(appData, "mcproxy"), nil

	default:
		dataDir := os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dataDir = filepath.Join(homeDir, ".local", "share")
		}
		return filepath.Join(dataDir, "mcproxy"), nil
	}
}

// EnsureDir creates the mcproxy data directory if it doesn't already exist.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create mcproxy directory %s: %w", dir, err)
	}
	return nil
}

// ConfigPath returns the full path to the default child-configuration file.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// ResetCache clears the cached directory path. Useful for testing.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cachedDir = ""
}
