// Package fileutil provides the JSON file I/O helpers the bridge's
// persistence-adjacent bits need: the defense blocklist (internal/defense)
// reads and atomically rewrites its on-disk entries through this package.
package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
)

// ReadJSON reads a JSON file and unmarshals it into the provided value.
// The value must be a pointer to the target type.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func marshalIndented(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// WriteJSON writes a value to a JSON file with pretty-printing.
// This is a simple write operation without atomicity guarantees.
func WriteJSON(path string, v any, perm os.FileMode) error {
	data, err := marshalIndented(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// WriteJSONAtomic writes a value to a JSON file atomically with pretty-printing.
// It writes to a temporary file, syncs to disk, then renames to the target path.
// This ensures the file is either fully written or not modified at all, which
// matters for the blocklist: a crash mid-write must never leave a truncated,
// unparseable blocklist file for the next startup to choke on.
func WriteJSONAtomic(path string, v any, perm os.FileMode) error {
	data, err := marshalIndented(v)
	if err != nil {
		return err
	}

	// Write to temp file first
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Sync to ensure data is on disk before rename
	f, err := os.Open(tmpPath)
	if err == nil {
		_ = f.Sync()
		f.Close()
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up temp file
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
