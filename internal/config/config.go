// Package config loads the list of child process configurations that the
// CLI hands to the bridge core. The core itself never touches this package
// or the filesystem; it only ever consumes an in-memory []ChildConfig.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/inercia/mcproxy/internal/runner"
)

// ToolInfo is a flattened tool descriptor captured by discovery. It is
// cached on the ChildConfig at runtime but never loaded from or persisted
// to the config file.
type ToolInfo struct {
	Name        string         `json:"-" yaml:"-"`
	Description string         `json:"-" yaml:"-"`
	InputSchema map[string]any `json:"-" yaml:"-"`
}

// ChildConfig describes one MCP child process and the bridge exposed for it.
type ChildConfig struct {
	// ID uniquely identifies this child among all configured children.
	ID string `json:"id" yaml:"id"`
	// Name is a human-readable display name.
	Name string `json:"name" yaml:"name"`
	// Command is the executable token, resolved by internal/child. When Args
	// is empty it may carry a full shell-style command line ("npx -y
	// some-server"), which is split before resolution.
	Command string `json:"command" yaml:"command"`
	// Args is the argument list passed to Command.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Env overlays the inherited process environment.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	// WorkingDir is the child's working directory (tilde-expanded). Empty
	// means inherit the current process's working directory.
	WorkingDir string `json:"workingDir,omitempty" yaml:"workingDir,omitempty"`
	// Host is the listen address for this child's Mini-Server.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	// Port is the desired listen port; 0 means an ephemeral port is chosen.
	Port int `json:"port" yaml:"port"`
	// Token is an optional plaintext bearer token required on every request.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// TokenRef, when set, names a secret stored via internal/secrets instead
	// of keeping the bearer token in this file. Mutually exclusive with Token.
	TokenRef string `json:"tokenRef,omitempty" yaml:"tokenRef,omitempty"`
	// Sandbox opts this child into restricted execution. Nil means exec.
	Sandbox *runner.SandboxConfig `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`
	// DisabledTools names tools to hide from the discovered tool set.
	DisabledTools []string `json:"disabledTools,omitempty" yaml:"disabledTools,omitempty"`

	// Tools is the cached tool set from the last successful discovery run.
	Tools []ToolInfo `json:"-" yaml:"-"`
}

// file is the on-disk shape of a child-config file: a named list so the
// format can grow other top-level sections later without breaking old files.
type file struct {
	Children []ChildConfig `json:"children" yaml:"children"`
}

// Load reads and parses a child-config file. Format is detected by
// extension: .json is parsed as JSON, everything else as YAML.
func Load(path string) ([]ChildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f file
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	}

	for i := range f.Children {
		if err := Validate(f.Children[i]); err != nil {
			return nil, fmt.Errorf("child %d (%s): %w", i, f.Children[i].ID, err)
		}
	}

	return f.Children, nil
}

// Validate checks a single ChildConfig against the invariants of the data
// model: command must be non-empty, and a non-ephemeral port must be
// outside the restricted system range.
func Validate(cfg ChildConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("id must not be empty")
	}
	if cfg.Command == "" {
		return fmt.Errorf("command must not be empty")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range [0, 65535]", cfg.Port)
	}
	if cfg.Port > 0 && cfg.Port < 1024 {
		return fmt.Errorf("port %d is a restricted system port, use 0 or >=1024", cfg.Port)
	}
	if cfg.Token != "" && cfg.TokenRef != "" {
		return fmt.Errorf("token and tokenRef are mutually exclusive")
	}
	return nil
}

// FindByID returns the child config with the given id, or false if absent.
func FindByID(children []ChildConfig, id string) (ChildConfig, bool) {
	for _, c := range children {
		if c.ID == id {
			return c, true
		}
	}
	return ChildConfig{}, false
}
