package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "children.json")
	data := `{
		"children": [
			{"id": "echo", "name": "Echo Server", "command": "/usr/bin/echo", "port": 8123},
			{"id": "cat", "name": "Cat Server", "command": "cat", "args": ["-u"], "port": 0}
		]
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	children, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	if children[0].ID != "echo" || children[0].Port != 8123 {
		t.Errorf("unexpected first child: %+v", children[0])
	}
	if children[1].Command != "cat" || len(children[1].Args) != 1 || children[1].Args[0] != "-u" {
		t.Errorf("unexpected second child: %+v", children[1])
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "children.yaml")
	data := "children:\n" +
		"  - id: echo\n" +
		"    name: Echo Server\n" +
		"    command: /usr/bin/echo\n" +
		"    port: 8123\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	children, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	if children[0].ID != "echo" || children[0].Port != 8123 {
		t.Errorf("unexpected child: %+v", children[0])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/children.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidChild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "children.json")
	data := `{"children": [{"id": "bad", "name": "Bad", "command": "echo", "port": 80}]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for restricted system port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChildConfig
		wantErr bool
	}{
		{"valid ephemeral port", ChildConfig{ID: "a", Command: "echo", Port: 0}, false},
		{"valid explicit port", ChildConfig{ID: "a", Command: "echo", Port: 9000}, false},
		{"missing id", ChildConfig{Command: "echo", Port: 0}, true},
		{"missing command", ChildConfig{ID: "a", Port: 0}, true},
		{"restricted port", ChildConfig{ID: "a", Command: "echo", Port: 80}, true},
		{"negative port", ChildConfig{ID: "a", Command: "echo", Port: -1}, true},
		{"port too large", ChildConfig{ID: "a", Command: "echo", Port: 70000}, true},
		{"token and tokenRef both set", ChildConfig{ID: "a", Command: "echo", Token: "x", TokenRef: "y"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindByID(t *testing.T) {
	children := []ChildConfig{
		{ID: "a", Command: "echo"},
		{ID: "b", Command: "cat"},
	}

	if cfg, ok := FindByID(children, "b"); !ok || cfg.Command != "cat" {
		t.Errorf("expected to find child b, got %+v, ok=%v", cfg, ok)
	}
	if _, ok := FindByID(children, "missing"); ok {
		t.Error("expected not to find nonexistent child")
	}
}
