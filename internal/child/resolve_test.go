package child

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveCommand_AbsolutePath(t *testing.T) {
	path, fallback, err := resolveCommand("/bin/cat")
	if err != nil {
		if path, fallback, err = resolveCommand("/usr/bin/cat"); err != nil {
			t.Skip("neither /bin/cat nor /usr/bin/cat is executable on this system")
		}
	}
	if fallback {
		t.Error("absolute path should not be env fallback")
	}
	if path == "" {
		t.Error("expected resolved path")
	}
}

func TestResolveCommand_NonExecutableAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-executable")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, _, err := resolveCommand(path); err != ErrCommandNotFound {
		t.Errorf("expected ErrCommandNotFound, got %v", err)
	}
}

func TestResolveCommand_Empty(t *testing.T) {
	if _, _, err := resolveCommand(""); err != ErrCommandNotFound {
		t.Errorf("expected ErrCommandNotFound, got %v", err)
	}
}

func TestResolveCommand_BareNameInFallbackPath(t *testing.T) {
	// "cat" exists in one of the fallback directories on virtually every
	// Unix system this test will run on.
	path, fallback, err := resolveCommand("cat")
	if err != nil {
		t.Skip("cat not found in any fallback directory on this system")
	}
	if fallback {
		t.Error("a directly-resolved bare name should not be marked env fallback")
	}
	if path == "" {
		t.Error("expected resolved path")
	}
}

func TestExpandTilde(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := expandTilde("~/foo"); got != filepath.Join(home, "foo") {
		t.Errorf("expected %s, got %s", filepath.Join(home, "foo"), got)
	}
	if got := expandTilde("/absolute/path"); got != "/absolute/path" {
		t.Errorf("expected unchanged absolute path, got %s", got)
	}
}

func TestComposeEnv_OverlayWins(t *testing.T) {
	env := composeEnv(map[string]string{"FOO": "bar"})
	found := false
	for _, kv := range env {
		if kv == "FOO=bar" {
			found = true
		}
	}
	if !found {
		t.Error("expected FOO=bar in composed environment")
	}
}

func TestComposeEnv_PrependsFallbackPath(t *testing.T) {
	env := composeEnv(nil)
	for _, kv := range env {
		if len(kv) > 5 && kv[:5] == "PATH=" {
			if kv[5:15] != "/usr/local" {
				t.Errorf("expected fallback path prepended to PATH, got %s", kv)
			}
			return
		}
	}
	t.Error("expected a PATH entry in composed environment")
}
