package child

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ErrCommandNotFound is returned when no candidate for a command token
// resolves to an executable file.
var ErrCommandNotFound = errors.New("child: command not found")

// fallbackPath lists the fixed directories searched for a bare command
// name, and prepended to the inherited PATH for the spawned process.
var fallbackPath = []string{"/usr/local/bin", "/usr/bin", "/bin", "/opt/homebrew/bin"}

// resolveCommand implements the Child Supervisor's spawn resolution order:
// absolute/relative/tilde paths are used literally (after expansion) and
// verified executable; otherwise the fixed PATH fallback list is searched;
// failing that, a generic `env` launcher is used so the OS's own PATH
// lookup gets a final chance.
func resolveCommand(token string) (path string, isEnvFallback bool, err error) {
	if token == "" {
		return "", false, ErrCommandNotFound
	}

	if strings.HasPrefix(token, "/") || strings.HasPrefix(token, "./") || strings.HasPrefix(token, "../") || strings.HasPrefix(token, "~") {
		expanded := expandTilde(token)
		if isExecutable(expanded) {
			return expanded, false, nil
		}
		return "", false, ErrCommandNotFound
	}

	for _, dir := range fallbackPath {
		candidate := filepath.Join(dir, token)
		if isExecutable(candidate) {
			return candidate, false, nil
		}
	}

	// Fall back to a generic launcher; env performs its own PATH lookup at
	// exec time and will itself fail with CommandNotFound-equivalent if the
	// token resolves to nothing.
	if envPath, err := lookupEnvLauncher(); err == nil {
		return envPath, true, nil
	}

	return "", false, ErrCommandNotFound
}

// resolveArgsForEnvFallback prepends the original token as argv[0] for the
// `env` launcher, since env expects the real command as its first argument.
func resolveArgsForEnvFallback(token string, args []string) []string {
	return append([]string{token}, args...)
}

func lookupEnvLauncher() (string, error) {
	for _, dir := range append([]string{"/usr/bin", "/bin"}, fallbackPath...) {
		candidate := filepath.Join(dir, "env")
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", ErrCommandNotFound
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := homeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func homeDir() (string, error) {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.HomeDir, nil
}

// composeEnv inherits the current process environment, prepends
// fallbackPath to PATH, and overlays the child's own env map.
func composeEnv(overlay map[string]string) []string {
	base := os.Environ()
	env := make([]string, 0, len(base)+len(overlay))

	prepend := strings.Join(fallbackPath, string(os.PathListSeparator))
	pathSeen := false

	for _, kv := range base {
		if strings.HasPrefix(kv, "PATH=") {
			pathSeen = true
			kv = "PATH=" + prepend + string(os.PathListSeparator) + kv[len("PATH="):]
		}
		env = append(env, kv)
	}
	if !pathSeen {
		env = append(env, "PATH="+prepend)
	}

	for k, v := range overlay {
		env = append(env, k+"="+v)
	}

	return env
}
