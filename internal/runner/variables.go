package runner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/inercia/mcproxy/internal/appdir"
)

// VariableResolver substitutes well-known variables into sandbox restriction
// paths before they reach the restricted-runner backend.
//
// Supported variables (both $VAR and ${VAR} syntax): $CHILD_DIR (the child's
// working directory), $HOME, $MCPROXY_DIR (mcproxy's data directory), $USER,
// $TMPDIR.
type VariableResolver struct {
	childDir   string
	home       string
	mcproxyDir string
	user       string
	tmpDir     string
}

// NewVariableResolver creates a resolver bound to a child's working directory.
func NewVariableResolver(childDir string) (*VariableResolver, error) {
	home, _ := os.UserHomeDir()
	mcproxyDir, _ := appdir.Dir()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	return &VariableResolver{
		childDir:   childDir,
		home:       home,
		mcproxyDir: mcproxyDir,
		user:       user,
		tmpDir:     os.TempDir(),
	}, nil
}

// Resolve replaces variables in a path and expands a leading ~.
func (vr *VariableResolver) Resolve(path string) string {
	path = strings.ReplaceAll(path, "${CHILD_DIR}", vr.childDir)
	path = strings.ReplaceAll(path, "$CHILD_DIR", vr.childDir)
	path = strings.ReplaceAll(path, "${HOME}", vr.home)
	path = strings.ReplaceAll(path, "$HOME", vr.home)
	path = strings.ReplaceAll(path, "${MCPROXY_DIR}", vr.mcproxyDir)
	path = strings.ReplaceAll(path, "$MCPROXY_DIR", vr.mcproxyDir)
	path = strings.ReplaceAll(path, "${USER}", vr.user)
	path = strings.ReplaceAll(path, "$USER", vr.user)
	path = strings.ReplaceAll(path, "${TMPDIR}", vr.tmpDir)
	path = strings.ReplaceAll(path, "$TMPDIR", vr.tmpDir)

	if strings.HasPrefix(path, "~/") {
		path = filepath.Join(vr.home, path[2:])
	}

	return path
}

// ResolvePaths resolves variables in a list of paths.
func (vr *VariableResolver) ResolvePaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	resolved := make([]string, len(paths))
	for i, path := range paths {
		resolved[i] = vr.Resolve(path)
	}
	return resolved
}

// resolveVariables resolves all path-bearing fields of a Restrictions value.
func resolveVariables(restrictions *Restrictions, resolver *VariableResolver) *Restrictions {
	if restrictions == nil {
		return nil
	}

	resolved := &Restrictions{
		AllowNetworking: restrictions.AllowNetworking,
		Docker:          restrictions.Docker,
	}
	resolved.AllowReadFolders = resolver.ResolvePaths(restrictions.AllowReadFolders)
	resolved.AllowWriteFolders = resolver.ResolvePaths(restrictions.AllowWriteFolders)
	resolved.DenyFolders = resolver.ResolvePaths(restrictions.DenyFolders)

	return resolved
}
