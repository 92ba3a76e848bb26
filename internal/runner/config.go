package runner

import (
	grrunner "github.com/inercia/go-restricted-runner/pkg/runner"
)

// DockerRestrictions configures the docker runner backend.
type DockerRestrictions struct {
	Image       string `json:"image,omitempty" yaml:"image,omitempty"`
	MemoryLimit string `json:"memoryLimit,omitempty" yaml:"memoryLimit,omitempty"`
	CPULimit    string `json:"cpuLimit,omitempty" yaml:"cpuLimit,omitempty"`
}

// Restrictions describes the sandbox restrictions applied to a child process.
type Restrictions struct {
	AllowNetworking   *bool               `json:"allowNetworking,omitempty" yaml:"allowNetworking,omitempty"`
	AllowReadFolders  []string            `json:"allowReadFolders,omitempty" yaml:"allowReadFolders,omitempty"`
	AllowWriteFolders []string            `json:"allowWriteFolders,omitempty" yaml:"allowWriteFolders,omitempty"`
	DenyFolders       []string            `json:"denyFolders,omitempty" yaml:"denyFolders,omitempty"`
	Docker            *DockerRestrictions `json:"docker,omitempty" yaml:"docker,omitempty"`
}

// SandboxConfig is the opt-in per-child sandboxing configuration. When Type is
// empty or "exec", the child runs unrestricted via os/exec.
type SandboxConfig struct {
	Type         string        `json:"type,omitempty" yaml:"type,omitempty"` // exec, sandbox-exec, firejail, docker
	Restrictions *Restrictions `json:"restrictions,omitempty" yaml:"restrictions,omitempty"`
}

// toRunnerOptions converts restrictions to go-restricted-runner options.
func toRunnerOptions(restrictions *Restrictions) grrunner.Options {
	options := grrunner.Options{}

	if restrictions == nil {
		return options
	}

	if restrictions.AllowNetworking != nil {
		options["allow_networking"] = *restrictions.AllowNetworking
	}
	if len(restrictions.AllowReadFolders) > 0 {
		options["allow_read_folders"] = restrictions.AllowReadFolders
	}
	if len(restrictions.AllowWriteFolders) > 0 {
		options["allow_write_folders"] = restrictions.AllowWriteFolders
	}
	if restrictions.Docker != nil {
		if restrictions.Docker.Image != "" {
			options["image"] = restrictions.Docker.Image
		}
		if restrictions.Docker.MemoryLimit != "" {
			options["memory_limit"] = restrictions.Docker.MemoryLimit
		}
		if restrictions.Docker.CPULimit != "" {
			options["cpu_limit"] = restrictions.Docker.CPULimit
		}
	}

	return options
}

// toRunnerType converts a string to a go-restricted-runner Type.
func toRunnerType(typeStr string) grrunner.Type {
	switch typeStr {
	case "sandbox-exec":
		return grrunner.TypeSandboxExec
	case "firejail":
		return grrunner.TypeFirejail
	case "docker":
		return grrunner.TypeDocker
	default:
		return grrunner.TypeExec
	}
}
