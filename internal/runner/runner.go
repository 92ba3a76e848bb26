// Package runner provides optional sandboxed execution for mcproxy child
// processes.
//
// By default, a child runs with no restrictions (the exec runner). A child's
// ChildConfig.Sandbox field opts it into a restricted backend (sandbox-exec,
// firejail, or docker) via github.com/inercia/go-restricted-runner. If the
// requested backend is unavailable on the host, the runner falls back to exec
// and records why in FallbackInfo.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inercia/go-restricted-runner/pkg/common"
	grrunner "github.com/inercia/go-restricted-runner/pkg/runner"
)

// Runner wraps go-restricted-runner for child-process execution.
type Runner struct {
	runner grrunner.Runner
	typ    string
	logger *slog.Logger

	// FallbackInfo is non-nil if the requested sandbox type was unavailable
	// and execution fell back to the unrestricted exec runner.
	FallbackInfo *FallbackInfo
}

// FallbackInfo describes a runner fallback.
type FallbackInfo struct {
	RequestedType string
	FallbackType  string
	Reason        string
}

// NewRunner creates a runner for a child, resolving its sandbox configuration
// (nil means unrestricted exec). childDir is used to resolve $CHILD_DIR in
// restriction paths.
func NewRunner(cfg *SandboxConfig, childDir string, logger *slog.Logger) (*Runner, error) {
	runnerType := "exec"
	var restrictions *Restrictions
	if cfg != nil {
		if cfg.Type != "" {
			runnerType = cfg.Type
		}
		restrictions = cfg.Restrictions
	}

	varResolver, err := NewVariableResolver(childDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create variable resolver: %w", err)
	}
	restrictions = resolveVariables(restrictions, varResolver)

	options := toRunnerOptions(restrictions)

	runnerLogger, err := common.NewLogger("", "", common.LogLevelInfo, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner logger: %w", err)
	}

	r, err := grrunner.New(toRunnerType(runnerType), options, runnerLogger)

	var fallbackInfo *FallbackInfo
	if err != nil {
		fallbackInfo = &FallbackInfo{RequestedType: runnerType, FallbackType: "exec", Reason: err.Error()}
		if logger != nil {
			logger.Warn("restricted runner creation failed, falling back to exec",
				"requested_type", runnerType, "error", err.Error())
		}
		r, err = grrunner.New(grrunner.TypeExec, grrunner.Options{}, runnerLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback exec runner: %w", err)
		}
		runnerType = "exec"
	} else if err := r.CheckImplicitRequirements(); err != nil {
		fallbackInfo = &FallbackInfo{RequestedType: runnerType, FallbackType: "exec", Reason: err.Error()}
		if logger != nil {
			logger.Warn("restricted runner not available, falling back to exec",
				"requested_type", runnerType, "error", err.Error())
		}
		r, err = grrunner.New(grrunner.TypeExec, grrunner.Options{}, runnerLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback exec runner: %w", err)
		}
		runnerType = "exec"
	}

	if logger != nil {
		logger.Info("created runner", "type", runnerType, "child_dir", childDir, "fallback", fallbackInfo != nil)
	}

	return &Runner{runner: r, typ: runnerType, logger: logger, FallbackInfo: fallbackInfo}, nil
}

// RunWithPipes starts a command through the runner with stdin/stdout/stderr
// pipes. The caller must close stdin when done writing and call wait() to
// release resources; context cancellation kills the process.
func (r *Runner) RunWithPipes(
	ctx context.Context,
	command string,
	args []string,
	env []string,
) (stdin WriteCloser, stdout ReadCloser, stderr ReadCloser, wait func() error, err error) {
	return r.runner.RunWithPipes(ctx, command, args, env, nil)
}

// WriteCloser aliases io.WriteCloser for documentation clarity.
type WriteCloser = interface {
	Write(p []byte) (n int, err error)
	Close() error
}

// ReadCloser aliases io.ReadCloser for documentation clarity.
type ReadCloser = interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// Type returns the runner type actually in effect (after any fallback).
func (r *Runner) Type() string {
	return r.typ
}

// IsRestricted reports whether this runner applies restrictions (not exec).
func (r *Runner) IsRestricted() bool {
	return r.typ != "exec"
}
