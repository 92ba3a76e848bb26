// Package child supervises one MCP child process: executable resolution,
// environment composition, the three stdio pipes, and exactly-once exit
// delivery. Actual process creation goes through internal/runner so a
// child can opt into sandboxed execution.
package child

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/inercia/mcproxy/internal/config"
	"github.com/inercia/mcproxy/internal/logging"
	"github.com/inercia/mcproxy/internal/runner"
)

// ErrSpawnFailed wraps an OS-level failure to start the process.
type ErrSpawnFailed struct{ Err error }

func (e *ErrSpawnFailed) Error() string { return fmt.Sprintf("child: spawn failed: %v", e.Err) }
func (e *ErrSpawnFailed) Unwrap() error { return e.Err }

// Handle represents one running (or exited) child process.
type Handle struct {
	ID     string
	logger *slog.Logger

	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	wait   func() error

	cancel context.CancelFunc

	exitOnce sync.Once
	exitCh   chan int
}

// Spawn resolves the executable, composes the environment, and starts the
// process with three pipes bound to stdin/stdout/stderr. ctx controls the
// process lifetime: cancelling it kills the child.
func Spawn(ctx context.Context, cfg config.ChildConfig) (*Handle, error) {
	logger := logging.WithChild(logging.Child(), cfg.ID, cfg.Name)

	command, args := cfg.Command, cfg.Args
	if len(args) == 0 {
		// Configs commonly carry a full command line in the command field
		// ("npx -y some-server"); split it shell-style.
		if parts, serr := SplitCommandLine(command); serr == nil && len(parts) > 1 {
			command, args = parts[0], parts[1:]
		}
	}

	resolved, envFallback, err := resolveCommand(command)
	if err != nil {
		return nil, err
	}

	if envFallback {
		args = resolveArgsForEnvFallback(command, args)
	}

	workDir := cfg.WorkingDir
	if workDir != "" {
		workDir = expandTilde(workDir)
	}

	r, err := runner.NewRunner(cfg.Sandbox, workDirOrCwd(workDir), logger)
	if err != nil {
		return nil, &ErrSpawnFailed{Err: err}
	}
	if r.FallbackInfo != nil {
		logger.Warn("sandbox fallback",
			"requested", r.FallbackInfo.RequestedType,
			"fallback", r.FallbackInfo.FallbackType,
			"reason", r.FallbackInfo.Reason)
	}

	procCtx, cancel := context.WithCancel(ctx)

	env := composeEnv(cfg.Env)
	if workDir != "" {
		env = append(env, "PWD="+workDir)
	}

	stdin, stdout, stderr, wait, err := r.RunWithPipes(procCtx, resolved, args, env)
	if err != nil {
		cancel()
		return nil, &ErrSpawnFailed{Err: err}
	}

	h := &Handle{
		ID:     cfg.ID,
		logger: logger,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		wait:   wait,
		cancel: cancel,
		exitCh: make(chan int, 1),
	}

	go h.reapExit()

	logger.Info("child started", "command", resolved, "args", args)
	return h, nil
}

func workDirOrCwd(dir string) string {
	if dir != "" {
		return dir
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// Stdin returns the child's stdin pipe for writing request bodies.
func (h *Handle) Stdin() io.Writer { return h.stdin }

// Stdout returns the child's stdout pipe for reading framed response lines.
func (h *Handle) Stdout() io.Reader { return h.stdout }

// Stderr returns the child's stderr pipe, typically drained to logs.
func (h *Handle) Stderr() io.Reader { return h.stderr }

// Terminate sends a polite termination request. The resulting exit is
// still delivered asynchronously via Exited.
func (h *Handle) Terminate() {
	h.cancel()
}

// Exited returns a channel that receives the exit code exactly once, when
// the process has actually exited.
func (h *Handle) Exited() <-chan int {
	return h.exitCh
}

func (h *Handle) reapExit() {
	err := h.wait()
	code := 0
	if err != nil {
		code = exitCodeFromError(err)
	}
	h.exitOnce.Do(func() {
		h.exitCh <- code
		close(h.exitCh)
	})
	h.logger.Info("child exited", "code", code)
}

func exitCodeFromError(err error) int {
	type exitCoder interface{ ExitCode() int }
	if ec, ok := err.(exitCoder); ok && ec.ExitCode() >= 0 {
		return ec.ExitCode()
	}
	return 1
}

// SplitCommandLine splits a shell-style command string into argv, honoring
// quoting the way a shell would (used when a ChildConfig's command arrives
// as a single string rather than a pre-split argument list).
func SplitCommandLine(line string) ([]string, error) {
	return shlexSplit(line)
}
