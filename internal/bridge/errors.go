package bridge

import "errors"

// ErrPortRestricted is returned when a configured non-ephemeral port is
// below 1024; the bridge never transitions to Running in that case.
var ErrPortRestricted = errors.New("bridge: port is a restricted system port, use 0 or >=1024")

// ErrBindFailed wraps a listener bind failure (includes the common
// PortInUse case: any OS-level error binding the resolved address).
type ErrBindFailed struct{ Err error }

func (e *ErrBindFailed) Error() string { return "bridge: failed to bind listener: " + e.Err.Error() }
func (e *ErrBindFailed) Unwrap() error { return e.Err }

// ErrNotRunning is returned by operations that require a running instance.
var ErrNotRunning = errors.New("bridge: instance is not running")
