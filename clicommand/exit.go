package clicommand

import (
	"errors"
	"fmt"
	"os"
)

// proa's exit status is part of its contract with the Pod: the wrapped
// command's own status (0-255) passes through untouched, 1 means a sidecar
// failed before the command could start, 2 means proa was misconfigured or
// could not reach the cluster, and 130 means an external termination request
// won. The error types here carry those codes out of the command action so
// main can exit with them.

// ExitError reports a failure that proa itself must explain on stderr,
// together with the status to exit with.
type ExitError struct {
	code int
	err  error
}

// ConfigError wraps a configuration or startup failure. proa exits 2 for
// these: nothing was run, and nothing needs shutting down.
func ConfigError(err error) *ExitError {
	return &ExitError{code: 2, err: err}
}

func (e *ExitError) Code() int     { return e.code }
func (e *ExitError) Error() string { return e.err.Error() }
func (e *ExitError) Unwrap() error { return e.err }

// StatusError carries an exit status the coordinator has already fully
// reported through the logger. Nothing further is printed for it; in
// particular the wrapped command's own status travels this way, and it has
// already said whatever it wanted to say.
type StatusError struct {
	code int
}

// Status returns a StatusError for the given exit status.
func Status(code int) *StatusError {
	return &StatusError{code: code}
}

func (e *StatusError) Code() int { return e.code }

func (e *StatusError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// ExitCode maps the error coming out of the command to the process exit
// status, printing to stderr only what hasn't been reported yet.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Code()
	}

	fmt.Fprintf(os.Stderr, "proa: fatal: %s\n", err)

	var eerr *ExitError
	if errors.As(err, &eerr) {
		return eerr.Code()
	}
	return 1
}
