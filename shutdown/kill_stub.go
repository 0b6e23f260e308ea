//go:build !kill

package shutdown

import (
	"errors"

	"github.com/proa-run/proa/pod"
)

// SignalSupported reports whether this binary carries the signal broadcast
// feature. Configuration rejects --shutdown-signal when it doesn't.
const SignalSupported = false

func (e *Executor) executeSignal(a Action, _ pod.Snapshot, _ int) Outcome {
	// Configuration validation rejects signal actions in this build; this is
	// a backstop.
	return Outcome{Action: a, Err: errors.New("signal broadcast support is not compiled in")}
}
