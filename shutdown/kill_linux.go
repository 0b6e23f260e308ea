//go:build kill

package shutdown

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/proa-run/proa/pod"
	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// SignalSupported reports whether this binary carries the signal broadcast
// feature. Configuration rejects --shutdown-signal when it doesn't.
const SignalSupported = true

// executeSignal delivers the configured signal to every process visible in
// the shared process namespace, except ourselves, our ancestors, and the
// just-exited child. It refuses to run when the Pod shares the host's PID
// namespace, where "every visible process" would mean the whole node.
func (e *Executor) executeSignal(a Action, snap pod.Snapshot, excludePID int) Outcome {
	start := time.Now()

	if snap.HostPID {
		return Outcome{
			Action:   a,
			Err:      errors.New("refusing to broadcast signals in the host PID namespace"),
			Duration: time.Since(start),
		}
	}
	if !snap.ShareProcessNamespace {
		e.logger.Warn("Pod does not set shareProcessNamespace; sidecar processes will not be visible")
	}

	excluded, err := excludedPIDs(excludePID)
	if err != nil {
		return Outcome{Action: a, Err: err, Duration: time.Since(start)}
	}

	procs, err := gopsprocess.Processes()
	if err != nil {
		return Outcome{
			Action:   a,
			Err:      fmt.Errorf("enumerating processes: %w", err),
			Duration: time.Since(start),
		}
	}

	var failed int
	for _, p := range procs {
		if excluded[p.Pid] {
			continue
		}
		e.logger.Debug("Sending %s to PID %d", a.Signal, p.Pid)
		if err := p.SendSignal(syscall.Signal(a.Signal)); err != nil {
			// The process may have exited between enumeration and delivery.
			e.logger.Debug("Unable to signal PID %d: %v", p.Pid, err)
			failed++
		}
	}

	if failed > 0 && failed == len(procs)-len(excluded) {
		err = fmt.Errorf("could not signal any of %d processes", failed)
	}
	return Outcome{Action: a, Err: err, Duration: time.Since(start)}
}

// excludedPIDs is our own PID plus the chain of ancestors above it, and the
// reaped child's PID if recorded.
func excludedPIDs(childPID int) (map[int32]bool, error) {
	excluded := map[int32]bool{}
	if childPID > 0 {
		excluded[int32(childPID)] = true
	}

	pid := int32(os.Getpid())
	for pid > 0 {
		excluded[pid] = true
		proc, err := gopsprocess.NewProcess(pid)
		if err != nil {
			break
		}
		ppid, err := proc.Ppid()
		if err != nil || ppid == pid {
			break
		}
		pid = ppid
	}

	if len(excluded) == 0 {
		return nil, errors.New("could not determine own process")
	}
	return excluded, nil
}
