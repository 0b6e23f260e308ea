package pod

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
)

// Verdict is the derived judgment of peer-sidecar state.
type Verdict int

const (
	// VerdictWaiting means some peer is neither ready nor terminated.
	VerdictWaiting Verdict = iota
	// VerdictAllReady means every peer is ready or terminated, and at least
	// one is currently ready.
	VerdictAllReady
	// VerdictNoPeers means there are no sidecars to wait for.
	VerdictNoPeers
	// VerdictPeerFailedEarly means a peer terminated for good before the
	// sidecars were ever collectively ready.
	VerdictPeerFailedEarly
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllReady:
		return "AllReady"
	case VerdictNoPeers:
		return "NoPeers"
	case VerdictPeerFailedEarly:
		return "PeerFailedEarly"
	default:
		return "Waiting"
	}
}

// ReadinessEvaluator computes a Verdict per Snapshot. It keeps one bit of
// memory: whether it has ever reported the sidecars ready (AllReady or
// NoPeers). After that point it never reports PeerFailedEarly, so sidecars
// exiting after the main program started are not mistaken for a startup
// failure.
type ReadinessEvaluator struct {
	identity Identity
	ready    bool
}

func NewReadinessEvaluator(identity Identity) *ReadinessEvaluator {
	return &ReadinessEvaluator{identity: identity}
}

// Evaluate derives the Verdict for one snapshot. The configured container
// missing from the snapshot is a configuration error.
func (e *ReadinessEvaluator) Evaluate(s Snapshot) (Verdict, error) {
	if _, ok := s.Container(e.identity.ContainerName); !ok {
		return VerdictWaiting, fmt.Errorf("container %q not found in pod %s/%s",
			e.identity.ContainerName, s.Namespace, s.Name)
	}

	peers := s.Peers(e.identity.ContainerName)
	if len(peers) == 0 {
		e.ready = true
		return VerdictNoPeers, nil
	}

	var anyReady, allZero = false, true
	for _, p := range peers {
		if p.State != StateTerminated {
			if !p.Ready {
				// Still working: Waiting, or Running but not ready.
				return VerdictWaiting, nil
			}
			anyReady = true
		} else if p.ExitCode != 0 {
			allZero = false
		}
	}

	if anyReady {
		e.ready = true
		return VerdictAllReady, nil
	}

	// Every peer has terminated.
	switch {
	case e.ready:
		// Normal post-main teardown.
		return VerdictAllReady, nil
	case s.RestartPolicy != corev1.RestartPolicyNever:
		// The kubelet will bring the sidecars back; keep waiting.
		return VerdictWaiting, nil
	case allZero:
		// Every sidecar already did its work and exited cleanly. There is
		// nothing to wait for and nothing to shut down.
		e.ready = true
		return VerdictNoPeers, nil
	default:
		return VerdictPeerFailedEarly, nil
	}
}
