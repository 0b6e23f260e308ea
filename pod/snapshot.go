package pod

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

// ContainerState mirrors the three states the kubelet reports for a
// container.
type ContainerState int

const (
	StateWaiting ContainerState = iota
	StateRunning
	StateTerminated
)

func (s ContainerState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateTerminated:
		return "Terminated"
	default:
		return "Waiting"
	}
}

// Container is one container's observed state within a Snapshot.
type Container struct {
	Name     string
	State    ContainerState
	ExitCode int
	Ready    bool
}

// Snapshot is an immutable observation of the enclosing Pod at one point in
// time. The watcher produces a fresh one per update.
type Snapshot struct {
	Name            string
	Namespace       string
	ResourceVersion string
	Containers      []Container

	RestartPolicy          corev1.RestartPolicy
	TerminationGracePeriod time.Duration
	HostPID                bool
	ShareProcessNamespace  bool
}

// DefaultTerminationGracePeriod applies when the Pod spec doesn't carry one.
const DefaultTerminationGracePeriod = 30 * time.Second

// NewSnapshot flattens a Pod object into a Snapshot. Containers declared in
// the spec but missing from status (the kubelet hasn't reported them yet)
// appear as Waiting and not ready.
func NewSnapshot(p *corev1.Pod) Snapshot {
	s := Snapshot{
		Name:                   p.Name,
		Namespace:              p.Namespace,
		ResourceVersion:        p.ResourceVersion,
		RestartPolicy:          p.Spec.RestartPolicy,
		TerminationGracePeriod: DefaultTerminationGracePeriod,
	}

	if gp := p.Spec.TerminationGracePeriodSeconds; gp != nil && *gp > 0 {
		s.TerminationGracePeriod = time.Duration(*gp) * time.Second
	}
	if p.Spec.HostPID {
		s.HostPID = true
	}
	if spn := p.Spec.ShareProcessNamespace; spn != nil && *spn {
		s.ShareProcessNamespace = true
	}

	statuses := make(map[string]corev1.ContainerStatus, len(p.Status.ContainerStatuses))
	for _, cs := range p.Status.ContainerStatuses {
		statuses[cs.Name] = cs
	}

	for _, c := range p.Spec.Containers {
		container := Container{Name: c.Name}
		if cs, ok := statuses[c.Name]; ok {
			container.Ready = cs.Ready
			switch {
			case cs.State.Terminated != nil:
				container.State = StateTerminated
				container.ExitCode = int(cs.State.Terminated.ExitCode)
			case cs.State.Running != nil:
				container.State = StateRunning
			}
		}
		s.Containers = append(s.Containers, container)
	}

	return s
}

// Container looks up a container by name.
func (s Snapshot) Container(name string) (Container, bool) {
	for _, c := range s.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return Container{}, false
}

// Peers returns every container except the named one, i.e. the sidecars proa
// manages.
func (s Snapshot) Peers(self string) []Container {
	peers := make([]Container, 0, len(s.Containers))
	for _, c := range s.Containers {
		if c.Name != self {
			peers = append(peers, c)
		}
	}
	return peers
}

// PeersTerminated reports whether every container other than self has
// terminated.
func (s Snapshot) PeersTerminated(self string) bool {
	for _, c := range s.Peers(self) {
		if c.State != StateTerminated {
			return false
		}
	}
	return true
}

// RunningContainers counts containers (including self) not yet terminated,
// for progress logging during shutdown.
func (s Snapshot) RunningContainers() int {
	n := 0
	for _, c := range s.Containers {
		if c.State != StateTerminated {
			n++
		}
	}
	return n
}
