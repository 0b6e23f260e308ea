// Package pod watches the Pod proa runs in and derives sidecar readiness
// from its container statuses.
package pod

import (
	"fmt"
	"os"
	"strings"
)

const inClusterNamespacePath = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// DefaultContainerName is assumed to be the wrapped workload's container name
// unless configured otherwise.
const DefaultContainerName = "main"

// Identity pins down which container in the Pod is proa itself. It is
// resolved once at startup and never changes.
type Identity struct {
	PodName       string
	Namespace     string
	ContainerName string
}

// ResolveIdentity determines the enclosing Pod from the environment. The
// kubelet sets the hostname to the Pod name, and the namespace comes from the
// mounted service account.
func ResolveIdentity(containerName string) (Identity, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Identity{}, fmt.Errorf("reading hostname: %w", err)
	}

	ns, err := os.ReadFile(inClusterNamespacePath)
	if err != nil {
		return Identity{}, fmt.Errorf("reading namespace: %w", err)
	}

	return newIdentity(hostname, string(ns), containerName)
}

func newIdentity(hostname, namespace, containerName string) (Identity, error) {
	// Strip domain parts off in case setHostnameAsFQDN is set on the Pod.
	podName, _, _ := strings.Cut(hostname, ".")
	if podName == "" {
		return Identity{}, fmt.Errorf("hostname %q does not contain a pod name", hostname)
	}

	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return Identity{}, fmt.Errorf("service account namespace is empty")
	}

	if containerName == "" {
		containerName = DefaultContainerName
	}

	return Identity{
		PodName:       podName,
		Namespace:     namespace,
		ContainerName: containerName,
	}, nil
}
