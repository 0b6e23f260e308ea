package pod_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/proa-run/proa/pod"
	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func int64ptr(v int64) *int64 { return &v }
func boolptr(v bool) *bool    { return &v }

func TestNewSnapshot(t *testing.T) {
	p := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:            "pod1",
			Namespace:       "default",
			ResourceVersion: "42",
		},
		Spec: corev1.PodSpec{
			RestartPolicy:                 corev1.RestartPolicyNever,
			TerminationGracePeriodSeconds: int64ptr(10),
			ShareProcessNamespace:         boolptr(true),
			Containers: []corev1.Container{
				{Name: "main"},
				{Name: "proxy"},
				{Name: "done"},
				{Name: "pending"},
			},
		},
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{
				{
					Name:  "main",
					Ready: true,
					State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
				},
				{
					Name:  "proxy",
					Ready: true,
					State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
				},
				{
					Name: "done",
					State: corev1.ContainerState{
						Terminated: &corev1.ContainerStateTerminated{ExitCode: 3},
					},
				},
				// "pending" has no status yet.
			},
		},
	}

	got := pod.NewSnapshot(p)

	want := pod.Snapshot{
		Name:            "pod1",
		Namespace:       "default",
		ResourceVersion: "42",
		Containers: []pod.Container{
			{Name: "main", State: pod.StateRunning, Ready: true},
			{Name: "proxy", State: pod.StateRunning, Ready: true},
			{Name: "done", State: pod.StateTerminated, ExitCode: 3},
			{Name: "pending", State: pod.StateWaiting},
		},
		RestartPolicy:          corev1.RestartPolicyNever,
		TerminationGracePeriod: 10 * time.Second,
		ShareProcessNamespace:  true,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewSnapshot diff (-want +got):\n%s", diff)
	}
}

func TestNewSnapshotDefaultsGracePeriod(t *testing.T) {
	s := pod.NewSnapshot(&corev1.Pod{})
	assert.Equal(t, pod.DefaultTerminationGracePeriod, s.TerminationGracePeriod)
}

func TestPeers(t *testing.T) {
	s := pod.Snapshot{Containers: []pod.Container{
		{Name: "main"}, {Name: "side1"}, {Name: "side2"},
	}}

	peers := s.Peers("main")
	assert.Len(t, peers, 2)
	assert.Equal(t, "side1", peers[0].Name)
	assert.Equal(t, "side2", peers[1].Name)

	_, ok := s.Container("side1")
	assert.True(t, ok)
	_, ok = s.Container("nope")
	assert.False(t, ok)
}

func TestPeersTerminated(t *testing.T) {
	s := pod.Snapshot{Containers: []pod.Container{
		{Name: "main", State: pod.StateRunning},
		{Name: "side", State: pod.StateTerminated},
	}}
	assert.True(t, s.PeersTerminated("main"))
	assert.False(t, s.PeersTerminated("side"))
	assert.Equal(t, 1, s.RunningContainers())
}
