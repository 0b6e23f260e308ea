package pod

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildkite/roko"
	"github.com/proa-run/proa/logger"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

var (
	// ErrAccessDenied means the service account can't get/watch/list pods in
	// its own namespace. Retrying won't help.
	ErrAccessDenied = errors.New("cluster API access denied")

	// ErrPodNotFound means the cluster has no record of the Pod we are
	// supposedly running in.
	ErrPodNotFound = errors.New("pod not found")
)

// IsFatal reports whether a watch error is unrecoverable; everything else is
// retried with backoff.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrPodNotFound)
}

// Watcher maintains a list+watch on the single Pod named by its Identity and
// publishes a Snapshot per observed update. The published channel is
// conflated: it holds only the most recent snapshot, because a stale view of
// the Pod is never useful.
type Watcher struct {
	client   kubernetes.Interface
	identity Identity
	logger   logger.Logger

	snapshots chan Snapshot
	lastRV    string
}

func NewWatcher(client kubernetes.Interface, identity Identity, l logger.Logger) *Watcher {
	return &Watcher{
		client:    client,
		identity:  identity,
		logger:    l,
		snapshots: make(chan Snapshot, 1),
	}
}

// Snapshots is the stream of Pod observations. It is closed when Run
// returns; call Run's error to find out why.
func (w *Watcher) Snapshots() <-chan Snapshot {
	return w.snapshots
}

// Reconnect backoff: exponential from 1s for the first few attempts, then
// held at the ceiling for as long as the cluster API stays away.
const (
	reconnectAttempts = 5 // sleeps 1s, 2s, 4s, 8s before the ceiling takes over
	reconnectCeiling  = 30 * time.Second
)

// Run blocks, re-establishing the watch with bounded exponential backoff
// until the context is cancelled (returns nil) or a fatal error occurs.
// Backoff resets after every healthy stream.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.snapshots)

	for ctx.Err() == nil {
		var fatal error
		attempt := func(r *roko.Retrier) error {
			err := w.watchOnce(ctx)
			switch {
			case err == nil, ctx.Err() != nil:
				// Healthy stream ended (or we're shutting down); reconnect
				// with fresh backoff.
				r.Break()
				return nil
			case IsFatal(err):
				fatal = err
				r.Break()
				return nil
			default:
				w.logger.Warn("Pod watch interrupted, will reconnect: %v", err)
				return err
			}
		}

		err := roko.NewRetrier(
			roko.WithMaxAttempts(reconnectAttempts),
			roko.WithStrategy(roko.Exponential(2*time.Second, 0)),
			roko.WithJitter(),
		).DoWithContext(ctx, attempt)
		if err != nil && fatal == nil && ctx.Err() == nil {
			// The exponential retrier is spent; keep trying at the ceiling.
			err = roko.NewRetrier(
				roko.TryForever(),
				roko.WithStrategy(roko.Constant(reconnectCeiling)),
				roko.WithJitter(),
			).DoWithContext(ctx, attempt)
		}
		if fatal != nil {
			return fatal
		}
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

// watchOnce performs one list+watch cycle: a synchronization snapshot from
// the list, then a snapshot per watch event. Returns nil when the stream ends
// in a way that warrants an immediate relist.
func (w *Watcher) watchOnce(ctx context.Context) error {
	pods := w.client.CoreV1().Pods(w.identity.Namespace)
	selector := fields.OneTermEqualSelector("metadata.name", w.identity.PodName).String()

	list, err := pods.List(ctx, metav1.ListOptions{FieldSelector: selector})
	if err != nil {
		return classifyAPIError(err)
	}
	if len(list.Items) == 0 {
		return fmt.Errorf("%w: %s/%s", ErrPodNotFound, w.identity.Namespace, w.identity.PodName)
	}
	w.publish(NewSnapshot(&list.Items[0]))

	wi, err := pods.Watch(ctx, metav1.ListOptions{
		FieldSelector:       selector,
		ResourceVersion:     list.ResourceVersion,
		AllowWatchBookmarks: true,
	})
	if err != nil {
		return classifyAPIError(err)
	}
	defer wi.Stop()

	events := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-wi.ResultChan():
			if !ok {
				if events == 0 {
					// A stream that dies before delivering anything counts
					// as a failure, so reconnects back off rather than spin.
					return errors.New("watch stream closed before delivering any event")
				}
				return nil
			}
			events++

			switch event.Type {
			case watch.Added, watch.Modified:
				p, ok := event.Object.(*corev1.Pod)
				if !ok {
					continue
				}
				w.publish(NewSnapshot(p))
			case watch.Deleted:
				w.logger.Warn("Pod %s/%s was deleted while being watched",
					w.identity.Namespace, w.identity.PodName)
			case watch.Error:
				statusErr := apierrors.FromObject(event.Object)
				if apierrors.IsResourceExpired(statusErr) || apierrors.IsGone(statusErr) {
					w.logger.Debug("Watch resource version expired, relisting")
					return nil
				}
				return classifyAPIError(statusErr)
			}
		}
	}
}

// publish replaces whatever snapshot is pending with the given one. It never
// blocks, so a slow consumer only ever misses intermediate states.
func (w *Watcher) publish(s Snapshot) {
	if s.ResourceVersion != "" && s.ResourceVersion == w.lastRV {
		return
	}
	w.lastRV = s.ResourceVersion

	for {
		select {
		case w.snapshots <- s:
			return
		default:
		}
		select {
		case <-w.snapshots:
		default:
		}
	}
}

func classifyAPIError(err error) error {
	switch {
	case apierrors.IsUnauthorized(err), apierrors.IsForbidden(err):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrPodNotFound, err)
	default:
		return err
	}
}
