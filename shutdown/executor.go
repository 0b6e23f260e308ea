package shutdown

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/proa-run/proa/logger"
	"github.com/proa-run/proa/pod"
	"github.com/proa-run/proa/version"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
)

const maxRedirects = 5

// Outcome records how one action went. Failures are logged, never raised.
type Outcome struct {
	Action   Action
	Err      error
	Duration time.Duration
}

// Executor runs the configured shutdown actions: HTTP probes concurrently,
// then any signal broadcast after the HTTP round has finished, so that
// cooperative shutdown endpoints get first go.
type Executor struct {
	logger  logger.Logger
	actions []Action
	timeout time.Duration
	client  *http.Client
}

func NewExecutor(l logger.Logger, actions []Action, timeout time.Duration) *Executor {
	return &Executor{
		logger:  l,
		actions: actions,
		timeout: timeout,
		client:  newHTTPClient(timeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	// Base any modifications on the default transport.
	transport := http.DefaultTransport.(*http.Transport).Clone()

	// There is a bug in http2 on Linux regarding using dead connections.
	// This is a workaround. See https://github.com/golang/go/issues/59690
	if tr2, err := http2.ConfigureTransports(transport); err == nil && tr2 != nil {
		tr2.ReadIdleTimeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Execute runs every configured action against the given Pod snapshot.
// excludePID is the just-reaped child's PID; the signal broadcast skips it.
// Execute returns once every action has finished or timed out, and never
// fails as a whole.
func (e *Executor) Execute(ctx context.Context, snap pod.Snapshot, excludePID int) []Outcome {
	outcomes := make([]Outcome, len(e.actions))

	var g errgroup.Group
	for i, a := range e.actions {
		if a.Kind == KindSignalKill {
			continue
		}
		i, a := i, a
		g.Go(func() error {
			outcomes[i] = e.executeHTTP(ctx, a)
			return nil
		})
	}
	_ = g.Wait()

	for i, a := range e.actions {
		if a.Kind != KindSignalKill {
			continue
		}
		outcomes[i] = e.executeSignal(a, snap, excludePID)
	}

	for _, o := range outcomes {
		if o.Err != nil {
			e.logger.Warn("Shutdown action %s failed after %v: %v", o.Action, o.Duration.Round(time.Millisecond), o.Err)
		} else {
			e.logger.Info("Shutdown action %s succeeded in %v", o.Action, o.Duration.Round(time.Millisecond))
		}
	}

	return outcomes
}

func (e *Executor) executeHTTP(ctx context.Context, a Action) Outcome {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	method := http.MethodGet
	if a.Kind == KindHTTPPost {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, a.URL.String(), nil)
	if err != nil {
		return Outcome{Action: a, Err: err, Duration: time.Since(start)}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return Outcome{Action: a, Err: err, Duration: time.Since(start)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = fmt.Errorf("unexpected response: %s", resp.Status)
	}
	return Outcome{Action: a, Err: err, Duration: time.Since(start)}
}
