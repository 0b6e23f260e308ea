package shutdown_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/proa-run/proa/logger"
	"github.com/proa-run/proa/pod"
	"github.com/proa-run/proa/shutdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExecuteRunsHTTPActions(t *testing.T) {
	var gets, posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets.Add(1)
		case http.MethodPost:
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	e := shutdown.NewExecutor(logger.Discard, []shutdown.Action{
		shutdown.HTTPGet(mustParse(t, server.URL+"/quit")),
		shutdown.HTTPPost(mustParse(t, server.URL+"/quit")),
	}, 5*time.Second)

	outcomes := e.Execute(context.Background(), pod.Snapshot{}, 0)

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
	}
	assert.Equal(t, int32(1), gets.Load())
	assert.Equal(t, int32(1), posts.Load())
}

func TestExecuteSetsUserAgent(t *testing.T) {
	var ua atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
	}))
	defer server.Close()

	e := shutdown.NewExecutor(logger.Discard, []shutdown.Action{
		shutdown.HTTPGet(mustParse(t, server.URL)),
	}, 5*time.Second)
	e.Execute(context.Background(), pod.Snapshot{}, 0)

	got, _ := ua.Load().(string)
	assert.True(t, strings.HasPrefix(got, "proa/"), "got user agent %q", got)
}

func TestExecuteRecordsFailuresWithoutAborting(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	brokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer brokenServer.Close()

	buf := logger.NewBuffer()
	e := shutdown.NewExecutor(buf, []shutdown.Action{
		shutdown.HTTPGet(mustParse(t, brokenServer.URL)),
		shutdown.HTTPGet(mustParse(t, okServer.URL)),
	}, 5*time.Second)

	outcomes := e.Execute(context.Background(), pod.Snapshot{}, 0)

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	assert.True(t, buf.Contains(logger.WARN, "failed"), "the failed action must be logged")
	assert.True(t, buf.Contains(logger.INFO, "succeeded"), "the successful action must be logged")
}

func TestExecuteTimesOutSlowEndpoints(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	e := shutdown.NewExecutor(logger.Discard, []shutdown.Action{
		shutdown.HTTPGet(mustParse(t, server.URL)),
	}, 100*time.Millisecond)

	start := time.Now()
	outcomes := e.Execute(context.Background(), pod.Snapshot{}, 0)

	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteStopsAfterTooManyRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.String(), http.StatusFound)
	}))
	defer server.Close()

	e := shutdown.NewExecutor(logger.Discard, []shutdown.Action{
		shutdown.HTTPGet(mustParse(t, server.URL)),
	}, 5*time.Second)

	outcomes := e.Execute(context.Background(), pod.Snapshot{}, 0)

	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
}

func TestExecuteWithNoActions(t *testing.T) {
	e := shutdown.NewExecutor(logger.Discard, nil, time.Second)
	assert.Empty(t, e.Execute(context.Background(), pod.Snapshot{}, 0))
}

func TestActionString(t *testing.T) {
	u := mustParse(t, "http://localhost:8080/quit")
	assert.Equal(t, "GET http://localhost:8080/quit", shutdown.HTTPGet(u).String())
	assert.Equal(t, "POST http://localhost:8080/quit", shutdown.HTTPPost(u).String())
}
