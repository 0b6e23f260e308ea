// Package shutdown asks the Pod's sidecars to stop once the main workload
// has exited.
package shutdown

import (
	"fmt"
	"net/url"

	"github.com/proa-run/proa/supervisor"
)

// Kind discriminates the configured action variants.
type Kind int

const (
	KindHTTPGet Kind = iota
	KindHTTPPost
	KindSignalKill
)

// Action is one configured shutdown step. URL is set for the HTTP kinds,
// Signal for KindSignalKill. Actions are fixed at startup.
type Action struct {
	Kind   Kind
	URL    *url.URL
	Signal supervisor.Signal
}

func HTTPGet(u *url.URL) Action {
	return Action{Kind: KindHTTPGet, URL: u}
}

func HTTPPost(u *url.URL) Action {
	return Action{Kind: KindHTTPPost, URL: u}
}

func SignalKill(sig supervisor.Signal) Action {
	return Action{Kind: KindSignalKill, Signal: sig}
}

func (a Action) String() string {
	switch a.Kind {
	case KindHTTPGet:
		return "GET " + a.URL.String()
	case KindHTTPPost:
		return "POST " + a.URL.String()
	case KindSignalKill:
		return fmt.Sprintf("broadcast %s", a.Signal)
	default:
		return "unknown action"
	}
}
