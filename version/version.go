// Package version identifies this build of proa.
package version

import (
	"runtime"
	"runtime/debug"
)

// baseVersion is overridden at release time via:
//
//	go build -ldflags "-X github.com/proa-run/proa/version.baseVersion=1.2.3" .
var baseVersion = "0.3.1"

func Version() string {
	return baseVersion
}

// Commit reports the VCS revision this binary was built from, from the build
// info the Go toolchain stamps into the binary.
func Commit() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}

// UserAgent identifies proa in the shutdown requests it sends to sidecars
// and in its cluster API traffic.
func UserAgent() string {
	return "proa/" + Version() + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
