// Package coordinator sequences the Pod lifecycle: wait for sidecars, run
// the wrapped command, shut the sidecars down, wait for them to go away.
package coordinator

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/proa-run/proa/logger"
	"github.com/proa-run/proa/pod"
	"github.com/proa-run/proa/shutdown"
	"github.com/proa-run/proa/supervisor"
	"k8s.io/client-go/kubernetes"
)

// State names where the coordinator is in its forward-only progression.
type State int

const (
	StateStarting State = iota
	StateWaitingForSidecars
	StateRunningChild
	StateShuttingDown
	StateAwaitingSidecarExit
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWaitingForSidecars:
		return "WaitingForSidecars"
	case StateRunningChild:
		return "RunningChild"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateAwaitingSidecarExit:
		return "AwaitingSidecarExit"
	case StateDone:
		return "Done"
	default:
		return "Starting"
	}
}

// Exit codes for the paths where there is no child exit code to report.
const (
	exitPeerFailed     = 1
	exitSpawnFailed    = 1
	exitStartupFailure = 2
	exitCancelled      = 130
)

// Config fixes the coordinator's behavior at startup.
type Config struct {
	Identity pod.Identity
	Command  string
	Args     []string

	Actions         []shutdown.Action
	ShutdownTimeout time.Duration

	// Signals overrides where termination signals come from, for tests.
	// When nil the coordinator listens for SIGTERM and SIGINT itself.
	Signals <-chan os.Signal
}

// Coordinator owns the child process and the shutdown actions; nothing else
// mutates them.
type Coordinator struct {
	logger logger.Logger
	client kubernetes.Interface
	conf   Config

	state    State
	watcher  *pod.Watcher
	watchErr chan error
	signals  <-chan os.Signal
	sigCount int

	latest       pod.Snapshot
	haveSnapshot bool
	childPID     int
}

func New(l logger.Logger, client kubernetes.Interface, conf Config) *Coordinator {
	if conf.ShutdownTimeout <= 0 {
		conf.ShutdownTimeout = 30 * time.Second
	}
	return &Coordinator{
		logger: l,
		client: client,
		conf:   conf,
		state:  StateStarting,
	}
}

// Run drives the whole lifecycle and returns the process exit code: the
// child's own code on the normal path, 130 when terminated externally, 1
// when a sidecar failed before the child could start, 2 when the cluster
// API or configuration made starting impossible.
func (c *Coordinator) Run(ctx context.Context) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.signals = c.conf.Signals
	if c.signals == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(ch)
		c.signals = ch
	}

	c.watcher = pod.NewWatcher(c.client, c.conf.Identity, c.logger)
	c.watchErr = make(chan error, 1)
	go func() { c.watchErr <- c.watcher.Run(ctx) }()

	exitCode, startChild, hard := c.waitForSidecars()
	if hard {
		return exitCancelled
	}

	if startChild {
		exitCode, hard = c.runChild(ctx)
		if hard {
			return exitCancelled
		}
	}

	if c.shutdownSidecars(ctx) {
		return exitCancelled
	}
	if c.awaitSidecarExit(ctx) {
		return exitCancelled
	}

	c.transition(StateDone)
	return exitCode
}

// waitForSidecars consumes snapshots until the sidecars are collectively
// ready, one of them fails for good, or we're told to stop.
func (c *Coordinator) waitForSidecars() (exitCode int, startChild, hard bool) {
	c.transition(StateWaitingForSidecars)

	evaluator := pod.NewReadinessEvaluator(c.conf.Identity)
	snapshots := c.watcher.Snapshots()
	lastVerdict := pod.Verdict(-1)

	for {
		select {
		case sig := <-c.signals:
			if c.noteSignal() {
				return 0, false, true
			}
			c.logger.Info("Received %v while waiting for sidecars; skipping the command", sig)
			return exitCancelled, false, false

		case snap, ok := <-snapshots:
			if !ok {
				// The watcher gave up; its error says why.
				err := <-c.watchErr
				c.logger.Error("Pod watch failed: %v", err)
				return exitStartupFailure, false, false
			}
			c.setLatest(snap)

			verdict, err := evaluator.Evaluate(snap)
			if err != nil {
				c.logger.Error("Evaluating pod state: %v", err)
				return exitStartupFailure, false, false
			}
			if verdict != lastVerdict {
				c.logger.Info("Sidecar readiness: %s", verdict)
				lastVerdict = verdict
			}

			switch verdict {
			case pod.VerdictAllReady, pod.VerdictNoPeers:
				return 0, true, false
			case pod.VerdictPeerFailedEarly:
				c.logger.Error("A sidecar terminated before becoming ready; not starting the command")
				return exitPeerFailed, false, false
			}
		}
	}
}

// runChild spawns the wrapped command and blocks until it exits, forwarding
// the first termination signal and keeping the latest snapshot fresh in the
// meantime.
func (c *Coordinator) runChild(ctx context.Context) (exitCode int, hard bool) {
	c.transition(StateRunningChild)

	proc := supervisor.New(c.logger, supervisor.Config{
		Path: c.conf.Command,
		Args: c.conf.Args,
	})

	c.logger.Info("Running command: %s", strings.Join(append([]string{c.conf.Command}, c.conf.Args...), " "))

	runErr := make(chan error, 1)
	go func() { runErr <- proc.Run(ctx) }()

	snapshots := c.watcher.Snapshots()
	for {
		select {
		case err := <-runErr:
			c.childPID = proc.Pid()
			if err != nil {
				c.logger.Error("Could not run command: %v", err)
				return exitSpawnFailed, false
			}
			code := proc.ExitCode()
			c.logger.Info("Command exited with code %d", code)
			return code, false

		case sig := <-c.signals:
			if c.noteSignal() {
				return 0, true
			}
			c.logger.Info("Received %v, forwarding SIGTERM to the command", sig)
			if err := proc.Interrupt(); err != nil {
				c.logger.Warn("Forwarding signal: %v", err)
			}

		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			// Verdicts no longer gate anything; keep the peer list fresh for
			// shutdown.
			c.setLatest(snap)
		}
	}
}

// shutdownSidecars runs the configured actions exactly once and waits for
// all of them.
func (c *Coordinator) shutdownSidecars(ctx context.Context) (hard bool) {
	c.transition(StateShuttingDown)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	executor := shutdown.NewExecutor(c.logger, c.conf.Actions, c.conf.ShutdownTimeout)
	done := make(chan struct{})
	go func() {
		executor.Execute(sctx, c.latest, c.childPID)
		close(done)
	}()

	for {
		select {
		case <-done:
			return false
		case <-c.signals:
			if c.noteSignal() {
				cancel()
				return true
			}
		}
	}
}

// awaitSidecarExit watches until every peer container has terminated, bounded
// by the Pod's termination grace period.
func (c *Coordinator) awaitSidecarExit(ctx context.Context) (hard bool) {
	c.transition(StateAwaitingSidecarExit)

	self := c.conf.Identity.ContainerName
	if c.haveSnapshot && c.latest.PeersTerminated(self) {
		return false
	}

	grace := pod.DefaultTerminationGracePeriod
	if c.haveSnapshot {
		grace = c.latest.TerminationGracePeriod
	}
	c.logger.Info("Waiting up to %v for sidecars to exit", grace)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	snapshots := c.watcher.Snapshots()
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return false
			}
			c.setLatest(snap)
			c.logger.Debug("%d/%d containers still running", snap.RunningContainers(), len(snap.Containers))
			if snap.PeersTerminated(self) {
				c.logger.Info("All sidecars have terminated")
				return false
			}

		case <-timer.C:
			c.logger.Warn("Gave up waiting for sidecars after %v; relying on the pod's own teardown", grace)
			return false

		case <-c.signals:
			if c.noteSignal() {
				return true
			}

		case <-ctx.Done():
			return false
		}
	}
}

func (c *Coordinator) setLatest(s pod.Snapshot) {
	c.latest = s
	c.haveSnapshot = true
}

// noteSignal counts termination signals; the second one means "stop right
// now", abandoning whatever remains.
func (c *Coordinator) noteSignal() (hard bool) {
	c.sigCount++
	if c.sigCount >= 2 {
		c.logger.Warn("Second termination signal received, exiting immediately")
		return true
	}
	return false
}

func (c *Coordinator) transition(s State) {
	c.logger.Debug("State: %s -> %s", c.state, s)
	c.state = s
}
