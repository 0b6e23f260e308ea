package supervisor_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/proa-run/proa/logger"
	"github.com/proa-run/proa/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPassesOutputThrough(t *testing.T) {
	out := &bytes.Buffer{}
	p := supervisor.New(logger.Discard, supervisor.Config{
		Path:   "sh",
		Args:   []string{"-c", "echo ok"},
		Stdout: out,
	})

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, "ok\n", out.String())
	assert.Equal(t, 0, p.ExitCode())
}

func TestRunReportsNonzeroExitCode(t *testing.T) {
	p := supervisor.New(logger.Discard, supervisor.Config{
		Path: "sh",
		Args: []string{"-c", "exit 7"},
	})

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 7, p.ExitCode())
}

func TestRunSignalsStartedAndDone(t *testing.T) {
	p := supervisor.New(logger.Discard, supervisor.Config{
		Path: "sh",
		Args: []string{"-c", "true"},
	})

	waited := make(chan struct{})
	go func() {
		defer close(waited)
		<-p.Started()
		<-p.Done()
	}()

	require.NoError(t, p.Run(context.Background()))

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("Started/Done channels never closed")
	}
	assert.NotZero(t, p.Pid())
}

func TestInterruptTranslatesToShellExitCode(t *testing.T) {
	p := supervisor.New(logger.Discard, supervisor.Config{
		Path: "sleep",
		Args: []string{"30"},
	})

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(context.Background()) }()

	<-p.Started()
	require.NoError(t, p.Interrupt())

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit after SIGTERM")
	}

	// Killed by SIGTERM (15) encodes as 128+15.
	assert.Equal(t, 143, p.ExitCode())
	assert.True(t, p.WaitStatus().Signaled())
}

func TestRunSpawnFailure(t *testing.T) {
	p := supervisor.New(logger.Discard, supervisor.Config{
		Path: "/this/command/does/not/exist",
	})

	err := p.Run(context.Background())
	require.Error(t, err)

	select {
	case <-p.Started():
		t.Fatal("Started must not be closed when the spawn fails")
	default:
	}
	select {
	case <-p.Done():
	default:
		t.Fatal("Done must be closed when the spawn fails")
	}
}

func TestRunTwiceIsAnError(t *testing.T) {
	p := supervisor.New(logger.Discard, supervisor.Config{
		Path: "sh",
		Args: []string{"-c", "true"},
	})

	require.NoError(t, p.Run(context.Background()))
	assert.Error(t, p.Run(context.Background()))
}

func TestParseSignal(t *testing.T) {
	for in, want := range map[string]supervisor.Signal{
		"SIGTERM": supervisor.SIGTERM,
		"sigint":  supervisor.SIGINT,
		"HUP":     supervisor.SIGHUP,
		"usr1":    supervisor.SIGUSR1,
	} {
		got, err := supervisor.ParseSignal(in)
		require.NoError(t, err, "parsing %q", in)
		assert.Equal(t, want, got, "parsing %q", in)
	}

	_, err := supervisor.ParseSignal("SIGLLAMA")
	assert.Error(t, err)
}

func TestSignalString(t *testing.T) {
	assert.Equal(t, "SIGTERM", supervisor.SIGTERM.String())
	assert.Equal(t, "100", supervisor.Signal(100).String())
}
