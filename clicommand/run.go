package clicommand

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/proa-run/proa/coordinator"
	"github.com/proa-run/proa/logger"
	"github.com/proa-run/proa/pod"
	"github.com/proa-run/proa/shutdown"
	"github.com/proa-run/proa/supervisor"
	"github.com/proa-run/proa/version"
	"github.com/urfave/cli"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

var RunFlags = []cli.Flag{
	cli.StringSliceFlag{
		Name:   "shutdown-http-get, g",
		Usage:  "URL to GET at shutdown, prompting a sidecar to stop. Repeatable",
		EnvVar: "PROA_SHUTDOWN_HTTP_GET",
	},
	cli.StringSliceFlag{
		Name:   "shutdown-http-post, p",
		Usage:  "URL to POST to at shutdown, prompting a sidecar to stop. Repeatable",
		EnvVar: "PROA_SHUTDOWN_HTTP_POST",
	},
	cli.StringFlag{
		Name:   "shutdown-signal",
		Usage:  "Signal (e.g. SIGTERM) to send to sibling processes at shutdown. Requires a build with signal support and a pod with shareProcessNamespace",
		EnvVar: "PROA_SHUTDOWN_SIGNAL",
	},
	cli.StringFlag{
		Name:   "container-name",
		Value:  pod.DefaultContainerName,
		Usage:  "Name of the container this process runs in, used to tell self from sidecars",
		EnvVar: "PROA_CONTAINER_NAME",
	},
	cli.DurationFlag{
		Name:   "shutdown-timeout",
		Value:  30 * time.Second,
		Usage:  "Per-action timeout for shutdown HTTP requests",
		EnvVar: "PROA_SHUTDOWN_TIMEOUT",
	},
	cli.StringFlag{
		Name:   "log-level",
		Value:  "info",
		Usage:  "Log level: debug, info, warn, error, fatal",
		EnvVar: "PROA_LOG_LEVEL",
	},
	cli.StringFlag{
		Name:   "log-format",
		Value:  "text",
		Usage:  "Log format: text or json",
		EnvVar: "PROA_LOG_FORMAT",
	},
	cli.BoolFlag{
		Name:   "debug",
		Usage:  "Shorthand for --log-level=debug",
		EnvVar: "PROA_DEBUG",
	},
	cli.BoolFlag{
		Name:   "no-color",
		Usage:  "Don't show colors in logging",
		EnvVar: "PROA_NO_COLOR",
	},
}

// Run is the whole program: wait for sidecars, run the command named after
// `--`, shut the sidecars down, wait for them to exit.
func Run(c *cli.Context) error {
	l, err := createLogger(c)
	if err != nil {
		return ConfigError(err)
	}

	args := c.Args()
	if len(args) == 0 {
		return ConfigError(
			errors.New("no command given; usage: proa [options...] -- <command> [args...]"))
	}

	actions, err := parseActions(c)
	if err != nil {
		return ConfigError(err)
	}

	identity, err := pod.ResolveIdentity(c.String("container-name"))
	if err != nil {
		return ConfigError(fmt.Errorf("resolving pod identity: %w", err))
	}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return ConfigError(fmt.Errorf("loading in-cluster credentials: %w", err))
	}
	restConfig.UserAgent = version.UserAgent()
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return ConfigError(fmt.Errorf("building cluster client: %w", err))
	}

	l = l.WithFields(
		logger.StringField("pod", identity.PodName),
		logger.StringField("namespace", identity.Namespace),
	)
	l.Info("proa %s (%s) supervising %q as container %q",
		version.Version(), version.Commit(), args[0], identity.ContainerName)

	coord := coordinator.New(l, client, coordinator.Config{
		Identity:        identity,
		Command:         args[0],
		Args:            args[1:],
		Actions:         actions,
		ShutdownTimeout: c.Duration("shutdown-timeout"),
	})

	code := coord.Run(context.Background())
	l.Info("Exiting with code %d", code)
	if code == 0 {
		return nil
	}
	return Status(code)
}

func parseActions(c *cli.Context) ([]shutdown.Action, error) {
	var actions []shutdown.Action

	for _, raw := range c.StringSlice("shutdown-http-get") {
		u, err := parseActionURL(raw)
		if err != nil {
			return nil, err
		}
		actions = append(actions, shutdown.HTTPGet(u))
	}
	for _, raw := range c.StringSlice("shutdown-http-post") {
		u, err := parseActionURL(raw)
		if err != nil {
			return nil, err
		}
		actions = append(actions, shutdown.HTTPPost(u))
	}

	if name := c.String("shutdown-signal"); name != "" {
		if !shutdown.SignalSupported {
			return nil, errors.New("--shutdown-signal requires a proa build with signal support")
		}
		sig, err := supervisor.ParseSignal(name)
		if err != nil {
			return nil, err
		}
		actions = append(actions, shutdown.SignalKill(sig))
	}

	return actions, nil
}

func parseActionURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing shutdown URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("shutdown URL %q must be http or https", raw)
	}
	return u, nil
}

func createLogger(c *cli.Context) (logger.Logger, error) {
	var printer logger.Printer
	switch c.String("log-format") {
	case "text", "":
		p := logger.NewTextPrinter(os.Stderr)
		if c.Bool("no-color") {
			p.Colors = false
		}
		printer = p
	case "json":
		printer = logger.NewJSONPrinter(os.Stderr)
	default:
		return nil, fmt.Errorf("unknown log format: %s", c.String("log-format"))
	}

	l := logger.NewConsoleLogger(printer, os.Exit)

	level, err := logger.LevelFromString(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	if c.Bool("debug") {
		level = logger.DEBUG
	}
	l.SetLevel(level)

	return l, nil
}
