package main

import (
	"os"

	"github.com/proa-run/proa/clicommand"
	"github.com/proa-run/proa/version"
	"github.com/urfave/cli"
)

const appHelpTemplate = `proa is a sidecar-aware entrypoint for Kubernetes Pods. It waits for the
Pod's sidecar containers to become ready, runs the given command with stdio
passed straight through, then asks the sidecars to shut down and waits for
them to terminate so the Pod can complete.

Usage:

  {{.Name}} [options...] -- <command> [args...]

Example:

  $ proa --shutdown-http-get=http://localhost:15020/quitquitquit -- ./batch-job --input /data

Options:

  {{range .Flags}}{{.}}
  {{end}}
`

func main() {
	cli.AppHelpTemplate = appHelpTemplate

	app := cli.NewApp()
	app.Name = "proa"
	app.Version = version.Version()
	app.Usage = "Run a command once its Pod's sidecars are ready, then shut them down"
	app.Flags = clicommand.RunFlags
	app.Action = clicommand.Run

	if err := app.Run(os.Args); err != nil {
		code := clicommand.ExitCode(err)
		os.Exit(code)
	}
}
