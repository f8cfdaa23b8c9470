// Command vault compiles Vault DSL programs into sealed archives.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/0bArc/Vault/internal/cli"
	"github.com/0bArc/Vault/internal/ir"
)

// Set via -ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
)

func versionString() string {
	if Version == "dev" {
		return ir.EngineVersion + "-dev"
	}
	return Version + " (commit " + Commit + ")"
}

func main() {
	if err := fang.Execute(
		context.Background(),
		cli.NewRootCommand(),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
