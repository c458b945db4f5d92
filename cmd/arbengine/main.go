// Command arbengine is the flash-loan arbitrage engine's operator
// entrypoint, spec §6. Exit codes: 0 normal shutdown, 1 startup
// configuration failure, 2 unrecoverable runtime error.
package main

import (
	"os"

	"github.com/flowshift/arbengine/cmd/arbengine/commands"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	commands.SetVersionInfo(version, buildTime, gitCommit)
	os.Exit(commands.Execute())
}
