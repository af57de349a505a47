// Command procout runs processes and reports their decomposed results, on
// the command line or as an MCP server.
package main

import (
	"errors"
	"os"

	"github.com/deixis/procout"
)

func main() {
	if err := Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		printError(err)
		var nonZero *procout.NonZeroExitError
		if errors.As(err, &nonZero) {
			os.Exit(exitCode(nonZero.Status))
		}
		os.Exit(1)
	}
}
