// Command pheweb-api serves the PheWAS query engine over HTTP and hosts
// the offline maintenance subcommands (config inspection, autocomplete
// index rebuilding) that the serve command depends on.
package main

import (
	"fmt"
	"os"
)

// Exit codes, per the process's startup-failure contract: zero on a clean
// shutdown, non-zero when startup itself could not complete.
const (
	ExitSuccess = 0
	ExitError   = 1
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitError)
	}
	os.Exit(ExitSuccess)
}
