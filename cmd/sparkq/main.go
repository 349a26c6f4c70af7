// Package main is the sparkq binary: the daemon (run, start/stop/status,
// setup) and a thin CLI over its HTTP API.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sparkq/sparkq/internal/common/apperr"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
		os.Exit(apperr.ExitCode(err))
	}
}

// errorMessage strips the kind prefix apperr.Error carries; the exit code
// already encodes it.
func errorMessage(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
