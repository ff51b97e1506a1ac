package main

import (
	"fmt"
	"os"

	log "github.com/hashicorp/go-hclog"

	"github.com/tack-sh/tack/script"
	"github.com/tack-sh/tack/supervisor"
)

func main() {
	os.Exit(run())
}

// run loads the script named on the command line, lets it declare triggers
// against a fresh supervisor.Context, then runs the polling loop to
// completion. Exit code 0 on normal shutdown or interrupt-then-shutdown;
// non-zero on startup failure (SPEC_FULL.md §6).
func run() int {
	logger := log.New(&log.LoggerOptions{
		Name:  "tack",
		Level: log.Info,
	})

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file>\n", os.Args[0])
		return 1
	}
	filename := os.Args[1]

	ctx := supervisor.New(logger.Named(filename))

	if err := script.Load(ctx, filename); err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}

	ctx.Run()

	if ctx.Interrupted() {
		logger.Info("exiting after interrupt")
	} else {
		logger.Info("exiting after normal shutdown")
	}
	return 0
}
