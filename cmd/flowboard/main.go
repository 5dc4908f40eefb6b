package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/flowboard/internal/cmd"
	"github.com/felixgeelhaar/flowboard/internal/exitcode"
	"github.com/felixgeelhaar/flowboard/internal/ux"
)

func main() {
	// Create a context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		// serve treats a signal as a normal stop and returns nil, so a
		// cancelled context here means the user gave up on a command.
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\nOperation cancelled by user")
			exitcode.Exit(exitcode.Interrupted)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", ux.EnhanceError(err))
		exitcode.ExitWithError(err)
	}
	exitcode.Exit(exitcode.Success)
}
