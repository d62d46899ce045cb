package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vuhp/cloudthrift/cmd/cloudthrift/commands"
)

func main() {
	// Ctrl-C cancels the running scan; it is recorded as failed, not lost.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.Execute(ctx)
}
