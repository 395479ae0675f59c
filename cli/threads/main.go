package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	threadscmder "github.com/papercomputeco/threads/cmd/threads"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := threadscmder.NewThreadsCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
