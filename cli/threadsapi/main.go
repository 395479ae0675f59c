package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	servecmder "github.com/papercomputeco/threads/cmd/threads/serve"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := servecmder.NewServeCmd()
	cmd.Use = "threadsapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .threads/ config directory")

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
