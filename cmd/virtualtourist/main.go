package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/snonux/virtualtourist/internal/cli"
)

func main() {
	flags := cli.NewFlags()
	rootCmd := cli.CreateRootCommand(flags)

	// Interrupts cancel running searches and downloads and stop the server
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
