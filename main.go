package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"esdata/internal/app"
	"esdata/internal/cli"
)

func main() {
	// Replaced once the configured level is known
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand(app.Bootstrap, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
