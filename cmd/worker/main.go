package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-auth-nosql/internal/app"
	"github.com/go-auth-nosql/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	app.SetupLogger(cfg)
	if cfg.StoreDriver == config.DriverMemory {
		slog.Error("the memory store is per process; the api runs the outbox worker itself")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		slog.Error("open store", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	worker, err := app.NewWorker(ctx, cfg, backend)
	if err != nil {
		slog.Error("outbox worker", "err", err)
		os.Exit(1)
	}
	if err := worker.Run(ctx); err != nil {
		slog.Error("outbox worker stopped", "err", err)
		os.Exit(1)
	}
}
