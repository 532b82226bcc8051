package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifesim/internal/cli"
	"lifesim/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLevel(cfg.LogLevel)}))

	client := cli.NewClient(cfg.APIBaseURL)
	client.AdminKey = cfg.AdminKey
	client.HTTP.Timeout = 2 * time.Minute

	if cfg.RunOnce {
		if err := advance(ctx, client, logger); err != nil {
			logger.Error("quarter advance failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.QuarterEvery)
	defer ticker.Stop()

	logger.Info("worker started", "quarter_every", cfg.QuarterEvery.String(), "api", cfg.APIBaseURL)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := advance(ctx, client, logger); err != nil {
				logger.Error("quarter advance failed", "err", err)
			}
		}
	}
}

func advance(ctx context.Context, client *cli.Client, logger *slog.Logger) error {
	out, err := client.AdvanceQuarter(ctx)
	if err != nil {
		return err
	}
	logger.Info("quarter advanced",
		"players", out["players"],
		"failed", out["failed"],
		"net_profit", out["net_profit"],
	)
	return nil
}
