package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifesim/internal/api"
	"lifesim/internal/config"
	"lifesim/internal/db"
	"lifesim/internal/economy"
	"lifesim/internal/events"
	"lifesim/internal/game"
	"lifesim/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLevel(cfg.LogLevel)}))

	st, bus, cleanup, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	registry := economy.NewRegistry(economy.DefaultCountries()...)
	if cfg.CountriesFile != "" {
		registry, err = economy.LoadRegistryFile(cfg.CountriesFile)
		if err != nil {
			logger.Error("load countries failed", "err", err, "file", cfg.CountriesFile)
			os.Exit(1)
		}
	}

	gameSvc := game.NewService(st, registry, bus, game.Options{
		ProposalTTL:     cfg.ProposalTTL,
		DefaultCountry:  cfg.DefaultCountry,
		StarterCash:     cfg.StarterCash,
		Concurrency:     cfg.Concurrency,
		ReportCacheSize: cfg.ReportCacheSize,
	}, logger)
	defer gameSvc.Close()

	loaded, err := gameSvc.LoadActors(ctx)
	if err != nil {
		logger.Error("load actors failed", "err", err)
		os.Exit(1)
	}

	server := api.New(cfg, logger, gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("lifesim api listening", "addr", cfg.Addr, "actors", loaded, "countries", registry.IDs())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

// openBackend picks Postgres with LISTEN/NOTIFY when DATABASE_URL is set and
// falls back to a local SQLite file with an in-process bus.
func openBackend(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (store.Store, events.Channel, func(), error) {
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		st, err := store.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		bus := events.NewPGBus(pool, cfg.EventsChannel, logger)
		logger.Info("using postgres store", "channel", cfg.EventsChannel)
		return st, bus, func() {
			bus.Close()
			pool.Close()
		}, nil
	}

	st, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, nil, nil, err
	}
	bus := events.NewMemoryBus(0, logger)
	logger.Info("using sqlite store", "path", cfg.SQLitePath)
	return st, bus, func() {
		bus.Close()
		_ = st.Close()
	}, nil
}
