package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IceQ1337/SteamBanChecker/internal/bot"
	"github.com/IceQ1337/SteamBanChecker/internal/config"
	"github.com/IceQ1337/SteamBanChecker/internal/messages"
	"github.com/IceQ1337/SteamBanChecker/internal/metrics"
	"github.com/IceQ1337/SteamBanChecker/internal/notify"
	"github.com/IceQ1337/SteamBanChecker/internal/poller"
	"github.com/IceQ1337/SteamBanChecker/internal/reconcile"
	"github.com/IceQ1337/SteamBanChecker/internal/registry"
	"github.com/IceQ1337/SteamBanChecker/internal/steam"
	"github.com/IceQ1337/SteamBanChecker/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logging
	setupLogging(cfg.LogLevel)

	slog.Info("Starting Steam Ban Checker Bot")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Bot failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Bot stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	catalog, err := messages.Load(cfg.Language)
	if err != nil {
		return err
	}

	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer repo.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return err
	}

	steamClient := steam.NewClient(cfg.SteamAPIKey)
	discord := notify.NewDiscord(session)

	dispatcher := notify.NewDispatcher(discord, notify.NewBanRenderer(catalog, steamClient), 0, m)
	dispatcher.Start()
	defer dispatcher.Stop()

	engine := reconcile.New(repo, steamClient, dispatcher, reconcile.Options{
		Policy:       reconcile.DefaultStopPolicy(cfg.CommunityBanStopsTracking),
		Concurrency:  cfg.FetchConcurrency,
		FetchTimeout: cfg.FetchTimeout,
		Metrics:      m,
	})
	checks := poller.New(engine, cfg.CheckInterval)

	manager := registry.New(repo, steamClient, steamClient, registry.Config{
		AdminID:       cfg.AdminUserID,
		AllowRequests: cfg.AllowRequests,
	})

	b := bot.New(session, manager, catalog, discord, checks)
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := b.Stop(); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	go checks.Start(ctx)
	defer checks.Stop()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("Serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	slog.Info("Bot is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	return nil
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
