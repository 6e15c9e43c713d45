package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Martian-dev/followup-reminder/internal/analytics"
	"github.com/Martian-dev/followup-reminder/internal/api"
	"github.com/Martian-dev/followup-reminder/internal/auth"
	"github.com/Martian-dev/followup-reminder/internal/config"
	"github.com/Martian-dev/followup-reminder/internal/mailbox"
	natsjs "github.com/Martian-dev/followup-reminder/internal/nats"
	"github.com/Martian-dev/followup-reminder/internal/providers/gmail"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewIDTokenVerifier(ctx, auth.GoogleJWKSURL, cfg.GoogleClientID)
	if err != nil {
		logger.Error("init id token verifier", "error", err)
		os.Exit(1)
	}

	// Reminders are optional; without NATS the refresher only aggregates.
	var notifier mailbox.Notifier
	if cfg.NATSURL != "" {
		publisher, err := natsjs.NewPublisher(cfg.NATSURL)
		if err != nil {
			logger.Error("connect nats", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		if err := publisher.EnsureStream(ctx); err != nil {
			logger.Error("ensure reminder stream", "error", err)
			os.Exit(1)
		}
		notifier = publisher
		logger.Info("follow-up reminders enabled", "stream", natsjs.StreamName)
	}

	tracker, err := analytics.New(cfg.PostHogAPIKey, cfg.PostHogEndpoint, logger)
	if err != nil {
		logger.Error("init analytics", "error", err)
		os.Exit(1)
	}
	defer tracker.Close()

	server := api.NewServer(cfg, api.Deps{
		Providers: gmail.Factory(cfg.FetchConcurrency),
		Refresher: mailbox.NewRefresher(notifier, logger),
		Verifier:  verifier,
		Tracker:   tracker,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
}
