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

	"github.com/use-agent/livebox/api"
	"github.com/use-agent/livebox/app"
	"github.com/use-agent/livebox/cache"
	"github.com/use-agent/livebox/config"
	"github.com/use-agent/livebox/orchestrator"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	logger, logCloser := app.NewLogger(cfg.Log, os.Stdout)
	defer logCloser.Close()
	slog.SetDefault(logger)
	slog.Info("livebox starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"interactive", cfg.Auth.Interactive,
	)

	// ── 3. Initialise the scrape core ───────────────────────────────
	core, err := app.New(cfg, logger, orchestrator.WithStateHook(func(target string, s orchestrator.State) {
		if s == orchestrator.StateAwaitingInteractiveAuth {
			slog.Warn("login required: complete the sign-in in the browser window", "target", target)
		}
	}))
	if err != nil {
		slog.Error("failed to initialise core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	// ── 4. Cache + webhook ──────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Close()

	wh := core.Webhook
	if wh != nil {
		slog.Info("webhook delivery enabled", "url", cfg.Webhook.URL)
	}

	// ── 5. Setup router ─────────────────────────────────────────────
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	router := api.NewRouter(ctx, core.Orchestrator, cfg, cc, wh, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Webhook retries get their own short window.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := wh.Wait(drainCtx); err != nil {
		slog.Warn("pending webhook deliveries dropped", "error", err)
	}

	// core.Close() runs via defer and releases the browser.
	slog.Info("livebox stopped")
}
