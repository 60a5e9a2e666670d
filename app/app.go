// Package app assembles the scrape core from configuration. Both the HTTP
// server and the CLI run the same wiring.
package app

import (
	"fmt"
	"log/slog"

	"github.com/use-agent/livebox/config"
	"github.com/use-agent/livebox/cookiestore"
	"github.com/use-agent/livebox/interactive"
	"github.com/use-agent/livebox/monitor"
	"github.com/use-agent/livebox/orchestrator"
	"github.com/use-agent/livebox/scraper"
	"github.com/use-agent/livebox/webhook"
)

// App owns the long-lived components behind an Orchestrator.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *cookiestore.Store
	Monitor      *monitor.Monitor

	// Webhook is nil when no webhook URL is configured.
	Webhook *webhook.Notifier

	client  *scraper.Client
	browser *interactive.RodProvider
}

// New wires the scraper, cookie store and, when interactive recovery is
// enabled, the browser-backed bridge. The browser is not launched until a
// surface is first needed.
func New(cfg *config.Config, logger *slog.Logger, opts ...orchestrator.Option) (*App, error) {
	client, err := scraper.NewClient(cfg.Scraper, cfg.Site, logger)
	if err != nil {
		return nil, fmt.Errorf("app: scraper: %w", err)
	}

	a := &App{
		Store:   cookiestore.NewStore(cfg.Store.Path),
		Monitor: monitor.New(cfg.Monitor, cfg.Scraper.UserAgent, logger),
		Webhook: webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret, logger),
		client:  client,
	}

	var auth orchestrator.Authenticator
	if cfg.Auth.Interactive {
		a.browser = interactive.NewRodProvider(cfg.Browser, cfg.Scraper, logger)
		auth = interactive.NewBridge(a.browser, cfg.Auth.PollInterval, logger)
	}

	opts = append([]orchestrator.Option{orchestrator.WithLogger(logger)}, opts...)
	a.Orchestrator = orchestrator.New(client, a.Store, auth, *cfg, opts...)

	logger.Info("core ready",
		"cookie_file", a.Store.Path(),
		"interactive", cfg.Auth.Interactive,
		"tls_fingerprint", cfg.Scraper.TLSFingerprint,
		"webhook", cfg.Webhook.URL != "",
	)
	return a, nil
}

// Close releases the browser and idle connections.
func (a *App) Close() {
	if a.browser != nil {
		a.browser.Shutdown()
	}
	a.client.Close()
}
