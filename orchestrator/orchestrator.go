// Package orchestrator decides how a room scrape is served: straight over
// HTTP, after one round of interactive re-authentication, or from a rendered
// page when the HTTP path is walled off by a captcha.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/use-agent/livebox/config"
	"github.com/use-agent/livebox/cookiestore"
	"github.com/use-agent/livebox/interactive"
	"github.com/use-agent/livebox/models"
	"github.com/use-agent/livebox/scraper"
)

// Sources of a successful Outcome.
const (
	SourceHTTP     = "http"
	SourceRendered = "rendered"
)

// Fetcher runs one HTTP scrape attempt. *scraper.Client implements it.
type Fetcher interface {
	Scrape(ctx context.Context, target string, jar *cookiestore.Jar) (*scraper.Result, error)
	HarvestTTWID(ctx context.Context, target string) (string, error)
}

// Authenticator recovers credentials through a user-driven surface.
// *interactive.Bridge implements it.
type Authenticator interface {
	RequestLogin(ctx context.Context, loginURL string, timeout time.Duration) (string, error)
	RequestExtraction(ctx context.Context, targetURL string, validate interactive.Validator, timeout time.Duration) (*interactive.Extraction, error)
	Pending() bool
}

// Outcome is a successful orchestrated scrape.
type Outcome struct {
	Result *scraper.Result

	// Attempts counts HTTP scrape attempts made.
	Attempts int

	// Reauthenticated reports that fresh credentials were obtained
	// interactively and persisted during this scrape.
	Reauthenticated bool

	// Source is SourceHTTP or SourceRendered.
	Source string

	// States lists every state entered, in order.
	States []State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithStateHook registers fn to observe every state entered.
func WithStateHook(fn func(target string, s State)) Option {
	return func(o *Orchestrator) { o.hook = fn }
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	fetcher Fetcher
	store   *cookiestore.Store
	auth    Authenticator
	site    config.SiteConfig
	authCfg config.AuthConfig
	logger  *slog.Logger
	hook    func(string, State)
}

// New creates an Orchestrator. auth may be nil, in which case blocked
// scrapes are never recovered interactively.
func New(fetcher Fetcher, store *cookiestore.Store, auth Authenticator, cfg config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher: fetcher,
		store:   store,
		auth:    auth,
		site:    cfg.Site,
		authCfg: cfg.Auth,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// run tracks the states of one orchestrated call.
type run struct {
	o        *Orchestrator
	target   string
	states   []State
	attempts int
}

func (o *Orchestrator) newRun(target string) *run {
	r := &run{o: o, target: target}
	r.enter(StateIdle)
	return r
}

func (r *run) enter(s State) {
	r.states = append(r.states, s)
	r.o.logger.Debug("state", "target", r.target, "state", s.String())
	if r.o.hook != nil {
		r.o.hook(r.target, s)
	}
}

func (r *run) fail(err error) error {
	r.enter(StateFailed)
	r.o.logger.Info("scrape failed", "target", r.target, "code", models.CodeOf(err), "attempts", r.attempts)
	return err
}

func (r *run) succeed(res *scraper.Result, source string, reauth bool) *Outcome {
	r.enter(StateSuccess)
	return &Outcome{
		Result:          res,
		Attempts:        r.attempts,
		Reauthenticated: reauth,
		Source:          source,
		States:          r.states,
	}
}

func (o *Orchestrator) interactiveEnabled() bool {
	return o.auth != nil && o.authCfg.Interactive
}

// InteractivePending reports whether an interactive surface is open.
func (o *Orchestrator) InteractivePending() bool {
	return o.auth != nil && o.auth.Pending()
}

// PendingSurfaces names the open interactive surfaces when the
// Authenticator can report them.
func (o *Orchestrator) PendingSurfaces() []string {
	if ps, ok := o.auth.(interface{ PendingSurfaces() []string }); ok {
		return ps.PendingSurfaces()
	}
	return nil
}

// Scrape fetches target over HTTP with the persisted credentials. On a login
// wall it asks the Authenticator for fresh credentials once, persists them
// and retries exactly once. Captcha walls and transport failures are
// returned immediately.
func (o *Orchestrator) Scrape(ctx context.Context, target string) (*Outcome, error) {
	target, err := scraper.NormalizeURL(target)
	if err != nil {
		return nil, err
	}
	r := o.newRun(target)
	out, err := o.scrapeHTTP(ctx, r)
	if err != nil {
		return nil, r.fail(err)
	}
	return out, nil
}

// scrapeHTTP runs the HTTP path and leaves r in a non-terminal state on error.
func (o *Orchestrator) scrapeHTTP(ctx context.Context, r *run) (*Outcome, error) {
	r.enter(StateFetching)
	res, err := o.attempt(ctx, r, o.loadJar())
	if err == nil {
		return r.succeed(res, SourceHTTP, false), nil
	}
	if !models.IsBlocked(err) {
		return nil, err
	}

	r.enter(StateBlocked)
	if scraper.ChallengeOf(err) != scraper.ChallengeNeedsLogin || !o.interactiveEnabled() {
		return nil, err
	}

	r.enter(StateAwaitingInteractiveAuth)
	header, err := o.auth.RequestLogin(ctx, o.site.LoginURL, o.authCfg.LoginTimeout)
	if err != nil {
		return nil, interactiveError(err, "interactive login")
	}
	jar, err := o.store.Replace(header, o.site.CookieDomain)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeCredentialsIO, "persist credentials", err)
	}
	o.logger.Info("credentials refreshed interactively", "cookies", jar.Len())

	r.enter(StateRetrying)
	res, err = o.attempt(ctx, r, jar)
	if err != nil {
		if models.IsBlocked(err) {
			return nil, models.NewScrapeError(models.CodeOf(err), "still blocked after re-authentication", err)
		}
		return nil, err
	}
	return r.succeed(res, SourceHTTP, true), nil
}

func (o *Orchestrator) attempt(ctx context.Context, r *run, jar *cookiestore.Jar) (*scraper.Result, error) {
	r.attempts++
	res, err := o.fetcher.Scrape(ctx, r.target, jar)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Payload == "" {
		return nil, models.NewScrapeError(models.ErrCodeExtractionFailed, "empty room payload", nil)
	}
	return res, nil
}

// loadJar returns the persisted jar, or nil when there is none usable.
func (o *Orchestrator) loadJar() *cookiestore.Jar {
	jar, err := o.store.Load()
	var perr *cookiestore.ParseError
	switch {
	case err == nil:
		return jar
	case errors.Is(err, cookiestore.ErrNotFound):
		o.logger.Debug("no saved credentials, scraping anonymously")
	case errors.As(err, &perr):
		o.logger.Warn("saved credentials are corrupt, scraping anonymously", "path", perr.Path, "error", perr.Err)
	default:
		o.logger.Warn("saved credentials unreadable, scraping anonymously", "error", err)
	}
	return nil
}

// ScrapeRendered extracts target from a page rendered in an interactive
// surface. The ttwid cookie is harvested over HTTP first and preferred over
// the one the page reports.
func (o *Orchestrator) ScrapeRendered(ctx context.Context, target string) (*Outcome, error) {
	target, err := scraper.NormalizeURL(target)
	if err != nil {
		return nil, err
	}
	r := o.newRun(target)
	out, err := o.render(ctx, r)
	if err != nil {
		return nil, r.fail(err)
	}
	return out, nil
}

func (o *Orchestrator) render(ctx context.Context, r *run) (*Outcome, error) {
	if o.auth == nil {
		return nil, models.NewScrapeError(models.ErrCodeInteractiveFailed, "interactive surface unavailable", nil)
	}
	r.enter(StateRendering)

	ttwid, err := o.fetcher.HarvestTTWID(ctx, r.target)
	if err != nil {
		o.logger.Warn("ttwid harvest failed", "target", r.target, "error", err)
	}

	ex, err := o.auth.RequestExtraction(ctx, r.target, interactive.DefaultValidator, o.authCfg.ExtractTimeout)
	if err != nil {
		return nil, interactiveError(err, "rendered extraction")
	}
	if ex.RoomStore == "" {
		return nil, models.NewScrapeError(models.ErrCodeExtractionFailed, "rendered page reported no room data", nil)
	}
	if ttwid == "" {
		ttwid = ex.TTWID
	}

	res := &scraper.Result{
		Payload:   ex.RoomStore,
		SessionID: ex.UniqueID,
		TTWID:     ttwid,
		Title:     ex.Title,
		Ended:     gjson.Get(ex.RoomStore, "status").Int() == 4,
		FetchedAt: time.Now(),
	}
	return r.succeed(res, SourceRendered, false), nil
}

// ScrapeAuto is Scrape, falling back to ScrapeRendered when the HTTP path
// ends on a captcha and rendering on captcha is enabled.
func (o *Orchestrator) ScrapeAuto(ctx context.Context, target string) (*Outcome, error) {
	target, err := scraper.NormalizeURL(target)
	if err != nil {
		return nil, err
	}
	r := o.newRun(target)
	out, err := o.scrapeHTTP(ctx, r)
	if err == nil {
		return out, nil
	}
	if !models.IsCode(err, models.ErrCodeNeedsCaptcha) || !o.authCfg.RenderOnCaptcha || o.auth == nil {
		return nil, r.fail(err)
	}

	o.logger.Info("captcha on HTTP path, extracting from rendered page", "target", target)
	out, err = o.render(ctx, r)
	if err != nil {
		return nil, r.fail(err)
	}
	return out, nil
}

// interactiveError maps an Authenticator failure to a coded error.
func interactiveError(err error, what string) error {
	switch {
	case errors.Is(err, interactive.ErrTimedOut):
		return models.NewScrapeError(models.ErrCodeInteractiveTimeout, what+" timed out", err)
	case errors.Is(err, interactive.ErrCancelled):
		return models.NewScrapeError(models.ErrCodeInteractiveCancelled, what+" cancelled", err)
	case errors.Is(err, interactive.ErrValidationFailed):
		return models.NewScrapeError(models.ErrCodeExtractionFailed, what+" never produced valid room data", err)
	}
	return models.NewScrapeError(models.ErrCodeInteractiveFailed, what+" failed", err)
}
