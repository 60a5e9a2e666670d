// Package scraper performs one authenticated scrape attempt of a live room
// page over HTTP: a warm-up fetch of the site home page, the room fetch with
// the caller's cookies, challenge detection and extraction of the embedded
// room data.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/use-agent/livebox/config"
	"github.com/use-agent/livebox/cookiestore"
	"github.com/use-agent/livebox/models"
)

const (
	maxBodyBytes = 10 << 20 // 10 MB

	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	secCHUA    = `"Chromium";v="131", "Not_A Brand";v="24"`
)

// Client scrapes room pages. It is safe for concurrent use; every Scrape
// call runs in its own session with its own cookies.
type Client struct {
	cfg       config.ScraperConfig
	site      config.SiteConfig
	transport *http.Transport
	logger    *slog.Logger
}

// NewClient creates a Client sharing one fingerprinted transport across sessions.
func NewClient(cfg config.ScraperConfig, site config.SiteConfig, logger *slog.Logger) (*Client, error) {
	transport, err := newTransport(cfg.TLSFingerprint, cfg.Proxy)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		site:      site,
		transport: transport,
		logger:    logger.With("component", "scraper"),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// Scrape runs one attempt against target using seed as the caller's cookies
// (nil means none). Failures are *models.ScrapeError with code
// TRANSPORT_ERROR, BLOCKED_NEEDS_CAPTCHA, BLOCKED_NEEDS_LOGIN or
// EXTRACTION_FAILED.
func (c *Client) Scrape(ctx context.Context, target string, seed *cookiestore.Jar) (*Result, error) {
	s, err := c.newSession(target, seed)
	if err != nil {
		return nil, err
	}

	if err := s.warmUp(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, models.NewScrapeError(models.ErrCodeTransport, "scrape cancelled", ctx.Err())
		}
		c.logger.Warn("warm-up fetch failed, continuing", "url", c.site.HomeURL, "error", err)
	}

	page, err := s.fetchTarget(ctx)
	if err != nil {
		return nil, err
	}

	if ch := Classify(page.body); ch != ChallengeNone {
		c.logger.Info("room page blocked",
			"url", target,
			"challenge", ch.String(),
			"status", page.status,
			"seed_cookies", seed.Len(),
		)
		return nil, ch.err(target)
	}

	ex, err := Extract(page.body)
	if err != nil {
		c.logger.Info("room data not found", "url", target, "status", page.status, "body_bytes", len(page.body))
		return nil, err
	}
	if !ex.Ended && ex.UniqueID == "" {
		c.logger.Warn("user_unique_id not found in room page", "url", target)
	}

	return &Result{
		Payload:    ex.Payload,
		SessionID:  ex.UniqueID,
		TTWID:      page.ttwid,
		Title:      pageTitle(page.body),
		Ended:      ex.Ended,
		StatusCode: page.status,
		FetchedAt:  time.Now(),
	}, nil
}

// HarvestTTWID fetches target without cookies and returns the ttwid cookie
// the site sets, trying HEAD before GET. It returns "" when none is issued.
func (c *Client) HarvestTTWID(ctx context.Context, target string) (string, error) {
	hc := c.newHTTP()
	for _, method := range []string{resty.MethodHead, resty.MethodGet} {
		resp, err := hc.R().
			SetContext(ctx).
			SetHeader("user-agent", c.cfg.UserAgent).
			SetDoNotParseResponse(true).
			Execute(method, target)
		if err != nil {
			return "", models.NewScrapeError(models.ErrCodeTransport, "harvest ttwid", err)
		}
		if body := resp.RawBody(); body != nil {
			body.Close()
		}
		if v := cookieValue(resp.Cookies(), "ttwid"); v != "" {
			return v, nil
		}
	}
	return "", nil
}

func (c *Client) newHTTP() *resty.Client {
	// The session manages cookies itself so the Cookie header is sent once.
	return resty.New().
		SetTransport(c.transport).
		SetCookieJar(nil).
		SetTimeout(c.cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
}

// session is one scrape attempt's HTTP state.
type session struct {
	c      *Client
	http   *resty.Client
	jar    *cookiejar.Jar
	seed   *cookiestore.Jar
	target *url.URL
	home   *url.URL
}

func (c *Client) newSession(target string, seed *cookiestore.Jar) (*session, error) {
	targetURL, err := url.Parse(target)
	if err != nil || targetURL.Host == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid target url "+target, err)
	}
	homeURL, err := url.Parse(c.site.HomeURL)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "invalid home url "+c.site.HomeURL, err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "create cookie jar", err)
	}
	return &session{
		c:      c,
		http:   c.newHTTP(),
		jar:    jar,
		seed:   seed,
		target: targetURL,
		home:   homeURL,
	}, nil
}

func (s *session) browserHeaders(fetchSite string) map[string]string {
	return map[string]string{
		"accept":                    acceptHTML,
		"accept-language":           s.c.cfg.AcceptLanguage,
		"cache-control":             "max-age=0",
		"dnt":                       "1",
		"sec-ch-ua":                 secCHUA,
		"sec-ch-ua-mobile":          "?0",
		"sec-ch-ua-platform":        `"Windows"`,
		"sec-fetch-dest":            "document",
		"sec-fetch-mode":            "navigate",
		"sec-fetch-site":            fetchSite,
		"sec-fetch-user":            "?1",
		"upgrade-insecure-requests": "1",
		"user-agent":                s.c.cfg.UserAgent,
	}
}

// warmUp fetches the home page to collect the baseline cookies the site
// expects before it serves a room page.
func (s *session) warmUp(ctx context.Context) error {
	if d := s.c.cfg.WarmupDelay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetHeaders(s.browserHeaders("none")).
		SetDoNotParseResponse(true).
		Get(s.home.String())
	if err != nil {
		return err
	}
	if body := resp.RawBody(); body != nil {
		io.Copy(io.Discard, io.LimitReader(body, maxBodyBytes))
		body.Close()
	}

	cookies := resp.Cookies()
	s.jar.SetCookies(s.home, cookies)
	names := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		names = append(names, ck.Name)
	}
	s.c.logger.Debug("warm-up cookies collected", "status", resp.StatusCode(), "cookies", names)
	return nil
}

// cookieHeader merges the warm-up cookies applicable to the target with the
// seed jar. Seed cookies win on name clashes.
func (s *session) cookieHeader() string {
	merged := make([]string, 0)
	index := make(map[string]int)
	add := func(name, value string) {
		pair := name + "=" + value
		if i, ok := index[name]; ok {
			merged[i] = pair
			return
		}
		index[name] = len(merged)
		merged = append(merged, pair)
	}
	for _, ck := range s.jar.Cookies(s.target) {
		add(ck.Name, ck.Value)
	}
	if s.seed != nil {
		for _, ck := range s.seed.Cookies {
			add(ck.Name, ck.Value)
		}
	}
	return strings.Join(merged, "; ")
}

type page struct {
	body   string
	status int
	ttwid  string
}

func (s *session) fetchTarget(ctx context.Context) (*page, error) {
	req := s.http.R().
		SetContext(ctx).
		SetHeaders(s.browserHeaders("same-origin")).
		SetHeader("priority", "u=0, i").
		SetHeader("referer", s.home.String()).
		SetDoNotParseResponse(true)
	if h := s.cookieHeader(); h != "" {
		req.SetHeader("cookie", h)
	}

	resp, err := req.Get(s.target.String())
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport,
			fmt.Sprintf("fetch %s", s.target), err)
	}
	raw := resp.RawBody()
	if raw == nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "empty response", nil)
	}
	defer raw.Close()

	body, err := io.ReadAll(io.LimitReader(raw, maxBodyBytes))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "read room page", err)
	}

	ttwid := cookieValue(resp.Cookies(), "ttwid")
	if ttwid == "" {
		// The home page usually issues ttwid for the whole site.
		ttwid = cookieValue(s.jar.Cookies(s.target), "ttwid")
	}

	s.c.logger.Debug("room page fetched",
		"url", s.target.String(),
		"status", resp.StatusCode(),
		"bytes", len(body),
		"ttwid", ttwid != "",
	)
	return &page{body: string(body), status: resp.StatusCode(), ttwid: ttwid}, nil
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, ck := range cookies {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}
