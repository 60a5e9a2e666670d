package interactive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/livebox/config"
)

// extractScript reads the room store the live page keeps on window and
// returns it as an extraction JSON document, or "" while it is not ready.
const extractScript = `() => {
	const store = window.__STORE__;
	if (document.readyState !== 'complete' || !store) return '';
	const info = (store.roomStore && store.roomStore.roomInfo) || {};
	const room = info.room || info;
	const plain = (obj, depth) => {
		if (depth > 3 || obj === null || typeof obj !== 'object') return obj;
		if (Array.isArray(obj)) return obj.map(v => plain(v, depth + 1));
		const out = {};
		for (const k in obj) {
			if (k.startsWith('$') || k.startsWith('_')) continue;
			try {
				const v = obj[k];
				if (typeof v !== 'function') out[k] = plain(v, depth + 1);
			} catch (e) {}
		}
		return out;
	};
	let title = (info.room && info.room.title) || info.title || '';
	if (!title) {
		const og = document.querySelector('meta[property="og:title"]');
		title = (og && og.content) || document.title || '';
	}
	let uid = '';
	const m = document.documentElement.outerHTML.match(/user_unique_id[\\"]?:[\\"]?["']?(\d+)["']?/);
	if (m) uid = m[1];
	if (!uid && store.userStore && store.userStore.userInfo) {
		const u = store.userStore.userInfo;
		uid = u.id_str || u.web_rid || u.display_id || '';
	}
	let ttwid = '';
	for (const c of document.cookie.split(';')) {
		const [k, v] = c.trim().split('=');
		if (k === 'ttwid') { ttwid = v || ''; break; }
	}
	let roomStore = '';
	try { roomStore = JSON.stringify(plain(room, 0)); } catch (e) {}
	return JSON.stringify({title: title, user_unique_id: uid, ttwid: ttwid, room_store: roomStore});
}`

// RodProvider opens surfaces as tabs of a Chromium browser driven by Rod.
// The browser is launched on first use and kept until Shutdown.
type RodProvider struct {
	cfg       config.BrowserConfig
	userAgent string
	acceptLng string
	logger    *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	remote  bool

	// Browser process operations; tests replace them.
	connect      func() (*rod.Browser, bool, error)
	newPage      func(*rod.Browser) (*rod.Page, error)
	closeBrowser func(*rod.Browser) error
}

// NewRodProvider creates a provider. Nothing is launched until Open.
func NewRodProvider(cfg config.BrowserConfig, scraperCfg config.ScraperConfig, logger *slog.Logger) *RodProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &RodProvider{
		cfg:       cfg,
		userAgent: scraperCfg.UserAgent,
		acceptLng: scraperCfg.AcceptLanguage,
		logger:    logger.With("component", "rod"),
		newPage: func(b *rod.Browser) (*rod.Page, error) {
			return b.Page(proto.TargetCreateTarget{})
		},
		closeBrowser: func(b *rod.Browser) error { return b.Close() },
	}
	p.connect = p.connectBrowser
	return p
}

func (p *RodProvider) ensureBrowser() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return p.browser, nil
	}
	browser, remote, err := p.connect()
	if err != nil {
		return nil, err
	}
	p.browser = browser
	p.remote = remote
	return browser, nil
}

// connectBrowser launches Chromium, or attaches to ControlURL when set.
func (p *RodProvider) connectBrowser() (*rod.Browser, bool, error) {
	controlURL := p.cfg.ControlURL
	remote := controlURL != ""
	if !remote {
		l := launcher.New().
			Headless(p.cfg.Headless).
			NoSandbox(p.cfg.NoSandbox)
		if p.cfg.BrowserBin != "" {
			l = l.Bin(p.cfg.BrowserBin)
		}

		// ── Stealth flags ────────────────────────────────────────────────
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "TranslateUI")
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("no-first-run"))

		u, err := l.Launch()
		if err != nil {
			return nil, false, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, false, fmt.Errorf("connect to browser: %w", err)
	}
	p.logger.Info("browser ready", "controlURL", controlURL, "remote", remote)
	return browser, remote, nil
}

// openPage creates a blank tab. A cached browser that cannot create one has
// usually been quit by the user; it is replaced once.
func (p *RodProvider) openPage() (*rod.Browser, *rod.Page, error) {
	browser, err := p.ensureBrowser()
	if err != nil {
		return nil, nil, err
	}
	page, err := p.newPage(browser)
	if err == nil {
		return browser, page, nil
	}
	p.logger.Warn("browser unreachable, relaunching", "error", err)
	p.discard(browser)

	browser, err = p.ensureBrowser()
	if err != nil {
		return nil, nil, err
	}
	page, err = p.newPage(browser)
	if err != nil {
		p.discard(browser)
		return nil, nil, fmt.Errorf("create page: %w", err)
	}
	return browser, page, nil
}

// discard drops browser if it is still the cached one. A launched browser
// is closed; a remote one is left running.
func (p *RodProvider) discard(browser *rod.Browser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != browser {
		return
	}
	if !p.remote {
		if err := p.closeBrowser(browser); err != nil {
			p.logger.Debug("browser close failed", "error", err)
		}
	}
	p.browser = nil
}

// Open creates a stealth tab and navigates it to url.
func (p *RodProvider) Open(ctx context.Context, url string) (Surface, error) {
	browser, page, err := p.openPage()
	if err != nil {
		return nil, err
	}

	// Stealth and headers must be installed before the first navigation.
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		p.logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}
	if p.userAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: p.userAgent}.Call(page)
	}
	if p.acceptLng != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{"Accept-Language": gson.New(p.acceptLng)},
		}.Call(page)
	}

	s := &rodSurface{browser: browser, page: page}
	if err := s.Navigate(ctx, url); err != nil {
		_ = page.Close()
		return nil, err
	}
	return s, nil
}

// Shutdown closes a launched browser. A browser reached through ControlURL
// belongs to someone else and is left running.
func (p *RodProvider) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser == nil {
		return
	}
	if !p.remote {
		if err := p.closeBrowser(p.browser); err != nil {
			p.logger.Debug("browser close failed", "error", err)
		}
	}
	p.logger.Info("browser released", "remote", p.remote)
	p.browser = nil
}

type rodSurface struct {
	browser *rod.Browser
	page    *rod.Page
}

func (s *rodSurface) Navigate(ctx context.Context, url string) error {
	if err := s.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Poll reports the cookies visible to the current document and, on a room
// page, the extraction payload.
func (s *rodSurface) Poll(ctx context.Context) (Signal, error) {
	if !s.alive() {
		return Signal{}, ErrSurfaceClosed
	}
	p := s.page.Context(ctx)

	var sig Signal
	cookies, err := p.Cookies(nil)
	if err != nil {
		return sig, err
	}
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	sig.Cookies = strings.Join(pairs, "; ")

	res, err := p.Eval(extractScript)
	if err != nil {
		// Evaluation fails while the page is mid-navigation.
		return sig, nil
	}
	if v := res.Value.Str(); v != "" {
		sig.Payload = []byte(v)
	}
	return sig, nil
}

// alive reports whether the tab still exists; the user may have closed it.
func (s *rodSurface) alive() bool {
	res, err := proto.TargetGetTargets{}.Call(s.browser)
	if err != nil {
		return false
	}
	for _, info := range res.TargetInfos {
		if info.TargetID == s.page.TargetID {
			return true
		}
	}
	return false
}

func (s *rodSurface) Close() error {
	if !s.alive() {
		return nil
	}
	return s.page.Close()
}
