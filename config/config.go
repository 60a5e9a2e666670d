package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Site      SiteConfig      `yaml:"site"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Auth      AuthConfig      `yaml:"auth"`
	Browser   BrowserConfig   `yaml:"browser"`
	Store     StoreConfig     `yaml:"store"`
	API       APIConfig       `yaml:"api"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "127.0.0.1"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// SiteConfig describes the streaming site being scraped.
type SiteConfig struct {
	// HomeURL is fetched before every room page to collect baseline cookies.
	HomeURL string `yaml:"home_url"` // default: "https://www.douyin.com/"

	// LoginURL is opened in the interactive surface for re-authentication.
	LoginURL string `yaml:"login_url"` // default: "https://www.douyin.com/"

	// CookieDomain is assigned to cookies parsed from a raw header.
	CookieDomain string `yaml:"cookie_domain"` // default: ".douyin.com"
}

// ScraperConfig controls the HTTP scrape session.
type ScraperConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout"` // default: 15s

	// WarmupDelay is slept before the home page fetch.
	WarmupDelay time.Duration `yaml:"warmup_delay"` // default: 1s

	// UserAgent is sent on every request.
	UserAgent string `yaml:"user_agent"`

	// AcceptLanguage is sent on every request.
	AcceptLanguage string `yaml:"accept_language"`

	// TLSFingerprint dials TLS with a Chrome ClientHello (utls).
	TLSFingerprint bool `yaml:"tls_fingerprint"` // default: true

	// Proxy is an optional http(s) proxy URL.
	Proxy string `yaml:"proxy"`
}

// AuthConfig controls interactive credential recovery.
type AuthConfig struct {
	// Interactive enables the browser-assisted login fallback.
	Interactive bool `yaml:"interactive"` // default: true

	// LoginTimeout bounds the wait for the user to log in.
	LoginTimeout time.Duration `yaml:"login_timeout"` // default: 5m

	// ExtractTimeout bounds the wait for a rendered-page extraction.
	ExtractTimeout time.Duration `yaml:"extract_timeout"` // default: 60s

	// PollInterval is the delay between polls of the interactive surface.
	PollInterval time.Duration `yaml:"poll_interval"` // default: 500ms

	// RenderOnCaptcha makes "auto" scrapes fall back to rendered extraction
	// when the HTTP path hits a captcha wall.
	RenderOnCaptcha bool `yaml:"render_on_captcha"` // default: true
}

// BrowserConfig controls the Rod browser used for interactive surfaces.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless. Interactive
	// login needs a visible window.
	Headless bool `yaml:"headless"` // default: false

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	// ControlURL connects to an already running browser instead of launching one.
	ControlURL string `yaml:"control_url"`
}

// StoreConfig controls cookie persistence.
type StoreConfig struct {
	// Path is the cookie file. Empty means <home>/.livebox/cookies.json.
	Path string `yaml:"path"`
}

// APIConfig controls API key authentication.
type APIConfig struct {
	// AuthEnabled toggles API key authentication.
	AuthEnabled bool `yaml:"auth_enabled"` // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 2

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 5
}

// CacheConfig controls the scrape result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int `yaml:"max_entries"` // default: 256

	// TTL bounds how long any entry is retained, whatever max_age asks for.
	TTL time.Duration `yaml:"ttl"` // default: 1h
}

// WebhookConfig controls delivery of scrape results to a receiver.
type WebhookConfig struct {
	// URL receives room.scraped events. Empty disables delivery.
	URL string `yaml:"url"`

	// Secret signs event bodies with HMAC-SHA256.
	Secret string `yaml:"secret"`
}

// MonitorConfig controls the live-room message stream.
type MonitorConfig struct {
	// PushURL is the WebSocket endpoint that streams room messages.
	PushURL string `yaml:"push_url"` // default: "wss://webcast5-ws-web-lf.douyin.com/webcast/im/push/v2/"

	// Heartbeat is the interval between heartbeat frames.
	Heartbeat time.Duration `yaml:"heartbeat"` // default: 10s

	// HandshakeTimeout bounds the WebSocket upgrade.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // default: 15s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "text"

	// File, when set, receives logs through a rotating writer instead of stdout.
	File string `yaml:"file"`

	// MaxSizeMB is the rotation threshold for File.
	MaxSizeMB int `yaml:"max_size_mb"` // default: 20
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Mode: "release",
		},
		Site: SiteConfig{
			HomeURL:      "https://www.douyin.com/",
			LoginURL:     "https://www.douyin.com/",
			CookieDomain: ".douyin.com",
		},
		Scraper: ScraperConfig{
			Timeout:        15 * time.Second,
			WarmupDelay:    1 * time.Second,
			UserAgent:      defaultUserAgent,
			AcceptLanguage: "zh-CN,zh;q=0.9,en;q=0.8,en-GB;q=0.7,en-US;q=0.6",
			TLSFingerprint: true,
		},
		Auth: AuthConfig{
			Interactive:     true,
			LoginTimeout:    5 * time.Minute,
			ExtractTimeout:  60 * time.Second,
			PollInterval:    500 * time.Millisecond,
			RenderOnCaptcha: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Cache: CacheConfig{
			MaxEntries: 256,
			TTL:        time.Hour,
		},
		Monitor: MonitorConfig{
			PushURL:          "wss://webcast5-ws-web-lf.douyin.com/webcast/im/push/v2/",
			Heartbeat:        10 * time.Second,
			HandshakeTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:     "info",
			Format:    "text",
			MaxSizeMB: 20,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// LIVEBOX_CONFIG (if any), then LIVEBOX_* environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("LIVEBOX_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("LIVEBOX_HOST", c.Server.Host)
	c.Server.Port = envIntOr("LIVEBOX_PORT", c.Server.Port)
	c.Server.Mode = envOr("LIVEBOX_MODE", c.Server.Mode)

	c.Site.HomeURL = envOr("LIVEBOX_HOME_URL", c.Site.HomeURL)
	c.Site.LoginURL = envOr("LIVEBOX_LOGIN_URL", c.Site.LoginURL)
	c.Site.CookieDomain = envOr("LIVEBOX_COOKIE_DOMAIN", c.Site.CookieDomain)

	c.Scraper.Timeout = envDurationOr("LIVEBOX_HTTP_TIMEOUT", c.Scraper.Timeout)
	c.Scraper.WarmupDelay = envDurationOr("LIVEBOX_WARMUP_DELAY", c.Scraper.WarmupDelay)
	c.Scraper.UserAgent = envOr("LIVEBOX_USER_AGENT", c.Scraper.UserAgent)
	c.Scraper.AcceptLanguage = envOr("LIVEBOX_ACCEPT_LANGUAGE", c.Scraper.AcceptLanguage)
	c.Scraper.TLSFingerprint = envBoolOr("LIVEBOX_TLS_FINGERPRINT", c.Scraper.TLSFingerprint)
	c.Scraper.Proxy = envOr("LIVEBOX_PROXY", c.Scraper.Proxy)

	c.Auth.Interactive = envBoolOr("LIVEBOX_INTERACTIVE", c.Auth.Interactive)
	c.Auth.LoginTimeout = envDurationOr("LIVEBOX_LOGIN_TIMEOUT", c.Auth.LoginTimeout)
	c.Auth.ExtractTimeout = envDurationOr("LIVEBOX_EXTRACT_TIMEOUT", c.Auth.ExtractTimeout)
	c.Auth.PollInterval = envDurationOr("LIVEBOX_POLL_INTERVAL", c.Auth.PollInterval)
	c.Auth.RenderOnCaptcha = envBoolOr("LIVEBOX_RENDER_ON_CAPTCHA", c.Auth.RenderOnCaptcha)

	c.Browser.Headless = envBoolOr("LIVEBOX_HEADLESS", c.Browser.Headless)
	c.Browser.NoSandbox = envBoolOr("LIVEBOX_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("LIVEBOX_BROWSER_BIN", c.Browser.BrowserBin)
	c.Browser.ControlURL = envOr("LIVEBOX_BROWSER_CONTROL_URL", c.Browser.ControlURL)

	c.Store.Path = envOr("LIVEBOX_COOKIE_FILE", c.Store.Path)

	c.API.AuthEnabled = envBoolOr("LIVEBOX_AUTH_ENABLED", c.API.AuthEnabled)
	c.API.APIKeys = envSliceOr("LIVEBOX_API_KEYS", c.API.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("LIVEBOX_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("LIVEBOX_RATE_BURST", c.RateLimit.Burst)

	c.Cache.MaxEntries = envIntOr("LIVEBOX_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.TTL = envDurationOr("LIVEBOX_CACHE_TTL", c.Cache.TTL)

	c.Webhook.URL = envOr("LIVEBOX_WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.Secret = envOr("LIVEBOX_WEBHOOK_SECRET", c.Webhook.Secret)

	c.Monitor.PushURL = envOr("LIVEBOX_MONITOR_PUSH_URL", c.Monitor.PushURL)
	c.Monitor.Heartbeat = envDurationOr("LIVEBOX_MONITOR_HEARTBEAT", c.Monitor.Heartbeat)
	c.Monitor.HandshakeTimeout = envDurationOr("LIVEBOX_MONITOR_HANDSHAKE_TIMEOUT", c.Monitor.HandshakeTimeout)

	c.Log.Level = envOr("LIVEBOX_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("LIVEBOX_LOG_FORMAT", c.Log.Format)
	c.Log.File = envOr("LIVEBOX_LOG_FILE", c.Log.File)
	c.Log.MaxSizeMB = envIntOr("LIVEBOX_LOG_MAX_SIZE_MB", c.Log.MaxSizeMB)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
