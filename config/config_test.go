package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LIVEBOX_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://www.douyin.com/", cfg.Site.HomeURL)
	require.Equal(t, ".douyin.com", cfg.Site.CookieDomain)
	require.Equal(t, 5*time.Minute, cfg.Auth.LoginTimeout)
	require.True(t, cfg.Scraper.TLSFingerprint)
	require.False(t, cfg.Browser.Headless)
	require.Equal(t, 10*time.Second, cfg.Monitor.Heartbeat)
	require.Contains(t, cfg.Monitor.PushURL, "wss://")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LIVEBOX_CONFIG", "")
	t.Setenv("LIVEBOX_PORT", "9191")
	t.Setenv("LIVEBOX_LOGIN_TIMEOUT", "90s")
	t.Setenv("LIVEBOX_API_KEYS", " a , ,b ")
	t.Setenv("LIVEBOX_INTERACTIVE", "false")
	t.Setenv("LIVEBOX_RATE_BURST", "not-a-number")
	t.Setenv("LIVEBOX_MONITOR_HEARTBEAT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, 90*time.Second, cfg.Auth.LoginTimeout)
	require.Equal(t, []string{"a", "b"}, cfg.API.APIKeys)
	require.False(t, cfg.Auth.Interactive)
	require.Equal(t, 5, cfg.RateLimit.Burst, "unparseable values keep the fallback")
	require.Equal(t, 3*time.Second, cfg.Monitor.Heartbeat)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livebox.yaml")
	data := []byte(`
site:
  home_url: https://example.test/
scraper:
  warmup_delay: 0s
auth:
  poll_interval: 250ms
store:
  path: /tmp/jar.json
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("LIVEBOX_CONFIG", path)
	t.Setenv("LIVEBOX_COOKIE_FILE", "/tmp/override.json")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://example.test/", cfg.Site.HomeURL)
	require.Equal(t, time.Duration(0), cfg.Scraper.WarmupDelay)
	require.Equal(t, 250*time.Millisecond, cfg.Auth.PollInterval)
	require.Equal(t, "/tmp/override.json", cfg.Store.Path)
	// Keys absent from the file keep their defaults.
	require.Equal(t, ".douyin.com", cfg.Site.CookieDomain)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("LIVEBOX_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
}
