package scraper

import (
	"net"
	"net/url"
	"strings"

	"github.com/use-agent/livebox/models"
)

// NormalizeURL repairs a room URL as typically pasted by a user: surrounding
// whitespace and quotes are dropped, a missing or truncated scheme
// ("live.douyin.com/1", "://…", "s://…") is completed and http is upgraded
// to https. Loopback hosts keep plain http.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "url is empty", nil)
	}

	switch {
	case strings.HasPrefix(s, "://"):
		s = "https" + s
	case strings.HasPrefix(s, "s://"):
		s = "http" + s
	case !strings.Contains(s, "://"):
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "malformed url "+raw, err)
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "url has no host: "+raw, nil)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !isLoopback(u.Hostname()) {
			u.Scheme = "https"
		}
	default:
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "unsupported scheme "+u.Scheme, nil)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u.String(), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
