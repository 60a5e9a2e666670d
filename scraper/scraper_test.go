package scraper

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/use-agent/livebox/config"
	"github.com/use-agent/livebox/cookiestore"
	"github.com/use-agent/livebox/models"
)

const liveBody = `<html><head><title>Room title</title><meta property="og:title" content="主播的直播间"></head><body>` +
	`<script>self.__pace_f.push([1,"{\"state\":{\"roomStore\":{\"roomInfo\":{\"room\":{\"id_str\":\"7\",\"status\":2,\"title\":\"hi \\\"there\\\"\",\"toolbar_data\":{}},\"web_rid\":\"1\"}},\"userStore\":{\"odin\":{\"user_unique_id\":\"7300000000000000001\"}}}}"])</script>` +
	`</body></html>`

const endedBody = `<html><head><title>Ended</title></head><body>` +
	`<script>self.__pace_f.push([1,"{\"roomInfo\":{\"room\":{\"status\":4},\"anchor\":{\"id_str\":\"9\",\"nickname\":\"n\",\"open_id_str\":\"x\"}}}"])</script>` +
	`</body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Challenge
	}{
		{"plain room", liveBody, ChallengeNone},
		{"verification middle page", "<title>验证码中间页</title>", ChallengeNeedsCaptcha},
		{"middle page loading", `<div id="middle_page_loading">`, ChallengeNeedsCaptcha},
		{"captcha script", `<script src="/captcha.js">`, ChallengeNeedsCaptcha},
		{"access denied", "<h1>Access Denied</h1>", ChallengeNeedsLogin},
		{"system error header echo", "X-TT-System-Error: 3", ChallengeNeedsLogin},
		{"captcha wins over denial", "Access Denied captcha", ChallengeNeedsCaptcha},
		{"empty", "", ChallengeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.body))
		})
	}
}

func TestChallengeOf(t *testing.T) {
	require.Equal(t, ChallengeNone, ChallengeOf(nil))
	require.Equal(t, ChallengeNone, ChallengeOf(models.NewScrapeError(models.ErrCodeTransport, "x", nil)))
	require.Equal(t, ChallengeNeedsLogin, ChallengeOf(models.NewScrapeError(models.ErrCodeExtractionFailed, "x", nil)))
	require.Equal(t, ChallengeNeedsLogin, ChallengeOf(ChallengeNeedsLogin.err("u")))
	require.Equal(t, ChallengeNeedsCaptcha, ChallengeOf(ChallengeNeedsCaptcha.err("u")))
}

func TestExtract(t *testing.T) {
	t.Run("live room", func(t *testing.T) {
		ex, err := Extract(liveBody)
		require.NoError(t, err)
		require.False(t, ex.Ended)
		require.Equal(t, `{"id_str":"7","status":2,"title":"hi \"there\""}`, ex.Payload)
		require.Equal(t, "7300000000000000001", ex.UniqueID)
	})

	t.Run("ended stream uses anchor", func(t *testing.T) {
		ex, err := Extract(endedBody)
		require.NoError(t, err)
		require.True(t, ex.Ended)
		require.Equal(t, `{"id_str":"9","nickname":"n"}`, ex.Payload)
		require.Empty(t, ex.UniqueID)
	})

	t.Run("ended stream without anchor", func(t *testing.T) {
		_, err := Extract(`{\"status\":4}`)
		require.True(t, models.IsCode(err, models.ErrCodeExtractionFailed))
	})

	t.Run("no room data", func(t *testing.T) {
		_, err := Extract("<html><body>hello</body></html>")
		require.True(t, models.IsCode(err, models.ErrCodeExtractionFailed))
		require.Equal(t, ChallengeNeedsLogin, ChallengeOf(err))
	})

	t.Run("unique id missing is tolerated", func(t *testing.T) {
		ex, err := Extract(`roomInfo\":{\"room\":{\"id_str\":\"1\",\"toolbar_data\":{}}`)
		require.NoError(t, err)
		require.Empty(t, ex.UniqueID)
		require.Equal(t, `{"id_str":"1"}`, ex.Payload)
	})
}

func TestMatchUniqueID(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"strict escaped", `user_unique_id\":\"111\"}`, "111"},
		{"unescaped", `{"user_unique_id":"222","x":1}`, "222"},
		{"loose escaped", `user_unique_id\":\"333\",\"next\"`, "333"},
		{"first matcher wins", `user_unique_id\":\"444\"} "user_unique_id":"555"`, "444"},
		{"none", `user_id=1`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, matchUniqueID(tt.body))
		})
	}
}

func TestUnescapeFragment(t *testing.T) {
	require.Equal(t, `{"a":"b"}`, unescapeFragment(`{\"a\":\"b\"}`))
	require.Equal(t, `{"u":"x\u0026y"}`, unescapeFragment(`{\"u\":\"x\\u0026y\"}`))
	// Not a valid string literal: fall back to quote replacement.
	require.Equal(t, `{"a":"b"}`+"\t", unescapeFragment(`{\"a\":\"b\"}`+"\t"))
}

func TestPageTitle(t *testing.T) {
	require.Equal(t, "主播的直播间", pageTitle(liveBody))
	require.Equal(t, "Ended", pageTitle(endedBody))
	require.Equal(t, "", pageTitle("no markup"))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"already https", "https://live.douyin.com/123", "https://live.douyin.com/123", false},
		{"missing scheme", "live.douyin.com/123", "https://live.douyin.com/123", false},
		{"www host", "www.douyin.com/follow", "https://www.douyin.com/follow", false},
		{"bare scheme separator", "://live.douyin.com/1", "https://live.douyin.com/1", false},
		{"truncated scheme", "s://live.douyin.com/1", "https://live.douyin.com/1", false},
		{"http upgraded", "http://live.douyin.com/1", "https://live.douyin.com/1", false},
		{"quotes and spaces", `  "https://live.douyin.com/1"  `, "https://live.douyin.com/1", false},
		{"single quotes", `'live.douyin.com/1'`, "https://live.douyin.com/1", false},
		{"loopback keeps http", "http://127.0.0.1:8080/room", "http://127.0.0.1:8080/room", false},
		{"empty", "   ", "", true},
		{"no host", "https:///path", "", true},
		{"bad scheme", "ftp://live.douyin.com/1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.raw)
			if tt.wantErr {
				require.True(t, models.IsCode(err, models.ErrCodeInvalidInput), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// siteServer fakes the home page and a room page.
type siteServer struct {
	*httptest.Server

	mu         sync.Mutex
	roomBody   string
	roomCookie string
	referer    string
	homeHits   int
	roomHits   int
}

func newSiteServer(t *testing.T, roomBody string) *siteServer {
	t.Helper()
	s := &siteServer{roomBody: roomBody}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.homeHits++
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "ttwid", Value: "home-ttwid", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "__ac_nonce", Value: "nonce", Path: "/"})
		io.WriteString(w, "<html>home</html>")
	})
	mux.HandleFunc("/room/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.roomHits++
		s.roomCookie = r.Header.Get("Cookie")
		s.referer = r.Header.Get("Referer")
		body := s.roomBody
		s.mu.Unlock()
		if r.URL.Query().Get("ttwid") == "1" {
			http.SetCookie(w, &http.Cookie{Name: "ttwid", Value: "room-ttwid", Path: "/"})
		}
		io.WriteString(w, body)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestClient(t *testing.T, homeURL string) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.Scraper.WarmupDelay = 0
	cfg.Site.HomeURL = homeURL + "/"
	c, err := NewClient(cfg.Scraper, cfg.Site, discardLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func cookieMap(header string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok {
			out[name] = value
		}
	}
	return out
}

func TestScrape_LiveRoom(t *testing.T) {
	site := newSiteServer(t, liveBody)
	client := newTestClient(t, site.URL)

	seed := cookiestore.FromHeaderString("sessionid=abc; __ac_nonce=seeded", ".douyin.com")
	res, err := client.Scrape(context.Background(), site.URL+"/room/1", seed)
	require.NoError(t, err)

	require.Equal(t, `{"id_str":"7","status":2,"title":"hi \"there\""}`, res.Payload)
	require.Equal(t, "7300000000000000001", res.SessionID)
	require.Equal(t, "home-ttwid", res.TTWID, "falls back to the warm-up ttwid")
	require.Equal(t, "主播的直播间", res.Title)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.False(t, res.FetchedAt.IsZero())

	site.mu.Lock()
	defer site.mu.Unlock()
	require.Equal(t, 1, site.homeHits)
	require.Equal(t, 1, site.roomHits)
	require.Equal(t, site.URL+"/", site.referer)

	sent := cookieMap(site.roomCookie)
	require.Equal(t, "abc", sent["sessionid"])
	require.Equal(t, "seeded", sent["__ac_nonce"], "seed wins over warm-up cookies")
	require.Equal(t, "home-ttwid", sent["ttwid"])
	require.Equal(t, 1, strings.Count(site.roomCookie, "__ac_nonce="), "no duplicate cookie names")
}

func TestScrape_TTWIDFromRoomResponse(t *testing.T) {
	site := newSiteServer(t, liveBody)
	client := newTestClient(t, site.URL)

	res, err := client.Scrape(context.Background(), site.URL+"/room/1?ttwid=1", nil)
	require.NoError(t, err)
	require.Equal(t, "room-ttwid", res.TTWID)
}

func TestScrape_EndedRoom(t *testing.T) {
	site := newSiteServer(t, endedBody)
	client := newTestClient(t, site.URL)

	res, err := client.Scrape(context.Background(), site.URL+"/room/1", nil)
	require.NoError(t, err)
	require.True(t, res.Ended)
	require.Equal(t, `{"id_str":"9","nickname":"n"}`, res.Payload)
}

func TestScrape_Blocked(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"denied", "<h1>Access Denied</h1>", models.ErrCodeNeedsLogin},
		{"captcha", "<title>验证码中间页</title>", models.ErrCodeNeedsCaptcha},
		{"unmatched page", "<html>maintenance</html>", models.ErrCodeExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newSiteServer(t, tt.body)
			client := newTestClient(t, site.URL)

			_, err := client.Scrape(context.Background(), site.URL+"/room/1", nil)
			require.True(t, models.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestScrape_TransportError(t *testing.T) {
	site := newSiteServer(t, liveBody)
	client := newTestClient(t, site.URL)
	target := site.URL + "/room/1"
	site.Close()

	_, err := client.Scrape(context.Background(), target, nil)
	require.True(t, models.IsCode(err, models.ErrCodeTransport), "got %v", err)
	require.Equal(t, ChallengeNone, ChallengeOf(err))
}

func TestScrape_WarmupFailureIsIgnored(t *testing.T) {
	site := newSiteServer(t, liveBody)
	cfg := config.Default()
	cfg.Scraper.WarmupDelay = 0
	cfg.Site.HomeURL = "http://127.0.0.1:1/"
	client, err := NewClient(cfg.Scraper, cfg.Site, discardLogger())
	require.NoError(t, err)

	res, err := client.Scrape(context.Background(), site.URL+"/room/1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Payload)
	require.Empty(t, res.TTWID)
}

func TestHarvestTTWID(t *testing.T) {
	site := newSiteServer(t, liveBody)
	client := newTestClient(t, site.URL)

	tw, err := client.HarvestTTWID(context.Background(), site.URL+"/room/1?ttwid=1")
	require.NoError(t, err)
	require.Equal(t, "room-ttwid", tw)

	tw, err = client.HarvestTTWID(context.Background(), site.URL+"/room/1")
	require.NoError(t, err)
	require.Empty(t, tw)
}

func TestNewClient_RejectsBadProxy(t *testing.T) {
	cfg := config.Default()
	cfg.Scraper.Proxy = "socks5://127.0.0.1:1080"
	_, err := NewClient(cfg.Scraper, cfg.Site, discardLogger())
	require.Error(t, err)
}

func TestResultRoom(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"json object", `{"id_str":"7"}`, `{"id_str":"7"}`},
		{"broken fragment", `{"id_str":"7"`, `"{\"id_str\":\"7\""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &Result{Payload: tt.payload, SessionID: "s", TTWID: "tw", Title: "t", Ended: true}
			room := res.Room()
			require.JSONEq(t, tt.want, string(room.Payload))
			require.Equal(t, &models.Room{Payload: room.Payload, SessionID: "s", TTWID: "tw", Title: "t", Ended: true}, room)
		})
	}
}
