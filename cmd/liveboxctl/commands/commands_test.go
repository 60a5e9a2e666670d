package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/livebox/models"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCredentialsCommands(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cookies.json")
	flags := []string{"--cookie-file", file, "--interactive=false", "--log-level", "error"}
	run := func(stdin string, args ...string) (string, error) {
		return execute(t, stdin, append(args, flags...)...)
	}

	out, err := run("", "credentials", "path")
	require.NoError(t, err)
	require.Equal(t, file+"\n", out)

	_, err = run("", "credentials", "load")
	require.True(t, models.IsCode(err, models.ErrCodeCredentialsNotFound), "got %v", err)

	out, err = run("", "credentials", "save", "sessionid=abc; ttwid=t")
	require.NoError(t, err)
	require.Contains(t, out, "saved 2 cookies")

	out, err = run("", "credentials", "load")
	require.NoError(t, err)
	require.Equal(t, "sessionid=abc; ttwid=t\n", out)

	out, err = run("odin_tt=o\n", "credentials", "save")
	require.NoError(t, err)
	require.Contains(t, out, "saved 1 cookies")

	_, err = run("", "credentials", "save", "no pairs here")
	require.True(t, models.IsCode(err, models.ErrCodeInvalidInput), "got %v", err)

	out, err = run("", "credentials", "clear")
	require.NoError(t, err)
	require.Equal(t, "cleared\n", out)

	out, err = run("", "credentials", "clear")
	require.NoError(t, err)
	require.Equal(t, "nothing to clear\n", out)
}

func TestLoginWithoutInteractive(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cookies.json")
	_, err := execute(t, "", "login", "--cookie-file", file, "--interactive=false", "--log-level", "error")
	require.True(t, models.IsCode(err, models.ErrCodeInteractiveFailed), "got %v", err)
}

func TestScrapeArgs(t *testing.T) {
	_, err := execute(t, "", "scrape")
	require.Error(t, err)

	_, err = execute(t, "", "scrape", "https://live.example.com/1", "--rendered", "--auto")
	require.Error(t, err)
}

func TestScrapeInvalidURL(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cookies.json")
	_, err := execute(t, "", "scrape", "ftp://live.example.com/1", "--cookie-file", file, "--interactive=false", "--log-level", "error")
	require.True(t, models.IsCode(err, models.ErrCodeInvalidInput), "got %v", err)
}

const roomPage = `<html><head><title>Room</title></head><body>` +
	`<script>self.__pace_f.push([1,"{\"state\":{\"roomStore\":{\"roomInfo\":{\"room\":{\"id_str\":\"7\",\"status\":2,\"toolbar_data\":{}},\"web_rid\":\"1\"}},\"userStore\":{\"odin\":{\"user_unique_id\":\"7300000000000000001\"}}}}"])</script>` +
	`</body></html>`

func TestMonitor(t *testing.T) {
	type handshake struct {
		roomID, uniqueID, cookie string
	}
	handshakes := make(chan handshake, 1)
	upgrader := websocket.Upgrader{}
	push := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		handshakes <- handshake{q.Get("room_id"), q.Get("user_unique_id"), r.Header.Get("Cookie")}
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "ended"))
		conn.Close()
	}))
	defer push.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "ttwid", Value: "tw", Path: "/"})
		io.WriteString(w, "home")
	})
	mux.HandleFunc("/room/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, roomPage)
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	t.Setenv("LIVEBOX_CONFIG", "")
	t.Setenv("LIVEBOX_HOME_URL", site.URL+"/")
	t.Setenv("LIVEBOX_WARMUP_DELAY", "0s")
	t.Setenv("LIVEBOX_WEBHOOK_URL", "")
	t.Setenv("LIVEBOX_MONITOR_PUSH_URL", "ws"+strings.TrimPrefix(push.URL, "http")+"/webcast/im/push/v2/")

	file := filepath.Join(t.TempDir(), "cookies.json")
	_, err := execute(t, "", "monitor", site.URL+"/room/1", "--cookie-file", file, "--interactive=false", "--log-level", "error")
	require.NoError(t, err)

	got := <-handshakes
	require.Equal(t, handshake{"7", "7300000000000000001", "ttwid=tw"}, got)
}

func TestMonitorArgs(t *testing.T) {
	_, err := execute(t, "", "monitor")
	require.Error(t, err)
}
