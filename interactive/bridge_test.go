package interactive_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/use-agent/livebox/interactive"
	"github.com/use-agent/livebox/interactive/interactivetest"
)

const (
	loginURL  = "https://www.douyin.com/"
	roomURL   = "https://live.douyin.com/123"
	signedIn  = "ttwid=t; sessionid=abc; odin_tt=o"
	validRoom = `{"title":"room","user_unique_id":"7300","ttwid":"tw","room_store":"{\"id_str\":\"123\"}"}`
)

func newBridge(p interactive.Provider) *interactive.Bridge {
	return interactive.NewBridge(p, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRequestLogin_Success(t *testing.T) {
	p := interactivetest.NewProvider(interactivetest.LoginAfter(3, signedIn))
	b := newBridge(p)

	header, err := b.RequestLogin(context.Background(), loginURL, time.Second)
	require.NoError(t, err)
	require.Equal(t, signedIn, header)
	require.Equal(t, 1, p.Opens())
	require.Equal(t, 1, p.Closes())
	require.False(t, b.Pending())
	require.Empty(t, b.PendingSurfaces())
}

func TestRequestLogin_TimedOut(t *testing.T) {
	p := interactivetest.NewProvider(interactivetest.Never)
	b := newBridge(p)

	start := time.Now()
	_, err := b.RequestLogin(context.Background(), loginURL, 50*time.Millisecond)
	require.ErrorIs(t, err, interactive.ErrTimedOut)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 1, p.Closes(), "surface closed exactly once")
	require.False(t, b.Pending())
}

func TestRequestLogin_UserClosedSurface(t *testing.T) {
	p := interactivetest.NewProvider(interactivetest.ClosedAfter(2))
	b := newBridge(p)

	_, err := b.RequestLogin(context.Background(), loginURL, time.Second)
	require.ErrorIs(t, err, interactive.ErrCancelled)
	require.Equal(t, 1, p.Closes())
	require.False(t, b.Pending())
}

func TestRequestLogin_ContextCancelled(t *testing.T) {
	p := interactivetest.NewProvider(interactivetest.Never)
	b := newBridge(p)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := b.RequestLogin(ctx, loginURL, time.Minute)
	require.ErrorIs(t, err, interactive.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, p.Closes())
}

func TestRequestLogin_HungPoll(t *testing.T) {
	t.Run("timeout ends the wait", func(t *testing.T) {
		p := interactivetest.NewProvider(interactivetest.Never).HangPolls()
		b := newBridge(p)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		start := time.Now()
		_, err := b.RequestLogin(ctx, loginURL, 50*time.Millisecond)
		require.ErrorIs(t, err, interactive.ErrTimedOut)
		require.Less(t, time.Since(start), time.Second)
		require.Equal(t, 1, p.Closes())
		require.False(t, b.Pending())
	})

	t.Run("caller deadline is a cancellation", func(t *testing.T) {
		p := interactivetest.NewProvider(interactivetest.Never).HangPolls()
		b := newBridge(p)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := b.RequestLogin(ctx, loginURL, time.Minute)
		require.ErrorIs(t, err, interactive.ErrCancelled)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("extraction", func(t *testing.T) {
		p := interactivetest.NewProvider(interactivetest.Never).HangPolls()
		b := newBridge(p)

		start := time.Now()
		_, err := b.RequestExtraction(context.Background(), roomURL, nil, 50*time.Millisecond)
		require.ErrorIs(t, err, interactive.ErrTimedOut)
		require.Less(t, time.Since(start), time.Second)
	})
}

func TestRequestLogin_SurfaceError(t *testing.T) {
	p := interactivetest.NewProvider(func(int, string) (interactive.Signal, error) {
		return interactive.Signal{Error: "window crashed"}, nil
	})
	b := newBridge(p)

	_, err := b.RequestLogin(context.Background(), loginURL, time.Second)
	var se *interactive.SurfaceError
	require.True(t, errors.As(err, &se), "got %v", err)
	require.Equal(t, interactive.SurfaceLogin, se.Surface)
	require.Equal(t, "window crashed", se.Message)
	require.Equal(t, 1, p.Closes())
}

func TestRequestLogin_OpenFailure(t *testing.T) {
	boom := errors.New("no browser")
	p := interactivetest.NewProvider(interactivetest.Never).FailOpen(boom)
	b := newBridge(p)

	_, err := b.RequestLogin(context.Background(), loginURL, time.Second)
	var se *interactive.SurfaceError
	require.True(t, errors.As(err, &se))
	require.ErrorIs(t, err, boom)
	require.False(t, b.Pending())
	require.Equal(t, 0, p.Closes())
}

func TestRequestLogin_SecondRequestRetargetsSurface(t *testing.T) {
	const otherURL = "https://www.douyin.com/login"
	// The user only finishes once the surface shows otherURL.
	p := interactivetest.NewProvider(func(_ int, url string) (interactive.Signal, error) {
		if url == otherURL {
			return interactive.Signal{Cookies: signedIn}, nil
		}
		return interactive.Signal{}, nil
	})
	b := newBridge(p)

	var (
		wg      sync.WaitGroup
		results [2]string
		errs    [2]error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = b.RequestLogin(context.Background(), loginURL, time.Second)
	}()
	require.Eventually(t, b.Pending, time.Second, time.Millisecond)
	require.Equal(t, []string{interactive.SurfaceLogin}, b.PendingSurfaces())

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = b.RequestLogin(context.Background(), otherURL, time.Second)
	}()
	wg.Wait()

	for i := range 2 {
		require.NoError(t, errs[i])
		require.Equal(t, signedIn, results[i])
	}
	require.Equal(t, 1, p.Opens(), "second request shares the open surface")
	require.Equal(t, []string{otherURL}, p.Navigations())
	require.Equal(t, 1, p.Closes())
	require.False(t, b.Pending())
}

func TestRequestExtraction(t *testing.T) {
	invalid := `{"title":"","user_unique_id":"","room_store":""}`

	t.Run("waits past invalid data", func(t *testing.T) {
		p := interactivetest.NewProvider(func(n int, _ string) (interactive.Signal, error) {
			if n < 3 {
				return interactive.Signal{Payload: []byte(invalid)}, nil
			}
			return interactive.Signal{Payload: []byte(validRoom)}, nil
		})
		b := newBridge(p)

		ex, err := b.RequestExtraction(context.Background(), roomURL, nil, time.Second)
		require.NoError(t, err)
		require.Equal(t, "room", ex.Title)
		require.Equal(t, "7300", ex.UniqueID)
		require.Equal(t, "tw", ex.TTWID)
		require.Equal(t, `{"id_str":"123"}`, ex.RoomStore)
		require.Equal(t, 1, p.Closes())
	})

	t.Run("only invalid data before deadline", func(t *testing.T) {
		p := interactivetest.NewProvider(interactivetest.PayloadAfter(1, invalid))
		b := newBridge(p)

		_, err := b.RequestExtraction(context.Background(), roomURL, nil, 40*time.Millisecond)
		require.ErrorIs(t, err, interactive.ErrValidationFailed)
		require.Equal(t, 1, p.Closes())
	})

	t.Run("nothing before deadline", func(t *testing.T) {
		p := interactivetest.NewProvider(interactivetest.Never)
		b := newBridge(p)

		_, err := b.RequestExtraction(context.Background(), roomURL, nil, 40*time.Millisecond)
		require.ErrorIs(t, err, interactive.ErrTimedOut)
	})

	t.Run("custom validator", func(t *testing.T) {
		p := interactivetest.NewProvider(interactivetest.PayloadAfter(1, invalid))
		b := newBridge(p)

		accept := func(*interactive.Extraction) bool { return true }
		ex, err := b.RequestExtraction(context.Background(), roomURL, accept, time.Second)
		require.NoError(t, err)
		require.Empty(t, ex.Title)
	})

	t.Run("login and extract surfaces are independent", func(t *testing.T) {
		p := interactivetest.NewProvider(func(_ int, url string) (interactive.Signal, error) {
			if strings.HasPrefix(url, "https://live.") {
				return interactive.Signal{Payload: []byte(validRoom)}, nil
			}
			return interactive.Signal{Cookies: signedIn}, nil
		})
		b := newBridge(p)

		_, err := b.RequestLogin(context.Background(), loginURL, time.Second)
		require.NoError(t, err)
		_, err = b.RequestExtraction(context.Background(), roomURL, nil, time.Second)
		require.NoError(t, err)
		require.Equal(t, 2, p.Opens())
		require.Equal(t, 2, p.Closes())
	})
}
