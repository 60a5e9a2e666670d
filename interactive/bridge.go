// Package interactive coordinates credential recovery through an external,
// user-driven browser surface.
//
// The Bridge owns at most one surface per logical name. Callers block while
// the surface is polled for a signed-in cookie header or an extracted room
// payload; the surface is closed exactly once when its last waiter returns.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Logical surface names.
const (
	SurfaceLogin   = "login"
	SurfaceExtract = "extract"
)

var (
	// ErrTimedOut is returned when the wait budget elapses without data.
	ErrTimedOut = errors.New("interactive: timed out")

	// ErrCancelled is returned when the user closed the surface or the
	// caller's context ended.
	ErrCancelled = errors.New("interactive: cancelled")

	// ErrValidationFailed is returned when the wait budget elapses and only
	// data rejected by the validator was reported.
	ErrValidationFailed = errors.New("interactive: reported data never passed validation")

	// ErrSurfaceClosed is returned by Surface.Poll once the user has closed it.
	ErrSurfaceClosed = errors.New("interactive: surface closed")
)

// SurfaceError reports an explicit failure signalled by a surface, or a
// provider that could not open one.
type SurfaceError struct {
	Surface string
	Message string
	Err     error
}

func (e *SurfaceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interactive: %s surface: %s: %v", e.Surface, e.Message, e.Err)
	}
	return fmt.Sprintf("interactive: %s surface: %s", e.Surface, e.Message)
}

func (e *SurfaceError) Unwrap() error { return e.Err }

// Signal is one poll of a surface. Empty fields mean "nothing yet".
type Signal struct {
	// Cookies is the raw "name=value; ..." header visible to the page.
	Cookies string

	// Payload is an extraction JSON document reported by the page.
	Payload []byte

	// Error is an explicit failure reported by the page.
	Error string
}

// Surface is an open interactive browser window.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	Poll(ctx context.Context) (Signal, error)
	Close() error
}

// Provider opens surfaces.
type Provider interface {
	Open(ctx context.Context, url string) (Surface, error)
}

type slot struct {
	name  string
	url   string
	refs  int
	ready chan struct{}

	surface Surface
	openErr error

	closeOnce sync.Once
}

func (s *slot) close(logger *slog.Logger) {
	s.closeOnce.Do(func() {
		if s.surface == nil {
			return
		}
		if err := s.surface.Close(); err != nil {
			logger.Debug("surface close failed", "surface", s.name, "error", err)
		}
	})
}

// Bridge serves interactive login and extraction requests. It is safe for
// concurrent use.
type Bridge struct {
	provider Provider
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	slots map[string]*slot
}

// NewBridge creates a Bridge polling surfaces every interval.
func NewBridge(provider Provider, interval time.Duration, logger *slog.Logger) *Bridge {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		provider: provider,
		interval: interval,
		logger:   logger.With("component", "interactive"),
		slots:    make(map[string]*slot),
	}
}

// Pending reports whether any surface is currently open or opening.
func (b *Bridge) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots) > 0
}

// PendingSurfaces returns the names of open surfaces, sorted.
func (b *Bridge) PendingSurfaces() []string {
	b.mu.Lock()
	names := make([]string, 0, len(b.slots))
	for name := range b.slots {
		names = append(names, name)
	}
	b.mu.Unlock()
	slices.Sort(names)
	return names
}

// RequestLogin shows loginURL and waits until the surface reports a cookie
// header carrying a login cookie. A request made while a login surface is
// already open shares that surface.
func (b *Bridge) RequestLogin(ctx context.Context, loginURL string, timeout time.Duration) (string, error) {
	s, err := b.acquire(ctx, SurfaceLogin, loginURL)
	if err != nil {
		return "", err
	}
	defer b.release(s)

	b.logger.Info("waiting for interactive login", "url", loginURL, "timeout", timeout)

	var header string
	err = b.wait(ctx, s, timeout, func(sig Signal) bool {
		if HasLoginCookie(sig.Cookies) {
			header = sig.Cookies
			return true
		}
		return false
	})
	if err != nil {
		return "", err
	}
	b.logger.Info("interactive login completed")
	return header, nil
}

// RequestExtraction shows targetURL and waits for an extraction payload that
// passes validate (DefaultValidator when nil). Invalid payloads do not end
// the wait.
func (b *Bridge) RequestExtraction(ctx context.Context, targetURL string, validate Validator, timeout time.Duration) (*Extraction, error) {
	if validate == nil {
		validate = DefaultValidator
	}
	s, err := b.acquire(ctx, SurfaceExtract, targetURL)
	if err != nil {
		return nil, err
	}
	defer b.release(s)

	var (
		got        *Extraction
		sawInvalid bool
	)
	err = b.wait(ctx, s, timeout, func(sig Signal) bool {
		if len(sig.Payload) == 0 {
			return false
		}
		ex, perr := ParseExtraction(sig.Payload)
		if perr != nil || !validate(ex) {
			sawInvalid = true
			return false
		}
		got = ex
		return true
	})
	if errors.Is(err, ErrTimedOut) && sawInvalid {
		return nil, ErrValidationFailed
	}
	if err != nil {
		return nil, err
	}
	return got, nil
}

// acquire looks up the named slot or creates it by opening a surface at url.
// An existing slot is re-targeted when url differs from what it shows.
func (b *Bridge) acquire(ctx context.Context, name, url string) (*slot, error) {
	b.mu.Lock()
	if s, ok := b.slots[name]; ok {
		s.refs++
		b.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			b.release(s)
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		if s.openErr != nil {
			b.release(s)
			return nil, &SurfaceError{Surface: name, Message: "open failed", Err: s.openErr}
		}

		b.mu.Lock()
		retarget := s.url != url
		s.url = url
		b.mu.Unlock()
		if retarget {
			b.logger.Info("re-targeting open surface", "surface", name, "url", url)
			if err := s.surface.Navigate(ctx, url); err != nil {
				b.logger.Warn("surface navigation failed", "surface", name, "error", err)
			}
		}
		return s, nil
	}

	s := &slot{name: name, url: url, refs: 1, ready: make(chan struct{})}
	b.slots[name] = s
	b.mu.Unlock()

	s.surface, s.openErr = b.provider.Open(ctx, url)
	close(s.ready)
	if s.openErr != nil {
		b.release(s)
		return nil, &SurfaceError{Surface: name, Message: "open failed", Err: s.openErr}
	}
	b.logger.Info("surface opened", "surface", name, "url", url)
	return s, nil
}

// release drops one reference and closes the surface with the last one.
func (b *Bridge) release(s *slot) {
	b.mu.Lock()
	s.refs--
	last := s.refs == 0
	if last {
		b.forget(s)
	}
	b.mu.Unlock()
	if last {
		s.close(b.logger)
	}
}

// forget unregisters s so the next request opens a fresh surface.
// Caller holds b.mu.
func (b *Bridge) forget(s *slot) {
	if b.slots[s.name] == s {
		delete(b.slots, s.name)
	}
}

// wait polls s until accept returns true, the timeout elapses, the caller's
// context ends or the surface fails. Each poll runs under the wait deadline,
// so a poll that hangs cannot outlive the timeout.
func (b *Bridge) wait(ctx context.Context, s *slot, timeout time.Duration, accept func(Signal) bool) error {
	wctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		sig, perr := s.surface.Poll(wctx)
		switch {
		case errors.Is(perr, ErrSurfaceClosed):
			b.mu.Lock()
			b.forget(s)
			b.mu.Unlock()
			b.logger.Info("surface closed by user", "surface", s.name)
			return ErrCancelled
		case perr != nil:
			if wctx.Err() == nil {
				b.logger.Debug("surface poll failed", "surface", s.name, "error", perr)
			}
		case sig.Error != "":
			return &SurfaceError{Surface: s.name, Message: sig.Error}
		case accept(sig):
			return nil
		}

		select {
		case <-wctx.Done():
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			b.logger.Info("interactive wait timed out", "surface", s.name, "timeout", timeout)
			return ErrTimedOut
		case <-ticker.C:
		}
	}
}
