// Package interactivetest provides a scripted interactive.Provider for tests.
package interactivetest

import (
	"context"
	"sync"

	"github.com/use-agent/livebox/interactive"
)

// Script returns what the n-th poll (starting at 1) of a surface showing url
// observes.
type Script func(n int, url string) (interactive.Signal, error)

// Never is a Script for a user who never completes anything.
func Never(int, string) (interactive.Signal, error) {
	return interactive.Signal{}, nil
}

// LoginAfter reports a signed-in cookie header from the n-th poll on.
func LoginAfter(n int, header string) Script {
	return func(i int, _ string) (interactive.Signal, error) {
		if i >= n {
			return interactive.Signal{Cookies: header}, nil
		}
		return interactive.Signal{Cookies: "ttwid=anon"}, nil
	}
}

// PayloadAfter reports payload from the n-th poll on.
func PayloadAfter(n int, payload string) Script {
	return func(i int, _ string) (interactive.Signal, error) {
		if i >= n {
			return interactive.Signal{Payload: []byte(payload)}, nil
		}
		return interactive.Signal{}, nil
	}
}

// ClosedAfter reports that the user closed the window at the n-th poll.
func ClosedAfter(n int) Script {
	return func(i int, _ string) (interactive.Signal, error) {
		if i >= n {
			return interactive.Signal{}, interactive.ErrSurfaceClosed
		}
		return interactive.Signal{}, nil
	}
}

// Provider opens scripted surfaces and records what happens to them.
type Provider struct {
	script  Script
	openErr error
	hang    bool

	mu          sync.Mutex
	opens       int
	closes      int
	navigations []string
}

// NewProvider returns a Provider whose surfaces follow script.
func NewProvider(script Script) *Provider {
	return &Provider{script: script}
}

// FailOpen makes every Open fail with err.
func (p *Provider) FailOpen(err error) *Provider {
	p.openErr = err
	return p
}

func (p *Provider) Open(ctx context.Context, url string) (interactive.Surface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.opens++
	return &surface{p: p, url: url}, nil
}

// HangPolls makes every poll block until its context ends, like a page
// stuck behind a modal dialog.
func (p *Provider) HangPolls() *Provider {
	p.hang = true
	return p
}

// Opens returns how many surfaces were opened.
func (p *Provider) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

// Closes returns how many times Close was called across all surfaces.
func (p *Provider) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// Navigations returns the URLs surfaces were re-targeted to, in order.
func (p *Provider) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

type surface struct {
	p     *Provider
	url   string
	polls int
}

func (s *surface) Navigate(_ context.Context, url string) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.url = url
	s.p.navigations = append(s.p.navigations, url)
	return nil
}

func (s *surface) Poll(ctx context.Context) (interactive.Signal, error) {
	if s.p.hang {
		<-ctx.Done()
		return interactive.Signal{}, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return interactive.Signal{}, err
	}
	s.p.mu.Lock()
	s.polls++
	n, url := s.polls, s.url
	s.p.mu.Unlock()
	return s.p.script(n, url)
}

func (s *surface) Close() error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.closes++
	return nil
}
