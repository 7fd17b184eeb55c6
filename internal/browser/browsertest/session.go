// Package browsertest provides a scriptable in-memory browser.Session.
package browsertest

import (
	"context"
	"sync"

	"github.com/FranksOps/v6scout/internal/browser"
)

// Session is a fake browser.Session. Hooks are optional; without them every
// operation succeeds and Content returns an empty page.
type Session struct {
	mu sync.Mutex

	// OnInit runs on every Init with the 1-based call number.
	OnInit func(n int) error
	// OnSubmit runs on every Submit.
	OnSubmit func(domain string) error
	// OnContent renders the page. domain is the last submitted domain, or
	// "" before the first submit since the last Init.
	OnContent func(domain string) (string, error)
	// OnReset runs on every Reset with the 1-based call number.
	OnReset func(n int) error

	inits       int
	resets      int
	closes      int
	submits     []string
	initialized bool
	current     string
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Session) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.inits++
	n, hook := s.inits, s.OnInit
	s.initialized = false
	s.current = ""
	s.mu.Unlock()

	if hook != nil {
		if err := hook(n); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
}

func (s *Session) Submit(ctx context.Context, domain string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.submits = append(s.submits, domain)
	hook := s.OnSubmit
	s.mu.Unlock()

	if hook != nil {
		if err := hook(domain); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.current = domain
	s.mu.Unlock()
	return nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	domain, hook := s.current, s.OnContent
	s.mu.Unlock()

	if hook == nil {
		return "<html><body></body></html>", nil
	}
	return hook(domain)
}

func (s *Session) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.resets++
	n, hook := s.resets, s.OnReset
	s.initialized = false
	s.current = ""
	s.mu.Unlock()

	if hook != nil {
		return hook(n)
	}
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.initialized = false
	return nil
}

// Inits returns how many times Init was called.
func (s *Session) Inits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

// Resets returns how many times Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Submits returns every submitted domain in order.
func (s *Session) Submits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.submits...)
}
