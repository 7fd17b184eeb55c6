// Package browser owns the single shared lookup page.
//
// Exactly one Session exists per run and it is passed explicitly to whoever
// needs to drive the page. Nothing in the package is safe for concurrent
// use: the page is a single-writer resource.
package browser

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a session that is not running.
var ErrClosed = errors.New("browser: session closed")

// Session is a handle on the lookup page.
type Session interface {
	// Initialized reports whether the page is loaded and set to the target record type.
	Initialized() bool
	// Init loads the lookup page and selects the target record type.
	Init(ctx context.Context) error
	// Invalidate marks the page as needing Init before the next query.
	Invalidate()
	// Submit replaces the query input with domain and starts the lookup.
	Submit(ctx context.Context, domain string) error
	// Content returns the current rendered markup.
	Content(ctx context.Context) (string, error)
	// Reset closes the browser context and opens a new one with a fresh
	// identity. The page must be initialized again afterwards.
	Reset(ctx context.Context) error
	// Close releases the browser.
	Close() error
}
