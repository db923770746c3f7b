// Package runtime drives headless browser sessions that turn a chart query
// into an image artifact.
//
// One Engine is launched per process and shared; every render opens its own
// isolated Session and closes it before returning.
package runtime

import (
	"context"

	"github.com/justapithecus/chartd/types"
)

// Engine is a long-lived browser capable of spawning isolated sessions.
type Engine interface {
	// NewSession opens an isolated browsing context with a single page.
	NewSession(ctx context.Context) (Session, error)
	// Close releases the browser. Sessions must be closed first.
	Close() error
}

// Session is one isolated page. It shares no cookies or storage with
// other sessions of the same Engine.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until selector is present. If errorSelector matches
	// first, WaitReady returns a *ClientError carrying the element text.
	WaitReady(ctx context.Context, selector, errorSelector string) error
	// Screenshot captures the element matched by selector.
	Screenshot(ctx context.Context, selector string, format types.ImageFormat, quality int) ([]byte, error)
	Close() error
}

// ClientError is reported when the chart UI renders its error marker
// instead of the chart.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	if e.Message == "" {
		return "chart UI reported an error"
	}
	return "chart UI reported an error: " + e.Message
}
