package page

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a bounded wait elapses
	ErrTimeout = errors.New("timeout")
	// ErrElementNotFound is returned when a selector matches nothing
	ErrElementNotFound = errors.New("element not found")
)

// Page is the browser capability the scraper drives.
// Every call may suspend until the browser answers or a timeout elapses,
// so callers must not assume DOM state survives across calls.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, text string) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// IsEnabled reports whether the first match is enabled; ErrElementNotFound if absent
	IsEnabled(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, script string) error
}

// Session is a Page that owns a browser and must be closed
type Session interface {
	Page
	Close() error
}

// HTMLSource is implemented by pages that can dump their current document
type HTMLSource interface {
	HTML(ctx context.Context) (string, error)
}

// Element is a handle on one DOM node
type Element interface {
	Text() (string, error)
	Parent() (Element, error)
	Elements(selector string) ([]Element, error)
}
