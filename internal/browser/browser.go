// Package browser defines the headless browser primitives the webmail
// automation is written against, and a chromedp implementation of them.
package browser

import (
	"context"
	"errors"
	"time"
)

// Browser errors
var (
	ErrElementNotFound = errors.New("element not found")
	ErrFrameNotFound   = errors.New("frame has no document")
	ErrNetworkBusy     = errors.New("network did not become idle")
)

// Launcher starts a browser instance
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is one running browser instance
type Browser interface {
	// NewPage opens a new tab
	NewPage(ctx context.Context) (Page, error)
	// Close shuts the browser down. It must be safe to call once after
	// any failure, including a failed NewPage.
	Close() error
}

// Page is one browser tab
type Page interface {
	// Navigate loads url and waits for the load event
	Navigate(ctx context.Context, url string) error
	// WaitNetworkIdle waits until no request has been in flight for idle
	WaitNetworkIdle(ctx context.Context, idle time.Duration) error
	// Exists reports whether selector currently matches an element, without waiting
	Exists(ctx context.Context, selector string) (bool, error)
	// WaitVisible waits up to timeout for selector to match a visible element
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Type sends text as key events to the element matching selector
	Type(ctx context.Context, selector, text string) error
	// Click invokes the element's click() from page script
	Click(ctx context.Context, selector string) error
	// URL returns the current location
	URL(ctx context.Context) (string, error)
	// Frame returns the document of the iframe matching selector
	Frame(ctx context.Context, selector string) (Frame, error)
}

// Frame is a nested document inside a page
type Frame interface {
	// Type sends text as key events to the element matching selector inside the frame
	Type(ctx context.Context, selector, text string) error
}
