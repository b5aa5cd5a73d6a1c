// Package browsertest provides a scriptable in-memory browser for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hostedid/sendout/internal/browser"
)

// ErrTimeout is returned by WaitVisible when the selector never shows up
var ErrTimeout = errors.New("browsertest: wait timed out")

// Launcher hands out a single Browser and counts launches
type Launcher struct {
	mu       sync.Mutex
	Browser  *Browser
	Err      error
	launches int
}

// NewLauncher returns a Launcher whose browser opens page
func NewLauncher(page *Page) *Launcher {
	return &Launcher{Browser: &Browser{Page: page}}
}

func (l *Launcher) Launch(ctx context.Context) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Browser, nil
}

// Launches returns how many times Launch was called
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Browser is a fake browser.Browser
type Browser struct {
	mu         sync.Mutex
	Page       *Page
	NewPageErr error
	pages      int
	closes     int
}

func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	b.pages++
	return b.Page, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

// Closes returns how many times Close was called
func (b *Browser) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// Call is one recorded page operation
type Call struct {
	Op       string
	Selector string
	Text     string
}

// Page is a fake browser.Page backed by a set of present selectors.
// Every selector is present unless removed.
type Page struct {
	mu sync.Mutex

	url      string
	removed  map[string]bool
	limits   map[string]int
	hits     map[string]int
	redirect map[string][]string
	frames   map[string]*Frame
	calls    []Call
}

// NewPage returns a Page where every selector is present
func NewPage() *Page {
	return &Page{
		url:      "about:blank",
		removed:  make(map[string]bool),
		limits:   make(map[string]int),
		hits:     make(map[string]int),
		redirect: make(map[string][]string),
		frames:   make(map[string]*Frame),
	}
}

// Remove makes selector absent
func (p *Page) Remove(selector string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed[selector] = true
	return p
}

// RemoveAfter keeps selector present for its first n lookups only
func (p *Page) RemoveAfter(selector string, n int) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limits[selector] = n
	return p
}

// OnClick makes each URL read after a click on selector return the next
// url in urls; the last one sticks.
func (p *Page) OnClick(selector string, urls ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirect[selector] = urls
	return p
}

// SetFrame installs the document returned for the iframe selector
func (p *Page) SetFrame(selector string, f *Frame) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[selector] = f
	return p
}

// Calls returns a copy of the recorded operations
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Count returns how many recorded operations match op and selector.
// An empty selector matches any.
func (p *Page) Count(op, selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Op == op && (selector == "" || c.Selector == selector) {
			n++
		}
	}
	return n
}

// Typed returns the texts typed into selector, in order
func (p *Page) Typed(selector string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.calls {
		if c.Op == "type" && c.Selector == selector {
			out = append(out, c.Text)
		}
	}
	return out
}

func (p *Page) record(c Call) {
	p.calls = append(p.calls, c)
}

// lookup reports whether selector is present and counts the hit.
// Callers hold p.mu.
func (p *Page) lookup(selector string) bool {
	if p.removed[selector] {
		return false
	}
	if limit, ok := p.limits[selector]; ok && p.hits[selector] >= limit {
		return false
	}
	p.hits[selector]++
	return true
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "navigate", Text: url})
	p.url = url
	return ctx.Err()
}

func (p *Page) WaitNetworkIdle(ctx context.Context, idle time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "idle", Text: idle.String()})
	return ctx.Err()
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "exists", Selector: selector})
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.lookup(selector), nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "wait", Selector: selector, Text: timeout.String()})
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.lookup(selector) {
		return ErrTimeout
	}
	return nil
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "type", Selector: selector, Text: text})
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.removed[selector] {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "click", Selector: selector})
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.lookup(selector) {
		return fmt.Errorf("TypeError: Cannot read properties of null (reading 'click') for %s", selector)
	}
	if urls := p.redirect[selector]; len(urls) > 0 {
		p.url = urls[0]
		if len(urls) > 1 {
			p.redirect[selector] = urls[1:]
		}
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "url", Text: p.url})
	return p.url, ctx.Err()
}

func (p *Page) Frame(ctx context.Context, selector string) (browser.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(Call{Op: "frame", Selector: selector})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.lookup(selector) {
		return nil, browser.ErrElementNotFound
	}
	f, ok := p.frames[selector]
	if !ok {
		f = NewFrame()
		p.frames[selector] = f
	}
	return f, nil
}

// Frame is a fake browser.Frame
type Frame struct {
	mu      sync.Mutex
	removed map[string]bool
	typed   []Call
}

// NewFrame returns a Frame where every selector is present
func NewFrame() *Frame {
	return &Frame{removed: make(map[string]bool)}
}

// Remove makes selector absent inside the frame
func (f *Frame) Remove(selector string) *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[selector] = true
	return f
}

// Typed returns the texts typed into selector inside the frame
func (f *Frame) Typed(selector string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.typed {
		if c.Selector == selector {
			out = append(out, c.Text)
		}
	}
	return out
}

func (f *Frame) Type(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.removed[selector] {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	f.typed = append(f.typed, Call{Op: "type", Selector: selector, Text: text})
	return nil
}
