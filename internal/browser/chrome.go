package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/hostedid/sendout/internal/config"
	"github.com/hostedid/sendout/internal/logger"
)

const idlePollInterval = 50 * time.Millisecond

// ChromeLauncher launches Chrome through chromedp
type ChromeLauncher struct {
	cfg    config.BrowserConfig
	timing config.TimingConfig
	log    *logger.Logger
}

// NewChromeLauncher creates a new ChromeLauncher.
// timing.NetworkIdleTimeout bounds every WaitNetworkIdle call and
// timing.ElementTimeout every Type call on pages it opens.
func NewChromeLauncher(cfg config.BrowserConfig, timing config.TimingConfig, log *logger.Logger) *ChromeLauncher {
	return &ChromeLauncher{
		cfg:    cfg,
		timing: timing,
		log:    log.WithComponent("browser"),
	}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	return opts
}

// Launch starts a browser, or attaches to the remote one when RemoteURL is set
func (l *ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	// The browser lives until Close, not until ctx is done.
	base := context.WithoutCancel(ctx)

	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if l.cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(base, l.cfg.RemoteURL)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(base, l.allocatorOptions()...)
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			l.log.Debug().Msgf(format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			l.log.Warn().Msgf(format, args...)
		}),
	)

	// The first Run allocates the browser; it must not carry a deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	l.log.Info().
		Bool("headless", l.cfg.Headless).
		Bool("remote", l.cfg.RemoteURL != "").
		Msg("browser started")

	return &chromeBrowser{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		timing:        l.timing,
		log:           l.log,
	}, nil
}

type chromeBrowser struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	timing        config.TimingConfig
	log           *logger.Logger

	mu    sync.Mutex
	pages []context.CancelFunc

	once     sync.Once
	closeErr error
}

func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)

	p := &chromePage{
		ctx:            tabCtx,
		idle:           newIdleTracker(time.Now),
		idleTimeout:    b.timing.NetworkIdleTimeout,
		elementTimeout: b.timing.ElementTimeout,
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	// Creating the target happens on the first Run against tabCtx.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cancel()
		return nil, err
	}

	b.mu.Lock()
	b.pages = append(b.pages, cancel)
	b.mu.Unlock()
	return p, nil
}

func (b *chromeBrowser) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		for _, cancel := range b.pages {
			cancel()
		}
		b.pages = nil
		b.mu.Unlock()

		b.closeErr = chromedp.Cancel(b.ctx)
		b.cancelBrowser()
		b.cancelAlloc()
		b.log.Info().Msg("browser closed")
	})
	return b.closeErr
}

type chromePage struct {
	ctx            context.Context
	idle           *idleTracker
	idleTimeout    time.Duration
	elementTimeout time.Duration
}

func (p *chromePage) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.idle.started(string(e.RequestID))
	case *network.EventLoadingFinished:
		p.idle.finished(string(e.RequestID))
	case *network.EventLoadingFailed:
		p.idle.finished(string(e.RequestID))
	}
}

// run executes actions on the tab, honoring cancellation of ctx
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) WaitNetworkIdle(ctx context.Context, idle time.Duration) error {
	if p.idleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.idleTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		if p.idle.idleFor() >= idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNetworkBusy, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
	if err := p.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return found, nil
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	return p.typeInto(ctx, nil, selector, text)
}

// typeInto sends text to the element matching selector, searched under root
// when root is set. A missing element fails at once, one that never becomes
// visible fails after elementTimeout.
func (p *chromePage) typeInto(ctx context.Context, root *cdp.Node, selector, text string) error {
	opts := []chromedp.QueryOption{chromedp.ByQuery}
	if root != nil {
		opts = append(opts, chromedp.FromNode(root))
	}

	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, append(opts, chromedp.AtLeast(0))...)); err != nil {
		return fmt.Errorf("failed to query %s: %w", selector, err)
	}
	if _, err := firstNode(nodes, selector); err != nil {
		return err
	}

	if p.elementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.elementTimeout)
		defer cancel()
	}
	if err := p.run(ctx, chromedp.SendKeys(selector, text, opts...)); err != nil {
		return fmt.Errorf("failed to type into %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`document.querySelector(%s).click()`, jsString(selector))
	return p.run(ctx, chromedp.Evaluate(expr, nil))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *chromePage) Frame(ctx context.Context, selector string) (Frame, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	node, err := firstNode(nodes, selector)
	if err != nil {
		return nil, err
	}
	if node.NodeName != "IFRAME" && node.NodeName != "FRAME" {
		return nil, ErrFrameNotFound
	}
	return &chromeFrame{page: p, node: node}, nil
}

type chromeFrame struct {
	page *chromePage
	node *cdp.Node
}

func (f *chromeFrame) Type(ctx context.Context, selector, text string) error {
	return f.page.typeInto(ctx, f.node, selector, text)
}

// firstNode returns the first of nodes, or ErrElementNotFound when a query
// for selector matched nothing
func firstNode(nodes []*cdp.Node, selector string) (*cdp.Node, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nodes[0], nil
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
