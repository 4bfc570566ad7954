package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/IliaW/hotel-crawler/config"
)

// ChromePool builds headless Chrome identities over a rotating proxy list.
type ChromePool struct {
	cfg       *config.BrowserConfig
	userAgent string

	mu      sync.Mutex
	proxies []string
	next    int
	closed  bool
	open    map[string]*chromeIdentity
}

func NewChromePool(cfg *config.BrowserConfig, userAgent string) *ChromePool {
	return &ChromePool{
		cfg:       cfg,
		userAgent: userAgent,
		proxies:   append([]string(nil), cfg.ProxyServers...),
		open:      make(map[string]*chromeIdentity),
	}
}

func (p *ChromePool) Acquire(ctx context.Context) (Identity, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("browser pool is closed")
	}
	proxy := ""
	if len(p.proxies) > 0 {
		proxy = p.proxies[p.next%len(p.proxies)]
		p.next++
	}
	p.mu.Unlock()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		// small viewport jitter so sessions don't share a fingerprint
		chromedp.WindowSize(1024+rand.Intn(100), 768+rand.Intn(100)),
	)
	if p.cfg.IgnoreCertErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if p.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.userAgent))
	}
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	ident := &chromeIdentity{
		id:            uuid.New().String(),
		proxy:         proxy,
		cfg:           p.cfg,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}

	p.mu.Lock()
	p.open[ident.id] = ident
	p.mu.Unlock()

	slog.Debug("acquired browser identity.", slog.String("id", ident.id), slog.String("proxy", proxy))
	return ident, nil
}

// Retire discards the identity and rotates its proxy to the back of the
// list so the next acquisition starts from a different network path.
func (p *ChromePool) Retire(identity Identity) {
	slog.Info("retiring browser identity.", slog.String("id", identity.ID()),
		slog.String("proxy", identity.Proxy()))
	identity.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.open, identity.ID())
	if proxy := identity.Proxy(); proxy != "" && len(p.proxies) > 1 {
		for i, candidate := range p.proxies {
			if candidate == proxy {
				p.proxies = append(append(p.proxies[:i:i], p.proxies[i+1:]...), proxy)
				break
			}
		}
	}
}

func (p *ChromePool) Close() {
	p.mu.Lock()
	p.closed = true
	open := make([]*chromeIdentity, 0, len(p.open))
	for _, ident := range p.open {
		open = append(open, ident)
	}
	p.open = make(map[string]*chromeIdentity)
	p.mu.Unlock()

	for _, ident := range open {
		ident.Close()
	}
}

type chromeIdentity struct {
	id            string
	proxy         string
	cfg           *config.BrowserConfig
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
}

func (c *chromeIdentity) ID() string    { return c.id }
func (c *chromeIdentity) Proxy() string { return c.proxy }

// Open navigates a fresh tab to the URL and returns its page handle.
func (c *chromeIdentity) Open(ctx context.Context, url string) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)

	page := &chromePage{tabCtx: tabCtx, tabCancel: tabCancel, cfg: c.cfg}
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()
	if err := page.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	return page, nil
}

func (c *chromeIdentity) Close() {
	c.closeOnce.Do(func() {
		c.browserCancel()
		c.allocCancel()
	})
}

type chromePage struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	cfg       *config.BrowserConfig
	closeOnce sync.Once
}

// run executes chromedp actions on the tab while honoring the caller's
// deadline and cancellation.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var location string
	err := p.run(ctx, chromedp.Location(&location))
	return location, err
}

type elementRead struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (p *chromePage) Value(ctx context.Context, selector string) (string, bool, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? { found: true, value: el.value ?? "" } : { found: false, value: "" };
	})()`, strconv.Quote(selector))

	var read elementRead
	if err := p.Evaluate(ctx, js, &read); err != nil {
		return "", false, err
	}
	return read.Value, read.Found, nil
}

func (p *chromePage) Attribute(ctx context.Context, selector, attr string) (string, bool, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return { found: false, value: "" };
		const v = %s === "textContent" ? el.textContent : el.getAttribute(%s);
		return { found: v !== null, value: v ?? "" };
	})()`, strconv.Quote(selector), strconv.Quote(attr), strconv.Quote(attr))

	var read elementRead
	if err := p.Evaluate(ctx, js, &read); err != nil {
		return "", false, err
	}
	return read.Value, read.Found, nil
}

func (p *chromePage) Count(ctx context.Context, selector string) (int, error) {
	js := fmt.Sprintf(`document.querySelectorAll(%s).length`, strconv.Quote(selector))
	var count int
	err := p.Evaluate(ctx, js, &count)
	return count, err
}

func (p *chromePage) Evaluate(ctx context.Context, js string, out any) error {
	return p.run(ctx, chromedp.Evaluate(js, out))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.SelectorTimeout)
	defer cancel()
	return p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Close() {
	p.closeOnce.Do(p.tabCancel)
}
