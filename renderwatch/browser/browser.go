// Package browser profiles markup rendered in a real Chrome page. A Page
// polls the inner HTML of one element and reports each change as a commit,
// so a live page can be driven through renderwatch like an in-process
// engine.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// ErrNoElement is returned when the watched selector matches nothing.
var ErrNoElement = errors.New("browser: selector matched no element")

// Config configures a watched page.
type Config struct {
	// URL to navigate to.
	URL string
	// Selector of the container whose inner HTML is captured. Default: "body".
	Selector string
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome.
	RemoteURL string
	// Stealth opens the page with go-rod/stealth evasions.
	Stealth bool
	// BlockResources lists resource types to block (images, fonts, media,
	// stylesheets).
	BlockResources []string
	// PollInterval between markup reads in Watch. Default: 50ms.
	PollInterval time.Duration
	// NavTimeout bounds navigation and load. Default: 30s.
	NavTimeout time.Duration
	// EvalTimeout bounds one markup read. Default: 5s.
	EvalTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Selector == "" {
		c.Selector = "body"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.EvalTimeout <= 0 {
		c.EvalTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Page is a Chrome tab whose container markup is watched. It implements
// render.MarkupSource and the renderwatch engine interface.
type Page struct {
	cfg     Config
	page    *rod.Page
	browser *rod.Browser
	lnch    *launcher.Launcher

	// pollMu serialises Poll so commits follow read order.
	pollMu sync.Mutex
	read   func(ctx context.Context) (string, error)

	mu     sync.Mutex
	hooks  []render.Hook
	det    detector
	markup string
}

// Open launches or connects to Chrome and navigates to cfg.URL.
func Open(ctx context.Context, cfg Config) (*Page, error) {
	cfg.defaults()
	p := &Page{cfg: cfg}
	p.read = p.Read

	wsURL := cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		p.lnch = l
		cfg.Logger.Info("browser: launched local chrome", "url", wsURL)
	} else {
		cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		p.cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	p.browser = b

	var (
		page *rod.Page
		err  error
	)
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		p.cleanup()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	p.page = page

	if len(cfg.BlockResources) > 0 {
		blockResources(page, cfg.BlockResources)
	}

	navCtx, cancel := context.WithTimeout(ctx, cfg.NavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(cfg.URL); err != nil {
		p.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", cfg.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		cfg.Logger.Warn("browser: wait load timeout", "url", cfg.URL, "error", err)
	}
	return p, nil
}

// Rod returns the underlying page, for driving interactions.
func (p *Page) Rod() *rod.Page { return p.page }

// OnCommit registers a hook called for every observed markup change.
func (p *Page) OnCommit(hook render.Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
}

// Markup returns the markup observed by the latest commit, so a profiler
// capturing inside its hook sees exactly the committed content.
func (p *Page) Markup() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.det.seen {
		return "", ErrNoElement
	}
	return p.markup, nil
}

// Read evaluates the container's current inner HTML.
func (p *Page) Read(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout)
	defer cancel()
	res, err := p.page.Context(ctx).Eval(`(sel) => {
		const el = document.querySelector(sel);
		return el === null ? null : el.innerHTML;
	}`, p.cfg.Selector)
	if err != nil {
		return "", fmt.Errorf("browser: read %s: %w", p.cfg.Selector, err)
	}
	if res.Value.Nil() {
		return "", fmt.Errorf("%w: %s", ErrNoElement, p.cfg.Selector)
	}
	return res.Value.Str(), nil
}

// Poll reads the container once and commits if its markup changed. It
// reports whether a commit was emitted. Concurrent Poll calls, including
// one running under Watch, are serialised: each read is committed, and its
// hooks run, before the next read starts.
func (p *Page) Poll(ctx context.Context) (bool, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	start := time.Now()
	raw, err := p.read(ctx)
	if err != nil {
		return false, err
	}
	end := time.Now()

	p.mu.Lock()
	phase, changed := p.det.observe(raw)
	if changed {
		p.markup = raw
	}
	hooks := append([]render.Hook(nil), p.hooks...)
	p.mu.Unlock()
	if !changed {
		return false, nil
	}

	c := render.Commit{
		ID:             p.cfg.Selector,
		Phase:          phase,
		ActualDuration: end.Sub(start),
		BaseDuration:   end.Sub(start),
		StartTime:      start,
		CommitTime:     end,
	}
	for _, hook := range hooks {
		hook(c)
	}
	return true, nil
}

// Watch polls until ctx is done. Read errors are logged and polling goes on.
func (p *Page) Watch(ctx context.Context) error {
	t := time.NewTicker(p.cfg.PollInterval)
	defer t.Stop()
	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.cfg.Logger.Debug("browser: poll failed", "selector", p.cfg.Selector, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Close closes the tab and shuts Chrome down if it was launched locally.
func (p *Page) Close() error {
	var err error
	if p.page != nil {
		err = p.page.Close()
	}
	p.cleanup()
	return err
}

func (p *Page) cleanup() {
	if p.browser != nil {
		p.browser.Close()
	}
	if p.lnch != nil {
		p.lnch.Cleanup()
	}
}
