// Command renderwatch runs profiled components and serves recorded renders.
//
// Usage:
//
//	renderwatch -demo                        # profile the bundled counter component
//	renderwatch -watch https://example.com   # profile a live page element
//	renderwatch -serve                       # inspection API over the render store
//	renderwatch -config renderwatch.yaml -serve
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/renderwatch/renderwatch"
	"github.com/hazyhaar/renderwatch/renderwatch/browser"
	"github.com/hazyhaar/renderwatch/renderwatch/host"
	"github.com/hazyhaar/renderwatch/renderwatch/inspect"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to renderwatch.yaml config file")
	demo := flag.Bool("demo", false, "profile the bundled counter component")
	watchURL := flag.String("watch", "", "profile the markup of a live page")
	selector := flag.String("selector", "body", "element watched with -watch")
	serve := flag.Bool("serve", false, "serve recorded renders over HTTP (and MCP)")
	dbPath := flag.String("db", "", "render store path (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := renderwatch.DefaultConfig()
	if *configPath != "" {
		loaded, err := renderwatch.LoadConfigFile(*configPath)
		if err != nil {
			logger.Error("renderwatch: load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	if err := run(ctx, logger, cfg, *demo, *watchURL, *selector, *serve); err != nil {
		logger.Error("renderwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *renderwatch.Config, demo bool, watchURL, selector string, serve bool) error {
	if !demo && watchURL == "" && !serve {
		fmt.Fprintln(os.Stderr, "usage: renderwatch [-config <file>] -demo | -watch <url> | -serve")
		os.Exit(2)
	}

	st, db, err := openStore(cfg, serve)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var wg sync.WaitGroup
	errc := make(chan error, 3)
	start := func(fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errc <- fn(ctx)
		}()
	}

	if serve {
		start(func(ctx context.Context) error { return runServe(ctx, logger, cfg, st) })
	}
	if demo {
		start(func(ctx context.Context) error { return runDemo(ctx, logger, cfg, st) })
	}
	if watchURL != "" {
		start(func(ctx context.Context) error { return runWatch(ctx, logger, cfg, st, watchURL, selector) })
	}

	go func() {
		wg.Wait()
		close(errc)
	}()
	for err := range errc {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// openStore opens the render store when serving or when a sink needs it.
func openStore(cfg *renderwatch.Config, serve bool) (*renderwatch.Store, *sql.DB, error) {
	need := serve
	for _, sc := range cfg.Sinks {
		if sc.Type == "store" {
			need = true
		}
	}
	if !need {
		return nil, nil, nil
	}
	st, db, err := renderwatch.OpenStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	return st, db, nil
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) Render() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return `<h1>Counter</h1><p>Clicked ` + strconv.Itoa(c.n) + ` times</p><button>Increment</button>`, nil
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func runDemo(ctx context.Context, logger *slog.Logger, cfg *renderwatch.Config, st *renderwatch.Store) error {
	opts, err := renderwatch.OptionsFromConfig(cfg, st, logger)
	if err != nil {
		return err
	}
	opts.SnapshotDOM = true

	c := &counter{}
	h := host.New("counter", c)
	p, err := renderwatch.Profile(h, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	go func() {
		if err := h.Mount(); err != nil {
			logger.Error("renderwatch: demo mount", "error", err)
			return
		}
		for i := 0; i < cfg.Demo.Updates; i++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.Demo.Interval):
			}
			h.Interact("increment")
			c.inc()
			if err := h.Update(); err != nil {
				logger.Error("renderwatch: demo update", "error", err)
				return
			}
		}
	}()

	timeout := renderwatch.WithTimeout(cfg.Demo.Interval + cfg.Profiler.DefaultTimeout)
	for i := 0; i <= cfg.Demo.Updates; i++ {
		rec, err := p.Next(ctx, timeout, renderwatch.WithLabel("demo"))
		if err != nil {
			return err
		}
		screen, err := rec.Screen()
		if err != nil {
			return err
		}
		want := "Clicked " + strconv.Itoa(i) + " times"
		if _, err := screen.GetByText(want); err != nil {
			return fmt.Errorf("render #%d: %w", rec.Count, err)
		}
		logger.Info("renderwatch: render", "session", p.Session(), "count", rec.Count,
			"phase", rec.Phase, "actual", rec.ActualDuration, "interactions", len(rec.Interactions))
	}
	logger.Info("renderwatch: demo done", "session", p.Session(), "renders", p.Len())
	return nil
}

func runWatch(ctx context.Context, logger *slog.Logger, cfg *renderwatch.Config, st *renderwatch.Store, url, selector string) error {
	opts, err := renderwatch.OptionsFromConfig(cfg, st, logger)
	if err != nil {
		return err
	}
	opts.SnapshotDOM = true

	page, err := browser.Open(ctx, browser.Config{
		URL:            url,
		Selector:       selector,
		Stealth:        true,
		BlockResources: []string{"images", "fonts", "media"},
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer page.Close()

	p, err := renderwatch.Profile(page, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	go page.Watch(ctx)

	for {
		rec, err := p.Next(ctx, renderwatch.WithTimeout(time.Minute), renderwatch.WithLabel(url))
		switch {
		case errors.Is(err, renderwatch.ErrTimeout):
			continue
		case err != nil:
			return err
		}
		logger.Info("renderwatch: page render", "session", p.Session(), "count", rec.Count,
			"phase", rec.Phase, "bytes", len(rec.DOM))
	}
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *renderwatch.Config, st *renderwatch.Store) error {
	in := inspect.New(st, logger)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	in.RegisterHTTP(r)

	if cfg.Serve.MCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "renderwatch", Version: version}, nil)
		in.RegisterMCP(mcpSrv)
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
	}

	srv := &http.Server{
		Addr:              cfg.Serve.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("renderwatch: server starting", "listen", cfg.Serve.Listen, "mcp", cfg.Serve.MCP)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("renderwatch: shutdown", "error", err)
	}
	logger.Info("renderwatch: server stopped")
	return nil
}
