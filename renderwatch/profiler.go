// Package renderwatch instruments a UI component so tests can observe its
// renders one at a time.
//
// The host engine calls Profiler.OnRender on every commit. Each commit
// becomes an immutable entry in an append-only log. Test code pulls
// entries with Next, which replays recorded renders immediately and
// otherwise waits for the next one, bounded by a timeout:
//
//	p, _ := renderwatch.Profile(h, renderwatch.Options{SnapshotDOM: true})
//	h.Mount()
//	rec, err := p.Next(ctx)
//	screen, _ := rec.Screen()
//	screen.GetByText("hello")
//
// renderwatch records, it does not render. Recorded entries are also
// emitted to sinks (stdout, webhook, SQLite store, callback) for
// inspection outside the test process.
package renderwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/renderwatch/renderwatch/internal/sink"
	"github.com/hazyhaar/renderwatch/renderwatch/markup"
	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// Engine is the rendering engine a profiled component lives in. OnCommit
// registers a hook the engine calls synchronously after every commit.
type Engine interface {
	OnCommit(hook render.Hook)
}

// Profiler owns the render log of one profiled component: the entries, the
// consumer cursor, the pending-wait slot and the current render. It is
// safe for concurrent use.
type Profiler struct {
	opts   Options
	logger *slog.Logger
	sinks  *sink.Router

	ctx    context.Context
	cancel context.CancelFunc

	// commitMu serialises OnRender so entries, settlement and sink
	// emission all follow engine call order.
	commitMu sync.Mutex

	mu      sync.Mutex
	entries []render.Entry
	current *render.Record
	cursor  int
	pending *pendingWait
}

// New creates a Profiler. Register Profiler.OnRender with the engine, or
// use Profile to do both.
func New(opts Options) (*Profiler, error) {
	if opts.SnapshotDOM && opts.DOM == nil {
		return nil, ErrNoMarkupSource
	}
	opts.defaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Profiler{
		opts:   opts,
		logger: opts.Logger.With("session", opts.Session),
		sinks:  sink.NewRouter(opts.Logger, opts.Sinks...),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Profile wraps a component's engine: it creates a Profiler and registers
// its hook with the engine exactly once. When DOM snapshots are requested
// without an explicit source and the engine can serialise its output, the
// engine is used as the source.
func Profile(engine Engine, opts Options) (*Profiler, error) {
	if opts.SnapshotDOM && opts.DOM == nil {
		if src, ok := engine.(render.MarkupSource); ok {
			opts.DOM = src
		}
	}
	p, err := New(opts)
	if err != nil {
		return nil, err
	}
	engine.OnCommit(p.OnRender)
	return p, nil
}

// Hook returns OnRender as a render.Hook.
func (p *Profiler) Hook() render.Hook { return p.OnRender }

// OnRender records one commit. It appends exactly one entry to the log,
// settles the pending wait if there is one, and emits the entry to sinks.
func (p *Profiler) OnRender(c render.Commit) {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	p.mu.Lock()
	base := render.Base{Commit: c, Count: len(p.entries) + 1}
	p.mu.Unlock()

	entry := p.capture(base)

	p.mu.Lock()
	p.entries = append(p.entries, entry)
	rec, isRecord := entry.(*render.Record)
	if isRecord {
		p.current = rec
	}
	w := p.pending
	p.pending = nil
	p.mu.Unlock()

	if isRecord {
		p.logger.Debug("renderwatch: render recorded",
			"count", rec.Count, "id", rec.ID, "phase", rec.Phase,
			"actual", rec.ActualDuration, "waiter", w != nil)
		if w != nil {
			w.finish(rec, nil)
		}
	} else {
		se := entry.(*render.SnapshotError)
		p.logger.Warn("renderwatch: snapshot failed",
			"count", se.Count, "id", c.ID, "error", se.Err, "waiter", w != nil)
		if w != nil {
			w.finish(nil, se.Err)
		}
	}

	if p.sinks.Len() > 0 {
		// Sink failures are logged by the router and never reach the engine.
		_ = p.sinks.Send(p.ctx, render.EventOf(p.opts.Session, entry, time.Now()))
	}
}

// capture runs the snapshot function and markup capture for one commit.
func (p *Profiler) capture(base render.Base) render.Entry {
	var snapshot any
	if p.opts.TakeSnapshot != nil {
		v, err := callSnapshot(p.opts.TakeSnapshot, base)
		if err != nil {
			return &render.SnapshotError{Count: base.Count, Err: err}
		}
		snapshot = v
	}

	var dom string
	if p.opts.SnapshotDOM {
		raw, err := p.opts.DOM.Markup()
		if err != nil {
			return &render.SnapshotError{
				Count: base.Count,
				Err:   fmt.Errorf("renderwatch: capture markup: %w", err),
			}
		}
		if p.opts.Sanitize {
			raw = markup.Sanitize(raw)
		}
		dom = raw
	}

	return render.NewRecord(base, snapshot, dom, p.opts.SnapshotDOM)
}

func callSnapshot(fn SnapshotFunc, base render.Base) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderwatch: snapshot panicked: %v", r)
		}
	}()
	return fn(base)
}

// Session returns the session name carried by emitted events.
func (p *Profiler) Session() string { return p.opts.Session }

// Len returns the number of entries in the log.
func (p *Profiler) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Position returns the cursor position: the number of Next calls made.
func (p *Profiler) Position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Entries returns a copy of the log.
func (p *Profiler) Entries() []render.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]render.Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// CurrentRender returns the most recent render, skipping snapshot errors.
func (p *Profiler) CurrentRender() (*render.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, ErrNotYetRendered
	}
	return p.current, nil
}

// Close stops in-flight sink deliveries and closes the sinks. The log stays
// readable; a pending wait still settles by render or timeout.
func (p *Profiler) Close() error {
	p.cancel()
	return p.sinks.Close()
}
