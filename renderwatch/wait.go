package renderwatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// pendingWait is the single outstanding "next render" request. It is
// settled exactly once, by OnRender or by its timer, whichever first
// removes it from Profiler.pending.
type pendingWait struct {
	done  chan struct{}
	rec   *render.Record
	err   error
	timer *time.Timer
}

func (w *pendingWait) finish(rec *render.Record, err error) {
	w.rec, w.err = rec, err
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
}

// Next returns the render at the cursor position and advances the cursor.
//
// Recorded renders are returned without waiting. A snapshot error entry
// at the position returns the snapshot's error. Once the cursor has caught
// up with the log, Next waits for the next render like WaitForNext. The
// cursor advances by one whatever the outcome, so a timed-out Next still
// counts as an observation.
//
// A render that arrives after a Next timed out fills the position that
// call consumed, so the following Next does not return it; it waits for
// the render after. Use CurrentRender or Entries to see the late render.
func (p *Profiler) Next(ctx context.Context, opts ...WaitOption) (*render.Record, error) {
	p.mu.Lock()
	pos := p.cursor
	p.cursor++
	if pos < len(p.entries) {
		entry := p.entries[pos]
		p.mu.Unlock()
		return entryResult(entry)
	}
	w := p.joinLocked(opts)
	p.mu.Unlock()

	return p.await(ctx, w)
}

// WaitForNext waits for the next render, ignoring the cursor.
//
// Only one wait is outstanding at a time. A call made while another wait is
// pending joins it and receives the same result; its own options are
// ignored, so the first caller's timeout applies to both. Callers that
// need a different deadline should bound ctx instead.
//
// Cancelling ctx abandons this caller's wait only. The pending wait stays
// in place for other callers until a render arrives or the timeout fires.
func (p *Profiler) WaitForNext(ctx context.Context, opts ...WaitOption) (*render.Record, error) {
	p.mu.Lock()
	w := p.joinLocked(opts)
	p.mu.Unlock()

	return p.await(ctx, w)
}

// WaitForRenderCount calls Next until the log holds at least n entries.
// Each call completes before the next one starts; the first error is
// returned immediately.
func (p *Profiler) WaitForRenderCount(ctx context.Context, n int, opts ...WaitOption) error {
	for p.Len() < n {
		if _, err := p.Next(ctx, opts...); err != nil {
			return err
		}
	}
	return nil
}

// joinLocked returns the pending wait, creating it if needed. p.mu held.
func (p *Profiler) joinLocked(opts []WaitOption) *pendingWait {
	if p.pending != nil {
		return p.pending
	}

	wo := WaitOptions{Timeout: p.opts.DefaultTimeout}
	for _, o := range opts {
		o(&wo)
	}
	if wo.Timeout <= 0 {
		wo.Timeout = p.opts.DefaultTimeout
	}

	w := &pendingWait{done: make(chan struct{})}
	terr := &TimeoutError{
		Label:   wo.Label,
		Timeout: wo.Timeout,
		trace:   pkgerrors.New("wait for render"),
	}
	w.timer = time.AfterFunc(wo.Timeout, func() { p.expire(w, terr) })
	p.pending = w
	return w
}

// expire rejects w with a timeout unless a render settled it first.
func (p *Profiler) expire(w *pendingWait, terr *TimeoutError) {
	p.mu.Lock()
	if p.pending != w {
		p.mu.Unlock()
		return
	}
	p.pending = nil
	terr.Rendered = len(p.entries)
	current := p.current
	p.mu.Unlock()

	if p.logger.Enabled(context.Background(), slog.LevelDebug) {
		p.logger.Debug("renderwatch: wait timed out",
			"label", terr.Label, "timeout", terr.Timeout, "rendered", terr.Rendered,
			"current", currentMarkdown(current))
	}
	w.finish(nil, terr)
}

func (p *Profiler) await(ctx context.Context, w *pendingWait) (*render.Record, error) {
	select {
	case <-w.done:
		return w.rec, w.err
	case <-ctx.Done():
		return nil, fmt.Errorf("renderwatch: wait for render: %w", ctx.Err())
	}
}

// entryResult unpacks a log entry for a consumer.
func entryResult(entry render.Entry) (*render.Record, error) {
	switch e := entry.(type) {
	case *render.Record:
		return e, nil
	case *render.SnapshotError:
		return nil, e.Err
	default:
		return nil, fmt.Errorf("renderwatch: unknown log entry %T", entry)
	}
}

// currentMarkdown renders the last committed markup for timeout logs.
func currentMarkdown(rec *render.Record) string {
	if rec == nil || !rec.HasDOM() {
		return ""
	}
	screen, err := rec.Screen()
	if err != nil {
		return ""
	}
	md, err := screen.Markdown()
	if err != nil {
		return ""
	}
	return md
}
