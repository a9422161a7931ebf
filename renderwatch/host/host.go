// Package host is a minimal synchronous rendering engine. It mounts one
// component into an in-memory container, re-renders it on demand and
// reports every commit to registered hooks, the way a real engine reports
// commits to a profiler. It exists for tests and the renderwatch demo; it
// does no diffing or scheduling.
package host

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

var (
	// ErrNotMounted is returned by Update before Mount.
	ErrNotMounted = errors.New("host: component not mounted")
	// ErrAlreadyMounted is returned by a second Mount.
	ErrAlreadyMounted = errors.New("host: component already mounted")
)

// Component produces its markup from its current state.
type Component interface {
	Render() (string, error)
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func() (string, error)

// Render implements Component.
func (f ComponentFunc) Render() (string, error) { return f() }

// Host owns the container a component is mounted into.
type Host struct {
	id   string
	comp Component
	now  func() time.Time

	// renderMu serialises commits.
	renderMu sync.Mutex

	mu          sync.Mutex
	hooks       []render.Hook
	markup      string
	mounted     bool
	interaction int64
	pending     []render.Interaction
}

// Option configures a Host.
type Option func(*Host)

// WithClock replaces time.Now, for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

// New creates a Host for comp. id identifies the profiled tree in commits.
func New(id string, comp Component, opts ...Option) *Host {
	h := &Host{id: id, comp: comp, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

// OnCommit registers a hook called synchronously after every commit.
func (h *Host) OnCommit(hook render.Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Markup returns the container's current inner HTML.
func (h *Host) Markup() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.mounted {
		return "", ErrNotMounted
	}
	return h.markup, nil
}

// Interact records an interaction token attached to the next commit and
// returns it.
func (h *Host) Interact(name string) render.Interaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interaction++
	in := render.Interaction{ID: h.interaction, Name: name, Timestamp: h.now()}
	h.pending = append(h.pending, in)
	return in
}

// Mount renders the component for the first time.
func (h *Host) Mount() error {
	h.renderMu.Lock()
	defer h.renderMu.Unlock()

	h.mu.Lock()
	mounted := h.mounted
	h.mu.Unlock()
	if mounted {
		return ErrAlreadyMounted
	}
	return h.commit(render.PhaseMount)
}

// Update re-renders the mounted component.
func (h *Host) Update() error {
	h.renderMu.Lock()
	defer h.renderMu.Unlock()

	h.mu.Lock()
	mounted := h.mounted
	h.mu.Unlock()
	if !mounted {
		return ErrNotMounted
	}
	return h.commit(render.PhaseUpdate)
}

// commit renders, swaps the container contents, then notifies hooks.
// A render error leaves the container untouched and reports no commit.
func (h *Host) commit(phase render.Phase) error {
	start := h.now()
	out, err := h.comp.Render()
	if err != nil {
		return fmt.Errorf("host: render %s: %w", h.id, err)
	}
	end := h.now()

	h.mu.Lock()
	h.markup = out
	h.mounted = true
	interactions := h.pending
	h.pending = nil
	hooks := append([]render.Hook(nil), h.hooks...)
	h.mu.Unlock()

	elapsed := end.Sub(start)
	c := render.Commit{
		ID:             h.id,
		Phase:          phase,
		ActualDuration: elapsed,
		BaseDuration:   elapsed,
		StartTime:      start,
		CommitTime:     end,
		Interactions:   interactions,
	}
	for _, hook := range hooks {
		hook(c)
	}
	return nil
}
