// Package inspect serves recorded renders from a renderwatch store over
// HTTP and MCP, so renders captured by a test run can be browsed after the
// fact.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/renderwatch/idgen"
	"github.com/hazyhaar/renderwatch/renderwatch/internal/store"
	"github.com/hazyhaar/renderwatch/renderwatch/markup"
	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// ErrNoDOM is returned for markup queries on renders captured without
// DOM snapshots.
var ErrNoDOM = errors.New("inspect: render has no captured markup")

// Inspector answers queries over stored render events.
type Inspector struct {
	store  *store.Store
	logger *slog.Logger
	ids    idgen.Generator
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithRequestIDs sets the generator for request IDs assigned to HTTP
// requests and MCP tool calls. Default: "req_" + 12-char NanoID.
func WithRequestIDs(gen idgen.Generator) Option {
	return func(in *Inspector) { in.ids = gen }
}

// New creates an Inspector. logger may be nil.
func New(st *store.Store, logger *slog.Logger, opts ...Option) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	in := &Inspector{store: st, logger: logger}
	for _, o := range opts {
		o(in)
	}
	if in.ids == nil {
		in.ids = idgen.Prefixed("req_", idgen.NanoID(12))
	}
	return in
}

// RenderSummary is one line of a session listing.
type RenderSummary struct {
	Count        int          `json:"count"`
	ID           string       `json:"id,omitempty"`
	Phase        render.Phase `json:"phase,omitempty"`
	ActualUs     int64        `json:"actual_us"`
	Interactions int          `json:"interactions,omitempty"`
	DOMHash      string       `json:"dom_hash,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// TextMatch is one element whose own text matched a FindText query.
type TextMatch struct {
	Count int    `json:"count"`
	Tag   string `json:"tag"`
	Role  string `json:"role,omitempty"`
	HTML  string `json:"html"`
}

// Sessions lists stored sessions, most recent first.
func (in *Inspector) Sessions(ctx context.Context) ([]store.Session, error) {
	return in.store.Sessions(ctx)
}

// Renders lists a session's renders in log order.
func (in *Inspector) Renders(ctx context.Context, session string) ([]RenderSummary, error) {
	events, err := in.store.Events(ctx, session)
	if err != nil {
		return nil, err
	}
	out := make([]RenderSummary, 0, len(events))
	for _, ev := range events {
		out = append(out, RenderSummary{
			Count:        ev.Count,
			ID:           ev.ID,
			Phase:        ev.Phase,
			ActualUs:     ev.ActualUs,
			Interactions: len(ev.Interactions),
			DOMHash:      ev.DOMHash,
			Error:        ev.Error,
		})
	}
	return out, nil
}

// Render returns one stored render.
func (in *Inspector) Render(ctx context.Context, session string, count int) (*render.Event, error) {
	return in.store.Event(ctx, session, count)
}

// Markdown returns a render's captured markup converted to Markdown.
func (in *Inspector) Markdown(ctx context.Context, session string, count int) (string, error) {
	ev, err := in.store.Event(ctx, session, count)
	if err != nil {
		return "", err
	}
	if ev.DOM == "" {
		return "", ErrNoDOM
	}
	return markup.Markdown(ev.DOM)
}

// FindText searches the captured markup of a session's renders for
// elements whose own text equals text. count restricts the search to one
// render when positive.
func (in *Inspector) FindText(ctx context.Context, session, text string, count int) ([]TextMatch, error) {
	var events []render.Event
	if count > 0 {
		ev, err := in.store.Event(ctx, session, count)
		if err != nil {
			return nil, err
		}
		events = []render.Event{*ev}
	} else {
		all, err := in.store.Events(ctx, session)
		if err != nil {
			return nil, err
		}
		events = all
	}

	var out []TextMatch
	for _, ev := range events {
		if ev.DOM == "" {
			continue
		}
		screen, err := markup.Parse(ev.DOM)
		if err != nil {
			in.logger.Warn("inspect: parse stored markup", "session", session, "count", ev.Count, "error", err)
			continue
		}
		for _, n := range screen.QueryAllByText(text) {
			out = append(out, TextMatch{
				Count: ev.Count,
				Tag:   n.Data,
				Role:  markup.Role(n),
				HTML:  markup.OuterHTML(n),
			})
		}
	}
	return out, nil
}

func requireSession(session string) error {
	if strings.TrimSpace(session) == "" {
		return fmt.Errorf("inspect: session is required")
	}
	return nil
}
