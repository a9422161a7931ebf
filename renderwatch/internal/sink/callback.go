package sink

import (
	"context"

	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// EventFunc is called for each recorded render.
type EventFunc func(ctx context.Context, ev render.Event) error

// Callback delivers events via Go function calls, with no serialisation.
type Callback struct {
	onEvent EventFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn EventFunc) *Callback {
	return &Callback{onEvent: fn}
}

func (c *Callback) Send(ctx context.Context, ev render.Event) error {
	if c.onEvent != nil {
		return c.onEvent(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
