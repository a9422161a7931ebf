// Package sink defines output backends for recorded renders.
package sink

import (
	"context"

	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// Sink is the output interface. Implementations deliver render events to
// different backends (stdout, webhook, SQLite store, in-process callback).
type Sink interface {
	Send(ctx context.Context, ev render.Event) error
	Close() error
}
