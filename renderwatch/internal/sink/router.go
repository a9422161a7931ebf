package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// Router fans out events to all configured sinks. One sink error
// does not block the others: errors are logged and the first
// encountered is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of sinks behind the router.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Send(ctx context.Context, ev render.Event) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Send(ctx, ev); err != nil {
			r.logger.Warn("sink: send event failed",
				"session", ev.Session, "count", ev.Count, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
