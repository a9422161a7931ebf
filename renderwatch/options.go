package renderwatch

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/renderwatch/idgen"
	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// DefaultTimeout is how long a wait suspends when no timeout is given.
const DefaultTimeout = time.Second

// SnapshotFunc computes a per-render user snapshot from the base record.
// A returned error (or a panic) turns the render into a
// *render.SnapshotError entry.
type SnapshotFunc func(base render.Base) (any, error)

// Options configures a Profiler.
type Options struct {
	// TakeSnapshot, when set, runs on every render.
	TakeSnapshot SnapshotFunc
	// SnapshotDOM captures the rendered markup on every render, enabling
	// Record.Screen. Default: false.
	SnapshotDOM bool
	// DOM is the markup source read when SnapshotDOM is set. Profile fills
	// it from the engine when the engine is a render.MarkupSource.
	DOM render.MarkupSource
	// Sanitize strips active content from captured markup.
	Sanitize bool
	// DefaultTimeout applies to waits without WithTimeout. Default: 1s.
	DefaultTimeout time.Duration
	// Session names this profiling session in emitted events.
	// Default: "rw_" + UUIDv7.
	Session string
	// Sinks receive every log entry as a render.Event, in log order.
	// Delivery is synchronous inside OnRender, so a slow sink delays the
	// engine's commit: a webhook that keeps failing blocks for all its
	// retries and backoff. Bound it with the retries argument of
	// NewWebhookSink, WithWebhookBackoff and WithWebhookTimeout.
	Sinks []Sink
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = DefaultTimeout
	}
	if o.Session == "" {
		o.Session = idgen.Prefixed("rw_", idgen.Default)()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// WaitOptions are the per-call options of Next, WaitForNext and
// WaitForRenderCount.
type WaitOptions struct {
	Timeout time.Duration
	Label   string
}

// WaitOption configures a single wait.
type WaitOption func(*WaitOptions)

// WithTimeout bounds how long the wait may suspend.
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) { o.Timeout = d }
}

// WithLabel names the wait in timeout errors and logs.
func WithLabel(label string) WaitOption {
	return func(o *WaitOptions) { o.Label = label }
}
