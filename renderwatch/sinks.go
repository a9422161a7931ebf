package renderwatch

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"time"

	"github.com/hazyhaar/renderwatch/dbopen"
	"github.com/hazyhaar/renderwatch/renderwatch/internal/sink"
	"github.com/hazyhaar/renderwatch/renderwatch/internal/store"
	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// Sink is the output interface for recorded renders.
type Sink = sink.Sink

// EventFunc is called for each recorded render.
type EventFunc = sink.EventFunc

// Store persists render events in SQLite. It is also a Sink.
type Store = store.Store

// Session summarises one stored profiling session.
type Session = store.Session

// ErrNotFound is returned by Store lookups for unknown sessions or renders.
var ErrNotFound = store.ErrNotFound

// NewStdoutSink creates a JSON-lines sink. A nil writer means os.Stdout.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// WebhookOption tunes a webhook sink.
type WebhookOption = sink.WebhookOption

// WithWebhookBackoff sets the first retry delay, doubled on each attempt.
// Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption { return sink.WithWebhookBackoff(d) }

// WithWebhookTimeout bounds each POST attempt. Default: 10s.
func WithWebhookTimeout(d time.Duration) WebhookOption { return sink.WithWebhookTimeout(d) }

// NewWebhookSink creates a webhook POST sink with retry. Delivery runs
// inside the profiled commit; with the defaults a dead endpoint holds the
// commit for retries*(10s timeout) plus backoff.
func NewWebhookSink(url string, retries int, logger *slog.Logger, opts ...WebhookOption) Sink {
	all := append([]WebhookOption{sink.WithWebhookRetries(retries), sink.WithWebhookLogger(logger)}, opts...)
	return sink.NewWebhook(url, all...)
}

// NewCallbackSink creates an in-process sink delivering events as function
// calls, with no serialisation.
func NewCallbackSink(fn func(ctx context.Context, ev render.Event) error) Sink {
	return sink.NewCallback(fn)
}

// NewStore creates a store on an open database and ensures its schema.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	s := store.New(db)
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenStore opens (creating if needed) a SQLite render store at path. The
// caller must blank-import modernc.org/sqlite and close the returned db.
func OpenStore(path string) (*Store, *sql.DB, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
	if err != nil {
		return nil, nil, err
	}
	return store.New(db), db, nil
}
