// Package render defines the records produced by renderwatch. These are the
// public API contract: test code and sinks import this package to read
// what a profiled component rendered.
package render

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/renderwatch/renderwatch/markup"
)

// ErrSnapshotNotAvailable is returned when markup is requested from a record
// captured without DOM snapshots enabled.
var ErrSnapshotNotAvailable = errors.New("render: snapshot not available (DOM snapshots disabled)")

// Phase is the kind of commit the engine reported.
type Phase string

const (
	PhaseMount  Phase = "mount"  // first commit of the component
	PhaseUpdate Phase = "update" // any later commit
)

// Interaction is a token causally linked to a commit (a click, a timer, ...).
type Interaction struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Commit is one render notification from the host engine.
type Commit struct {
	ID             string        // engine-assigned identifier of the profiled tree
	Phase          Phase
	ActualDuration time.Duration // time spent rendering this commit
	BaseDuration   time.Duration // estimated time to render the whole subtree without memoisation
	StartTime      time.Time
	CommitTime     time.Time
	Interactions   []Interaction
}

// Hook receives commits. Engines call it synchronously on every commit.
type Hook func(Commit)

// MarkupSource returns the currently rendered markup of a component.
type MarkupSource interface {
	Markup() (string, error)
}

// MarkupFunc adapts a function to MarkupSource.
type MarkupFunc func() (string, error)

// Markup implements MarkupSource.
func (f MarkupFunc) Markup() (string, error) { return f() }

// Base is a commit with its 1-based position in the render log.
type Base struct {
	Commit
	Count int
}

// Entry is one element of the render log: a *Record or a *SnapshotError.
type Entry interface {
	Ordinal() int
	entry()
}

// Record is a completed render. It must not be modified once recorded.
type Record struct {
	Base
	// Snapshot is the value returned by the user snapshot function, if any.
	Snapshot any
	// DOM is the markup serialised at commit time. Empty when DOM
	// snapshots are disabled.
	DOM string

	hasDOM bool

	screenOnce sync.Once
	screen     *markup.Screen
	screenErr  error
}

// NewRecord builds a record. Interactions are copied so later changes by
// the engine cannot leak into the log.
func NewRecord(base Base, snapshot any, dom string, hasDOM bool) *Record {
	if len(base.Interactions) > 0 {
		base.Interactions = append([]Interaction(nil), base.Interactions...)
	}
	return &Record{
		Base:     base,
		Snapshot: snapshot,
		DOM:      dom,
		hasDOM:   hasDOM,
	}
}

// Ordinal returns the record's Count.
func (r *Record) Ordinal() int { return r.Count }

func (r *Record) entry() {}

// HasDOM reports whether markup was captured for this render.
func (r *Record) HasDOM() bool { return r.hasDOM }

// Screen returns the queryable markup of this render. The markup is parsed
// on first call and the same Screen is returned afterwards.
func (r *Record) Screen() (*markup.Screen, error) {
	if !r.hasDOM {
		return nil, ErrSnapshotNotAvailable
	}
	r.screenOnce.Do(func() {
		r.screen, r.screenErr = markup.Parse(r.DOM)
	})
	return r.screen, r.screenErr
}

func (r *Record) String() string {
	return fmt.Sprintf("render #%d %s %s (%s)", r.Count, r.ID, r.Phase, r.ActualDuration)
}

// SnapshotError records a render whose snapshot could not be captured.
type SnapshotError struct {
	Count int
	Err   error
}

// Ordinal returns the entry's Count.
func (e *SnapshotError) Ordinal() int { return e.Count }

func (e *SnapshotError) entry() {}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("render #%d: snapshot: %v", e.Count, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }
