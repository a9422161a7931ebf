package render

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// Event is the serialisable form of a log entry, as delivered to sinks and
// persisted by the store. Snapshot values are not carried: they are
// arbitrary Go values owned by the test.
type Event struct {
	Session      string        `json:"session"`
	Count        int           `json:"count"`
	ID           string        `json:"id,omitempty"`
	Phase        Phase         `json:"phase,omitempty"`
	ActualUs     int64         `json:"actual_us"`   // microseconds
	BaseUs       int64         `json:"base_us"`     // microseconds
	StartTime    int64         `json:"start_time"`  // epoch microseconds
	CommitTime   int64         `json:"commit_time"` // epoch microseconds
	Interactions []Interaction `json:"interactions,omitempty"`
	DOM          string        `json:"dom,omitempty"`
	DOMHash      string        `json:"dom_hash,omitempty"` // SHA-256 hex of DOM
	Error        string        `json:"error,omitempty"`    // set for snapshot errors
	Timestamp    int64         `json:"timestamp"`          // epoch milliseconds at record
}

// IsError reports whether the event describes a snapshot error.
func (e Event) IsError() bool { return e.Error != "" }

// EventOf converts a log entry to its serialisable form.
func EventOf(session string, entry Entry, at time.Time) Event {
	ev := Event{
		Session:   session,
		Count:     entry.Ordinal(),
		Timestamp: at.UnixMilli(),
	}
	switch e := entry.(type) {
	case *Record:
		ev.ID = e.ID
		ev.Phase = e.Phase
		ev.ActualUs = e.ActualDuration.Microseconds()
		ev.BaseUs = e.BaseDuration.Microseconds()
		ev.StartTime = unixMicro(e.StartTime)
		ev.CommitTime = unixMicro(e.CommitTime)
		ev.Interactions = e.Interactions
		if e.hasDOM {
			ev.DOM = e.DOM
			ev.DOMHash = HashHTML([]byte(e.DOM))
		}
	case *SnapshotError:
		ev.Error = e.Err.Error()
	}
	return ev
}

func unixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// MarshalEvent serialises an Event to JSON.
func MarshalEvent(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserialises an Event from JSON.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// HashHTML returns the SHA-256 hex digest of raw HTML bytes.
func HashHTML(html []byte) string {
	h := sha256.Sum256(html)
	return fmt.Sprintf("%x", h)
}
