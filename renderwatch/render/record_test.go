package render

import (
	"errors"
	"testing"
	"time"
)

func testBase(count int) Base {
	start := time.UnixMilli(1708700000000)
	return Base{
		Commit: Commit{
			ID:             "counter",
			Phase:          PhaseMount,
			ActualDuration: 1500 * time.Microsecond,
			BaseDuration:   2 * time.Millisecond,
			StartTime:      start,
			CommitTime:     start.Add(2 * time.Millisecond),
			Interactions:   []Interaction{{ID: 1, Name: "click", Timestamp: start}},
		},
		Count: count,
	}
}

func TestRecordScreen_Disabled(t *testing.T) {
	r := NewRecord(testBase(1), nil, "", false)
	_, err := r.Screen()
	if !errors.Is(err, ErrSnapshotNotAvailable) {
		t.Fatalf("Screen: got %v, want ErrSnapshotNotAvailable", err)
	}
	if r.HasDOM() {
		t.Error("HasDOM: want false")
	}
}

func TestRecordScreen_Memoised(t *testing.T) {
	r := NewRecord(testBase(1), nil, "<div>hello</div>", true)

	s1, err := r.Screen()
	if err != nil {
		t.Fatal(err)
	}
	s2, err := r.Screen()
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 || s1.Root() != s2.Root() {
		t.Error("Screen must return the same parsed root on every call")
	}
	if got := len(s1.QueryAllByText("hello")); got != 1 {
		t.Errorf("QueryAllByText(hello): got %d, want 1", got)
	}
}

func TestNewRecordCopiesInteractions(t *testing.T) {
	base := testBase(1)
	r := NewRecord(base, nil, "", false)
	base.Interactions[0].Name = "mutated"
	if r.Interactions[0].Name != "click" {
		t.Errorf("record interactions aliased engine slice: %q", r.Interactions[0].Name)
	}
}

func TestEntryOrdinals(t *testing.T) {
	boom := errors.New("boom")
	entries := []Entry{
		NewRecord(testBase(1), "snap", "", false),
		&SnapshotError{Count: 2, Err: boom},
	}
	for i, e := range entries {
		if e.Ordinal() != i+1 {
			t.Errorf("entry %d: Ordinal %d", i, e.Ordinal())
		}
	}
	se := entries[1].(*SnapshotError)
	if !errors.Is(se, boom) {
		t.Error("SnapshotError must unwrap to the snapshot failure")
	}
}

func TestEventOf(t *testing.T) {
	at := time.UnixMilli(1708700001000)
	r := NewRecord(testBase(3), nil, "<p>x</p>", true)

	ev := EventOf("sess-1", r, at)
	if ev.Count != 3 || ev.ID != "counter" || ev.Phase != PhaseMount {
		t.Errorf("identity: %+v", ev)
	}
	if ev.ActualUs != 1500 || ev.BaseUs != 2000 {
		t.Errorf("durations: actual=%d base=%d", ev.ActualUs, ev.BaseUs)
	}
	if ev.CommitTime-ev.StartTime != 2000 {
		t.Errorf("timestamps: start=%d commit=%d", ev.StartTime, ev.CommitTime)
	}
	if ev.DOMHash != HashHTML([]byte("<p>x</p>")) {
		t.Errorf("DOMHash: %q", ev.DOMHash)
	}
	if ev.Timestamp != at.UnixMilli() || ev.IsError() {
		t.Errorf("timestamp/error: %+v", ev)
	}

	errEv := EventOf("sess-1", &SnapshotError{Count: 4, Err: errors.New("bad snapshot")}, at)
	if !errEv.IsError() || errEv.Error != "bad snapshot" || errEv.Count != 4 {
		t.Errorf("error event: %+v", errEv)
	}
	if errEv.DOM != "" || errEv.ID != "" {
		t.Errorf("error event carries render fields: %+v", errEv)
	}
}

func TestEventJSON(t *testing.T) {
	ev := EventOf("sess-1", NewRecord(testBase(1), nil, "<b>x</b>", true), time.Now())
	data, err := MarshalEvent(&ev)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.DOM != ev.DOM || got.Count != ev.Count || len(got.Interactions) != 1 {
		t.Errorf("decoded: %+v", got)
	}
}

func TestHashHTML(t *testing.T) {
	h := HashHTML([]byte("<html></html>"))
	if len(h) != 64 {
		t.Errorf("HashHTML length: got %d, want 64", len(h))
	}
	if h != HashHTML([]byte("<html></html>")) {
		t.Error("HashHTML not deterministic")
	}
}
