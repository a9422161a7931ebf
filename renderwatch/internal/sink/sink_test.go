package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

func testEvent(count int) render.Event {
	return render.Event{Session: "s1", Count: count, ID: "app", Phase: render.PhaseUpdate}
}

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)

	if err := s.Send(context.Background(), testEvent(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), render.Event{Session: "s1", Count: 2, Error: "boom"}); err != nil {
		t.Fatal(err)
	}

	dec := json.NewDecoder(&buf)
	var types []string
	for {
		var env struct {
			Type string       `json:"type"`
			Data render.Event `json:"data"`
		}
		if err := dec.Decode(&env); err == io.EOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
		types = append(types, env.Type)
	}
	if len(types) != 2 || types[0] != "render" || types[1] != "snapshot_error" {
		t.Errorf("types: got %v", types)
	}
}

func TestRouter_FanOutAndFirstError(t *testing.T) {
	var got1, got2 int
	errSink := errors.New("sink down")
	r := NewRouter(nil,
		NewCallback(func(_ context.Context, ev render.Event) error { got1 = ev.Count; return errSink }),
		NewCallback(func(_ context.Context, ev render.Event) error { got2 = ev.Count; return nil }),
		NewCallback(nil),
	)

	err := r.Send(context.Background(), testEvent(7))
	if !errors.Is(err, errSink) {
		t.Errorf("Send: got %v, want first sink error", err)
	}
	if got1 != 7 || got2 != 7 {
		t.Errorf("fan-out: got1=%d got2=%d", got1, got2)
	}
	if r.Len() != 3 {
		t.Errorf("Len: got %d", r.Len())
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var env struct {
			Type string       `json:"type"`
			Data render.Event `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil || env.Data.Count != 5 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookRetries(3))
	if err := wh.Send(context.Background(), testEvent(5)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookRetries(1))
	if err := wh.Send(context.Background(), testEvent(1)); err == nil {
		t.Fatal("expected error after retries")
	}
}

func TestWebhook_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	wh := NewWebhook(srv.URL, WithWebhookTimeout(20*time.Millisecond), WithWebhookRetries(0))
	start := time.Now()
	if err := wh.Send(context.Background(), testEvent(1)); err == nil {
		t.Fatal("hung endpoint reported success")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("attempt not bounded: %s", elapsed)
	}
}
