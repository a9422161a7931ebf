package host

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

type counter struct{ n int }

func (c *counter) Render() (string, error) {
	return "<span>" + strconv.Itoa(c.n) + "</span>", nil
}

func fakeClock() func() time.Time {
	t := time.UnixMilli(1708700000000)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestHost_MountUpdate(t *testing.T) {
	c := &counter{}
	h := New("counter", c, WithClock(fakeClock()))

	var commits []render.Commit
	h.OnCommit(func(cm render.Commit) { commits = append(commits, cm) })

	if _, err := h.Markup(); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Markup before mount: got %v", err)
	}
	if err := h.Update(); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Update before mount: got %v", err)
	}
	if err := h.Mount(); err != nil {
		t.Fatal(err)
	}
	if err := h.Mount(); !errors.Is(err, ErrAlreadyMounted) {
		t.Errorf("second Mount: got %v", err)
	}

	c.n = 1
	h.Interact("click")
	if err := h.Update(); err != nil {
		t.Fatal(err)
	}

	if len(commits) != 2 {
		t.Fatalf("commits: got %d, want 2", len(commits))
	}
	if commits[0].Phase != render.PhaseMount || commits[1].Phase != render.PhaseUpdate {
		t.Errorf("phases: %s, %s", commits[0].Phase, commits[1].Phase)
	}
	if commits[1].ActualDuration != time.Millisecond || commits[1].ID != "counter" {
		t.Errorf("commit fields: %+v", commits[1])
	}
	if len(commits[0].Interactions) != 0 || len(commits[1].Interactions) != 1 {
		t.Errorf("interactions: %v / %v", commits[0].Interactions, commits[1].Interactions)
	}
	got, _ := h.Markup()
	if got != "<span>1</span>" {
		t.Errorf("Markup: got %q", got)
	}
}

func TestHost_MarkupVisibleToHooks(t *testing.T) {
	h := New("x", ComponentFunc(func() (string, error) { return "<p>now</p>", nil }))
	var seen string
	h.OnCommit(func(render.Commit) { seen, _ = h.Markup() })
	if err := h.Mount(); err != nil {
		t.Fatal(err)
	}
	if seen != "<p>now</p>" {
		t.Errorf("hook saw %q", seen)
	}
}

func TestHost_RenderErrorNoCommit(t *testing.T) {
	boom := errors.New("boom")
	h := New("x", ComponentFunc(func() (string, error) { return "", boom }))
	called := false
	h.OnCommit(func(render.Commit) { called = true })
	if err := h.Mount(); !errors.Is(err, boom) {
		t.Fatalf("Mount: got %v", err)
	}
	if called {
		t.Error("hook called for a failed render")
	}
}
