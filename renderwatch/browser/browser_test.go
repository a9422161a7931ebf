package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/hazyhaar/renderwatch/renderwatch"
	"github.com/hazyhaar/renderwatch/renderwatch/browser"
)

const page = `<!doctype html>
<html><body>
<div id="app"><span>loading</span></div>
<script>
setTimeout(() => {
	document.getElementById("app").innerHTML = "<span>ready</span>";
}, 100);
</script>
</body></html>`

// Needs a local Chrome; set RENDERWATCH_CHROME=1 to run.
func TestPage_ProfilesLiveMarkup(t *testing.T) {
	if os.Getenv("RENDERWATCH_CHROME") == "" {
		t.Skip("RENDERWATCH_CHROME not set")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := browser.Open(ctx, browser.Config{URL: srv.URL, Selector: "#app", PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	prof, err := renderwatch.Profile(p, renderwatch.Options{SnapshotDOM: true})
	if err != nil {
		t.Fatal(err)
	}
	go p.Watch(ctx)

	// The first poll may land before or after the script swaps the markup.
	for i := 0; i < 2; i++ {
		rec, err := prof.Next(ctx, renderwatch.WithTimeout(5*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		screen, err := rec.Screen()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := screen.GetByText("ready"); err == nil {
			return
		}
		if _, err := screen.GetByText("loading"); err != nil {
			t.Fatalf("render #%d: unexpected markup %s", rec.Count, rec.DOM)
		}
	}
	t.Fatal("never observed the ready markup")
}
