package inspect

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/renderwatch/dbopen"
	"github.com/hazyhaar/renderwatch/idgen"
	"github.com/hazyhaar/renderwatch/kit"
	"github.com/hazyhaar/renderwatch/renderwatch/internal/store"
	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

func seeded(t *testing.T, opts ...Option) *Inspector {
	t.Helper()
	db := dbopen.OpenMemory(t)
	st := store.New(db)
	ctx := context.Background()
	if err := st.Init(ctx); err != nil {
		t.Fatal(err)
	}
	at := time.UnixMilli(1708700000000)
	events := []render.Event{
		{Session: "s1", Count: 1, ID: "counter", Phase: render.PhaseMount, DOM: "<h1>Counter</h1><button>count: 0</button>", Timestamp: at.UnixMilli()},
		{Session: "s1", Count: 2, ID: "counter", Error: "snapshot failed", Timestamp: at.UnixMilli() + 1},
		{Session: "s1", Count: 3, ID: "counter", Phase: render.PhaseUpdate, DOM: "<button>count: 1</button>", Timestamp: at.UnixMilli() + 2},
		{Session: "s2", Count: 1, ID: "plain", Phase: render.PhaseMount, Timestamp: at.UnixMilli() + 3},
	}
	for _, ev := range events {
		if ev.DOM != "" {
			ev.DOMHash = render.HashHTML([]byte(ev.DOM))
		}
		if err := st.Send(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	return New(st, nil, opts...)
}

func TestFindText(t *testing.T) {
	in := seeded(t)
	ctx := context.Background()

	matches, err := in.FindText(ctx, "s1", "count: 1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Count != 3 || matches[0].Role != "button" {
		t.Errorf("matches: %+v", matches)
	}

	matches, _ = in.FindText(ctx, "s1", "count: 1", 1)
	if len(matches) != 0 {
		t.Errorf("restricted search matched other renders: %+v", matches)
	}
}

func TestMarkdown(t *testing.T) {
	in := seeded(t)
	ctx := context.Background()
	md, err := in.Markdown(ctx, "s1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "# Counter") {
		t.Errorf("markdown: %q", md)
	}
	if _, err := in.Markdown(ctx, "s2", 1); err != ErrNoDOM {
		t.Errorf("no DOM: got %v", err)
	}
}

func newServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	seeded(t, opts...).RegisterHTTP(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestHTTP_Routes(t *testing.T) {
	srv := newServer(t)

	resp, body := get(t, srv.URL+"/renderwatch/sessions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sessions: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	var sessions []store.Session
	if err := json.Unmarshal([]byte(body), &sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s2" {
		t.Errorf("sessions: %+v", sessions)
	}

	_, body = get(t, srv.URL+"/renderwatch/sessions/s1/renders")
	var renders []RenderSummary
	if err := json.Unmarshal([]byte(body), &renders); err != nil {
		t.Fatal(err)
	}
	if len(renders) != 3 || renders[1].Error == "" || renders[0].DOMHash == "" {
		t.Errorf("renders: %+v", renders)
	}

	_, body = get(t, srv.URL+"/renderwatch/sessions/s1/renders/3")
	ev, err := render.UnmarshalEvent([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Count != 3 || ev.DOM != "<button>count: 1</button>" {
		t.Errorf("render: %+v", ev)
	}

	resp, body = get(t, srv.URL+"/renderwatch/sessions/s1/renders/1/markdown")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Counter") {
		t.Errorf("markdown: %d %q", resp.StatusCode, body)
	}

	_, body = get(t, srv.URL+"/renderwatch/sessions/s1/find?text=Counter")
	if !strings.Contains(body, `"tag":"h1"`) {
		t.Errorf("find: %s", body)
	}
}

func TestHTTP_Errors(t *testing.T) {
	srv := newServer(t)
	tests := []struct {
		path string
		code int
	}{
		{"/renderwatch/sessions/nope/renders", http.StatusNotFound},
		{"/renderwatch/sessions/s1/renders/9", http.StatusNotFound},
		{"/renderwatch/sessions/s1/renders/zero", http.StatusBadRequest},
		{"/renderwatch/sessions/s2/renders/1/markdown", http.StatusConflict},
		{"/renderwatch/sessions/s1/find", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, body := get(t, srv.URL+tt.path)
		if resp.StatusCode != tt.code {
			t.Errorf("%s: got %d (%s), want %d", tt.path, resp.StatusCode, body, tt.code)
		}
	}
}

var testMCPImpl = &mcp.Implementation{Name: "renderwatch-test", Version: "0.1.0"}

func mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	seeded(t).RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_Tools(t *testing.T) {
	session := mcpSession(t)

	var sessions []store.Session
	if err := json.Unmarshal([]byte(mcpCallTool(t, session, "renderwatch_sessions", map[string]any{})), &sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Errorf("sessions: %+v", sessions)
	}

	var renders []RenderSummary
	if err := json.Unmarshal([]byte(mcpCallTool(t, session, "renderwatch_renders", map[string]any{"session": "s1"})), &renders); err != nil {
		t.Fatal(err)
	}
	if len(renders) != 3 {
		t.Errorf("renders: %+v", renders)
	}

	var ev render.Event
	if err := json.Unmarshal([]byte(mcpCallTool(t, session, "renderwatch_renders", map[string]any{"session": "s1", "count": 3})), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Count != 3 || ev.DOM == "" {
		t.Errorf("render: %+v", ev)
	}

	var matches []TextMatch
	text := mcpCallTool(t, session, "renderwatch_find_text", map[string]any{"session": "s1", "text": "count: 0"})
	if err := json.Unmarshal([]byte(text), &matches); err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Count != 1 || matches[0].Tag != "button" {
		t.Errorf("matches: %+v", matches)
	}
}

func TestMCP_UnknownSession(t *testing.T) {
	session := mcpSession(t)
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "renderwatch_renders",
		Arguments: map[string]any{"session": "nope"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("unknown session not reported as tool error")
	}
}

func TestHTTP_RequestIDs(t *testing.T) {
	srv := newServer(t, WithRequestIDs(idgen.Sequence("req_")))

	for _, want := range []string{"req_1", "req_2"} {
		resp, _ := get(t, srv.URL+"/renderwatch/sessions")
		if got := resp.Header.Get("X-Request-ID"); got != want {
			t.Errorf("X-Request-ID: got %q, want %q", got, want)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/renderwatch/sessions", nil)
	req.Header.Set("X-Request-ID", "caller-7")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "caller-7" {
		t.Errorf("caller ID not echoed: %q", got)
	}
}

func TestToolMiddleware_RequestIDLogged(t *testing.T) {
	var buf bytes.Buffer
	in := New(nil, slog.New(slog.NewTextHandler(&buf, nil)), WithRequestIDs(idgen.Sequence("req_")))

	var seen string
	ep := in.wrap("renderwatch_test_tool", func(ctx context.Context, _ any) (any, error) {
		seen = kit.GetRequestID(ctx)
		return nil, errors.New("store offline")
	})
	if _, err := ep(context.Background(), nil); err == nil {
		t.Fatal("endpoint error swallowed")
	}
	if seen != "req_1" {
		t.Errorf("endpoint saw request ID %q", seen)
	}
	out := buf.String()
	if !strings.Contains(out, "request_id=req_1") || !strings.Contains(out, "endpoint=renderwatch_test_tool") {
		t.Errorf("log line: %s", out)
	}

	// An ID already on the context is kept.
	ctx := kit.WithRequestID(context.Background(), "upstream")
	ep(ctx, nil)
	if seen != "upstream" {
		t.Errorf("request ID replaced: %q", seen)
	}
}
