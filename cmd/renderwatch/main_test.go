package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/renderwatch/renderwatch"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunDemo_StoresRenders(t *testing.T) {
	cfg := renderwatch.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "renders.db")
	cfg.Profiler.Session = "demo-test"
	cfg.Demo.Updates = 2
	cfg.Demo.Interval = 5 * time.Millisecond
	cfg.Sinks = []renderwatch.SinkConfig{{Type: "store"}}

	st, db, err := openStore(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := runDemo(ctx, quietLogger(), cfg, st); err != nil {
		t.Fatal(err)
	}
	events, err := st.Events(ctx, "demo-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("stored renders: got %d, want 3", len(events))
	}
	if len(events[1].Interactions) != 1 || events[1].Interactions[0].Name != "increment" {
		t.Errorf("interactions: %+v", events[1].Interactions)
	}
}

func TestOpenStore_NotNeeded(t *testing.T) {
	st, db, err := openStore(renderwatch.DefaultConfig(), false)
	if err != nil || st != nil || db != nil {
		t.Errorf("got %v %v %v", st, db, err)
	}
}

func TestRunServe_Health(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := renderwatch.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "renders.db")
	cfg.Serve.Listen = addr
	cfg.Serve.MCP = true

	st, db, err := openStore(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, quietLogger(), cfg, st) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: %d", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("runServe: %v", err)
	}
}
