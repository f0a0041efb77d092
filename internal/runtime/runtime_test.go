package runtime

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetherd/herd/internal/adapters"
	"github.com/fleetherd/herd/internal/adapters/opstoreadapter"
	"github.com/fleetherd/herd/internal/config"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := New(config.Config{ProjectPath: t.TempDir()}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestNewCreatesDataLayout(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := New(config.Config{ProjectPath: dir}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close()

	for _, rel := range []string{"data", "data/messages"} {
		if info, err := os.Stat(filepath.Join(dir, rel)); err != nil || !info.IsDir() {
			t.Errorf("%s: %v, want a directory", rel, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "operational.duckdb")); err != nil {
		t.Errorf("operational store file: %v", err)
	}
}

func TestHealthReportsUnwiredAdaptersUnavailable(t *testing.T) {
	rt := newTestRuntime(t)

	h := rt.Health()
	if h.Status != "ok" {
		t.Errorf("Status = %q", h.Status)
	}
	for slot, state := range h.Adapters {
		if state != "unavailable" {
			t.Errorf("adapter %q = %q, want unavailable before wiring", slot, state)
		}
	}
	for store, state := range h.Stores {
		if state != "ok" {
			t.Errorf("store %q = %q, want ok", store, state)
		}
	}
}

func TestHealthReflectsWiredStoreAdapter(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Adapters.Store = opstoreadapter.New(rt.OpStore, "unused")

	h := rt.Health()
	if h.Adapters["store"] != "ok" {
		t.Errorf("store slot = %q, want ok after wiring", h.Adapters["store"])
	}
	if h.Adapters["notify"] != "unavailable" {
		t.Errorf("notify slot = %q, want still unavailable", h.Adapters["notify"])
	}
}

func TestRuntimeOwnsWorkingComponents(t *testing.T) {
	rt := newTestRuntime(t)

	// The registry's write lock is usable out of the box.
	rt.Adapters.WriteLock.Lock()
	rt.Adapters.WriteLock.Unlock()

	if rt.Bus == nil || rt.Checkins == nil || rt.Graph == nil || rt.Tools == nil {
		t.Fatal("runtime has unconstructed components")
	}
	var _ *adapters.Registry = rt.Adapters

	// The bus mirror survives a send without error and the checkin
	// registry accepts heartbeats immediately.
	rt.Bus.Send("steve", "mason", "hello", "directive", "normal")
	rt.Checkins.Record("mason@avalon", "working", "mason", "avalon", "")
	if len(rt.Checkins.GetActive("avalon")) != 1 {
		t.Error("checkin registry lost a fresh heartbeat")
	}
}
