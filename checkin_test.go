package herd

import (
	"testing"
	"time"
)

func TestCheckinStalenessThresholds(t *testing.T) {
	base := time.Now()
	r := NewCheckinRegistry()
	r.now = func() time.Time { return base }
	r.Record("mason@avalon", "working", "mason", "avalon", "")

	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{4 * time.Minute, ""},
		{5 * time.Minute, "stale"},
		{9 * time.Minute, "stale"},
		{10 * time.Minute, "unresponsive"},
		{time.Hour, "unresponsive"},
	}
	for _, tt := range cases {
		r.now = func() time.Time { return base.Add(tt.elapsed) }
		if got := r.Staleness("mason@avalon"); got != tt.want {
			t.Errorf("elapsed=%v: Staleness() = %q, want %q", tt.elapsed, got, tt.want)
		}
	}
}

func TestCheckinRegistryEmpty(t *testing.T) {
	r := NewCheckinRegistry()
	if active := r.GetActive(""); len(active) != 0 {
		t.Errorf("GetActive() on empty registry = %+v, want empty", active)
	}
}

func TestCheckinRegistryGetActiveExcludesUnresponsiveAndFiltersTeam(t *testing.T) {
	base := time.Now()
	r := NewCheckinRegistry()
	r.now = func() time.Time { return base }
	r.Record("mason@avalon", "working", "mason", "avalon", "")
	r.Record("fresco@avalon", "designing", "fresco", "avalon", "")
	r.Record("grunt@camelot", "idle", "grunt", "camelot", "")

	r.now = func() time.Time { return base.Add(11 * time.Minute) }
	r.Record("steve@avalon", "coordinating", "steve", "avalon", "")

	active := r.GetActive("avalon")
	if len(active) != 1 {
		t.Fatalf("GetActive(avalon) = %+v, want 1 entry (only steve still fresh)", active)
	}
	if _, ok := active["steve@avalon"]; !ok {
		t.Errorf("expected steve@avalon in active set, got %+v", active)
	}
}

func TestCheckinRecordOverwrites(t *testing.T) {
	r := NewCheckinRegistry()
	r.Record("mason@avalon", "first", "mason", "avalon", "")
	r.Record("mason@avalon", "second", "mason", "avalon", "DBC-1")

	active := r.GetActive("")
	e, ok := active["mason@avalon"]
	if !ok {
		t.Fatalf("expected mason@avalon present")
	}
	if e.StatusText != "second" || e.Ticket != "DBC-1" {
		t.Errorf("entry not overwritten: %+v", e)
	}
}
