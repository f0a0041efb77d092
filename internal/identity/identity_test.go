package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fleetherd/herd/internal/opstore"
)

func TestResolvePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		explicit string
		env      Env
		want     Caller
	}{
		{
			name:     "explicit wins over env",
			explicit: "mason",
			env:      Env{AgentName: "fresco", InstanceID: "i1", Team: "avalon"},
			want:     Caller{Agent: "mason", InstanceID: "i1", Team: "avalon"},
		},
		{
			name: "env agent when no explicit",
			env:  Env{AgentName: "fresco", Team: "avalon"},
			want: Caller{Agent: "fresco", Team: "avalon"},
		},
		{
			name: "unknown when nothing set",
			want: Caller{Agent: Unknown},
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.explicit, tt.env); got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCallerAddress(t *testing.T) {
	cases := []struct {
		caller Caller
		want   string
	}{
		{Caller{Agent: "mason"}, "mason"},
		{Caller{Agent: "mason", Team: "avalon"}, "mason@avalon"},
		{Caller{Agent: "mason", InstanceID: "i1", Team: "avalon"}, "mason.i1@avalon"},
	}
	for _, tt := range cases {
		if got := tt.caller.Address(); got != tt.want {
			t.Errorf("Address(%+v) = %q, want %q", tt.caller, got, tt.want)
		}
	}
}

func TestEnsureCreatesUnseenInstance(t *testing.T) {
	store, err := opstore.Open(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	caller := Caller{Agent: "mason", InstanceID: "inst-new", Team: "avalon"}
	if err := Ensure(context.Background(), store, caller); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	a, err := store.GetAgent("inst-new")
	if err != nil || a == nil {
		t.Fatalf("GetAgent = %+v, %v", a, err)
	}
	if a.AgentCode != "mason" || a.State != opstore.AgentRunning {
		t.Errorf("created agent = %+v", a)
	}

	events, err := store.Events(opstore.EventLifecycle, "inst-new")
	if err != nil || len(events) != 1 {
		t.Fatalf("lifecycle events = %+v, %v, want 1", events, err)
	}
	if events[0].Data["event"] != "spawned" {
		t.Errorf("event = %+v, want spawned", events[0].Data)
	}

	// A second resolution of the same instance must not duplicate.
	if err := Ensure(context.Background(), store, caller); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	events, _ = store.Events(opstore.EventLifecycle, "inst-new")
	if len(events) != 1 {
		t.Errorf("events after second Ensure = %d, want still 1", len(events))
	}
}

func TestEnsureNoopWithoutInstanceID(t *testing.T) {
	store, err := opstore.Open(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := Ensure(context.Background(), store, Caller{Agent: "mason"}); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	agents, err := store.ListAgents(opstore.Filter{})
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 0 {
		t.Errorf("agents = %+v, want none for instance-less caller", agents)
	}
}
