package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/fleetherd/herd/internal/opstore"
)

// TestDecommissionEndsAllInstancesAndIsIdempotent: a first decommission
// ends every running instance of the target; a second finds nothing
// left and reports instances_ended == 0 rather than erroring.
func TestDecommissionEndsAllInstancesAndIsIdempotent(t *testing.T) {
	rt := newTestRuntime(t, "steve")
	ctx := context.Background()
	now := time.Now().UTC()

	rt.OpStore.SaveAgent(opstore.Agent{ID: "m1", AgentCode: "mason", InstanceID: "m1", State: opstore.AgentRunning, StartedAt: now})
	rt.OpStore.SaveAgent(opstore.Agent{ID: "m2", AgentCode: "mason", InstanceID: "m2", State: opstore.AgentRunning, StartedAt: now})
	rt.OpStore.SaveAgent(opstore.Agent{ID: "f1", AgentCode: "fresco", InstanceID: "f1", State: opstore.AgentRunning, StartedAt: now})

	res, err := HerdDecommission(rt)(ctx, map[string]any{"agent_name": "mason"})
	if err != nil {
		t.Fatalf("herd_decommission: %v", err)
	}
	if res["instances_ended"] != 2 {
		t.Fatalf("instances_ended = %v, want 2: %+v", res["instances_ended"], res)
	}
	if res["target_agent"] != "mason" || res["new_status"] != "stopped" {
		t.Errorf("result = %+v", res)
	}

	for _, id := range []string{"m1", "m2"} {
		a, err := rt.OpStore.GetAgent(id)
		if err != nil || a == nil {
			t.Fatalf("GetAgent(%s) = %+v, %v", id, a, err)
		}
		if a.State != opstore.AgentStopped || a.EndedAt == nil {
			t.Errorf("instance %s = %+v, want stopped with ended_at", id, a)
		}
		events, _ := rt.OpStore.Events(opstore.EventLifecycle, id)
		last := events[len(events)-1]
		if last.Data["event"] != "decommissioned" {
			t.Errorf("last lifecycle event for %s = %+v", id, last.Data)
		}
	}

	// The untargeted agent keeps running.
	f, _ := rt.OpStore.GetAgent("f1")
	if f.State != opstore.AgentRunning {
		t.Errorf("fresco instance = %+v, should be untouched", f)
	}

	again, err := HerdDecommission(rt)(ctx, map[string]any{"agent_name": "mason"})
	if err != nil {
		t.Fatalf("second herd_decommission: %v", err)
	}
	if again["instances_ended"] != 0 {
		t.Errorf("second call instances_ended = %v, want 0", again["instances_ended"])
	}
}

func TestStanddownRecordsDistinctEventName(t *testing.T) {
	rt := newTestRuntime(t, "mason")
	ctx := context.Background()

	rt.OpStore.SaveAgent(opstore.Agent{ID: "m1", AgentCode: "mason", InstanceID: "m1", State: opstore.AgentRunning, StartedAt: time.Now().UTC()})

	res, err := HerdStanddown(rt)(ctx, map[string]any{"agent_name": "mason"})
	if err != nil {
		t.Fatalf("herd_standdown: %v", err)
	}
	if res["instances_ended"] != 1 {
		t.Fatalf("instances_ended = %v", res["instances_ended"])
	}

	events, _ := rt.OpStore.Events(opstore.EventLifecycle, "m1")
	last := events[len(events)-1]
	if last.Data["event"] != "standdown" {
		t.Errorf("last event = %+v, want standdown", last.Data)
	}
}

// TestTransitionRecordsElapsedAndBlocked exercises herd_transition's
// event-type selection and elapsed-minutes computation across two
// consecutive transitions.
func TestTransitionRecordsElapsedAndBlocked(t *testing.T) {
	rt := newTestRuntime(t, "steve")
	ctx := context.Background()

	rt.OpStore.SaveTicket(opstore.Ticket{ID: "local-1", Title: "work", Status: "open"})

	res, err := HerdTransition(rt)(ctx, map[string]any{"ticket_id": "local-1", "to_status": "in_progress"})
	if err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if res["event_type"] != "status_changed" {
		t.Errorf("event_type = %v", res["event_type"])
	}

	res, err = HerdTransition(rt)(ctx, map[string]any{
		"ticket_id": "local-1", "to_status": "blocked", "blocked_by": "local-2",
	})
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if res["event_type"] != "blocked" {
		t.Errorf("event_type = %v, want blocked", res["event_type"])
	}
	tk, _ := rt.OpStore.GetTicket("local-1")
	if tk.Status != "blocked" || tk.BlockedBy != "local-2" {
		t.Errorf("ticket = %+v", tk)
	}

	events, _ := rt.OpStore.Events(opstore.EventTicket, "local-1")
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if _, ok := events[1].Data["elapsed_minutes"]; !ok {
		t.Errorf("second transition missing elapsed_minutes: %+v", events[1].Data)
	}
}

func TestMetricsUnknownQuery(t *testing.T) {
	rt := newTestRuntime(t, "steve")
	res, err := HerdMetrics(rt)(context.Background(), map[string]any{"query": "divination"})
	if err != nil {
		t.Fatalf("herd_metrics: %v", err)
	}
	errMsg, _ := res["error"].(string)
	if errMsg != "Unknown query: divination" {
		t.Errorf("error = %q", errMsg)
	}
	if _, ok := res["success"]; ok {
		t.Errorf("unknown query should not report success: %+v", res)
	}
}
