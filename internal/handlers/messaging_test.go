package handlers

import (
	"context"
	"testing"

	"github.com/fleetherd/herd"
)

// TestSendAndDrainDirect: one send through the tool handlers to a named
// agent, one drain that returns it, and a second drain that comes back
// empty.
func TestSendAndDrainDirect(t *testing.T) {
	rt := newTestRuntime(t, "steve")
	ctx := context.Background()

	sendRes, err := HerdSend(rt)(ctx, map[string]any{
		"to": "mason", "message": "build DBC-99", "type": "directive",
	})
	if err != nil {
		t.Fatalf("herd_send: %v", err)
	}
	if sendRes["success"] != true || sendRes["delivered"] != true {
		t.Fatalf("send result = %+v", sendRes)
	}
	if sendRes["message_id"] == "" {
		t.Error("send result missing message_id")
	}

	drainRes, err := HerdGetMessages(rt)(ctx, map[string]any{"caller": "mason"})
	if err != nil {
		t.Fatalf("herd_get_messages: %v", err)
	}
	msgs, _ := drainRes["messages"].([]herd.Message)
	if len(msgs) != 1 || msgs[0].Body != "build DBC-99" {
		t.Fatalf("first drain = %+v, want the sent message", msgs)
	}

	again, err := HerdGetMessages(rt)(ctx, map[string]any{"caller": "mason"})
	if err != nil {
		t.Fatalf("herd_get_messages again: %v", err)
	}
	if count, _ := again["count"].(int); count != 0 {
		t.Errorf("second drain count = %v, want 0", again["count"])
	}
}

// TestAnyoneSkipsMechanicalCallers: rook (mechanical) never claims an
// @anyone message, the first non-mechanical reader does, and later
// readers find nothing.
func TestAnyoneSkipsMechanicalCallers(t *testing.T) {
	rt := newTestRuntime(t, "steve")
	ctx := context.Background()

	if _, err := HerdSend(rt)(ctx, map[string]any{
		"to": "@anyone", "message": "take this", "type": "directive",
	}); err != nil {
		t.Fatalf("herd_send: %v", err)
	}

	rookRes, _ := HerdGetMessages(rt)(ctx, map[string]any{"caller": "rook"})
	if msgs, _ := rookRes["messages"].([]herd.Message); len(msgs) != 0 {
		t.Fatalf("rook drained %+v, mechanical agents never match @anyone", msgs)
	}

	masonRes, _ := HerdGetMessages(rt)(ctx, map[string]any{"caller": "mason"})
	if msgs, _ := masonRes["messages"].([]herd.Message); len(msgs) != 1 {
		t.Fatalf("mason drained %+v, want the @anyone message", msgs)
	}

	frescoRes, _ := HerdGetMessages(rt)(ctx, map[string]any{"caller": "fresco"})
	if msgs, _ := frescoRes["messages"].([]herd.Message); len(msgs) != 0 {
		t.Fatalf("fresco drained %+v, message was already consumed", msgs)
	}
}

func TestSendRejectsUnknownEnums(t *testing.T) {
	rt := newTestRuntime(t, "steve")
	ctx := context.Background()

	res, err := HerdSend(rt)(ctx, map[string]any{
		"to": "mason", "message": "x", "type": "shout",
	})
	if err != nil {
		t.Fatalf("herd_send: %v", err)
	}
	if res["success"] != false {
		t.Fatalf("result = %+v, want success=false for unknown type", res)
	}

	res, err = HerdSend(rt)(ctx, map[string]any{
		"to": "mason", "message": "x", "priority": "asap",
	})
	if err != nil {
		t.Fatalf("herd_send: %v", err)
	}
	if res["success"] != false {
		t.Fatalf("result = %+v, want success=false for unknown priority", res)
	}

	// Nothing should have reached the bus.
	if msgs := rt.Bus.Read("mason", "", ""); len(msgs) != 0 {
		t.Errorf("bus has %+v, rejected sends must not enqueue", msgs)
	}
}

func TestSendRequiresToAndMessage(t *testing.T) {
	rt := newTestRuntime(t, "steve")
	res, err := HerdSend(rt)(context.Background(), map[string]any{"to": "mason"})
	if err != nil {
		t.Fatalf("herd_send: %v", err)
	}
	if res["success"] != false {
		t.Fatalf("result = %+v, want success=false for missing message", res)
	}
}
