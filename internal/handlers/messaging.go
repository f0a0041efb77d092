package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetherd/herd"
	"github.com/fleetherd/herd/internal/identity"
	"github.com/fleetherd/herd/internal/runtime"
)

// HerdSend implements herd_send: parse the destination, build a
// canonical from-address out of caller identity, and enqueue on the bus.
// It never blocks on delivery — Bus.Send itself is best-effort on the
// mirror write.
func HerdSend(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		to := strArg(args, "to")
		body := strArg(args, "message")
		if to == "" || body == "" {
			return errResult("herd_send: to and message are required"), nil
		}

		caller := resolveCaller(ctx, rt, args)
		from := strArg(args, "from")
		if from == "" {
			from = caller.Address()
		}

		typ := herd.MessageType(strArg(args, "type"))
		if typ == "" {
			typ = herd.MessageInform
		}
		switch typ {
		case herd.MessageDirective, herd.MessageInform, herd.MessageFlag:
		default:
			return errResult("herd_send: unknown message type %q", typ), nil
		}
		priority := herd.Priority(strArg(args, "priority"))
		if priority == "" {
			priority = herd.PriorityNormal
		}
		switch priority {
		case herd.PriorityNormal, herd.PriorityUrgent:
		default:
			return errResult("herd_send: unknown priority %q", priority), nil
		}

		m := rt.Bus.Send(from, to, body, typ, priority)
		return okResult(map[string]any{
			"message_id": m.ID,
			"delivered":  true,
			"type":       string(m.Type),
			"priority":   string(m.Priority),
		}), nil
	}
}

// filterByTier keeps only messages whose type is in tier's allowed set.
func filterByTier(msgs []herd.Message, tier herd.Tier) []herd.Message {
	allowed := tier.AllowedMessageTypes()
	out := make([]herd.Message, 0, len(msgs))
	for _, m := range msgs {
		if allowed[m.Type] {
			out = append(out, m)
		}
	}
	return out
}

// HerdCheckin implements herd_checkin: the canonical pull point.
// Records a heartbeat, drains the bus, filters by tier, and optionally
// assembles a context pane of active peers.
func HerdCheckin(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		status := strArg(args, "status")
		caller := resolveCaller(ctx, rt, args)
		tier := herd.ClassifyTier(caller.Agent)

		ticket := strArg(args, "ticket")
		entry := rt.Checkins.Record(caller.Address(), status, caller.Agent, caller.Team, ticket)

		msgs := rt.Bus.Read(caller.Agent, caller.InstanceID, caller.Team)
		msgs = filterByTier(msgs, tier)

		result := map[string]any{
			"messages":      msgs,
			"heartbeat_ack": true,
		}

		budget := tier.ContextBudget()
		if budget > 0 {
			result["context"] = buildContextPane(rt, caller, entry, budget)
		} else {
			result["context"] = nil
		}
		return okResult(result), nil
	}
}

// peerGraphKey reduces a checkin registry address (agent[.instance][@team])
// to the same key mergeAgentGraphNode merges Agent nodes under: instance id
// when present, else agent code — the convention the bus's reader key
// already uses.
func peerGraphKey(addr string) string {
	a := herd.ParseAddress(addr)
	if a.Instance != "" {
		return a.Instance
	}
	return a.Agent
}

// buildContextPane renders the checkin context pane: active peers on the caller's
// team, optionally restricted via the structural graph's AssignedTo edge
// to the caller's current ticket, rendered and truncated to budget*4 chars.
func buildContextPane(rt *runtime.Runtime, caller identity.Caller, self herd.CheckinEntry, budget int) any {
	active := rt.Checkins.GetActive(caller.Team)
	delete(active, caller.Address())
	if len(active) == 0 {
		return nil
	}

	if rt.Graph.IsAvailable() && self.Ticket != "" {
		assigned := rt.Graph.Incoming("AssignedTo", "Ticket", self.Ticket, "Agent")
		if len(assigned) > 0 {
			allowed := make(map[string]bool, len(assigned))
			for _, n := range assigned {
				allowed[n.ID] = true
			}
			for addr := range active {
				if !allowed[peerGraphKey(addr)] {
					delete(active, addr)
				}
			}
		}
	}

	if len(active) == 0 {
		return nil
	}

	lines := make([]string, 0, len(active))
	for addr, e := range active {
		tag := rt.Checkins.Staleness(addr)
		if tag != "" {
			lines = append(lines, fmt.Sprintf("%s (%s): %s", addr, tag, e.StatusText))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", addr, e.StatusText))
		}
	}

	text := strings.Join(lines, ". ") + fmt.Sprintf(". %d agents active.", len(active)+1)
	limit := budget * 4
	if len(text) > limit {
		text = text[:limit] + "..."
	}
	return text
}

// HerdGetMessages implements herd_get_messages: a drain-only
// variant of checkin — no heartbeat, no context pane.
func HerdGetMessages(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		caller := resolveCaller(ctx, rt, args)
		tier := herd.ClassifyTier(caller.Agent)
		msgs := filterByTier(rt.Bus.Read(caller.Agent, caller.InstanceID, caller.Team), tier)
		return okResult(map[string]any{
			"agent":    caller.Address(),
			"messages": msgs,
			"count":    len(msgs),
		}), nil
	}
}
