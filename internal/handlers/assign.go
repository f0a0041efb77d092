package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetherd/herd/internal/adapters"
	"github.com/fleetherd/herd/internal/graph"
	"github.com/fleetherd/herd/internal/opstore"
	"github.com/fleetherd/herd/internal/runtime"
)

// latestRunningInstance finds the most recently started non-terminal
// agent instance for agentName, or "" if none.
func latestRunningInstance(ctx context.Context, rt *runtime.Runtime, agentName string) string {
	if rt.Adapters.Store == nil {
		return ""
	}
	entities, err := rt.Adapters.Store.List(ctx, opstore.EntityAgent, opstore.Filter{
		Equals: map[string]string{"agent_code": agentName},
	})
	if err != nil {
		return ""
	}
	var latest opstore.Agent
	found := false
	for _, e := range entities {
		a := e.(opstore.Agent)
		if a.State == opstore.AgentCompleted || a.State == opstore.AgentFailed || a.State == opstore.AgentStopped {
			continue
		}
		if !found || a.StartedAt.After(latest.StartedAt) {
			latest = a
			found = true
		}
	}
	if !found {
		return ""
	}
	return latest.InstanceID
}

// HerdAssign implements herd_assign.
func HerdAssign(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		ticketID := strArg(args, "ticket_id")
		agentName := strArg(args, "agent_name")
		priority := strArg(args, "priority")
		if ticketID == "" || agentName == "" {
			return errResult("herd_assign: ticket_id and agent_name are required"), nil
		}
		if rt.Adapters.Store == nil {
			return errResult("herd_assign: %s", adapters.NotConfigured("store")), nil
		}

		rt.Adapters.WriteLock.Lock()
		defer rt.Adapters.WriteLock.Unlock()

		ticket, err := ensureTicketRegistered(ctx, rt, ticketID)
		if err != nil {
			return errResult("herd_assign: %v", err), nil
		}

		ticket.Assignee = agentName
		ticket.Status = "assigned"
		if priority != "" {
			ticket.Priority = priority
		}
		if _, err := rt.Adapters.Store.Save(ctx, *ticket); err != nil {
			return errResult("herd_assign: save ticket: %v", err), nil
		}
		rt.Adapters.Store.Append(ctx, opstore.Event{
			Type: opstore.EventTicket, EntityID: ticketID, CreatedAt: time.Now().UTC(),
			Data: map[string]any{"event": "assigned", "agent_name": agentName, "priority": priority},
		})

		instanceCode := latestRunningInstance(ctx, rt, agentName)

		agentKey := mergeAgentGraphNode(rt, agentName, instanceCode)
		mergeTicketGraphNode(rt, *ticket)
		if _, err := rt.Graph.CreateEdge(graph.AssignedTo, graph.AgentNode, agentKey, graph.Ticket, ticket.ID, nil); err != nil {
			rt.Log.Warn("herd_assign: graph edge failed", "error", err)
		}

		linearSynced := false
		var note string
		if rt.Adapters.Tickets != nil && trackerSyncEligible(ticketID) {
			if err := rt.Adapters.Tickets.Update(ctx, ticketID, map[string]string{"assignee": agentName}); err != nil {
				note = "tracker sync failed: " + err.Error()
			} else {
				linearSynced = true
			}
		}

		result := map[string]any{
			"assigned": true,
			"agent":    agentName,
			"ticket": map[string]any{
				"id":    ticket.ID,
				"title": ticket.Title,
			},
			"linear_synced": linearSynced,
		}
		if instanceCode != "" {
			result["agent_instance_code"] = instanceCode
		}
		if note != "" {
			result["note"] = note
		}
		return okResult(result), nil
	}
}

// trackerStatusMap maps internal ticket statuses to tracker-recognized
// identifiers; unrecognized values skip the sync silently.
var trackerStatusMap = map[string]string{
	"open":        "Todo",
	"assigned":    "Todo",
	"in_progress": "In Progress",
	"in_review":   "In Review",
	"blocked":     "Blocked",
	"done":        "Done",
}

// HerdTransition implements herd_transition.
func HerdTransition(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		ticketID := strArg(args, "ticket_id")
		toStatus := strArg(args, "to_status")
		if ticketID == "" || toStatus == "" {
			return errResult("herd_transition: ticket_id and to_status are required"), nil
		}
		if rt.Adapters.Store == nil {
			return errResult("herd_transition: %s", adapters.NotConfigured("store")), nil
		}
		blockedBy := strArg(args, "blocked_by")
		note := strArg(args, "note")

		rt.Adapters.WriteLock.Lock()
		defer rt.Adapters.WriteLock.Unlock()

		ticket, err := ensureTicketRegistered(ctx, rt, ticketID)
		if err != nil {
			return errResult("herd_transition: %v", err), nil
		}

		eventType := "status_changed"
		if toStatus == "blocked" {
			eventType = "blocked"
		}

		previousStatus := ticket.Status
		now := time.Now().UTC()

		var elapsedMinutes *float64
		if timeline, err := rt.Queries.TicketTimeline(ticketID); err == nil && len(timeline) > 0 {
			last := timeline[len(timeline)-1].CreatedAt
			mins := now.Sub(last).Minutes()
			elapsedMinutes = &mins
		}

		eventData := map[string]any{
			"event_type":      eventType,
			"previous_status": previousStatus,
			"new_status":      toStatus,
		}
		if blockedBy != "" {
			eventData["blocked_by"] = blockedBy
		}
		if note != "" {
			eventData["note"] = note
		}
		if elapsedMinutes != nil {
			eventData["elapsed_minutes"] = *elapsedMinutes
		}

		transitionID := fmt.Sprintf("%s-%d", ticketID, now.UnixNano())
		if err := rt.Adapters.Store.Append(ctx, opstore.Event{
			Type: opstore.EventTicket, EntityID: ticketID, CreatedAt: now, Data: eventData,
		}); err != nil {
			return errResult("herd_transition: append event: %v", err), nil
		}

		ticket.Status = toStatus
		ticket.BlockedBy = blockedBy
		if _, err := rt.Adapters.Store.Save(ctx, *ticket); err != nil {
			return errResult("herd_transition: save ticket: %v", err), nil
		}

		result := map[string]any{
			"transition_id": transitionID,
			"ticket": map[string]any{
				"id":              ticket.ID,
				"previous_status": previousStatus,
				"new_status":      toStatus,
			},
			"event_type": eventType,
		}

		if rt.Adapters.Tickets != nil && trackerSyncEligible(ticketID) {
			if _, ok := trackerStatusMap[toStatus]; ok {
				if _, err := rt.Adapters.Tickets.Transition(ctx, ticketID, toStatus, note, blockedBy); err != nil {
					result["linear_sync_error"] = err.Error()
				} else {
					result["linear_synced"] = true
				}
			}
		}
		return okResult(result), nil
	}
}
