package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetherd/herd/internal/adapters"
	"github.com/fleetherd/herd/internal/graph"
	"github.com/fleetherd/herd/internal/opstore"
	"github.com/fleetherd/herd/internal/runtime"
	"github.com/fleetherd/herd/internal/semantic"
)

// HerdRecordDecision implements herd_record_decision.
func HerdRecordDecision(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		decisionType := strArg(args, "decision_type")
		decisionCtx := strArg(args, "context")
		decision := strArg(args, "decision")
		rationale := strArg(args, "rationale")
		if decisionType == "" || decision == "" {
			return errResult("herd_record_decision: decision_type and decision are required"), nil
		}
		if rt.Adapters.Store == nil {
			return errResult("herd_record_decision: %s", adapters.NotConfigured("store")), nil
		}
		caller := resolveCaller(ctx, rt, args)

		hdrNumber, err := rt.Semantic.NextHDRNumber()
		if err != nil {
			rt.Log.Warn("herd_record_decision: hdr numbering failed", "error", err)
		}

		id := uuid.NewString()
		now := time.Now().UTC()
		rec := opstore.Decision{
			ID: id, HDRNumber: hdrNumber, Type: decisionType, Context: decisionCtx,
			Decision: decision, Rationale: rationale, Author: caller.Address(),
			TicketCode: strArg(args, "ticket_code"), CreatedAt: now,
		}
		if _, err := rt.Adapters.Store.Save(ctx, rec); err != nil {
			return errResult("herd_record_decision: save: %v", err), nil
		}

		rt.Graph.MergeNode(graph.Decision, map[string]any{
			"id": id, "hdr_number": hdrNumber, "decision_type": decisionType,
		})
		if rec.TicketCode != "" {
			mergeTicketGraphNodeByID(ctx, rt, rec.TicketCode)
			if _, err := rt.Graph.CreateEdge(graph.Decides, graph.Decision, id, graph.Ticket, rec.TicketCode, nil); err != nil {
				rt.Log.Warn("herd_record_decision: graph edge failed", "error", err)
			}
		}

		meta := map[string]any{"hdr_number": hdrNumber, "ticket_code": rec.TicketCode}
		_, err = rt.Semantic.Store(semantic.StoreParams{
			Agent:      caller.Agent,
			MemoryType: semantic.DecisionContext,
			Content:    decision + "\n" + rationale,
			Summary:    decisionType + ": " + decision,
			Metadata:   meta,
		})
		if err != nil {
			rt.Log.Warn("herd_record_decision: semantic memory write failed", "error", err)
		}

		body := fmt.Sprintf("**%s** (%s)\n%s\n\n_%s_", hdrNumber, decisionType, decision, rationale)
		posted, postErr := notifyBestEffort(ctx, rt, "decisions", body)

		result := map[string]any{
			"decision_id":     id,
			"hdr_number":      hdrNumber,
			"posted_to_slack": posted,
		}
		if !posted && postErr != "" {
			result["error"] = postErr
		}
		return okResult(result), nil
	}
}

// HerdAssume implements herd_assume: composes an identity prompt
// from the role store and recent activity; unknown agents return a
// structured error naming valid agents.
func HerdAssume(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		agentName := strings.ToLower(strings.TrimSpace(strArg(args, "agent_name")))
		if agentName == "" {
			return errResult("herd_assume: agent_name is required"), nil
		}

		known := rt.Roles.KnownAgents()
		isKnown := false
		for _, k := range known {
			if k == agentName {
				isKnown = true
				break
			}
		}
		if !isKnown {
			return map[string]any{
				"success":      false,
				"error":        fmt.Sprintf("unknown agent %q", agentName),
				"known_agents": known,
			}, nil
		}

		var b strings.Builder
		b.WriteString(rt.Roles.RoleDefinition(agentName))
		b.WriteString("\n\n")
		b.WriteString(rt.Roles.ExtractCraftSection(agentName))
		b.WriteString("\n\n")
		b.WriteString(rt.Roles.ProjectGuidelines())
		b.WriteString("\n\n")

		if status := rt.Roles.StatusDocument(); status != "" {
			b.WriteString("## Current status\n")
			b.WriteString(status)
			b.WriteString("\n\n")
		}

		if rt.Adapters.Repo != nil {
			if commits, err := rt.Adapters.Repo.GetLog(ctx, time.Time{}, 10); err == nil {
				b.WriteString("## Recent commits\n")
				for _, c := range commits {
					fmt.Fprintf(&b, "- %s %s\n", c.SHA[:min(8, len(c.SHA))], c.Message)
				}
				b.WriteString("\n")
			}
		}

		if rt.Adapters.Tickets != nil {
			if tix, err := rt.Adapters.Tickets.List(ctx, adapters.TicketFilter{Assignee: agentName}); err == nil {
				b.WriteString("## Assigned tickets\n")
				for _, t := range tix {
					fmt.Fprintf(&b, "- %s: %s [%s]\n", t.ID, t.Title, t.Status)
				}
				b.WriteString("\n")
			}
		}

		if handoffs, err := rt.Semantic.Recall("handoff for "+agentName, 5, map[string]string{
			"agent": agentName, "memory_type": "thread",
		}); err == nil && len(handoffs) > 0 {
			b.WriteString("## Pending handoffs\n")
			for _, h := range handoffs {
				summary := h.Record.Summary
				if summary == "" {
					summary = h.Record.Content
				}
				fmt.Fprintf(&b, "- %s\n", summary)
			}
			b.WriteString("\n")
		}

		if rt.Adapters.Store != nil {
			entities, err := rt.Adapters.Store.List(ctx, opstore.EntityDecision, opstore.Filter{
				Equals: map[string]string{"author": agentName},
			})
			if err == nil && len(entities) > 0 {
				b.WriteString("## Recent decisions\n")
				for _, e := range entities {
					d := e.(opstore.Decision)
					fmt.Fprintf(&b, "- %s: %s\n", d.HDRNumber, d.Decision)
				}
				b.WriteString("\n")
			}
		}

		b.WriteString("## Session protocol\nCheck in with herd_checkin before starting work; check in again on any blocker.\n")

		return okResult(map[string]any{"prompt": b.String()}), nil
	}
}
