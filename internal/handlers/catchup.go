package handlers

import (
	"context"
	"time"

	"github.com/fleetherd/herd/internal/adapters"
	"github.com/fleetherd/herd/internal/opstore"
	"github.com/fleetherd/herd/internal/runtime"
)

// maxCatchupWindow caps how far back herd_catchup looks.
const maxCatchupWindow = 7 * 24 * time.Hour

// lastEndedInstanceCutoff finds the most recent ended_at among the
// caller's own agent instances, capped at maxCatchupWindow.
func lastEndedInstanceCutoff(ctx context.Context, rt *runtime.Runtime, agent string) time.Time {
	now := time.Now().UTC()
	floor := now.Add(-maxCatchupWindow)
	if rt.Adapters.Store == nil {
		return floor
	}
	entities, err := rt.Adapters.Store.List(ctx, opstore.EntityAgent, opstore.Filter{
		Equals: map[string]string{"agent_code": agent},
	})
	if err != nil {
		return floor
	}
	var latest time.Time
	for _, e := range entities {
		a := e.(opstore.Agent)
		if a.EndedAt != nil && a.EndedAt.After(latest) {
			latest = *a.EndedAt
		}
	}
	if latest.IsZero() || latest.Before(floor) {
		return floor
	}
	return latest
}

// HerdCatchup implements herd_catchup: a summary of activity since
// the caller's most recent ended instance.
func HerdCatchup(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		caller := resolveCaller(ctx, rt, args)
		since := lastEndedInstanceCutoff(ctx, rt, caller.Agent)

		result := map[string]any{"since": since}
		lines := 0

		if rt.OpStore != nil {
			events, err := rt.OpStore.EventsSince(opstore.EventTicket, since)
			if err == nil {
				result["ticket_events"] = events
				lines += len(events)
			}
		}

		if rt.Adapters.Repo != nil {
			commits, err := rt.Adapters.Repo.GetLog(ctx, since, 50)
			if err != nil {
				result["git_log_error"] = err.Error()
			} else {
				result["git_log"] = commits
				lines += len(commits)
			}
		}

		if rt.Adapters.Tickets != nil {
			tix, err := rt.Adapters.Tickets.List(ctx, adapters.TicketFilter{Assignee: caller.Agent})
			if err == nil {
				result["assigned_tickets"] = tix
				lines += len(tix)
			}
		}

		decisions, err := decisionsSince(ctx, rt, caller.Agent, since)
		if err == nil {
			result["recent_decisions"] = decisions
			lines += len(decisions)
		}

		// Pending handoffs are thread-type memories addressed to this
		// agent; anything newer than the cutoff hasn't been picked up yet.
		if handoffs, err := rt.Semantic.Recall("handoff for "+caller.Agent, 10, map[string]string{
			"agent": caller.Agent, "memory_type": "thread",
		}); err == nil {
			pending := handoffs[:0]
			for _, h := range handoffs {
				if h.Record.CreatedAt.After(since) {
					pending = append(pending, h)
				}
			}
			result["pending_handoffs"] = pending
			lines += len(pending)
		}

		if threads, err := rt.Semantic.Recall("decisions "+caller.Agent, 10, map[string]string{"agent": caller.Agent}); err == nil {
			result["relevant_memory"] = threads
			lines += len(threads)
		}

		result["summary_line_count"] = lines
		return okResult(result), nil
	}
}

func decisionsSince(ctx context.Context, rt *runtime.Runtime, agent string, since time.Time) ([]opstore.Decision, error) {
	if rt.Adapters.Store == nil {
		return nil, nil
	}
	entities, err := rt.Adapters.Store.List(ctx, opstore.EntityDecision, opstore.Filter{Since: &since})
	if err != nil {
		return nil, err
	}
	var out []opstore.Decision
	for _, e := range entities {
		d := e.(opstore.Decision)
		if d.Author == agent {
			out = append(out, d)
		}
	}
	return out, nil
}
