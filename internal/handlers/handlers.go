// Package handlers implements the herd_* tool operations: the
// coordination surface agents invoke over the transport. Every handler
// resolves caller identity, acquires whatever adapters it needs from the
// Runtime's Registry, and composes Store writes, Bus sends, Semantic
// Memory writes, and Graph updates — converting every error into the
// {success, error} result shape rather than propagating it across
// the transport boundary (the one exception being a Fatal-class
// programmer error, which the registrar itself turns into a transport
// 500, not any individual handler).
package handlers

import (
	"context"
	"fmt"
	"regexp"

	"github.com/fleetherd/herd/internal/adapters"
	"github.com/fleetherd/herd/internal/graph"
	"github.com/fleetherd/herd/internal/identity"
	"github.com/fleetherd/herd/internal/opstore"
	"github.com/fleetherd/herd/internal/runtime"
)

// errResult builds the standard failure shape: {success:false,
// error:"..."}. Handlers never panic or return a Go error for caller
// mistakes or backend faults — they return this map instead.
func errResult(format string, args ...any) map[string]any {
	return map[string]any{"success": false, "error": fmt.Sprintf(format, args...)}
}

func okResult(fields map[string]any) map[string]any {
	out := map[string]any{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func strArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

// resolveCaller applies the identity precedence using the Runtime's
// configured environment defaults, then ensures an Agent entity exists
// for the caller's instance id when one is present (first sight of an
// instance id registers it). Store lookup failures are logged,
// not surfaced — identity resolution never blocks a tool call.
func resolveCaller(ctx context.Context, rt *runtime.Runtime, args map[string]any) identity.Caller {
	explicit := strArg(args, "caller")
	env := identity.Env{
		AgentName:  rt.Config.AgentName,
		InstanceID: rt.Config.InstanceID,
		Team:       rt.Config.Team,
	}
	if team := strArg(args, "team"); team != "" {
		env.Team = team
	}
	caller := identity.Resolve(explicit, env)

	if err := identity.Ensure(ctx, rt.OpStore, caller); err != nil {
		rt.Log.Warn("identity: ensure failed", "caller", caller.Address(), "error", err)
	}
	return caller
}

// notifyBestEffort posts to the configured notification channel and
// never fails the calling tool: success/failure is reported back as a
// pair of (posted bool, errMsg string) the caller folds into its return
// payload.
func notifyBestEffort(ctx context.Context, rt *runtime.Runtime, channel, message string) (bool, string) {
	if rt.Adapters.Notify == nil {
		return false, "notify not configured"
	}
	if _, err := rt.Adapters.Notify.Post(ctx, message, channel, "", ""); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// trackerIDPattern matches the external tracker's ticket id format,
// e.g. "DBC-99". Ids outside this shape are local-only and never synced.
var trackerIDPattern = regexp.MustCompile(`^[A-Z]{2,8}-\d+$`)

func trackerSyncEligible(id string) bool {
	return trackerIDPattern.MatchString(id)
}

// ensureTicketRegistered fetches id from the tracker and registers it
// locally if the local Store doesn't already have it — the "auto-register
// from the tracker if needed" step common to herd_assign/herd_transition.
func ensureTicketRegistered(ctx context.Context, rt *runtime.Runtime, id string) (*opstore.Ticket, error) {
	if rt.Adapters.Store == nil {
		return nil, adapters.NotConfigured("store")
	}
	existing, err := rt.Adapters.Store.Get(ctx, opstore.EntityTicket, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		t := existing.(opstore.Ticket)
		return &t, nil
	}

	t := opstore.Ticket{ID: id, Title: id, Status: "open"}
	if rt.Adapters.Tickets != nil && trackerSyncEligible(id) {
		if snap, err := rt.Adapters.Tickets.Get(ctx, id); err == nil {
			t.Title = snap.Title
			t.Status = snap.Status
			t.Assignee = snap.Assignee
		}
	}
	if _, err := rt.Adapters.Store.Save(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// graphAgentKey mirrors the bus's own reader-key convention (instance
// id when present, else agent code) so Agent nodes merged here
// land on the same keys herd_checkin's AssignedTo restriction later
// parses back out of a checkin address via herd.ParseAddress.
func graphAgentKey(agentCode, instanceID string) string {
	if instanceID != "" {
		return instanceID
	}
	return agentCode
}

// mergeAgentGraphNode upserts an Agent node for agentCode/instanceID and
// returns the key it was merged under.
func mergeAgentGraphNode(rt *runtime.Runtime, agentCode, instanceID string) string {
	key := graphAgentKey(agentCode, instanceID)
	rt.Graph.MergeNode(graph.AgentNode, map[string]any{
		"id":          key,
		"agent_code":  agentCode,
		"instance_id": instanceID,
	})
	return key
}

// mergeTicketGraphNode upserts a Ticket node from an already-loaded,
// authoritative Ticket. MergeNode replaces non-key properties wholesale on
// every call, so this must only be used where the caller holds the real
// record — never a blank placeholder that would clobber prior data.
func mergeTicketGraphNode(rt *runtime.Runtime, t opstore.Ticket) {
	rt.Graph.MergeNode(graph.Ticket, map[string]any{
		"id":     t.ID,
		"title":  t.Title,
		"status": t.Status,
	})
}

// mergeTicketGraphNodeByID upserts a Ticket node from just an id, fetching
// the real entity first when the Store adapter is available so a
// ticket-by-id-only call site never overwrites real title/status with
// blanks.
func mergeTicketGraphNodeByID(ctx context.Context, rt *runtime.Runtime, id string) {
	if rt.Adapters.Store != nil {
		if existing, err := rt.Adapters.Store.Get(ctx, opstore.EntityTicket, id); err == nil && existing != nil {
			mergeTicketGraphNode(rt, existing.(opstore.Ticket))
			return
		}
	}
	rt.Graph.MergeNode(graph.Ticket, map[string]any{"id": id})
}
