package handlers

import (
	"context"
	"time"

	"github.com/fleetherd/herd/internal/adapters"
	"github.com/fleetherd/herd/internal/opstore"
	"github.com/fleetherd/herd/internal/runtime"
)

// runningInstancesOf returns every non-stopped agent instance for agentCode,
// oldest first.
func runningInstancesOf(ctx context.Context, rt *runtime.Runtime, agentCode string) ([]opstore.Agent, error) {
	entities, err := rt.Adapters.Store.List(ctx, opstore.EntityAgent, opstore.Filter{
		Equals: map[string]string{"agent_code": agentCode},
	})
	if err != nil {
		return nil, err
	}
	var out []opstore.Agent
	for _, e := range entities {
		a := e.(opstore.Agent)
		if a.State != opstore.AgentStopped && a.State != opstore.AgentCompleted && a.State != opstore.AgentFailed {
			out = append(out, a)
		}
	}
	return out, nil
}

// endInstances flips every running instance to stopped, appends a lifecycle
// event per instance, and returns how many were actually ended — idempotent
// by construction, since a second call finds no running instances left.
func endInstances(ctx context.Context, rt *runtime.Runtime, instances []opstore.Agent, eventName, requestedBy string) int {
	now := time.Now().UTC()
	ended := 0
	for _, a := range instances {
		prev := a.State
		a.State = opstore.AgentStopped
		a.EndedAt = &now
		if _, err := rt.Adapters.Store.Save(ctx, a); err != nil {
			rt.Log.Warn("herd_decommission: save agent failed", "instance", a.InstanceID, "error", err)
			continue
		}
		rt.Adapters.Store.Append(ctx, opstore.Event{
			Type: opstore.EventLifecycle, EntityID: a.InstanceID, CreatedAt: now,
			Data: map[string]any{"event": eventName, "previous_state": string(prev), "requested_by": requestedBy},
		})
		ended++
	}
	return ended
}

// decommission is the shared body for herd_decommission and herd_standdown,
// which differ only in the lifecycle event name they record: both
// locate every running instance of the named agent and end it.
func decommission(rt *runtime.Runtime, eventName string) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		agentName := strArg(args, "agent_name")
		if agentName == "" {
			return errResult("%s: agent_name is required", eventName), nil
		}
		if rt.Adapters.Store == nil {
			return errResult("%s: %s", eventName, adapters.NotConfigured("store")), nil
		}
		caller := resolveCaller(ctx, rt, args)

		rt.Adapters.WriteLock.Lock()
		defer rt.Adapters.WriteLock.Unlock()

		instances, err := runningInstancesOf(ctx, rt, agentName)
		if err != nil {
			return errResult("%s: %v", eventName, err), nil
		}

		previousStatus := "stopped"
		if len(instances) > 0 {
			previousStatus = string(instances[0].State)
		}

		endedCount := endInstances(ctx, rt, instances, eventName, caller.Address())

		return okResult(map[string]any{
			"success":         true,
			"target_agent":    agentName,
			"previous_status": previousStatus,
			"new_status":      string(opstore.AgentStopped),
			"instances_ended": endedCount,
			"requested_by":    caller.Address(),
		}), nil
	}
}

// HerdDecommission implements herd_decommission: idempotent — calling
// it again after every instance is already stopped returns instances_ended
// == 0 rather than an error.
func HerdDecommission(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return decommission(rt, "decommissioned")
}

// HerdStanddown implements herd_standdown, the same operation under
// the name agents use to voluntarily end their own run.
func HerdStanddown(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return decommission(rt, "standdown")
}
