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
)

// resolveAgentCode accepts either a role name or an agent code and returns
// the agent code to use — both are the same namespace in this runtime, so
// the only mapping is trimming surrounding space and lowercasing.
func resolveAgentCode(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// assembleSpawnContext composes the briefing bundle handed to a
// ticket-bound spawn: role definition, craft-standards slice, project guidelines, ticket
// brief, working-directory directive, git-safety directive, and
// notification token — falling back to a placeholder wherever a file is
// missing (the roles.Store itself implements the per-file fallback).
func assembleSpawnContext(rt *runtime.Runtime, agent string, ticket *opstore.Ticket, worktree, branch string) string {
	var b strings.Builder
	b.WriteString(rt.Roles.RoleDefinition(agent))
	b.WriteString("\n\n")
	b.WriteString(rt.Roles.ExtractCraftSection(agent))
	b.WriteString("\n\n")
	b.WriteString(rt.Roles.ProjectGuidelines())
	b.WriteString("\n\n")
	if ticket != nil {
		fmt.Fprintf(&b, "## Assignment\n%s: %s\n\n", ticket.ID, ticket.Title)
	}
	if worktree != "" {
		fmt.Fprintf(&b, "## Workspace\nworktree: %s\nbranch: %s\n\n", worktree, branch)
	}
	if skills := rt.Roles.InstalledSkills(); len(skills) > 0 {
		b.WriteString("## Installed skills\n")
		for _, sk := range skills {
			fmt.Fprintf(&b, "- %s\n", sk)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Git safety\nNever push to main. Never merge your own pull request.\n\n")
	if rt.Config.APIToken != "" {
		fmt.Fprintf(&b, "## Notification token\n%s\n", rt.Config.APIToken)
	}
	return b.String()
}

// HerdSpawn implements herd_spawn: ticket-bound single spawn when
// ticket_id is set and count==1, bare-roster spawn otherwise.
func HerdSpawn(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		role := strArg(args, "role")
		if role == "" {
			return errResult("herd_spawn: role is required"), nil
		}
		agent := resolveAgentCode(role)
		model := strArg(args, "model")
		ticketID := strArg(args, "ticket_id")
		count := intArg(args, "count", 1)
		caller := resolveCaller(ctx, rt, args)

		if ticketID != "" && count == 1 {
			return spawnTicketBound(ctx, rt, agent, model, ticketID, caller.Address())
		}
		return spawnBareRoster(ctx, rt, agent, model, count, caller.Address())
	}
}

func spawnTicketBound(ctx context.Context, rt *runtime.Runtime, agent, model, ticketID, spawnedBy string) (map[string]any, error) {
	if rt.Adapters.Store == nil {
		return errResult("herd_spawn: %s", adapters.NotConfigured("store")), nil
	}

	rt.Adapters.WriteLock.Lock()
	defer rt.Adapters.WriteLock.Unlock()

	ticket, err := ensureTicketRegistered(ctx, rt, ticketID)
	if err != nil {
		return errResult("herd_spawn: register ticket %s: %v", ticketID, err), nil
	}

	instanceID := uuid.NewString()
	lower := strings.ToLower(ticketID)
	branch := fmt.Sprintf("herd/%s/%s-herd-spawn", agent, lower)
	worktreePath := fmt.Sprintf("/private/tmp/%s-%s", agent, lower)

	var worktree string
	if rt.Adapters.Repo != nil {
		if _, err := rt.Adapters.Repo.CreateBranch(ctx, branch, "main"); err != nil {
			rt.Log.Warn("herd_spawn: create branch failed", "branch", branch, "error", err)
		}
		if wt, err := rt.Adapters.Repo.CreateWorktree(ctx, branch, worktreePath); err != nil {
			rt.Log.Warn("herd_spawn: create worktree failed", "path", worktreePath, "error", err)
		} else {
			worktree = wt
		}
	}

	now := time.Now().UTC()
	a := opstore.Agent{
		ID:         instanceID,
		AgentCode:  agent,
		InstanceID: instanceID,
		State:      opstore.AgentRunning,
		TicketID:   ticketID,
		Model:      model,
		Worktree:   worktree,
		Branch:     branch,
		SpawnedBy:  spawnedBy,
		StartedAt:  now,
	}
	if _, err := rt.Adapters.Store.Save(ctx, a); err != nil {
		return errResult("herd_spawn: save agent: %v", err), nil
	}
	rt.Adapters.Store.Append(ctx, opstore.Event{
		Type: opstore.EventLifecycle, EntityID: instanceID, CreatedAt: now,
		Data: map[string]any{"event": "spawned", "ticket_id": ticketID, "agent_code": agent},
	})

	ticket.Status = "in_progress"
	rt.Adapters.Store.Save(ctx, *ticket)

	agentKey := mergeAgentGraphNode(rt, agent, instanceID)
	mergeTicketGraphNode(rt, *ticket)
	if _, err := rt.Graph.CreateEdge(graph.AssignedTo, graph.AgentNode, agentKey, graph.Ticket, ticket.ID, nil); err != nil {
		rt.Log.Warn("herd_spawn: graph edge failed", "error", err)
	}

	linearSynced := false
	if rt.Adapters.Tickets != nil && trackerSyncEligible(ticketID) {
		if _, err := rt.Adapters.Tickets.Transition(ctx, ticketID, "in_progress", "spawned "+instanceID, ""); err == nil {
			linearSynced = true
		}
	}

	contextPayload := assembleSpawnContext(rt, agent, ticket, worktree, branch)

	return okResult(map[string]any{
		"agents":          []string{instanceID},
		"worktree_path":   worktree,
		"branch_name":     branch,
		"context_payload": contextPayload,
		"linear_synced":   linearSynced,
	}), nil
}

func spawnBareRoster(ctx context.Context, rt *runtime.Runtime, agent, model string, count int, spawnedBy string) (map[string]any, error) {
	if count <= 0 {
		count = 1
	}
	if rt.Adapters.Store == nil {
		return errResult("herd_spawn: %s", adapters.NotConfigured("store")), nil
	}

	rt.Adapters.WriteLock.Lock()
	defer rt.Adapters.WriteLock.Unlock()

	instances := make([]string, 0, count)
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		instanceID := uuid.NewString()
		a := opstore.Agent{
			ID: instanceID, AgentCode: agent, InstanceID: instanceID,
			State: opstore.AgentRunning, Model: model, SpawnedBy: spawnedBy, StartedAt: now,
		}
		if _, err := rt.Adapters.Store.Save(ctx, a); err != nil {
			return errResult("herd_spawn: save agent: %v", err), nil
		}
		rt.Adapters.Store.Append(ctx, opstore.Event{
			Type: opstore.EventLifecycle, EntityID: instanceID, CreatedAt: now,
			Data: map[string]any{"event": "spawned", "agent_code": agent},
		})
		instances = append(instances, instanceID)
	}

	return okResult(map[string]any{"agents": instances}), nil
}
