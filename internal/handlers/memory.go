package handlers

import (
	"context"

	"github.com/fleetherd/herd/internal/runtime"
	"github.com/fleetherd/herd/internal/semantic"
)

// HerdRemember implements herd_remember: a thin wrapper over
// Semantic Memory's Store.
func HerdRemember(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		content := strArg(args, "content")
		memType := semantic.MemoryType(strArg(args, "memory_type"))
		if content == "" || memType == "" {
			return errResult("herd_remember: content and memory_type are required"), nil
		}
		caller := resolveCaller(ctx, rt, args)

		var metadata map[string]any
		if m, ok := args["metadata"].(map[string]any); ok {
			metadata = m
		}

		id, err := rt.Semantic.Store(semantic.StoreParams{
			Project:    rt.Config.ProjectPath,
			Agent:      strArg(args, "agent"),
			MemoryType: memType,
			Content:    content,
			SessionID:  strArg(args, "session_id"),
			Summary:    strArg(args, "summary"),
			Repo:       strArg(args, "repo"),
			Org:        rt.Config.Org,
			Team:       caller.Team,
			Host:       rt.Config.Host,
			Metadata:   metadata,
		})
		if err != nil {
			return errResult("herd_remember: %v", err), nil
		}
		return okResult(map[string]any{"memory_id": id}), nil
	}
}

// HerdRecall implements herd_recall: a thin wrapper over Semantic
// Memory's Recall.
func HerdRecall(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		query := strArg(args, "query")
		if query == "" {
			return errResult("herd_recall: query is required"), nil
		}
		limit := intArg(args, "limit", 5)

		filters := map[string]string{}
		for _, key := range []string{"project", "agent", "memory_type", "repo", "session_id", "org", "team", "host"} {
			if v := strArg(args, key); v != "" {
				filters[key] = v
			}
		}

		results, err := rt.Semantic.Recall(query, limit, filters)
		if err != nil {
			return errResult("herd_recall: %v", err), nil
		}

		rows := make([]map[string]any, 0, len(results))
		for _, r := range results {
			rows = append(rows, map[string]any{
				"id":          r.Record.ID,
				"content":     r.Record.Content,
				"summary":     r.Record.Summary,
				"memory_type": r.Record.MemoryType,
				"agent":       r.Record.Agent,
				"created_at":  r.Record.CreatedAt,
				"distance":    r.Distance,
			})
		}
		return okResult(map[string]any{"results": rows}), nil
	}
}
