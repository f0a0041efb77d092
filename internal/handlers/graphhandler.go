package handlers

import (
	"context"

	"github.com/fleetherd/herd/internal/runtime"
)

// HerdGraph implements herd_graph: a thin wrapper over the
// Structural Graph's Query.
func HerdGraph(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		query := strArg(args, "query")
		if query == "" {
			return errResult("herd_graph: query is required"), nil
		}
		if !rt.Graph.IsAvailable() {
			return errResult("herd_graph: graph backend unavailable"), nil
		}

		var params map[string]any
		if p, ok := args["params"].(map[string]any); ok {
			params = p
		}

		rows, err := rt.Graph.Query(query, params)
		if err != nil {
			return errResult("herd_graph: %v", err), nil
		}
		return okResult(map[string]any{"rows": rows, "count": len(rows)}), nil
	}
}
