package handlers

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetherd/herd/internal/opstore"
	"github.com/fleetherd/herd/internal/runtime"
)

// resolvePeriod turns a period string into a since-timestamp. Recognized
// values: today, this_week, this_sprint (last 14 days),
// last_30d, or an ISO "start..end" range (only the start is honored here
// since every Queries method in this runtime is since-based, not ranged).
func resolvePeriod(period string, now time.Time) time.Time {
	switch period {
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case "this_week":
		return now.AddDate(0, 0, -7)
	case "this_sprint":
		return now.AddDate(0, 0, -14)
	case "last_30d":
		return now.AddDate(0, 0, -30)
	case "":
		return now.AddDate(0, 0, -30)
	default:
		if idx := strings.Index(period, ".."); idx >= 0 {
			if t, err := time.Parse(time.RFC3339, period[:idx]); err == nil {
				return t
			}
		}
		return now.AddDate(0, 0, -30)
	}
}

// HerdMetrics implements herd_metrics: recognized query names with
// their aliases, composed entirely out of opstore.Queries results.
func HerdMetrics(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		query := strArg(args, "query")
		period := strArg(args, "period")
		since := resolvePeriod(period, time.Now().UTC())

		switch query {
		case "cost_per_ticket", "token_costs":
			return metricsCostPerTicket(rt, since)
		case "agent_performance":
			return metricsAgentPerformance(rt)
		case "model_efficiency":
			return metricsModelEfficiency(rt, since)
		case "review_effectiveness", "review_stats":
			return metricsReviewEffectiveness(rt, since)
		case "sprint_velocity", "velocity":
			return metricsSprintVelocity(rt)
		case "pipeline_efficiency":
			return metricsPipelineEfficiency(rt)
		case "headline":
			return metricsHeadline(rt, since)
		default:
			return map[string]any{"error": "Unknown query: " + query}, nil
		}
	}
}

// costSummaryPayload renders a CostSummary into the cost-summary wire
// shape: {total_tokens, total_cost_usd, by_agent, by_model,
// period_start}, plus the legacy per-dimension totals herd_metrics callers
// already depend on.
func costSummaryPayload(sum opstore.CostSummary) map[string]any {
	modelKeys := make([]string, 0, len(sum.ByModel))
	for k := range sum.ByModel {
		modelKeys = append(modelKeys, k)
	}
	sort.Strings(modelKeys)
	byModel := make(map[string]any, len(modelKeys))
	for _, k := range modelKeys {
		mc := sum.ByModel[k]
		byModel[k] = map[string]any{
			"input_tokens":  mc.InputTokens,
			"output_tokens": mc.OutputTokens,
			"cache_read":    mc.CacheRead,
			"cache_create":  mc.CacheCreate,
			"total_cost":    mc.TotalCost.StringFixed(6),
		}
	}

	agentKeys := make([]string, 0, len(sum.ByAgent))
	for k := range sum.ByAgent {
		agentKeys = append(agentKeys, k)
	}
	sort.Strings(agentKeys)
	byAgent := make(map[string]any, len(agentKeys))
	for _, k := range agentKeys {
		ac := sum.ByAgent[k]
		byAgent[k] = map[string]any{
			"input_tokens":  ac.InputTokens,
			"output_tokens": ac.OutputTokens,
			"cache_read":    ac.CacheRead,
			"cache_create":  ac.CacheCreate,
			"total_cost":    ac.TotalCost.StringFixed(6),
		}
	}

	return map[string]any{
		"total_tokens":   sum.InputTokens + sum.OutputTokens + sum.CacheRead + sum.CacheCreate,
		"total_cost_usd": sum.TotalCost.StringFixed(6),
		"by_agent":       byAgent,
		"by_model":       byModel,
		"period_start":   sum.PeriodStart,
	}
}

func metricsCostPerTicket(rt *runtime.Runtime, since time.Time) (map[string]any, error) {
	sum, err := rt.Queries.CostSummarySince(since)
	if err != nil {
		return errResult("herd_metrics: cost summary: %v", err), nil
	}
	result := costSummaryPayload(sum)
	result["input_tokens"] = sum.InputTokens
	result["output_tokens"] = sum.OutputTokens
	result["cache_read"] = sum.CacheRead
	result["cache_create"] = sum.CacheCreate
	result["total_cost"] = sum.TotalCost.StringFixed(6)
	return okResult(result), nil
}

func metricsAgentPerformance(rt *runtime.Runtime) (map[string]any, error) {
	active, err := rt.Queries.ActiveAgents()
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}
	rows := make([]map[string]any, 0, len(active))
	for _, a := range active {
		row := map[string]any{
			"agent_code":  a.Agent.AgentCode,
			"instance_id": a.Agent.InstanceID,
			"state":       string(a.Agent.State),
			"ticket_id":   a.Agent.TicketID,
			"started_at":  a.Agent.StartedAt,
		}
		if a.LastEvent != nil {
			row["last_event"] = *a.LastEvent
		}
		rows = append(rows, row)
	}
	return okResult(map[string]any{"agents": rows}), nil
}

func metricsModelEfficiency(rt *runtime.Runtime, since time.Time) (map[string]any, error) {
	sum, err := rt.Queries.CostSummarySince(since)
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}

	modelKeys := make([]string, 0, len(sum.ByModel))
	for k := range sum.ByModel {
		modelKeys = append(modelKeys, k)
	}
	sort.Strings(modelKeys)

	models := make([]map[string]any, 0, len(modelKeys))
	for _, k := range modelKeys {
		mc := sum.ByModel[k]
		tokens := mc.InputTokens + mc.OutputTokens + mc.CacheRead + mc.CacheCreate
		var costPer1K string
		if tokens > 0 {
			costPer1K = mc.TotalCost.Div(decimal.NewFromInt(tokens)).Mul(decimal.NewFromInt(1000)).StringFixed(6)
		}
		models = append(models, map[string]any{
			"model":        k,
			"total_tokens": tokens,
			"total_cost":   mc.TotalCost.StringFixed(6),
			"cost_per_1k":  costPer1K,
		})
	}

	totalTokens := sum.InputTokens + sum.OutputTokens + sum.CacheRead + sum.CacheCreate
	var costPer1K string
	if totalTokens > 0 {
		costPer1K = sum.TotalCost.Div(decimal.NewFromInt(totalTokens)).Mul(decimal.NewFromInt(1000)).StringFixed(6)
	}
	return okResult(map[string]any{
		"total_tokens": totalTokens,
		"total_cost":   sum.TotalCost.StringFixed(6),
		"cost_per_1k":  costPer1K,
		"by_model":     models,
	}), nil
}

func metricsReviewEffectiveness(rt *runtime.Runtime, since time.Time) (map[string]any, error) {
	sum, err := rt.Queries.ReviewSummary(since)
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}
	byReviewer := make(map[string]any, len(sum.ByReviewer))
	for reviewer, rs := range sum.ByReviewer {
		byReviewer[reviewer] = map[string]any{
			"reviews":        rs.Reviews,
			"passes":         rs.Passes,
			"total_findings": rs.TotalFindings,
		}
	}
	return okResult(map[string]any{
		"total_reviews":           sum.TotalReviews,
		"pass_rate":               sum.PassRate,
		"avg_findings_per_review": sum.AvgFindingsPerReview,
		"by_reviewer":             byReviewer,
	}), nil
}

func metricsSprintVelocity(rt *runtime.Runtime) (map[string]any, error) {
	entries, err := rt.Queries.SprintVelocity()
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}
	sprints := make([]map[string]any, 0, len(entries))
	total := 0
	for _, e := range entries {
		sprints = append(sprints, map[string]any{
			"sprint_id":         e.SprintID,
			"sprint_name":       e.SprintName,
			"started_at":        e.StartedAt,
			"ended_at":          e.EndedAt,
			"tickets_completed": e.TicketsCompleted,
		})
		total += e.TicketsCompleted
	}
	var avg float64
	if len(entries) > 0 {
		avg = float64(total) / float64(len(entries))
	}
	return okResult(map[string]any{
		"sprints":                 sprints,
		"tickets_completed_total": total,
		"avg_tickets_per_sprint":  avg,
	}), nil
}

func metricsPipelineEfficiency(rt *runtime.Runtime) (map[string]any, error) {
	blocked, err := rt.Queries.BlockedTickets()
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}
	active, err := rt.Queries.ActiveAgents()
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}
	stale, err := rt.Queries.StaleAgents(24 * time.Hour)
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}
	staleRows := make([]map[string]any, 0, len(stale))
	for _, s := range stale {
		row := map[string]any{
			"agent_code":  s.Agent.AgentCode,
			"instance_id": s.Agent.InstanceID,
		}
		if s.LastEvent != nil {
			row["last_event"] = *s.LastEvent
		}
		staleRows = append(staleRows, row)
	}
	return okResult(map[string]any{
		"blocked_tickets": len(blocked),
		"active_agents":   len(active),
		"stale_agents":    staleRows,
	}), nil
}

func metricsHeadline(rt *runtime.Runtime, since time.Time) (map[string]any, error) {
	active, err := rt.Queries.ActiveAgents()
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}
	blocked, err := rt.Queries.BlockedTickets()
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}
	sum, err := rt.Queries.CostSummarySince(since)
	if err != nil {
		return errResult("herd_metrics: %v", err), nil
	}
	return okResult(map[string]any{
		"active_agents":   len(active),
		"blocked_tickets": len(blocked),
		"total_cost":      sum.TotalCost.StringFixed(6),
	}), nil
}
