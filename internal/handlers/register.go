package handlers

import (
	"github.com/fleetherd/herd/internal/registrar"
	"github.com/fleetherd/herd/internal/runtime"
)

// RegisterAll wires every herd_* operation into reg, bound to rt. Called
// once from cmd/herd/main.go after the runtime and its adapters are
// constructed.
func RegisterAll(reg *registrar.Registrar, rt *runtime.Runtime) {
	reg.Register("herd_send", "Send a message to another agent, a team, or a broadcast address.",
		map[string]registrar.ParamDef{
			"to":       {Type: "string", Description: "Destination address (agent, @team, or @anyone/@all).", Required: true},
			"message":  {Type: "string", Description: "Message body.", Required: true},
			"from":     {Type: "string", Description: "Override sender address; defaults to the resolved caller."},
			"type":     {Type: "string", Description: "Message type (directive, inform, or flag; default inform)."},
			"priority": {Type: "string", Description: "Priority (normal or urgent; default normal)."},
		}, HerdSend(rt))

	reg.Register("herd_checkin", "Heartbeat, drain pending messages, and receive a context pane.",
		map[string]registrar.ParamDef{
			"status": {Type: "string", Description: "Free-text status line."},
			"ticket": {Type: "string", Description: "Ticket currently being worked, for AssignedTo-scoped context."},
			"caller": {Type: "string", Description: "Override caller agent name."},
		}, HerdCheckin(rt))

	reg.Register("herd_get_messages", "Drain pending messages without heartbeating or fetching context.",
		map[string]registrar.ParamDef{
			"caller": {Type: "string", Description: "Override caller agent name."},
		}, HerdGetMessages(rt))

	reg.Register("herd_spawn", "Spawn one or more agent instances, optionally bound to a ticket.",
		map[string]registrar.ParamDef{
			"role":      {Type: "string", Description: "Role/agent code to spawn.", Required: true},
			"model":     {Type: "string", Description: "Model identifier to run the instance under."},
			"ticket_id": {Type: "string", Description: "Ticket to bind a single spawned instance to."},
			"count":     {Type: "integer", Description: "Number of bare-roster instances to spawn (default 1)."},
		}, HerdSpawn(rt))

	reg.Register("herd_assign", "Assign a ticket to an agent.",
		map[string]registrar.ParamDef{
			"ticket_id":  {Type: "string", Description: "Ticket identifier.", Required: true},
			"agent_name": {Type: "string", Description: "Agent to assign.", Required: true},
			"priority":   {Type: "string", Description: "Optional priority override."},
		}, HerdAssign(rt))

	reg.Register("herd_transition", "Move a ticket to a new status.",
		map[string]registrar.ParamDef{
			"ticket_id":  {Type: "string", Description: "Ticket identifier.", Required: true},
			"to_status":  {Type: "string", Description: "Target status.", Required: true},
			"blocked_by": {Type: "string", Description: "Id of the blocking ticket, when to_status is blocked."},
			"note":       {Type: "string", Description: "Free-text transition note."},
		}, HerdTransition(rt))

	reg.Register("herd_review", "Record a code review verdict and post it to the PR and notification channel.",
		map[string]registrar.ParamDef{
			"pr_number":  {Type: "string", Description: "Pull request number.", Required: true},
			"ticket_id":  {Type: "string", Description: "Ticket the PR implements.", Required: true},
			"verdict":    {Type: "string", Description: "pass, fail, or pass_with_advisory.", Required: true},
			"findings":   {Type: "array", Description: "Review findings, each with a severity and summary."},
		}, HerdReview(rt))

	reg.Register("herd_metrics", "Query aggregate operational metrics.",
		map[string]registrar.ParamDef{
			"query":    {Type: "string", Description: "Metric name (cost_per_ticket, agent_performance, model_efficiency, review_effectiveness, sprint_velocity, pipeline_efficiency, headline).", Required: true},
			"period":   {Type: "string", Description: "today, this_week, this_sprint, last_30d, or an ISO range."},
			"group_by": {Type: "string", Description: "Optional grouping key for metrics that support it."},
		}, HerdMetrics(rt))

	reg.Register("herd_catchup", "Summarize activity since the caller's last ended instance.",
		map[string]registrar.ParamDef{
			"caller": {Type: "string", Description: "Override caller agent name."},
		}, HerdCatchup(rt))

	reg.Register("herd_record_decision", "Record an architecture/decision record (HDR).",
		map[string]registrar.ParamDef{
			"decision_type": {Type: "string", Description: "Decision category.", Required: true},
			"context":       {Type: "string", Description: "Background context for the decision."},
			"decision":      {Type: "string", Description: "The decision itself.", Required: true},
			"rationale":     {Type: "string", Description: "Why this decision was made."},
			"ticket_code":   {Type: "string", Description: "Associated ticket, if any."},
		}, HerdRecordDecision(rt))

	reg.Register("herd_assume", "Compose an identity-assumption prompt for a named role.",
		map[string]registrar.ParamDef{
			"agent_name": {Type: "string", Description: "Role/agent to assume.", Required: true},
		}, HerdAssume(rt))

	reg.Register("herd_remember", "Store a memory in semantic memory.",
		map[string]registrar.ParamDef{
			"content":     {Type: "string", Description: "Memory content.", Required: true},
			"memory_type": {Type: "string", Description: "session_summary, decision_context, pattern, preference, thread, lesson, or observation.", Required: true},
			"summary":     {Type: "string", Description: "Short summary, embedded instead of content when present."},
			"agent":       {Type: "string", Description: "Owning agent."},
			"repo":        {Type: "string", Description: "Repository scope."},
			"session_id":  {Type: "string", Description: "Session scope."},
			"metadata":    {Type: "object", Description: "Arbitrary structured metadata."},
		}, HerdRemember(rt))

	reg.Register("herd_recall", "Recall similar memories from semantic memory.",
		map[string]registrar.ParamDef{
			"query":       {Type: "string", Description: "Query text to embed and search by.", Required: true},
			"limit":       {Type: "integer", Description: "Maximum results to return (default 5)."},
			"project":     {Type: "string", Description: "Filter by project."},
			"agent":       {Type: "string", Description: "Filter by owning agent."},
			"memory_type": {Type: "string", Description: "Filter by memory type."},
			"repo":        {Type: "string", Description: "Filter by repository."},
		}, HerdRecall(rt))

	reg.Register("herd_graph", "Run an ad-hoc structural graph query.",
		map[string]registrar.ParamDef{
			"query":  {Type: "string", Description: "MATCH ... RETURN query.", Required: true},
			"params": {Type: "object", Description: "Named parameters referenced by the query."},
		}, HerdGraph(rt))

	reg.Register("herd_decommission", "End every running instance of an agent.",
		map[string]registrar.ParamDef{
			"agent_name": {Type: "string", Description: "Agent to decommission.", Required: true},
		}, HerdDecommission(rt))

	reg.Register("herd_standdown", "Voluntarily end every running instance of an agent.",
		map[string]registrar.ParamDef{
			"agent_name": {Type: "string", Description: "Agent to stand down.", Required: true},
		}, HerdStanddown(rt))

	reg.Register("herd_harvest_tokens", "Harvest token usage from Claude Code session files and price it.",
		map[string]registrar.ParamDef{
			"agent_instance_code": {Type: "string", Description: "Agent instance identifier.", Required: true},
			"project_path":        {Type: "string", Description: "Absolute project path whose sessions to harvest.", Required: true},
		}, HerdHarvestTokens(rt))
}
