package opstore

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Queries is the semantic read layer used by herd_metrics and
// herd_catchup: every method here composes Store results (ListX,
// Events) rather than issuing raw SQL, per the "typed queries over an
// opaque filter dict" design note.
type Queries struct {
	store *Store
}

func NewQueries(store *Store) *Queries {
	return &Queries{store: store}
}

// ActiveAgent summarizes one running (non-deleted, non-stopped/failed)
// agent for the active_agents view.
type ActiveAgent struct {
	Agent     Agent
	LastEvent *time.Time
}

// ActiveAgents lists agents not in a terminal state, most recently
// started first.
func (q *Queries) ActiveAgents() ([]ActiveAgent, error) {
	agents, err := q.store.ListAgents(Filter{})
	if err != nil {
		return nil, err
	}
	var out []ActiveAgent
	for _, a := range agents {
		if a.State == AgentCompleted || a.State == AgentFailed || a.State == AgentStopped {
			continue
		}
		aa := ActiveAgent{Agent: a}
		events, err := q.store.Events(EventLifecycle, a.ID)
		if err == nil && len(events) > 0 {
			t := events[len(events)-1].CreatedAt
			aa.LastEvent = &t
		}
		out = append(out, aa)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent.StartedAt.After(out[j].Agent.StartedAt) })
	return out, nil
}

// StaleAgent pairs a running agent with its most recent lifecycle event,
// nil when the instance never recorded one.
type StaleAgent struct {
	Agent     Agent
	LastEvent *time.Time
}

// StaleAgents returns running agents with no lifecycle event newer than
// threshold — instances that claim to be alive but have gone quiet.
func (q *Queries) StaleAgents(threshold time.Duration) ([]StaleAgent, error) {
	active, err := q.ActiveAgents()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-threshold)
	var out []StaleAgent
	for _, a := range active {
		if a.LastEvent != nil && a.LastEvent.After(cutoff) {
			continue
		}
		out = append(out, StaleAgent{Agent: a.Agent, LastEvent: a.LastEvent})
	}
	return out, nil
}

// TicketTimelineEntry is one event in a ticket's combined history.
type TicketTimelineEntry struct {
	EventType EventType
	CreatedAt time.Time
	Data      map[string]any
}

// TicketTimeline merges ticket and PR/review events touching ticketID,
// ascending by time.
func (q *Queries) TicketTimeline(ticketID string) ([]TicketTimelineEntry, error) {
	var entries []TicketTimelineEntry
	for _, et := range []EventType{EventTicket, EventPR, EventReview} {
		events, err := q.store.Events(et, ticketID)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			entries = append(entries, TicketTimelineEntry{EventType: e.Type, CreatedAt: e.CreatedAt, Data: e.Data})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

// BlockedTickets returns tickets whose blocked_by field is set and whose
// blocker is not itself done.
func (q *Queries) BlockedTickets() ([]Ticket, error) {
	tickets, err := q.store.ListTickets(Filter{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Ticket, len(tickets))
	for _, t := range tickets {
		byID[t.ID] = t
	}
	var out []Ticket
	for _, t := range tickets {
		if t.BlockedBy == "" {
			continue
		}
		blocker, ok := byID[t.BlockedBy]
		if !ok || blocker.Status != "done" {
			out = append(out, t)
		}
	}
	return out, nil
}

// ReviewRoundCount returns the highest review round seen for a ticket,
// i.e. how many review cycles it has been through.
func (q *Queries) ReviewRoundCount(ticketID string) (int, error) {
	reviews, err := q.store.ListReviews(Filter{Equals: map[string]string{"ticket_id": ticketID}})
	if err != nil {
		return 0, err
	}
	max := 0
	for _, r := range reviews {
		if r.Round > max {
			max = r.Round
		}
	}
	return max, nil
}

// ReviewerStats tallies one reviewer's verdicts within a ReviewSummary.
type ReviewerStats struct {
	Reviews       int
	Passes        int
	TotalFindings int
}

// ReviewSummary aggregates every review's verdict since a timestamp:
// total count, overall pass rate, average findings per review, and a
// per-reviewer breakdown — the shape herd_metrics' review_effectiveness
// query reports. A verdict counts as a pass whenever it isn't "fail"
// (pass and pass_with_advisory both clear the gate).
type ReviewSummary struct {
	TotalReviews         int
	PassRate             float64
	AvgFindingsPerReview float64
	ByReviewer           map[string]ReviewerStats
}

func (q *Queries) ReviewSummary(since time.Time) (ReviewSummary, error) {
	reviews, err := q.store.ListReviews(Filter{Since: &since})
	if err != nil {
		return ReviewSummary{}, err
	}
	sum := ReviewSummary{ByReviewer: map[string]ReviewerStats{}}
	var passes, findings int
	for _, r := range reviews {
		sum.TotalReviews++
		findings += r.FindingCount
		pass := r.Verdict != "fail"
		if pass {
			passes++
		}
		rs := sum.ByReviewer[r.Reviewer]
		rs.Reviews++
		rs.TotalFindings += r.FindingCount
		if pass {
			rs.Passes++
		}
		sum.ByReviewer[r.Reviewer] = rs
	}
	if sum.TotalReviews > 0 {
		sum.PassRate = float64(passes) / float64(sum.TotalReviews)
		sum.AvgFindingsPerReview = float64(findings) / float64(sum.TotalReviews)
	}
	return sum, nil
}

// SprintVelocityEntry is one sprint's completed-ticket rollup.
type SprintVelocityEntry struct {
	SprintID         string
	SprintName       string
	StartedAt        time.Time
	EndedAt          *time.Time
	TicketsCompleted int
}

// SprintVelocity cross-references every Sprint window against ticket
// status-change events, counting a ticket as completed in a sprint when
// its new_status=="done" event falls within [StartedAt, EndedAt) — an
// open-ended sprint (EndedAt nil) counts everything from StartedAt on.
func (q *Queries) SprintVelocity() ([]SprintVelocityEntry, error) {
	sprints, err := q.store.ListSprints(Filter{})
	if err != nil {
		return nil, err
	}
	tickets, err := q.store.ListTickets(Filter{})
	if err != nil {
		return nil, err
	}

	out := make([]SprintVelocityEntry, 0, len(sprints))
	for _, sp := range sprints {
		entry := SprintVelocityEntry{
			SprintID: sp.ID, SprintName: sp.Name,
			StartedAt: sp.StartedAt, EndedAt: sp.EndedAt,
		}
		for _, t := range tickets {
			events, err := q.store.Events(EventTicket, t.ID)
			if err != nil {
				continue
			}
			for _, e := range events {
				status, _ := e.Data["new_status"].(string)
				if status != "done" || e.CreatedAt.Before(sp.StartedAt) {
					continue
				}
				if sp.EndedAt != nil && !e.CreatedAt.Before(*sp.EndedAt) {
					continue
				}
				entry.TicketsCompleted++
				break
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// ModelCost is one dimension's token/cost rollup within a CostSummary.
type ModelCost struct {
	InputTokens  int64
	OutputTokens int64
	CacheRead    int64
	CacheCreate  int64
	TotalCost    decimal.Decimal
}

// CostSummary aggregates harvested token-usage events into a dollar
// figure, using decimal arithmetic so per-million-token pricing never
// loses precision to float rounding, broken down by model and by agent.
type CostSummary struct {
	InputTokens  int64
	OutputTokens int64
	CacheRead    int64
	CacheCreate  int64
	TotalCost    decimal.Decimal
	ByModel      map[string]ModelCost
	ByAgent      map[string]ModelCost
	PeriodStart  time.Time
}

// CostSummarySince aggregates token events since a timestamp, pricing
// each event's model against the Model entity store and rolling the
// result up both by model code and by the agent code of the instance
// that recorded it.
func (q *Queries) CostSummarySince(since time.Time) (CostSummary, error) {
	events, err := q.store.EventsSince(EventToken, since)
	if err != nil {
		return CostSummary{}, err
	}
	sum := CostSummary{
		TotalCost:   decimal.Zero,
		ByModel:     map[string]ModelCost{},
		ByAgent:     map[string]ModelCost{},
		PeriodStart: since,
	}
	modelCache := map[string]*Model{}
	agentCache := map[string]string{}
	million := decimal.NewFromInt(1_000_000)

	for _, e := range events {
		modelCode, _ := e.Data["model_code"].(string)
		model, ok := modelCache[modelCode]
		if !ok {
			model, _ = q.store.GetModel(modelCode)
			modelCache[modelCode] = model
		}

		in := asInt64(e.Data["input_tokens"])
		out := asInt64(e.Data["output_tokens"])
		cacheRead := asInt64(e.Data["cache_read_tokens"])
		cacheCreate := asInt64(e.Data["cache_create_tokens"])

		cost := decimal.Zero
		if model != nil {
			cost = decimal.NewFromInt(in).Mul(decimal.NewFromFloat(model.InputPerM)).Div(million).
				Add(decimal.NewFromInt(out).Mul(decimal.NewFromFloat(model.OutputPerM)).Div(million)).
				Add(decimal.NewFromInt(cacheRead).Mul(decimal.NewFromFloat(model.CacheReadPerM)).Div(million)).
				Add(decimal.NewFromInt(cacheCreate).Mul(decimal.NewFromFloat(model.CacheCreatePerM)).Div(million))
		}

		sum.InputTokens += in
		sum.OutputTokens += out
		sum.CacheRead += cacheRead
		sum.CacheCreate += cacheCreate
		sum.TotalCost = sum.TotalCost.Add(cost)

		mc := sum.ByModel[modelCode]
		mc.InputTokens += in
		mc.OutputTokens += out
		mc.CacheRead += cacheRead
		mc.CacheCreate += cacheCreate
		mc.TotalCost = mc.TotalCost.Add(cost)
		sum.ByModel[modelCode] = mc

		agentCode, ok := agentCache[e.EntityID]
		if !ok {
			agentCode = e.EntityID
			if a, err := q.store.GetAgent(e.EntityID); err == nil && a != nil && a.AgentCode != "" {
				agentCode = a.AgentCode
			}
			agentCache[e.EntityID] = agentCode
		}
		ac := sum.ByAgent[agentCode]
		ac.InputTokens += in
		ac.OutputTokens += out
		ac.CacheRead += cacheRead
		ac.CacheCreate += cacheCreate
		ac.TotalCost = ac.TotalCost.Add(cost)
		sum.ByAgent[agentCode] = ac
	}
	return sum, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
