package opstore

import (
	"testing"
	"time"
)

func TestActiveAgentsExcludesTerminalStates(t *testing.T) {
	s := newTestStore(t)
	q := NewQueries(s)
	now := time.Now().UTC()

	s.SaveAgent(Agent{ID: "i1", AgentCode: "mason", InstanceID: "i1", State: AgentRunning, StartedAt: now.Add(-time.Hour)})
	s.SaveAgent(Agent{ID: "i2", AgentCode: "fresco", InstanceID: "i2", State: AgentRunning, StartedAt: now})
	s.SaveAgent(Agent{ID: "i3", AgentCode: "rook", InstanceID: "i3", State: AgentStopped, StartedAt: now})
	s.SaveAgent(Agent{ID: "i4", AgentCode: "vigil", InstanceID: "i4", State: AgentFailed, StartedAt: now})

	active, err := q.ActiveAgents()
	if err != nil {
		t.Fatalf("ActiveAgents: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2: %+v", len(active), active)
	}
	if active[0].Agent.AgentCode != "fresco" {
		t.Errorf("most recently started first, got %q", active[0].Agent.AgentCode)
	}
}

func TestBlockedTicketsIgnoresResolvedBlockers(t *testing.T) {
	s := newTestStore(t)
	q := NewQueries(s)

	s.SaveTicket(Ticket{ID: "DBC-1", Title: "blocker, done", Status: "done"})
	s.SaveTicket(Ticket{ID: "DBC-2", Title: "blocked on done work", Status: "blocked", BlockedBy: "DBC-1"})
	s.SaveTicket(Ticket{ID: "DBC-3", Title: "open blocker", Status: "in_progress"})
	s.SaveTicket(Ticket{ID: "DBC-4", Title: "genuinely blocked", Status: "blocked", BlockedBy: "DBC-3"})
	s.SaveTicket(Ticket{ID: "DBC-5", Title: "blocked on missing ticket", Status: "blocked", BlockedBy: "DBC-999"})

	blocked, err := q.BlockedTickets()
	if err != nil {
		t.Fatalf("BlockedTickets: %v", err)
	}
	ids := map[string]bool{}
	for _, tk := range blocked {
		ids[tk.ID] = true
	}
	if ids["DBC-2"] {
		t.Error("DBC-2's blocker is done; should not be listed")
	}
	if !ids["DBC-4"] || !ids["DBC-5"] {
		t.Errorf("blocked = %v, want DBC-4 and DBC-5", ids)
	}
}

func TestTicketTimelineMergesEventTypesAscending(t *testing.T) {
	s := newTestStore(t)
	q := NewQueries(s)
	base := time.Now().UTC().Add(-time.Hour)

	s.AppendEvent(Event{Type: EventTicket, EntityID: "DBC-7", CreatedAt: base, Data: map[string]any{"new_status": "assigned"}})
	s.AppendEvent(Event{Type: EventReview, EntityID: "DBC-7", CreatedAt: base.Add(20 * time.Minute), Data: map[string]any{"verdict": "fail"}})
	s.AppendEvent(Event{Type: EventPR, EntityID: "DBC-7", CreatedAt: base.Add(10 * time.Minute), Data: map[string]any{"event": "push"}})

	timeline, err := q.TicketTimeline("DBC-7")
	if err != nil {
		t.Fatalf("TicketTimeline: %v", err)
	}
	if len(timeline) != 3 {
		t.Fatalf("timeline = %d entries, want 3", len(timeline))
	}
	want := []EventType{EventTicket, EventPR, EventReview}
	for i, et := range want {
		if timeline[i].EventType != et {
			t.Errorf("timeline[%d].EventType = %q, want %q", i, timeline[i].EventType, et)
		}
	}
}

func TestReviewRoundCount(t *testing.T) {
	s := newTestStore(t)
	q := NewQueries(s)

	if n, err := q.ReviewRoundCount("DBC-8"); err != nil || n != 0 {
		t.Fatalf("empty round count = %d, %v, want 0", n, err)
	}

	s.SaveReview(Review{ID: "r1", TicketID: "DBC-8", Reviewer: "wardenstein", Verdict: "fail", Round: 1})
	s.SaveReview(Review{ID: "r2", TicketID: "DBC-8", Reviewer: "wardenstein", Verdict: "pass", Round: 2})
	s.SaveReview(Review{ID: "r3", TicketID: "DBC-9", Reviewer: "scribe", Verdict: "pass", Round: 5})

	if n, err := q.ReviewRoundCount("DBC-8"); err != nil || n != 2 {
		t.Fatalf("round count = %d, %v, want 2", n, err)
	}
}

func TestSprintVelocityCountsDoneEventsInWindow(t *testing.T) {
	s := newTestStore(t)
	q := NewQueries(s)
	now := time.Now().UTC()
	sprintEnd := now.Add(-7 * 24 * time.Hour)
	sprintStart := sprintEnd.Add(-14 * 24 * time.Hour)

	s.SaveSprint(Sprint{ID: "s1", Name: "Sprint 1", StartedAt: sprintStart, EndedAt: &sprintEnd})
	s.SaveSprint(Sprint{ID: "s2", Name: "Sprint 2", StartedAt: sprintEnd})

	s.SaveTicket(Ticket{ID: "DBC-10", Title: "done in sprint 1", Status: "done"})
	s.SaveTicket(Ticket{ID: "DBC-11", Title: "done in sprint 2", Status: "done"})
	s.SaveTicket(Ticket{ID: "DBC-12", Title: "still open", Status: "in_progress"})

	s.AppendEvent(Event{Type: EventTicket, EntityID: "DBC-10", CreatedAt: sprintStart.Add(24 * time.Hour), Data: map[string]any{"new_status": "done"}})
	s.AppendEvent(Event{Type: EventTicket, EntityID: "DBC-11", CreatedAt: now.Add(-24 * time.Hour), Data: map[string]any{"new_status": "done"}})
	s.AppendEvent(Event{Type: EventTicket, EntityID: "DBC-12", CreatedAt: now, Data: map[string]any{"new_status": "in_progress"}})

	velocity, err := q.SprintVelocity()
	if err != nil {
		t.Fatalf("SprintVelocity: %v", err)
	}
	if len(velocity) != 2 {
		t.Fatalf("velocity = %d sprints, want 2", len(velocity))
	}
	if velocity[0].SprintName != "Sprint 1" || velocity[0].TicketsCompleted != 1 {
		t.Errorf("sprint 1 = %+v", velocity[0])
	}
	if velocity[1].SprintName != "Sprint 2" || velocity[1].TicketsCompleted != 1 {
		t.Errorf("sprint 2 = %+v", velocity[1])
	}
}
