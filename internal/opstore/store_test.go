package opstore

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ops.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTicketSaveGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	tk := Ticket{ID: "DBC-1", Title: "fix bug", Status: "open"}
	if _, err := s.SaveTicket(tk); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetTicket("DBC-1")
	if err != nil || got == nil {
		t.Fatalf("get = %+v, %v", got, err)
	}
	if got.Title != tk.Title || got.Status != tk.Status {
		t.Fatalf("got = %+v, want %+v", got, tk)
	}
}

// TestSoftDeleteSemantics: deleting an entity makes
// it invisible to Get and List, but saving the same id afterward re-inserts
// it rather than resurrecting the deleted row's old payload.
func TestSoftDeleteSemantics(t *testing.T) {
	s := newTestStore(t)
	s.SaveTicket(Ticket{ID: "DBC-2", Title: "original", Status: "open"})

	if err := s.DeleteTicket("DBC-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, err := s.GetTicket("DBC-2"); err != nil || got != nil {
		t.Fatalf("get after delete = %+v, %v, want nil", got, err)
	}
	all, err := s.ListTickets(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, tk := range all {
		if tk.ID == "DBC-2" {
			t.Fatalf("deleted ticket still present in list: %+v", tk)
		}
	}

	if _, err := s.SaveTicket(Ticket{ID: "DBC-2", Title: "reborn", Status: "open"}); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	got, err := s.GetTicket("DBC-2")
	if err != nil || got == nil {
		t.Fatalf("get after re-save = %+v, %v", got, err)
	}
	if got.Title != "reborn" {
		t.Fatalf("title = %q, want reborn (history should not resurrect)", got.Title)
	}
}

// TestEventImmutabilityAndOrdering: events are
// returned in ascending created_at/id order and every earlier read is an
// unchanged prefix of every later one.
func TestEventImmutabilityAndOrdering(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	statuses := []string{"open", "assigned", "in_progress"}
	for i, status := range statuses {
		if err := s.AppendEvent(Event{
			Type: EventTicket, EntityID: "DBC-3",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Data:      map[string]any{"new_status": status},
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	first, err := s.Events(EventTicket, "DBC-3")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(first) != len(statuses) {
		t.Fatalf("len(first) = %d, want %d", len(first), len(statuses))
	}
	for i := 1; i < len(first); i++ {
		if first[i].CreatedAt.Before(first[i-1].CreatedAt) {
			t.Fatalf("events out of order: %+v", first)
		}
	}

	if err := s.AppendEvent(Event{
		Type: EventTicket, EntityID: "DBC-3",
		CreatedAt: base.Add(4 * time.Minute),
		Data:      map[string]any{"new_status": "done"},
	}); err != nil {
		t.Fatalf("append 4th: %v", err)
	}

	second, err := s.Events(EventTicket, "DBC-3")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(second) != len(statuses)+1 {
		t.Fatalf("len(second) = %d, want %d", len(second), len(statuses)+1)
	}
	for i, e := range first {
		if second[i].Data["new_status"] != e.Data["new_status"] {
			t.Fatalf("prefix changed at %d: %v vs %v", i, second[i], e)
		}
	}
}

func TestReviewSummarySinceAndPassRate(t *testing.T) {
	s := newTestStore(t)
	q := NewQueries(s)
	now := time.Now().UTC()

	s.SaveReview(Review{ID: "r1", TicketID: "DBC-4", Reviewer: "wardenstein", Verdict: "pass", FindingCount: 0, CreatedAt: now.Add(-2 * time.Hour)})
	s.SaveReview(Review{ID: "r2", TicketID: "DBC-4", Reviewer: "wardenstein", Verdict: "fail", FindingCount: 3, CreatedAt: now.Add(-time.Hour)})
	s.SaveReview(Review{ID: "r3", TicketID: "DBC-5", Reviewer: "scribe", Verdict: "pass_with_advisory", FindingCount: 1, CreatedAt: now.Add(-30 * time.Minute)})

	sum, err := q.ReviewSummary(now.Add(-90 * time.Minute))
	if err != nil {
		t.Fatalf("review summary: %v", err)
	}
	if sum.TotalReviews != 2 {
		t.Fatalf("total reviews = %d, want 2", sum.TotalReviews)
	}
	if sum.PassRate != 0.5 {
		t.Fatalf("pass rate = %v, want 0.5", sum.PassRate)
	}
	if sum.AvgFindingsPerReview != 2 {
		t.Fatalf("avg findings = %v, want 2", sum.AvgFindingsPerReview)
	}
	warden := sum.ByReviewer["wardenstein"]
	if warden.Reviews != 1 || warden.Passes != 0 {
		t.Fatalf("wardenstein stats = %+v", warden)
	}
}

func TestCostSummarySinceByModelAndAgent(t *testing.T) {
	s := newTestStore(t)
	q := NewQueries(s)
	s.SaveModel(Model{ID: "m1", InputPerM: 15, OutputPerM: 75, CacheReadPerM: 1.5, CacheCreatePerM: 18.75})
	s.SaveAgent(Agent{ID: "inst-1", AgentCode: "rook", InstanceID: "inst-1", State: AgentRunning})

	now := time.Now().UTC()
	s.AppendEvent(Event{
		Type: EventToken, EntityID: "inst-1", CreatedAt: now,
		Data: map[string]any{
			"model_code": "m1", "input_tokens": int64(1000), "output_tokens": int64(500),
			"cache_read_tokens": int64(2000), "cache_create_tokens": int64(1500),
		},
	})

	sum, err := q.CostSummarySince(now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("cost summary: %v", err)
	}
	if sum.InputTokens != 1000 || sum.OutputTokens != 500 {
		t.Fatalf("sum = %+v", sum)
	}
	want := "0.083625"
	if sum.TotalCost.StringFixed(6) != want {
		t.Fatalf("total cost = %s, want %s", sum.TotalCost.StringFixed(6), want)
	}
	mc, ok := sum.ByModel["m1"]
	if !ok || mc.TotalCost.StringFixed(6) != want {
		t.Fatalf("by_model[m1] = %+v", mc)
	}
	ac, ok := sum.ByAgent["rook"]
	if !ok || ac.InputTokens != 1000 {
		t.Fatalf("by_agent[rook] = %+v", ac)
	}
}
