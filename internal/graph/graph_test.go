package graph

import "testing"

func TestMergeNodeIdempotent(t *testing.T) {
	g := New()
	if _, err := g.MergeNode(AgentNode, map[string]any{"id": "a1", "role": "builder"}); err != nil {
		t.Fatalf("merge 1: %v", err)
	}
	n, err := g.MergeNode(AgentNode, map[string]any{"id": "a1", "role": "reviewer"})
	if err != nil {
		t.Fatalf("merge 2: %v", err)
	}
	if n.Props["role"] != "reviewer" {
		t.Fatalf("role = %v, want reviewer", n.Props["role"])
	}
	if len(g.nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(g.nodes))
	}
}

func TestCreateEdgeRequiresEndpoints(t *testing.T) {
	g := New()
	g.MergeNode(AgentNode, map[string]any{"id": "a1"})
	if _, err := g.CreateEdge(AssignedTo, AgentNode, "a1", Ticket, "t1", nil); err == nil {
		t.Fatal("expected error for missing Ticket endpoint")
	}
	g.MergeNode(Ticket, map[string]any{"id": "t1"})
	e, err := g.CreateEdge(AssignedTo, AgentNode, "a1", Ticket, "t1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be stamped")
	}
}

func TestQueryAssignedToRestriction(t *testing.T) {
	g := New()
	g.MergeNode(Ticket, map[string]any{"id": "DBC-99"})
	g.MergeNode(AgentNode, map[string]any{"id": "mason"})
	g.MergeNode(AgentNode, map[string]any{"id": "fresco"})
	g.CreateEdge(AssignedTo, AgentNode, "mason", Ticket, "DBC-99", nil)

	rows, err := g.Query(
		`MATCH (a:Agent)-[:AssignedTo]->(t:Ticket {id: $ticket}) RETURN a`,
		map[string]any{"ticket": "DBC-99"},
	)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	a, ok := rows[0]["a"].(map[string]any)
	if !ok || a["id"] != "mason" {
		t.Fatalf("unexpected row: %v", rows[0])
	}
}

func TestQueryAnchoredOnFromSide(t *testing.T) {
	g := New()
	g.MergeNode(Decision, map[string]any{"id": "d1"})
	g.MergeNode(Decision, map[string]any{"id": "d2"})
	g.MergeNode(Ticket, map[string]any{"id": "DBC-1", "title": "wire the bus"})
	g.CreateEdge(Decides, Decision, "d1", Ticket, "DBC-1", nil)

	rows, err := g.Query(
		`MATCH (d:Decision {id: $id})-[:Decides]->(t:Ticket) RETURN t`,
		map[string]any{"id": "d1"},
	)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	tk, ok := rows[0]["t"].(map[string]any)
	if !ok || tk["id"] != "DBC-1" || tk["title"] != "wire the bus" {
		t.Fatalf("unexpected row: %v", rows[0])
	}

	// The undecided decision reaches nothing.
	rows, err = g.Query(
		`MATCH (d:Decision {id: $id})-[:Decides]->(t:Ticket) RETURN t`,
		map[string]any{"id": "d2"},
	)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestQueryUndeclaredParam(t *testing.T) {
	g := New()
	g.MergeNode(Ticket, map[string]any{"id": "DBC-1"})
	_, err := g.Query(`MATCH (a:Agent)-[:AssignedTo]->(t:Ticket {id: $ticket}) RETURN a`, nil)
	if err == nil {
		t.Fatal("expected error for missing parameter")
	}
}

func TestIsAvailableNeverRaises(t *testing.T) {
	var g *Graph
	if g.IsAvailable() {
		t.Fatal("nil graph should report unavailable")
	}
	if !New().IsAvailable() {
		t.Fatal("constructed graph should report available")
	}
}
