package tickets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fleetherd/herd/internal/adapters"
)

func TestIDPattern(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"DBC-99", true},
		{"HERD-1", true},
		{"dbc-99", false},
		{"local-ticket", false},
		{"DBC99", false},
		{"", false},
	}
	for _, tt := range cases {
		if got := IDPattern.MatchString(tt.id); got != tt.want {
			t.Errorf("IDPattern.MatchString(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func newGQLServer(t *testing.T, handler func(query string, variables map[string]any) (any, string)) (*httptest.Server, *Client) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "lin_api_test" {
			t.Errorf("Authorization = %q", auth)
		}
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		data, gqlErr := handler(req.Query, req.Variables)
		if gqlErr != "" {
			json.NewEncoder(w).Encode(map[string]any{"errors": []map[string]string{{"message": gqlErr}}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(ts.Close)

	c := New("lin_api_test")
	c.apiURL = ts.URL
	return ts, c
}

func TestGetTicketParsesEnvelope(t *testing.T) {
	_, c := newGQLServer(t, func(query string, vars map[string]any) (any, string) {
		if !strings.Contains(query, "issue(id:$id)") {
			t.Errorf("unexpected query: %s", query)
		}
		if vars["id"] != "DBC-99" {
			t.Errorf("vars = %+v", vars)
		}
		return map[string]any{"issue": map[string]any{
			"id": "DBC-99", "title": "build the bus", "description": "details",
			"state":    map[string]any{"name": "In Progress"},
			"assignee": map[string]any{"name": "mason"},
			"url":      "https://linear.app/acme/issue/DBC-99",
		}}, ""
	})

	snap, err := c.Get(context.Background(), "DBC-99")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := adapters.TicketSnapshot{
		ID: "DBC-99", Title: "build the bus", Description: "details",
		Status: "In Progress", Assignee: "mason", URL: "https://linear.app/acme/issue/DBC-99",
	}
	if snap != want {
		t.Errorf("snapshot = %+v, want %+v", snap, want)
	}
}

func TestGraphQLErrorsSurface(t *testing.T) {
	_, c := newGQLServer(t, func(string, map[string]any) (any, string) {
		return nil, "issue not found"
	})

	_, err := c.Get(context.Background(), "DBC-404")
	if err == nil || !strings.Contains(err.Error(), "issue not found") {
		t.Fatalf("err = %v, want the graphql error message", err)
	}
}

func TestTransitionRejectsUnmappedStatus(t *testing.T) {
	_, c := newGQLServer(t, func(string, map[string]any) (any, string) {
		t.Error("no request should be issued for an unmapped status")
		return nil, ""
	})

	if _, err := c.Transition(context.Background(), "DBC-1", "waiting_on_coffee", "", ""); err == nil {
		t.Fatal("expected error for unrecognized status")
	}
}

func TestTransitionBlockedEventType(t *testing.T) {
	_, c := newGQLServer(t, func(query string, vars map[string]any) (any, string) {
		return map[string]any{"issueUpdate": map[string]any{"success": true}}, ""
	})

	result, err := c.Transition(context.Background(), "DBC-1", "blocked", "", "DBC-2")
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if result.EventType != "blocked" {
		t.Errorf("event type = %q, want blocked", result.EventType)
	}
}

func TestListFiltersClientSide(t *testing.T) {
	_, c := newGQLServer(t, func(string, map[string]any) (any, string) {
		return map[string]any{"issues": map[string]any{"nodes": []map[string]any{
			{"id": "DBC-1", "title": "a", "state": map[string]any{"name": "Todo"}, "assignee": map[string]any{"name": "mason"}},
			{"id": "DBC-2", "title": "b", "state": map[string]any{"name": "Done"}, "assignee": map[string]any{"name": "mason"}},
			{"id": "DBC-3", "title": "c", "state": map[string]any{"name": "Todo"}, "assignee": map[string]any{"name": "fresco"}},
		}}}, ""
	})

	snaps, err := c.List(context.Background(), adapters.TicketFilter{Status: "Todo", Assignee: "mason"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ID != "DBC-1" {
		t.Errorf("List = %+v, want only DBC-1", snaps)
	}
}
