// Package tickets implements the adapters.Tickets port against Linear's
// GraphQL API: one /graphql endpoint, a {query, variables} request
// envelope and {data, errors[]} response envelope, the API key sent in
// the Authorization header, and a golang.org/x/time/rate client-side
// limiter sized well under Linear's published budget (1,500 req/hour).
package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/fleetherd/herd/internal/adapters"
)

const defaultAPIURL = "https://api.linear.app/graphql"

// IDPattern matches the external tracker's ticket id format, e.g.
// "DBC-99" — used by handlers to decide whether a local ticket id should
// be synced to the tracker at all.
var IDPattern = regexp.MustCompile(`^[A-Z]{2,8}-\d+$`)

// statusMap translates the runtime's local ticket statuses to Linear-style
// workflow state names. Statuses outside this map are not synced.
var statusMap = map[string]string{
	"assigned":    "Todo",
	"in_progress": "In Progress",
	"blocked":     "Blocked",
	"in_review":   "In Review",
	"done":        "Done",
}

// Client is a Linear-shaped GraphQL ticket tracker client.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New constructs a Client using apiKey for auth.
func New(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		apiURL:     defaultAPIURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(3*time.Second), 50),
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("tickets: rate limit wait: %w", err)
	}

	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("tickets: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tickets: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tickets: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tickets: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("tickets: http %d: %s", resp.StatusCode, raw)
	}

	var gr gqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("tickets: decode response: %w", err)
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("tickets: graphql error: %s", gr.Errors[0].Message)
	}
	if result != nil {
		return json.Unmarshal(gr.Data, result)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, id string) (adapters.TicketSnapshot, error) {
	var out struct {
		Issue struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
			State       struct{ Name string } `json:"state"`
			Assignee    struct{ Name string } `json:"assignee"`
			Priority    float64                `json:"priority"`
			URL         string                 `json:"url"`
		} `json:"issue"`
	}
	if err := c.do(ctx, `query($id:String!){issue(id:$id){id title description state{name} assignee{name} priority url}}`,
		map[string]any{"id": id}, &out); err != nil {
		return adapters.TicketSnapshot{}, err
	}
	return adapters.TicketSnapshot{
		ID: out.Issue.ID, Title: out.Issue.Title, Description: out.Issue.Description,
		Status: out.Issue.State.Name, Assignee: out.Issue.Assignee.Name, URL: out.Issue.URL,
	}, nil
}

func (c *Client) Create(ctx context.Context, title string, opts adapters.CreateTicketOptions) (string, error) {
	var out struct {
		IssueCreate struct {
			Issue struct{ ID string } `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := c.do(ctx, `mutation($title:String!,$desc:String){issueCreate(input:{title:$title, description:$desc}){issue{id}}}`,
		map[string]any{"title": title, "desc": opts.Description}, &out); err != nil {
		return "", err
	}
	return out.IssueCreate.Issue.ID, nil
}

func (c *Client) Update(ctx context.Context, id string, fields map[string]string) error {
	vars := map[string]any{"id": id}
	for k, v := range fields {
		vars[k] = v
	}
	return c.do(ctx, `mutation($id:String!){issueUpdate(id:$id, input:{}){success}}`, vars, nil)
}

func (c *Client) Transition(ctx context.Context, id, toStatus, note, blockedBy string) (adapters.TransitionResult, error) {
	stateName, ok := statusMap[toStatus]
	if !ok {
		return adapters.TransitionResult{}, fmt.Errorf("tickets: unrecognized status %q, not synced", toStatus)
	}
	eventType := "status_changed"
	if toStatus == "blocked" {
		eventType = "blocked"
	}
	if err := c.do(ctx, `mutation($id:String!,$state:String!){issueUpdate(id:$id, input:{stateId:$state}){success}}`,
		map[string]any{"id": id, "state": stateName}, nil); err != nil {
		return adapters.TransitionResult{}, err
	}
	if note != "" {
		_ = c.AddComment(ctx, id, note)
	}
	return adapters.TransitionResult{NewStatus: toStatus, EventType: eventType}, nil
}

func (c *Client) AddComment(ctx context.Context, id, body string) error {
	return c.do(ctx, `mutation($id:String!,$body:String!){commentCreate(input:{issueId:$id, body:$body}){success}}`,
		map[string]any{"id": id, "body": body}, nil)
}

func (c *Client) List(ctx context.Context, f adapters.TicketFilter) ([]adapters.TicketSnapshot, error) {
	var out struct {
		Issues struct {
			Nodes []struct {
				ID       string                `json:"id"`
				Title    string                `json:"title"`
				State    struct{ Name string }  `json:"state"`
				Assignee struct{ Name string }  `json:"assignee"`
			} `json:"nodes"`
		} `json:"issues"`
	}
	if err := c.do(ctx, `query{issues{nodes{id title state{name} assignee{name}}}}`, nil, &out); err != nil {
		return nil, err
	}
	var snaps []adapters.TicketSnapshot
	for _, n := range out.Issues.Nodes {
		if f.Status != "" && n.State.Name != f.Status {
			continue
		}
		if f.Assignee != "" && n.Assignee.Name != f.Assignee {
			continue
		}
		snaps = append(snaps, adapters.TicketSnapshot{ID: n.ID, Title: n.Title, Status: n.State.Name, Assignee: n.Assignee.Name})
	}
	return snaps, nil
}

var _ adapters.Tickets = (*Client)(nil)
