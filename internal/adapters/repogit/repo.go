// Package repogit implements the adapters.Repo port against a local git
// checkout (branches and worktrees via os/exec) and a GitHub-style REST
// API for pull requests (bearer-token JSON client).
package repogit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/fleetherd/herd/internal/adapters"
)

// Client drives git via os/exec in repoDir, and talks to a GitHub-shaped
// REST API for PR operations.
type Client struct {
	repoDir    string
	apiBase    string // e.g. https://api.github.com/repos/org/repo
	token      string
	httpClient *http.Client
}

// New constructs a Client rooted at repoDir, talking to apiBase
// (e.g. "https://api.github.com/repos/acme/widgets") with token auth.
func New(repoDir, apiBase, token string) *Client {
	return &Client{
		repoDir:    repoDir,
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.repoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("repo: git %s: %w: %s", strings.Join(args, " "), err, out)
	}
	return string(out), nil
}

func (c *Client) CreateBranch(ctx context.Context, name, base string) (string, error) {
	if _, err := c.git(ctx, "branch", name, base); err != nil {
		return "", err
	}
	return name, nil
}

func (c *Client) CreateWorktree(ctx context.Context, branch, path string) (string, error) {
	if _, err := c.git(ctx, "worktree", "add", path, branch); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Client) RemoveWorktree(ctx context.Context, path string) error {
	_, err := c.git(ctx, "worktree", "remove", "--force", path)
	return err
}

// Push refuses to push directly to main/master — the git-safety directive
// herd_spawn's context payload hands every agent ("never push to main").
func (c *Client) Push(ctx context.Context, branch string) error {
	if branch == "main" || branch == "master" {
		return fmt.Errorf("repo: refusing to push directly to %s", branch)
	}
	_, err := c.git(ctx, "push", "origin", branch)
	return err
}

func (c *Client) apiRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("repo: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return fmt.Errorf("repo: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("repo: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("repo: http %d from %s %s", resp.StatusCode, method, path)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) CreatePR(ctx context.Context, title, body, head, base string) (string, error) {
	var out struct {
		Number int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := c.apiRequest(ctx, http.MethodPost, "/pulls", map[string]string{
		"title": title, "body": body, "head": head, "base": base,
	}, &out); err != nil {
		return "", err
	}
	return strconv.Itoa(out.Number), nil
}

func (c *Client) GetPR(ctx context.Context, id string) (adapters.PRRecord, error) {
	var out struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		Body    string `json:"body"`
		Head    struct{ Ref string } `json:"head"`
		Base    struct{ Ref string } `json:"base"`
		State   string `json:"state"`
		HTMLURL string `json:"html_url"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, "/pulls/"+id, nil, &out); err != nil {
		return adapters.PRRecord{}, err
	}
	return adapters.PRRecord{
		ID: strconv.Itoa(out.Number), Title: out.Title, Body: out.Body,
		Head: out.Head.Ref, Base: out.Base.Ref, Status: out.State, URL: out.HTMLURL,
	}, nil
}

func (c *Client) MergePR(ctx context.Context, id string) error {
	return c.apiRequest(ctx, http.MethodPut, "/pulls/"+id+"/merge", map[string]string{"merge_method": "squash"}, nil)
}

func (c *Client) AddPRComment(ctx context.Context, id, body string) error {
	return c.apiRequest(ctx, http.MethodPost, "/issues/"+id+"/comments", map[string]string{"body": body}, nil)
}

// GetLog shells out to `git log` for commits since a timestamp, feeding
// the activity section of herd_catchup.
func (c *Client) GetLog(ctx context.Context, since time.Time, limit int) ([]adapters.Commit, error) {
	args := []string{"log", `--pretty=format:%H%x09%an%x09%aI%x09%s`}
	if !since.IsZero() {
		args = append(args, "--since="+since.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	out, err := c.git(ctx, args...)
	if err != nil {
		return nil, err
	}

	var commits []adapters.Commit
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, fields[2])
		commits = append(commits, adapters.Commit{SHA: fields[0], Author: fields[1], Timestamp: ts, Message: fields[3]})
	}
	return commits, nil
}

var _ adapters.Repo = (*Client)(nil)
