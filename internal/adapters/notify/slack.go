// Package notify implements the adapters.Notify port against the Slack
// Web API: a plain net/http.Client posting JSON, with message bodies
// converted from standard markdown to Slack's mrkdwn dialect on the way
// out.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetherd/herd/internal/adapters"
)

// Client posts to the Slack Web API (chat.postMessage-shaped).
type Client struct {
	token      string
	apiURL     string
	httpClient *http.Client
}

// New constructs a Client authorized with a bot token.
func New(token string) *Client {
	return &Client{
		token:      token,
		apiURL:     "https://slack.com/api/chat.postMessage",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type postRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type postResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

func (c *Client) post(ctx context.Context, req postRequest) (adapters.PostResult, error) {
	req.Text = markdownToSlackMrkdwn(req.Text)

	body, err := json.Marshal(req)
	if err != nil {
		return adapters.PostResult{}, fmt.Errorf("notify: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return adapters.PostResult{}, fmt.Errorf("notify: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return adapters.PostResult{}, fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()

	var pr postResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return adapters.PostResult{}, fmt.Errorf("notify: decode response: %w", err)
	}
	if !pr.OK {
		return adapters.PostResult{}, fmt.Errorf("notify: slack error: %s", pr.Error)
	}
	return adapters.PostResult{MessageID: pr.TS, Channel: req.Channel, Timestamp: time.Now().UTC()}, nil
}

func (c *Client) Post(ctx context.Context, message, channel, username, icon string) (adapters.PostResult, error) {
	return c.post(ctx, postRequest{Channel: channel, Text: message, Username: username, IconURL: icon})
}

func (c *Client) PostThread(ctx context.Context, threadID, message, channel string) (adapters.PostResult, error) {
	return c.post(ctx, postRequest{Channel: channel, Text: message, ThreadTS: threadID})
}

func (c *Client) GetThreadReplies(ctx context.Context, channel, threadID string) ([]adapters.NotifyMessage, error) {
	url := fmt.Sprintf("https://slack.com/api/conversations.replies?channel=%s&ts=%s", channel, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		OK       bool `json:"ok"`
		Messages []struct {
			TS   string `json:"ts"`
			User string `json:"user"`
			Text string `json:"text"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("notify: decode response: %w", err)
	}
	msgs := make([]adapters.NotifyMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, adapters.NotifyMessage{MessageID: uuid.NewString(), UserName: m.User, Body: m.Text})
	}
	return msgs, nil
}

// markdownToSlackMrkdwn converts standard markdown to Slack's mrkdwn
// dialect: links, bold/italic/strikethrough, and headings are remapped;
// code fences are left untouched by skipping every other split segment.
func markdownToSlackMrkdwn(text string) string {
	parts := strings.Split(text, "```")
	for i := 0; i < len(parts); i += 2 {
		parts[i] = convertProse(parts[i])
	}
	return strings.Join(parts, "```")
}

var (
	reLink    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic  = regexp.MustCompile(`(?:^|[^*])\*([^*]+?)\*(?:[^*]|$)`)
	reStrike  = regexp.MustCompile(`~~(.+?)~~`)
	reHeading = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
)

func convertProse(s string) string {
	s = reLink.ReplaceAllString(s, "<$2|$1>")
	s = convertItalic(s)
	s = reBold.ReplaceAllString(s, "*$1*")
	s = reStrike.ReplaceAllString(s, "~$1~")
	s = reHeading.ReplaceAllString(s, "*$1*")
	return s
}

// convertItalic converts *text* → _text_ without matching **bold**.
func convertItalic(s string) string {
	for {
		loc := reItalic.FindStringIndex(s)
		if loc == nil {
			break
		}
		match := s[loc[0]:loc[1]]
		firstStar := strings.Index(match, "*")
		lastStar := strings.LastIndex(match, "*")
		if firstStar == lastStar {
			break
		}
		inner := match[firstStar+1 : lastStar]
		replacement := match[:firstStar] + "_" + inner + "_" + match[lastStar+1:]
		s = s[:loc[0]] + replacement + s[loc[1]:]
	}
	return s
}

var _ adapters.Notify = (*Client)(nil)
