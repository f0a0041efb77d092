package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetherd/herd/internal/adapters"
	"github.com/fleetherd/herd/internal/graph"
	"github.com/fleetherd/herd/internal/opstore"
	"github.com/fleetherd/herd/internal/runtime"
)

// formatReviewBody renders a markdown review body split into blocking and
// advisory sections, the shape herd_review posts to both the code host
// and the notification channel.
func formatReviewBody(verdict string, round int, findings []map[string]any) string {
	var blocking, advisory []map[string]any
	for _, f := range findings {
		sev, _ := f["severity"].(string)
		if sev == "advisory" || sev == "nit" {
			advisory = append(advisory, f)
		} else {
			blocking = append(blocking, f)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Review round %d — %s\n\n", round, verdict)
	if len(blocking) > 0 {
		b.WriteString("**Blocking findings:**\n\n")
		for _, f := range blocking {
			fmt.Fprintf(&b, "- %v\n", f["summary"])
		}
		b.WriteString("\n")
	}
	if len(advisory) > 0 {
		b.WriteString("**Advisory findings:**\n\n")
		for _, f := range advisory {
			fmt.Fprintf(&b, "- %v\n", f["summary"])
		}
	}
	if len(blocking) == 0 && len(advisory) == 0 {
		b.WriteString("No findings.\n")
	}
	return b.String()
}

// HerdReview implements herd_review.
func HerdReview(rt *runtime.Runtime) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		prNumber := strArg(args, "pr_number")
		ticketID := strArg(args, "ticket_id")
		verdict := strArg(args, "verdict")
		if prNumber == "" || ticketID == "" || verdict == "" {
			return errResult("herd_review: pr_number, ticket_id, and verdict are required"), nil
		}
		switch verdict {
		case "pass", "fail", "pass_with_advisory":
		default:
			return errResult("herd_review: unknown verdict %q", verdict), nil
		}
		if rt.Adapters.Store == nil {
			return errResult("herd_review: %s", adapters.NotConfigured("store")), nil
		}
		caller := resolveCaller(ctx, rt, args)

		findingsRaw, _ := args["findings"].([]any)
		var findings []map[string]any
		for _, f := range findingsRaw {
			if m, ok := f.(map[string]any); ok {
				findings = append(findings, m)
			}
		}

		existing, err := rt.Adapters.Store.List(ctx, opstore.EntityReview, opstore.Filter{
			Equals: map[string]string{"ticket_id": ticketID},
		})
		if err != nil {
			return errResult("herd_review: list reviews: %v", err), nil
		}
		reviewRound := 1
		prNum, _ := strconv.Atoi(prNumber)
		for _, e := range existing {
			rv := e.(opstore.Review)
			if rv.PRNumber == prNum {
				reviewRound++
			}
		}

		now := time.Now().UTC()
		reviewID := uuid.NewString()
		rv := opstore.Review{
			ID: reviewID, PRNumber: prNum, TicketID: ticketID,
			Reviewer: caller.Address(), Verdict: verdict, Round: reviewRound,
			FindingCount: len(findings), CreatedAt: now,
		}
		if _, err := rt.Adapters.Store.Save(ctx, rv); err != nil {
			return errResult("herd_review: save review: %v", err), nil
		}
		rt.Adapters.Store.Append(ctx, opstore.Event{
			Type: opstore.EventReview, EntityID: ticketID, CreatedAt: now,
			Data: map[string]any{"review_id": reviewID, "pr_number": prNum, "verdict": verdict, "round": reviewRound},
		})

		reviewerKey := mergeAgentGraphNode(rt, caller.Agent, caller.InstanceID)
		mergeTicketGraphNodeByID(ctx, rt, ticketID)
		if _, err := rt.Graph.CreateEdge(graph.Reviews, graph.AgentNode, reviewerKey, graph.Ticket, ticketID, map[string]any{
			"verdict": verdict, "round": reviewRound,
		}); err != nil {
			rt.Log.Warn("herd_review: graph edge failed", "error", err)
		}

		body := formatReviewBody(verdict, reviewRound, findings)

		githubPosted := false
		if rt.Adapters.Repo != nil {
			if err := rt.Adapters.Repo.AddPRComment(ctx, prNumber, body); err != nil {
				rt.Log.Warn("herd_review: github post failed", "pr", prNumber, "error", err)
			} else {
				githubPosted = true
			}
		}

		slackPosted, notifyErr := notifyBestEffort(ctx, rt, "reviews", body)
		_ = notifyErr

		return okResult(map[string]any{
			"review_id":      reviewID,
			"posted":         githubPosted && slackPosted,
			"github_posted":  githubPosted,
			"slack_posted":   slackPosted,
			"findings_count": len(findings),
			"review_round":   reviewRound,
		}), nil
	}
}
