// Package adapters declares the five capability ports: Store, Tickets,
// Notify, Repo, and Agent. Each is a narrow interface a concrete
// back-end satisfies structurally — conformance is checked by the Go
// compiler at the call site, never by registration ceremony.
//
// A Registry holds whatever subset of these five is configured at
// startup. A missing slot is nil; tool handlers that need it return a
// structured NotConfigured error rather than panicking.
package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetherd/herd/internal/opstore"
)

// Store is the operational record store port.
type Store interface {
	Get(ctx context.Context, kind opstore.EntityType, id string) (opstore.Entity, error)
	List(ctx context.Context, kind opstore.EntityType, f opstore.Filter) ([]opstore.Entity, error)
	Save(ctx context.Context, e opstore.Entity) (string, error)
	Delete(ctx context.Context, kind opstore.EntityType, id string) error
	Append(ctx context.Context, e opstore.Event) error
	Count(ctx context.Context, kind opstore.EntityType, f opstore.Filter) (int, error)
	Events(ctx context.Context, typ opstore.EventType, entityID string) ([]opstore.Event, error)
	StorageInfo(ctx context.Context) (opstore.StorageInfo, error)
}

// TicketSnapshot is the Tickets port's read-shape for a single ticket.
type TicketSnapshot struct {
	ID          string
	Title       string
	Description string
	Status      string
	Assignee    string
	Priority    string
	BlockedBy   string
	URL         string
}

// CreateTicketOptions carries the optional fields accepted by Tickets.Create.
type CreateTicketOptions struct {
	Description string
	Priority    string
	Assignee    string
}

// TransitionResult is returned by Tickets.Transition.
type TransitionResult struct {
	PreviousStatus string
	NewStatus      string
	EventType      string
	ElapsedMinutes *float64
}

// TicketFilter is the per-backend filter shape List(filters) accepts.
type TicketFilter struct {
	Status   string
	Assignee string
}

// Tickets is the external ticket-tracker port.
type Tickets interface {
	Get(ctx context.Context, id string) (TicketSnapshot, error)
	Create(ctx context.Context, title string, opts CreateTicketOptions) (string, error)
	Update(ctx context.Context, id string, fields map[string]string) error
	Transition(ctx context.Context, id, toStatus, note, blockedBy string) (TransitionResult, error)
	AddComment(ctx context.Context, id, body string) error
	List(ctx context.Context, f TicketFilter) ([]TicketSnapshot, error)
}

// PostResult is returned by Notify.Post / Notify.PostThread.
type PostResult struct {
	MessageID string
	Channel   string
	Timestamp time.Time
}

// NotifyMessage is one message returned by GetThreadReplies.
type NotifyMessage struct {
	MessageID string
	UserName  string
	Body      string
	Timestamp time.Time
}

// Notify is the chat-platform notification port.
type Notify interface {
	Post(ctx context.Context, message, channel, username, icon string) (PostResult, error)
	PostThread(ctx context.Context, threadID, message, channel string) (PostResult, error)
	GetThreadReplies(ctx context.Context, channel, threadID string) ([]NotifyMessage, error)
}

// Commit is one entry returned by Repo.GetLog.
type Commit struct {
	SHA       string
	Author    string
	Message   string
	Timestamp time.Time
}

// PRRecord is the Repo port's read-shape for a pull request.
type PRRecord struct {
	ID     string
	Title  string
	Body   string
	Head   string
	Base   string
	Status string
	URL    string
}

// Repo is the code-host / git port.
type Repo interface {
	CreateBranch(ctx context.Context, name, base string) (string, error)
	CreateWorktree(ctx context.Context, branch, path string) (string, error)
	RemoveWorktree(ctx context.Context, path string) error
	Push(ctx context.Context, branch string) error
	CreatePR(ctx context.Context, title, body, head, base string) (string, error)
	GetPR(ctx context.Context, id string) (PRRecord, error)
	MergePR(ctx context.Context, id string) error
	AddPRComment(ctx context.Context, id, body string) error
	GetLog(ctx context.Context, since time.Time, limit int) ([]Commit, error)
}

// SpawnResult is returned by Agent.Spawn.
type SpawnResult struct {
	InstanceID string
	Agent      string
	TicketID   string
	Model      string
	Worktree   string
	Branch     string
	SpawnedAt  time.Time
}

// AgentStatus is returned by Agent.GetStatus.
type AgentStatus struct {
	InstanceID string
	State      string
	Message    string
}

// Agent is the subprocess-spawning port — sandboxes an agent
// instance, not to be confused with opstore.Agent, the record of one.
type Agent interface {
	Spawn(ctx context.Context, role, ticketID, context_ string, model string) (SpawnResult, error)
	GetStatus(ctx context.Context, instanceID string) (AgentStatus, error)
	Stop(ctx context.Context, instanceID string) error
}

// ErrNotConfigured is returned (wrapped with the slot name) when a tool
// handler needs an adapter the Registry doesn't have.
var ErrNotConfigured = fmt.Errorf("not configured")

// Registry holds the adapters wired in at startup. Any field may be nil.
// WriteLock is the single cross-adapter write lock: handlers that write
// Store + Tickets + Notify in one
// tool call acquire it for the duration of that compound write so an
// external observer never sees them interleave with another tool call's
// writes. It is deliberately one lock for the whole registry, not one per
// adapter — the ordering guarantee that matters is cross-adapter, not
// per-adapter internal consistency.
type Registry struct {
	Store   Store
	Tickets Tickets
	Notify  Notify
	Repo    Repo
	Agent   Agent

	WriteLock sync.Mutex
}

// NotConfigured builds the structured "X not configured" error a handler
// returns when a required slot is nil.
func NotConfigured(slot string) error {
	return fmt.Errorf("%s %w", slot, ErrNotConfigured)
}
