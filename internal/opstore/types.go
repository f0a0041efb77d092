// Package opstore implements the operational entity/event store —
// entities with soft deletes and an append-only event ledger, plus the
// typed query layer (ActiveAgents, TicketTimeline, CostSummarySince,
// ...) that composes store results instead of issuing raw SQL.
//
// Schema is created idempotently on Open, plain database/sql over
// modernc.org/sqlite.
package opstore

import "time"

// EntityType names one of the seven entity kinds stored in the
// operational store.
type EntityType string

const (
	EntityAgent       EntityType = "agent"
	EntityTicket      EntityType = "ticket"
	EntityPullRequest EntityType = "pull_request"
	EntityReview      EntityType = "review"
	EntityDecision    EntityType = "decision"
	EntityModel       EntityType = "model"
	EntitySprint      EntityType = "sprint"
)

// EventType names one of the five append-only event kinds.
type EventType string

const (
	EventLifecycle EventType = "lifecycle"
	EventTicket    EventType = "ticket"
	EventPR        EventType = "pr"
	EventReview    EventType = "review"
	EventToken     EventType = "token"
)

// AgentState mirrors the lifecycle states of a running agent instance.
type AgentState string

const (
	AgentSpawning  AgentState = "spawning"
	AgentRunning   AgentState = "running"
	AgentBlocked   AgentState = "blocked"
	AgentCompleted AgentState = "completed"
	AgentFailed    AgentState = "failed"
	AgentStopped   AgentState = "stopped"
)

// Entity is satisfied by every one of the seven entity structs. It lets
// the generic Store adapter port (internal/adapters) dispatch Save/Get/
// List by runtime type instead of duplicating per-kind methods at that
// layer — a struct per variant rather than an opaque map with a type
// tag.
type Entity interface {
	Kind() EntityType
}

// Agent is a runtime instance of a role.
type Agent struct {
	ID          string     `json:"id"`
	AgentCode   string     `json:"agent_code"`
	InstanceID  string     `json:"instance_id"`
	State       AgentState `json:"state"`
	TicketID    string     `json:"ticket_id,omitempty"`
	Model       string     `json:"model,omitempty"`
	Worktree    string     `json:"worktree,omitempty"`
	Branch      string     `json:"branch,omitempty"`
	SpawnedBy   string     `json:"spawned_by,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	ModifiedAt  time.Time  `json:"modified_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Ticket is a unit of work tracked both locally and, optionally, on an
// external tracker.
type Ticket struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	Assignee   string     `json:"assignee,omitempty"`
	Priority   string     `json:"priority,omitempty"`
	BlockedBy  string     `json:"blocked_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	ModifiedAt time.Time  `json:"modified_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// PullRequest tracks a code review unit.
type PullRequest struct {
	ID         string     `json:"id"`
	TicketID   string     `json:"ticket_id"`
	Number     int        `json:"number"`
	Branch     string     `json:"branch"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	ModifiedAt time.Time  `json:"modified_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Review is one reviewer's verdict on a pull request.
type Review struct {
	ID           string     `json:"id"`
	PRNumber     int        `json:"pr_number"`
	TicketID     string     `json:"ticket_id"`
	Reviewer     string     `json:"reviewer"`
	Verdict      string     `json:"verdict"`
	Round        int        `json:"round"`
	FindingCount int        `json:"finding_count"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
	ModifiedAt   time.Time  `json:"modified_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Decision is an architecture/decision record (an "HDR").
type Decision struct {
	ID         string     `json:"id"`
	HDRNumber  string     `json:"hdr_number,omitempty"`
	Type       string     `json:"decision_type"`
	Context    string     `json:"context"`
	Decision   string     `json:"decision"`
	Rationale  string     `json:"rationale"`
	Author     string     `json:"author"`
	TicketCode string     `json:"ticket_code,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	ModifiedAt time.Time  `json:"modified_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Model holds per-million-token pricing for a model code.
type Model struct {
	ID              string     `json:"id"`
	InputPerM       float64    `json:"input_per_m"`
	OutputPerM      float64    `json:"output_per_m"`
	CacheReadPerM   float64    `json:"cache_read_per_m"`
	CacheCreatePerM float64    `json:"cache_create_per_m"`
	CreatedAt       time.Time  `json:"created_at,omitempty"`
	ModifiedAt      time.Time  `json:"modified_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Sprint is a fixed time-boxed window used by velocity metrics.
type Sprint struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	ModifiedAt time.Time  `json:"modified_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Event is an append-only record linked to an entity id. Data carries
// event-type-specific fields as a JSON-serializable map.
type Event struct {
	ID        int64          `json:"id"`
	Type      EventType      `json:"event_type"`
	EntityID  string         `json:"entity_id"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data"`
}

// Filter is the per-query shape the Store port's list/count/events methods
// accept. It recognizes field-equality plus a "since" timestamp — a
// small struct rather than an opaque map, so call sites stay statically
// checkable.
type Filter struct {
	Equals map[string]string
	Since  *time.Time
}

func (Agent) Kind() EntityType       { return EntityAgent }
func (Ticket) Kind() EntityType      { return EntityTicket }
func (PullRequest) Kind() EntityType { return EntityPullRequest }
func (Review) Kind() EntityType      { return EntityReview }
func (Decision) Kind() EntityType    { return EntityDecision }
func (Model) Kind() EntityType       { return EntityModel }
func (Sprint) Kind() EntityType      { return EntitySprint }
