// Package identity resolves tool-call caller identity: explicit
// parameter, then an agent-name environment variable, then the
// literal string "unknown". Instance id and team come from environment
// variables only. Resolving an instance id not yet recorded in the
// operational store creates a new Agent entity with a fresh lifecycle
// "spawned" event.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetherd/herd/internal/opstore"
)

// Unknown is the fallback agent code when no identity can be resolved.
const Unknown = "unknown"

// Caller is the resolved identity of a tool-call's originator.
type Caller struct {
	Agent      string
	InstanceID string
	Team       string
}

// Address renders Caller as a bus address string.
func (c Caller) Address() string {
	addr := c.Agent
	if c.InstanceID != "" {
		addr += "." + c.InstanceID
	}
	if c.Team != "" {
		addr += "@" + c.Team
	}
	return addr
}

// Env is the minimal environment view identity resolution needs — its
// fields are filled from the matching internal/config.Config fields.
type Env struct {
	AgentName  string
	InstanceID string
	Team       string
}

// Resolve applies the identity precedence: explicit param, then env agent
// name, then "unknown". Instance and team always come from env.
func Resolve(explicit string, env Env) Caller {
	agent := explicit
	if agent == "" {
		agent = env.AgentName
	}
	if agent == "" {
		agent = Unknown
	}
	return Caller{Agent: agent, InstanceID: env.InstanceID, Team: env.Team}
}

// Store is the subset of the operational store Ensure needs.
type Store interface {
	GetAgent(id string) (*opstore.Agent, error)
	SaveAgent(a opstore.Agent) (string, error)
	AppendEvent(e opstore.Event) error
}

// Ensure looks up an Agent entity keyed by caller's instance id, creating
// one (and appending a lifecycle "spawned" event) if this is the first
// time this instance has been seen. No-op when InstanceID is empty — a
// caller with no instance id isn't a registered runtime instance.
func Ensure(_ context.Context, store Store, caller Caller) error {
	if caller.InstanceID == "" {
		return nil
	}
	existing, err := store.GetAgent(caller.InstanceID)
	if err != nil {
		return fmt.Errorf("identity: lookup instance %s: %w", caller.InstanceID, err)
	}
	if existing != nil {
		return nil
	}

	now := time.Now().UTC()
	a := opstore.Agent{
		ID:         caller.InstanceID,
		AgentCode:  caller.Agent,
		InstanceID: caller.InstanceID,
		State:      opstore.AgentRunning,
		StartedAt:  now,
	}
	if _, err := store.SaveAgent(a); err != nil {
		return fmt.Errorf("identity: save new instance %s: %w", caller.InstanceID, err)
	}
	return store.AppendEvent(opstore.Event{
		Type:      opstore.EventLifecycle,
		EntityID:  caller.InstanceID,
		CreatedAt: now,
		Data:      map[string]any{"event": "spawned", "id": uuid.NewString(), "agent_code": caller.Agent},
	})
}
