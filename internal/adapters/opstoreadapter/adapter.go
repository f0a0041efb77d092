// Package opstoreadapter implements the adapters.Store port over
// internal/opstore.Store. The operational store itself stays typed
// (SaveAgent, ListTickets, ...); this adapter is the one place that
// dispatches on opstore.EntityType to satisfy the generic port — the
// dispatch lives at the port boundary, not inside the store itself.
package opstoreadapter

import (
	"context"
	"fmt"

	"github.com/fleetherd/herd/internal/opstore"
)

// Adapter wraps an *opstore.Store to satisfy adapters.Store.
type Adapter struct {
	store *opstore.Store
	path  string
}

// New builds an Adapter over store, reporting path from StorageInfo.
func New(store *opstore.Store, path string) *Adapter {
	return &Adapter{store: store, path: path}
}

func (a *Adapter) Get(_ context.Context, kind opstore.EntityType, id string) (opstore.Entity, error) {
	switch kind {
	case opstore.EntityAgent:
		v, err := a.store.GetAgent(id)
		return entityOrNil(v, err)
	case opstore.EntityTicket:
		v, err := a.store.GetTicket(id)
		return entityOrNil(v, err)
	case opstore.EntityPullRequest:
		v, err := a.store.GetPullRequest(id)
		return entityOrNil(v, err)
	case opstore.EntityModel:
		v, err := a.store.GetModel(id)
		return entityOrNil(v, err)
	default:
		return nil, fmt.Errorf("opstoreadapter: Get not supported for entity kind %q", kind)
	}
}

func (a *Adapter) List(_ context.Context, kind opstore.EntityType, f opstore.Filter) ([]opstore.Entity, error) {
	switch kind {
	case opstore.EntityAgent:
		rows, err := a.store.ListAgents(f)
		return toEntities(rows, err)
	case opstore.EntityTicket:
		rows, err := a.store.ListTickets(f)
		return toEntities(rows, err)
	case opstore.EntityPullRequest:
		rows, err := a.store.ListPullRequests(f)
		return toEntities(rows, err)
	case opstore.EntityReview:
		rows, err := a.store.ListReviews(f)
		return toEntities(rows, err)
	case opstore.EntityDecision:
		rows, err := a.store.ListDecisions(f)
		return toEntities(rows, err)
	case opstore.EntitySprint:
		rows, err := a.store.ListSprints(f)
		return toEntities(rows, err)
	default:
		return nil, fmt.Errorf("opstoreadapter: List not supported for entity kind %q", kind)
	}
}

func (a *Adapter) Save(_ context.Context, e opstore.Entity) (string, error) {
	switch v := e.(type) {
	case opstore.Agent:
		return a.store.SaveAgent(v)
	case opstore.Ticket:
		return a.store.SaveTicket(v)
	case opstore.PullRequest:
		return a.store.SavePullRequest(v)
	case opstore.Review:
		return a.store.SaveReview(v)
	case opstore.Decision:
		return a.store.SaveDecision(v)
	case opstore.Model:
		return a.store.SaveModel(v)
	case opstore.Sprint:
		return a.store.SaveSprint(v)
	default:
		return "", fmt.Errorf("opstoreadapter: Save not supported for %T", e)
	}
}

func (a *Adapter) Delete(_ context.Context, kind opstore.EntityType, id string) error {
	switch kind {
	case opstore.EntityAgent:
		return a.store.DeleteAgent(id)
	case opstore.EntityTicket:
		return a.store.DeleteTicket(id)
	case opstore.EntityPullRequest:
		return a.store.DeletePullRequest(id)
	default:
		return fmt.Errorf("opstoreadapter: Delete not supported for entity kind %q", kind)
	}
}

func (a *Adapter) Append(_ context.Context, e opstore.Event) error {
	return a.store.AppendEvent(e)
}

func (a *Adapter) Count(ctx context.Context, kind opstore.EntityType, f opstore.Filter) (int, error) {
	if kind == opstore.EntityAgent {
		return a.store.CountAgents(f)
	}
	if kind == opstore.EntityTicket {
		return a.store.CountTickets(f)
	}
	entities, err := a.List(ctx, kind, f)
	return len(entities), err
}

func (a *Adapter) Events(_ context.Context, typ opstore.EventType, entityID string) ([]opstore.Event, error) {
	return a.store.Events(typ, entityID)
}

func (a *Adapter) StorageInfo(_ context.Context) (opstore.StorageInfo, error) {
	return a.store.StorageInfo(a.path)
}

func entityOrNil[T opstore.Entity](v *T, err error) (opstore.Entity, error) {
	if err != nil || v == nil {
		return nil, err
	}
	return *v, nil
}

func toEntities[T opstore.Entity](rows []T, err error) ([]opstore.Entity, error) {
	if err != nil {
		return nil, err
	}
	out := make([]opstore.Entity, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out, nil
}
