package opstore

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// matches reports whether v satisfies f: every key in f.Equals must be
// present in v with an equal string value, and f.Since (if set) must be
// at or before v's created_at (the row's insertion time when the payload
// carries none).
func (f Filter) matches(createdAt time.Time, v map[string]any) bool {
	if f.Since != nil {
		if s, ok := v["created_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil && !t.IsZero() {
				createdAt = t
			}
		}
		if createdAt.Before(*f.Since) {
			return false
		}
	}
	for k, want := range f.Equals {
		got, ok := v[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

func toMap(payload []byte) map[string]any {
	var m map[string]any
	json.Unmarshal(payload, &m)
	return m
}

// --- Agent ---

func (s *Store) SaveAgent(a Agent) (string, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal agent: %w", err)
	}
	if err := s.saveRaw(EntityAgent, a.ID, payload); err != nil {
		return "", fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return a.ID, nil
}

func (s *Store) GetAgent(id string) (*Agent, error) {
	r, err := s.getRaw(EntityAgent, id)
	if err != nil || r == nil {
		return nil, err
	}
	var a Agent
	if err := json.Unmarshal(r.Payload, &a); err != nil {
		return nil, fmt.Errorf("unmarshal agent %s: %w", id, err)
	}
	return &a, nil
}

func (s *Store) ListAgents(f Filter) ([]Agent, error) {
	rows, err := s.listRaw(EntityAgent, true)
	if err != nil {
		return nil, err
	}
	var out []Agent
	for _, r := range rows {
		if !f.matches(r.CreatedAt, toMap(r.Payload)) {
			continue
		}
		var a Agent
		if err := json.Unmarshal(r.Payload, &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) DeleteAgent(id string) error { return s.deleteRaw(EntityAgent, id) }

func (s *Store) CountAgents(f Filter) (int, error) {
	agents, err := s.ListAgents(f)
	return len(agents), err
}

// --- Ticket ---

func (s *Store) SaveTicket(t Ticket) (string, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal ticket: %w", err)
	}
	if err := s.saveRaw(EntityTicket, t.ID, payload); err != nil {
		return "", fmt.Errorf("save ticket %s: %w", t.ID, err)
	}
	return t.ID, nil
}

func (s *Store) GetTicket(id string) (*Ticket, error) {
	r, err := s.getRaw(EntityTicket, id)
	if err != nil || r == nil {
		return nil, err
	}
	var t Ticket
	if err := json.Unmarshal(r.Payload, &t); err != nil {
		return nil, fmt.Errorf("unmarshal ticket %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) ListTickets(f Filter) ([]Ticket, error) {
	rows, err := s.listRaw(EntityTicket, true)
	if err != nil {
		return nil, err
	}
	var out []Ticket
	for _, r := range rows {
		if !f.matches(r.CreatedAt, toMap(r.Payload)) {
			continue
		}
		var t Ticket
		if err := json.Unmarshal(r.Payload, &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) DeleteTicket(id string) error { return s.deleteRaw(EntityTicket, id) }

func (s *Store) CountTickets(f Filter) (int, error) {
	tickets, err := s.ListTickets(f)
	return len(tickets), err
}

// --- PullRequest ---

func (s *Store) SavePullRequest(p PullRequest) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal pull request: %w", err)
	}
	if err := s.saveRaw(EntityPullRequest, p.ID, payload); err != nil {
		return "", fmt.Errorf("save pull request %s: %w", p.ID, err)
	}
	return p.ID, nil
}

func (s *Store) GetPullRequest(id string) (*PullRequest, error) {
	r, err := s.getRaw(EntityPullRequest, id)
	if err != nil || r == nil {
		return nil, err
	}
	var p PullRequest
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pull request %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) ListPullRequests(f Filter) ([]PullRequest, error) {
	rows, err := s.listRaw(EntityPullRequest, true)
	if err != nil {
		return nil, err
	}
	var out []PullRequest
	for _, r := range rows {
		if !f.matches(r.CreatedAt, toMap(r.Payload)) {
			continue
		}
		var p PullRequest
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) DeletePullRequest(id string) error { return s.deleteRaw(EntityPullRequest, id) }

// --- Review ---

func (s *Store) SaveReview(rv Review) (string, error) {
	payload, err := json.Marshal(rv)
	if err != nil {
		return "", fmt.Errorf("marshal review: %w", err)
	}
	if err := s.saveRaw(EntityReview, rv.ID, payload); err != nil {
		return "", fmt.Errorf("save review %s: %w", rv.ID, err)
	}
	return rv.ID, nil
}

func (s *Store) ListReviews(f Filter) ([]Review, error) {
	rows, err := s.listRaw(EntityReview, true)
	if err != nil {
		return nil, err
	}
	var out []Review
	for _, r := range rows {
		if !f.matches(r.CreatedAt, toMap(r.Payload)) {
			continue
		}
		var rv Review
		if err := json.Unmarshal(r.Payload, &rv); err != nil {
			continue
		}
		out = append(out, rv)
	}
	return out, nil
}

// --- Decision ---

func (s *Store) SaveDecision(d Decision) (string, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal decision: %w", err)
	}
	if err := s.saveRaw(EntityDecision, d.ID, payload); err != nil {
		return "", fmt.Errorf("save decision %s: %w", d.ID, err)
	}
	return d.ID, nil
}

func (s *Store) ListDecisions(f Filter) ([]Decision, error) {
	rows, err := s.listRaw(EntityDecision, true)
	if err != nil {
		return nil, err
	}
	var out []Decision
	for _, r := range rows {
		if !f.matches(r.CreatedAt, toMap(r.Payload)) {
			continue
		}
		var d Decision
		if err := json.Unmarshal(r.Payload, &d); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// --- Model ---

func (s *Store) SaveModel(m Model) (string, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal model: %w", err)
	}
	if err := s.saveRaw(EntityModel, m.ID, payload); err != nil {
		return "", fmt.Errorf("save model %s: %w", m.ID, err)
	}
	return m.ID, nil
}

func (s *Store) GetModel(id string) (*Model, error) {
	r, err := s.getRaw(EntityModel, id)
	if err != nil || r == nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(r.Payload, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model %s: %w", id, err)
	}
	return &m, nil
}

// --- Sprint ---

func (s *Store) SaveSprint(sp Sprint) (string, error) {
	payload, err := json.Marshal(sp)
	if err != nil {
		return "", fmt.Errorf("marshal sprint: %w", err)
	}
	if err := s.saveRaw(EntitySprint, sp.ID, payload); err != nil {
		return "", fmt.Errorf("save sprint %s: %w", sp.ID, err)
	}
	return sp.ID, nil
}

func (s *Store) ListSprints(f Filter) ([]Sprint, error) {
	rows, err := s.listRaw(EntitySprint, true)
	if err != nil {
		return nil, err
	}
	var out []Sprint
	for _, r := range rows {
		if !f.matches(r.CreatedAt, toMap(r.Payload)) {
			continue
		}
		var sp Sprint
		if err := json.Unmarshal(r.Payload, &sp); err != nil {
			continue
		}
		out = append(out, sp)
	}
	return out, nil
}

type fileInfo struct {
	size    int64
	modTime time.Time
}

func statFile(path string) (fileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileInfo{}, err
	}
	return fileInfo{size: fi.Size(), modTime: fi.ModTime()}, nil
}
