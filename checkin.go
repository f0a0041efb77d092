package herd

import (
	"sync"
	"time"
)

// Staleness thresholds for checkin entries.
const (
	StaleThreshold        = 5 * time.Minute
	UnresponsiveThreshold = 10 * time.Minute
)

// CheckinEntry is a single heartbeat record, overwritten on each call from
// the same address.
type CheckinEntry struct {
	Address    string
	StatusText string
	Agent      string
	Team       string
	Ticket     string
	Timestamp  time.Time
}

// Staleness classifies an entry's age against the freshness thresholds.
// It returns "", "stale", or "unresponsive".
func (e CheckinEntry) Staleness(now time.Time) string {
	age := now.Sub(e.Timestamp)
	switch {
	case age < StaleThreshold:
		return ""
	case age < UnresponsiveThreshold:
		return "stale"
	default:
		return "unresponsive"
	}
}

// CheckinRegistry is an in-memory, process-resident heartbeat map. It is
// never persisted — heartbeats are cheap to refresh after a restart.
type CheckinRegistry struct {
	mu      sync.Mutex
	entries map[string]CheckinEntry
	now     func() time.Time
}

// NewCheckinRegistry constructs an empty registry.
func NewCheckinRegistry() *CheckinRegistry {
	return &CheckinRegistry{
		entries: make(map[string]CheckinEntry),
		now:     time.Now,
	}
}

// Record overwrites the entry for address, stamping it with the current
// UTC time.
func (r *CheckinRegistry) Record(address, status, agent, team, ticket string) CheckinEntry {
	e := CheckinEntry{
		Address:    address,
		StatusText: status,
		Agent:      agent,
		Team:       team,
		Ticket:     ticket,
		Timestamp:  r.now().UTC(),
	}
	r.mu.Lock()
	r.entries[address] = e
	r.mu.Unlock()
	return e
}

// GetActive returns entries whose age is below UnresponsiveThreshold,
// optionally filtered by team. An empty registry (or empty team match)
// returns an empty, non-nil map.
func (r *CheckinRegistry) GetActive(team string) map[string]CheckinEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	active := make(map[string]CheckinEntry)
	for addr, e := range r.entries {
		if now.Sub(e.Timestamp) >= UnresponsiveThreshold {
			continue
		}
		if team != "" && e.Team != team {
			continue
		}
		active[addr] = e
	}
	return active
}

// Staleness returns the staleness classification for address, or "" if
// the address is unknown or fresh.
func (r *CheckinRegistry) Staleness(address string) string {
	r.mu.Lock()
	e, ok := r.entries[address]
	r.mu.Unlock()
	if !ok {
		return ""
	}
	return e.Staleness(r.now())
}
