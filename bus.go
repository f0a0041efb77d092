package herd

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxMessageAge is how long a message may sit on the bus before it is
// pruned on the next read.
const MaxMessageAge = time.Hour

// Mirror is the durable on-disk keyed store backing the bus: one entry
// per live message, keyed by message id. Keyed storage rather than a
// whole-state snapshot, because individual messages churn constantly.
type Mirror interface {
	// Put writes or overwrites the mirrored copy of m.
	Put(m Message) error
	// Delete removes the mirrored copy for id, if any.
	Delete(id string) error
	// LoadAll returns every mirrored message, in no particular order.
	// Corrupt entries are skipped rather than failing the whole load.
	LoadAll() ([]Message, error)
	// Close releases any held handles.
	Close() error
}

// Bus is the single-process message queue: an ordered
// hot list for sub-millisecond delivery within a run, mirrored to disk so
// state survives a restart. All mutating operations are serialized on one
// lock; sends never block on readers.
type Bus struct {
	mu     sync.Mutex
	hot    []Message
	mirror Mirror
	log    *slog.Logger
	now    func() time.Time
}

// NewBus constructs a Bus and rehydrates its hot list from mirror,
// discarding entries already older than MaxMessageAge. mirror may be nil,
// in which case the bus runs in-memory only.
func NewBus(mirror Mirror, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	b := &Bus{mirror: mirror, log: log, now: time.Now}
	b.rehydrate()
	return b
}

func (b *Bus) rehydrate() {
	if b.mirror == nil {
		return
	}
	msgs, err := b.mirror.LoadAll()
	if err != nil {
		b.log.Warn("bus: failed to rehydrate from mirror", "error", err)
		return
	}
	cutoff := b.now().Add(-MaxMessageAge)
	for _, m := range msgs {
		if m.SentAt.Before(cutoff) {
			b.mirror.Delete(m.ID)
			continue
		}
		b.hot = append(b.hot, m)
	}
}

// Send enqueues a new message from "from" addressed to "to". It never fails:
// a mirror write failure is logged and the message stays delivered in
// memory only.
func (b *Bus) Send(from, to, body string, typ MessageType, priority Priority) Message {
	m := Message{
		ID:       uuid.NewString(),
		FromAddr: from,
		ToAddr:   to,
		Body:     body,
		Type:     typ,
		Priority: priority,
		SentAt:   b.now(),
	}

	b.mu.Lock()
	b.hot = append(b.hot, m)
	b.mu.Unlock()

	if b.mirror != nil {
		if err := b.mirror.Put(m); err != nil {
			b.log.Warn("bus: mirror write failed, message is in-memory only", "id", m.ID, "error", err)
		}
	}

	return m
}

// Read drains all matching messages for the given caller identity under a
// single lock: direct match, instance match, @anyone consume-once
// (mechanical agents excluded), @everyone once-per-reader-key, and
// leader visibility.
func (b *Bus) Read(agent, instance, team string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked()

	readerKey := instance
	if readerKey == "" {
		readerKey = agent
	}

	var matched []Message
	var remaining []Message
	var reread []Message

	for i := range b.hot {
		m := &b.hot[i]
		to := ParseAddress(m.ToAddr)

		switch {
		case to.Agent == Anyone:
			if !IsMechanical(agent) && (to.Team == "" || to.Team == team) {
				matched = append(matched, *m)
				continue // consumed: drop from remaining
			}
		case to.Agent == Everyone:
			if to.Team == "" || to.Team == team {
				if !m.readBy(readerKey) {
					m.markRead(readerKey)
					matched = append(matched, *m)
					reread = append(reread, *m)
				}
			}
			remaining = append(remaining, *m)
			continue
		case to.Instance != "":
			if to.Agent == agent && to.Instance == instance && to.Team == team {
				matched = append(matched, *m)
				continue
			}
		case to.Team != "":
			if to.Agent == agent && to.Team == team {
				matched = append(matched, *m)
				continue
			}
		default:
			if to.Agent == agent && (to.Team == "" || to.Team == team) {
				matched = append(matched, *m)
				continue
			}
		}

		// Leader visibility: a leader on a matching team is a qualified
		// consumer of messages addressed to any agent on that team, even
		// when to.Agent differs from the caller's own agent code.
		if IsLeader(agent) && to.Team != "" && to.Team == team && to.Agent != Everyone {
			matched = append(matched, *m)
			continue
		}

		remaining = append(remaining, *m)
	}

	b.hot = remaining
	if b.mirror != nil {
		for _, m := range matched {
			if m.ToAddr != "" && ParseAddress(m.ToAddr).Agent != Everyone {
				b.mirror.Delete(m.ID)
			}
		}
		// Re-mirror broadcast messages whose read_by set grew, so a
		// restart doesn't re-deliver them to a reader that already saw
		// them. Best-effort, like every other mirror write.
		for _, m := range reread {
			if err := b.mirror.Put(m); err != nil {
				b.log.Warn("bus: mirror update failed for broadcast read", "id", m.ID, "error", err)
			}
		}
	}

	return matched
}

// pruneLocked drops hot-list entries older than MaxMessageAge and removes
// their mirror keys. Caller must hold b.mu.
func (b *Bus) pruneLocked() {
	cutoff := b.now().Add(-MaxMessageAge)
	kept := b.hot[:0:0]
	for _, m := range b.hot {
		if m.SentAt.Before(cutoff) {
			if b.mirror != nil {
				b.mirror.Delete(m.ID)
			}
			continue
		}
		kept = append(kept, m)
	}
	b.hot = kept
}

// Close releases the bus's disk handles.
func (b *Bus) Close() error {
	if b.mirror == nil {
		return nil
	}
	return b.mirror.Close()
}
