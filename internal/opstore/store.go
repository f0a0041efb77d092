package opstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed operational record store: one polymorphic
// "entities" table (entity_type, entity_id, JSON payload) and one
// append-only "events" table. Entities are keyed by (entity_type,
// entity_id) and indexed by (entity_type, created_at); events are indexed
// by (event_type, entity_id, created_at).
//
// Filter matching is done in Go over the unmarshaled JSON payload rather
// than pushed into SQL — entity volume per project is low (the same
// O(n)-per-read tradeoff the bus makes) and it keeps the polymorphic
// schema simple: one table serves all seven entity kinds.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the SQLite database at path and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open operational store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		entity_type  TEXT NOT NULL,
		entity_id    TEXT NOT NULL,
		payload      TEXT NOT NULL,
		created_at   DATETIME NOT NULL,
		modified_at  DATETIME NOT NULL,
		deleted_at   DATETIME,
		PRIMARY KEY (entity_type, entity_id)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_type_created ON entities(entity_type, created_at);

	CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type  TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		created_at  DATETIME NOT NULL,
		data        TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_events_entity ON events(event_type, entity_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StorageInfo describes the store's on-disk footprint.
type StorageInfo struct {
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// String renders a human-readable one-liner for startup/diagnostic
// logging — the wire shape stays the raw SizeBytes int64, this is for
// operators reading logs.
func (si StorageInfo) String() string {
	return fmt.Sprintf("%s (%s, modified %s)", si.Path, humanize.Bytes(uint64(si.SizeBytes)), humanize.Time(si.LastModified))
}

// row is the raw polymorphic row shape before unmarshaling the payload
// into a concrete entity type.
type row struct {
	Payload    []byte
	CreatedAt  time.Time
	ModifiedAt time.Time
	DeletedAt  *time.Time
}

func (s *Store) saveRaw(typ EntityType, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var createdAt time.Time
	err := s.db.QueryRow(
		`SELECT created_at FROM entities WHERE entity_type = ? AND entity_id = ?`, typ, id,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		createdAt = now
	} else if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO entities (entity_type, entity_id, payload, created_at, modified_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, NULL)
		 ON CONFLICT(entity_type, entity_id) DO UPDATE SET
		   payload = excluded.payload, modified_at = excluded.modified_at, deleted_at = NULL`,
		typ, id, string(payload), createdAt, now,
	)
	return err
}

func (s *Store) getRaw(typ EntityType, id string) (*row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r row
	var payload string
	var deletedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT payload, created_at, modified_at, deleted_at
		 FROM entities WHERE entity_type = ? AND entity_id = ? AND deleted_at IS NULL`,
		typ, id,
	).Scan(&payload, &r.CreatedAt, &r.ModifiedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Payload = []byte(payload)
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.Time
	}
	return &r, nil
}

func (s *Store) listRaw(typ EntityType, activeOnly bool) ([]row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT payload, created_at, modified_at, deleted_at FROM entities WHERE entity_type = ?`
	if activeOnly {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		var payload string
		var deletedAt sql.NullTime
		if err := rows.Scan(&payload, &r.CreatedAt, &r.ModifiedAt, &deletedAt); err != nil {
			return nil, err
		}
		r.Payload = []byte(payload)
		if deletedAt.Valid {
			r.DeletedAt = &deletedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// deleteRaw soft-deletes an entity: get(T,id) afterward returns nil, but a
// subsequent saveRaw with the same id re-inserts without resurrecting
// history (the ON CONFLICT clause above always clears deleted_at).
func (s *Store) deleteRaw(typ EntityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`UPDATE entities SET deleted_at = ? WHERE entity_type = ? AND entity_id = ?`,
		time.Now().UTC(), typ, id,
	)
	return err
}

// AppendEvent writes an immutable event row.
func (s *Store) AppendEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO events (event_type, entity_id, created_at, data) VALUES (?, ?, ?, ?)`,
		e.Type, e.EntityID, e.CreatedAt, string(data),
	)
	return err
}

// Events returns events for entityID of the given type, ascending by
// created_at — a non-decreasing prefix extension of every earlier call,
// since events are never mutated or deleted.
func (s *Store) Events(typ EventType, entityID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, event_type, entity_id, created_at, data FROM events
		 WHERE event_type = ? AND entity_id = ? ORDER BY created_at ASC, id ASC`,
		typ, entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var data string
		if err := rows.Scan(&e.ID, &e.Type, &e.EntityID, &e.CreatedAt, &data); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(data), &e.Data)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventsSince returns every event of typ created at or after since,
// ascending by created_at, regardless of entity id. Used by catchup and
// metrics queries that scan activity across many tickets.
func (s *Store) EventsSince(typ EventType, since time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, event_type, entity_id, created_at, data FROM events
		 WHERE event_type = ? AND created_at >= ? ORDER BY created_at ASC, id ASC`,
		typ, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var data string
		if err := rows.Scan(&e.ID, &e.Type, &e.EntityID, &e.CreatedAt, &data); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(data), &e.Data)
		out = append(out, e)
	}
	return out, rows.Err()
}

// StorageInfo reports the store's backing file path, size, and mtime.
func (s *Store) StorageInfo(path string) (StorageInfo, error) {
	info := StorageInfo{Path: path}
	fi, err := statFile(path)
	if err != nil {
		return info, err
	}
	info.SizeBytes = fi.size
	info.LastModified = fi.modTime
	return info, nil
}
