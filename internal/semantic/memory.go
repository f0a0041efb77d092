// Package semantic implements cross-session agent memory: 384-dimension
// vector records searched by cosine similarity, with metadata filters.
//
// A memory row carries project, repo, org, team, host, session_id,
// agent, memory_type, content, summary, vector, created_at, and an
// opaque metadata bag. The summary, when present, is what gets embedded
// instead of the full content, so verbose notes can be stored while a
// focused description drives retrieval. Vectorize is a deterministic
// local hashing vectorizer rather than a learned embedding, keeping the
// store fully self-contained.
//
// Storage is modernc.org/sqlite, the same engine internal/opstore uses;
// similarity is brute-force cosine computed at query time, which is fine
// at per-project memory volumes.
package semantic

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Dimension is the fixed vector length every memory record is embedded to.
const Dimension = 384

// MemoryType enumerates the valid memory_type values.
type MemoryType string

const (
	SessionSummary  MemoryType = "session_summary"
	DecisionContext MemoryType = "decision_context"
	Pattern         MemoryType = "pattern"
	Preference      MemoryType = "preference"
	Thread          MemoryType = "thread"
	Lesson          MemoryType = "lesson"
	Observation     MemoryType = "observation"
)

var validTypes = map[MemoryType]bool{
	SessionSummary: true, DecisionContext: true, Pattern: true,
	Preference: true, Thread: true, Lesson: true, Observation: true,
}

// Record is one stored memory.
type Record struct {
	ID         string
	Project    string
	Repo       string
	Org        string
	Team       string
	Host       string
	SessionID  string
	Agent      string
	MemoryType MemoryType
	Content    string
	Summary    string
	Vector     [Dimension]float32
	CreatedAt  time.Time
	Metadata   map[string]any
}

// Store is the SQLite-backed semantic memory store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the memory database at path and ensures schema.
// An existing memories table from before the summary column was added is
// dropped and recreated — a one-shot schema bump.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open semantic memory store: %w", err)
	}
	if stale, err := tableLacksSummary(db); err != nil {
		db.Close()
		return nil, err
	} else if stale {
		if _, err := db.Exec(`DROP TABLE memories`); err != nil {
			db.Close()
			return nil, fmt.Errorf("drop pre-summary memories table: %w", err)
		}
	}
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id          TEXT PRIMARY KEY,
		project     TEXT NOT NULL DEFAULT '',
		repo        TEXT NOT NULL DEFAULT '',
		org         TEXT NOT NULL DEFAULT '',
		team        TEXT NOT NULL DEFAULT '',
		host        TEXT NOT NULL DEFAULT '',
		session_id  TEXT NOT NULL DEFAULT '',
		agent       TEXT NOT NULL DEFAULT '',
		memory_type TEXT NOT NULL,
		content     TEXT NOT NULL,
		summary     TEXT NOT NULL DEFAULT '',
		vector      BLOB NOT NULL,
		created_at  TEXT NOT NULL,
		metadata    TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
	CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure memories table: %w", err)
	}
	return &Store{db: db}, nil
}

// tableLacksSummary reports whether a memories table exists but predates
// the summary column.
func tableLacksSummary(db *sql.DB) (bool, error) {
	rows, err := db.Query(`PRAGMA table_info(memories)`)
	if err != nil {
		return false, fmt.Errorf("inspect memories schema: %w", err)
	}
	defer rows.Close()

	exists := false
	hasSummary := false
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		exists = true
		if name == "summary" {
			hasSummary = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return exists && !hasSummary, nil
}

func (s *Store) Close() error { return s.db.Close() }

// StoreParams carries the caller-settable fields of a new memory record;
// id assignment and created_at stamping happen inside Store.
type StoreParams struct {
	Project    string
	Agent      string
	MemoryType MemoryType
	Content    string
	SessionID  string
	Summary    string
	Repo       string
	Org        string
	Team       string
	Host       string
	Metadata   map[string]any
}

// idFunc and clock are overridable for deterministic tests.
var (
	idFunc = newID
	clock  = time.Now
)

// Store saves a memory record, embedding Summary when present, Content
// otherwise.
func (s *Store) Store(p StoreParams) (string, error) {
	if !validTypes[p.MemoryType] {
		return "", fmt.Errorf("invalid memory_type %q", p.MemoryType)
	}

	embedSource := p.Summary
	if embedSource == "" {
		embedSource = p.Content
	}
	vector := Vectorize(embedSource)

	id := idFunc()
	now := clock().UTC()
	metaJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	vecBlob, err := encodeVector(vector)
	if err != nil {
		return "", err
	}

	_, err = s.db.Exec(
		`INSERT INTO memories
		 (id, project, repo, org, team, host, session_id, agent, memory_type,
		  content, summary, vector, created_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Project, p.Repo, p.Org, p.Team, p.Host, p.SessionID, p.Agent,
		string(p.MemoryType), p.Content, p.Summary, vecBlob, now.Format(time.RFC3339Nano), string(metaJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

// recallFilterKeys is the whitelist Recall honors — unknown keys are
// silently ignored, never an error.
var recallFilterKeys = map[string]bool{
	"project": true, "agent": true, "memory_type": true, "repo": true,
	"session_id": true, "org": true, "team": true, "host": true,
}

// Recalled is one scored recall hit.
type Recalled struct {
	Record   Record
	Distance float64
}

// Recall embeds query and returns the limit most similar memories
// matching filters, ascending by distance (lower = more similar).
// Filters become a WHERE clause; similarity is scored in Go.
func (s *Store) Recall(query string, limit int, filters map[string]string) ([]Recalled, error) {
	if limit <= 0 {
		limit = 5
	}
	queryVec := Vectorize(query)

	where := "1=1"
	var args []any
	for k, v := range filters {
		if !recallFilterKeys[k] || v == "" {
			continue
		}
		where += fmt.Sprintf(" AND %s = ?", k)
		args = append(args, v)
	}

	rows, err := s.db.Query(
		`SELECT id, project, repo, org, team, host, session_id, agent, memory_type,
		        content, summary, vector, created_at, metadata
		 FROM memories WHERE `+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var scored []Recalled
	for rows.Next() {
		var r Record
		var memType, createdAt, metaJSON string
		var vecBlob []byte
		if err := rows.Scan(&r.ID, &r.Project, &r.Repo, &r.Org, &r.Team, &r.Host,
			&r.SessionID, &r.Agent, &memType, &r.Content, &r.Summary, &vecBlob,
			&createdAt, &metaJSON); err != nil {
			return nil, err
		}
		r.MemoryType = MemoryType(memType)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		json.Unmarshal([]byte(metaJSON), &r.Metadata)
		vec, err := decodeVector(vecBlob)
		if err != nil {
			continue
		}
		r.Vector = vec
		scored = append(scored, Recalled{Record: r, Distance: cosineDistance(queryVec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// NextHDRNumber scans decision_context memories for the max hdr_number
// metadata value and returns the next in sequence, zero-padded to 4
// digits. Malformed values are skipped, never an error.
func (s *Store) NextHDRNumber() (string, error) {
	rows, err := s.db.Query(
		`SELECT metadata FROM memories WHERE memory_type = ?`, string(DecisionContext),
	)
	if err != nil {
		return "", fmt.Errorf("query decision memories: %w", err)
	}
	defer rows.Close()

	max := 0
	for rows.Next() {
		var metaJSON string
		if err := rows.Scan(&metaJSON); err != nil {
			return "", err
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			continue
		}
		hdr, _ := meta["hdr_number"].(string)
		if !strings.HasPrefix(hdr, "HDR-") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(hdr, "HDR-"))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("HDR-%04d", max+1), nil
}
