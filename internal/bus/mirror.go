// Package bus provides the durable on-disk mirror backing herd.Bus:
// one JSON file per live message, keyed by message id, so individual
// messages can be added and removed without rewriting shared state.
package bus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fleetherd/herd"
)

// JSONMirror persists each live message as its own JSON file under dir.
type JSONMirror struct {
	dir string
	mu  sync.Mutex
}

// NewJSONMirror creates a mirror rooted at dir, creating the directory if
// it does not already exist.
func NewJSONMirror(dir string) (*JSONMirror, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create message mirror dir: %w", err)
	}
	return &JSONMirror{dir: dir}, nil
}

func (m *JSONMirror) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// Put writes or overwrites the mirrored copy of msg.
func (m *JSONMirror) Put(msg herd.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return os.WriteFile(m.path(msg.ID), data, 0o644)
}

// Delete removes the mirrored copy for id, if any.
func (m *JSONMirror) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.path(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadAll reads every mirrored message from disk. Corrupt entries are
// skipped and removed rather than failing the whole load.
func (m *JSONMirror) LoadAll() ([]herd.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read message mirror dir: %w", err)
	}

	var msgs []herd.Message
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var msg herd.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			os.Remove(path)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Close is a no-op: the mirror holds no long-lived file handles between
// calls, only the directory path.
func (m *JSONMirror) Close() error {
	return nil
}
