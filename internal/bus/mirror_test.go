package bus

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetherd/herd"
)

func TestJSONMirrorPutLoadDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "messages")
	m, err := NewJSONMirror(dir)
	if err != nil {
		t.Fatalf("NewJSONMirror: %v", err)
	}

	msg := herd.Message{
		ID:       "msg-1",
		FromAddr: "steve",
		ToAddr:   "mason",
		Body:     "hello",
		Type:     herd.MessageDirective,
		Priority: herd.PriorityNormal,
		SentAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := m.Put(msg); err != nil {
		t.Fatalf("Put: %v", err)
	}

	loaded, err := m.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Body != "hello" {
		t.Fatalf("LoadAll() = %+v", loaded)
	}

	if err := m.Delete(msg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	loaded, err = m.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll after delete: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("LoadAll() after delete = %+v, want empty", loaded)
	}
}

func TestJSONMirrorLoadAllSkipsCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	m, err := NewJSONMirror(dir)
	if err != nil {
		t.Fatalf("NewJSONMirror: %v", err)
	}
	if err := m.Put(herd.Message{ID: "good", Body: "ok"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	badPath := filepath.Join(dir, "corrupt.json")
	if err := writeRaw(badPath, "not json"); err != nil {
		t.Fatalf("write corrupt entry: %v", err)
	}

	loaded, err := m.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "good" {
		t.Fatalf("LoadAll() = %+v, want only the good entry", loaded)
	}
}
