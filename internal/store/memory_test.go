package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestMemory_GetMissing(t *testing.T) {
	m := NewMemory()

	_, err := m.Get(context.Background(), "data/events.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemory_PutAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rev, err := m.Put(ctx, "data/events.json", json.RawMessage(`[]`), "", "init")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if rev == "" {
		t.Fatal("Put returned empty revision")
	}

	doc, err := m.Get(ctx, "data/events.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Revision != rev {
		t.Errorf("Revision = %q, want %q", doc.Revision, rev)
	}
	if string(doc.Data) != `[]` {
		t.Errorf("Data = %s", doc.Data)
	}
}

func TestMemory_PutStaleRevision(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Seed("data/events.json", json.RawMessage(`[]`))
	doc, err := m.Get(ctx, "data/events.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if _, err := m.Put(ctx, "data/events.json", json.RawMessage(`[1]`), doc.Revision, "first"); err != nil {
		t.Fatalf("Put with current revision: %v", err)
	}

	// The original revision is now stale.
	_, err = m.Put(ctx, "data/events.json", json.RawMessage(`[2]`), doc.Revision, "second")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestMemory_BatchPutAllOrNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Seed("data/rules.json", json.RawMessage(`[]`))
	m.Seed("data/events.json", json.RawMessage(`[]`))
	rules, _ := m.Get(ctx, "data/rules.json")
	events, _ := m.Get(ctx, "data/events.json")
	commitsBefore := m.Commits()

	_, err := m.BatchPut(ctx, []File{
		{Path: "data/rules.json", Data: json.RawMessage(`[1]`), Revision: rules.Revision},
		{Path: "data/events.json", Data: json.RawMessage(`[1]`), Revision: "stale"},
	}, "mixed batch")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// The valid half of the batch must not have landed.
	if got := m.Commits(); got != commitsBefore {
		t.Errorf("Commits = %d, want %d", got, commitsBefore)
	}
	doc, _ := m.Get(ctx, "data/rules.json")
	if string(doc.Data) != `[]` {
		t.Errorf("rules data = %s, want untouched", doc.Data)
	}

	rev, err := m.BatchPut(ctx, []File{
		{Path: "data/rules.json", Data: json.RawMessage(`[1]`), Revision: rules.Revision},
		{Path: "data/events.json", Data: json.RawMessage(`[1]`), Revision: events.Revision},
	}, "good batch")
	if err != nil {
		t.Fatalf("BatchPut: %v", err)
	}
	if rev == "" {
		t.Fatal("BatchPut returned empty revision")
	}
}

func TestMemory_BatchPutCreatesMissing(t *testing.T) {
	m := NewMemory()

	rev, err := m.BatchPut(context.Background(), []File{
		{Path: "data/events.json", Data: json.RawMessage(`[]`), Revision: ""},
	}, "create")
	if err != nil {
		t.Fatalf("BatchPut: %v", err)
	}
	if rev == "" {
		t.Fatal("BatchPut returned empty revision")
	}
}
