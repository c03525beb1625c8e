package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-memory DocumentStore used by tests and by the validate
// subcommand. Revisions are sequence numbers per document.
type Memory struct {
	mu      sync.Mutex
	docs    map[string]Document
	commits int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Document)}
}

// Seed places a document without a prior revision check.
func (m *Memory) Seed(path string, data json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	m.docs[path] = Document{Path: path, Data: data, Revision: m.revision(path)}
}

func (m *Memory) revision(path string) string {
	return fmt.Sprintf("%s@%d", path, m.commits)
}

func (m *Memory) Get(ctx context.Context, path string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	return doc, nil
}

func (m *Memory) Put(ctx context.Context, path string, data json.RawMessage, revision, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(path, data, revision)
}

func (m *Memory) putLocked(path string, data json.RawMessage, revision string) (string, error) {
	if existing, ok := m.docs[path]; ok && existing.Revision != revision {
		return "", fmt.Errorf("put %s: %w", path, ErrConflict)
	}
	m.commits++
	doc := Document{Path: path, Data: data, Revision: m.revision(path)}
	m.docs[path] = doc
	return doc.Revision, nil
}

func (m *Memory) BatchPut(ctx context.Context, files []File, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check every revision before touching anything so the batch stays
	// all-or-nothing.
	for _, f := range files {
		if existing, ok := m.docs[f.Path]; ok && existing.Revision != f.Revision {
			return "", fmt.Errorf("batch put %s: %w", f.Path, ErrConflict)
		}
	}

	var last string
	for _, f := range files {
		rev, err := m.putLocked(f.Path, f.Data, m.currentRevision(f.Path))
		if err != nil {
			return "", err
		}
		last = rev
	}
	return last, nil
}

func (m *Memory) currentRevision(path string) string {
	if doc, ok := m.docs[path]; ok {
		return doc.Revision
	}
	return ""
}

// Commits returns how many writes the store has accepted.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}
