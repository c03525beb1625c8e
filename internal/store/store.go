// Package store defines the document store contract the daemon writes
// through. Documents are plain JSON files addressed by repository path; every
// read returns a revision token that must accompany the next write, so a
// competing writer is detected (not prevented) at commit time.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a document does not exist at the given path.
var ErrNotFound = errors.New("document not found")

// ErrConflict is returned when a write carries a stale revision.
var ErrConflict = errors.New("document revision is stale")

// Document is one versioned JSON file.
type Document struct {
	Path     string
	Data     json.RawMessage
	Revision string
}

// File is one entry of a batched write.
type File struct {
	Path     string
	Data     json.RawMessage
	Revision string
}

// DocumentStore is the optimistic-concurrency document interface.
// Implementations must return ErrConflict from Put and BatchPut when any
// supplied revision no longer matches the stored document.
type DocumentStore interface {
	Get(ctx context.Context, path string) (Document, error)

	// Put writes a single document and returns its new revision.
	Put(ctx context.Context, path string, data json.RawMessage, revision, message string) (string, error)

	// BatchPut commits several documents together: either every file lands
	// in one commit or none do. Returns the commit revision.
	BatchPut(ctx context.Context, files []File, message string) (string, error)
}
