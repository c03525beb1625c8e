package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pagesched/pagesched/internal/store"
)

// fakeGitHub is a minimal stand-in for the REST endpoints the store touches.
type fakeGitHub struct {
	mux *http.ServeMux

	requests []string
}

func newFakeGitHub() *fakeGitHub {
	f := &fakeGitHub{mux: http.NewServeMux()}
	return f
}

func (f *fakeGitHub) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		h(w, r)
	})
}

func (f *fakeGitHub) client(t *testing.T) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(f.mux)
	c := &Client{
		Owner:   "example",
		Repo:    "example.github.io",
		Branch:  "main",
		Token:   "test-token",
		BaseURL: srv.URL,
	}
	return c, srv.Close
}

func writeGitHubJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestStoreGet(t *testing.T) {
	f := newFakeGitHub()
	f.handle("/repos/example/example.github.io/contents/data/events.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("ref"); got != "main" {
			t.Errorf("ref = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		writeGitHubJSON(w, http.StatusOK, contentsResponse{
			SHA:      "blob-sha-1",
			Content:  base64.StdEncoding.EncodeToString([]byte(`[{"locationId":"town-hall"}]`)),
			Encoding: "base64",
		})
	})
	client, done := f.client(t)
	defer done()

	doc, err := NewStore(client).Get(context.Background(), "data/events.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Revision != "blob-sha-1" {
		t.Errorf("Revision = %q", doc.Revision)
	}
	if string(doc.Data) != `[{"locationId":"town-hall"}]` {
		t.Errorf("Data = %s", doc.Data)
	}
}

func TestStoreGet_NotFound(t *testing.T) {
	f := newFakeGitHub()
	f.handle("/repos/example/example.github.io/contents/data/events.json", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	client, done := f.client(t)
	defer done()

	_, err := NewStore(client).Get(context.Background(), "data/events.json")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStorePut(t *testing.T) {
	f := newFakeGitHub()
	f.handle("/repos/example/example.github.io/contents/data/events.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		var req putRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SHA != "blob-sha-1" {
			t.Errorf("sha = %q", req.SHA)
		}
		if req.Branch != "main" {
			t.Errorf("branch = %q", req.Branch)
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil || string(decoded) != `[]` {
			t.Errorf("content = %q (%v)", req.Content, err)
		}
		var resp putResponse
		resp.Commit.SHA = "commit-sha-2"
		writeGitHubJSON(w, http.StatusOK, resp)
	})
	client, done := f.client(t)
	defer done()

	rev, err := NewStore(client).Put(context.Background(), "data/events.json", json.RawMessage(`[]`), "blob-sha-1", "update events")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if rev != "commit-sha-2" {
		t.Errorf("revision = %q, want commit-sha-2", rev)
	}
}

func TestStorePut_StaleRevision(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusUnprocessableEntity} {
		f := newFakeGitHub()
		f.handle("/repos/example/example.github.io/contents/data/events.json", func(w http.ResponseWriter, r *http.Request) {
			writeGitHubJSON(w, status, map[string]string{"message": "is at another sha"})
		})
		client, done := f.client(t)

		_, err := NewStore(client).Put(context.Background(), "data/events.json", json.RawMessage(`[]`), "stale", "update")
		done()
		if !errors.Is(err, store.ErrConflict) {
			t.Errorf("status %d: err = %v, want ErrConflict", status, err)
		}
	}
}

func TestStoreBatchPut(t *testing.T) {
	f := newFakeGitHub()
	contents := map[string]string{
		"data/rules.json":  "rules-sha",
		"data/events.json": "events-sha",
	}
	for path, sha := range contents {
		sha := sha
		f.handle("/repos/example/example.github.io/contents/"+path, func(w http.ResponseWriter, r *http.Request) {
			writeGitHubJSON(w, http.StatusOK, contentsResponse{SHA: sha, Content: "[]"})
		})
	}
	f.handle("/repos/example/example.github.io/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubJSON(w, http.StatusOK, map[string]any{"object": map[string]string{"sha": "head-sha"}})
	})
	f.handle("/repos/example/example.github.io/git/commits/head-sha", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubJSON(w, http.StatusOK, map[string]any{"tree": map[string]string{"sha": "base-tree-sha"}})
	})
	f.handle("/repos/example/example.github.io/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubJSON(w, http.StatusCreated, map[string]string{"sha": "new-blob-sha"})
	})
	f.handle("/repos/example/example.github.io/git/trees", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BaseTree string      `json:"base_tree"`
			Tree     []treeEntry `json:"tree"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode tree request: %v", err)
		}
		if req.BaseTree != "base-tree-sha" {
			t.Errorf("base_tree = %q", req.BaseTree)
		}
		if len(req.Tree) != 2 {
			t.Errorf("tree entries = %d, want 2", len(req.Tree))
		}
		writeGitHubJSON(w, http.StatusCreated, map[string]string{"sha": "new-tree-sha"})
	})
	f.handle("/repos/example/example.github.io/git/commits", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tree    string   `json:"tree"`
			Parents []string `json:"parents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode commit request: %v", err)
		}
		if req.Tree != "new-tree-sha" || len(req.Parents) != 1 || req.Parents[0] != "head-sha" {
			t.Errorf("commit request = %+v", req)
		}
		writeGitHubJSON(w, http.StatusCreated, map[string]string{"sha": "new-commit-sha"})
	})
	f.handle("/repos/example/example.github.io/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("ref update method = %s", r.Method)
		}
		var req struct {
			SHA   string `json:"sha"`
			Force bool   `json:"force"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode ref request: %v", err)
		}
		if req.SHA != "new-commit-sha" || req.Force {
			t.Errorf("ref request = %+v", req)
		}
		writeGitHubJSON(w, http.StatusOK, map[string]string{})
	})
	client, done := f.client(t)
	defer done()

	rev, err := NewStore(client).BatchPut(context.Background(), []store.File{
		{Path: "data/rules.json", Data: json.RawMessage(`[1]`), Revision: "rules-sha"},
		{Path: "data/events.json", Data: json.RawMessage(`[1]`), Revision: "events-sha"},
	}, "batch commit")
	if err != nil {
		t.Fatalf("BatchPut: %v", err)
	}
	if rev != "new-commit-sha" {
		t.Errorf("revision = %q, want new-commit-sha", rev)
	}
}

func TestStoreBatchPut_StaleRevisionBeforeWrite(t *testing.T) {
	f := newFakeGitHub()
	f.handle("/repos/example/example.github.io/contents/data/rules.json", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubJSON(w, http.StatusOK, contentsResponse{SHA: "current-sha", Content: "[]"})
	})
	client, done := f.client(t)
	defer done()

	_, err := NewStore(client).BatchPut(context.Background(), []store.File{
		{Path: "data/rules.json", Data: json.RawMessage(`[]`), Revision: "stale-sha"},
	}, "batch")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// Nothing past the revision check may have been called.
	for _, req := range f.requests {
		if req != "GET /repos/example/example.github.io/contents/data/rules.json" {
			t.Errorf("unexpected request %q after stale revision", req)
		}
	}
}
