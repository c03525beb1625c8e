package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pagesched/pagesched/internal/store"
)

// Store implements store.DocumentStore on top of Client.
//
// Get returns the file's blob sha as the revision; Put and BatchPut check it
// against the current blob sha and return the sha of the commit that recorded
// the write, which is what the deployment tracker polls for.
type Store struct {
	client *Client
}

// NewStore creates a document store for the client's repository and branch.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (s *Store) contentsURL(path string) string {
	escaped := url.PathEscape(path)
	// PathEscape encodes "/" inside document paths; restore segment separators.
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return s.client.repoPath("/contents/" + escaped)
}

func (s *Store) Get(ctx context.Context, path string) (store.Document, error) {
	var resp contentsResponse
	u := s.contentsURL(path) + "?ref=" + url.QueryEscape(s.client.Branch)
	if err := s.client.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return store.Document{}, fmt.Errorf("get %s: %w", path, store.ErrNotFound)
		}
		return store.Document{}, fmt.Errorf("get %s: %w", path, err)
	}

	raw, err := decodeContent(resp)
	if err != nil {
		return store.Document{}, fmt.Errorf("get %s: %w", path, err)
	}

	return store.Document{Path: path, Data: raw, Revision: resp.SHA}, nil
}

func decodeContent(resp contentsResponse) (json.RawMessage, error) {
	switch resp.Encoding {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		return decoded, nil
	case "", "none":
		return json.RawMessage(resp.Content), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Encoding)
	}
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type putResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func (s *Store) Put(ctx context.Context, path string, data json.RawMessage, revision, message string) (string, error) {
	req := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     revision,
		Branch:  s.client.Branch,
	}

	var resp putResponse
	if err := s.client.do(ctx, http.MethodPut, s.contentsURL(path), req, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isConflictStatus(apiErr.StatusCode) {
			return "", fmt.Errorf("put %s: %w", path, store.ErrConflict)
		}
		return "", fmt.Errorf("put %s: %w", path, err)
	}

	return resp.Commit.SHA, nil
}

// isConflictStatus covers the statuses the Contents API uses for a stale sha.
func isConflictStatus(code int) bool {
	return code == http.StatusConflict || code == http.StatusUnprocessableEntity
}

// BatchPut commits every file in a single commit via the Git Data API:
// blobs, a tree on top of the current head, a commit, then a non-forced ref
// update. A non-fast-forward ref update leaves the branch untouched, keeping
// the batch all-or-nothing.
func (s *Store) BatchPut(ctx context.Context, files []store.File, message string) (string, error) {
	if len(files) == 0 {
		return "", errors.New("batch put: no files")
	}

	// Revision check first: a stale revision should surface as ErrConflict
	// before anything is written.
	for _, f := range files {
		current, err := s.Get(ctx, f.Path)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		if err == nil && current.Revision != f.Revision {
			return "", fmt.Errorf("batch put %s: %w", f.Path, store.ErrConflict)
		}
	}

	headSHA, treeSHA, err := s.head(ctx)
	if err != nil {
		return "", fmt.Errorf("batch put: %w", err)
	}

	entries := make([]treeEntry, 0, len(files))
	for _, f := range files {
		blobSHA, err := s.createBlob(ctx, f.Data)
		if err != nil {
			return "", fmt.Errorf("batch put %s: %w", f.Path, err)
		}
		entries = append(entries, treeEntry{Path: f.Path, Mode: "100644", Type: "blob", SHA: blobSHA})
	}

	newTree, err := s.createTree(ctx, treeSHA, entries)
	if err != nil {
		return "", fmt.Errorf("batch put: %w", err)
	}

	commitSHA, err := s.createCommit(ctx, message, newTree, headSHA)
	if err != nil {
		return "", fmt.Errorf("batch put: %w", err)
	}

	if err := s.updateRef(ctx, commitSHA); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isConflictStatus(apiErr.StatusCode) {
			return "", fmt.Errorf("batch put: %w", store.ErrConflict)
		}
		return "", fmt.Errorf("batch put: %w", err)
	}

	return commitSHA, nil
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

func (s *Store) head(ctx context.Context) (commitSHA, treeSHA string, err error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := s.client.do(ctx, http.MethodGet, s.client.repoPath("/git/ref/heads/"+s.client.Branch), nil, &ref); err != nil {
		return "", "", fmt.Errorf("get ref: %w", err)
	}

	var commit struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	if err := s.client.do(ctx, http.MethodGet, s.client.repoPath("/git/commits/"+ref.Object.SHA), nil, &commit); err != nil {
		return "", "", fmt.Errorf("get commit: %w", err)
	}

	return ref.Object.SHA, commit.Tree.SHA, nil
}

func (s *Store) createBlob(ctx context.Context, data json.RawMessage) (string, error) {
	req := map[string]string{"content": string(data), "encoding": "utf-8"}
	var resp struct {
		SHA string `json:"sha"`
	}
	if err := s.client.do(ctx, http.MethodPost, s.client.repoPath("/git/blobs"), req, &resp); err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	return resp.SHA, nil
}

func (s *Store) createTree(ctx context.Context, baseTree string, entries []treeEntry) (string, error) {
	req := struct {
		BaseTree string      `json:"base_tree"`
		Tree     []treeEntry `json:"tree"`
	}{BaseTree: baseTree, Tree: entries}
	var resp struct {
		SHA string `json:"sha"`
	}
	if err := s.client.do(ctx, http.MethodPost, s.client.repoPath("/git/trees"), req, &resp); err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}
	return resp.SHA, nil
}

func (s *Store) createCommit(ctx context.Context, message, tree, parent string) (string, error) {
	req := struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{Message: message, Tree: tree, Parents: []string{parent}}
	var resp struct {
		SHA string `json:"sha"`
	}
	if err := s.client.do(ctx, http.MethodPost, s.client.repoPath("/git/commits"), req, &resp); err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}
	return resp.SHA, nil
}

func (s *Store) updateRef(ctx context.Context, commitSHA string) error {
	req := struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}{SHA: commitSHA}
	if err := s.client.do(ctx, http.MethodPatch, s.client.repoPath("/git/refs/heads/"+s.client.Branch), req, nil); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	return nil
}
