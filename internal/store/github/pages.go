package github

import (
	"context"
	"fmt"
	"net/http"
)

// PagesProbe answers whether a commit's effect is visible on the deployed
// site, by inspecting the repository's latest Pages build.
type PagesProbe struct {
	client *Client
}

// NewPagesProbe creates a probe for the client's repository.
func NewPagesProbe(client *Client) *PagesProbe {
	return &PagesProbe{client: client}
}

type pagesBuild struct {
	Status string `json:"status"`
	Commit string `json:"commit"`
}

// IsRevisionLive reports whether the latest successful Pages build includes
// the given commit: either it built that commit exactly, or it built a commit
// the revision is an ancestor of.
func (p *PagesProbe) IsRevisionLive(ctx context.Context, revision string) (bool, error) {
	var build pagesBuild
	if err := p.client.do(ctx, http.MethodGet, p.client.repoPath("/pages/builds/latest"), nil, &build); err != nil {
		return false, fmt.Errorf("pages build: %w", err)
	}

	if build.Status != "built" {
		return false, nil
	}
	if build.Commit == revision {
		return true, nil
	}

	// The site may already have moved past our commit. compare reports
	// "identical" or "ahead" when the built commit contains the revision.
	var cmp struct {
		Status string `json:"status"`
	}
	u := p.client.repoPath("/compare/" + revision + "..." + build.Commit)
	if err := p.client.do(ctx, http.MethodGet, u, nil, &cmp); err != nil {
		return false, fmt.Errorf("compare revisions: %w", err)
	}
	return cmp.Status == "ahead" || cmp.Status == "identical", nil
}
