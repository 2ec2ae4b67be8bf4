// Package forge gates and performs merges of automated pull requests on
// the code-hosting platform.
package forge

import (
	"context"
	"strings"

	"github.com/google/go-github/v28/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Mergeability is the platform's tri-state answer about a pull request.
// Unknown usually means the platform hasn't computed it yet; the safe move
// is to skip and let a later run see a settled answer.
type Mergeability int

const (
	MergeabilityUnknown Mergeability = iota
	Mergeable
	Conflicting
)

func (m Mergeability) String() string {
	switch m {
	case Mergeable:
		return "MERGEABLE"
	case Conflicting:
		return "CONFLICTING"
	}
	return "UNKNOWN"
}

// Check is one status attached to a pull request's head commit.
type Check struct {
	Name  string
	State string
}

// PullRequest carries the fields the gate needs.
type PullRequest struct {
	Number  int
	Title   string
	Author  string
	HeadSHA string
}

// Client is the narrow view of the code-hosting platform used by the merge
// gate. Mergeability must be queried fresh per pull request -- list
// responses carry stale data.
type Client interface {
	OpenPullRequests(ctx context.Context, author string) ([]PullRequest, error)
	Mergeability(ctx context.Context, number int) (Mergeability, error)
	Checks(ctx context.Context, headSHA string) ([]Check, error)
	MergeRebase(ctx context.Context, number int) error
}

// GitHub implements Client against the GitHub API.
type GitHub struct {
	owner  string
	repo   string
	client *github.Client
}

func NewGitHub(ctx context.Context, owner, repo, token string) *GitHub {
	var httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	))
	return &GitHub{
		owner:  owner,
		repo:   repo,
		client: github.NewClient(httpClient),
	}
}

func (g *GitHub) OpenPullRequests(ctx context.Context, author string) ([]PullRequest, error) {
	var result []PullRequest
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		prs, resp, err := g.client.PullRequests.List(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, errors.Wrap(err, "listing pull requests")
		}
		for _, pr := range prs {
			if pr.GetUser().GetLogin() != author {
				continue
			}
			result = append(result, PullRequest{
				Number:  pr.GetNumber(),
				Title:   pr.GetTitle(),
				Author:  pr.GetUser().GetLogin(),
				HeadSHA: pr.GetHead().GetSHA(),
			})
		}
		if resp.NextPage == 0 {
			return result, nil
		}
		opts.Page = resp.NextPage
	}
}

func (g *GitHub) Mergeability(ctx context.Context, number int) (Mergeability, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, number)
	if err != nil {
		return MergeabilityUnknown, errors.Wrapf(err, "getting pull request #%d", number)
	}
	if pr.Mergeable == nil {
		return MergeabilityUnknown, nil
	}
	if pr.GetMergeable() {
		return Mergeable, nil
	}
	return Conflicting, nil
}

// Checks gathers both check runs and legacy commit statuses; either kind
// can block a merge.
func (g *GitHub) Checks(ctx context.Context, headSHA string) ([]Check, error) {
	var checks []Check

	runOpts := &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		runs, resp, err := g.client.Checks.ListCheckRunsForRef(ctx, g.owner, g.repo, headSHA, runOpts)
		if err != nil {
			return nil, errors.Wrap(err, "listing check runs")
		}
		for _, run := range runs.CheckRuns {
			state := run.GetConclusion()
			if run.GetStatus() != "completed" {
				state = "pending"
			}
			checks = append(checks, Check{Name: run.GetName(), State: state})
		}
		if resp.NextPage == 0 {
			break
		}
		runOpts.Page = resp.NextPage
	}

	statusOpts := &github.ListOptions{PerPage: 100}
	for {
		combined, resp, err := g.client.Repositories.GetCombinedStatus(ctx, g.owner, g.repo, headSHA, statusOpts)
		if err != nil {
			return nil, errors.Wrap(err, "getting combined status")
		}
		for _, status := range combined.Statuses {
			checks = append(checks, Check{Name: status.GetContext(), State: status.GetState()})
		}
		if resp.NextPage == 0 {
			break
		}
		statusOpts.Page = resp.NextPage
	}
	return checks, nil
}

func (g *GitHub) MergeRebase(ctx context.Context, number int) error {
	_, _, err := g.client.PullRequests.Merge(ctx, g.owner, g.repo, number, "", &github.PullRequestOptions{
		MergeMethod: "rebase",
	})
	return errors.Wrapf(err, "merging pull request #%d", number)
}

// blockingTerms are matched as substrings of a check state; any hit blocks
// a merge. "expected" covers checks the platform knows should run but
// hasn't scheduled yet.
var blockingTerms = []string{"fail", "pending", "expected"}

// passingStates are the only states allowed through; anything else is
// treated as blocking, because an unrecognised state is not evidence of a
// passing check.
var passingStates = map[string]bool{
	"success": true,
	"neutral": true,
	"skipped": true,
}

func checkBlocks(state string) bool {
	s := strings.ToLower(state)
	for _, term := range blockingTerms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return !passingStates[s]
}
