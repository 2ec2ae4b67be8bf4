package forge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"

	whmetrics "github.com/wheelhouse-build/wheelhouse/pkg/metrics"
)

// Verdict records what the gate decided for one pull request.
type Verdict struct {
	PullRequest
	Merged bool
	Reason string
}

// Gate merges a bot's pull requests once, and only once, they are both
// conflict-free and have no failing or unfinished checks. A pull request
// that fails either test is skipped, not errored; re-running the gate later
// is the retry mechanism.
type Gate struct {
	Client Client
	Author string
	// SettleDelay gives freshly pushed heads a moment before checks are
	// read, since the platform registers them asynchronously.
	SettleDelay time.Duration
	DryRun      bool
	Logger      log.Logger
}

// Run evaluates every open pull request by the configured author. Read
// failures on an individual pull request skip it; they never abort the
// pass.
func (g *Gate) Run(ctx context.Context) ([]Verdict, error) {
	logger := g.logger()

	prs, err := g.Client.OpenPullRequests(ctx, g.Author)
	if err != nil {
		return nil, err
	}

	var verdicts []Verdict
	for _, pr := range prs {
		verdict := g.evaluate(ctx, pr)
		logger.Log("pr", pr.Number, "merged", verdict.Merged, "reason", verdict.Reason)
		verdicts = append(verdicts, verdict)
	}
	return verdicts, nil
}

func (g *Gate) evaluate(ctx context.Context, pr PullRequest) Verdict {
	verdict := Verdict{PullRequest: pr}

	if g.SettleDelay > 0 {
		select {
		case <-time.After(g.SettleDelay):
		case <-ctx.Done():
			verdict.Reason = ctx.Err().Error()
			return verdict
		}
	}

	mergeability, err := g.Client.Mergeability(ctx, pr.Number)
	if err != nil {
		verdict.Reason = "mergeability query failed: " + err.Error()
		return verdict
	}
	if mergeability != Mergeable {
		verdict.Reason = "mergeable state is " + mergeability.String()
		return verdict
	}

	checks, err := g.Client.Checks(ctx, pr.HeadSHA)
	if err != nil {
		verdict.Reason = "checks query failed: " + err.Error()
		return verdict
	}
	for _, check := range checks {
		if checkBlocks(check.State) {
			verdict.Reason = fmt.Sprintf("check %q is %s", check.Name, check.State)
			return verdict
		}
	}

	if g.DryRun {
		verdict.Reason = "dry-run; would merge"
		return verdict
	}

	if err := g.Client.MergeRebase(ctx, pr.Number); err != nil {
		verdict.Reason = "merge failed: " + err.Error()
		return verdict
	}
	mergesTotal.With(whmetrics.LabelSuccess, "true").Add(1)
	verdict.Merged = true
	verdict.Reason = "merged"
	return verdict
}

func (g *Gate) logger() log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.NewNopLogger()
}
