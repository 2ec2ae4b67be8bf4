package forge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeForge struct {
	prs          []PullRequest
	mergeability map[int]Mergeability
	checks       map[string][]Check

	mergeabilityQueries []int
	merged              []int
}

func (f *fakeForge) OpenPullRequests(context.Context, string) ([]PullRequest, error) {
	return f.prs, nil
}

func (f *fakeForge) Mergeability(_ context.Context, number int) (Mergeability, error) {
	f.mergeabilityQueries = append(f.mergeabilityQueries, number)
	return f.mergeability[number], nil
}

func (f *fakeForge) Checks(_ context.Context, headSHA string) ([]Check, error) {
	return f.checks[headSHA], nil
}

func (f *fakeForge) MergeRebase(_ context.Context, number int) error {
	f.merged = append(f.merged, number)
	return nil
}

func green() []Check {
	return []Check{
		{Name: "build", State: "success"},
		{Name: "lint", State: "neutral"},
		{Name: "optional-suite", State: "skipped"},
	}
}

func TestGateMergesCleanPullRequest(t *testing.T) {
	client := &fakeForge{
		prs:          []PullRequest{{Number: 7, HeadSHA: "abc", Author: "bot"}},
		mergeability: map[int]Mergeability{7: Mergeable},
		checks:       map[string][]Check{"abc": green()},
	}
	gate := &Gate{Client: client, Author: "bot"}

	verdicts, err := gate.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Merged)
	assert.Equal(t, []int{7}, client.merged)
	assert.Equal(t, []int{7}, client.mergeabilityQueries, "mergeability is queried per pull request, not taken from the listing")
}

func TestGateSkipsConflictingDespiteGreenChecks(t *testing.T) {
	client := &fakeForge{
		prs:          []PullRequest{{Number: 7, HeadSHA: "abc"}},
		mergeability: map[int]Mergeability{7: Conflicting},
		checks:       map[string][]Check{"abc": green()},
	}
	gate := &Gate{Client: client}

	verdicts, err := gate.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, verdicts[0].Merged)
	assert.Contains(t, verdicts[0].Reason, "CONFLICTING")
	assert.Empty(t, client.merged)
}

func TestGateSkipsUnknownMergeability(t *testing.T) {
	client := &fakeForge{
		prs:          []PullRequest{{Number: 7, HeadSHA: "abc"}},
		mergeability: map[int]Mergeability{7: MergeabilityUnknown},
		checks:       map[string][]Check{"abc": green()},
	}
	gate := &Gate{Client: client}

	verdicts, err := gate.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, verdicts[0].Merged)
	assert.Empty(t, client.merged)
}

func TestGateBlockingChecks(t *testing.T) {
	for _, tc := range []struct {
		name  string
		state string
	}{
		{"failed check run", "failure"},
		{"still running", "pending"},
		{"registered but not started", "expected"},
		{"unrecognised state", "timed_out"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeForge{
				prs:          []PullRequest{{Number: 7, HeadSHA: "abc"}},
				mergeability: map[int]Mergeability{7: Mergeable},
				checks: map[string][]Check{"abc": append(green(),
					Check{Name: "e2e", State: tc.state})},
			}
			gate := &Gate{Client: client}

			verdicts, err := gate.Run(context.Background())
			require.NoError(t, err)

			assert.False(t, verdicts[0].Merged)
			assert.Contains(t, verdicts[0].Reason, "e2e")
			assert.Empty(t, client.merged)
		})
	}
}

func TestGateDryRun(t *testing.T) {
	client := &fakeForge{
		prs:          []PullRequest{{Number: 7, HeadSHA: "abc"}},
		mergeability: map[int]Mergeability{7: Mergeable},
		checks:       map[string][]Check{"abc": green()},
	}
	gate := &Gate{Client: client, DryRun: true}

	verdicts, err := gate.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, verdicts[0].Merged)
	assert.Contains(t, verdicts[0].Reason, "would merge")
	assert.NotEmpty(t, client.mergeabilityQueries, "dry-run still performs all reads")
	assert.Empty(t, client.merged)
}

func TestCheckBlocks(t *testing.T) {
	assert.False(t, checkBlocks("success"))
	assert.False(t, checkBlocks("SUCCESS"))
	assert.False(t, checkBlocks("neutral"))
	assert.False(t, checkBlocks("skipped"))
	assert.True(t, checkBlocks("failure"))
	assert.True(t, checkBlocks("action_required_failure"))
	assert.True(t, checkBlocks("pending"))
	assert.True(t, checkBlocks("expected"))
	assert.True(t, checkBlocks("timed_out"))
	assert.True(t, checkBlocks(""))
}
