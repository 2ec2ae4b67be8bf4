package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideNoActionWhenVersionsMatch(t *testing.T) {
	// Matching versions mean no action, no matter what the commit or
	// build state looks like.
	commits := []string{"", "abc", "def"}
	for _, built := range commits {
		for _, current := range commits {
			for _, preferRebuild := range []bool{false, true} {
				obs := Observation{
					Package:       "alpha",
					Pinned:        "2.1",
					Published:     "2.1",
					BuiltCommit:   built,
					CurrentCommit: current,
				}
				assert.Equal(t, ActionNone, Decide(obs, preferRebuild),
					"built=%q current=%q preferRebuild=%v", built, current, preferRebuild)
			}
		}
	}
}

func TestDecideTable(t *testing.T) {
	for _, tc := range []struct {
		name          string
		built         string
		current       string
		preferRebuild bool
		want          Action
	}{
		{"stale build", "abc", "def", false, ActionRebuild},
		{"stale build ignores policy", "abc", "def", true, ActionRebuild},
		{"built and current, promote", "abc", "abc", false, ActionRelease},
		{"built and current, policy forces rebuild", "abc", "abc", true, ActionRebuild},
		{"never built", "", "abc", false, ActionRebuild},
		{"never built with policy", "", "abc", true, ActionRebuild},
	} {
		t.Run(tc.name, func(t *testing.T) {
			obs := Observation{
				Package:       "alpha",
				Pinned:        "2.1",
				Published:     "2.0",
				BuiltCommit:   tc.built,
				CurrentCommit: tc.current,
			}
			assert.Equal(t, tc.want, Decide(obs, tc.preferRebuild))
		})
	}
}

func TestDecideNeverPinned(t *testing.T) {
	// No pinned version and no published version look identical as strings,
	// but a package whose manifest was never generated must not be declared
	// healthy just because the index has never seen it either.
	obs := Observation{
		Package:       "alpha",
		Pinned:        "",
		Published:     "",
		BuiltCommit:   "",
		CurrentCommit: "abc",
	}
	assert.Equal(t, ActionRebuild, Decide(obs, false))
	assert.Equal(t, ActionRebuild, Decide(obs, true))
}

func TestDecideNeverPublished(t *testing.T) {
	// An empty published version is the normal "never published" state
	// and counts as a divergence from any pin.
	obs := Observation{
		Package:       "alpha",
		Pinned:        "1.0",
		Published:     "",
		BuiltCommit:   "abc",
		CurrentCommit: "abc",
	}
	assert.Equal(t, ActionRelease, Decide(obs, false))
	assert.Equal(t, ActionRebuild, Decide(obs, true))
}
