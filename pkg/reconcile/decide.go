// Package reconcile compares each package's pinned state in the checkout
// against the published index and the cluster's build records, and decides
// what, if anything, needs to happen.
package reconcile

// Action is the outcome of reconciling one package. Exactly one applies.
type Action int

const (
	// ActionNone: the pinned version is what the index serves.
	ActionNone Action = iota
	// ActionRebuild: the current source state has no matching build.
	ActionRebuild
	// ActionRelease: a build exists for the current commit; it just needs
	// promoting to the index.
	ActionRelease
	// ActionInvestigate: reconciliation could not complete for this
	// package this run; a human should look.
	ActionInvestigate
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRebuild:
		return "rebuild"
	case ActionRelease:
		return "release"
	case ActionInvestigate:
		return "investigate"
	}
	return "unknown"
}

// Observation is everything the decision needs about one package.
type Observation struct {
	Package       string
	Pinned        string // version pinned in the checkout
	Published     string // highest version in the index; "" if never published
	BuiltCommit   string // commit last recorded as built; "" if never built
	CurrentCommit string // commit that last touched the package's path
}

// Decide applies the decision table. preferRebuild redirects the
// built-and-current case from release to rebuild; it is a policy switch for
// refreshing builds considered too old, not an error path. A package that
// was never built has an empty built commit, which lands in the rebuild row
// the same as a stale one -- the platform does not distinguish the two.
// An empty pinned version means the manifest was never generated; that is
// never the healthy state, even when the index has no versions either.
func Decide(obs Observation, preferRebuild bool) Action {
	if obs.Pinned != "" && obs.Pinned == obs.Published {
		return ActionNone
	}
	if obs.BuiltCommit != obs.CurrentCommit {
		return ActionRebuild
	}
	if preferRebuild {
		return ActionRebuild
	}
	return ActionRelease
}
