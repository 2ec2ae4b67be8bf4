package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/ryanuber/go-glob"

	"github.com/wheelhouse-build/wheelhouse/pkg/catalog"
	"github.com/wheelhouse-build/wheelhouse/pkg/cluster"
	"github.com/wheelhouse-build/wheelhouse/pkg/index"
	whmetrics "github.com/wheelhouse-build/wheelhouse/pkg/metrics"
)

// RevisionSource answers which commit last touched a path. Satisfied by
// git.Repo.
type RevisionSource interface {
	LastCommit(ctx context.Context, path string) (string, error)
}

// Sweeper reconciles every onboarded package, one at a time, in
// lexicographic order. A failure to observe one package downgrades that
// package to investigate and moves on; it never aborts the sweep.
type Sweeper struct {
	Catalog       *catalog.Catalog
	Index         index.Client
	Cluster       cluster.Client
	Repo          RevisionSource
	PreferRebuild bool
	Exclude       []string // glob patterns of package names to skip
	Logger        log.Logger

	// Progress, if set, is called once per package processed.
	Progress func()
}

// Sweep observes and decides for every package, returning the full report.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := newReport()

	names, err := s.Catalog.List()
	if err != nil {
		sweepDuration.With(whmetrics.LabelSuccess, "false").Observe(time.Since(started).Seconds())
		return nil, err
	}

	for _, name := range names {
		if s.excluded(name) {
			continue
		}
		report.add(s.reconcileOne(ctx, name))
		if s.Progress != nil {
			s.Progress()
		}
	}

	sweepDuration.With(whmetrics.LabelSuccess, "true").Observe(time.Since(started).Seconds())
	for _, action := range []Action{ActionNone, ActionRebuild, ActionRelease, ActionInvestigate} {
		packagesByAction.With(whmetrics.LabelAction, action.String()).
			Set(float64(report.Summary.ByAction[action.String()]))
	}
	return report, nil
}

func (s *Sweeper) reconcileOne(ctx context.Context, name string) Item {
	item := Item{Package: name}

	pinned, err := s.Catalog.PinnedVersion(name)
	if err != nil {
		return s.investigate(item, "reading pinned version", err)
	}
	item.Pinned = pinned

	published, err := s.Index.LatestVersion(ctx, name)
	if err != nil && err != index.ErrNotPublished {
		// Transient index trouble; absence would have been reported as
		// ErrNotPublished, which is a normal state.
		return s.investigate(item, "querying index", err)
	}
	item.Published = published

	// A never-generated manifest and a never-published package both read as
	// "", but two absences are not agreement.
	if pinned != "" && pinned == published {
		item.Action = ActionNone.String()
		item.Detail = "pinned version is published"
		return item
	}

	builtCommit, err := s.Cluster.LastBuiltCommit(ctx, name)
	if err != nil {
		return s.investigate(item, "querying component", err)
	}
	item.BuiltCommit = builtCommit

	currentCommit, err := s.Repo.LastCommit(ctx, s.Catalog.PackageDir(name))
	if err != nil {
		return s.investigate(item, "querying source history", err)
	}
	item.CurrentCommit = currentCommit

	action := Decide(Observation{
		Package:       name,
		Pinned:        pinned,
		Published:     published,
		BuiltCommit:   builtCommit,
		CurrentCommit: currentCommit,
	}, s.PreferRebuild)
	item.Action = action.String()

	switch action {
	case ActionRebuild:
		if builtCommit == currentCommit {
			item.Detail = "rebuild forced by policy"
		} else {
			item.Detail = fmt.Sprintf("built commit %q does not match current commit %q", builtCommit, currentCommit)
		}
	case ActionRelease:
		item.Detail = "build exists for current commit but is not published"
	}
	return item
}

func (s *Sweeper) investigate(item Item, during string, err error) Item {
	if s.Logger != nil {
		s.Logger.Log("package", item.Package, "during", during, "err", err)
	}
	item.Action = ActionInvestigate.String()
	item.Detail = during + ": " + err.Error()
	return item
}

func (s *Sweeper) excluded(name string) bool {
	for _, pattern := range s.Exclude {
		if glob.Glob(pattern, name) {
			return true
		}
	}
	return false
}
