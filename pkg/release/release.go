// Package release executes the decisions a reconciliation sweep produced:
// nudging the build platform into rebuilding a package, or promoting an
// already built snapshot through a Release.
package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/wheelhouse-build/wheelhouse/pkg/catalog"
	"github.com/wheelhouse-build/wheelhouse/pkg/cluster"
	"github.com/wheelhouse-build/wheelhouse/pkg/reconcile"
)

const defaultBatchSize = 20

// Fixer applies the actionable items of a report. With DryRun set it logs
// what it would do and mutates nothing.
type Fixer struct {
	Catalog     *catalog.Catalog
	Cluster     cluster.Client
	ReleasePlan string
	BatchSize   int // rebuild batch size; defaults to 20
	DryRun      bool
	Logger      log.Logger

	// now is a test seam for the rebuild marker timestamp.
	now func() time.Time
}

// Result records what Apply did, per package.
type Result struct {
	Rebuilt  []string
	Released []string
	Skipped  []string
}

// Apply walks the report's issues, rebuilding in batches and releasing one
// by one. Per-package failures are logged and counted as skipped; the rest
// of the report still gets processed.
func (f *Fixer) Apply(ctx context.Context, report *reconcile.Report) (*Result, error) {
	logger := f.logger()
	result := &Result{}

	var rebuilds, releases []reconcile.Item
	for _, item := range report.Issues {
		switch item.Action {
		case reconcile.ActionRebuild.String():
			rebuilds = append(rebuilds, item)
		case reconcile.ActionRelease.String():
			releases = append(releases, item)
		case reconcile.ActionInvestigate.String():
			logger.Log("package", item.Package, "action", "investigate", "detail", item.Detail)
			result.Skipped = append(result.Skipped, item.Package)
		}
	}

	batchSize := f.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	for start := 0; start < len(rebuilds); start += batchSize {
		end := start + batchSize
		if end > len(rebuilds) {
			end = len(rebuilds)
		}
		logger.Log("batch", start/batchSize+1, "rebuilds", end-start)
		for _, item := range rebuilds[start:end] {
			if err := f.triggerRebuild(item.Package); err != nil {
				logger.Log("package", item.Package, "action", "rebuild", "err", err)
				result.Skipped = append(result.Skipped, item.Package)
				continue
			}
			result.Rebuilt = append(result.Rebuilt, item.Package)
		}
	}

	for _, item := range releases {
		if err := f.triggerRelease(ctx, item); err != nil {
			logger.Log("package", item.Package, "action", "release", "err", err)
			result.Skipped = append(result.Skipped, item.Package)
			continue
		}
		result.Released = append(result.Released, item.Package)
	}

	return result, nil
}

// triggerRebuild appends a uniquely timestamped marker comment to the
// package's build-argument file. The platform's triggers are path-based, so
// a content change under the package directory is the only way to request a
// rebuild; the marker changes no functional build input.
func (f *Fixer) triggerRebuild(name string) error {
	if f.DryRun {
		f.logger().Log("package", name, "action", "rebuild", "dry-run", "true")
		return nil
	}
	argfile := filepath.Join(f.Catalog.PackageDir(name), catalog.ArgFile)
	file, err := os.OpenFile(argfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", argfile)
	}
	defer file.Close()

	marker := fmt.Sprintf("# rebuild requested at %s\n", f.timeNow().UTC().Format(time.RFC3339Nano))
	if _, err := file.WriteString(marker); err != nil {
		return errors.Wrapf(err, "appending rebuild marker to %s", argfile)
	}
	f.logger().Log("package", name, "action", "rebuild", "marker", "appended")
	return nil
}

func (f *Fixer) triggerRelease(ctx context.Context, item reconcile.Item) error {
	snapshot, err := f.Cluster.FindSnapshot(ctx, item.Package, item.CurrentCommit)
	if err != nil {
		return err
	}
	if f.DryRun {
		f.logger().Log("package", item.Package, "action", "release", "snapshot", snapshot, "dry-run", "true")
		return nil
	}
	created, err := f.Cluster.CreateRelease(ctx, item.Package, snapshot, f.ReleasePlan)
	if err != nil {
		return err
	}
	f.logger().Log("package", item.Package, "action", "release", "snapshot", snapshot, "release", created)
	return nil
}

func (f *Fixer) timeNow() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

func (f *Fixer) logger() log.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return log.NewNopLogger()
}
