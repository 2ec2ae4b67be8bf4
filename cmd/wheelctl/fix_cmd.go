package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wheelhouse-build/wheelhouse/pkg/cluster"
	"github.com/wheelhouse-build/wheelhouse/pkg/reconcile"
	"github.com/wheelhouse-build/wheelhouse/pkg/release"
)

type fixOpts struct {
	*rootOpts
	batchSize   int
	dryRun      bool
	releasePlan string
	clusterBin  string
	namespace   string
	timeout     time.Duration
}

func newFix(parent *rootOpts) *fixOpts {
	return &fixOpts{rootOpts: parent}
}

func (opts *fixOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix <report.json>",
		Short: "Execute the rebuilds and releases a previous `wheelctl issues` run decided.",
		Example: makeExample(
			"wheelctl fix issues.json",
			"wheelctl fix issues.json --dry-run",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 20, "number of rebuilds to process per batch")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report what would be done without mutating anything")
	cmd.Flags().StringVar(&opts.releasePlan, "release-plan", "wheelhouse-prod", "release plan to reference from created releases")
	cmd.Flags().StringVar(&opts.clusterBin, "cluster-cmd", "oc", "cluster CLI to invoke")
	cmd.Flags().StringVarP(&opts.namespace, "namespace", "n", "", "cluster namespace holding the components")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "overall time budget for applying fixes")
	return cmd
}

func (opts *fixOpts) RunE(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return newUsageError("expected exactly one argument: the report file from `wheelctl issues`")
	}

	report, err := reconcile.LoadReport(args[0])
	if err != nil {
		return err
	}
	if len(report.Issues) == 0 {
		fmt.Println("no issues in the report; nothing to fix")
		return nil
	}

	fixer := &release.Fixer{
		Catalog:     opts.catalog(),
		Cluster:     cluster.CLI{Binary: opts.clusterBin, Namespace: opts.namespace},
		ReleasePlan: opts.releasePlan,
		BatchSize:   opts.batchSize,
		DryRun:      opts.dryRun,
		Logger:      opts.Logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	result, err := fixer.Apply(ctx, report)
	if err != nil {
		return err
	}

	fmt.Printf("rebuild triggered: %d, released: %d, skipped: %d\n",
		len(result.Rebuilt), len(result.Released), len(result.Skipped))
	if opts.dryRun {
		fmt.Println("dry-run: no files or cluster resources were mutated")
	}
	return nil
}
