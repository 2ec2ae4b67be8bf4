package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-build/wheelhouse/pkg/cluster"
	"github.com/wheelhouse-build/wheelhouse/pkg/git"
	"github.com/wheelhouse-build/wheelhouse/pkg/index"
	"github.com/wheelhouse-build/wheelhouse/pkg/reconcile"
)

const defaultIndexURL = "https://pypi.wheelhouse.dev/simple"

type issuesOpts struct {
	*rootOpts
	output        string
	preferRebuild bool
	exclude       []string
	indexURL      string
	indexRPS      float64
	clusterBin    string
	namespace     string
	timeout       time.Duration
}

func newIssues(parent *rootOpts) *issuesOpts {
	return &issuesOpts{rootOpts: parent}
}

func (opts *issuesOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "Reconcile every package's pinned version against the index and cluster build state.",
		Example: makeExample(
			"wheelctl issues -o issues.json",
			"wheelctl issues --prefer-rebuild --exclude 'flaky-*'",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the JSON report here instead of stdout")
	cmd.Flags().BoolVar(&opts.preferRebuild, "prefer-rebuild", false,
		"trigger a rebuild even when a build exists for the current commit")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "glob patterns of package names to skip")
	cmd.Flags().StringVar(&opts.indexURL, "index-url", defaultIndexURL, "base URL of the package index")
	cmd.Flags().Float64Var(&opts.indexRPS, "index-rps", 5, "index request budget, requests per second")
	cmd.Flags().StringVar(&opts.clusterBin, "cluster-cmd", "oc", "cluster CLI to invoke")
	cmd.Flags().StringVarP(&opts.namespace, "namespace", "n", "", "cluster namespace holding the components")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "overall time budget for the sweep")
	return cmd
}

func (opts *issuesOpts) RunE(_ *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}

	cat := opts.catalog()
	names, err := cat.List()
	if err != nil {
		return err
	}

	bar := pb.New(len(names))
	bar.SetWriter(os.Stderr)
	bar.Start()

	sweeper := &reconcile.Sweeper{
		Catalog:       cat,
		Index:         index.NewInstrumentedClient(index.NewRemote(opts.indexURL, opts.indexRPS, int(opts.indexRPS))),
		Cluster:       cluster.CLI{Binary: opts.clusterBin, Namespace: opts.namespace},
		Repo:          git.Repo{Dir: cat.Root},
		PreferRebuild: opts.preferRebuild,
		Exclude:       opts.exclude,
		Logger:        opts.Logger,
		Progress:      func() { bar.Increment() },
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	report, err := sweeper.Sweep(ctx)
	bar.Finish()
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := report.WriteFile(opts.output); err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", opts.output)
	} else {
		data, err := report.Marshal()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}

	if report.Summary.WithIssues == 0 {
		fmt.Fprintln(os.Stderr, "no issues found; all packages are up to date")
		return nil
	}
	fmt.Fprintf(os.Stderr, "found %d package(s) with issues\n", report.Summary.WithIssues)
	for action, count := range report.Summary.ByAction {
		if action != "none" {
			fmt.Fprintf(os.Stderr, "  %s: %d\n", action, count)
		}
	}
	return nil
}
