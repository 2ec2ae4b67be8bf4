package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wheelhouse-build/wheelhouse/pkg/forge"
)

const envGithubToken = "WHEELHOUSE_GITHUB_TOKEN"

type automergeOpts struct {
	*rootOpts
	owner       string
	repo        string
	author      string
	token       string
	settleDelay time.Duration
	dryRun      bool
	timeout     time.Duration
}

func newAutomerge(parent *rootOpts) *automergeOpts {
	return &automergeOpts{rootOpts: parent}
}

func (opts *automergeOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "automerge",
		Short: "Merge the automation bot's pull requests once conflict-free and fully green.",
		Example: makeExample(
			"wheelctl automerge --owner wheelhouse-build --repo recipes --dry-run",
			"wheelctl automerge --owner wheelhouse-build --repo recipes",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVar(&opts.owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&opts.repo, "repo", "", "repository name")
	cmd.Flags().StringVar(&opts.author, "author", "wheelhouse-bot", "author whose pull requests are considered")
	cmd.Flags().StringVar(&opts.token, "token", "",
		fmt.Sprintf("API token; defaults to the %s environment variable", envGithubToken))
	cmd.Flags().DurationVar(&opts.settleDelay, "settle-delay", 30*time.Second,
		"wait this long before reading a pull request's checks")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "evaluate the gates but never merge")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 15*time.Minute, "overall time budget for the pass")
	return cmd
}

func (opts *automergeOpts) RunE(_ *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.owner == "" || opts.repo == "" {
		return newUsageError("please supply both --owner and --repo")
	}
	token := opts.token
	if token == "" {
		token = os.Getenv(envGithubToken)
	}
	if token == "" {
		return newUsageError(fmt.Sprintf("please supply --token or set %s", envGithubToken))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	gate := &forge.Gate{
		Client:      forge.NewGitHub(ctx, opts.owner, opts.repo, token),
		Author:      opts.author,
		SettleDelay: opts.settleDelay,
		DryRun:      opts.dryRun,
		Logger:      opts.Logger,
	}

	verdicts, err := gate.Run(ctx)
	if err != nil {
		return err
	}
	if len(verdicts) == 0 {
		fmt.Printf("no open pull requests by %s\n", opts.author)
		return nil
	}

	w := newTabwriter()
	fmt.Fprintln(w, "PR\tMERGED\tREASON")
	for _, v := range verdicts {
		fmt.Fprintf(w, "#%d\t%t\t%s\n", v.Number, v.Merged, v.Reason)
	}
	return w.Flush()
}
