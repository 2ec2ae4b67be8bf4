package main

import (
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-build/wheelhouse/pkg/catalog"
)

type rootOpts struct {
	Path   string
	Logger log.Logger
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
wheelctl operates a monorepo of recipes that build Python packages from source.

Workflow:
  wheelctl onboard some-package        # discover dependencies, generate manifests
  wheelctl generate                    # regenerate derived files for all packages
  wheelctl issues -o issues.json       # reconcile pinned state against the index
  wheelctl fix issues.json             # trigger the rebuilds and releases decided above
  wheelctl automerge --owner o --repo r --dry-run   # inspect the bot PR merge gate
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "wheelctl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.Path, "path", "p", ".",
		"path to the monorepo checkout to work on")

	cmd.AddCommand(
		newOnboard(opts).Command(),
		newGenerate(opts).Command(),
		newIssues(opts).Command(),
		newFix(opts).Command(),
		newAutomerge(opts).Command(),
		newVersionCommand(),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	logger := log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	opts.Logger = logger
	return nil
}

func (opts *rootOpts) catalog() *catalog.Catalog {
	return &catalog.Catalog{Root: opts.Path}
}

func (opts *rootOpts) overrideStore() *catalog.FileOverrideStore {
	return &catalog.FileOverrideStore{Path: opts.catalog().OverridesPath()}
}
