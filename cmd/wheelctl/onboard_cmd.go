package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wheelhouse-build/wheelhouse/pkg/builder"
	"github.com/wheelhouse-build/wheelhouse/pkg/catalog"
	"github.com/wheelhouse-build/wheelhouse/pkg/gen"
	"github.com/wheelhouse-build/wheelhouse/pkg/onboard"
	"github.com/wheelhouse-build/wheelhouse/pkg/resolver"
)

type onboardOpts struct {
	*rootOpts
	maxAttempts int
	builderBin  string
	python      string
	timeout     time.Duration
}

func newOnboard(parent *rootOpts) *onboardOpts {
	return &onboardOpts{rootOpts: parent}
}

func (opts *onboardOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboard <package>",
		Short: "Onboard a new package, discovering its dependency closure by attempting builds.",
		Example: makeExample(
			"wheelctl onboard httpx",
			"wheelctl onboard httpx --max-attempts 10",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", onboard.DefaultMaxAttempts,
		"give up after this many build attempts")
	cmd.Flags().StringVar(&opts.builderBin, "builder", "podman", "container build tool to invoke")
	cmd.Flags().StringVar(&opts.python, "python", "python3", "python interpreter hosting the resolver tools")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Hour, "overall time budget for the onboarding loop")
	return cmd
}

func (opts *onboardOpts) RunE(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return newUsageError("expected exactly one argument: the package to onboard")
	}
	name := catalog.NormalizeName(args[0])

	cat := opts.catalog()
	if cat.Exists(name) {
		return newUsageError(fmt.Sprintf("package %q is already onboarded", name))
	}
	if err := os.MkdirAll(cat.PackageDir(name), 0755); err != nil {
		return err
	}

	store := opts.overrideStore()
	loop := &onboard.Loop{
		Catalog: cat,
		Store:   store,
		Generator: &gen.Generator{
			Catalog:  cat,
			Store:    store,
			Resolver: resolver.PipTools{Python: opts.python, Dir: cat.Root},
			Logger:   opts.Logger,
		},
		Builder:     builder.Podman{Binary: opts.builderBin},
		MaxAttempts: opts.maxAttempts,
		Logger:      opts.Logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	result, err := loop.Run(ctx, name)
	if err != nil {
		if onboard.IsTerminal(err) {
			// The full diagnostic context is the point; don't summarise.
			fmt.Fprintln(os.Stderr, err.Error())
			return fmt.Errorf("onboarding %s failed", name)
		}
		return err
	}

	fmt.Printf("onboarded %s in %d attempt(s)\n", name, result.Attempts)
	if len(result.Discovered) > 0 {
		fmt.Printf("discovered overrides: %s\n", strings.Join(result.Discovered, ", "))
	}
	return nil
}
