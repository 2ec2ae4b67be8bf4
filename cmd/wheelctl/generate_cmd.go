package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-build/wheelhouse/pkg/gen"
	"github.com/wheelhouse-build/wheelhouse/pkg/resolver"
)

type generateOpts struct {
	*rootOpts
	skipWrapper   bool
	skipPlatform  bool
	skipPipelines bool
	python        string
	timeout       time.Duration
}

func newGenerate(parent *rootOpts) *generateOpts {
	return &generateOpts{rootOpts: parent}
}

func (opts *generateOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Regenerate derived files for every package: wrappers, platform resources, pipelines.",
		Example: makeExample(
			"wheelctl generate",
			"wheelctl generate --skip-pipelines",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.skipWrapper, "skip-wrapper", false, "skip package wrapper generation")
	cmd.Flags().BoolVar(&opts.skipPlatform, "skip-platform", false, "skip build platform resource generation")
	cmd.Flags().BoolVar(&opts.skipPipelines, "skip-pipelines", false, "skip pipeline definition generation")
	cmd.Flags().StringVar(&opts.python, "python", "python3", "python interpreter hosting the resolver tools")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Hour, "overall time budget for generation")
	return cmd
}

func (opts *generateOpts) RunE(_ *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}

	cat := opts.catalog()
	names, err := cat.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no packages in the catalog; nothing to generate")
		return nil
	}

	generator := &gen.Generator{
		Catalog:  cat,
		Store:    opts.overrideStore(),
		Resolver: resolver.PipTools{Python: opts.python, Dir: cat.Root},
		Logger:   opts.Logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	bar := pb.New(len(names))
	bar.SetWriter(os.Stderr)
	bar.Start()
	err = generator.All(ctx, gen.Options{
		SkipWrapper:   opts.skipWrapper,
		SkipPlatform:  opts.skipPlatform,
		SkipPipelines: opts.skipPipelines,
	}, func() { bar.Increment() })
	bar.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("processed %d package(s)\n", len(names))
	return nil
}
