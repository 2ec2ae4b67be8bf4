// Package onboard resolves the full dependency set of a new package
// experimentally: build, mine the failure for a missing distribution, add
// it to the override set, retry. Static resolution can't see build-time
// imports, so the loop discovers them the only way that is reliable --
// by attempting the build.
package onboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/wheelhouse-build/wheelhouse/pkg/builder"
	"github.com/wheelhouse-build/wheelhouse/pkg/catalog"
	"github.com/wheelhouse-build/wheelhouse/pkg/resolver"
)

// DefaultMaxAttempts bounds the loop against pathological dependency
// chains and against false negatives in the diagnostic parsing.
const DefaultMaxAttempts = 25

// Generator regenerates a package's derived manifests from the current
// override set. Satisfied by gen.Generator.
type Generator interface {
	Regenerate(ctx context.Context, name string) error
}

// TerminalError is a failure the loop cannot retry out of. It carries the
// full diagnostic output so the operator can act on it.
type TerminalError struct {
	Reason     string
	Diagnostic string
}

func (e *TerminalError) Error() string {
	if e.Diagnostic == "" {
		return e.Reason
	}
	return e.Reason + "\n\n" + e.Diagnostic
}

// IsTerminal reports whether err is a terminal onboarding failure.
func IsTerminal(err error) bool {
	_, ok := errors.Cause(err).(*TerminalError)
	return ok
}

// Result summarises a successful onboarding run.
type Result struct {
	Package    string
	Attempts   int
	Discovered []string // overrides added during this run, in discovery order
}

// Loop is the onboarding retry loop for one repository checkout.
type Loop struct {
	Catalog     *catalog.Catalog
	Store       catalog.OverrideStore
	Generator   Generator
	Builder     builder.Builder
	MaxAttempts int
	Logger      log.Logger
}

// Run onboards the named package. The override set only grows during a
// run: each iteration either succeeds, adds exactly one newly discovered
// dependency, or stops with a terminal error.
func (l *Loop) Run(ctx context.Context, name string) (*Result, error) {
	name = catalog.NormalizeName(name)
	logger := log.With(l.logger(), "package", name)

	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	result := &Result{Package: name}
	for attempt := 1; ; attempt++ {
		if attempt > maxAttempts {
			return nil, &TerminalError{
				Reason: fmt.Sprintf("giving up on %s after %d attempts; override set so far: %v",
					name, maxAttempts, result.Discovered),
			}
		}
		result.Attempts = attempt
		logger.Log("attempt", attempt)

		outcome := l.attempt(ctx, name)
		switch outcome.Kind {
		case builder.Success:
			logger.Log("onboarded", "true", "attempts", attempt)
			return result, nil

		case builder.MissingDependency:
			dep := catalog.NormalizeName(outcome.MissingDep)
			overrides, err := l.Store.Load()
			if err != nil {
				return nil, err
			}
			if !overrides.AddRequirement(name, dep) {
				// The signal names a dependency we already added, so a
				// retry cannot change the outcome.
				return nil, &TerminalError{
					Reason:     fmt.Sprintf("build still cannot resolve %q after adding it to the override set", dep),
					Diagnostic: outcome.Diagnostic,
				}
			}
			if err := l.Store.Save(overrides); err != nil {
				return nil, err
			}
			if err := l.Catalog.DiscardDerived(name); err != nil {
				return nil, err
			}
			result.Discovered = append(result.Discovered, dep)
			logger.Log("missing-dependency", dep, "overrides", len(overrides.RequirementsFor(name)))

		case builder.OtherFailure:
			return nil, &TerminalError{
				Reason:     fmt.Sprintf("build of %s failed with no diagnosable missing dependency", name),
				Diagnostic: outcome.Diagnostic,
			}
		}
	}
}

// attempt runs one regenerate-and-build iteration and interprets whatever
// diagnostics it produced. Missing-distribution errors usually surface at
// the resolve step, before the build engine even runs.
func (l *Loop) attempt(ctx context.Context, name string) builder.Outcome {
	if err := l.Generator.Regenerate(ctx, name); err != nil {
		return builder.Interpret(resolver.Diagnostics(err), err)
	}
	out, err := l.Builder.Build(ctx, l.buildSpec(name))
	return builder.Interpret(out, err)
}

func (l *Loop) buildSpec(name string) builder.BuildSpec {
	// Most packages build with the shared recipe at the checkout root; a
	// package-local one takes precedence when present.
	recipe := catalog.RecipeFile
	if _, err := os.Stat(filepath.Join(l.Catalog.PackageDir(name), catalog.RecipeFile)); os.IsNotExist(err) {
		recipe = filepath.Join(l.Catalog.Root, catalog.RecipeFile)
	}
	return builder.BuildSpec{
		Name:       name,
		ContextDir: l.Catalog.PackageDir(name),
		Recipe:     recipe,
		ArgFile:    catalog.ArgFile,
		Prefetch: builder.PrefetchInput{
			Type:        "pip",
			Path:        ".",
			AllowBinary: false,
		},
	}
}

func (l *Loop) logger() log.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return log.NewNopLogger()
}
