// Package resolver wraps the dependency resolver CLI: pip-compile to pin a
// requirement with its transitive closure and hashes, and pybuild-deps to
// derive the build-time lockfile from an already pinned manifest.
package resolver

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Resolver pins requirement manifests. Paths are relative to the checkout
// root, which keeps the header comments the resolver writes into the
// generated files reproducible across machines.
type Resolver interface {
	Compile(ctx context.Context, requirementsIn, output string) error
	CompileBuildDeps(ctx context.Context, requirements, output string) error
}

// ExecError carries the resolver's combined output. The onboarding loop
// mines it for missing-distribution diagnostics.
type ExecError struct {
	Cmd    string
	Output []byte
	Err    error
}

func (e *ExecError) Error() string {
	out := strings.TrimSpace(string(e.Output))
	if out == "" {
		return e.Cmd + ": " + e.Err.Error()
	}
	return e.Cmd + ": " + e.Err.Error() + "\n" + out
}

// Diagnostics returns the captured output of a failed resolver or build
// invocation, if err carries any.
func Diagnostics(err error) []byte {
	if execErr, ok := errors.Cause(err).(*ExecError); ok {
		return execErr.Output
	}
	return nil
}

// PipTools runs the resolver through the Python interpreter, so the same
// environment that installed the tools is the one executing them.
type PipTools struct {
	Python string // interpreter to use; defaults to "python3"
	Dir    string // checkout root; working directory for every invocation
}

func (r PipTools) Compile(ctx context.Context, requirementsIn, output string) error {
	return r.run(ctx,
		"piptools", "compile", requirementsIn,
		"--output-file", output,
		"--allow-unsafe",
		"--generate-hashes",
	)
}

func (r PipTools) CompileBuildDeps(ctx context.Context, requirements, output string) error {
	return r.run(ctx,
		"pybuild_deps", "compile",
		"--generate-hashes",
		requirements,
		"--output-file", output,
	)
}

func (r PipTools) run(ctx context.Context, module string, args ...string) error {
	python := r.Python
	if python == "" {
		python = "python3"
	}
	argv := append([]string{"-m", module}, args...)
	cmd := exec.CommandContext(ctx, python, argv...)
	cmd.Dir = r.Dir
	combined := &bytes.Buffer{}
	cmd.Stdout = combined
	cmd.Stderr = combined
	if err := cmd.Run(); err != nil {
		return &ExecError{
			Cmd:    python + " -m " + module + " " + strings.Join(args, " "),
			Output: combined.Bytes(),
			Err:    err,
		}
	}
	return nil
}
