// Package builder drives the hermetic container build for one package:
// network disabled, inputs declared up front via a prefetch specification,
// so the build only sees sources that were fetched and hash-verified ahead
// of time.
package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
)

// PrefetchInput declares the pre-fetched sources a build is allowed to use.
type PrefetchInput struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	AllowBinary bool   `json:"allow_binary"`
}

// BuildSpec names everything one build invocation needs.
type BuildSpec struct {
	Name       string
	ContextDir string // package directory; build context
	Recipe     string // path to the Containerfile, relative to ContextDir
	ArgFile    string // build-argument file, relative to ContextDir
	Prefetch   PrefetchInput
}

// Builder produces an image from a BuildSpec. It returns the combined
// output of the build tool in both the success and failure case; the
// caller decides what to mine out of it.
type Builder interface {
	Build(ctx context.Context, spec BuildSpec) ([]byte, error)
}

// Podman shells out to a podman-compatible build tool.
type Podman struct {
	Binary string // defaults to "podman"
}

func (b Podman) Build(ctx context.Context, spec BuildSpec) ([]byte, error) {
	binary := b.Binary
	if binary == "" {
		binary = "podman"
	}
	prefetch, err := json.Marshal(spec.Prefetch)
	if err != nil {
		return nil, err
	}
	args := []string{
		"build",
		"--network=none",
		"--no-cache",
		"--file", spec.Recipe,
		"--build-arg-file", spec.ArgFile,
		"--label", "wheelhouse.prefetch-input=" + string(prefetch),
		"--tag", "localhost/wheelhouse/" + spec.Name,
		".",
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = spec.ContextDir
	combined := &bytes.Buffer{}
	cmd.Stdout = combined
	cmd.Stderr = combined
	err = cmd.Run()
	return combined.Bytes(), err
}
