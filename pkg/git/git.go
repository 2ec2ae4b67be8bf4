// Package git answers the two questions the reconciler has about source
// history: what is HEAD, and what commit last touched a path. It shells out
// to the git CLI rather than reimplementing revision walking.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// If true, every git invocation is echoed to stdout. Debug aid.
const trace = false

// Repo points at a working copy of the monorepo.
type Repo struct {
	Dir string
}

// HeadRevision returns the commit hash of HEAD.
func (r Repo) HeadRevision(ctx context.Context) (string, error) {
	out := &bytes.Buffer{}
	if err := execGitCmd(ctx, r.Dir, out, "rev-list", "--max-count", "1", "HEAD", "--"); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

// LastCommit returns the most recent first-parent commit that changed the
// given path, which is what the build platform records as the commit a
// component was built from.
func (r Repo) LastCommit(ctx context.Context, path string) (string, error) {
	out := &bytes.Buffer{}
	if err := execGitCmd(ctx, r.Dir, out, "log", "-1", "--format=%H", "--first-parent", "--", path); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func execGitCmd(ctx context.Context, dir string, out *bytes.Buffer, args ...string) error {
	if trace {
		fmt.Fprintf(os.Stderr, "TRACE: git %s\n", strings.Join(args, " "))
	}
	c := exec.CommandContext(ctx, "git", args...)
	c.Dir = dir
	c.Stdout = out
	errOut := &bytes.Buffer{}
	c.Stderr = errOut

	err := c.Run()
	if err != nil {
		msg := findErrorMessage(errOut)
		if msg != "" {
			err = errors.New(msg)
		}
	}
	return err
}

// findErrorMessage picks the most pertinent line out of git's stderr, which
// tends to bury the actual error under progress chatter.
func findErrorMessage(output *bytes.Buffer) string {
	var msg string
	for _, line := range strings.Split(output.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "fatal:") || strings.HasPrefix(line, "error:") {
			return line
		}
		msg = line
	}
	return msg
}
