package cluster

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

func (c CLI) exec(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	binary := c.Binary
	if binary == "" {
		binary = "oc"
	}
	if c.Namespace != "" {
		args = append(args, "--namespace", c.Namespace)
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.Stdout = out
	cmd.Stderr = errOut

	if err := cmd.Run(); err != nil {
		if errOut.Len() == 0 {
			return nil, err
		}
		return nil, errors.New(strings.TrimSpace(errOut.String()))
	}
	return out.Bytes(), nil
}
