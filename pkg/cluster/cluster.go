// Package cluster reads and writes the build platform's declarative
// resources -- Component, Snapshot and Release -- through the platform CLI.
// One narrow method per operation used, so tests can substitute fakes and
// the rest of the code never sees the CLI.
package cluster

import (
	"context"
	"strings"

	"github.com/Jeffail/gabs"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	yamlv2 "gopkg.in/yaml.v2"
)

// ErrNoSnapshot means no snapshot is recorded for the requested component
// and commit. The build may still be in flight, or the commit was never
// built; either way there is nothing to release yet.
var ErrNoSnapshot = errors.New("no snapshot recorded for commit")

// Client is the narrow view of the cluster the reconciler needs.
type Client interface {
	// LastBuiltCommit returns the commit recorded on the component's
	// status, or "" if no build has been recorded yet.
	LastBuiltCommit(ctx context.Context, component string) (string, error)
	// FindSnapshot returns the name of the snapshot bound to the given
	// commit of the component, or ErrNoSnapshot.
	FindSnapshot(ctx context.Context, component, commit string) (string, error)
	// CreateRelease submits a Release referencing the snapshot and the
	// named release plan, returning the CLI's confirmation line.
	CreateRelease(ctx context.Context, component, snapshot, releasePlan string) (string, error)
}

// Label keys the pipeline controller stamps onto snapshots.
const (
	labelComponent = "appstudio.openshift.io/component"
	labelSHA       = "pac.test.appstudio.openshift.io/sha"
	labelEventType = "pac.test.appstudio.openshift.io/event-type"
)

// CLI talks to the cluster through an oc-compatible binary.
type CLI struct {
	Binary    string // defaults to "oc"
	Namespace string // empty means the CLI's current namespace
}

func (c CLI) LastBuiltCommit(ctx context.Context, component string) (string, error) {
	out, err := c.exec(ctx, nil, "get", "component", component, "-o", "yaml")
	if err != nil {
		return "", errors.Wrapf(err, "getting component %s", component)
	}
	return parseLastBuiltCommit(out)
}

func (c CLI) FindSnapshot(ctx context.Context, component, commit string) (string, error) {
	selector := strings.Join([]string{
		labelSHA + "=" + commit,
		labelComponent + "=" + component,
		labelEventType + "=push",
	}, ",")
	out, err := c.exec(ctx, nil, "get", "snapshot", "-l", selector, "-o", "json")
	if err != nil {
		return "", errors.Wrapf(err, "listing snapshots for %s", component)
	}
	return parseSnapshotName(out)
}

func (c CLI) CreateRelease(ctx context.Context, component, snapshot, releasePlan string) (string, error) {
	manifest, err := renderRelease(component, snapshot, releasePlan)
	if err != nil {
		return "", err
	}
	out, err := c.exec(ctx, manifest, "create", "-f", "-")
	if err != nil {
		return "", errors.Wrapf(err, "creating release for %s", component)
	}
	return strings.TrimSpace(string(out)), nil
}

func parseLastBuiltCommit(data []byte) (string, error) {
	var component struct {
		Status struct {
			LastBuiltCommit string `json:"lastBuiltCommit"`
		} `json:"status"`
	}
	if err := yaml.Unmarshal(data, &component); err != nil {
		return "", errors.Wrap(err, "parsing component")
	}
	return component.Status.LastBuiltCommit, nil
}

func parseSnapshotName(data []byte) (string, error) {
	parsed, err := gabs.ParseJSON(data)
	if err != nil {
		return "", errors.Wrap(err, "parsing snapshot list")
	}
	items, err := parsed.Path("items").Children()
	if err != nil || len(items) == 0 {
		return "", ErrNoSnapshot
	}
	name, ok := items[0].Path("metadata.name").Data().(string)
	if !ok || name == "" {
		return "", errors.New("snapshot has no name")
	}
	return name, nil
}

type releaseManifest struct {
	APIVersion string          `yaml:"apiVersion"`
	Kind       string          `yaml:"kind"`
	Metadata   releaseMetadata `yaml:"metadata"`
	Spec       releaseSpec     `yaml:"spec"`
}

type releaseMetadata struct {
	GenerateName string `yaml:"generateName"`
}

type releaseSpec struct {
	Snapshot    string `yaml:"snapshot"`
	ReleasePlan string `yaml:"releasePlan"`
}

func renderRelease(component, snapshot, releasePlan string) ([]byte, error) {
	return yamlv2.Marshal(releaseManifest{
		APIVersion: "appstudio.redhat.com/v1alpha1",
		Kind:       "Release",
		Metadata:   releaseMetadata{GenerateName: component + "-"},
		Spec: releaseSpec{
			Snapshot:    snapshot,
			ReleasePlan: releasePlan,
		},
	})
}
