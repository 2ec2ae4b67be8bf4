// Package gen produces the files derived from each package's presence in
// the catalog: the wrapper project and requirement manifests, the build
// platform's component resources, and the pipeline definitions. Generation
// is idempotent; files an operator may have customised are only written
// when absent.
package gen

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	yamlv2 "gopkg.in/yaml.v2"

	"github.com/wheelhouse-build/wheelhouse/pkg/catalog"
	"github.com/wheelhouse-build/wheelhouse/pkg/resolver"
)

const (
	componentsDir        = "konflux/components"
	baseKustomization    = "konflux/components/base/pkg-kustomization.yaml"
	tektonDir            = ".tekton"
	onPushTemplate       = ".tekton/on-push.yaml.template"
	onPullTemplate       = ".tekton/on-pull-request.yaml.template"
	onPushAggregate      = ".tekton/packages-on-push.yaml"
	onPullAggregate      = ".tekton/packages-on-pull-request.yaml"
	defaultImageRegistry = "quay.io/redhat-user-workloads"
	defaultTenant        = "wheelhouse-tenant"
)

// Options selects which generation phases run.
type Options struct {
	SkipWrapper   bool
	SkipPlatform  bool
	SkipPipelines bool
}

// Generator renders everything derivable from the catalog and the override
// set.
type Generator struct {
	Catalog  *catalog.Catalog
	Store    catalog.OverrideStore
	Resolver resolver.Resolver
	Logger   log.Logger

	ImageRegistry string // defaults to the platform's workload registry
	Tenant        string
}

// All regenerates derived files for every package in the catalog. progress,
// if non-nil, is called once per package.
func (g *Generator) All(ctx context.Context, opts Options, progress func()) error {
	names, err := g.Catalog.List()
	if err != nil {
		return err
	}

	if !opts.SkipPipelines {
		// The aggregates are rebuilt from scratch each run; a removed
		// package must not linger in them.
		for _, aggregate := range []string{onPushAggregate, onPullAggregate} {
			if err := os.Remove(filepath.Join(g.Catalog.Root, aggregate)); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "clearing %s", aggregate)
			}
		}
	}

	for _, name := range names {
		if !opts.SkipWrapper {
			if err := g.EnsurePackage(ctx, name); err != nil {
				return err
			}
		}
		if !opts.SkipPlatform {
			if err := g.ensureComponentResources(name); err != nil {
				return err
			}
		}
		if !opts.SkipPipelines {
			if err := g.appendPipelines(name); err != nil {
				return err
			}
		}
		if progress != nil {
			progress()
		}
	}

	if !opts.SkipPlatform {
		return g.writeRootKustomization(names)
	}
	return nil
}

// EnsurePackage creates the wrapper files for one package where they are
// missing: placeholder project metadata, the requirement input with the
// override set folded in, the pinned manifests, and the build-argument
// file.
func (g *Generator) EnsurePackage(ctx context.Context, name string) error {
	dir := g.Catalog.PackageDir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating package directory for %s", name)
	}

	overrides, err := g.Store.Load()
	if err != nil {
		return err
	}

	pyproject := filepath.Join(dir, catalog.PyprojectFile)
	if err := writeIfAbsent(pyproject, fmt.Sprintf("[project]\nname = \"%s_placeholder_wrapper\"\nversion = \"0.0.1\"\n", name)); err != nil {
		return err
	}

	requirementsIn := filepath.Join(dir, catalog.RequirementsInFile)
	lines := append([]string{name}, overrides.RequirementsFor(name)...)
	if err := writeIfAbsent(requirementsIn, strings.Join(lines, "\n")+"\n"); err != nil {
		return err
	}

	requirements := filepath.Join(dir, catalog.RequirementsFile)
	if _, err := os.Stat(requirements); os.IsNotExist(err) {
		g.logger().Log("package", name, "generating", catalog.RequirementsFile)
		relIn, relOut, err := g.relPair(requirementsIn, requirements)
		if err != nil {
			return err
		}
		if err := g.Resolver.Compile(ctx, relIn, relOut); err != nil {
			return err
		}
	}

	buildRequirements := filepath.Join(dir, catalog.BuildRequirementsFile)
	if _, err := os.Stat(buildRequirements); os.IsNotExist(err) {
		g.logger().Log("package", name, "generating", catalog.BuildRequirementsFile)
		relIn, relOut, err := g.relPair(requirements, buildRequirements)
		if err != nil {
			return err
		}
		if err := g.Resolver.CompileBuildDeps(ctx, relIn, relOut); err != nil {
			return err
		}
	}

	argfile := filepath.Join(dir, catalog.ArgFile)
	return writeIfAbsent(argfile, "PACKAGE_NAME="+overrides.ImportName(name)+"\n")
}

// Regenerate discards the manifests derived from the override set and
// rebuilds them. The onboarding loop calls this between attempts so a
// freshly grown override set takes effect.
func (g *Generator) Regenerate(ctx context.Context, name string) error {
	if err := g.Catalog.DiscardDerived(name); err != nil {
		return err
	}
	return g.EnsurePackage(ctx, name)
}

func (g *Generator) ensureComponentResources(name string) error {
	dir := filepath.Join(g.Catalog.Root, componentsDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating component directory for %s", name)
	}

	base, err := ioutil.ReadFile(filepath.Join(g.Catalog.Root, baseKustomization))
	if err == nil {
		if err := ioutil.WriteFile(filepath.Join(dir, "kustomization.yaml"), base, 0644); err != nil {
			return errors.Wrapf(err, "writing kustomization for %s", name)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "reading base kustomization")
	}

	setName := fmt.Sprintf("- op: replace\n  path: /metadata/name\n  value: %s\n", name)
	if err := ioutil.WriteFile(filepath.Join(dir, "set-resource-name.yaml"), []byte(setName), 0644); err != nil {
		return errors.Wrapf(err, "writing resource-name patch for %s", name)
	}

	registry := g.ImageRegistry
	if registry == "" {
		registry = defaultImageRegistry
	}
	tenant := g.Tenant
	if tenant == "" {
		tenant = defaultTenant
	}
	setPackage := fmt.Sprintf(`---
apiVersion: appstudio.redhat.com/v1alpha1
kind: ImageRepository
metadata:
  labels:
    appstudio.redhat.com/component: %[1]s
  name: %[1]s
spec:
  image:
    name: %[2]s/%[1]s

---
apiVersion: appstudio.redhat.com/v1alpha1
kind: Component
metadata:
  name: %[1]s
spec:
  componentName: %[1]s
  containerImage: %[3]s/%[2]s/%[1]s
`, name, tenant, registry)
	err = ioutil.WriteFile(filepath.Join(dir, "set-package-name.yaml"), []byte(setPackage), 0644)
	return errors.Wrapf(err, "writing package-name patch for %s", name)
}

// appendPipelines substitutes the package into the pipeline templates and
// appends the result to the aggregate files.
func (g *Generator) appendPipelines(name string) error {
	containerfile := catalog.RecipeFile
	pkgRecipe := filepath.Join(g.Catalog.PackageDir(name), catalog.RecipeFile)
	if _, err := os.Stat(pkgRecipe); err == nil {
		rel, err := filepath.Rel(g.Catalog.Root, pkgRecipe)
		if err != nil {
			return err
		}
		containerfile = rel
	}

	for _, pair := range [][2]string{
		{onPushTemplate, onPushAggregate},
		{onPullTemplate, onPullAggregate},
	} {
		template, err := ioutil.ReadFile(filepath.Join(g.Catalog.Root, pair[0]))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", pair[0])
		}
		rendered := strings.Replace(string(template), "${name}", name, -1)
		rendered = strings.Replace(rendered, "${containerfile}", containerfile, -1)

		file, err := os.OpenFile(filepath.Join(g.Catalog.Root, pair[1]), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrapf(err, "opening %s", pair[1])
		}
		if _, err := file.WriteString(rendered); err != nil {
			file.Close()
			return errors.Wrapf(err, "appending to %s", pair[1])
		}
		file.Close()
	}
	return nil
}

type kustomization struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Resources  []string `yaml:"resources"`
}

func (g *Generator) writeRootKustomization(names []string) error {
	data, err := yamlv2.Marshal(kustomization{
		APIVersion: "kustomize.config.k8s.io/v1beta1",
		Kind:       "Kustomization",
		Resources:  names,
	})
	if err != nil {
		return errors.Wrap(err, "marshalling kustomization")
	}
	path := filepath.Join(g.Catalog.Root, componentsDir, "kustomization.yaml")
	return errors.Wrap(ioutil.WriteFile(path, append([]byte("---\n"), data...), 0644), "writing root kustomization")
}

// relPair maps two absolute paths to checkout-relative ones for the
// resolver, so the header comments it writes into generated files don't
// leak absolute paths from whichever machine ran it.
func (g *Generator) relPair(in, out string) (string, string, error) {
	relIn, err := filepath.Rel(g.Catalog.Root, in)
	if err != nil {
		return "", "", err
	}
	relOut, err := filepath.Rel(g.Catalog.Root, out)
	if err != nil {
		return "", "", err
	}
	return relIn, relOut, nil
}

func writeIfAbsent(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return errors.Wrapf(ioutil.WriteFile(path, []byte(content), 0644), "writing %s", path)
}

func (g *Generator) logger() log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.NewNopLogger()
}
