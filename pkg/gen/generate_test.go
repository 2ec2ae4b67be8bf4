package gen

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-build/wheelhouse/pkg/catalog"
)

// fakeResolver writes recognisable pinned manifests instead of shelling out.
type fakeResolver struct {
	root     string
	compiles int
}

func (r *fakeResolver) Compile(_ context.Context, requirementsIn, output string) error {
	r.compiles++
	in, err := ioutil.ReadFile(filepath.Join(r.root, requirementsIn))
	if err != nil {
		return err
	}
	name := strings.SplitN(string(in), "\n", 2)[0]
	return ioutil.WriteFile(filepath.Join(r.root, output), []byte(name+"==1.0.0\n"), 0644)
}

func (r *fakeResolver) CompileBuildDeps(_ context.Context, requirements, output string) error {
	return ioutil.WriteFile(filepath.Join(r.root, output), []byte("setuptools==69.0.0\n"), 0644)
}

func testGenerator(t *testing.T) (*Generator, func()) {
	dir, err := ioutil.TempDir("", "gen-test")
	require.NoError(t, err)
	cat := &catalog.Catalog{Root: dir}
	require.NoError(t, os.MkdirAll(cat.PackagesDir(), 0755))
	gen := &Generator{
		Catalog:  cat,
		Store:    &catalog.FileOverrideStore{Path: cat.OverridesPath()},
		Resolver: &fakeResolver{root: dir},
	}
	return gen, func() { os.RemoveAll(dir) }
}

func readFile(t *testing.T, path string) string {
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestEnsurePackage(t *testing.T) {
	gen, cleanup := testGenerator(t)
	defer cleanup()

	// One override on record before generation.
	overrides, err := gen.Store.Load()
	require.NoError(t, err)
	overrides.AddRequirement("alpha", "flit-core")
	require.NoError(t, gen.Store.Save(overrides))

	require.NoError(t, gen.EnsurePackage(context.Background(), "alpha"))
	dir := gen.Catalog.PackageDir("alpha")

	assert.Contains(t, readFile(t, filepath.Join(dir, catalog.PyprojectFile)), "alpha_placeholder_wrapper")
	assert.Equal(t, "alpha\nflit-core\n", readFile(t, filepath.Join(dir, catalog.RequirementsInFile)))
	assert.Equal(t, "alpha==1.0.0\n", readFile(t, filepath.Join(dir, catalog.RequirementsFile)))
	assert.Equal(t, "setuptools==69.0.0\n", readFile(t, filepath.Join(dir, catalog.BuildRequirementsFile)))
	assert.Equal(t, "PACKAGE_NAME=alpha\n", readFile(t, filepath.Join(dir, catalog.ArgFile)))
}

func TestEnsurePackageDoesNotClobber(t *testing.T) {
	gen, cleanup := testGenerator(t)
	defer cleanup()

	dir := gen.Catalog.PackageDir("alpha")
	require.NoError(t, os.MkdirAll(dir, 0755))
	custom := "alpha\n--hand-edited-flag\n"
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, catalog.RequirementsInFile), []byte(custom), 0644))

	require.NoError(t, gen.EnsurePackage(context.Background(), "alpha"))
	assert.Equal(t, custom, readFile(t, filepath.Join(dir, catalog.RequirementsInFile)),
		"an existing input file is an operator's customisation and stays")

	// A second run finds everything in place and resolves nothing.
	resolver := gen.Resolver.(*fakeResolver)
	before := resolver.compiles
	require.NoError(t, gen.EnsurePackage(context.Background(), "alpha"))
	assert.Equal(t, before, resolver.compiles)
}

func TestRegenerateRefoldsOverrides(t *testing.T) {
	gen, cleanup := testGenerator(t)
	defer cleanup()

	require.NoError(t, gen.EnsurePackage(context.Background(), "alpha"))
	assert.Equal(t, "alpha\n", readFile(t, filepath.Join(gen.Catalog.PackageDir("alpha"), catalog.RequirementsInFile)))

	overrides, err := gen.Store.Load()
	require.NoError(t, err)
	overrides.AddRequirement("alpha", "cython")
	require.NoError(t, gen.Store.Save(overrides))

	require.NoError(t, gen.Regenerate(context.Background(), "alpha"))
	assert.Equal(t, "alpha\ncython\n", readFile(t, filepath.Join(gen.Catalog.PackageDir("alpha"), catalog.RequirementsInFile)))
}

func TestAllWritesPlatformResources(t *testing.T) {
	gen, cleanup := testGenerator(t)
	defer cleanup()

	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, os.MkdirAll(gen.Catalog.PackageDir(name), 0755))
	}

	require.NoError(t, gen.All(context.Background(), Options{SkipPipelines: true}, nil))

	root := gen.Catalog.Root
	patch := readFile(t, filepath.Join(root, componentsDir, "alpha", "set-resource-name.yaml"))
	assert.Contains(t, patch, "value: alpha")

	component := readFile(t, filepath.Join(root, componentsDir, "alpha", "set-package-name.yaml"))
	assert.Contains(t, component, "kind: ImageRepository")
	assert.Contains(t, component, "containerImage: "+defaultImageRegistry+"/"+defaultTenant+"/alpha")

	kustomization := readFile(t, filepath.Join(root, componentsDir, "kustomization.yaml"))
	assert.Contains(t, kustomization, "- alpha")
	assert.Contains(t, kustomization, "- beta")
}

func TestAllRebuildsPipelineAggregates(t *testing.T) {
	gen, cleanup := testGenerator(t)
	defer cleanup()

	root := gen.Catalog.Root
	require.NoError(t, os.MkdirAll(filepath.Join(root, tektonDir), 0755))
	template := "pipeline: ${name}\nrecipe: ${containerfile}\n"
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, onPushTemplate), []byte(template), 0644))

	// beta carries its own recipe; alpha uses the shared one.
	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, os.MkdirAll(gen.Catalog.PackageDir(name), 0755))
	}
	require.NoError(t, ioutil.WriteFile(
		filepath.Join(gen.Catalog.PackageDir("beta"), catalog.RecipeFile), []byte("FROM scratch\n"), 0644))

	opts := Options{SkipWrapper: true, SkipPlatform: true}
	require.NoError(t, gen.All(context.Background(), opts, nil))

	aggregate := readFile(t, filepath.Join(root, onPushAggregate))
	assert.Contains(t, aggregate, "pipeline: alpha\nrecipe: "+catalog.RecipeFile)
	assert.Contains(t, aggregate, "pipeline: beta\nrecipe: packages/beta/"+catalog.RecipeFile)

	// Rerunning must not duplicate entries.
	require.NoError(t, gen.All(context.Background(), opts, nil))
	again := readFile(t, filepath.Join(root, onPushAggregate))
	assert.Equal(t, 1, strings.Count(again, "pipeline: alpha\n"))
}
