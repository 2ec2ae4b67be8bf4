package onboard

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-build/wheelhouse/pkg/builder"
	"github.com/wheelhouse-build/wheelhouse/pkg/catalog"
)

type memStore struct {
	overrides *catalog.Overrides
	saves     int
}

func newMemStore() *memStore {
	return &memStore{overrides: &catalog.Overrides{Packages: map[string]catalog.PackageConfig{}}}
}

func (s *memStore) Load() (*catalog.Overrides, error) { return s.overrides, nil }

func (s *memStore) Save(o *catalog.Overrides) error {
	s.overrides = o
	s.saves++
	return nil
}

type fakeGenerator struct {
	calls int
}

func (g *fakeGenerator) Regenerate(context.Context, string) error {
	g.calls++
	return nil
}

// scriptedBuilder replays a fixed sequence of build results and records the
// specs it was invoked with.
type scriptedBuilder struct {
	t       *testing.T
	outputs []string
	errs    []error
	calls   int
	specs   []builder.BuildSpec
}

func (b *scriptedBuilder) Build(_ context.Context, spec builder.BuildSpec) ([]byte, error) {
	i := b.calls
	b.calls++
	b.specs = append(b.specs, spec)
	require.Less(b.t, i, len(b.outputs), "unexpected extra build attempt")
	return []byte(b.outputs[i]), b.errs[i]
}

func newLoop(t *testing.T, store catalog.OverrideStore, gen Generator, b builder.Builder, maxAttempts int) (*Loop, func()) {
	dir, err := ioutil.TempDir("", "onboard-test")
	require.NoError(t, err)
	return &Loop{
		Catalog:     &catalog.Catalog{Root: dir},
		Store:       store,
		Generator:   gen,
		Builder:     b,
		MaxAttempts: maxAttempts,
	}, func() { os.RemoveAll(dir) }
}

func TestLoopDiscoversDependenciesAndSucceeds(t *testing.T) {
	store := newMemStore()
	gen := &fakeGenerator{}
	buildErr := errors.New("exit status 1")
	b := &scriptedBuilder{
		outputs: []string{
			"ERROR: No matching distribution found for flit_core",
			"ERROR: No matching distribution found for Cython",
			"COMMIT done",
		},
		errs: []error{buildErr, buildErr, nil},
	}
	b.t = t
	loop, cleanup := newLoop(t, store, gen, b, 0)
	defer cleanup()

	result, err := loop.Run(context.Background(), "My_Package")
	require.NoError(t, err)

	assert.Equal(t, "my-package", result.Package)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, []string{"flit-core", "cython"}, result.Discovered)
	assert.Equal(t, 3, gen.calls, "manifests regenerate before every attempt")

	// The override set grew monotonically, stayed duplicate-free, and
	// came out sorted.
	assert.Equal(t, []string{"cython", "flit-core"}, store.overrides.RequirementsFor("my-package"))
	assert.Equal(t, 2, store.saves)
}

func TestLoopTerminatesOnUndiagnosableFailure(t *testing.T) {
	store := newMemStore()
	b := &scriptedBuilder{
		outputs: []string{"gcc: fatal error: exit status 2"},
		errs:    []error{errors.New("exit status 2")},
	}
	b.t = t
	loop, cleanup := newLoop(t, store, &fakeGenerator{}, b, 0)
	defer cleanup()

	_, err := loop.Run(context.Background(), "alpha")
	require.Error(t, err)

	assert.True(t, IsTerminal(err))
	assert.Equal(t, 1, b.calls, "an undiagnosable failure must not be retried")
	assert.Contains(t, err.Error(), "gcc: fatal error", "the full diagnostic is surfaced")
	assert.Empty(t, store.overrides.RequirementsFor("alpha"))
}

func TestLoopTerminatesWhenOverrideAlreadyPresent(t *testing.T) {
	store := newMemStore()
	buildErr := errors.New("exit status 1")
	b := &scriptedBuilder{
		outputs: []string{
			"ERROR: No matching distribution found for cython",
			"ERROR: No matching distribution found for cython",
		},
		errs: []error{buildErr, buildErr},
	}
	b.t = t
	loop, cleanup := newLoop(t, store, &fakeGenerator{}, b, 0)
	defer cleanup()

	_, err := loop.Run(context.Background(), "alpha")
	require.Error(t, err)

	assert.True(t, IsTerminal(err))
	assert.Equal(t, 2, b.calls)
	assert.Equal(t, []string{"cython"}, store.overrides.RequirementsFor("alpha"))
}

func TestLoopMaxAttemptsGuard(t *testing.T) {
	store := newMemStore()
	// Every attempt discovers a fresh dependency; without the guard this
	// would run as long as the chain does.
	b := &endlessBuilder{}
	loop, cleanup := newLoop(t, store, &fakeGenerator{}, b, 3)
	defer cleanup()

	_, err := loop.Run(context.Background(), "alpha")
	require.Error(t, err)

	assert.True(t, IsTerminal(err))
	assert.Equal(t, 3, b.calls)
	assert.Len(t, store.overrides.RequirementsFor("alpha"), 3)
}

func TestLoopUsesSharedRecipeWhenPackageHasNone(t *testing.T) {
	b := &scriptedBuilder{outputs: []string{"COMMIT done"}, errs: []error{nil}}
	b.t = t
	loop, cleanup := newLoop(t, newMemStore(), &fakeGenerator{}, b, 0)
	defer cleanup()
	require.NoError(t, ioutil.WriteFile(
		filepath.Join(loop.Catalog.Root, catalog.RecipeFile), []byte("FROM scratch\n"), 0644))

	_, err := loop.Run(context.Background(), "alpha")
	require.NoError(t, err)

	require.Len(t, b.specs, 1)
	assert.Equal(t, filepath.Join(loop.Catalog.Root, catalog.RecipeFile), b.specs[0].Recipe)
	assert.Equal(t, loop.Catalog.PackageDir("alpha"), b.specs[0].ContextDir)
}

func TestLoopPrefersPackageRecipe(t *testing.T) {
	b := &scriptedBuilder{outputs: []string{"COMMIT done"}, errs: []error{nil}}
	b.t = t
	loop, cleanup := newLoop(t, newMemStore(), &fakeGenerator{}, b, 0)
	defer cleanup()
	dir := loop.Catalog.PackageDir("alpha")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, ioutil.WriteFile(
		filepath.Join(dir, catalog.RecipeFile), []byte("FROM scratch\n"), 0644))

	_, err := loop.Run(context.Background(), "alpha")
	require.NoError(t, err)

	require.Len(t, b.specs, 1)
	assert.Equal(t, catalog.RecipeFile, b.specs[0].Recipe)
}

type endlessBuilder struct {
	calls int
}

func (b *endlessBuilder) Build(context.Context, builder.BuildSpec) ([]byte, error) {
	b.calls++
	out := fmt.Sprintf("ERROR: No matching distribution found for dep%d", b.calls)
	return []byte(out), errors.New("exit status 1")
}
