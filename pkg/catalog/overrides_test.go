package catalog

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) (*FileOverrideStore, func()) {
	dir, err := ioutil.TempDir("", "overrides-test")
	require.NoError(t, err)
	return &FileOverrideStore{Path: filepath.Join(dir, OverridesFileName)},
		func() { os.RemoveAll(dir) }
}

func TestOverridesAddRequirement(t *testing.T) {
	overrides := &Overrides{}

	assert.True(t, overrides.AddRequirement("alpha", "flit-core"))
	assert.True(t, overrides.AddRequirement("alpha", "cython"))
	assert.False(t, overrides.AddRequirement("alpha", "flit-core"), "duplicate must not be added")

	assert.Equal(t, []string{"cython", "flit-core"}, overrides.RequirementsFor("alpha"))
}

func TestOverridesRoundTrip(t *testing.T) {
	store, cleanup := tempStore(t)
	defer cleanup()

	overrides, err := store.Load()
	require.NoError(t, err, "a missing file is an empty override set")
	assert.Empty(t, overrides.Packages)

	overrides.AddRequirement("alpha", "setuptools-scm")
	overrides.AddRequirement("alpha", "cython")
	require.NoError(t, store.Save(overrides))

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"cython", "setuptools-scm"}, reloaded.RequirementsFor("alpha"))
}

func TestOverridesSchemaRejectsUnknownKeys(t *testing.T) {
	store, cleanup := tempStore(t)
	defer cleanup()

	// "requirements" is a typo for "requirements_in"; silently dropping
	// it would lose overrides, so loading must fail loudly.
	doc := `packages:
  alpha:
    requirements:
      - cython
`
	require.NoError(t, ioutil.WriteFile(store.Path, []byte(doc), 0644))

	_, err := store.Load()
	assert.Error(t, err)
}

func TestImportName(t *testing.T) {
	overrides := &Overrides{Packages: map[string]PackageConfig{
		"ruamel-yaml": {PackageName: "ruamel.yaml"},
	}}

	assert.Equal(t, "ruamel.yaml", overrides.ImportName("ruamel-yaml"))
	assert.Equal(t, "typing_extensions", overrides.ImportName("typing-extensions"))
}
