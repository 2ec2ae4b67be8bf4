// Package catalog models the on-disk layout of the recipe monorepo: one
// directory per onboarded package under packages/, each holding the
// requirement manifests and the build-argument file, plus a repo-wide
// additional-requirements.yaml with per-package override sets.
package catalog

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	// Files derived from the override set; regenerated on every
	// onboarding iteration.
	RequirementsInFile    = "requirements.in"
	RequirementsFile      = "requirements.txt"
	BuildRequirementsFile = "requirements-build.txt"

	ArgFile       = "argfile.conf"
	PyprojectFile = "pyproject.toml"
	RecipeFile    = "Containerfile"

	OverridesFileName = "additional-requirements.yaml"
)

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName lowercases a distribution name and collapses runs of the
// permitted separators, the same way the index does, so that names compare
// equal regardless of how a diagnostic or an operator spelled them.
func NormalizeName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Catalog is a read/write view onto the monorepo checkout rooted at Root.
type Catalog struct {
	Root string
}

func (c *Catalog) PackagesDir() string {
	return filepath.Join(c.Root, "packages")
}

func (c *Catalog) PackageDir(name string) string {
	return filepath.Join(c.PackagesDir(), name)
}

func (c *Catalog) OverridesPath() string {
	return filepath.Join(c.PackagesDir(), OverridesFileName)
}

// Exists reports whether a package directory has been created for name.
func (c *Catalog) Exists(name string) bool {
	info, err := os.Stat(c.PackageDir(name))
	return err == nil && info.IsDir()
}

// List returns the onboarded package names, sorted lexicographically so
// that sweeps and generated files come out in a deterministic order.
func (c *Catalog) List() ([]string, error) {
	entries, err := ioutil.ReadDir(c.PackagesDir())
	if err != nil {
		return nil, errors.Wrap(err, "reading packages directory")
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// PinnedVersion extracts the exact version pinned for the package in its
// resolved requirements manifest. An absent manifest or a manifest without
// a pin for the package itself yields an empty version, not an error; the
// package simply hasn't been pinned yet.
func (c *Catalog) PinnedVersion(name string) (string, error) {
	data, err := ioutil.ReadFile(filepath.Join(c.PackageDir(name), RequirementsFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "reading %s for %s", RequirementsFile, name)
	}
	// The resolver may break the line after the version with a
	// continuation backslash, so stop at whitespace or a backslash.
	pattern, err := regexp.Compile(`(?im)^` + regexp.QuoteMeta(name) + `==([^\s\\]+)`)
	if err != nil {
		return "", err
	}
	m := pattern.FindSubmatch(data)
	if m == nil {
		return "", nil
	}
	return string(m[1]), nil
}

// DiscardDerived removes the manifests that are derived from the override
// set, so the next generation starts from a clean slate. Missing files are
// fine; a fresh package has none of them yet.
func (c *Catalog) DiscardDerived(name string) error {
	for _, f := range []string{RequirementsInFile, RequirementsFile, BuildRequirementsFile} {
		if err := os.Remove(filepath.Join(c.PackageDir(name), f)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "discarding %s for %s", f, name)
		}
	}
	return nil
}
