package catalog

import (
	"io/ioutil"
	"os"
	"sort"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	yamlv2 "gopkg.in/yaml.v2"
)

// PackageConfig is the per-package entry in additional-requirements.yaml.
// RequirementsIn is the override set: extra requirements that the resolver
// cannot discover statically, found experimentally by the onboarding loop.
// The set only ever grows; once an override is recorded it is kept even if
// the index later learns to resolve it on its own (stability over
// minimality -- revisit if stale overrides start causing conflicts).
type PackageConfig struct {
	RequirementsIn []string `json:"requirements_in,omitempty" yaml:"requirements_in,omitempty"`
	PackageName    string   `json:"package_name,omitempty" yaml:"package_name,omitempty"`
}

// Overrides is the parsed additional-requirements.yaml document.
type Overrides struct {
	Packages map[string]PackageConfig `json:"packages" yaml:"packages"`
}

// AddRequirement records an extra requirement for the package. It reports
// whether the set actually changed; an override that is already present
// means a retry cannot change the build outcome.
func (o *Overrides) AddRequirement(pkg, requirement string) bool {
	if o.Packages == nil {
		o.Packages = map[string]PackageConfig{}
	}
	cfg := o.Packages[pkg]
	for _, existing := range cfg.RequirementsIn {
		if existing == requirement {
			return false
		}
	}
	cfg.RequirementsIn = append(cfg.RequirementsIn, requirement)
	sort.Strings(cfg.RequirementsIn)
	o.Packages[pkg] = cfg
	return true
}

// RequirementsFor returns the override set for a package, sorted.
func (o *Overrides) RequirementsFor(pkg string) []string {
	reqs := append([]string(nil), o.Packages[pkg].RequirementsIn...)
	sort.Strings(reqs)
	return reqs
}

// ImportName returns the build-time package name: the recorded override if
// one exists, otherwise the distribution name with dashes mapped to
// underscores.
func (o *Overrides) ImportName(pkg string) string {
	if cfg, ok := o.Packages[pkg]; ok && cfg.PackageName != "" {
		return cfg.PackageName
	}
	out := make([]byte, len(pkg))
	for i := 0; i < len(pkg); i++ {
		if pkg[i] == '-' {
			out[i] = '_'
		} else {
			out[i] = pkg[i]
		}
	}
	return string(out)
}

// OverrideStore loads and saves the override document, so the loops stay
// pure: state in, decision plus new state out.
type OverrideStore interface {
	Load() (*Overrides, error)
	Save(*Overrides) error
}

const overridesSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "packages": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "requirements_in": {"type": "array", "items": {"type": "string"}},
          "package_name": {"type": "string"}
        }
      }
    }
  }
}`

// FileOverrideStore keeps the override document at a fixed path in the
// checkout and validates it against a schema on load, since a hand-edited
// document with a typoed key would otherwise silently drop overrides.
type FileOverrideStore struct {
	Path string
}

func (s *FileOverrideStore) Load() (*Overrides, error) {
	data, err := ioutil.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return &Overrides{Packages: map[string]PackageConfig{}}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading overrides file")
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, errors.Wrap(err, "parsing overrides file")
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(overridesSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return nil, errors.Wrap(err, "validating overrides file")
	}
	if !result.Valid() {
		details := ""
		for _, desc := range result.Errors() {
			details += "\n  " + desc.String()
		}
		return nil, errors.Errorf("overrides file %s is invalid:%s", s.Path, details)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, errors.Wrap(err, "unmarshalling overrides file")
	}
	if overrides.Packages == nil {
		overrides.Packages = map[string]PackageConfig{}
	}
	return &overrides, nil
}

func (s *FileOverrideStore) Save(overrides *Overrides) error {
	for pkg, cfg := range overrides.Packages {
		sort.Strings(cfg.RequirementsIn)
		overrides.Packages[pkg] = cfg
	}
	// yaml.v2 writes map keys in sorted order, which keeps the committed
	// file reproducible run over run.
	data, err := yamlv2.Marshal(struct {
		Packages map[string]PackageConfig `yaml:"packages"`
	}{overrides.Packages})
	if err != nil {
		return errors.Wrap(err, "marshalling overrides")
	}
	return errors.Wrap(ioutil.WriteFile(s.Path, data, 0644), "writing overrides file")
}
