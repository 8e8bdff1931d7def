// Package locator holds the versioned table of named UI element locators.
package locator

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locators.yaml
var defaultTable []byte

// Platform keys used by the upload steps.
const (
	Facebook  = "fb"
	Instagram = "ig"
)

// Locator identifies one element by XPath. Key is "<platform>.<name>".
type Locator struct {
	Key   string `yaml:"-"`
	XPath string `yaml:"xpath"`
	Note  string `yaml:"note,omitempty"`
}

func (l Locator) String() string {
	return l.Key
}

// Platform groups one site's entry URL and locators.
type Platform struct {
	HomeURL  string             `yaml:"home_url"`
	Domain   string             `yaml:"domain"`
	Locators map[string]Locator `yaml:"locators"`
}

// Table is the top-level YAML document.
type Table struct {
	Version   int                  `yaml:"version"`
	Platforms map[string]*Platform `yaml:"platforms"`
}

// Default parses the embedded table.
func Default() (*Table, error) {
	return parse(defaultTable)
}

// Load returns the embedded table with the YAML file at path merged over
// it. An empty path returns the default table.
func Load(path string) (*Table, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("locators: %w", err)
	}
	override, err := parse(data)
	if err != nil {
		return nil, err
	}
	base.merge(override)
	return base, nil
}

func parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("locators: %w", err)
	}
	if t.Platforms == nil {
		t.Platforms = make(map[string]*Platform)
	}
	for pname, p := range t.Platforms {
		if p == nil {
			return nil, fmt.Errorf("locators: platform %q is empty", pname)
		}
		for name, l := range p.Locators {
			if strings.TrimSpace(l.XPath) == "" {
				return nil, fmt.Errorf("locators: %s.%s missing xpath", pname, name)
			}
			l.Key = pname + "." + name
			p.Locators[name] = l
		}
	}
	return &t, nil
}

func (t *Table) merge(o *Table) {
	if o.Version > t.Version {
		t.Version = o.Version
	}
	for pname, op := range o.Platforms {
		p, ok := t.Platforms[pname]
		if !ok {
			t.Platforms[pname] = op
			continue
		}
		if op.HomeURL != "" {
			p.HomeURL = op.HomeURL
		}
		if op.Domain != "" {
			p.Domain = op.Domain
		}
		if p.Locators == nil {
			p.Locators = make(map[string]Locator)
		}
		for name, l := range op.Locators {
			p.Locators[name] = l
		}
	}
}

// Get returns the named locator for platform.
func (t *Table) Get(platform, name string) (Locator, error) {
	p, ok := t.Platforms[platform]
	if !ok {
		return Locator{}, fmt.Errorf("locators: unknown platform %q", platform)
	}
	l, ok := p.Locators[name]
	if !ok {
		return Locator{}, fmt.Errorf("locators: unknown locator %s.%s", platform, name)
	}
	return l, nil
}

// Platform returns the platform entry or an error.
func (t *Table) Platform(name string) (*Platform, error) {
	p, ok := t.Platforms[name]
	if !ok {
		return nil, fmt.Errorf("locators: unknown platform %q", name)
	}
	return p, nil
}

// Require checks that every listed name exists for platform.
func (t *Table) Require(platform string, names ...string) error {
	var missing []string
	for _, name := range names {
		if _, err := t.Get(platform, name); err != nil {
			missing = append(missing, platform+"."+name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("locators: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
