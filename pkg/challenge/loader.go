package challenge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ekocloudsec/ctfctl/pkg/errors"
	"github.com/ekocloudsec/ctfctl/pkg/expr"
)

// Load reads and parses a challenges.yaml file. Relative paths inside the
// manifest resolve against the file's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("manifest", path)
		}
		return nil, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to read %s", path), err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, "failed to resolve absolute path", err)
	}

	manifest, err := LoadFromBytes(data, path)
	if err != nil {
		return nil, err
	}
	manifest.BasePath = filepath.Dir(absPath)
	return manifest, nil
}

// LoadFromBytes parses manifest content. The path is only used in error
// messages.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, errors.ParseError(path, err)
	}

	if len(manifest.Challenges) == 0 {
		return nil, errors.ValidationError("manifest defines no challenges", map[string]interface{}{
			"file": path,
		})
	}

	for name, c := range manifest.Challenges {
		if c == nil {
			return nil, errors.ValidationError(fmt.Sprintf("challenge %q has no configuration", name), map[string]interface{}{
				"challenge": name,
			})
		}
		c.Name = name
		for varName, raw := range manifest.Providers[c.Provider].Variables {
			if _, set := c.Variables[varName]; !set {
				if c.Variables == nil {
					c.Variables = make(map[string]interface{})
				}
				c.Variables[varName] = raw
			}
		}
		c.ParsedVariables = make(map[string]expr.Value, len(c.Variables))
		for varName, raw := range c.Variables {
			c.ParsedVariables[varName] = expr.Parse(raw)
		}
	}

	return &manifest, nil
}

// Names returns all challenge ids in ascending order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Challenges))
	for name := range m.Challenges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named challenge.
func (m *Manifest) Get(name string) (*Challenge, error) {
	c, ok := m.Challenges[name]
	if !ok {
		return nil, errors.NotFoundError("challenge", name)
	}
	return c, nil
}

// Filter returns the challenges that pass every provided predicate, in
// ascending name order.
func (m *Manifest) Filter(predicates ...func(*Challenge) bool) []*Challenge {
	var out []*Challenge
	for _, name := range m.Names() {
		c := m.Challenges[name]
		keep := true
		for _, pred := range predicates {
			if !pred(c) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, c)
		}
	}
	return out
}

// ByProvider is a Filter predicate matching a cloud provider.
func ByProvider(provider string) func(*Challenge) bool {
	return func(c *Challenge) bool { return c.Provider == provider }
}

// ByDifficulty is a Filter predicate matching a difficulty level.
func ByDifficulty(difficulty string) func(*Challenge) bool {
	return func(c *Challenge) bool { return c.Difficulty == difficulty }
}

// ByTag is a Filter predicate matching a tag.
func ByTag(tag string) func(*Challenge) bool {
	return func(c *Challenge) bool { return c.HasTag(tag) }
}

func sortedKeys(m map[string]expr.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
