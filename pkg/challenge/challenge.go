// Package challenge provides the configuration model for CTF challenges:
// parsing challenges.yaml, validating entries, and reading terraform
// backend-config files.
package challenge

import (
	"path/filepath"
	"time"

	"github.com/ekocloudsec/ctfctl/pkg/expr"
)

// Manifest is the parsed challenges.yaml file.
type Manifest struct {
	Challenges map[string]*Challenge `yaml:"challenges"`

	// Providers holds per-provider defaults merged into every challenge
	// of that provider at load time.
	Providers map[string]ProviderDefaults `yaml:"providers"`

	// BasePath is the directory all relative paths in the manifest are
	// resolved against. Set by the loader.
	BasePath string `yaml:"-"`
}

// ProviderDefaults are manifest-level settings for one cloud provider.
type ProviderDefaults struct {
	// Variables are defaults for challenge variables. A challenge's own
	// value for the same key wins.
	Variables map[string]interface{} `yaml:"variables"`
}

// Challenge is one entry in the manifest.
type Challenge struct {
	// Name is the map key in challenges.yaml. Set by the loader.
	Name string `yaml:"-" validate:"required"`

	Provider    string `yaml:"provider" validate:"required,oneof=aws azure gcp"`
	Difficulty  string `yaml:"difficulty" validate:"omitempty,oneof=easy medium hard insane"`
	Description string `yaml:"description"`

	// Directory holds the terraform configuration, relative to the
	// manifest's base path.
	Directory     string `yaml:"directory" validate:"required"`
	BackendConfig string `yaml:"backend_config" validate:"required"`
	WebContent    string `yaml:"web_content"`

	Variables map[string]interface{} `yaml:"variables"`
	Outputs   []string               `yaml:"outputs"`
	Tags      []string               `yaml:"tags"`

	// DependsOn lists challenges that must deploy first, in addition to
	// any discovered through variable placeholders.
	DependsOn []string `yaml:"depends_on" validate:"dive,required"`

	// Timeout bounds a single apply or destroy of this challenge. Zero
	// means the engine default.
	Timeout time.Duration `yaml:"timeout"`

	// ParsedVariables holds each variable parsed for placeholders. Set by
	// the loader.
	ParsedVariables map[string]expr.Value `yaml:"-"`
}

// DirectoryPath returns the absolute path to the challenge's terraform
// directory.
func (c *Challenge) DirectoryPath(basePath string) string {
	return filepath.Join(basePath, c.Directory)
}

// BackendConfigPath returns the absolute path to the challenge's backend
// config file.
func (c *Challenge) BackendConfigPath(basePath string) string {
	return filepath.Join(basePath, c.BackendConfig)
}

// WebContentPath returns the absolute path to the challenge's web content
// directory, or "" when none is configured.
func (c *Challenge) WebContentPath(basePath string) string {
	if c.WebContent == "" {
		return ""
	}
	return filepath.Join(basePath, c.WebContent)
}

// Dependencies returns the union of declared and discovered dependency
// ids, declared first, without duplicates.
func (c *Challenge) Dependencies() []string {
	var deps []string
	seen := make(map[string]bool)
	for _, d := range c.DependsOn {
		if !seen[d] {
			seen[d] = true
			deps = append(deps, d)
		}
	}
	for _, name := range sortedKeys(c.ParsedVariables) {
		for _, ref := range c.ParsedVariables[name].References() {
			if !seen[ref] {
				seen[ref] = true
				deps = append(deps, ref)
			}
		}
	}
	return deps
}

// HasTag reports whether the challenge carries the given tag.
func (c *Challenge) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
