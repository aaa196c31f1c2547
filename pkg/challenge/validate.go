package challenge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/ekocloudsec/ctfctl/pkg/errors"
)

var validate = validator.New()

// Validate checks a single challenge: struct-level constraints plus the
// existence of the paths it references. Returned errors carry the
// challenge name in their details.
func (c *Challenge) Validate(basePath string) error {
	if err := validate.Struct(c); err != nil {
		var details []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				details = append(details, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
		}
		return errors.ValidationError(fmt.Sprintf("challenge %q is invalid", c.Name), map[string]interface{}{
			"challenge": c.Name,
			"fields":    details,
		})
	}

	dir := c.DirectoryPath(basePath)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return errors.ValidationError(fmt.Sprintf("challenge %q: directory not found: %s", c.Name, dir), map[string]interface{}{
			"challenge": c.Name,
			"directory": dir,
		})
	}
	if _, err := os.Stat(filepath.Join(dir, "main.tf")); err != nil {
		return errors.ValidationError(fmt.Sprintf("challenge %q: main.tf not found in %s", c.Name, dir), map[string]interface{}{
			"challenge": c.Name,
			"directory": dir,
		})
	}
	backendPath := c.BackendConfigPath(basePath)
	if _, err := os.Stat(backendPath); err != nil {
		return errors.ValidationError(fmt.Sprintf("challenge %q: backend config not found: %s", c.Name, c.BackendConfig), map[string]interface{}{
			"challenge":      c.Name,
			"backend_config": backendPath,
		})
	}
	if _, err := ParseBackendConfig(backendPath); err != nil {
		return errors.ValidationError(fmt.Sprintf("challenge %q: backend config not parseable: %v", c.Name, err), map[string]interface{}{
			"challenge":      c.Name,
			"backend_config": backendPath,
		})
	}
	if web := c.WebContentPath(basePath); web != "" {
		if info, err := os.Stat(web); err != nil || !info.IsDir() {
			return errors.ValidationError(fmt.Sprintf("challenge %q: web content directory not found: %s", c.Name, web), map[string]interface{}{
				"challenge":   c.Name,
				"web_content": web,
			})
		}
	}

	for _, dep := range c.DependsOn {
		if dep == c.Name {
			return errors.ValidationError(fmt.Sprintf("challenge %q depends on itself", c.Name), map[string]interface{}{
				"challenge": c.Name,
			})
		}
	}

	return nil
}

// Validate checks every challenge in the manifest and that declared
// dependencies name known challenges. All problems are returned, not
// just the first.
func (m *Manifest) Validate() []error {
	var errs []error
	for _, name := range m.Names() {
		c := m.Challenges[name]
		if err := c.Validate(m.BasePath); err != nil {
			errs = append(errs, err)
		}
		for _, dep := range c.Dependencies() {
			if _, ok := m.Challenges[dep]; !ok {
				errs = append(errs, errors.UnknownReferenceError(name, dep))
			}
		}
	}
	return errs
}
