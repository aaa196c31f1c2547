package challenge

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/ekocloudsec/ctfctl/pkg/errors"
)

// BackendConfig holds the parsed attributes of a terraform backend-config
// file (the file passed to `terraform init -backend-config=...`). These
// files are attribute-only HCL: `bucket = "my-state"`, `key = "..."`.
type BackendConfig struct {
	Path       string
	Attributes map[string]string
}

// ParseBackendConfig reads and parses a backend-config file.
func ParseBackendConfig(path string) (*BackendConfig, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errors.ParseError(path, diags)
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, errors.ParseError(path, diags)
	}

	config := &BackendConfig{
		Path:       path,
		Attributes: make(map[string]string, len(attrs)),
	}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(&hcl.EvalContext{})
		if diags.HasErrors() {
			return nil, errors.ParseError(path, diags)
		}
		config.Attributes[name] = ctyValueToString(val)
	}
	return config, nil
}

// StateKey returns the backend's key attribute, the object path the
// terraform state is stored under. Empty when the backend does not use
// one.
func (b *BackendConfig) StateKey() string {
	return b.Attributes["key"]
}

func ctyValueToString(val cty.Value) string {
	if val.IsNull() {
		return ""
	}
	switch {
	case val.Type() == cty.String:
		return val.AsString()
	case val.Type() == cty.Number:
		return val.AsBigFloat().String()
	case val.Type() == cty.Bool:
		if val.True() {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val.GoString())
	}
}
