// Package terraform implements an IaC plugin driving the Terraform (or
// OpenTofu) CLI.
package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ekocloudsec/ctfctl/pkg/iac"
)

func init() {
	iac.Register("terraform", func() (iac.Plugin, error) {
		return NewPlugin("terraform")
	})
	iac.Register("opentofu", func() (iac.Plugin, error) {
		return NewPlugin("tofu")
	})
}

// Plugin implements the IaC plugin interface for Terraform/OpenTofu.
type Plugin struct {
	// binaryPath is the resolved path to the terraform/tofu binary
	binaryPath string
	// binaryName is "terraform" or "tofu"
	binaryName string
}

// NewPlugin creates a plugin instance, falling back to the other binary
// when the preferred one is not installed.
func NewPlugin(binaryName string) (*Plugin, error) {
	binaryPath, err := exec.LookPath(binaryName)
	if err != nil {
		alternate := "tofu"
		if binaryName == "tofu" {
			alternate = "terraform"
		}
		binaryPath, err = exec.LookPath(alternate)
		if err != nil {
			return nil, fmt.Errorf("neither terraform nor tofu binary found: %w", err)
		}
		binaryName = alternate
	}

	return &Plugin{
		binaryPath: binaryPath,
		binaryName: binaryName,
	}, nil
}

func (p *Plugin) Name() string {
	return "terraform"
}

// tfOutput matches one entry of `terraform output -json`.
type tfOutput struct {
	Value     interface{} `json:"value"`
	Type      interface{} `json:"type"`
	Sensitive bool        `json:"sensitive"`
}

func (p *Plugin) Apply(ctx context.Context, opts iac.RunOptions) (*iac.ApplyResult, error) {
	if err := p.writeTFVars(opts.WorkDir, opts.Inputs); err != nil {
		return nil, fmt.Errorf("failed to write tfvars: %w", err)
	}

	if err := p.init(ctx, opts); err != nil {
		return nil, fmt.Errorf("init failed: %w", err)
	}

	report(opts, "applying")
	args := []string{"apply", "-auto-approve", "-input=false"}
	args = p.appendVarFile(args, opts.WorkDir)

	output, err := p.run(ctx, opts, args)
	if err != nil {
		return nil, fmt.Errorf("apply failed: %w\nOutput: %s", err, output)
	}

	outputs, err := p.Outputs(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read outputs: %w", err)
	}

	return &iac.ApplyResult{Outputs: outputs}, nil
}

func (p *Plugin) Destroy(ctx context.Context, opts iac.RunOptions) error {
	if err := p.writeTFVars(opts.WorkDir, opts.Inputs); err != nil {
		return fmt.Errorf("failed to write tfvars: %w", err)
	}

	if err := p.init(ctx, opts); err != nil {
		return fmt.Errorf("init failed: %w", err)
	}

	report(opts, "destroying")
	args := []string{"destroy", "-auto-approve", "-input=false"}
	args = p.appendVarFile(args, opts.WorkDir)

	output, err := p.run(ctx, opts, args)
	if err != nil {
		return fmt.Errorf("destroy failed: %w\nOutput: %s", err, output)
	}
	return nil
}

func (p *Plugin) Preview(ctx context.Context, opts iac.RunOptions) (*iac.PreviewResult, error) {
	if err := p.writeTFVars(opts.WorkDir, opts.Inputs); err != nil {
		return nil, fmt.Errorf("failed to write tfvars: %w", err)
	}

	if err := p.init(ctx, opts); err != nil {
		return nil, fmt.Errorf("init failed: %w", err)
	}

	report(opts, "planning")
	args := []string{"plan", "-json", "-input=false"}
	args = p.appendVarFile(args, opts.WorkDir)

	output, err := p.run(ctx, opts, args)
	if err != nil {
		return nil, fmt.Errorf("plan failed: %w", err)
	}

	return parsePlanOutput(output), nil
}

// Outputs reads current outputs via `output -json`. Configurations
// without outputs return an empty map.
func (p *Plugin) Outputs(ctx context.Context, opts iac.RunOptions) (map[string]iac.OutputValue, error) {
	output, err := p.run(ctx, opts, []string{"output", "-json"})
	if err != nil {
		return map[string]iac.OutputValue{}, nil
	}

	var tfOutputs map[string]tfOutput
	if err := json.Unmarshal([]byte(output), &tfOutputs); err != nil {
		return nil, fmt.Errorf("failed to parse outputs: %w", err)
	}

	outputs := make(map[string]iac.OutputValue, len(tfOutputs))
	for k, v := range tfOutputs {
		outputs[k] = iac.OutputValue{
			Value:     v.Value,
			Sensitive: v.Sensitive,
		}
	}
	return outputs, nil
}

func (p *Plugin) init(ctx context.Context, opts iac.RunOptions) error {
	// Re-init when the backend has not been set up for this directory yet.
	if _, err := os.Stat(filepath.Join(opts.WorkDir, ".terraform")); err == nil {
		return nil
	}

	report(opts, "initializing")
	args := []string{"init", "-input=false"}
	if opts.BackendConfigPath != "" {
		args = append(args, fmt.Sprintf("-backend-config=%s", opts.BackendConfigPath))
	}
	_, err := p.run(ctx, opts, args)
	return err
}

func (p *Plugin) writeTFVars(workDir string, inputs map[string]interface{}) error {
	if len(inputs) == 0 {
		return nil
	}

	data, err := json.MarshalIndent(inputs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workDir, "terraform.tfvars.json"), data, 0644)
}

func (p *Plugin) appendVarFile(args []string, workDir string) []string {
	if _, err := os.Stat(filepath.Join(workDir, "terraform.tfvars.json")); err == nil {
		args = append(args, "-var-file=terraform.tfvars.json")
	}
	return args
}

func parsePlanOutput(output string) *iac.PreviewResult {
	result := &iac.PreviewResult{Changes: []iac.ResourceChange{}}

	// terraform plan -json emits line-delimited JSON
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}

		var msg struct {
			Change *struct {
				Resource struct {
					Addr string `json:"addr"`
					Type string `json:"resource_type"`
				} `json:"resource"`
				Action string `json:"action"`
			} `json:"change"`
		}
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Change == nil {
			continue
		}

		action := iac.ChangeAction(msg.Change.Action)
		switch action {
		case iac.ActionCreate:
			result.Summary.Create++
		case iac.ActionUpdate:
			result.Summary.Update++
		case iac.ActionDelete:
			result.Summary.Delete++
		case iac.ActionReplace:
			result.Summary.Replace++
		default:
			continue
		}

		result.Changes = append(result.Changes, iac.ResourceChange{
			ResourceID:   msg.Change.Resource.Addr,
			ResourceType: msg.Change.Resource.Type,
			Action:       action,
		})
	}

	return result
}

func (p *Plugin) run(ctx context.Context, opts iac.RunOptions, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binaryPath, args...)
	cmd.Dir = opts.WorkDir

	cmd.Env = os.Environ()
	for k, v := range opts.Environment {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	// Disable interactive prompts
	cmd.Env = append(cmd.Env, "TF_INPUT=0", "TF_IN_AUTOMATION=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if opts.Stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdout, opts.Stdout)
	}
	if opts.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, opts.Stderr)
	}

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

func report(opts iac.RunOptions, message string) {
	if opts.OnProgress != nil {
		opts.OnProgress(message)
	}
}

// Ensure we implement the Plugin interface
var _ iac.Plugin = (*Plugin)(nil)
