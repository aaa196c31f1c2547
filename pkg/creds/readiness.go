package creds

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// EnvironmentReport summarizes whether a provider can be deployed to from
// this machine.
type EnvironmentReport struct {
	Provider           string `json:"provider"`
	TerraformInstalled bool   `json:"terraform_installed"`
	TerraformVersion   string `json:"terraform_version,omitempty"`
	CredentialsError   error  `json:"-"`
	Ready              bool   `json:"ready"`
}

// ValidateEnvironment checks the terraform binary and the provider
// credentials in one pass.
func (m *Manager) ValidateEnvironment(ctx context.Context, provider string) EnvironmentReport {
	report := EnvironmentReport{Provider: provider}

	report.TerraformInstalled, report.TerraformVersion = terraformVersion(ctx)
	report.CredentialsError = m.Validate(ctx, provider)
	report.Ready = report.TerraformInstalled && report.CredentialsError == nil

	return report
}

// terraformVersion probes terraform, then opentofu.
func terraformVersion(ctx context.Context) (bool, string) {
	for _, binary := range []string{"terraform", "tofu"} {
		if version, ok := probeVersion(ctx, binary); ok {
			return true, version
		}
	}
	return false, ""
}

func probeVersion(ctx context.Context, binary string) (string, bool) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, cliProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "version")
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", false
	}

	line, _, _ := strings.Cut(stdout.String(), "\n")
	return strings.TrimSpace(line), true
}
