package ciworkflow

import (
	"bytes"
	"fmt"
	"strings"
)

// GitHubActionsGenerator generates GitHub Actions workflow YAML.
type GitHubActionsGenerator struct{}

// DefaultOutputPath returns the conventional path for the deploy workflow.
func (g *GitHubActionsGenerator) DefaultOutputPath() string {
	return ".github/workflows/deploy.yml"
}

// DefaultTeardownOutputPath returns the conventional path for the teardown workflow.
func (g *GitHubActionsGenerator) DefaultTeardownOutputPath() string {
	return ".github/workflows/teardown.yml"
}

// Generate produces the deploy workflow YAML.
func (g *GitHubActionsGenerator) Generate(w Workflow) ([]byte, error) {
	var buf bytes.Buffer

	writeGitHubSetupComment(&buf, w)

	buf.WriteString(fmt.Sprintf("name: %s\n", w.Name))
	buf.WriteString("on:\n")
	buf.WriteString("  push:\n")
	buf.WriteString("    branches: [main]\n")
	buf.WriteString("  workflow_dispatch:\n")
	buf.WriteString("\n")

	writeGitHubEnv(&buf, w.Secrets)

	buf.WriteString("jobs:\n")
	for _, job := range w.Jobs {
		writeGitHubJob(&buf, job, w.InstallVersion)
	}

	return buf.Bytes(), nil
}

// GenerateTeardown produces the teardown workflow YAML. Teardown only
// runs when triggered by hand.
func (g *GitHubActionsGenerator) GenerateTeardown(w Workflow) ([]byte, error) {
	if len(w.TeardownJobs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer

	teardownName := strings.Replace(w.Name, "Deploy", "Teardown", 1)
	if teardownName == w.Name {
		teardownName = w.Name + " - Teardown"
	}
	buf.WriteString(fmt.Sprintf("name: %s\n", teardownName))
	buf.WriteString("on:\n")
	buf.WriteString("  workflow_dispatch:\n")
	buf.WriteString("\n")

	writeGitHubEnv(&buf, w.Secrets)

	buf.WriteString("jobs:\n")
	for _, job := range w.TeardownJobs {
		writeGitHubJob(&buf, job, w.InstallVersion)
	}

	return buf.Bytes(), nil
}

func writeGitHubEnv(buf *bytes.Buffer, secrets []string) {
	if len(secrets) == 0 {
		return
	}
	buf.WriteString("env:\n")
	for _, s := range secrets {
		buf.WriteString(fmt.Sprintf("  %s: ${{ secrets.%s }}\n", s, s))
	}
	buf.WriteString("\n")
}

func writeGitHubJob(buf *bytes.Buffer, job Job, installVersion string) {
	buf.WriteString(fmt.Sprintf("  %s:\n", job.ID))
	buf.WriteString(fmt.Sprintf("    name: %s\n", job.Name))
	if len(job.DependsOn) > 0 {
		buf.WriteString(fmt.Sprintf("    needs: [%s]\n", strings.Join(job.DependsOn, ", ")))
	}
	buf.WriteString("    runs-on: ubuntu-latest\n")
	buf.WriteString("    steps:\n")
	buf.WriteString("      - uses: actions/checkout@v4\n")
	buf.WriteString("      - uses: actions/setup-go@v5\n")
	buf.WriteString("        with:\n")
	buf.WriteString("          go-version: stable\n")
	buf.WriteString("      - uses: hashicorp/setup-terraform@v3\n")
	buf.WriteString("      - name: Install ctfctl\n")
	buf.WriteString(fmt.Sprintf("        run: %s\n", installCommand(installVersion)))

	if len(job.Steps) > 0 {
		for _, step := range job.Steps {
			buf.WriteString(fmt.Sprintf("      - name: %s\n", step.Name))
			buf.WriteString(fmt.Sprintf("        run: %s\n", step.Run))
		}
	} else if job.DeployCommand != "" {
		buf.WriteString(fmt.Sprintf("      - name: Deploy %s\n", job.Challenge))
		buf.WriteString(fmt.Sprintf("        run: >-\n          %s\n", job.DeployCommand))
	}

	buf.WriteString("\n")
}

func writeGitHubSetupComment(buf *bytes.Buffer, w Workflow) {
	if len(w.Secrets) == 0 {
		return
	}
	buf.WriteString("# Configure these in Settings > Secrets and variables > Actions:\n")
	buf.WriteString(fmt.Sprintf("#   Secrets: %s\n", strings.Join(w.Secrets, ", ")))
	buf.WriteString("\n")
}
