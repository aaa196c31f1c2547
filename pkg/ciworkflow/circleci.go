package ciworkflow

import (
	"bytes"
	"fmt"
	"strings"
)

// CircleCIGenerator generates CircleCI pipeline YAML.
type CircleCIGenerator struct{}

// DefaultOutputPath returns the conventional path for the pipeline.
func (g *CircleCIGenerator) DefaultOutputPath() string {
	return ".circleci/config.yml"
}

// DefaultTeardownOutputPath returns the conventional path for teardown.
func (g *CircleCIGenerator) DefaultTeardownOutputPath() string {
	return ".circleci/teardown.yml"
}

// Generate produces the deploy pipeline YAML.
func (g *CircleCIGenerator) Generate(w Workflow) ([]byte, error) {
	var buf bytes.Buffer

	writeCircleCISetupComment(&buf, w)

	buf.WriteString("version: 2.1\n\n")
	writeCircleCIInstallCommand(&buf, w.InstallVersion)

	buf.WriteString("jobs:\n")
	for _, job := range w.Jobs {
		writeCircleCIJob(&buf, job)
	}

	buf.WriteString("workflows:\n")
	buf.WriteString(fmt.Sprintf("  %s:\n", sanitizeCircleCIID(w.Name)))
	buf.WriteString("    jobs:\n")
	writeCircleCIWorkflowJobs(&buf, w.Jobs)

	return buf.Bytes(), nil
}

// GenerateTeardown produces the teardown pipeline YAML.
func (g *CircleCIGenerator) GenerateTeardown(w Workflow) ([]byte, error) {
	if len(w.TeardownJobs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer

	buf.WriteString("version: 2.1\n\n")
	writeCircleCIInstallCommand(&buf, w.InstallVersion)

	buf.WriteString("jobs:\n")
	for _, job := range w.TeardownJobs {
		writeCircleCIJob(&buf, job)
	}

	buf.WriteString("workflows:\n")
	buf.WriteString("  teardown:\n")
	buf.WriteString("    jobs:\n")
	writeCircleCIWorkflowJobs(&buf, w.TeardownJobs)

	return buf.Bytes(), nil
}

func writeCircleCIInstallCommand(buf *bytes.Buffer, installVersion string) {
	buf.WriteString("commands:\n")
	buf.WriteString("  install-ctfctl:\n")
	buf.WriteString("    steps:\n")
	buf.WriteString("      - run:\n")
	buf.WriteString("          name: Install ctfctl\n")
	buf.WriteString(fmt.Sprintf("          command: %s\n", installCommand(installVersion)))
	buf.WriteString("\n")
}

func writeCircleCIWorkflowJobs(buf *bytes.Buffer, jobs []Job) {
	for _, job := range jobs {
		if len(job.DependsOn) == 0 {
			buf.WriteString(fmt.Sprintf("      - %s\n", job.ID))
			continue
		}
		buf.WriteString(fmt.Sprintf("      - %s:\n", job.ID))
		buf.WriteString("          requires:\n")
		for _, dep := range job.DependsOn {
			buf.WriteString(fmt.Sprintf("            - %s\n", dep))
		}
	}
}

func writeCircleCIJob(buf *bytes.Buffer, job Job) {
	buf.WriteString(fmt.Sprintf("  %s:\n", job.ID))
	buf.WriteString("    docker:\n")
	buf.WriteString("      - image: cimg/go:1.24\n")
	buf.WriteString("    steps:\n")
	buf.WriteString("      - checkout\n")
	buf.WriteString("      - install-ctfctl\n")

	if len(job.Steps) > 0 {
		for _, step := range job.Steps {
			buf.WriteString("      - run:\n")
			buf.WriteString(fmt.Sprintf("          name: %s\n", step.Name))
			buf.WriteString(fmt.Sprintf("          command: %s\n", step.Run))
		}
	} else if job.DeployCommand != "" {
		buf.WriteString("      - run:\n")
		buf.WriteString(fmt.Sprintf("          name: Deploy %s\n", job.Challenge))
		buf.WriteString(fmt.Sprintf("          command: >-\n            %s\n", job.DeployCommand))
	}

	buf.WriteString("\n")
}

func writeCircleCISetupComment(buf *bytes.Buffer, w Workflow) {
	if len(w.Secrets) == 0 {
		return
	}
	buf.WriteString("# Configure these in Project Settings > Environment Variables:\n")
	buf.WriteString(fmt.Sprintf("#   %s\n", strings.Join(w.Secrets, ", ")))
	buf.WriteString("\n")
}

// sanitizeCircleCIID makes a workflow name safe for YAML keys.
func sanitizeCircleCIID(name string) string {
	r := strings.NewReplacer(" ", "-", "/", "-", ".", "-")
	return strings.ToLower(r.Replace(name))
}
