package ciworkflow

import (
	"bytes"
	"fmt"
	"strings"
)

// GitLabCIGenerator generates GitLab CI pipeline YAML. GitLab has no
// job-level DAG by default, so jobs are spread over stages by their
// topological depth and wired with needs for early starts.
type GitLabCIGenerator struct{}

// DefaultOutputPath returns the conventional path for the pipeline.
func (g *GitLabCIGenerator) DefaultOutputPath() string {
	return ".gitlab-ci.yml"
}

// DefaultTeardownOutputPath returns the conventional path for the teardown pipeline.
func (g *GitLabCIGenerator) DefaultTeardownOutputPath() string {
	return ".gitlab-ci-teardown.yml"
}

// Generate produces the deploy pipeline YAML.
func (g *GitLabCIGenerator) Generate(w Workflow) ([]byte, error) {
	var buf bytes.Buffer

	writeGitLabSetupComment(&buf, w)

	stages := deriveStages(w.Jobs)
	buf.WriteString("stages:\n")
	for _, stage := range stages {
		buf.WriteString(fmt.Sprintf("  - %s\n", stage))
	}
	buf.WriteString("\n")

	buf.WriteString(".install-ctfctl: &install-ctfctl\n")
	buf.WriteString(fmt.Sprintf("  - %s\n", installCommand(w.InstallVersion)))
	buf.WriteString("\n")

	stageMap := assignStages(w.Jobs, stages)
	for _, job := range w.Jobs {
		writeGitLabJob(&buf, job, stageMap[job.ID])
	}

	return buf.Bytes(), nil
}

// GenerateTeardown produces the teardown pipeline YAML.
func (g *GitLabCIGenerator) GenerateTeardown(w Workflow) ([]byte, error) {
	if len(w.TeardownJobs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer

	stages := deriveStages(w.TeardownJobs)
	buf.WriteString("stages:\n")
	for _, stage := range stages {
		buf.WriteString(fmt.Sprintf("  - %s\n", stage))
	}
	buf.WriteString("\n")

	buf.WriteString(".install-ctfctl: &install-ctfctl\n")
	buf.WriteString(fmt.Sprintf("  - %s\n", installCommand(w.InstallVersion)))
	buf.WriteString("\n")

	stageMap := assignStages(w.TeardownJobs, stages)
	for _, job := range w.TeardownJobs {
		writeGitLabJob(&buf, job, stageMap[job.ID])
	}

	return buf.Bytes(), nil
}

func writeGitLabJob(buf *bytes.Buffer, job Job, stage string) {
	buf.WriteString(fmt.Sprintf("%s:\n", job.ID))
	buf.WriteString(fmt.Sprintf("  stage: %s\n", stage))

	if len(job.DependsOn) > 0 {
		buf.WriteString("  needs:\n")
		for _, dep := range job.DependsOn {
			buf.WriteString(fmt.Sprintf("    - %s\n", dep))
		}
	}

	buf.WriteString("  image: golang:1.24\n")
	buf.WriteString("  script:\n")
	buf.WriteString("    - *install-ctfctl\n")

	if len(job.Steps) > 0 {
		for _, step := range job.Steps {
			buf.WriteString(fmt.Sprintf("    - %s\n", step.Run))
		}
	} else if job.DeployCommand != "" {
		buf.WriteString(fmt.Sprintf("    - >-\n      %s\n", job.DeployCommand))
	}

	buf.WriteString("\n")
}

func writeGitLabSetupComment(buf *bytes.Buffer, w Workflow) {
	if len(w.Secrets) == 0 {
		return
	}
	buf.WriteString("# Configure these in Settings > CI/CD > Variables (masked):\n")
	buf.WriteString(fmt.Sprintf("#   %s\n", strings.Join(w.Secrets, ", ")))
	buf.WriteString("\n")
}

// deriveStages creates one stage per level of the job DAG.
func deriveStages(jobs []Job) []string {
	if len(jobs) == 0 {
		return nil
	}

	depths := computeJobDepths(jobs)
	maxDepth := 0
	for _, d := range depths {
		if d > maxDepth {
			maxDepth = d
		}
	}

	stages := make([]string, maxDepth+1)
	for i := range stages {
		stages[i] = fmt.Sprintf("stage-%d", i)
	}
	return stages
}

// assignStages maps job IDs to stage names by topological depth.
func assignStages(jobs []Job, stages []string) map[string]string {
	depths := computeJobDepths(jobs)
	result := make(map[string]string, len(jobs))
	for _, job := range jobs {
		d := depths[job.ID]
		if d >= len(stages) {
			d = len(stages) - 1
		}
		result[job.ID] = stages[d]
	}
	return result
}
