// Package ciworkflow generates CI pipeline files that deploy challenges
// in dependency order. It supports GitHub Actions, GitLab CI and
// CircleCI: each challenge becomes one CI job wired to its dependencies,
// so independent challenges deploy in parallel.
package ciworkflow

import "fmt"

// OutputType identifies a CI provider.
type OutputType string

const (
	TypeGitHubActions OutputType = "github-actions"
	TypeGitLabCI      OutputType = "gitlab-ci"
	TypeCircleCI      OutputType = "circleci"
)

// ValidOutputTypes returns all supported CI provider values.
func ValidOutputTypes() []string {
	return []string{
		string(TypeGitHubActions),
		string(TypeGitLabCI),
		string(TypeCircleCI),
	}
}

// Workflow is the provider-neutral representation of a pipeline. CI
// generators consume it to produce provider-specific YAML.
type Workflow struct {
	// Name is the workflow display name.
	Name string

	// ManifestPath is the challenges.yaml path baked into commands.
	ManifestPath string

	// Jobs is the ordered list of deploy jobs.
	Jobs []Job

	// TeardownJobs holds the jobs of the teardown pipeline.
	TeardownJobs []Job

	// Secrets are environment variable names the jobs need: provider
	// credentials plus any ${ENV_VAR} placeholders used by challenge
	// variables. Generators map them to CI-native secrets.
	Secrets []string

	// InstallVersion pins the ctfctl version installed in CI jobs.
	// Empty means latest.
	InstallVersion string
}

// Job is a single CI job.
type Job struct {
	// ID is the job key in the pipeline file.
	ID string

	// Name is the human-readable job name.
	Name string

	// Challenge is the challenge this job deploys. Empty for jobs with
	// explicit Steps.
	Challenge string

	// Provider is the challenge's cloud provider.
	Provider string

	// DependsOn lists job IDs that must finish first.
	DependsOn []string

	// Steps holds explicit commands for jobs that run more than one
	// deploy or destroy.
	Steps []Step

	// DeployCommand is the ctfctl invocation for this job. Empty when
	// Steps is set.
	DeployCommand string
}

// Step is one command within a job.
type Step struct {
	Name string
	Run  string
}

// Generator is implemented per CI provider.
type Generator interface {
	// Generate produces the deploy pipeline file content.
	Generate(w Workflow) ([]byte, error)

	// GenerateTeardown produces the teardown pipeline file content.
	GenerateTeardown(w Workflow) ([]byte, error)

	// DefaultOutputPath returns the conventional pipeline path.
	DefaultOutputPath() string

	// DefaultTeardownOutputPath returns the conventional teardown path.
	DefaultTeardownOutputPath() string
}

// NewGenerator returns the generator for a CI provider.
func NewGenerator(t OutputType) (Generator, error) {
	switch t {
	case TypeGitHubActions:
		return &GitHubActionsGenerator{}, nil
	case TypeGitLabCI:
		return &GitLabCIGenerator{}, nil
	case TypeCircleCI:
		return &CircleCIGenerator{}, nil
	default:
		return nil, fmt.Errorf("unsupported CI provider %q (expected one of %v)", t, ValidOutputTypes())
	}
}
