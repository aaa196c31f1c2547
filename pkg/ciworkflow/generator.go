package ciworkflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekocloudsec/ctfctl/pkg/challenge"
	"github.com/ekocloudsec/ctfctl/pkg/graph"
)

// providerSecrets maps each cloud provider to the credential environment
// variables its CI jobs need.
var providerSecrets = map[string][]string{
	"aws":   {"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY"},
	"azure": {"AZURE_SUBSCRIPTION_ID", "AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET"},
	"gcp":   {"GCP_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS"},
}

// BuildOptions configures workflow construction.
type BuildOptions struct {
	// Name is the workflow display name. Defaults to "Deploy challenges".
	Name string

	// ManifestPath is passed to ctfctl via --manifest. Defaults to
	// challenges.yaml.
	ManifestPath string

	// InstallVersion pins the ctfctl version installed in CI jobs.
	InstallVersion string
}

// BuildWorkflow converts a challenge manifest and its dependency graph
// into a provider-neutral workflow: one deploy job per challenge wired
// to its dependencies, plus a single teardown job destroying everything
// in reverse order.
func BuildWorkflow(m *challenge.Manifest, g *graph.Graph, opts BuildOptions) (Workflow, error) {
	name := opts.Name
	if name == "" {
		name = "Deploy challenges"
	}
	manifestPath := opts.ManifestPath
	if manifestPath == "" {
		manifestPath = "challenges.yaml"
	}

	var jobs []Job
	for _, batch := range g.TopologicalBatches() {
		for _, id := range batch {
			c, err := m.Get(id)
			if err != nil {
				return Workflow{}, err
			}
			node := g.GetNode(id)

			dependsOn := make([]string, 0, len(node.DependsOn))
			for _, dep := range node.DependsOn {
				dependsOn = append(dependsOn, sanitizeJobID(dep))
			}
			sort.Strings(dependsOn)

			jobs = append(jobs, Job{
				ID:        sanitizeJobID(id),
				Name:      fmt.Sprintf("Deploy %s", id),
				Challenge: id,
				Provider:  c.Provider,
				DependsOn: dependsOn,
				DeployCommand: fmt.Sprintf(
					"ctfctl deploy %s --manifest %s --auto-approve --skip-unchanged",
					id, manifestPath),
			})
		}
	}

	return Workflow{
		Name:           name,
		ManifestPath:   manifestPath,
		Jobs:           jobs,
		TeardownJobs:   buildTeardownJobs(g, manifestPath),
		Secrets:        collectSecrets(m),
		InstallVersion: opts.InstallVersion,
	}, nil
}

// buildTeardownJobs creates a single job destroying challenges in
// reverse dependency order. CI teardown runs sequentially; parallel
// destroys of a shared cloud account are not worth the race.
func buildTeardownJobs(g *graph.Graph, manifestPath string) []Job {
	job := Job{
		ID:   "destroy-challenges",
		Name: "Destroy challenges",
	}
	for _, batch := range g.ReverseBatches() {
		for _, id := range batch {
			job.Steps = append(job.Steps, Step{
				Name: fmt.Sprintf("Destroy %s", id),
				Run: fmt.Sprintf("ctfctl destroy %s --manifest %s --auto-approve",
					id, manifestPath),
			})
		}
	}
	return []Job{job}
}

// collectSecrets gathers the environment variable names the pipeline
// needs: credentials for every provider the manifest uses, plus any
// ${ENV_VAR} placeholders in challenge variables.
func collectSecrets(m *challenge.Manifest) []string {
	seen := make(map[string]bool)
	for _, name := range m.Names() {
		c := m.Challenges[name]
		for _, secret := range providerSecrets[c.Provider] {
			seen[secret] = true
		}
		for _, value := range c.ParsedVariables {
			for _, seg := range value.Segments {
				if seg.IsEnv() {
					seen[seg.EnvVar] = true
				}
			}
		}
	}

	secrets := make([]string, 0, len(seen))
	for s := range seen {
		secrets = append(secrets, s)
	}
	sort.Strings(secrets)
	return secrets
}

// sanitizeJobID makes a challenge name safe for use as a pipeline key.
func sanitizeJobID(name string) string {
	r := strings.NewReplacer("/", "-", ".", "-", " ", "-")
	return r.Replace(name)
}

// installCommand returns the shell command that installs ctfctl in CI.
func installCommand(version string) string {
	if version == "" || version == "latest" {
		return "go install github.com/ekocloudsec/ctfctl/cmd/ctfctl@latest"
	}
	return fmt.Sprintf("go install github.com/ekocloudsec/ctfctl/cmd/ctfctl@%s", version)
}

// computeJobDepths returns the topological depth of each job.
func computeJobDepths(jobs []Job) map[string]int {
	depths := make(map[string]int, len(jobs))
	for _, job := range jobs {
		depths[job.ID] = 0
	}

	changed := true
	for changed {
		changed = false
		for _, job := range jobs {
			for _, dep := range job.DependsOn {
				if depDepth, ok := depths[dep]; ok {
					if depDepth+1 > depths[job.ID] {
						depths[job.ID] = depDepth + 1
						changed = true
					}
				}
			}
		}
	}
	return depths
}
