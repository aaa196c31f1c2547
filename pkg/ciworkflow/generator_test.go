package ciworkflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekocloudsec/ctfctl/pkg/challenge"
	"github.com/ekocloudsec/ctfctl/pkg/graph"
)

const workflowManifest = `
challenges:
  vpc:
    provider: aws
    directory: vpc
    backend_config: vpc/backend.hcl
    outputs: [vpc_id]
  db:
    provider: aws
    directory: db
    backend_config: db/backend.hcl
    variables:
      vpc_id: ${vpc.vpc_id}
      admin_password: ${DB_ADMIN_PASSWORD}
    outputs: [endpoint]
  web:
    provider: azure
    directory: web
    backend_config: web/backend.hcl
    variables:
      db_endpoint: ${db.endpoint}
`

func workflowFixture(t *testing.T) (*challenge.Manifest, *graph.Graph) {
	t.Helper()
	m, err := challenge.LoadFromBytes([]byte(workflowManifest), "challenges.yaml")
	require.NoError(t, err)
	g, err := graph.Build(m.Filter())
	require.NoError(t, err)
	return m, g
}

func TestBuildWorkflow_JobsInDependencyOrder(t *testing.T) {
	m, g := workflowFixture(t)

	w, err := BuildWorkflow(m, g, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, w.Jobs, 3)

	assert.Equal(t, "vpc", w.Jobs[0].Challenge)
	assert.Equal(t, "db", w.Jobs[1].Challenge)
	assert.Equal(t, "web", w.Jobs[2].Challenge)

	assert.Empty(t, w.Jobs[0].DependsOn)
	assert.Equal(t, []string{"vpc"}, w.Jobs[1].DependsOn)
	assert.Equal(t, []string{"db"}, w.Jobs[2].DependsOn)
}

func TestBuildWorkflow_DeployCommands(t *testing.T) {
	m, g := workflowFixture(t)

	w, err := BuildWorkflow(m, g, BuildOptions{ManifestPath: "ctf/challenges.yaml"})
	require.NoError(t, err)

	assert.Equal(t,
		"ctfctl deploy vpc --manifest ctf/challenges.yaml --auto-approve --skip-unchanged",
		w.Jobs[0].DeployCommand)
}

func TestBuildWorkflow_Defaults(t *testing.T) {
	m, g := workflowFixture(t)

	w, err := BuildWorkflow(m, g, BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Deploy challenges", w.Name)
	assert.Equal(t, "challenges.yaml", w.ManifestPath)
}

func TestBuildWorkflow_CollectsSecrets(t *testing.T) {
	m, g := workflowFixture(t)

	w, err := BuildWorkflow(m, g, BuildOptions{})
	require.NoError(t, err)

	assert.Contains(t, w.Secrets, "AWS_ACCESS_KEY_ID")
	assert.Contains(t, w.Secrets, "AWS_SECRET_ACCESS_KEY")
	assert.Contains(t, w.Secrets, "AZURE_CLIENT_SECRET")
	assert.Contains(t, w.Secrets, "DB_ADMIN_PASSWORD")
	assert.NotContains(t, w.Secrets, "GCP_PROJECT_ID")
	assert.IsIncreasing(t, w.Secrets)
}

func TestBuildWorkflow_Teardown(t *testing.T) {
	m, g := workflowFixture(t)

	w, err := BuildWorkflow(m, g, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, w.TeardownJobs, 1)

	steps := w.TeardownJobs[0].Steps
	require.Len(t, steps, 3)
	assert.Contains(t, steps[0].Run, "ctfctl destroy web")
	assert.Contains(t, steps[1].Run, "ctfctl destroy db")
	assert.Contains(t, steps[2].Run, "ctfctl destroy vpc")
}

func TestInstallCommand(t *testing.T) {
	assert.Equal(t,
		"go install github.com/ekocloudsec/ctfctl/cmd/ctfctl@latest",
		installCommand(""))
	assert.Equal(t,
		"go install github.com/ekocloudsec/ctfctl/cmd/ctfctl@latest",
		installCommand("latest"))
	assert.Equal(t,
		"go install github.com/ekocloudsec/ctfctl/cmd/ctfctl@v1.2.0",
		installCommand("v1.2.0"))
}

func TestComputeJobDepths(t *testing.T) {
	jobs := []Job{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"a"}},
		{ID: "d", DependsOn: []string{"b", "c"}},
	}

	depths := computeJobDepths(jobs)
	assert.Equal(t, 0, depths["a"])
	assert.Equal(t, 1, depths["b"])
	assert.Equal(t, 1, depths["c"])
	assert.Equal(t, 2, depths["d"])
}

func TestNewGenerator(t *testing.T) {
	for _, name := range ValidOutputTypes() {
		gen, err := NewGenerator(OutputType(name))
		require.NoError(t, err)
		assert.NotNil(t, gen)
	}

	_, err := NewGenerator("jenkins")
	assert.Error(t, err)
}
