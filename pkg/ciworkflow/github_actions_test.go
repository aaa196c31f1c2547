package ciworkflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkflow(t *testing.T) Workflow {
	t.Helper()
	m, g := workflowFixture(t)
	w, err := BuildWorkflow(m, g, BuildOptions{})
	require.NoError(t, err)
	return w
}

func TestGitHubActions_Generate(t *testing.T) {
	w := testWorkflow(t)

	out, err := (&GitHubActionsGenerator{}).Generate(w)
	require.NoError(t, err)
	yaml := string(out)

	assert.Contains(t, yaml, "name: Deploy challenges\n")
	assert.Contains(t, yaml, "branches: [main]")
	assert.Contains(t, yaml, "  vpc:\n")
	assert.Contains(t, yaml, "needs: [vpc]")
	assert.Contains(t, yaml, "needs: [db]")
	assert.Contains(t, yaml, "AWS_SECRET_ACCESS_KEY: ${{ secrets.AWS_SECRET_ACCESS_KEY }}")
	assert.Contains(t, yaml, "uses: hashicorp/setup-terraform@v3")
	assert.Contains(t, yaml, "ctfctl deploy vpc --manifest challenges.yaml")

	// Setup comment names every secret once, up front.
	assert.True(t, strings.HasPrefix(yaml, "# Configure these in Settings"))
}

func TestGitHubActions_GenerateTeardown(t *testing.T) {
	w := testWorkflow(t)

	out, err := (&GitHubActionsGenerator{}).GenerateTeardown(w)
	require.NoError(t, err)
	yaml := string(out)

	assert.Contains(t, yaml, "name: Teardown challenges\n")
	assert.Contains(t, yaml, "workflow_dispatch:")
	assert.NotContains(t, yaml, "push:")
	assert.Contains(t, yaml, "ctfctl destroy web")

	// Destroys run in reverse dependency order.
	web := strings.Index(yaml, "ctfctl destroy web")
	vpc := strings.Index(yaml, "ctfctl destroy vpc")
	assert.Less(t, web, vpc)
}

func TestGitHubActions_GenerateTeardown_Empty(t *testing.T) {
	out, err := (&GitHubActionsGenerator{}).GenerateTeardown(Workflow{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGitHubActions_InstallVersion(t *testing.T) {
	w := testWorkflow(t)
	w.InstallVersion = "v0.3.1"

	out, err := (&GitHubActionsGenerator{}).Generate(w)
	require.NoError(t, err)
	assert.Contains(t, string(out), "cmd/ctfctl@v0.3.1")
}

func TestGitHubActions_DefaultPaths(t *testing.T) {
	g := &GitHubActionsGenerator{}
	assert.Equal(t, ".github/workflows/deploy.yml", g.DefaultOutputPath())
	assert.Equal(t, ".github/workflows/teardown.yml", g.DefaultTeardownOutputPath())
}
