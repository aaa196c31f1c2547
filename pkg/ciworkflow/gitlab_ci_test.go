package ciworkflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitLabCI_Generate(t *testing.T) {
	w := testWorkflow(t)

	out, err := (&GitLabCIGenerator{}).Generate(w)
	require.NoError(t, err)
	yaml := string(out)

	assert.Contains(t, yaml, "stages:\n  - stage-0\n  - stage-1\n  - stage-2\n")
	assert.Contains(t, yaml, "vpc:\n  stage: stage-0\n")
	assert.Contains(t, yaml, "db:\n  stage: stage-1\n")
	assert.Contains(t, yaml, "web:\n  stage: stage-2\n")
	assert.Contains(t, yaml, "needs:\n    - vpc\n")
	assert.Contains(t, yaml, "- *install-ctfctl")
	assert.Contains(t, yaml, "ctfctl deploy db --manifest challenges.yaml")
}

func TestGitLabCI_GenerateTeardown(t *testing.T) {
	w := testWorkflow(t)

	out, err := (&GitLabCIGenerator{}).GenerateTeardown(w)
	require.NoError(t, err)
	yaml := string(out)

	assert.Contains(t, yaml, "destroy-challenges:\n  stage: stage-0\n")
	assert.Contains(t, yaml, "ctfctl destroy web")
}

func TestDeriveStages(t *testing.T) {
	jobs := []Job{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}
	assert.Equal(t, []string{"stage-0", "stage-1"}, deriveStages(jobs))
	assert.Nil(t, deriveStages(nil))
}

func TestAssignStages(t *testing.T) {
	jobs := []Job{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	}
	stages := deriveStages(jobs)

	assigned := assignStages(jobs, stages)
	assert.Equal(t, "stage-0", assigned["a"])
	assert.Equal(t, "stage-1", assigned["b"])
	assert.Equal(t, "stage-2", assigned["c"])
}
