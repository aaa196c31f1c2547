package ciworkflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircleCI_Generate(t *testing.T) {
	w := testWorkflow(t)

	out, err := (&CircleCIGenerator{}).Generate(w)
	require.NoError(t, err)
	yaml := string(out)

	assert.Contains(t, yaml, "version: 2.1")
	assert.Contains(t, yaml, "install-ctfctl:")
	assert.Contains(t, yaml, "  deploy-challenges:\n    jobs:\n")
	assert.Contains(t, yaml, "      - vpc\n")
	assert.Contains(t, yaml, "      - db:\n          requires:\n            - vpc\n")
	assert.Contains(t, yaml, "image: cimg/go:1.24")
}

func TestCircleCI_GenerateTeardown(t *testing.T) {
	w := testWorkflow(t)

	out, err := (&CircleCIGenerator{}).GenerateTeardown(w)
	require.NoError(t, err)
	yaml := string(out)

	assert.Contains(t, yaml, "  teardown:\n    jobs:\n      - destroy-challenges\n")
	assert.Contains(t, yaml, "name: Destroy db")
}

func TestSanitizeCircleCIID(t *testing.T) {
	assert.Equal(t, "deploy-challenges", sanitizeCircleCIID("Deploy challenges"))
	assert.Equal(t, "a-b-c", sanitizeCircleCIID("a/b.c"))
}
