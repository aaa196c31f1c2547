package challenge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekocloudsec/ctfctl/pkg/errors"
)

const sampleManifest = `
challenges:
  vpc-foundation:
    provider: aws
    difficulty: easy
    description: Shared network for downstream challenges
    directory: challenges/vpc-foundation
    backend_config: config/backends/vpc-foundation.hcl
    variables:
      cidr_block: 10.0.0.0/16
      az_count: 3
    outputs:
      - vpc_id
      - subnet_ids
    tags:
      - network
  s3-leaky-bucket:
    provider: aws
    difficulty: medium
    directory: challenges/s3-leaky-bucket
    backend_config: config/backends/s3-leaky-bucket.hcl
    depends_on:
      - vpc-foundation
    variables:
      vpc_id: ${vpc-foundation.vpc_id}
      bucket_prefix: leaky-${AWS_REGION}
    outputs:
      - bucket_url
    tags:
      - storage
      - web
`

func TestLoadFromBytes(t *testing.T) {
	manifest, err := LoadFromBytes([]byte(sampleManifest), "challenges.yaml")
	require.NoError(t, err)
	require.Len(t, manifest.Challenges, 2)

	vpc, err := manifest.Get("vpc-foundation")
	require.NoError(t, err)
	assert.Equal(t, "vpc-foundation", vpc.Name)
	assert.Equal(t, "aws", vpc.Provider)
	assert.Equal(t, "easy", vpc.Difficulty)
	assert.Equal(t, []string{"vpc_id", "subnet_ids"}, vpc.Outputs)
	assert.Empty(t, vpc.Dependencies())

	bucket, err := manifest.Get("s3-leaky-bucket")
	require.NoError(t, err)
	assert.True(t, bucket.ParsedVariables["vpc_id"].IsTemplate())
	assert.False(t, vpc.ParsedVariables["cidr_block"].IsTemplate())
}

func TestLoadFromBytes_ProviderDefaults(t *testing.T) {
	manifest, err := LoadFromBytes([]byte(`
providers:
  aws:
    variables:
      region: us-east-1
      environment: ctf
challenges:
  one:
    provider: aws
    directory: one
    backend_config: one/backend.hcl
    variables:
      environment: prod
  two:
    provider: azure
    directory: two
    backend_config: two/backend.hcl
`), "challenges.yaml")
	require.NoError(t, err)

	one, err := manifest.Get("one")
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", one.Variables["region"])
	assert.Equal(t, "prod", one.Variables["environment"], "challenge value wins over the provider default")
	assert.Equal(t, "us-east-1", one.ParsedVariables["region"].Raw)

	two, err := manifest.Get("two")
	require.NoError(t, err)
	assert.NotContains(t, two.Variables, "region", "defaults only apply to the matching provider")
}

func TestChallenge_Dependencies_MergesDeclaredAndDiscovered(t *testing.T) {
	manifest, err := LoadFromBytes([]byte(sampleManifest), "challenges.yaml")
	require.NoError(t, err)

	bucket := manifest.Challenges["s3-leaky-bucket"]
	// The declared dependency and the discovered placeholder reference
	// collapse into one edge.
	assert.Equal(t, []string{"vpc-foundation"}, bucket.Dependencies())
}

func TestLoadFromBytes_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode errors.ErrorCode
	}{
		{
			name:     "invalid yaml",
			input:    "challenges: [",
			wantCode: errors.ErrCodeParse,
		},
		{
			name:     "empty manifest",
			input:    "challenges: {}",
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "null challenge body",
			input:    "challenges:\n  broken:\n",
			wantCode: errors.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.input), "challenges.yaml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestLoad_ResolvesBasePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "challenges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o644))

	manifest, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, manifest.BasePath)

	vpc := manifest.Challenges["vpc-foundation"]
	assert.Equal(t, filepath.Join(dir, "challenges/vpc-foundation"), vpc.DirectoryPath(manifest.BasePath))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestManifest_Filter(t *testing.T) {
	manifest, err := LoadFromBytes([]byte(sampleManifest), "challenges.yaml")
	require.NoError(t, err)

	aws := manifest.Filter(ByProvider("aws"))
	assert.Len(t, aws, 2)

	medium := manifest.Filter(ByProvider("aws"), ByDifficulty("medium"))
	require.Len(t, medium, 1)
	assert.Equal(t, "s3-leaky-bucket", medium[0].Name)

	web := manifest.Filter(ByTag("web"))
	require.Len(t, web, 1)
	assert.Equal(t, "s3-leaky-bucket", web[0].Name)

	assert.Empty(t, manifest.Filter(ByProvider("gcp")))
}
