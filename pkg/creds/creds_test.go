package creds

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekocloudsec/ctfctl/pkg/errors"
)

func newTestManager(cfg Config, env map[string]string) *Manager {
	m := NewManager(cfg)
	m.lookupEnv = func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
	m.chainProbe = func(context.Context, AWSCredentials) bool { return false }
	m.azureProbe = func(context.Context) (azureAccount, error) { return azureAccount{}, os.ErrNotExist }
	m.gcloudProbe = func(context.Context, string) string { return "" }
	return m
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.yaml")
	content := `
aws:
  profile: ctf-lab
  region: eu-west-1
azure:
  subscription_id: 11111111-2222-3333-4444-555555555555
  tenant_id: aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee
gcp:
  project_id: ctf-lab-project
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ctf-lab", m.config.AWS.Profile)
	assert.Equal(t, "eu-west-1", m.config.AWS.Region)
	assert.Equal(t, "ctf-lab-project", m.config.GCP.ProjectID)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, m.config)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aws: ["), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestAWS_Defaults(t *testing.T) {
	m := newTestManager(Config{}, nil)

	aws := m.AWS()
	assert.Equal(t, "default", aws.Profile)
	assert.Equal(t, "us-east-1", aws.Region)
	assert.Empty(t, aws.AccessKeyID)
}

func TestAWS_ConfigWinsOverEnv(t *testing.T) {
	m := newTestManager(
		Config{AWS: AWSConfig{Profile: "ctf-lab", Region: "eu-west-1"}},
		map[string]string{"AWS_PROFILE": "other", "AWS_DEFAULT_REGION": "us-west-2"},
	)

	aws := m.AWS()
	assert.Equal(t, "ctf-lab", aws.Profile)
	assert.Equal(t, "eu-west-1", aws.Region)
}

func TestAWS_StaticKeysFromEnv(t *testing.T) {
	m := newTestManager(Config{}, map[string]string{
		"AWS_ACCESS_KEY_ID":     "AKIATEST",
		"AWS_SECRET_ACCESS_KEY": "secret",
		"AWS_SESSION_TOKEN":     "token",
	})

	aws := m.AWS()
	assert.Equal(t, "AKIATEST", aws.AccessKeyID)
	assert.Equal(t, "secret", aws.SecretAccessKey)
	assert.Equal(t, "token", aws.SessionToken)
}

func TestAzure_FromEnv(t *testing.T) {
	m := newTestManager(Config{}, map[string]string{
		"AZURE_SUBSCRIPTION_ID": "sub-id",
		"AZURE_TENANT_ID":       "tenant-id",
		"AZURE_CLIENT_ID":       "client-id",
		"AZURE_CLIENT_SECRET":   "client-secret",
	})

	azure := m.Azure(context.Background())
	assert.Equal(t, "sub-id", azure.SubscriptionID)
	assert.Equal(t, "tenant-id", azure.TenantID)
	assert.Equal(t, "East US", azure.Location)
}

func TestAzure_CLIFallback(t *testing.T) {
	m := newTestManager(Config{}, nil)
	m.azureProbe = func(context.Context) (azureAccount, error) {
		return azureAccount{ID: "cli-sub", TenantID: "cli-tenant"}, nil
	}

	azure := m.Azure(context.Background())
	assert.Equal(t, "cli-sub", azure.SubscriptionID)
	assert.Equal(t, "cli-tenant", azure.TenantID)
}

func TestGCP_CLIFallback(t *testing.T) {
	m := newTestManager(Config{}, nil)
	m.gcloudProbe = func(_ context.Context, key string) string {
		if key == "project" {
			return "cli-project"
		}
		return "player@ctf.example.com"
	}

	gcp := m.GCP(context.Background())
	assert.Equal(t, "cli-project", gcp.ProjectID)
	assert.Equal(t, "player@ctf.example.com", gcp.UserEmail)
}

func TestGCP_DefaultRegion(t *testing.T) {
	m := newTestManager(Config{GCP: GCPConfig{ProjectID: "proj"}}, nil)

	gcp := m.GCP(context.Background())
	assert.Equal(t, "proj", gcp.ProjectID)
	assert.Equal(t, "us-central1", gcp.Region)
}

func TestEnvironment_AWS(t *testing.T) {
	m := newTestManager(
		Config{AWS: AWSConfig{Profile: "ctf-lab", Region: "eu-west-1"}},
		map[string]string{"AWS_ACCESS_KEY_ID": "AKIATEST", "AWS_SECRET_ACCESS_KEY": "secret"},
	)

	env, err := m.Environment(context.Background(), "aws")
	require.NoError(t, err)
	assert.Equal(t, "ctf-lab", env["AWS_PROFILE"])
	assert.Equal(t, "eu-west-1", env["AWS_DEFAULT_REGION"])
	assert.Equal(t, "AKIATEST", env["AWS_ACCESS_KEY_ID"])
	assert.NotContains(t, env, "AWS_SESSION_TOKEN")
}

func TestEnvironment_AzureSetsARMVariables(t *testing.T) {
	m := newTestManager(Config{Azure: AzureConfig{
		SubscriptionID: "sub-id",
		TenantID:       "tenant-id",
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
	}}, nil)

	env, err := m.Environment(context.Background(), "azure")
	require.NoError(t, err)
	assert.Equal(t, "sub-id", env["AZURE_SUBSCRIPTION_ID"])
	assert.Equal(t, "sub-id", env["ARM_SUBSCRIPTION_ID"])
	assert.Equal(t, "client-secret", env["ARM_CLIENT_SECRET"])
}

func TestEnvironment_GCP(t *testing.T) {
	m := newTestManager(Config{GCP: GCPConfig{
		ProjectID:       "proj",
		CredentialsFile: "/tmp/sa.json",
	}}, nil)

	env, err := m.Environment(context.Background(), "gcp")
	require.NoError(t, err)
	assert.Equal(t, "proj", env["GCP_PROJECT_ID"])
	assert.Equal(t, "/tmp/sa.json", env["GOOGLE_APPLICATION_CREDENTIALS"])
}

func TestEnvironment_UnsupportedProvider(t *testing.T) {
	m := newTestManager(Config{}, nil)

	_, err := m.Environment(context.Background(), "digitalocean")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestValidate_AWSStaticKeys(t *testing.T) {
	m := newTestManager(Config{}, map[string]string{
		"AWS_ACCESS_KEY_ID":     "AKIATEST",
		"AWS_SECRET_ACCESS_KEY": "secret",
	})

	assert.NoError(t, m.Validate(context.Background(), "aws"))
}

func TestValidate_AWSChainFallback(t *testing.T) {
	m := newTestManager(Config{}, nil)
	m.chainProbe = func(context.Context, AWSCredentials) bool { return true }

	assert.NoError(t, m.Validate(context.Background(), "aws"))
}

func TestValidate_AWSMissing(t *testing.T) {
	m := newTestManager(Config{}, nil)

	err := m.Validate(context.Background(), "aws")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCredentials))
}

func TestValidate_AzureMissingTenant(t *testing.T) {
	m := newTestManager(Config{Azure: AzureConfig{SubscriptionID: "sub-id"}}, nil)

	err := m.Validate(context.Background(), "azure")
	require.Error(t, err)
	var coded *errors.Error
	require.ErrorAs(t, err, &coded)
	assert.Contains(t, coded.Details["missing"], "AZURE_TENANT_ID")
}

func TestValidate_GCP(t *testing.T) {
	m := newTestManager(Config{GCP: GCPConfig{ProjectID: "proj"}}, nil)
	assert.NoError(t, m.Validate(context.Background(), "gcp"))

	m = newTestManager(Config{}, nil)
	assert.Error(t, m.Validate(context.Background(), "gcp"))
}

func TestValidateEnvironment(t *testing.T) {
	m := newTestManager(Config{GCP: GCPConfig{ProjectID: "proj"}}, nil)

	report := m.ValidateEnvironment(context.Background(), "gcp")
	assert.Equal(t, "gcp", report.Provider)
	assert.NoError(t, report.CredentialsError)
	assert.Equal(t, report.Ready, report.TerraformInstalled)
}