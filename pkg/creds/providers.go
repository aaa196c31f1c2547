package creds

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ekocloudsec/ctfctl/pkg/errors"
)

// cliProbeTimeout bounds az/gcloud invocations during detection.
const cliProbeTimeout = 10 * time.Second

// AWSCredentials is the resolved AWS configuration for a run.
type AWSCredentials struct {
	Profile         string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// AzureCredentials is the resolved Azure configuration for a run.
type AzureCredentials struct {
	SubscriptionID string
	TenantID       string
	ClientID       string
	ClientSecret   string
	Location       string
}

// GCPCredentials is the resolved GCP configuration for a run.
type GCPCredentials struct {
	ProjectID       string
	Region          string
	UserEmail       string
	CredentialsFile string
}

// AWS resolves AWS credentials. Static keys come only from the
// environment; profile and region prefer the credentials file.
func (m *Manager) AWS() AWSCredentials {
	return AWSCredentials{
		Profile:         firstOf(m.config.AWS.Profile, m.envOr("AWS_PROFILE", "default")),
		Region:          firstOf(m.config.AWS.Region, m.envOr("AWS_DEFAULT_REGION", "us-east-1")),
		AccessKeyID:     m.env("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: m.env("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    m.env("AWS_SESSION_TOKEN"),
	}
}

// Azure resolves Azure credentials. When the subscription or tenant is
// missing it falls back to the local Azure CLI session.
func (m *Manager) Azure(ctx context.Context) AzureCredentials {
	creds := AzureCredentials{
		SubscriptionID: firstOf(m.config.Azure.SubscriptionID, m.env("AZURE_SUBSCRIPTION_ID")),
		TenantID:       firstOf(m.config.Azure.TenantID, m.env("AZURE_TENANT_ID")),
		ClientID:       firstOf(m.config.Azure.ClientID, m.env("AZURE_CLIENT_ID")),
		ClientSecret:   firstOf(m.config.Azure.ClientSecret, m.env("AZURE_CLIENT_SECRET")),
		Location:       firstOf(m.config.Azure.Location, "East US"),
	}

	if creds.SubscriptionID == "" || creds.TenantID == "" {
		if account, err := m.azureProbe(ctx); err == nil {
			if creds.SubscriptionID == "" {
				creds.SubscriptionID = account.ID
			}
			if creds.TenantID == "" {
				creds.TenantID = account.TenantID
			}
		}
	}
	return creds
}

// GCP resolves GCP credentials, falling back to the gcloud CLI for the
// project and account.
func (m *Manager) GCP(ctx context.Context) GCPCredentials {
	creds := GCPCredentials{
		ProjectID:       firstOf(m.config.GCP.ProjectID, m.env("GCP_PROJECT_ID")),
		Region:          firstOf(m.config.GCP.Region, m.envOr("GCP_REGION", "us-central1")),
		UserEmail:       firstOf(m.config.GCP.UserEmail, m.env("GCP_USER_EMAIL")),
		CredentialsFile: firstOf(m.config.GCP.CredentialsFile, m.env("GOOGLE_APPLICATION_CREDENTIALS")),
	}

	if creds.ProjectID == "" {
		creds.ProjectID = m.gcloudProbe(ctx, "project")
	}
	if creds.UserEmail == "" {
		creds.UserEmail = m.gcloudProbe(ctx, "account")
	}
	return creds
}

// Environment assembles the provider environment variables passed to
// terraform for a challenge of the given provider.
func (m *Manager) Environment(ctx context.Context, provider string) (map[string]string, error) {
	env := map[string]string{}

	switch provider {
	case "aws":
		aws := m.AWS()
		setIfPresent(env, "AWS_PROFILE", aws.Profile)
		setIfPresent(env, "AWS_DEFAULT_REGION", aws.Region)
		setIfPresent(env, "AWS_ACCESS_KEY_ID", aws.AccessKeyID)
		setIfPresent(env, "AWS_SECRET_ACCESS_KEY", aws.SecretAccessKey)
		setIfPresent(env, "AWS_SESSION_TOKEN", aws.SessionToken)
	case "azure":
		azure := m.Azure(ctx)
		setIfPresent(env, "AZURE_SUBSCRIPTION_ID", azure.SubscriptionID)
		setIfPresent(env, "AZURE_TENANT_ID", azure.TenantID)
		setIfPresent(env, "AZURE_CLIENT_ID", azure.ClientID)
		setIfPresent(env, "AZURE_CLIENT_SECRET", azure.ClientSecret)
		// The azurerm terraform provider reads ARM_ prefixed variables.
		setIfPresent(env, "ARM_SUBSCRIPTION_ID", azure.SubscriptionID)
		setIfPresent(env, "ARM_TENANT_ID", azure.TenantID)
		setIfPresent(env, "ARM_CLIENT_ID", azure.ClientID)
		setIfPresent(env, "ARM_CLIENT_SECRET", azure.ClientSecret)
	case "gcp":
		gcp := m.GCP(ctx)
		setIfPresent(env, "GCP_PROJECT_ID", gcp.ProjectID)
		setIfPresent(env, "GCP_REGION", gcp.Region)
		setIfPresent(env, "GCP_USER_EMAIL", gcp.UserEmail)
		setIfPresent(env, "GOOGLE_APPLICATION_CREDENTIALS", gcp.CredentialsFile)
	default:
		return nil, errors.ValidationError("unsupported provider: "+provider, map[string]interface{}{
			"provider": provider,
		})
	}

	return env, nil
}

// Validate checks that the provider has enough credentials configured to
// run terraform. For AWS it also probes the SDK's default credential
// chain so instance roles and SSO sessions count.
func (m *Manager) Validate(ctx context.Context, provider string) error {
	var missing []string

	switch provider {
	case "aws":
		aws := m.AWS()
		if aws.AccessKeyID == "" || aws.SecretAccessKey == "" {
			if !m.chainProbe(ctx, aws) {
				missing = append(missing, "AWS_PROFILE or (AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY)")
			}
		}
	case "azure":
		azure := m.Azure(ctx)
		if azure.SubscriptionID == "" {
			missing = append(missing, "AZURE_SUBSCRIPTION_ID")
		}
		if azure.TenantID == "" {
			missing = append(missing, "AZURE_TENANT_ID")
		}
	case "gcp":
		if m.GCP(ctx).ProjectID == "" {
			missing = append(missing, "GCP_PROJECT_ID")
		}
	default:
		return errors.ValidationError("unsupported provider: "+provider, map[string]interface{}{
			"provider": provider,
		})
	}

	if len(missing) > 0 {
		return errors.CredentialsError(provider, missing)
	}
	return nil
}

func (m *Manager) awsDefaultChainResolves(ctx context.Context, aws AWSCredentials) bool {
	ctx, cancel := context.WithTimeout(ctx, cliProbeTimeout)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithSharedConfigProfile(aws.Profile),
		awsconfig.WithRegion(aws.Region),
	)
	if err != nil {
		return false
	}
	_, err = cfg.Credentials.Retrieve(ctx)
	return err == nil
}

func setIfPresent(env map[string]string, key, value string) {
	if value != "" {
		env[key] = value
	}
}

type azureAccount struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
}

func azureCLIAccount(ctx context.Context) (azureAccount, error) {
	path, err := exec.LookPath("az")
	if err != nil {
		return azureAccount{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, cliProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "account", "show", "--output", "json")
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return azureAccount{}, err
	}

	var account azureAccount
	if err := json.Unmarshal(stdout.Bytes(), &account); err != nil {
		return azureAccount{}, err
	}
	return account, nil
}

func gcloudConfigValue(ctx context.Context, key string) string {
	path, err := exec.LookPath("gcloud")
	if err != nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, cliProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "config", "get-value", key)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return ""
	}

	value := strings.TrimSpace(stdout.String())
	if value == "(unset)" {
		return ""
	}
	return value
}
