// Package creds loads cloud provider credentials from a credentials file
// and the process environment, and assembles the environment variables
// handed to terraform runs.
package creds

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekocloudsec/ctfctl/pkg/errors"
)

// Config mirrors the credentials.yaml file. Every section is optional:
// anything not present falls back to environment variables or ambient
// cloud SDK configuration.
type Config struct {
	AWS   AWSConfig   `yaml:"aws"`
	Azure AzureConfig `yaml:"azure"`
	GCP   GCPConfig   `yaml:"gcp"`
}

type AWSConfig struct {
	Profile string `yaml:"profile"`
	Region  string `yaml:"region"`
}

type AzureConfig struct {
	SubscriptionID string `yaml:"subscription_id"`
	TenantID       string `yaml:"tenant_id"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	Location       string `yaml:"location"`
}

type GCPConfig struct {
	ProjectID       string `yaml:"project_id"`
	Region          string `yaml:"region"`
	UserEmail       string `yaml:"user_email"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Manager resolves credentials for a provider by overlaying the
// credentials file with the process environment.
type Manager struct {
	config Config

	// The probe funcs are swapped out in tests.
	lookupEnv   func(string) (string, bool)
	chainProbe  func(ctx context.Context, aws AWSCredentials) bool
	azureProbe  func(ctx context.Context) (azureAccount, error)
	gcloudProbe func(ctx context.Context, key string) string
}

// NewManager creates a Manager from an already parsed config.
func NewManager(cfg Config) *Manager {
	m := &Manager{config: cfg, lookupEnv: os.LookupEnv}
	m.chainProbe = m.awsDefaultChainResolves
	m.azureProbe = azureCLIAccount
	m.gcloudProbe = gcloudConfigValue
	return m
}

// Load reads a credentials file. A missing file is not an error: the
// manager falls back to environment variables and CLI detection.
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManager(Config{}), nil
		}
		return nil, errors.Wrap(errors.ErrCodeCredentials, "failed to read credentials file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.ParseError(path, err)
	}
	return NewManager(cfg), nil
}

func (m *Manager) env(name string) string {
	v, _ := m.lookupEnv(name)
	return v
}

func (m *Manager) envOr(name, fallback string) string {
	if v, ok := m.lookupEnv(name); ok && v != "" {
		return v
	}
	return fallback
}

// firstOf returns the first non-empty value.
func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
