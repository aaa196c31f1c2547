// Package types defines the persisted record shapes for challenge
// deployments.
package types

import "time"

// Status is the persisted deployment status of a challenge.
type Status string

const (
	StatusDeployed  Status = "deployed"
	StatusFailed    Status = "failed"
	StatusDestroyed Status = "destroyed"
)

// ChallengeRecord is the durable record of a challenge deployment. It
// carries the resolved-input hash used to skip unchanged challenges and
// the outputs recorded at deploy time.
type ChallengeRecord struct {
	// Name is the challenge id
	Name string `json:"name"`

	// Provider is the cloud provider the challenge deploys to
	Provider string `json:"provider"`

	// Status is the last recorded deployment status
	Status Status `json:"status"`

	// InputHash is the SHA-256 digest of the resolved inputs at the last
	// successful apply
	InputHash string `json:"input_hash,omitempty"`

	// Outputs are the values exported at the last successful apply
	Outputs map[string]interface{} `json:"outputs,omitempty"`

	// Error holds the failure message when Status is failed
	Error string `json:"error,omitempty"`

	// DeployedAt is when the challenge first reached deployed status
	DeployedAt time.Time `json:"deployed_at,omitempty"`

	// UpdatedAt is when this record last changed
	UpdatedAt time.Time `json:"updated_at"`
}

// Deployed reports whether the record describes a live deployment.
func (r *ChallengeRecord) Deployed() bool {
	return r.Status == StatusDeployed
}
