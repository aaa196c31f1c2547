// Package iac provides the Infrastructure-as-Code plugin framework.
package iac

import (
	"context"
	"io"
)

// Plugin defines the interface for IaC framework plugins.
type Plugin interface {
	// Name returns the plugin identifier (e.g., "terraform", "opentofu")
	Name() string

	// Preview generates a preview of changes without applying
	Preview(ctx context.Context, opts RunOptions) (*PreviewResult, error)

	// Apply applies the challenge's configuration and returns outputs
	Apply(ctx context.Context, opts RunOptions) (*ApplyResult, error)

	// Destroy destroys resources created by the challenge
	Destroy(ctx context.Context, opts RunOptions) error

	// Outputs reads the current outputs without applying
	Outputs(ctx context.Context, opts RunOptions) (map[string]OutputValue, error)
}

// RunOptions configures a plugin execution.
type RunOptions struct {
	// WorkDir is the directory holding the challenge's configuration
	WorkDir string

	// BackendConfigPath is the backend-config file passed at init time.
	// Empty means the configuration's own backend settings.
	BackendConfigPath string

	// Inputs are the resolved variable values passed to the run
	Inputs map[string]interface{}

	// Environment contains extra environment variables for the execution
	Environment map[string]string

	// Stdout/Stderr for command output
	Stdout io.Writer
	Stderr io.Writer

	// OnProgress reports sub-status updates during long-running
	// operations. May be nil.
	OnProgress func(message string)
}

// PreviewResult contains the result of a preview operation.
type PreviewResult struct {
	Changes []ResourceChange
	Summary ChangeSummary
}

// ResourceChange describes a planned change to a resource.
type ResourceChange struct {
	ResourceID   string
	ResourceType string
	Action       ChangeAction
}

// ChangeAction indicates the type of change.
type ChangeAction string

const (
	ActionCreate  ChangeAction = "create"
	ActionUpdate  ChangeAction = "update"
	ActionDelete  ChangeAction = "delete"
	ActionReplace ChangeAction = "replace"
	ActionNoop    ChangeAction = "noop"
)

// ChangeSummary summarizes planned changes.
type ChangeSummary struct {
	Create  int
	Update  int
	Delete  int
	Replace int
}

// ApplyResult contains the result of an apply operation.
type ApplyResult struct {
	Outputs map[string]OutputValue
}

// OutputValue represents a challenge output.
type OutputValue struct {
	Value     interface{}
	Sensitive bool
}

// Values flattens a plugin output map to plain values.
func Values(outputs map[string]OutputValue) map[string]interface{} {
	out := make(map[string]interface{}, len(outputs))
	for k, v := range outputs {
		out[k] = v.Value
	}
	return out
}
