// Package state provides persistence for challenge deployment records.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/ekocloudsec/ctfctl/pkg/state/backend"
	"github.com/ekocloudsec/ctfctl/pkg/state/types"
)

// Manager provides high-level operations over stored challenge records.
type Manager interface {
	// GetChallenge returns the stored record, or backend.ErrNotFound.
	GetChallenge(ctx context.Context, name string) (*types.ChallengeRecord, error)

	// SaveChallenge stores a record, stamping UpdatedAt.
	SaveChallenge(ctx context.Context, record *types.ChallengeRecord) error

	// DeleteChallenge removes everything stored for a challenge.
	DeleteChallenge(ctx context.Context, name string) error

	// ListChallenges returns the names of all stored challenges.
	ListChallenges(ctx context.Context) ([]string, error)

	// Lock takes the run-level lock.
	Lock(ctx context.Context, scope LockScope) (backend.Lock, error)

	// Backend exposes the underlying store.
	Backend() backend.Backend
}

// LockScope describes a lock request.
type LockScope struct {
	// Challenge limits the lock to one challenge. Empty locks the whole
	// deployment.
	Challenge string
	Operation string
	Who       string
}

type manager struct {
	backend backend.Backend
}

// NewManager creates a state manager over the given backend.
func NewManager(b backend.Backend) Manager {
	return &manager{backend: b}
}

// NewManagerFromConfig creates a state manager from backend configuration.
func NewManagerFromConfig(config backend.Config) (Manager, error) {
	b, err := backend.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return NewManager(b), nil
}

func (m *manager) Backend() backend.Backend {
	return m.backend
}

func (m *manager) GetChallenge(ctx context.Context, name string) (*types.ChallengeRecord, error) {
	return readJSON[types.ChallengeRecord](ctx, m.backend, challengePath(name))
}

func (m *manager) SaveChallenge(ctx context.Context, record *types.ChallengeRecord) error {
	record.UpdatedAt = time.Now().UTC()
	return writeJSON(ctx, m.backend, challengePath(record.Name), record)
}

func (m *manager) DeleteChallenge(ctx context.Context, name string) error {
	paths, err := m.backend.List(ctx, path.Join("challenges", name))
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := m.backend.Delete(ctx, p); err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

func (m *manager) ListChallenges(ctx context.Context) ([]string, error) {
	paths, err := m.backend.List(ctx, "challenges/")
	if err != nil {
		return nil, err
	}

	// Path format: challenges/<name>/challenge.state.json
	names := make(map[string]bool)
	for _, p := range paths {
		parts := splitPath(p)
		if len(parts) >= 2 {
			names[parts[1]] = true
		}
	}

	result := make([]string, 0, len(names))
	for name := range names {
		result = append(result, name)
	}
	return result, nil
}

func (m *manager) Lock(ctx context.Context, scope LockScope) (backend.Lock, error) {
	lockPath := "challenges"
	if scope.Challenge != "" {
		lockPath = path.Join(lockPath, scope.Challenge)
	}

	info := backend.LockInfo{
		Who:       scope.Who,
		Operation: scope.Operation,
	}
	return m.backend.Lock(ctx, lockPath, info)
}

func challengePath(name string) string {
	return path.Join("challenges", name, "challenge.state.json")
}

func splitPath(p string) []string {
	var parts []string
	for p != "" && p != "." && p != "/" {
		dir, file := path.Split(p)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		p = path.Clean(dir)
	}
	return parts
}

func readJSON[T any](ctx context.Context, b backend.Backend, p string) (*T, error) {
	reader, err := b.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var result T
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return &result, nil
}

func writeJSON(ctx context.Context, b backend.Backend, p string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return b.Write(ctx, p, bytes.NewReader(content))
}
