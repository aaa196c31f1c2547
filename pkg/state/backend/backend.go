// Package backend defines the pluggable storage interface deployment
// records are persisted through, plus the registry backends register
// with at init time.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrNotFound is returned when the requested path has no stored state.
var ErrNotFound = errors.New("state not found")

// ErrLocked is returned when a lock is already held.
var ErrLocked = errors.New("state is locked")

// Backend is a flat blob store addressed by slash-separated paths.
type Backend interface {
	// Type returns the backend identifier (e.g., "local", "s3")
	Type() string

	// Read returns the content at path, or ErrNotFound
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write stores content at path, replacing any existing content
	Write(ctx context.Context, path string, data io.Reader) error

	// Delete removes the content at path. Missing paths are not an error.
	Delete(ctx context.Context, path string) error

	// List returns all stored paths under the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether path has stored content
	Exists(ctx context.Context, path string) (bool, error)

	// Lock acquires an advisory lock covering path
	Lock(ctx context.Context, path string, info LockInfo) (Lock, error)
}

// Lock is a held advisory lock.
type Lock interface {
	// ID returns the unique lock id
	ID() string

	// Unlock releases the lock
	Unlock(ctx context.Context) error

	// Info returns the lock metadata
	Info() LockInfo
}

// LockInfo describes who holds a lock and why.
type LockInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Who       string    `json:"who"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
}

// LockError reports a failed lock acquisition with the holder's info.
type LockError struct {
	Info LockInfo
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("locked by %s since %s (operation: %s)",
		e.Info.Who, e.Info.Created.Format(time.RFC3339), e.Info.Operation)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// Factory creates a backend from its settings map.
type Factory func(config map[string]string) (Backend, error)

// Config selects and configures a backend.
type Config struct {
	// Type is the registered backend name
	Type string `yaml:"type" mapstructure:"type"`

	// Config holds backend-specific options (bucket, region, path, ...)
	Config map[string]string `yaml:"config" mapstructure:"config"`
}

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register adds a backend factory under the given name. Called from
// backend package init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Create instantiates the backend named by the config.
func Create(config Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := factories[config.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown state backend: %s", config.Type)
	}
	return factory(config.Config)
}

// Types returns the registered backend names.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
