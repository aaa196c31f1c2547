// Package outputs provides the in-memory store of challenge outputs
// consumed by placeholder resolution during a run.
package outputs

import (
	"sort"
	"sync"
)

// Store holds outputs keyed by challenge id. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[string]map[string]interface{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]map[string]interface{})}
}

// Put records the outputs of a challenge, replacing any previous entry
// for that challenge in one step.
func (s *Store) Put(challenge string, outputs map[string]interface{}) {
	copied := make(map[string]interface{}, len(outputs))
	for k, v := range outputs {
		copied[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[challenge] = copied
}

// Get returns all outputs of a challenge. The second return value reports
// whether the challenge has an entry.
func (s *Store) Get(challenge string) (map[string]interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outs, ok := s.values[challenge]
	if !ok {
		return nil, false
	}
	copied := make(map[string]interface{}, len(outs))
	for k, v := range outs {
		copied[k] = v
	}
	return copied, true
}

// Lookup returns one output value. The second return value reports
// whether both the challenge and the named output exist.
func (s *Store) Lookup(challenge, output string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outs, ok := s.values[challenge]
	if !ok {
		return nil, false
	}
	v, ok := outs[output]
	return v, ok
}

// Challenges returns the ids with recorded outputs, in ascending order.
func (s *Store) Challenges() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.values))
	for id := range s.values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Delete removes a challenge's outputs.
func (s *Store) Delete(challenge string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, challenge)
}
