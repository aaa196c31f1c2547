// Package lifecycle tracks per-challenge state transitions during a run.
package lifecycle

import (
	"fmt"
	"sync"
)

// State is a challenge's position in its deployment lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateResolving  State = "resolving"
	StateApplying   State = "applying"
	StateDeployed   State = "deployed"
	StateDestroying State = "destroying"
	StateDestroyed  State = "destroyed"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateDestroyed, StateFailed, StateSkipped:
		return true
	}
	return false
}

// allowed maps each state to the states it may move to.
var allowed = map[State][]State{
	StatePending:    {StateResolving, StateSkipped, StateDestroying},
	StateResolving:  {StateApplying, StateFailed, StateSkipped},
	StateApplying:   {StateDeployed, StateFailed},
	StateDeployed:   {StateDestroying, StateSkipped},
	StateDestroying: {StateDestroyed, StateFailed},
}

// Tracker records the state of every challenge in a run. Safe for
// concurrent use by workers.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]State
	errs   map[string]error
}

// NewTracker creates a tracker with every challenge in StatePending.
func NewTracker(challenges []string) *Tracker {
	states := make(map[string]State, len(challenges))
	for _, c := range challenges {
		states[c] = StatePending
	}
	return &Tracker{
		states: states,
		errs:   make(map[string]error),
	}
}

// State returns the current state of a challenge. Unknown challenges
// report StatePending.
func (t *Tracker) State(challenge string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[challenge]; ok {
		return s
	}
	return StatePending
}

// Err returns the error recorded for a failed or skipped challenge.
func (t *Tracker) Err(challenge string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errs[challenge]
}

// Transition moves a challenge to the next state, rejecting moves the
// lifecycle does not allow.
func (t *Tracker) Transition(challenge string, next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transition(challenge, next, nil)
}

// Fail moves a challenge to StateFailed, retaining the cause.
func (t *Tracker) Fail(challenge string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transition(challenge, StateFailed, cause)
}

// Skip moves a challenge to StateSkipped, retaining the reason.
func (t *Tracker) Skip(challenge string, reason error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transition(challenge, StateSkipped, reason)
}

func (t *Tracker) transition(challenge string, next State, cause error) error {
	current, ok := t.states[challenge]
	if !ok {
		current = StatePending
	}

	for _, s := range allowed[current] {
		if s == next {
			t.states[challenge] = next
			if cause != nil {
				t.errs[challenge] = cause
			}
			return nil
		}
	}
	return fmt.Errorf("invalid transition for %s: %s -> %s", challenge, current, next)
}

// Snapshot returns a copy of every challenge's current state.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]State, len(t.states))
	for c, s := range t.states {
		out[c] = s
	}
	return out
}

// CountByState tallies challenges per state.
func (t *Tracker) CountByState() map[State]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[State]int)
	for _, s := range t.states {
		out[s]++
	}
	return out
}
