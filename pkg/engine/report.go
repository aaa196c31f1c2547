package engine

import (
	"time"

	"github.com/ekocloudsec/ctfctl/pkg/engine/lifecycle"
)

// EventType identifies a progress event emitted during a run.
type EventType string

const (
	EventResolving  EventType = "resolving"
	EventApplying   EventType = "applying"
	EventDeployed   EventType = "deployed"
	EventReused     EventType = "reused"
	EventDestroying EventType = "destroying"
	EventDestroyed  EventType = "destroyed"
	EventFailed     EventType = "failed"
	EventSkipped    EventType = "skipped"
)

// ProgressEvent is delivered to the OnProgress callback as challenges move
// through their lifecycle.
type ProgressEvent struct {
	Challenge string
	Type      EventType
	Message   string
	Err       error
}

// ChallengeResult contains the terminal outcome for a single challenge.
type ChallengeResult struct {
	Challenge string
	State     lifecycle.State
	Reused    bool
	Duration  time.Duration
	Outputs   map[string]interface{}
	Error     error
}

// RunResult contains the results of a deploy or destroy run.
type RunResult struct {
	Success   bool
	Duration  time.Duration
	Deployed  int
	Destroyed int
	Reused    int
	Failed    int
	Skipped   int
	Results   map[string]*ChallengeResult
	Errors    []error
}

func newRunResult() *RunResult {
	return &RunResult{
		Success: true,
		Results: make(map[string]*ChallengeResult),
	}
}

func (r *RunResult) record(res *ChallengeResult) {
	r.Results[res.Challenge] = res

	switch res.State {
	case lifecycle.StateDeployed:
		if res.Reused {
			r.Reused++
		} else {
			r.Deployed++
		}
	case lifecycle.StateDestroyed:
		r.Destroyed++
	case lifecycle.StateFailed:
		r.Failed++
		r.Success = false
	case lifecycle.StateSkipped:
		r.Skipped++
		r.Success = false
	}

	if res.Error != nil {
		r.Errors = append(r.Errors, res.Error)
	}
}
