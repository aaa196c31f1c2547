package engine

import (
	"context"
	"time"

	"github.com/ekocloudsec/ctfctl/pkg/iac"
)

// ChallengePreview holds the planned changes for one challenge. Err is set
// when the plan could not run, typically because the challenge references
// outputs of a dependency that has not been deployed yet.
type ChallengePreview struct {
	Challenge string
	Changes   []iac.ResourceChange
	Summary   iac.ChangeSummary
	Err       error
}

// PreviewResult aggregates the plans of a preview run in dependency order.
type PreviewResult struct {
	Order      []string
	Challenges map[string]*ChallengePreview
	Summary    iac.ChangeSummary
	Duration   time.Duration
}

// Preview resolves each selected challenge and asks the plugin what it
// would change, without applying anything. Recorded outputs of deployed
// challenges feed variable resolution the same way a destroy run uses
// them; a challenge whose upstream has never been deployed gets its Err
// set instead of a plan.
func (e *Engine) Preview(ctx context.Context, names []string) (*PreviewResult, error) {
	started := time.Now()

	r, err := e.newRun(ctx, names, "preview", true)
	if err != nil {
		return nil, err
	}

	for id := range e.manifest.Challenges {
		if record, err := e.state.GetChallenge(ctx, id); err == nil && len(record.Outputs) > 0 {
			r.store.Put(id, record.Outputs)
		}
	}

	result := &PreviewResult{
		Challenges: make(map[string]*ChallengePreview),
	}

	for _, batch := range r.graph.TopologicalBatches() {
		for _, id := range filterSelected(batch, r.selected) {
			if ctx.Err() != nil {
				result.Duration = time.Since(started)
				return result, ctx.Err()
			}
			result.Order = append(result.Order, id)
			result.Challenges[id] = e.previewChallenge(ctx, r, id)
		}
	}

	for _, p := range result.Challenges {
		result.Summary.Create += p.Summary.Create
		result.Summary.Update += p.Summary.Update
		result.Summary.Delete += p.Summary.Delete
		result.Summary.Replace += p.Summary.Replace
	}

	result.Duration = time.Since(started)
	return result, nil
}

func (e *Engine) previewChallenge(ctx context.Context, r *run, id string) *ChallengePreview {
	c := e.manifest.Challenges[id]
	preview := &ChallengePreview{Challenge: id}

	inputs, err := e.resolveInputs(r, c)
	if err != nil {
		preview.Err = err
		return preview
	}

	env, err := e.creds.Environment(ctx, c.Provider)
	if err != nil {
		preview.Err = err
		return preview
	}

	planCtx, cancel := e.challengeContext(ctx, c)
	defer cancel()

	plan, err := r.plugin.Preview(planCtx, iac.RunOptions{
		WorkDir:           c.DirectoryPath(e.manifest.BasePath),
		BackendConfigPath: c.BackendConfigPath(e.manifest.BasePath),
		Inputs:            inputs,
		Environment:       env,
		Stdout:            e.options.Output,
		Stderr:            e.options.Output,
	})
	if err != nil {
		preview.Err = err
		return preview
	}

	preview.Changes = plan.Changes
	preview.Summary = plan.Summary
	return preview
}
