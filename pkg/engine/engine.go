// Package engine orchestrates challenge deployments across the
// dependency graph.
package engine

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekocloudsec/ctfctl/pkg/challenge"
	"github.com/ekocloudsec/ctfctl/pkg/creds"
	"github.com/ekocloudsec/ctfctl/pkg/engine/lifecycle"
	"github.com/ekocloudsec/ctfctl/pkg/engine/outputs"
	"github.com/ekocloudsec/ctfctl/pkg/errors"
	"github.com/ekocloudsec/ctfctl/pkg/graph"
	"github.com/ekocloudsec/ctfctl/pkg/iac"
	"github.com/ekocloudsec/ctfctl/pkg/state"
	"github.com/ekocloudsec/ctfctl/pkg/state/types"
)

// Options configures a run.
type Options struct {
	// Concurrency is the max number of challenges deployed at once
	Concurrency int

	// Timeout applies per challenge unless the manifest overrides it
	Timeout time.Duration

	// Plugin names the provisioning plugin to use
	Plugin string

	// SkipUnchanged reuses recorded outputs when the resolved inputs of
	// an already deployed challenge have not changed
	SkipUnchanged bool

	// Output receives the provisioning tool's stdout and stderr
	Output io.Writer

	// OnProgress is invoked as challenges change state
	OnProgress func(ProgressEvent)
}

// DefaultOptions returns default run options.
func DefaultOptions() Options {
	return Options{
		Concurrency: 4,
		Timeout:     30 * time.Minute,
		Plugin:      "terraform",
	}
}

// Engine deploys and destroys challenges.
type Engine struct {
	manifest *challenge.Manifest
	registry *iac.Registry
	state    state.Manager
	creds    *creds.Manager
	options  Options
}

// New creates an engine.
func New(manifest *challenge.Manifest, registry *iac.Registry, stateManager state.Manager, credsManager *creds.Manager, options Options) *Engine {
	if options.Concurrency <= 0 {
		options.Concurrency = 4
	}
	if options.Plugin == "" {
		options.Plugin = "terraform"
	}
	return &Engine{
		manifest: manifest,
		registry: registry,
		state:    stateManager,
		creds:    credsManager,
		options:  options,
	}
}

// run carries the per-run scratch state shared by the workers.
type run struct {
	graph    *graph.Graph
	plugin   iac.Plugin
	tracker  *lifecycle.Tracker
	store    *outputs.Store
	selected map[string]bool

	mu     sync.Mutex
	result *RunResult
}

func (r *run) record(res *ChallengeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.record(res)
}

// Deploy deploys the named challenges and their transitive dependencies.
// With no names, every challenge in the manifest is deployed.
func (e *Engine) Deploy(ctx context.Context, names []string) (*RunResult, error) {
	started := time.Now()

	r, err := e.newRun(ctx, names, "deploy", true)
	if err != nil {
		return nil, err
	}

	lock, err := e.state.Lock(ctx, state.LockScope{Operation: "deploy"})
	if err != nil {
		return nil, err
	}
	defer lock.Unlock(context.WithoutCancel(ctx))

	for _, batch := range r.graph.TopologicalBatches() {
		batch = filterSelected(batch, r.selected)
		if len(batch) == 0 {
			continue
		}

		if ctx.Err() != nil {
			e.cancelRemaining(r)
			break
		}

		// Challenges whose dependencies already failed or were skipped
		// never reach the worker pool.
		var runnable []string
		for _, id := range batch {
			if upstream := e.blockedBy(r, id); upstream != "" {
				e.skip(r, id, errors.SkippedError(id, upstream))
				continue
			}
			runnable = append(runnable, id)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.options.Concurrency)
		for _, id := range runnable {
			id := id
			g.Go(func() error {
				e.deployChallenge(gctx, r, id)
				return nil
			})
		}
		_ = g.Wait()
	}

	r.result.Duration = time.Since(started)
	return r.result, nil
}

// Destroy destroys the named challenges and every deployed challenge that
// depends on them, in reverse dependency order.
func (e *Engine) Destroy(ctx context.Context, names []string) (*RunResult, error) {
	started := time.Now()

	r, err := e.newRun(ctx, names, "destroy", false)
	if err != nil {
		return nil, err
	}

	lock, err := e.state.Lock(ctx, state.LockScope{Operation: "destroy"})
	if err != nil {
		return nil, err
	}
	defer lock.Unlock(context.WithoutCancel(ctx))

	// Recorded outputs feed variable resolution for the destroy runs. Every
	// recorded challenge is loaded, not just the selected ones: a destroyed
	// challenge may reference outputs of an upstream that stays deployed.
	for id := range e.manifest.Challenges {
		if record, err := e.state.GetChallenge(ctx, id); err == nil && len(record.Outputs) > 0 {
			r.store.Put(id, record.Outputs)
		}
	}

	for _, batch := range r.graph.ReverseBatches() {
		batch = filterSelected(batch, r.selected)
		if len(batch) == 0 {
			continue
		}

		if ctx.Err() != nil {
			e.cancelRemaining(r)
			break
		}

		// A failed or skipped destroy leaves its dependencies with a live
		// dependent, so their destroy is skipped too.
		var runnable []string
		for _, id := range batch {
			if dependent := e.blockedByDependent(r, id); dependent != "" {
				e.skip(r, id, errors.SkippedError(id, dependent))
				continue
			}
			runnable = append(runnable, id)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.options.Concurrency)
		for _, id := range runnable {
			id := id
			g.Go(func() error {
				e.destroyChallenge(gctx, r, id)
				return nil
			})
		}
		_ = g.Wait()
	}

	r.result.Duration = time.Since(started)
	return r.result, nil
}

// newRun validates the requested names, builds the graph and computes the
// selection closure.
func (e *Engine) newRun(ctx context.Context, names []string, operation string, withDependencies bool) (*run, error) {
	challenges := make([]*challenge.Challenge, 0, len(e.manifest.Challenges))
	for _, c := range e.manifest.Challenges {
		challenges = append(challenges, c)
	}

	g, err := graph.Build(challenges)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool)
	if len(names) == 0 {
		for name := range e.manifest.Challenges {
			selected[name] = true
		}
	} else {
		for _, name := range names {
			if _, ok := e.manifest.Challenges[name]; !ok {
				return nil, errors.NotFoundError("challenge", name)
			}
			selected[name] = true
		}
		if withDependencies {
			for _, name := range names {
				for _, dep := range dependencyClosure(g, name) {
					selected[dep] = true
				}
			}
		} else {
			for _, name := range names {
				for _, dependent := range g.Dependents(name) {
					selected[dependent] = true
				}
			}
		}
	}

	if !withDependencies {
		// Destroy only touches challenges with a deployed record.
		for name := range selected {
			record, err := e.state.GetChallenge(ctx, name)
			if err != nil || !record.Deployed() {
				delete(selected, name)
			}
		}
	}

	plugin, err := e.registry.Get(e.options.Plugin)
	if err != nil {
		return nil, errors.PluginError(e.options.Plugin, operation, err)
	}

	ids := make([]string, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &run{
		graph:    g,
		plugin:   plugin,
		tracker:  lifecycle.NewTracker(ids),
		store:    outputs.NewStore(),
		selected: selected,
		result:   newRunResult(),
	}, nil
}

func (e *Engine) deployChallenge(ctx context.Context, r *run, id string) {
	started := time.Now()
	c := e.manifest.Challenges[id]

	finish := func(st lifecycle.State, reused bool, out map[string]interface{}, err error) {
		r.record(&ChallengeResult{
			Challenge: id,
			State:     st,
			Reused:    reused,
			Duration:  time.Since(started),
			Outputs:   out,
			Error:     err,
		})
	}

	fail := func(err error) {
		_ = r.tracker.Fail(id, err)
		e.emit(ProgressEvent{Challenge: id, Type: EventFailed, Err: err})
		e.saveRecord(ctx, c, types.StatusFailed, "", nil, err)
		finish(lifecycle.StateFailed, false, nil, err)
	}

	_ = r.tracker.Transition(id, lifecycle.StateResolving)
	e.emit(ProgressEvent{Challenge: id, Type: EventResolving})

	inputs, err := e.resolveInputs(r, c)
	if err != nil {
		fail(err)
		return
	}

	env, err := e.creds.Environment(ctx, c.Provider)
	if err != nil {
		fail(err)
		return
	}

	signature, err := inputSignature(inputs)
	if err != nil {
		fail(err)
		return
	}

	runOpts := iac.RunOptions{
		WorkDir:           c.DirectoryPath(e.manifest.BasePath),
		BackendConfigPath: c.BackendConfigPath(e.manifest.BasePath),
		Inputs:            inputs,
		Environment:       env,
		Stdout:            e.options.Output,
		Stderr:            e.options.Output,
	}

	if e.options.SkipUnchanged {
		if out, ok := e.reusable(ctx, r, id, signature, runOpts); ok {
			_ = r.tracker.Transition(id, lifecycle.StateApplying)
			_ = r.tracker.Transition(id, lifecycle.StateDeployed)
			r.store.Put(id, out)
			e.emit(ProgressEvent{Challenge: id, Type: EventReused})
			finish(lifecycle.StateDeployed, true, out, nil)
			return
		}
	}

	_ = r.tracker.Transition(id, lifecycle.StateApplying)
	e.emit(ProgressEvent{Challenge: id, Type: EventApplying})

	applyCtx, cancel := e.challengeContext(ctx, c)
	defer cancel()

	applyResult, err := r.plugin.Apply(applyCtx, runOpts)
	if err != nil {
		if applyCtx.Err() == context.DeadlineExceeded {
			fail(errors.TimeoutError(id, e.challengeTimeout(c)))
			return
		}
		if ctx.Err() != nil {
			fail(errors.CancelledError(id))
			return
		}
		fail(errors.ApplyError(id, err))
		return
	}

	out := iac.Values(applyResult.Outputs)
	r.store.Put(id, out)
	_ = r.tracker.Transition(id, lifecycle.StateDeployed)
	e.emit(ProgressEvent{Challenge: id, Type: EventDeployed})
	e.saveRecord(ctx, c, types.StatusDeployed, signature, out, nil)
	finish(lifecycle.StateDeployed, false, out, nil)
}

func (e *Engine) destroyChallenge(ctx context.Context, r *run, id string) {
	started := time.Now()
	c := e.manifest.Challenges[id]

	fail := func(err error) {
		_ = r.tracker.Fail(id, err)
		e.emit(ProgressEvent{Challenge: id, Type: EventFailed, Err: err})
		e.saveRecord(ctx, c, types.StatusFailed, "", nil, err)
		r.record(&ChallengeResult{
			Challenge: id,
			State:     lifecycle.StateFailed,
			Duration:  time.Since(started),
			Error:     err,
		})
	}

	_ = r.tracker.Transition(id, lifecycle.StateDestroying)
	e.emit(ProgressEvent{Challenge: id, Type: EventDestroying})

	inputs, err := e.resolveInputs(r, c)
	if err != nil {
		fail(err)
		return
	}

	env, err := e.creds.Environment(ctx, c.Provider)
	if err != nil {
		fail(err)
		return
	}

	destroyCtx, cancel := e.challengeContext(ctx, c)
	defer cancel()

	err = r.plugin.Destroy(destroyCtx, iac.RunOptions{
		WorkDir:           c.DirectoryPath(e.manifest.BasePath),
		BackendConfigPath: c.BackendConfigPath(e.manifest.BasePath),
		Inputs:            inputs,
		Environment:       env,
		Stdout:            e.options.Output,
		Stderr:            e.options.Output,
	})
	if err != nil {
		if destroyCtx.Err() == context.DeadlineExceeded {
			fail(errors.TimeoutError(id, e.challengeTimeout(c)))
			return
		}
		if ctx.Err() != nil {
			fail(errors.CancelledError(id))
			return
		}
		fail(errors.DestroyError(id, err))
		return
	}

	_ = r.tracker.Transition(id, lifecycle.StateDestroyed)
	e.emit(ProgressEvent{Challenge: id, Type: EventDestroyed})
	_ = e.state.DeleteChallenge(ctx, id)
	r.store.Delete(id)
	r.record(&ChallengeResult{
		Challenge: id,
		State:     lifecycle.StateDestroyed,
		Duration:  time.Since(started),
	})
}

// reusable reports whether a deployed record with a matching input
// signature can stand in for a fresh apply, returning its outputs.
func (e *Engine) reusable(ctx context.Context, r *run, id, signature string, runOpts iac.RunOptions) (map[string]interface{}, bool) {
	record, err := e.state.GetChallenge(ctx, id)
	if err != nil || !record.Deployed() || record.InputHash != signature {
		return nil, false
	}

	// Prefer live outputs when the plugin can read them without applying.
	if out, err := r.plugin.Outputs(ctx, runOpts); err == nil && len(out) > 0 {
		return iac.Values(out), true
	}
	return record.Outputs, true
}

func (e *Engine) resolveInputs(r *run, c *challenge.Challenge) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(c.ParsedVariables))
	for name, value := range c.ParsedVariables {
		resolved, err := value.Resolve(c.Name, r.store.Lookup, os.LookupEnv)
		if err != nil {
			return nil, err
		}
		inputs[name] = resolved
	}
	return inputs, nil
}

// blockedBy returns the first direct dependency of id that failed or was
// skipped, or "" when id can run.
func (e *Engine) blockedBy(r *run, id string) string {
	node := r.graph.GetNode(id)
	if node == nil {
		return ""
	}
	for _, dep := range node.DependsOn {
		switch r.tracker.State(dep) {
		case lifecycle.StateFailed, lifecycle.StateSkipped:
			return dep
		}
	}
	return ""
}

// blockedByDependent is the destroy-order counterpart: a dependent whose
// destroy failed or was skipped still relies on this challenge.
func (e *Engine) blockedByDependent(r *run, id string) string {
	node := r.graph.GetNode(id)
	if node == nil {
		return ""
	}
	for _, dependent := range node.DependedOnBy {
		if !r.selected[dependent] {
			continue
		}
		switch r.tracker.State(dependent) {
		case lifecycle.StateFailed, lifecycle.StateSkipped:
			return dependent
		}
	}
	return ""
}

func (e *Engine) skip(r *run, id string, reason error) {
	_ = r.tracker.Skip(id, reason)
	e.emit(ProgressEvent{Challenge: id, Type: EventSkipped, Err: reason})
	r.record(&ChallengeResult{Challenge: id, State: lifecycle.StateSkipped, Error: reason})
}

// cancelRemaining marks every not-yet-started challenge skipped.
func (e *Engine) cancelRemaining(r *run) {
	ids := make([]string, 0, len(r.selected))
	for id := range r.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if r.tracker.State(id) == lifecycle.StatePending {
			e.skip(r, id, errors.CancelledError(id))
		}
	}
}

func (e *Engine) challengeTimeout(c *challenge.Challenge) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return e.options.Timeout
}

func (e *Engine) challengeContext(ctx context.Context, c *challenge.Challenge) (context.Context, context.CancelFunc) {
	timeout := e.challengeTimeout(c)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (e *Engine) saveRecord(ctx context.Context, c *challenge.Challenge, status types.Status, signature string, out map[string]interface{}, cause error) {
	record := &types.ChallengeRecord{
		Name:      c.Name,
		Provider:  c.Provider,
		Status:    status,
		InputHash: signature,
		Outputs:   out,
	}
	if status == types.StatusDeployed {
		record.DeployedAt = time.Now().UTC()
	}
	if cause != nil {
		record.Error = cause.Error()
	}
	_ = e.state.SaveChallenge(ctx, record)
}

func (e *Engine) emit(event ProgressEvent) {
	if e.options.OnProgress != nil {
		e.options.OnProgress(event)
	}
}

func filterSelected(batch []string, selected map[string]bool) []string {
	var out []string
	for _, id := range batch {
		if selected[id] {
			out = append(out, id)
		}
	}
	return out
}

// dependencyClosure returns the transitive dependencies of id.
func dependencyClosure(g *graph.Graph, id string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(current string) {
		node := g.GetNode(current)
		if node == nil {
			return
		}
		for _, dep := range node.DependsOn {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)

	deps := make([]string, 0, len(seen))
	for dep := range seen {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}
