package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekocloudsec/ctfctl/pkg/challenge"
	"github.com/ekocloudsec/ctfctl/pkg/creds"
	"github.com/ekocloudsec/ctfctl/pkg/engine/lifecycle"
	"github.com/ekocloudsec/ctfctl/pkg/errors"
	"github.com/ekocloudsec/ctfctl/pkg/iac"
	"github.com/ekocloudsec/ctfctl/pkg/state"
	"github.com/ekocloudsec/ctfctl/pkg/state/backend"
	"github.com/ekocloudsec/ctfctl/pkg/state/backend/local"
)

// fakePlugin records apply and destroy calls. Challenges are identified
// by the base name of their working directory.
type fakePlugin struct {
	mu         sync.Mutex
	applies    []string
	destroys   []string
	previews   []string
	inputs     map[string]map[string]interface{}
	outputs    map[string]map[string]iac.OutputValue
	plans      map[string]*iac.PreviewResult
	applyErr   map[string]error
	destroyErr map[string]error
	delay      time.Duration
	delays     map[string]time.Duration

	active    int
	maxActive int
}

func newFakePlugin() *fakePlugin {
	return &fakePlugin{
		inputs:     make(map[string]map[string]interface{}),
		outputs:    make(map[string]map[string]iac.OutputValue),
		plans:      make(map[string]*iac.PreviewResult),
		applyErr:   make(map[string]error),
		destroyErr: make(map[string]error),
		delays:     make(map[string]time.Duration),
	}
}

// wait blocks for the challenge's configured delay, honouring cancellation
// the way a real plugin run does.
func (p *fakePlugin) wait(ctx context.Context, id string) error {
	d := p.delay
	if pd, ok := p.delays[id]; ok {
		d = pd
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePlugin) Name() string { return "fake" }

func (p *fakePlugin) enter(id string) {
	p.mu.Lock()
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	p.mu.Unlock()
}

func (p *fakePlugin) exit() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}

func (p *fakePlugin) Apply(ctx context.Context, opts iac.RunOptions) (*iac.ApplyResult, error) {
	id := filepath.Base(opts.WorkDir)
	p.enter(id)
	defer p.exit()

	if err := p.wait(ctx, id); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.applies = append(p.applies, id)
	p.inputs[id] = opts.Inputs

	if err := p.applyErr[id]; err != nil {
		return nil, err
	}
	out := p.outputs[id]
	if out == nil {
		out = map[string]iac.OutputValue{}
	}
	return &iac.ApplyResult{Outputs: out}, nil
}

func (p *fakePlugin) Destroy(ctx context.Context, opts iac.RunOptions) error {
	id := filepath.Base(opts.WorkDir)
	p.enter(id)
	defer p.exit()

	if err := p.wait(ctx, id); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroys = append(p.destroys, id)
	p.inputs[id] = opts.Inputs
	return p.destroyErr[id]
}

func (p *fakePlugin) Preview(ctx context.Context, opts iac.RunOptions) (*iac.PreviewResult, error) {
	id := filepath.Base(opts.WorkDir)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews = append(p.previews, id)
	p.inputs[id] = opts.Inputs

	if plan, ok := p.plans[id]; ok {
		return plan, nil
	}
	return &iac.PreviewResult{}, nil
}

func (p *fakePlugin) Outputs(ctx context.Context, opts iac.RunOptions) (map[string]iac.OutputValue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputs[filepath.Base(opts.WorkDir)], nil
}

func (p *fakePlugin) applyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.applies)
}

func (p *fakePlugin) applyOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.applies...)
}

func (p *fakePlugin) destroyOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.destroys...)
}

type testEnv struct {
	manifest *challenge.Manifest
	plugin   *fakePlugin
	state    state.Manager
	options  Options
}

func newTestEnv(t *testing.T, manifestYAML string) *testEnv {
	t.Helper()

	manifest, err := challenge.LoadFromBytes([]byte(manifestYAML), "challenges.yaml")
	require.NoError(t, err)
	manifest.BasePath = t.TempDir()

	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)

	return &testEnv{
		manifest: manifest,
		plugin:   newFakePlugin(),
		state:    state.NewManager(b),
		options: Options{
			Concurrency: 4,
			Plugin:      "fake",
		},
	}
}

func (te *testEnv) engine(t *testing.T) *Engine {
	t.Helper()

	registry := iac.NewRegistry()
	registry.Register("fake", func() (iac.Plugin, error) { return te.plugin, nil })

	return New(te.manifest, registry, te.state, creds.NewManager(creds.Config{}), te.options)
}

func outputValues(values map[string]interface{}) map[string]iac.OutputValue {
	out := make(map[string]iac.OutputValue, len(values))
	for k, v := range values {
		out[k] = iac.OutputValue{Value: v}
	}
	return out
}

const chainManifest = `
challenges:
  vpc:
    provider: aws
    directory: challenges/vpc
    backend_config: config/backends/vpc.hcl
    outputs: [vpc_id]
  db:
    provider: aws
    directory: challenges/db
    backend_config: config/backends/db.hcl
    variables:
      vpc_id: ${vpc.vpc_id}
  web:
    provider: aws
    directory: challenges/web
    backend_config: config/backends/web.hcl
    variables:
      db_endpoint: ${db.endpoint}
`

func TestDeploy_ChainInOrder(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-123"})
	te.plugin.outputs["db"] = outputValues(map[string]interface{}{"endpoint": "db.internal:5432"})

	result, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Deployed)
	assert.Equal(t, []string{"vpc", "db", "web"}, te.plugin.applyOrder())
	assert.Equal(t, "vpc-123", te.plugin.inputs["db"]["vpc_id"])
	assert.Equal(t, "db.internal:5432", te.plugin.inputs["web"]["db_endpoint"])

	record, err := te.state.GetChallenge(context.Background(), "vpc")
	require.NoError(t, err)
	assert.True(t, record.Deployed())
	assert.NotEmpty(t, record.InputHash)
}

func TestDeploy_NativeTypeResolution(t *testing.T) {
	te := newTestEnv(t, `
challenges:
  base:
    provider: aws
    directory: challenges/base
    backend_config: config/backends/base.hcl
  app:
    provider: aws
    directory: challenges/app
    backend_config: config/backends/app.hcl
    variables:
      port: ${base.port}
      addr: host-${base.port}
`)
	te.plugin.outputs["base"] = outputValues(map[string]interface{}{"port": 8080})

	result, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, 8080, te.plugin.inputs["app"]["port"])
	assert.Equal(t, "host-8080", te.plugin.inputs["app"]["addr"])
}

func TestDeploy_CascadeSkip(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.applyErr["vpc"] = fmt.Errorf("quota exceeded")

	result, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, te.plugin.applyCount(), "skipped challenges must not reach the plugin")

	assert.Equal(t, lifecycle.StateFailed, result.Results["vpc"].State)
	assert.True(t, errors.Is(result.Results["vpc"].Error, errors.ErrCodeApply))
	assert.Equal(t, lifecycle.StateSkipped, result.Results["db"].State)
	assert.True(t, errors.Is(result.Results["db"].Error, errors.ErrCodeSkipped))
	assert.Equal(t, lifecycle.StateSkipped, result.Results["web"].State)
}

func TestDeploy_ConcurrencyBound(t *testing.T) {
	manifestYAML := "challenges:\n"
	for i := 0; i < 5; i++ {
		manifestYAML += fmt.Sprintf(`  chal%d:
    provider: aws
    directory: challenges/chal%d
    backend_config: config/backends/chal%d.hcl
`, i, i, i)
	}

	te := newTestEnv(t, manifestYAML)
	te.plugin.delay = 20 * time.Millisecond
	te.options.Concurrency = 2

	result, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 5, result.Deployed)
	assert.LessOrEqual(t, te.plugin.maxActive, 2)
}

func TestDeploy_SkipUnchanged(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-123"})
	te.plugin.outputs["db"] = outputValues(map[string]interface{}{"endpoint": "db.internal:5432"})
	te.options.SkipUnchanged = true

	result, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 3, te.plugin.applyCount())

	// Nothing changed, so the second run applies nothing.
	result, err = te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Reused)
	assert.Equal(t, 0, result.Deployed)
	assert.Equal(t, 3, te.plugin.applyCount())
	assert.True(t, result.Results["web"].Reused)

	// A changed upstream output changes db's inputs, so db re-applies.
	// vpc's own inputs are untouched and web's resolved inputs come out
	// the same, so both are still reused.
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-456"})
	result, err = te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Reused)
	assert.Equal(t, 1, result.Deployed)
	assert.Equal(t, 4, te.plugin.applyCount())
}

func TestDeploy_MissingOutput(t *testing.T) {
	te := newTestEnv(t, `
challenges:
  base:
    provider: aws
    directory: challenges/base
    backend_config: config/backends/base.hcl
  app:
    provider: aws
    directory: challenges/app
    backend_config: config/backends/app.hcl
    variables:
      missing: ${base.does_not_exist}
`)

	result, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, lifecycle.StateFailed, result.Results["app"].State)
	assert.True(t, errors.Is(result.Results["app"].Error, errors.ErrCodeMissingOutput))
}

func TestDeploy_UnknownChallenge(t *testing.T) {
	te := newTestEnv(t, chainManifest)

	_, err := te.engine(t).Deploy(context.Background(), []string{"nonexistent"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestDeploy_NamedIncludesDependencies(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-123"})
	te.plugin.outputs["db"] = outputValues(map[string]interface{}{"endpoint": "db.internal:5432"})

	result, err := te.engine(t).Deploy(context.Background(), []string{"db"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"vpc", "db"}, te.plugin.applyOrder())
	assert.NotContains(t, result.Results, "web")
}

func TestDeploy_Cancelled(t *testing.T) {
	te := newTestEnv(t, chainManifest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := te.engine(t).Deploy(ctx, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 0, te.plugin.applyCount())
	assert.True(t, errors.Is(result.Results["vpc"].Error, errors.ErrCodeCancelled))
}

func TestDeploy_PerChallengeTimeout(t *testing.T) {
	te := newTestEnv(t, `
challenges:
  slow:
    provider: aws
    directory: challenges/slow
    backend_config: config/backends/slow.hcl
  fast:
    provider: aws
    directory: challenges/fast
    backend_config: config/backends/fast.hcl
`)
	te.manifest.Challenges["slow"].Timeout = 25 * time.Millisecond
	te.plugin.delays["slow"] = 5 * time.Second

	result, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, lifecycle.StateFailed, result.Results["slow"].State)
	assert.True(t, errors.Is(result.Results["slow"].Error, errors.ErrCodeTimeout))
	assert.Equal(t, lifecycle.StateDeployed, result.Results["fast"].State)
}

func TestDeploy_CancelledMidApply(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.delays["vpc"] = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	result, err := te.engine(t).Deploy(ctx, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, errors.Is(result.Results["vpc"].Error, errors.ErrCodeCancelled))
	assert.Equal(t, 0, te.plugin.applyCount())
}

func TestDestroy_CancelledMidRun(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-123"})
	te.plugin.outputs["db"] = outputValues(map[string]interface{}{"endpoint": "db.internal:5432"})

	_, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	te.plugin.delays["web"] = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	result, err := te.engine(t).Destroy(ctx, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, errors.Is(result.Results["web"].Error, errors.ErrCodeCancelled))
	assert.Empty(t, te.plugin.destroyOrder())
}

func TestDestroy_ReverseOrder(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-123"})
	te.plugin.outputs["db"] = outputValues(map[string]interface{}{"endpoint": "db.internal:5432"})

	_, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	result, err := te.engine(t).Destroy(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Destroyed)
	assert.Equal(t, []string{"web", "db", "vpc"}, te.plugin.destroyOrder())

	_, err = te.state.GetChallenge(context.Background(), "vpc")
	assert.Error(t, err, "destroyed challenges lose their state record")
}

func TestDestroy_FailureSkipsDependencies(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-123"})
	te.plugin.outputs["db"] = outputValues(map[string]interface{}{"endpoint": "db.internal:5432"})

	_, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	te.plugin.destroyErr["web"] = fmt.Errorf("resource busy")

	result, err := te.engine(t).Destroy(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, []string{"web"}, te.plugin.destroyOrder())
	assert.True(t, errors.Is(result.Results["web"].Error, errors.ErrCodeDestroy))
	assert.Equal(t, lifecycle.StateSkipped, result.Results["db"].State)
	assert.Equal(t, lifecycle.StateSkipped, result.Results["vpc"].State)
}

func TestDestroy_NamedIncludesDependents(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-123"})
	te.plugin.outputs["db"] = outputValues(map[string]interface{}{"endpoint": "db.internal:5432"})

	_, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	result, err := te.engine(t).Destroy(context.Background(), []string{"db"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"web", "db"}, te.plugin.destroyOrder())
	assert.NotContains(t, result.Results, "vpc")

	// db consumes ${vpc.vpc_id}; vpc stays deployed, so its recorded
	// outputs must still resolve for the destroy run.
	assert.Equal(t, "vpc-123", te.plugin.inputs["db"]["vpc_id"])

	record, err := te.state.GetChallenge(context.Background(), "vpc")
	require.NoError(t, err)
	assert.True(t, record.Deployed())

	_, err = te.state.GetChallenge(context.Background(), "db")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestDestroy_NothingDeployed(t *testing.T) {
	te := newTestEnv(t, chainManifest)

	result, err := te.engine(t).Destroy(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Destroyed)
	assert.Empty(t, te.plugin.destroyOrder())
}

func TestDeploy_CycleAborts(t *testing.T) {
	te := newTestEnv(t, `
challenges:
  a:
    provider: aws
    directory: challenges/a
    backend_config: config/backends/a.hcl
    depends_on: [b]
  b:
    provider: aws
    directory: challenges/b
    backend_config: config/backends/b.hcl
    depends_on: [a]
`)

	_, err := te.engine(t).Deploy(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCycle))
	assert.True(t, errors.IsStructural(err))
	assert.Equal(t, 0, te.plugin.applyCount())
}

func TestDeploy_ProgressEvents(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-123"})
	te.plugin.outputs["db"] = outputValues(map[string]interface{}{"endpoint": "db.internal:5432"})
	te.options.Concurrency = 1

	var mu sync.Mutex
	var events []EventType
	te.options.OnProgress = func(e ProgressEvent) {
		mu.Lock()
		events = append(events, e.Type)
		mu.Unlock()
	}

	_, err := te.engine(t).Deploy(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventResolving, EventApplying, EventDeployed,
		EventResolving, EventApplying, EventDeployed,
		EventResolving, EventApplying, EventDeployed,
	}, events)
}

func (p *fakePlugin) previewOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.previews...)
}

func TestPreview_RecordedOutputsFeedResolution(t *testing.T) {
	te := newTestEnv(t, chainManifest)
	te.plugin.outputs["vpc"] = outputValues(map[string]interface{}{"vpc_id": "vpc-123"})
	te.plugin.plans["vpc"] = &iac.PreviewResult{Summary: iac.ChangeSummary{Update: 1}}
	te.plugin.plans["db"] = &iac.PreviewResult{
		Changes: []iac.ResourceChange{{ResourceID: "aws_db_instance.main", Action: iac.ActionCreate}},
		Summary: iac.ChangeSummary{Create: 1},
	}

	_, err := te.engine(t).Deploy(context.Background(), []string{"vpc"})
	require.NoError(t, err)

	result, err := te.engine(t).Preview(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"vpc", "db", "web"}, result.Order)
	assert.Equal(t, []string{"vpc", "db"}, te.plugin.previewOrder(),
		"a challenge with an undeployed upstream must not reach the plugin")

	// db's ${vpc.vpc_id} resolves from the recorded vpc outputs.
	assert.Equal(t, "vpc-123", te.plugin.inputs["db"]["vpc_id"])
	require.NoError(t, result.Challenges["db"].Err)
	assert.Len(t, result.Challenges["db"].Changes, 1)

	// web's ${db.endpoint} has no recorded source yet.
	require.Error(t, result.Challenges["web"].Err)
	assert.True(t, errors.Is(result.Challenges["web"].Err, errors.ErrCodeMissingOutput))

	assert.Equal(t, 1, result.Summary.Create)
	assert.Equal(t, 1, result.Summary.Update)
}

func TestPreview_NamedIncludesDependencies(t *testing.T) {
	te := newTestEnv(t, chainManifest)

	result, err := te.engine(t).Preview(context.Background(), []string{"db"})
	require.NoError(t, err)

	assert.Equal(t, []string{"vpc", "db"}, result.Order)
	assert.NotContains(t, result.Challenges, "web")
}
