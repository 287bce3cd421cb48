package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"opsagent/internal/agent"
	"opsagent/internal/catalog"
	"opsagent/internal/descriptor"
	"opsagent/internal/logsource"
	"opsagent/internal/pkg/circuit"
	"opsagent/internal/reward"
	"opsagent/internal/state"
	"opsagent/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, name string, dryRun bool) catalog.Result {
	args := m.Called(ctx, name, dryRun)
	return args.Get(0).(catalog.Result)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) InsertStep(ctx context.Context, step *model.DecisionStepModel) error {
	args := m.Called(ctx, step)
	return args.Error(0)
}

func webDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Name: "web",
		ErrorPatterns: []descriptor.ErrorPattern{
			{Pattern: "ERROR", Severity: descriptor.SeverityHigh},
			{Pattern: "CRITICAL|FATAL", Severity: descriptor.SeverityCritical},
		},
		AvailableActions: []descriptor.ActionDefinition{
			{Name: "restart_service", Command: "systemctl restart web", RiskLevel: descriptor.RiskMedium},
			{Name: "clear_cache", Command: "rm -rf /tmp/cache", RiskLevel: descriptor.RiskSafe},
			{Name: "redeploy", Command: "./deploy.sh", RiskLevel: descriptor.RiskHigh},
		},
	}
}

func newTestAgent(t *testing.T, d *descriptor.Descriptor) *agent.Agent {
	t.Helper()
	a, err := agent.New(d, agent.WithSeed(7))
	require.NoError(t, err)
	return a
}

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestRunDemoEpisodeDryRun(t *testing.T) {
	a := newTestAgent(t, webDescriptor())
	exec := new(MockExecutor)
	exec.On("Execute", mock.Anything, mock.AnythingOfType("string"), true).
		Return(catalog.Result{Success: true, Message: "Would execute"})
	rec := new(MockRecorder)
	rec.On("InsertStep", mock.Anything, mock.AnythingOfType("*model.DecisionStepModel")).Return(nil)

	r := New(a, DefaultConfig(), WithExecutor(exec), WithRecorder(rec), WithRunID("run-1"), WithClock(clock))
	src, err := logsource.ScenarioSource()
	require.NoError(t, err)

	res, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "web", res.AppName)
	require.Equal(t, 4, res.TotalSteps)

	scores := []int{}
	rewards := []float64{}
	for _, s := range res.Steps {
		scores = append(scores, s.State.PerformanceScore)
		rewards = append(rewards, s.Reward)
		assert.NotEmpty(t, s.Action)
		assert.True(t, s.DryRun)
	}
	assert.Equal(t, []int{100, 80, 70, 100}, scores)
	assert.Equal(t, []float64{50, -20, -10, 30}, rewards)
	assert.Equal(t, 50.0, res.TotalReward)
	assert.Equal(t, "critical", res.Steps[2].Label)
	assert.Equal(t, state.StatusDegraded, res.Steps[2].State.Status)
	assert.NotEqual(t, "restart_service", res.Steps[0].Action, "restart is never valid while healthy")

	assert.Equal(t, "web", res.FinalPolicy.AppName)
	assert.Positive(t, res.FinalPolicy.TableSize)

	exec.AssertNumberOfCalls(t, "Execute", 4)
	rec.AssertNumberOfCalls(t, "InsertStep", 4)
}

func TestStepUpdatesValueWithoutBootstrap(t *testing.T) {
	a := newTestAgent(t, webDescriptor())
	exec := new(MockExecutor)
	exec.On("Execute", mock.Anything, mock.AnythingOfType("string"), true).Return(catalog.Result{Success: true})
	r := New(a, DefaultConfig(), WithExecutor(exec))

	s, err := r.Step(context.Background(), []string{"INFO: fine"})
	require.NoError(t, err)
	assert.Equal(t, 50.0, s.Reward)
	assert.InDelta(t, 5.0, a.Value(s.State.Key(), s.Action), 1e-9)
}

func TestStepFailedLiveActionPenalizedThenSuppressed(t *testing.T) {
	a := newTestAgent(t, webDescriptor())
	exec := new(MockExecutor)
	exec.On("Execute", mock.Anything, mock.AnythingOfType("string"), false).
		Return(catalog.Result{Success: false, Executed: true, ExitCode: 1, Message: "Failed (exit 1)"})

	cfg := DefaultConfig()
	cfg.DryRun = false
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = time.Minute
	r := New(a, cfg, WithExecutor(exec), WithClock(clock))

	lines := []string{"ERROR: upstream failed"}
	for i := 0; i < 2; i++ {
		s, err := r.Step(context.Background(), lines)
		require.NoError(t, err)
		assert.Equal(t, reward.DefaultFailurePenalty, s.Reward)
		assert.False(t, s.ActionSuccess())
		assert.False(t, s.Suppressed)
	}

	s, err := r.Step(context.Background(), lines)
	require.NoError(t, err)
	assert.True(t, s.Suppressed)
	assert.Equal(t, 0.0, s.Reward)
	require.NotNil(t, s.Result)
	assert.Equal(t, "circuit open", s.Result.Error)
	exec.AssertNumberOfCalls(t, "Execute", 2)
}

func TestStepUnknownResultReleasesHalfOpenTrial(t *testing.T) {
	a := newTestAgent(t, webDescriptor())
	exec := new(MockExecutor)
	exec.On("Execute", mock.Anything, mock.AnythingOfType("string"), false).
		Return(catalog.Result{Success: false, Executed: true, ExitCode: 1}).Once()
	exec.On("Execute", mock.Anything, mock.AnythingOfType("string"), false).
		Return(catalog.Result{Success: false, Unknown: true, ExitCode: -1, Error: "unknown action"}).Once()
	exec.On("Execute", mock.Anything, mock.AnythingOfType("string"), false).
		Return(catalog.Result{Success: true, Executed: true}).Once()

	now := fixedNow
	cfg := DefaultConfig()
	cfg.DryRun = false
	cfg.BreakerThreshold = 1
	cfg.BreakerCooldown = time.Minute
	r := New(a, cfg, WithExecutor(exec), WithClock(func() time.Time { return now }))
	lines := []string{"ERROR: upstream failed"}

	_, err := r.Step(context.Background(), lines)
	require.NoError(t, err)
	require.Equal(t, circuit.StateOpen, r.Breaker().State())

	now = now.Add(time.Minute)
	s, err := r.Step(context.Background(), lines)
	require.NoError(t, err)
	assert.False(t, s.Suppressed)
	assert.Equal(t, circuit.StateHalfOpen, r.Breaker().State())

	s, err = r.Step(context.Background(), lines)
	require.NoError(t, err)
	assert.False(t, s.Suppressed)
	assert.True(t, s.ActionSuccess())
	assert.Equal(t, circuit.StateClosed, r.Breaker().State())
	exec.AssertNumberOfCalls(t, "Execute", 3)
}

func TestStepNoValidAction(t *testing.T) {
	d := webDescriptor()
	d.AvailableActions = []descriptor.ActionDefinition{
		{Name: "redeploy", Command: "./deploy.sh", RiskLevel: descriptor.RiskHigh},
	}
	a := newTestAgent(t, d)
	exec := new(MockExecutor)
	rec := new(MockRecorder)
	rec.On("InsertStep", mock.Anything, mock.MatchedBy(func(m *model.DecisionStepModel) bool {
		return m.Action == "" && m.Message == "no action" && m.Success && m.Env == "prod"
	})).Return(nil)

	r := New(a, DefaultConfig(), WithExecutor(exec), WithRecorder(rec))
	s, err := r.Step(context.Background(), []string{"environment: prod", "ERROR: boom"})
	require.NoError(t, err)

	assert.Empty(t, s.Action)
	assert.Nil(t, s.Result)
	assert.Equal(t, 0.0, s.Reward)
	assert.True(t, s.ActionSuccess())
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	rec.AssertExpectations(t)
}

func TestStepAppliesExecTimeout(t *testing.T) {
	a := newTestAgent(t, webDescriptor())
	exec := new(MockExecutor)
	exec.On("Execute", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.AnythingOfType("string"), false).Return(catalog.Result{Success: true})

	cfg := DefaultConfig()
	cfg.DryRun = false
	cfg.ExecTimeout = 5 * time.Second
	r := New(a, cfg, WithExecutor(exec))

	s, err := r.Step(context.Background(), []string{"ERROR: x"})
	require.NoError(t, err)
	assert.True(t, s.ActionSuccess())
	exec.AssertExpectations(t)
}

func TestStepRecorderErrorDoesNotAbort(t *testing.T) {
	a := newTestAgent(t, webDescriptor())
	exec := new(MockExecutor)
	exec.On("Execute", mock.Anything, mock.Anything, true).Return(catalog.Result{Success: true})
	rec := new(MockRecorder)
	rec.On("InsertStep", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	r := New(a, DefaultConfig(), WithExecutor(exec), WithRecorder(rec))
	_, err := r.Step(context.Background(), []string{"ERROR: x"})
	assert.NoError(t, err)
	rec.AssertNumberOfCalls(t, "InsertStep", 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	a := newTestAgent(t, webDescriptor())
	exec := new(MockExecutor)
	r := New(a, DefaultConfig(), WithExecutor(exec))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src, err := logsource.ScenarioSource("normal")
	require.NoError(t, err)

	res, err := r.Run(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.TotalSteps)
	assert.Equal(t, "web", res.FinalPolicy.AppName)
}

func TestRunWithRealCatalogDryRun(t *testing.T) {
	a := newTestAgent(t, webDescriptor())
	r := New(a, DefaultConfig())
	res, err := r.Run(context.Background(), logsource.FromBatches(
		logsource.Batch{Label: "a", Lines: []string{"CRITICAL: x", "FATAL: y"}},
	))
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	require.NotNil(t, res.Steps[0].Result)
	assert.Contains(t, res.Steps[0].Result.Message, "Would execute: ")
	assert.NotEmpty(t, r.RunID())
}

func TestStepRecordModel(t *testing.T) {
	snap := state.Snapshot{
		App:              "web",
		Env:              "dev",
		Status:           state.StatusDegraded,
		ErrorCount:       2,
		ErrorSeverity:    descriptor.SeverityHigh,
		PerformanceScore: 80,
	}
	rec := StepRecord{
		RunID:  "r",
		Step:   3,
		State:  snap,
		Action: "clear_cache",
		Result: &catalog.Result{Success: true, Message: "Would execute: rm"},
		Reward: -20,
		DryRun: true,
		At:     fixedNow,
	}
	m := rec.Model()
	assert.Equal(t, "degraded_dev_2_high", m.StateKey)
	assert.Equal(t, "degraded", m.Status)
	assert.Equal(t, 80, m.Score)
	assert.Equal(t, "Would execute: rm", m.Message)
	assert.Equal(t, fixedNow.UnixMilli(), m.CreatedAt)
	assert.JSONEq(t, `{"success":true,"action":"","executed":false,"message":"Would execute: rm","exit_code":0}`, string(m.Result))
	assert.Contains(t, string(m.Snapshot), `"error_count":2`)
}
