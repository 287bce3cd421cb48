package agent

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"opsagent/internal/descriptor"
	"opsagent/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Name: "web",
		Port: 8000,
		ErrorPatterns: []descriptor.ErrorPattern{
			{Pattern: "ERROR", Severity: descriptor.SeverityHigh},
			{Pattern: "CRITICAL|FATAL", Severity: descriptor.SeverityCritical},
		},
		AvailableActions: []descriptor.ActionDefinition{
			{Name: "restart_service", Command: "systemctl restart web", RiskLevel: descriptor.RiskMedium},
		},
	}
}

func multiDescriptor() *descriptor.Descriptor {
	d := scenarioDescriptor()
	d.AvailableActions = append(d.AvailableActions,
		descriptor.ActionDefinition{Name: "clear_cache", Command: "rm -rf /tmp/cache", RiskLevel: descriptor.RiskSafe},
		descriptor.ActionDefinition{Name: "redeploy", Command: "./deploy.sh", RiskLevel: descriptor.RiskHigh},
	)
	return d
}

func newAgent(t *testing.T, d *descriptor.Descriptor, eps float64) *Agent {
	t.Helper()
	hp := DefaultHyperparameters()
	hp.Epsilon = eps
	a, err := New(d, WithHyperparameters(hp), WithSeed(42))
	require.NoError(t, err)
	return a
}

func TestNewDefaults(t *testing.T) {
	a, err := New(scenarioDescriptor())
	require.NoError(t, err)
	assert.Equal(t, Hyperparameters{LearningRate: 0.1, DiscountFactor: 0.9, Epsilon: 0.1}, a.Hyperparameters())
	_, ok := a.Current()
	assert.False(t, ok)
	_, ok = a.LastAction()
	assert.False(t, ok)
}

func TestNewRejectsBadHyperparameters(t *testing.T) {
	bad := []Hyperparameters{
		{LearningRate: 0, DiscountFactor: 0.9, Epsilon: 0.1},
		{LearningRate: 1.5, DiscountFactor: 0.9, Epsilon: 0.1},
		{LearningRate: 0.1, DiscountFactor: -0.1, Epsilon: 0.1},
		{LearningRate: 0.1, DiscountFactor: 0.9, Epsilon: 2},
	}
	for _, hp := range bad {
		_, err := New(scenarioDescriptor(), WithHyperparameters(hp))
		assert.ErrorIs(t, err, ErrHyperparameters, "%+v", hp)
	}
}

func TestNewRejectsInvalidDescriptor(t *testing.T) {
	d := scenarioDescriptor()
	d.ErrorPatterns[0].Pattern = "(unclosed"
	_, err := New(d)
	assert.ErrorIs(t, err, descriptor.ErrInvalid)
}

func TestScenarioDegradedFallsBackToExplore(t *testing.T) {
	a := newAgent(t, scenarioDescriptor(), 0)

	snap := a.ProcessLogs([]string{"ERROR: 500", "ERROR: db timeout"})
	assert.Equal(t, 2, snap.ErrorCount)
	assert.Equal(t, state.StatusDegraded, snap.Status)
	assert.Equal(t, descriptor.SeverityHigh, snap.ErrorSeverity)
	assert.Equal(t, 80, snap.PerformanceScore)

	action, ok := a.ChooseAction(nil)
	require.True(t, ok)
	assert.Equal(t, "restart_service", action)
	last, ok := a.LastAction()
	assert.True(t, ok)
	assert.Equal(t, "restart_service", last)
}

func TestScenarioCriticalLines(t *testing.T) {
	a := newAgent(t, scenarioDescriptor(), 0)
	snap := a.ProcessLogs([]string{"CRITICAL: db down", "ERROR: svc fail", "FATAL: crash"})
	assert.Equal(t, 3, snap.ErrorCount)
	assert.Equal(t, state.StatusDegraded, snap.Status)
	assert.Equal(t, descriptor.SeverityCritical, snap.ErrorSeverity)
}

func TestChooseActionNoState(t *testing.T) {
	a := newAgent(t, scenarioDescriptor(), 0)
	_, ok := a.ChooseAction(nil)
	assert.False(t, ok)
}

func TestChooseActionNoValidActions(t *testing.T) {
	a := newAgent(t, scenarioDescriptor(), 0)
	a.ProcessLogs([]string{"INFO: all good"})
	_, ok := a.ChooseAction(nil)
	assert.False(t, ok, "restart is the only action and the service is healthy")
	_, ok = a.LastAction()
	assert.False(t, ok)
}

func TestChooseActionExplicitState(t *testing.T) {
	a := newAgent(t, multiDescriptor(), 0)
	prod := state.Snapshot{Env: "prod", Status: state.StatusHealthy, ErrorSeverity: descriptor.SeverityNone}
	action, ok := a.ChooseAction(&prod)
	require.True(t, ok)
	assert.Equal(t, "clear_cache", action)
}

func TestChooseActionExploitsBestValue(t *testing.T) {
	a := newAgent(t, multiDescriptor(), 0)
	snap := a.ProcessLogs([]string{"ERROR: x"})
	a.table[snap.Key()] = map[string]float64{"clear_cache": 1.5, "redeploy": 0.4}

	for i := 0; i < 20; i++ {
		action, ok := a.ChooseAction(nil)
		require.True(t, ok)
		assert.Equal(t, "clear_cache", action)
	}
}

func TestChooseActionTieGoesToDefinitionOrder(t *testing.T) {
	a := newAgent(t, multiDescriptor(), 0)
	snap := a.ProcessLogs([]string{"ERROR: x"})
	a.table[snap.Key()] = map[string]float64{}

	action, ok := a.ChooseAction(nil)
	require.True(t, ok)
	assert.Equal(t, "restart_service", action)

	a.table[snap.Key()] = map[string]float64{"restart_service": -1, "redeploy": 0}
	action, _ = a.ChooseAction(nil)
	assert.Equal(t, "clear_cache", action, "absent entry reads as 0 and precedes redeploy")
}

func TestChooseActionIgnoresInvalidBestValue(t *testing.T) {
	a := newAgent(t, multiDescriptor(), 0)
	snap := a.ProcessLogs([]string{"ERROR: x", "environment: prod"})
	a.table[snap.Key()] = map[string]float64{"redeploy": 100, "clear_cache": 1}
	action, _ := a.ChooseAction(nil)
	assert.Equal(t, "clear_cache", action)
}

func TestChooseActionExploresWithEpsilonOne(t *testing.T) {
	a, err := New(multiDescriptor(), WithHyperparameters(Hyperparameters{LearningRate: 0.1, DiscountFactor: 0.9, Epsilon: 1}), WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	snap := a.ProcessLogs([]string{"ERROR: x"})
	a.table[snap.Key()] = map[string]float64{"clear_cache": 100}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		action, _ := a.ChooseAction(nil)
		seen[action] = true
	}
	assert.Len(t, seen, 3)
}

func TestUpdateValueNoopWithoutStateOrAction(t *testing.T) {
	a := newAgent(t, scenarioDescriptor(), 0)
	a.UpdateValue(10, nil)
	assert.Empty(t, a.Table())

	a.ProcessLogs([]string{"ERROR: x"})
	a.UpdateValue(10, nil)
	assert.Empty(t, a.Table())
}

func TestUpdateValueZeroRewardLeavesZero(t *testing.T) {
	a := newAgent(t, scenarioDescriptor(), 0)
	snap := a.ProcessLogs([]string{"ERROR: x"})
	a.ChooseAction(nil)

	a.UpdateValue(0, nil)
	assert.Equal(t, 0.0, a.Value(snap.Key(), "restart_service"))
	assert.Contains(t, a.Table(), snap.Key(), "row is created on write")
}

func TestUpdateValueRule(t *testing.T) {
	a := newAgent(t, multiDescriptor(), 0)
	snap := a.ProcessLogs([]string{"ERROR: x"})
	a.table[snap.Key()] = map[string]float64{"clear_cache": 2}
	action, _ := a.ChooseAction(nil)
	require.Equal(t, "clear_cache", action)

	a.UpdateValue(10, nil)
	// 2 + 0.1 * (10 + 0.9*0 - 2)
	assert.InDelta(t, 2.8, a.Value(snap.Key(), "clear_cache"), 1e-12)

	next := state.Snapshot{Status: state.StatusHealthy, Env: "dev", ErrorSeverity: descriptor.SeverityNone}
	a.table[next.Key()] = map[string]float64{"clear_cache": 5, "redeploy": 3}
	a.UpdateValue(-1, &next)
	// 2.8 + 0.1 * (-1 + 0.9*5 - 2.8)
	assert.InDelta(t, 2.87, a.Value(snap.Key(), "clear_cache"), 1e-12)
}

func TestUpdateValueBootstrapCountsAbsentAsZero(t *testing.T) {
	a := newAgent(t, multiDescriptor(), 0)
	snap := a.ProcessLogs([]string{"ERROR: x"})
	a.ChooseAction(nil)
	last, _ := a.LastAction()

	next := state.Snapshot{Status: state.StatusCritical, Env: "dev", ErrorCount: 7, ErrorSeverity: descriptor.SeverityHigh}
	a.table[next.Key()] = map[string]float64{"restart_service": -4}
	a.UpdateValue(1, &next)
	assert.InDelta(t, 0.1, a.Value(snap.Key(), last), 1e-12)

	unknown := state.Snapshot{Status: state.StatusDegraded, Env: "qa", ErrorCount: 1, ErrorSeverity: descriptor.SeverityLow}
	a.UpdateValue(0, &unknown)
	assert.InDelta(t, 0.09, a.Value(snap.Key(), last), 1e-12)
}

func TestSummary(t *testing.T) {
	a := newAgent(t, multiDescriptor(), 0.25)
	s := a.Summary()
	assert.Equal(t, "web", s.AppName)
	assert.Equal(t, 0, s.TableSize)
	assert.Equal(t, []string{"restart_service", "clear_cache", "redeploy"}, s.AvailableActions)
	assert.Nil(t, s.CurrentState)
	assert.Equal(t, 0.25, s.Epsilon)

	a.ProcessLogs([]string{"ERROR: x"})
	a.ChooseAction(nil)
	a.UpdateValue(1, nil)
	s = a.Summary()
	assert.Equal(t, 1, s.TableSize)
	require.NotNil(t, s.CurrentState)
	assert.Equal(t, 1, s.CurrentState.ErrorCount)
}

func TestTableIsACopy(t *testing.T) {
	a := newAgent(t, scenarioDescriptor(), 0)
	snap := a.ProcessLogs([]string{"ERROR: x"})
	a.ChooseAction(nil)
	a.UpdateValue(5, nil)

	cp := a.Table()
	cp[snap.Key()]["restart_service"] = 99
	assert.InDelta(t, 0.5, a.Value(snap.Key(), "restart_service"), 1e-12)
}

func TestExecuteActionDelegates(t *testing.T) {
	a := newAgent(t, scenarioDescriptor(), 0)
	res := a.ExecuteAction(context.Background(), "restart_service", true)
	assert.True(t, res.Success)
	assert.Equal(t, "Would execute: systemctl restart web", res.Message)

	res = a.ExecuteAction(context.Background(), "nope", true)
	assert.False(t, res.Success)
	assert.True(t, res.Unknown)
}

func TestWithClockStampsSnapshots(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a, err := New(scenarioDescriptor(), WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	assert.Equal(t, at, a.ProcessLogs(nil).Timestamp)
}

func TestPolicyRoundTrip(t *testing.T) {
	hp := Hyperparameters{LearningRate: 0.35, DiscountFactor: 0.55, Epsilon: 0.05}
	a, err := New(multiDescriptor(), WithHyperparameters(hp), WithSeed(3))
	require.NoError(t, err)
	batches := [][]string{
		{"ERROR: a"},
		{"ERROR: a", "FATAL: b", "env: prod"},
		{"CRITICAL x", "CRITICAL y", "ERROR z", "ERROR w", "ERROR v"},
	}
	for i := 0; i < 30; i++ {
		a.ProcessLogs(batches[i%len(batches)])
		if _, ok := a.ChooseAction(nil); ok {
			a.UpdateValue(float64(i%7)-2.3333333333333335, nil)
		}
	}
	if a.table["degraded_dev_1_high"] == nil {
		a.table["degraded_dev_1_high"] = map[string]float64{}
	}
	a.table["degraded_dev_1_high"]["clear_cache"] = 0.1 + 0.2

	path := filepath.Join(t.TempDir(), "policies", "web.json")
	require.NoError(t, a.SavePolicy(path))

	fresh, err := New(multiDescriptor())
	require.NoError(t, err)
	require.NoError(t, fresh.LoadPolicy(path))

	assert.Equal(t, a.Table(), fresh.Table())
	assert.Equal(t, hp, fresh.Hyperparameters())

	restored, err := NewFromPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, a.Table(), restored.Table())
	assert.Equal(t, "web", restored.Descriptor().Name)
}

func TestPolicyFileLayout(t *testing.T) {
	a := newAgent(t, scenarioDescriptor(), 0)
	a.ProcessLogs([]string{"ERROR: x"})
	a.ChooseAction(nil)
	a.UpdateValue(3, nil)
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, a.SavePolicy(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "app_spec")
	assert.Contains(t, doc, "q_table")
	assert.Contains(t, doc, "hyperparameters")
	assert.Contains(t, string(data), "\n  \"q_table\"")
}

func TestLoadPolicyDefaultsMissingHyperparameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"q_table": {"degraded_dev_1_high": {"restart_service": 1.25}}, "hyperparameters": {"epsilon": 0.3}}`), 0o644))

	a := newAgent(t, scenarioDescriptor(), 0)
	require.NoError(t, a.LoadPolicy(path))
	assert.Equal(t, Hyperparameters{LearningRate: 0.1, DiscountFactor: 0.9, Epsilon: 0.3}, a.Hyperparameters())
	assert.Equal(t, 1.25, a.Value("degraded_dev_1_high", "restart_service"))
}

func TestLoadPolicyRejectsUnknownAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"q_table": {"k": {"drop_database": 1}}}`), 0o644))

	a := newAgent(t, scenarioDescriptor(), 0)
	err := a.LoadPolicy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop_database")
	assert.Empty(t, a.Table())
}

func TestLoadPolicyNullRowIsWritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"q_table": {"healthy_dev_0_none": null}}`), 0o644))

	a := newAgent(t, multiDescriptor(), 0)
	require.NoError(t, a.LoadPolicy(path))
	require.Contains(t, a.Table(), "healthy_dev_0_none")

	a.ProcessLogs(nil)
	action, ok := a.ChooseAction(nil)
	require.True(t, ok)
	assert.NotPanics(t, func() { a.UpdateValue(1, nil) })
	assert.InDelta(t, 0.1, a.Value("healthy_dev_0_none", action), 1e-9)
}

func TestNewFromPolicyValidatesAppSpec(t *testing.T) {
	cases := []struct {
		name string
		spec string
	}{
		{"missing port", `{"name": "x", "error_patterns": [], "available_actions": [{"name": "a", "command": "true", "risk_level": "safe"}]}`},
		{"missing patterns", `{"name": "x", "port": 80, "available_actions": [{"name": "a", "command": "true", "risk_level": "safe"}]}`},
		{"bad severity", `{"name": "x", "port": 80, "error_patterns": [{"pattern": "E", "severity": "loud"}], "available_actions": [{"name": "a", "command": "true", "risk_level": "safe"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "p.json")
			require.NoError(t, os.WriteFile(path, []byte(`{"app_spec": `+tc.spec+`, "q_table": {}}`), 0o644))
			_, err := NewFromPolicy(path)
			assert.ErrorIs(t, err, descriptor.ErrInvalid)
		})
	}
}

func TestNewFromPolicyKeepsUnknownAppSpecKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	spec := `{"name": "x", "port": 80, "owner": "payments", "error_patterns": [], "available_actions": [{"name": "a", "command": "true", "risk_level": "safe"}]}`
	require.NoError(t, os.WriteFile(path, []byte(`{"app_spec": `+spec+`, "q_table": {"healthy_dev_0_none": {"a": 2}}}`), 0o644))

	a, err := NewFromPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.Value("healthy_dev_0_none", "a"))
	data, err := json.Marshal(a.Descriptor())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"owner":"payments"`)
}

func TestLoadPolicyRejectsBadHyperparameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hyperparameters": {"learning_rate": 0}}`), 0o644))
	a := newAgent(t, scenarioDescriptor(), 0)
	assert.ErrorIs(t, a.LoadPolicy(path), ErrHyperparameters)
}

func TestNewFromPolicyRequiresAppSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"q_table": {}}`), 0o644))
	_, err := NewFromPolicy(path)
	assert.ErrorIs(t, err, descriptor.ErrInvalid)
}

func TestConcurrentReadersDuringUpdates(t *testing.T) {
	a := newAgent(t, multiDescriptor(), 0.2)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = a.Summary()
				_ = a.Table()
			}
		}
	}()
	for i := 0; i < 200; i++ {
		a.ProcessLogs([]string{"ERROR: x"})
		if _, ok := a.ChooseAction(nil); ok {
			a.UpdateValue(1, nil)
		}
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 1, a.Summary().TableSize)
}
