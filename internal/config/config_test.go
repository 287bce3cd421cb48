package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "min.yaml", `
agent:
  descriptor_path: app.json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9992", cfg.App.HTTPAddr)
	assert.Equal(t, "app.json", cfg.Agent.DescriptorPath)
	assert.Equal(t, 0.1, cfg.Agent.LearningRate)
	assert.Equal(t, 0.9, cfg.Agent.DiscountFactor)
	assert.Equal(t, 0.1, cfg.Agent.Epsilon)
	assert.True(t, cfg.Agent.DryRun)
	assert.Equal(t, time.Minute, cfg.Agent.ExecTimeout())
	assert.Equal(t, 3, cfg.Agent.BreakerThreshold)
	assert.Equal(t, -10.0, cfg.Reward.FailurePenalty)
	assert.Equal(t, 20.0, cfg.Reward.CriticalExitBonus)
	assert.False(t, cfg.Store.Enabled())
	assert.Equal(t, time.Second, cfg.Follow.Interval())
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "zero.yaml", `
agent:
  descriptor_path: app.json
  epsilon: 0
  discount_factor: 0
  dry_run: false
  exec_timeout_seconds: 0
  breaker_threshold: 0
reward:
  critical_exit_bonus: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Agent.Epsilon)
	assert.Equal(t, 0.0, cfg.Agent.DiscountFactor)
	assert.False(t, cfg.Agent.DryRun)
	assert.Equal(t, time.Duration(0), cfg.Agent.ExecTimeout())
	assert.Equal(t, 0, cfg.Agent.BreakerThreshold)
	assert.Equal(t, 0.0, cfg.Reward.CriticalExitBonus)
	assert.Equal(t, -10.0, cfg.Reward.FailurePenalty)
}

func TestLoadIncludesOverrideInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
app:
  log_level: debug
agent:
  descriptor_path: base.json
  learning_rate: 0.5
`)
	path := writeFile(t, dir, "main.yaml", `
include:
  - base.yaml
agent:
  descriptor_path: main.json
store:
  path: steps.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "main.json", cfg.Agent.DescriptorPath)
	assert.Equal(t, 0.5, cfg.Agent.LearningRate)
	assert.True(t, cfg.Store.Enabled())
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"learning rate": "agent:\n  descriptor_path: x\n  learning_rate: 2\n",
		"epsilon":       "agent:\n  descriptor_path: x\n  epsilon: -0.5\n",
		"log level":     "app:\n  log_level: loud\nagent:\n  descriptor_path: x\n",
		"penalty sign":  "agent:\n  descriptor_path: x\nreward:\n  failure_penalty: 5\n",
		"timeout":       "agent:\n  descriptor_path: x\n  exec_timeout_seconds: -1\n",
		"burst":         "agent:\n  descriptor_path: x\nfollow:\n  burst: -1\n",
		"no descriptor": "agent:\n  descriptor_path: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "bad.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, validate(cfg))
	assert.True(t, cfg.Agent.DryRun)
	assert.Equal(t, "configs/app_spec.json", cfg.Agent.DescriptorPath)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvPath, "/etc/opsagent.yaml")
	assert.Equal(t, "flag.yaml", ResolvePath(" flag.yaml "))
	assert.Equal(t, "/etc/opsagent.yaml", ResolvePath(""))

	t.Setenv(EnvPath, "")
	assert.Equal(t, "", ResolvePath(""))
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "opsagent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "configs/app_spec.json", cfg.Agent.DescriptorPath)
	assert.True(t, cfg.Store.Enabled())
	assert.Equal(t, 200, cfg.Follow.BatchLines)
}
