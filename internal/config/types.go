package config

import (
	"strings"
	"time"

	"opsagent/internal/agent"
	"opsagent/internal/reward"
)

// Config is the opsagent process configuration.
type Config struct {
	App    AppConfig    `toml:"app"`
	Agent  AgentConfig  `toml:"agent"`
	Reward RewardConfig `toml:"reward"`
	Store  StoreConfig  `toml:"store"`
	Follow FollowConfig `toml:"follow"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

// AgentConfig selects the application descriptor and tunes the learner and
// the executor around it.
type AgentConfig struct {
	DescriptorPath         string  `toml:"descriptor_path"`
	PolicyPath             string  `toml:"policy_path"`
	LearningRate           float64 `toml:"learning_rate"`
	DiscountFactor         float64 `toml:"discount_factor"`
	Epsilon                float64 `toml:"epsilon"`
	Seed                   int64   `toml:"seed"`
	DryRun                 bool    `toml:"dry_run"`
	ExecTimeoutSeconds     int     `toml:"exec_timeout_seconds"`
	BreakerThreshold       int     `toml:"breaker_threshold"`
	BreakerCooldownSeconds int     `toml:"breaker_cooldown_seconds"`
}

func (a AgentConfig) Hyperparameters() agent.Hyperparameters {
	return agent.Hyperparameters{
		LearningRate:   a.LearningRate,
		DiscountFactor: a.DiscountFactor,
		Epsilon:        a.Epsilon,
	}
}

// ExecTimeout is zero when live commands may run unbounded.
func (a AgentConfig) ExecTimeout() time.Duration {
	if a.ExecTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.ExecTimeoutSeconds) * time.Second
}

func (a AgentConfig) BreakerCooldown() time.Duration {
	return time.Duration(a.BreakerCooldownSeconds) * time.Second
}

type RewardConfig struct {
	FailurePenalty    float64 `toml:"failure_penalty"`
	CriticalExitBonus float64 `toml:"critical_exit_bonus"`
}

func (r RewardConfig) Policy() reward.Policy {
	return reward.Policy{
		FailurePenalty:    r.FailurePenalty,
		CriticalExitBonus: r.CriticalExitBonus,
	}
}

// StoreConfig points at the SQLite step log. An empty path disables it.
type StoreConfig struct {
	Path string `toml:"path"`
}

func (s StoreConfig) Enabled() bool { return strings.TrimSpace(s.Path) != "" }

// FollowConfig drives the tailing log source used by serve.
type FollowConfig struct {
	Path       string `toml:"path"`
	IntervalMS int    `toml:"interval_ms"`
	Burst      int    `toml:"burst"`
	BatchLines int    `toml:"batch_lines"`
}

func (f FollowConfig) Interval() time.Duration {
	return time.Duration(f.IntervalMS) * time.Millisecond
}

// keySet tracks the dotted paths explicitly present in the config files, so a
// zero written on purpose is not overwritten by a default.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
