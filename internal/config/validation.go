package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Agent.validate(); err != nil {
		return err
	}
	if err := c.Reward.validate(); err != nil {
		return err
	}
	return c.Follow.validate()
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
	}
	return nil
}

func (a *AgentConfig) validate() error {
	if strings.TrimSpace(a.DescriptorPath) == "" && strings.TrimSpace(a.PolicyPath) == "" {
		return fmt.Errorf("agent.descriptor_path or agent.policy_path is required")
	}
	if err := a.Hyperparameters().Validate(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if a.ExecTimeoutSeconds < 0 {
		return fmt.Errorf("agent.exec_timeout_seconds must be >= 0")
	}
	if a.BreakerThreshold < 0 {
		return fmt.Errorf("agent.breaker_threshold must be >= 0")
	}
	if a.BreakerCooldownSeconds < 0 {
		return fmt.Errorf("agent.breaker_cooldown_seconds must be >= 0")
	}
	return nil
}

func (r *RewardConfig) validate() error {
	if r.FailurePenalty > 0 {
		return fmt.Errorf("reward.failure_penalty must be <= 0, got %g", r.FailurePenalty)
	}
	if r.CriticalExitBonus < 0 {
		return fmt.Errorf("reward.critical_exit_bonus must be >= 0, got %g", r.CriticalExitBonus)
	}
	return nil
}

func (f *FollowConfig) validate() error {
	if f.IntervalMS < 0 {
		return fmt.Errorf("follow.interval_ms must be >= 0")
	}
	if f.Burst <= 0 {
		return fmt.Errorf("follow.burst must be > 0")
	}
	if f.BatchLines <= 0 {
		return fmt.Errorf("follow.batch_lines must be > 0")
	}
	return nil
}
