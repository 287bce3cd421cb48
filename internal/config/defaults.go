package config

import (
	"strings"

	"opsagent/internal/agent"
	"opsagent/internal/reward"
)

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9992"
	defaultDescriptorPath  = "configs/app_spec.json"
	defaultExecTimeout     = 60
	defaultBreakerLimit    = 3
	defaultBreakerCooldown = 300
	defaultFollowInterval  = 1000
	defaultFollowBurst     = 1
	defaultFollowBatch     = 200
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Agent.applyDefaults(keys)
	c.Reward.applyDefaults(keys)
	c.Follow.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (a *AgentConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("agent.descriptor_path", &a.DescriptorPath, defaultDescriptorPath),
		floatFieldDefault("agent.learning_rate", &a.LearningRate, agent.DefaultLearningRate),
		floatFieldDefault("agent.discount_factor", &a.DiscountFactor, agent.DefaultDiscountFactor),
		floatFieldDefault("agent.epsilon", &a.Epsilon, agent.DefaultEpsilon),
		boolFieldDefault("agent.dry_run", &a.DryRun, true),
		intFieldDefault("agent.exec_timeout_seconds", &a.ExecTimeoutSeconds, defaultExecTimeout),
		intFieldDefault("agent.breaker_threshold", &a.BreakerThreshold, defaultBreakerLimit),
		intFieldDefault("agent.breaker_cooldown_seconds", &a.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (r *RewardConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	def := reward.DefaultPolicy()
	applyFieldDefaults(keys,
		floatFieldDefault("reward.failure_penalty", &r.FailurePenalty, def.FailurePenalty),
		floatFieldDefault("reward.critical_exit_bonus", &r.CriticalExitBonus, def.CriticalExitBonus),
	)
}

func (f *FollowConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("follow.interval_ms", &f.IntervalMS, defaultFollowInterval),
		intFieldDefault("follow.burst", &f.Burst, defaultFollowBurst),
		intFieldDefault("follow.batch_lines", &f.BatchLines, defaultFollowBatch),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target == 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target == 0 },
		apply: func() { *target = def },
	}
}
