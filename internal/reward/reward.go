// Package reward scores a decision cycle from the snapshots around it. The agent
// never computes rewards itself; the runner feeds these values to UpdateValue.
package reward

import (
	"opsagent/internal/catalog"
	"opsagent/internal/state"
)

const (
	DefaultFailurePenalty    = -10.0
	DefaultCriticalExitBonus = 20.0
	// baselineScore stands in for the previous score on the first cycle.
	baselineScore = 50
)

// Policy is the reference reward: failed actions are penalized, otherwise the
// reward is the change in performance score plus a bonus for leaving critical.
type Policy struct {
	FailurePenalty    float64
	CriticalExitBonus float64
}

func DefaultPolicy() Policy {
	return Policy{FailurePenalty: DefaultFailurePenalty, CriticalExitBonus: DefaultCriticalExitBonus}
}

// Score computes the reward for moving from prev (nil on the first cycle) to next
// after an action produced res.
func (p Policy) Score(prev *state.Snapshot, next state.Snapshot, res catalog.Result) float64 {
	if !res.Success {
		return p.FailurePenalty
	}
	oldScore := baselineScore
	if prev != nil {
		oldScore = prev.PerformanceScore
	}
	r := float64(next.PerformanceScore - oldScore)
	if prev != nil && prev.Status == state.StatusCritical && next.Status != state.StatusCritical {
		r += p.CriticalExitBonus
	}
	return r
}
