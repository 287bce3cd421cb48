// Package state turns batches of log lines into health snapshots.
package state

import (
	"fmt"
	"time"

	"opsagent/internal/descriptor"
)

// Status is the coarse health category derived from the error count.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// DefaultEnv is assumed when no environment marker appears in a batch.
const DefaultEnv = "dev"

const (
	criticalThreshold = 5
	scorePerError     = 10
	maxScore          = 100
	vectorErrorCap    = 10
)

// Snapshot is the health summary of one log batch.
type Snapshot struct {
	App              string              `json:"app"`
	Env              string              `json:"env"`
	Status           Status              `json:"status"`
	ErrorCount       int                 `json:"error_count"`
	ErrorSeverity    descriptor.Severity `json:"error_severity"`
	PerformanceScore int                 `json:"performance_score"`
	Timestamp        time.Time           `json:"timestamp"`
}

// StatusFor maps an error count to a status: 0 healthy, 1-4 degraded, 5+ critical.
func StatusFor(errorCount int) Status {
	switch {
	case errorCount <= 0:
		return StatusHealthy
	case errorCount < criticalThreshold:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

// ScoreFor returns max(0, 100 - 10*errorCount), clamped to [0,100].
func ScoreFor(errorCount int) int {
	score := maxScore - scorePerError*errorCount
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// Key is the value-table index for the snapshot. The performance score is left
// out so batches with the same error profile share a row.
func (s Snapshot) Key() string {
	return fmt.Sprintf("%s_%s_%d_%s", s.Status, s.Env, s.ErrorCount, s.ErrorSeverity)
}

var (
	statusCode = map[Status]float64{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	envCode    = map[string]float64{"dev": 0, "stage": 1, "prod": 2}
)

// Vector encodes the snapshot numerically for external RL tooling:
// [status, env, min(error_count, 10), severity rank, score/100].
// Unknown environments encode as dev.
func (s Snapshot) Vector() []float64 {
	count := s.ErrorCount
	if count > vectorErrorCap {
		count = vectorErrorCap
	}
	return []float64{
		statusCode[s.Status],
		envCode[s.Env],
		float64(count),
		float64(s.ErrorSeverity.Rank()),
		float64(s.PerformanceScore) / maxScore,
	}
}

// Map is the open-record view used at serialization boundaries.
func (s Snapshot) Map() map[string]any {
	return map[string]any{
		"app":               s.App,
		"env":               s.Env,
		"status":            string(s.Status),
		"error_count":       s.ErrorCount,
		"error_severity":    string(s.ErrorSeverity),
		"performance_score": s.PerformanceScore,
		"timestamp":         s.Timestamp.Format(time.RFC3339Nano),
	}
}
