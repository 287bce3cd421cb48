package runner

import (
	"encoding/json"
	"time"

	"opsagent/internal/agent"
	"opsagent/internal/catalog"
	"opsagent/internal/state"
	"opsagent/internal/store/model"

	"gorm.io/datatypes"
)

// StepRecord describes one decision cycle.
type StepRecord struct {
	RunID  string          `json:"run_id"`
	Step   int             `json:"step"`
	Label  string          `json:"scenario,omitempty"`
	State  state.Snapshot  `json:"state"`
	Action string          `json:"action"`
	Result *catalog.Result `json:"result,omitempty"`
	Reward float64         `json:"reward"`
	// Suppressed is set when the breaker kept a live action from running.
	Suppressed bool      `json:"suppressed,omitempty"`
	DryRun     bool      `json:"dry_run"`
	At         time.Time `json:"at"`
}

// ActionSuccess is true for cycles without an action.
func (s StepRecord) ActionSuccess() bool {
	return s.Result == nil || s.Result.Success
}

// Model converts the record into its decision_steps row.
func (s StepRecord) Model() *model.DecisionStepModel {
	row := &model.DecisionStepModel{
		RunID:      s.RunID,
		Step:       s.Step,
		App:        s.State.App,
		StateKey:   s.State.Key(),
		Env:        s.State.Env,
		Status:     string(s.State.Status),
		ErrorCount: s.State.ErrorCount,
		Score:      s.State.PerformanceScore,
		Action:     s.Action,
		DryRun:     s.DryRun,
		Success:    s.ActionSuccess(),
		Reward:     s.Reward,
		CreatedAt:  s.At.UnixMilli(),
	}
	if snap, err := json.Marshal(s.State); err == nil {
		row.Snapshot = datatypes.JSON(snap)
	}
	if s.Result != nil {
		row.Message = s.Result.Message
		if row.Message == "" {
			row.Message = s.Result.Error
		}
		if res, err := json.Marshal(s.Result); err == nil {
			row.Result = datatypes.JSON(res)
		}
	} else {
		row.Message = "no action"
	}
	return row
}

// EpisodeResult is the outcome of Run, written as the demo results document.
type EpisodeResult struct {
	RunID       string              `json:"run_id"`
	AppName     string              `json:"app_name"`
	TotalSteps  int                 `json:"total_steps"`
	TotalReward float64             `json:"total_reward"`
	Steps       []StepRecord        `json:"results"`
	FinalPolicy agent.PolicySummary `json:"final_policy"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
}
