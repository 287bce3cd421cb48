package statushttp

import (
	"encoding/json"
	"time"

	"opsagent/internal/agent"
	"opsagent/internal/descriptor"
	"opsagent/internal/store/model"
)

type ActionView struct {
	Name       string               `json:"name"`
	Command    string               `json:"command"`
	RiskLevel  descriptor.RiskLevel `json:"risk_level"`
	Category   string               `json:"category"`
	Normalized string               `json:"normalized"`
	Restart    bool                 `json:"restart,omitempty"`
}

type TableView struct {
	Hyperparameters agent.Hyperparameters `json:"hyperparameters"`
	States          int                   `json:"states"`
	Entries         []agent.Entry         `json:"entries"`
}

// ExtractRequest carries the lines to classify. A text/plain body is accepted
// as one line per row instead.
type ExtractRequest struct {
	Lines []string `json:"lines"`
}

type StepView struct {
	ID         int64           `json:"id"`
	RunID      string          `json:"run_id"`
	Step       int             `json:"step"`
	App        string          `json:"app"`
	StateKey   string          `json:"state_key"`
	Status     string          `json:"status"`
	ErrorCount int             `json:"error_count"`
	Score      int             `json:"performance_score"`
	Action     string          `json:"action,omitempty"`
	DryRun     bool            `json:"dry_run"`
	Success    bool            `json:"success"`
	Reward     float64         `json:"reward"`
	Message    string          `json:"message,omitempty"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func stepView(m model.DecisionStepModel) StepView {
	v := StepView{
		ID:         m.ID,
		RunID:      m.RunID,
		Step:       m.Step,
		App:        m.App,
		StateKey:   m.StateKey,
		Status:     m.Status,
		ErrorCount: m.ErrorCount,
		Score:      m.Score,
		Action:     m.Action,
		DryRun:     m.DryRun,
		Success:    m.Success,
		Reward:     m.Reward,
		Message:    m.Message,
		CreatedAt:  time.UnixMilli(m.CreatedAt).UTC(),
	}
	if len(m.Snapshot) > 0 {
		v.Snapshot = json.RawMessage(m.Snapshot)
	}
	if len(m.Result) > 0 {
		v.Result = json.RawMessage(m.Result)
	}
	return v
}

type RunView struct {
	RunID       string    `json:"run_id"`
	App         string    `json:"app"`
	Steps       int       `json:"steps"`
	TotalReward float64   `json:"total_reward"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

func runView(m model.RunSummaryModel) RunView {
	return RunView{
		RunID:       m.RunID,
		App:         m.App,
		Steps:       m.Steps,
		TotalReward: m.TotalReward,
		StartedAt:   time.UnixMilli(m.StartedAt).UTC(),
		FinishedAt:  time.UnixMilli(m.FinishedAt).UTC(),
	}
}
