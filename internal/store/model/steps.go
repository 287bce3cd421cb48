package model

import "gorm.io/datatypes"

// DecisionStepModel maps to 'decision_steps': one row per agent cycle.
type DecisionStepModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	RunID      string         `gorm:"column:run_id;index"`
	Step       int            `gorm:"column:step"`
	App        string         `gorm:"column:app;index"`
	StateKey   string         `gorm:"column:state_key"`
	Env        string         `gorm:"column:env"`
	Status     string         `gorm:"column:status"`
	ErrorCount int            `gorm:"column:error_count"`
	Score      int            `gorm:"column:performance_score"`
	Action     string         `gorm:"column:action"` // empty when the agent did nothing
	DryRun     bool           `gorm:"column:dry_run"`
	Success    bool           `gorm:"column:success"`
	Reward     float64        `gorm:"column:reward"`
	Message    string         `gorm:"column:message"`
	Snapshot   datatypes.JSON `gorm:"column:snapshot"`
	Result     datatypes.JSON `gorm:"column:result"`
	CreatedAt  int64          `gorm:"column:created_at;index"`
}

func (DecisionStepModel) TableName() string { return "decision_steps" }

// RunSummaryModel is the aggregate row returned by run listings.
type RunSummaryModel struct {
	RunID       string  `gorm:"column:run_id"`
	App         string  `gorm:"column:app"`
	Steps       int     `gorm:"column:steps"`
	TotalReward float64 `gorm:"column:total_reward"`
	StartedAt   int64   `gorm:"column:started_at"`
	FinishedAt  int64   `gorm:"column:finished_at"`
}
