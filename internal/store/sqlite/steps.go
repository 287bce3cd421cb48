package sqlite

import (
	"context"
	"strings"

	"opsagent/internal/store/model"

	"gorm.io/gorm"
)

type stepRepo struct {
	db *gorm.DB
}

func NewStepRepo(db *gorm.DB) *stepRepo {
	return &stepRepo{db: db}
}

func (r *stepRepo) InsertStep(ctx context.Context, step *model.DecisionStepModel) error {
	return r.db.WithContext(ctx).Create(step).Error
}

func (r *stepRepo) ListRecent(ctx context.Context, limit int) ([]model.DecisionStepModel, error) {
	var rows []model.DecisionStepModel
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *stepRepo) ListRun(ctx context.Context, runID string) ([]model.DecisionStepModel, error) {
	var rows []model.DecisionStepModel
	err := r.db.WithContext(ctx).
		Where("run_id = ?", strings.TrimSpace(runID)).
		Order("step ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *stepRepo) ListRuns(ctx context.Context, limit int) ([]model.RunSummaryModel, error) {
	var rows []model.RunSummaryModel
	q := r.db.WithContext(ctx).
		Model(&model.DecisionStepModel{}).
		Select("run_id, MAX(app) AS app, COUNT(*) AS steps, SUM(reward) AS total_reward, MIN(created_at) AS started_at, MAX(created_at) AS finished_at").
		Group("run_id").
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
