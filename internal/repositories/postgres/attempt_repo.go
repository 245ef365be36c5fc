package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/talentis/proctor/internal/models"
	"github.com/talentis/proctor/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptRepo interface {
	Create(ctx context.Context, a *models.SimulationAttempt) error
	GetByID(ctx context.Context, id int64) (*models.SimulationAttempt, error)
	UpdateResponses(ctx context.Context, id int64, responses datatypes.JSON) error
	SetStatus(ctx context.Context, id int64, status string) error
	SetMedia(ctx context.Context, id int64, videoURL, screenURL *string) error
	SetAnalysis(ctx context.Context, id int64, transcript string, behavior datatypes.JSON, flags pq.StringArray, risk float64) error
	MarkFinished(ctx context.Context, id int64, finishedAt time.Time) error
}

type attemptRepo struct {
	db *gorm.DB
}

func NewAttemptRepo(db *gorm.DB) AttemptRepo {
	return &attemptRepo{db: db}
}

func (r *attemptRepo) Create(ctx context.Context, a *models.SimulationAttempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *attemptRepo) GetByID(ctx context.Context, id int64) (*models.SimulationAttempt, error) {
	var row models.SimulationAttempt
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *attemptRepo) UpdateResponses(ctx context.Context, id int64, responses datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&models.SimulationAttempt{}).
		Where("id = ?", id).
		Update("responses", responses).Error
}

func (r *attemptRepo) SetStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.SimulationAttempt{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *attemptRepo) SetMedia(ctx context.Context, id int64, videoURL, screenURL *string) error {
	updates := map[string]any{}
	if videoURL != nil {
		updates["video_url"] = *videoURL
	}
	if screenURL != nil {
		updates["screen_url"] = *screenURL
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.SimulationAttempt{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *attemptRepo) SetAnalysis(ctx context.Context, id int64, transcript string, behavior datatypes.JSON, flags pq.StringArray, risk float64) error {
	return r.db.WithContext(ctx).
		Model(&models.SimulationAttempt{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"transcript":        transcript,
			"behavior_analysis": behavior,
			"proctoring_flags":  flags,
			"cheating_risk":     risk,
			"status":            models.AttemptProcessed,
		}).Error
}

func (r *attemptRepo) MarkFinished(ctx context.Context, id int64, finishedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SimulationAttempt{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      models.AttemptProcessing,
			"finished_at": finishedAt.UTC(),
		}).Error
}
