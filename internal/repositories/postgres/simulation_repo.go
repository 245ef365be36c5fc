package postgres

import (
	"context"
	"errors"

	"github.com/talentis/proctor/internal/models"
	"github.com/talentis/proctor/internal/utils"
	"gorm.io/gorm"
)

type SimulationRepo interface {
	Create(ctx context.Context, sim *models.Simulation) error
	GetByID(ctx context.Context, id int64) (*models.Simulation, error)
	ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.Simulation, error)
}

type simulationRepo struct {
	db *gorm.DB
}

func NewSimulationRepo(db *gorm.DB) SimulationRepo {
	return &simulationRepo{db: db}
}

func (r *simulationRepo) Create(ctx context.Context, sim *models.Simulation) error {
	return r.db.WithContext(ctx).Create(sim).Error
}

func (r *simulationRepo) GetByID(ctx context.Context, id int64) (*models.Simulation, error) {
	var row models.Simulation
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *simulationRepo) ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.Simulation, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Simulation
	err := r.db.WithContext(ctx).
		Where("created_by = ?", createdBy).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
