package repository

import (
	"context"

	"vigia_backend/internal/model"

	"gorm.io/gorm"
)

type ParticipationRepository struct {
	DB *gorm.DB
}

func NewParticipationRepository(db *gorm.DB) *ParticipationRepository {
	return &ParticipationRepository{DB: db}
}

func (r *ParticipationRepository) FindByID(ctx context.Context, id uint) (*model.Participation, error) {
	var p model.Participation
	found, err := first(conn(ctx, r.DB).Where("id = ?", id), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// LockByID loads the participation with a row lock held until the surrounding
// transaction ends.
func (r *ParticipationRepository) LockByID(ctx context.Context, id uint) (*model.Participation, error) {
	var p model.Participation
	found, err := first(conn(ctx, r.DB).Clauses(forUpdate()).Where("id = ?", id), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}
