package repository

import (
	"context"

	"vigia_backend/internal/model"

	"gorm.io/gorm"
)

type FormRepository struct {
	DB *gorm.DB
}

func NewFormRepository(db *gorm.DB) *FormRepository {
	return &FormRepository{DB: db}
}

// FindVersionByID loads a form version together with its owning form.
func (r *FormRepository) FindVersionByID(ctx context.Context, id uint) (*model.FormVersion, error) {
	var v model.FormVersion
	found, err := first(conn(ctx, r.DB).Preload("Form").Where("id = ?", id), &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}
