package repository

import (
	"context"
	"time"

	"vigia_backend/internal/model"

	"gorm.io/gorm"
)

// TrackRepository reads the curriculum: tracks, sections, sequences and cycles.
type TrackRepository struct {
	DB *gorm.DB
}

func NewTrackRepository(db *gorm.DB) *TrackRepository {
	return &TrackRepository{DB: db}
}

func (r *TrackRepository) FindTrackCycleByID(ctx context.Context, id uint) (*model.TrackCycle, error) {
	var cycle model.TrackCycle
	found, err := first(conn(ctx, r.DB).Where("id = ?", id), &cycle)
	if err != nil || !found {
		return nil, err
	}
	return &cycle, nil
}

// FindSequenceByID loads the sequence with its section, so callers can check track membership.
func (r *TrackRepository) FindSequenceByID(ctx context.Context, id uint) (*model.Sequence, error) {
	var seq model.Sequence
	found, err := first(conn(ctx, r.DB).Preload("Section").Where("id = ?", id), &seq)
	if err != nil || !found {
		return nil, err
	}
	return &seq, nil
}

// ListActiveSections returns the active sections of a track ordered by section
// order, each carrying only its active sequences ordered by sequence order.
func (r *TrackRepository) ListActiveSections(ctx context.Context, trackID uint) ([]model.Section, error) {
	var sections []model.Section
	err := conn(ctx, r.DB).
		Preload("Sequences", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order(orderColumn("order"))
		}).
		Where("track_id = ? AND active = ?", trackID, true).
		Order(orderColumn("order")).
		Find(&sections).Error
	return sections, err
}

// ListActiveMandatoryCycles returns the running cycles of a context that carry a
// mandatory slug, newest start first.
func (r *TrackRepository) ListActiveMandatoryCycles(ctx context.Context, contextID uint, now time.Time) ([]model.TrackCycle, error) {
	var cycles []model.TrackCycle
	err := conn(ctx, r.DB).
		Where("context_id = ? AND active = ? AND status = ?", contextID, true, model.TrackCycleActive).
		Where("start_date <= ? AND end_date >= ?", now, now).
		Where("mandatory_slug IS NOT NULL AND mandatory_slug <> ''").
		Order("start_date DESC").
		Find(&cycles).Error
	return cycles, err
}
