package repository

import (
	"context"

	"vigia_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressRepository stores track and sequence progress rows.
type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) FindTrackProgressByID(ctx context.Context, id uint) (*model.TrackProgress, error) {
	var tp model.TrackProgress
	found, err := first(conn(ctx, r.DB).Where("id = ?", id), &tp)
	if err != nil || !found {
		return nil, err
	}
	return &tp, nil
}

// LockTrackProgress takes SELECT ... FOR UPDATE on the row. Concurrent writers of
// the same track progress queue here until the holder's transaction ends.
func (r *ProgressRepository) LockTrackProgress(ctx context.Context, id uint) (*model.TrackProgress, error) {
	var tp model.TrackProgress
	found, err := first(conn(ctx, r.DB).Clauses(forUpdate()).Where("id = ?", id), &tp)
	if err != nil || !found {
		return nil, err
	}
	return &tp, nil
}

func (r *ProgressRepository) FindTrackProgress(ctx context.Context, participationID, trackCycleID uint) (*model.TrackProgress, error) {
	var tp model.TrackProgress
	found, err := first(conn(ctx, r.DB).
		Where("participation_id = ? AND track_cycle_id = ?", participationID, trackCycleID), &tp)
	if err != nil || !found {
		return nil, err
	}
	return &tp, nil
}

func (r *ProgressRepository) CreateTrackProgress(ctx context.Context, tp *model.TrackProgress) error {
	return translateDuplicate(conn(ctx, r.DB).Create(tp).Error, "track progress")
}

func (r *ProgressRepository) SaveTrackProgress(ctx context.Context, tp *model.TrackProgress) error {
	return conn(ctx, r.DB).Save(tp).Error
}

func (r *ProgressRepository) CreateSequenceProgresses(ctx context.Context, rows []*model.SequenceProgress) error {
	if len(rows) == 0 {
		return nil
	}
	return translateDuplicate(conn(ctx, r.DB).Create(&rows).Error, "sequence progress")
}

func (r *ProgressRepository) FindSequenceProgress(ctx context.Context, trackProgressID, sequenceID uint) (*model.SequenceProgress, error) {
	var sp model.SequenceProgress
	found, err := first(conn(ctx, r.DB).
		Where("track_progress_id = ? AND sequence_id = ?", trackProgressID, sequenceID), &sp)
	if err != nil || !found {
		return nil, err
	}
	return &sp, nil
}

func (r *ProgressRepository) ListSequenceProgress(ctx context.Context, trackProgressID uint) ([]model.SequenceProgress, error) {
	var rows []model.SequenceProgress
	err := conn(ctx, r.DB).
		Where("track_progress_id = ?", trackProgressID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// UpsertSequenceProgress returns the row for the pair, inserting a not_started
// row first when none exists. Calling it repeatedly yields the same row.
func (r *ProgressRepository) UpsertSequenceProgress(ctx context.Context, trackProgressID, sequenceID uint) (*model.SequenceProgress, error) {
	db := conn(ctx, r.DB)
	row := &model.SequenceProgress{
		TrackProgressID: trackProgressID,
		SequenceID:      sequenceID,
		Status:          model.ProgressNotStarted,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}
	var sp model.SequenceProgress
	if err := db.Where("track_progress_id = ? AND sequence_id = ?", trackProgressID, sequenceID).Take(&sp).Error; err != nil {
		return nil, err
	}
	return &sp, nil
}

func (r *ProgressRepository) SaveSequenceProgress(ctx context.Context, sp *model.SequenceProgress) error {
	return conn(ctx, r.DB).Save(sp).Error
}

// HasCompletedForSlug reports whether the participation completed any cycle
// tagged with the mandatory slug.
func (r *ProgressRepository) HasCompletedForSlug(ctx context.Context, participationID uint, slug string) (bool, error) {
	var count int64
	err := conn(ctx, r.DB).
		Model(&model.TrackProgress{}).
		Joins("JOIN track_cycles ON track_cycles.id = track_progresses.track_cycle_id AND track_cycles.deleted_at IS NULL").
		Where("track_progresses.participation_id = ? AND track_progresses.status = ?", participationID, model.ProgressCompleted).
		Where("track_cycles.mandatory_slug = ?", slug).
		Count(&count).Error
	return count > 0, err
}
