package repository

import (
	"context"

	"vigia_backend/internal/model"

	"gorm.io/gorm"
)

type QuizSubmissionRepository struct {
	DB *gorm.DB
}

func NewQuizSubmissionRepository(db *gorm.DB) *QuizSubmissionRepository {
	return &QuizSubmissionRepository{DB: db}
}

func (r *QuizSubmissionRepository) FindByID(ctx context.Context, id uint) (*model.QuizSubmission, error) {
	var s model.QuizSubmission
	found, err := first(conn(ctx, r.DB).Where("id = ?", id), &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

func (r *QuizSubmissionRepository) CountActive(ctx context.Context, participationID, formVersionID uint) (int64, error) {
	var count int64
	err := conn(ctx, r.DB).
		Model(&model.QuizSubmission{}).
		Where("participation_id = ? AND form_version_id = ? AND active = ?", participationID, formVersionID, true).
		Count(&count).Error
	return count, err
}

// MaxAttemptNumber includes inactive and soft-deleted rows so numbers are never reused.
func (r *QuizSubmissionRepository) MaxAttemptNumber(ctx context.Context, participationID, formVersionID uint) (int, error) {
	var highest int
	err := conn(ctx, r.DB).
		Unscoped().
		Model(&model.QuizSubmission{}).
		Where("participation_id = ? AND form_version_id = ?", participationID, formVersionID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&highest).Error
	return highest, err
}

func (r *QuizSubmissionRepository) Create(ctx context.Context, s *model.QuizSubmission) error {
	return translateDuplicate(conn(ctx, r.DB).Create(s).Error, "quiz submission attempt")
}

func (r *QuizSubmissionRepository) Save(ctx context.Context, s *model.QuizSubmission) error {
	return conn(ctx, r.DB).Save(s).Error
}

func (r *QuizSubmissionRepository) ListByParticipationAndVersion(ctx context.Context, participationID, formVersionID uint) ([]model.QuizSubmission, error) {
	var rows []model.QuizSubmission
	err := conn(ctx, r.DB).
		Where("participation_id = ? AND form_version_id = ?", participationID, formVersionID).
		Order("attempt_number ASC").
		Find(&rows).Error
	return rows, err
}
