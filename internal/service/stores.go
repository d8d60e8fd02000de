package service

import (
	"context"
	"time"

	"vigia_backend/internal/model"
)

// The store interfaces below are satisfied by the gorm repositories in
// internal/repository. Lookups return (nil, nil) when the row does not exist.

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TrackStore interface {
	FindTrackCycleByID(ctx context.Context, id uint) (*model.TrackCycle, error)
	FindSequenceByID(ctx context.Context, id uint) (*model.Sequence, error)
	ListActiveSections(ctx context.Context, trackID uint) ([]model.Section, error)
	ListActiveMandatoryCycles(ctx context.Context, contextID uint, now time.Time) ([]model.TrackCycle, error)
}

type ParticipationStore interface {
	FindByID(ctx context.Context, id uint) (*model.Participation, error)
	LockByID(ctx context.Context, id uint) (*model.Participation, error)
}

type FormStore interface {
	FindVersionByID(ctx context.Context, id uint) (*model.FormVersion, error)
}

type ProgressStore interface {
	FindTrackProgressByID(ctx context.Context, id uint) (*model.TrackProgress, error)
	LockTrackProgress(ctx context.Context, id uint) (*model.TrackProgress, error)
	FindTrackProgress(ctx context.Context, participationID, trackCycleID uint) (*model.TrackProgress, error)
	CreateTrackProgress(ctx context.Context, tp *model.TrackProgress) error
	SaveTrackProgress(ctx context.Context, tp *model.TrackProgress) error
	CreateSequenceProgresses(ctx context.Context, rows []*model.SequenceProgress) error
	FindSequenceProgress(ctx context.Context, trackProgressID, sequenceID uint) (*model.SequenceProgress, error)
	ListSequenceProgress(ctx context.Context, trackProgressID uint) ([]model.SequenceProgress, error)
	UpsertSequenceProgress(ctx context.Context, trackProgressID, sequenceID uint) (*model.SequenceProgress, error)
	SaveSequenceProgress(ctx context.Context, sp *model.SequenceProgress) error
	HasCompletedForSlug(ctx context.Context, participationID uint, slug string) (bool, error)
}

type SubmissionStore interface {
	FindByID(ctx context.Context, id uint) (*model.QuizSubmission, error)
	CountActive(ctx context.Context, participationID, formVersionID uint) (int64, error)
	MaxAttemptNumber(ctx context.Context, participationID, formVersionID uint) (int, error)
	Create(ctx context.Context, s *model.QuizSubmission) error
	Save(ctx context.Context, s *model.QuizSubmission) error
	ListByParticipationAndVersion(ctx context.Context, participationID, formVersionID uint) ([]model.QuizSubmission, error)
}

// LockCache memoizes sequence lock maps per track progress. Every Invalidate
// bumps a generation; an entry is served only while its generation is current.
type LockCache interface {
	// Get returns the entry when it is current. On a miss, gen is the current
	// generation to hand to Set once the map is computed; a negative gen means
	// the cache is unusable and Set should be skipped.
	Get(ctx context.Context, trackProgressID uint) (locks map[uint]bool, gen int64, hit bool)
	Set(ctx context.Context, trackProgressID uint, gen int64, locks map[uint]bool)
	Invalidate(ctx context.Context, trackProgressID uint)
}
