package service

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"vigia_backend/internal/model"
	"vigia_backend/internal/util"
	"vigia_backend/pkg/logger"
	"vigia_backend/pkg/monitoring"
	"vigia_backend/pkg/tracing"

	"go.uber.org/zap"
)

// SequenceProgressUpdate holds the fields to merge into a sequence progress row.
// Nil fields keep their stored value.
type SequenceProgressUpdate struct {
	Status           *model.ProgressStatus `json:"status"`
	StartedAt        *time.Time            `json:"startedAt"`
	CompletedAt      *time.Time            `json:"completedAt"`
	TimeSpentSeconds *int                  `json:"timeSpentSeconds"`
	VisitsCount      *int                  `json:"visitsCount"`
}

type ComplianceItem struct {
	Slug         string    `json:"slug"`
	TrackCycleID uint      `json:"trackCycleId"`
	TrackID      uint      `json:"trackId"`
	CycleName    string    `json:"cycleName"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	Completed    bool      `json:"completed"`
}

type ComplianceReport struct {
	Items          []ComplianceItem `json:"items"`
	TotalRequired  int              `json:"totalRequired"`
	CompletedCount int              `json:"completedCount"`
}

type TrackProgressService struct {
	Tx             Transactor
	Tracks         TrackStore
	Participations ParticipationStore
	Forms          FormStore
	Progress       ProgressStore
	Submissions    SubmissionStore
	Locks          LockCache

	enforceLock atomic.Bool
	now         func() time.Time
}

func NewTrackProgressService(
	tx Transactor,
	tracks TrackStore,
	participations ParticipationStore,
	forms FormStore,
	progress ProgressStore,
	submissions SubmissionStore,
	locks LockCache,
	enforceSequenceLock bool,
) *TrackProgressService {
	s := &TrackProgressService{
		Tx:             tx,
		Tracks:         tracks,
		Participations: participations,
		Forms:          forms,
		Progress:       progress,
		Submissions:    submissions,
		Locks:          locks,
		now:            time.Now,
	}
	s.enforceLock.Store(enforceSequenceLock)
	return s
}

// SetEnforceSequenceLock switches lock enforcement at runtime (config reload).
func (s *TrackProgressService) SetEnforceSequenceLock(enforce bool) {
	s.enforceLock.Store(enforce)
}

func (s *TrackProgressService) EnforceSequenceLock() bool {
	return s.enforceLock.Load()
}

// trackState is a locked track progress together with the curriculum of its cycle.
type trackState struct {
	progress *model.TrackProgress
	cycle    *model.TrackCycle
	sections []model.Section
}

func (st *trackState) activeSequences() []model.Sequence {
	return FlattenActiveSequences(st.sections)
}

// StartTrackProgress enrolls a participation in a cycle and seeds one
// not_started row per active sequence of the cycle's track.
func (s *TrackProgressService) StartTrackProgress(ctx context.Context, participationID, trackCycleID uint) (tp *model.TrackProgress, err error) {
	ctx, span := tracing.StartSpan(ctx, "TrackProgressService.StartTrackProgress")
	defer func() { tracing.EndSpan(span, err) }()

	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		participation, err := s.Participations.FindByID(ctx, participationID)
		if err != nil {
			return fmt.Errorf("load participation: %w", err)
		}
		if participation == nil {
			return fmt.Errorf("%w: participation %d", util.ErrNotFound, participationID)
		}
		cycle, err := s.Tracks.FindTrackCycleByID(ctx, trackCycleID)
		if err != nil {
			return fmt.Errorf("load track cycle: %w", err)
		}
		if cycle == nil {
			return fmt.Errorf("%w: track cycle %d", util.ErrNotFound, trackCycleID)
		}
		if participation.ContextID != cycle.ContextID {
			return fmt.Errorf("%w: participation %d belongs to context %d, track cycle %d to context %d",
				util.ErrInvalidState, participationID, participation.ContextID, trackCycleID, cycle.ContextID)
		}

		existing, err := s.Progress.FindTrackProgress(ctx, participationID, trackCycleID)
		if err != nil {
			return fmt.Errorf("load track progress: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: track progress already exists for participation %d and track cycle %d",
				util.ErrConflict, participationID, trackCycleID)
		}

		sections, err := s.Tracks.ListActiveSections(ctx, cycle.TrackID)
		if err != nil {
			return fmt.Errorf("load sections: %w", err)
		}

		now := s.now()
		tp = &model.TrackProgress{
			ParticipationID:    participationID,
			TrackCycleID:       trackCycleID,
			Status:             model.ProgressInProgress,
			ProgressPercentage: 0,
			StartedAt:          &now,
		}
		if err := s.Progress.CreateTrackProgress(ctx, tp); err != nil {
			return fmt.Errorf("create track progress: %w", err)
		}

		sequences := FlattenActiveSequences(sections)
		rows := make([]*model.SequenceProgress, 0, len(sequences))
		for _, seq := range sequences {
			rows = append(rows, &model.SequenceProgress{
				TrackProgressID: tp.ID,
				SequenceID:      seq.ID,
				Status:          model.ProgressNotStarted,
			})
		}
		if err := s.Progress.CreateSequenceProgresses(ctx, rows); err != nil {
			return fmt.Errorf("create sequence progress: %w", err)
		}
		tp.SequenceProgresses = make([]model.SequenceProgress, 0, len(rows))
		for _, r := range rows {
			tp.SequenceProgresses = append(tp.SequenceProgresses, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("track progress started",
		zap.Uint("track_progress_id", tp.ID),
		zap.Uint("participation_id", participationID),
		zap.Uint("track_cycle_id", trackCycleID),
		zap.Int("sequences", len(tp.SequenceProgresses)),
	)
	return tp, nil
}

// UpdateSequenceProgress merges update into the sequence's progress row, creating
// the row on first touch, and recomputes the parent track progress.
func (s *TrackProgressService) UpdateSequenceProgress(ctx context.Context, trackProgressID, sequenceID uint, update SequenceProgressUpdate) (sp *model.SequenceProgress, err error) {
	ctx, span := tracing.StartSpan(ctx, "TrackProgressService.UpdateSequenceProgress")
	defer func() { tracing.EndSpan(span, err) }()

	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		st, err := s.lockTrack(ctx, trackProgressID)
		if err != nil {
			return err
		}
		seq, err := s.findSequence(ctx, sequenceID)
		if err != nil {
			return err
		}
		sp, err = s.applyUpdate(ctx, st, seq, update, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Locks.Invalidate(ctx, trackProgressID)
	return sp, nil
}

// RecalculateTrackProgress derives percentage and status from the sequence rows.
func (s *TrackProgressService) RecalculateTrackProgress(ctx context.Context, trackProgressID uint) (tp *model.TrackProgress, err error) {
	ctx, span := tracing.StartSpan(ctx, "TrackProgressService.RecalculateTrackProgress")
	defer func() { tracing.EndSpan(span, err) }()

	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		st, err := s.lockTrack(ctx, trackProgressID)
		if err != nil {
			return err
		}
		tp, err = s.recalculate(ctx, st)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Locks.Invalidate(ctx, trackProgressID)
	return tp, nil
}

// CompleteContentSequence marks a content sequence completed. Quiz sequences
// are completed through CompleteQuizSequence.
func (s *TrackProgressService) CompleteContentSequence(ctx context.Context, trackProgressID, sequenceID uint) (sp *model.SequenceProgress, err error) {
	ctx, span := tracing.StartSpan(ctx, "TrackProgressService.CompleteContentSequence")
	defer func() { tracing.EndSpan(span, err) }()

	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		st, err := s.lockTrack(ctx, trackProgressID)
		if err != nil {
			return err
		}
		seq, err := s.findSequence(ctx, sequenceID)
		if err != nil {
			return err
		}
		if seq.IsQuiz() {
			return fmt.Errorf("%w: sequence %d is a quiz and needs a submission to complete", util.ErrInvalidState, sequenceID)
		}
		completed := model.ProgressCompleted
		sp, err = s.applyUpdate(ctx, st, seq, SequenceProgressUpdate{Status: &completed}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Locks.Invalidate(ctx, trackProgressID)
	return sp, nil
}

// CompleteQuizSequence completes a quiz sequence with one of the participation's
// submissions for the sequence's form, linking the two rows to each other.
func (s *TrackProgressService) CompleteQuizSequence(ctx context.Context, trackProgressID, sequenceID, quizSubmissionID uint) (sp *model.SequenceProgress, err error) {
	ctx, span := tracing.StartSpan(ctx, "TrackProgressService.CompleteQuizSequence")
	defer func() { tracing.EndSpan(span, err) }()

	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		st, err := s.lockTrack(ctx, trackProgressID)
		if err != nil {
			return err
		}
		seq, err := s.findSequence(ctx, sequenceID)
		if err != nil {
			return err
		}
		if !seq.IsQuiz() {
			return fmt.Errorf("%w: sequence %d is not a quiz", util.ErrInvalidState, sequenceID)
		}

		sub, err := s.Submissions.FindByID(ctx, quizSubmissionID)
		if err != nil {
			return fmt.Errorf("load submission: %w", err)
		}
		if sub == nil {
			return fmt.Errorf("%w: quiz submission %d", util.ErrNotFound, quizSubmissionID)
		}
		if sub.ParticipationID != st.progress.ParticipationID {
			return fmt.Errorf("%w: quiz submission %d belongs to another participation", util.ErrInvalidState, quizSubmissionID)
		}
		version, err := s.Forms.FindVersionByID(ctx, sub.FormVersionID)
		if err != nil {
			return fmt.Errorf("load form version: %w", err)
		}
		if version == nil || version.FormID != *seq.FormID {
			return fmt.Errorf("%w: quiz submission %d does not answer the form of sequence %d",
				util.ErrInvalidState, quizSubmissionID, sequenceID)
		}

		completed := model.ProgressCompleted
		sp, err = s.applyUpdate(ctx, st, seq, SequenceProgressUpdate{Status: &completed}, &sub.ID)
		if err != nil {
			return err
		}
		sub.SequenceProgressID = &sp.ID
		if err := s.Submissions.Save(ctx, sub); err != nil {
			return fmt.Errorf("link submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Locks.Invalidate(ctx, trackProgressID)
	return sp, nil
}

// CanAccessSequence checks that the previous active sequence of the same section
// has been completed. Missing records are answered with a reason, not an error.
func (s *TrackProgressService) CanAccessSequence(ctx context.Context, participationID, trackCycleID, sequenceID uint) (AccessDecision, error) {
	tp, err := s.Progress.FindTrackProgress(ctx, participationID, trackCycleID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("load track progress: %w", err)
	}
	if tp == nil {
		return AccessDecision{Reason: ReasonTrackProgressNotFound}, nil
	}

	seq, err := s.Tracks.FindSequenceByID(ctx, sequenceID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("load sequence: %w", err)
	}
	if seq == nil || !seq.Active {
		return AccessDecision{Reason: ReasonSequenceNotFound}, nil
	}
	cycle, err := s.Tracks.FindTrackCycleByID(ctx, trackCycleID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("load track cycle: %w", err)
	}
	if cycle == nil {
		return AccessDecision{Reason: ReasonTrackProgressNotFound}, nil
	}
	sections, err := s.Tracks.ListActiveSections(ctx, cycle.TrackID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("load sections: %w", err)
	}
	if !containsSequence(FlattenActiveSequences(sections), seq.ID) {
		return AccessDecision{Reason: ReasonSequenceNotFound}, nil
	}

	prev := previousInSection(sections, seq)
	if prev == nil {
		return AccessDecision{CanAccess: true}, nil
	}
	prevProgress, err := s.Progress.FindSequenceProgress(ctx, tp.ID, prev.ID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("load sequence progress: %w", err)
	}
	if prevProgress == nil || prevProgress.Status != model.ProgressCompleted {
		return AccessDecision{Reason: ReasonPreviousNotCompleted}, nil
	}
	return AccessDecision{CanAccess: true}, nil
}

// GetSequenceLocks returns sequence id -> locked for the track progress.
func (s *TrackProgressService) GetSequenceLocks(ctx context.Context, trackProgressID uint) (map[uint]bool, error) {
	// gen is read before the rows: a mutation committing after this point bumps
	// the generation, so the map computed below is never served as current.
	locks, gen, hit := s.Locks.Get(ctx, trackProgressID)
	if hit {
		return locks, nil
	}

	tp, err := s.Progress.FindTrackProgressByID(ctx, trackProgressID)
	if err != nil {
		return nil, fmt.Errorf("load track progress: %w", err)
	}
	if tp == nil {
		return nil, fmt.Errorf("%w: track progress %d", util.ErrNotFound, trackProgressID)
	}
	st, err := s.loadCurriculum(ctx, tp)
	if err != nil {
		return nil, err
	}
	locks, err = s.lockMap(ctx, st)
	if err != nil {
		return nil, err
	}
	if gen >= 0 {
		s.Locks.Set(ctx, trackProgressID, gen, locks)
	}
	return locks, nil
}

// GetTrackProgress returns the row with its sequence progress rows.
func (s *TrackProgressService) GetTrackProgress(ctx context.Context, trackProgressID uint) (*model.TrackProgress, error) {
	tp, err := s.Progress.FindTrackProgressByID(ctx, trackProgressID)
	if err != nil {
		return nil, fmt.Errorf("load track progress: %w", err)
	}
	if tp == nil {
		return nil, fmt.Errorf("%w: track progress %d", util.ErrNotFound, trackProgressID)
	}
	rows, err := s.Progress.ListSequenceProgress(ctx, trackProgressID)
	if err != nil {
		return nil, fmt.Errorf("load sequence progress: %w", err)
	}
	tp.SequenceProgresses = rows
	return tp, nil
}

// GetMandatoryCompliance reports, per mandatory slug of the participation's
// context, whether any cycle carrying that slug was completed.
func (s *TrackProgressService) GetMandatoryCompliance(ctx context.Context, participationID, requestingUserID uint) (report *ComplianceReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "TrackProgressService.GetMandatoryCompliance")
	defer func() { tracing.EndSpan(span, err) }()

	participation, err := s.Participations.FindByID(ctx, participationID)
	if err != nil {
		return nil, fmt.Errorf("load participation: %w", err)
	}
	if participation == nil {
		return nil, fmt.Errorf("%w: participation %d", util.ErrNotFound, participationID)
	}
	if participation.UserID != requestingUserID {
		return nil, fmt.Errorf("%w: participation %d belongs to another user", util.ErrForbidden, participationID)
	}

	cycles, err := s.Tracks.ListActiveMandatoryCycles(ctx, participation.ContextID, s.now())
	if err != nil {
		return nil, fmt.Errorf("load mandatory cycles: %w", err)
	}

	latest := make(map[string]model.TrackCycle)
	for _, c := range cycles {
		if c.MandatorySlug == nil || *c.MandatorySlug == "" {
			continue
		}
		slug := *c.MandatorySlug
		if cur, ok := latest[slug]; !ok || c.StartDate.After(cur.StartDate) {
			latest[slug] = c
		}
	}

	report = &ComplianceReport{Items: make([]ComplianceItem, 0, len(latest))}
	for slug, c := range latest {
		done, err := s.Progress.HasCompletedForSlug(ctx, participationID, slug)
		if err != nil {
			return nil, fmt.Errorf("check completion for %s: %w", slug, err)
		}
		report.Items = append(report.Items, ComplianceItem{
			Slug:         slug,
			TrackCycleID: c.ID,
			TrackID:      c.TrackID,
			CycleName:    c.Name,
			StartDate:    c.StartDate,
			EndDate:      c.EndDate,
			Completed:    done,
		})
		if done {
			report.CompletedCount++
		}
	}
	sort.Slice(report.Items, func(i, j int) bool { return report.Items[i].Slug < report.Items[j].Slug })
	report.TotalRequired = len(report.Items)
	return report, nil
}

// lockTrack takes the row lock on the track progress and loads its curriculum.
// Must run inside a transaction.
func (s *TrackProgressService) lockTrack(ctx context.Context, trackProgressID uint) (*trackState, error) {
	tp, err := s.Progress.LockTrackProgress(ctx, trackProgressID)
	if err != nil {
		return nil, fmt.Errorf("lock track progress: %w", err)
	}
	if tp == nil {
		return nil, fmt.Errorf("%w: track progress %d", util.ErrNotFound, trackProgressID)
	}
	return s.loadCurriculum(ctx, tp)
}

func (s *TrackProgressService) loadCurriculum(ctx context.Context, tp *model.TrackProgress) (*trackState, error) {
	cycle, err := s.Tracks.FindTrackCycleByID(ctx, tp.TrackCycleID)
	if err != nil {
		return nil, fmt.Errorf("load track cycle: %w", err)
	}
	if cycle == nil {
		return nil, fmt.Errorf("%w: track cycle %d", util.ErrNotFound, tp.TrackCycleID)
	}
	sections, err := s.Tracks.ListActiveSections(ctx, cycle.TrackID)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	return &trackState{progress: tp, cycle: cycle, sections: sections}, nil
}

func (s *TrackProgressService) findSequence(ctx context.Context, sequenceID uint) (*model.Sequence, error) {
	seq, err := s.Tracks.FindSequenceByID(ctx, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	if seq == nil {
		return nil, fmt.Errorf("%w: sequence %d", util.ErrNotFound, sequenceID)
	}
	return seq, nil
}

func (s *TrackProgressService) lockMap(ctx context.Context, st *trackState) (map[uint]bool, error) {
	rows, err := s.Progress.ListSequenceProgress(ctx, st.progress.ID)
	if err != nil {
		return nil, fmt.Errorf("load sequence progress: %w", err)
	}
	return ComputeSequenceLocks(st.sections, statusMap(rows)), nil
}

func (s *TrackProgressService) applyUpdate(ctx context.Context, st *trackState, seq *model.Sequence, update SequenceProgressUpdate, submissionID *uint) (*model.SequenceProgress, error) {
	if !containsSequence(st.activeSequences(), seq.ID) {
		if seq.Section != nil && seq.Section.TrackID != st.cycle.TrackID {
			return nil, fmt.Errorf("%w: sequence %d is not part of track %d", util.ErrInvalidState, seq.ID, st.cycle.TrackID)
		}
		return nil, fmt.Errorf("%w: sequence %d is inactive", util.ErrInvalidState, seq.ID)
	}
	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	if s.enforceLock.Load() && update.Status != nil && *update.Status != model.ProgressNotStarted {
		locks, err := s.lockMap(ctx, st)
		if err != nil {
			return nil, err
		}
		if locks[seq.ID] {
			return nil, fmt.Errorf("%w: sequence %d is locked until earlier sequences are completed", util.ErrInvalidState, seq.ID)
		}
	}

	sp, err := s.Progress.UpsertSequenceProgress(ctx, st.progress.ID, seq.ID)
	if err != nil {
		return nil, fmt.Errorf("upsert sequence progress: %w", err)
	}

	if update.StartedAt != nil {
		sp.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		sp.CompletedAt = update.CompletedAt
	}
	if update.TimeSpentSeconds != nil {
		sp.TimeSpentSeconds = *update.TimeSpentSeconds
	}
	if update.VisitsCount != nil {
		sp.VisitsCount = *update.VisitsCount
	}
	if update.Status != nil {
		sp.Status = *update.Status
	}
	if submissionID != nil {
		sp.QuizSubmissionID = submissionID
	}

	now := s.now()
	if sp.Status == model.ProgressCompleted && sp.CompletedAt == nil {
		sp.CompletedAt = &now
	}
	if sp.Status != model.ProgressNotStarted && sp.StartedAt == nil {
		started := now
		if sp.CompletedAt != nil && sp.CompletedAt.Before(started) {
			started = *sp.CompletedAt
		}
		sp.StartedAt = &started
	}
	if sp.StartedAt != nil && sp.CompletedAt != nil && sp.CompletedAt.Before(*sp.StartedAt) {
		return nil, fmt.Errorf("%w: completedAt is before startedAt", util.ErrInvalidState)
	}

	if err := s.Progress.SaveSequenceProgress(ctx, sp); err != nil {
		return nil, fmt.Errorf("save sequence progress: %w", err)
	}
	monitoring.SequenceProgressUpdates.Inc()

	if _, err := s.recalculate(ctx, st); err != nil {
		return nil, err
	}
	return sp, nil
}

func validateUpdate(update SequenceProgressUpdate) error {
	if update.Status != nil && !update.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", util.ErrInvalidState, *update.Status)
	}
	if update.VisitsCount != nil && *update.VisitsCount < 0 {
		return fmt.Errorf("%w: visitsCount must not be negative", util.ErrInvalidState)
	}
	if update.TimeSpentSeconds != nil && *update.TimeSpentSeconds < 0 {
		return fmt.Errorf("%w: timeSpentSeconds must not be negative", util.ErrInvalidState)
	}
	return nil
}

// recalculate never moves a completed track back to in_progress.
func (s *TrackProgressService) recalculate(ctx context.Context, st *trackState) (*model.TrackProgress, error) {
	tp := st.progress
	sequences := st.activeSequences()
	if len(sequences) == 0 {
		return tp, nil
	}

	rows, err := s.Progress.ListSequenceProgress(ctx, tp.ID)
	if err != nil {
		return nil, fmt.Errorf("load sequence progress: %w", err)
	}
	statuses := statusMap(rows)

	completed := 0
	for _, seq := range sequences {
		if statuses[seq.ID] == model.ProgressCompleted {
			completed++
		}
	}
	total := len(sequences)

	pct := util.Round2(100 * float64(completed) / float64(total))
	if completed < total && pct >= 100 {
		pct = 99.99
	}
	tp.ProgressPercentage = pct

	switch {
	case completed == total:
		if tp.Status != model.ProgressCompleted {
			tp.Status = model.ProgressCompleted
			monitoring.TrackProgressCompleted.Inc()
			logger.Log.Info("track progress completed",
				zap.Uint("track_progress_id", tp.ID),
				zap.Uint("participation_id", tp.ParticipationID),
			)
		}
		if tp.CompletedAt == nil {
			now := s.now()
			tp.CompletedAt = &now
		}
	case completed > 0:
		if tp.Status != model.ProgressCompleted {
			tp.Status = model.ProgressInProgress
		}
	}

	if err := s.Progress.SaveTrackProgress(ctx, tp); err != nil {
		return nil, fmt.Errorf("save track progress: %w", err)
	}
	return tp, nil
}

func containsSequence(seqs []model.Sequence, id uint) bool {
	for _, s := range seqs {
		if s.ID == id {
			return true
		}
	}
	return false
}
