package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vigia_backend/internal/model"
	"vigia_backend/internal/util"
	"vigia_backend/pkg/logger"
	"vigia_backend/pkg/monitoring"
	"vigia_backend/pkg/tracing"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type CreateQuizSubmissionInput struct {
	ParticipationID  uint                   `json:"participationId" binding:"required"`
	FormVersionID    uint                   `json:"formVersionId" binding:"required"`
	QuizResponse     map[string]interface{} `json:"quizResponse"`
	StartedAt        *time.Time             `json:"startedAt"`
	CompletedAt      *time.Time             `json:"completedAt"`
	TimeSpentSeconds *int                   `json:"timeSpentSeconds"`
}

// UpdateQuizSubmissionInput carries only the fields being changed; nil means untouched.
type UpdateQuizSubmissionInput struct {
	QuizResponse     map[string]interface{} `json:"quizResponse"`
	CompletedAt      *time.Time             `json:"completedAt"`
	TimeSpentSeconds *int                   `json:"timeSpentSeconds"`
	Active           *bool                  `json:"active"`
}

type QuizSubmissionService struct {
	Tx            Transactor
	Participation ParticipationStore
	Forms         FormStore
	Submissions   SubmissionStore

	now func() time.Time
}

func NewQuizSubmissionService(tx Transactor, participations ParticipationStore, forms FormStore, submissions SubmissionStore) *QuizSubmissionService {
	return &QuizSubmissionService{
		Tx:            tx,
		Participation: participations,
		Forms:         forms,
		Submissions:   submissions,
		now:           time.Now,
	}
}

// CreateQuizSubmission records a new attempt. The participation row stays locked
// for the whole transaction so concurrent attempts get consecutive numbers.
func (s *QuizSubmissionService) CreateQuizSubmission(ctx context.Context, in CreateQuizSubmissionInput) (sub *model.QuizSubmission, err error) {
	ctx, span := tracing.StartSpan(ctx, "QuizSubmissionService.CreateQuizSubmission")
	defer func() { tracing.EndSpan(span, err) }()

	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		participation, err := s.Participation.LockByID(ctx, in.ParticipationID)
		if err != nil {
			return fmt.Errorf("load participation: %w", err)
		}
		if participation == nil {
			return fmt.Errorf("%w: participation %d", util.ErrNotFound, in.ParticipationID)
		}

		version, def, err := s.quizVersion(ctx, in.FormVersionID)
		if err != nil {
			return err
		}

		if limit := def.Settings.MaxAttempts; limit != nil {
			count, err := s.Submissions.CountActive(ctx, in.ParticipationID, version.ID)
			if err != nil {
				return fmt.Errorf("count submissions: %w", err)
			}
			if count >= int64(*limit) {
				return fmt.Errorf("%w: maximum attempts (%d) reached", util.ErrInvalidState, *limit)
			}
		}

		highest, err := s.Submissions.MaxAttemptNumber(ctx, in.ParticipationID, version.ID)
		if err != nil {
			return fmt.Errorf("load attempt number: %w", err)
		}

		startedAt := s.now()
		if in.StartedAt != nil {
			startedAt = *in.StartedAt
		}
		if err := checkTimeLimit(def.Settings, startedAt, in.CompletedAt); err != nil {
			return err
		}

		response, err := encodeResponse(in.QuizResponse)
		if err != nil {
			return err
		}

		sub = &model.QuizSubmission{
			ParticipationID:  in.ParticipationID,
			FormVersionID:    version.ID,
			AttemptNumber:    highest + 1,
			QuizResponse:     response,
			StartedAt:        startedAt,
			CompletedAt:      in.CompletedAt,
			TimeSpentSeconds: in.TimeSpentSeconds,
			Active:           true,
		}
		if err := grade(sub, def, in.QuizResponse); err != nil {
			return err
		}
		if err := s.Submissions.Create(ctx, sub); err != nil {
			return fmt.Errorf("create submission: %w", err)
		}
		return nil
	})
	if err != nil {
		monitoring.QuizSubmissions.WithLabelValues(monitoring.SubmissionOutcomeRefused).Inc()
		return nil, err
	}

	monitoring.QuizSubmissions.WithLabelValues(submissionOutcome(sub)).Inc()
	logger.Log.Info("quiz submission created",
		zap.Uint("submission_id", sub.ID),
		zap.Uint("participation_id", sub.ParticipationID),
		zap.Uint("form_version_id", sub.FormVersionID),
		zap.Int("attempt", sub.AttemptNumber),
	)
	return sub, nil
}

// UpdateQuizSubmission merges the supplied fields and re-grades against the
// definition of the submission's own form version when responses or completion change.
func (s *QuizSubmissionService) UpdateQuizSubmission(ctx context.Context, id uint, in UpdateQuizSubmissionInput) (sub *model.QuizSubmission, err error) {
	ctx, span := tracing.StartSpan(ctx, "QuizSubmissionService.UpdateQuizSubmission")
	defer func() { tracing.EndSpan(span, err) }()

	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		sub, err = s.Submissions.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load submission: %w", err)
		}
		if sub == nil {
			return fmt.Errorf("%w: quiz submission %d", util.ErrNotFound, id)
		}

		regrade := false
		if in.QuizResponse != nil {
			response, err := encodeResponse(in.QuizResponse)
			if err != nil {
				return err
			}
			sub.QuizResponse = response
			regrade = true
		}
		if in.TimeSpentSeconds != nil {
			sub.TimeSpentSeconds = in.TimeSpentSeconds
		}
		reactivate := in.Active != nil && *in.Active && !sub.Active
		if in.Active != nil {
			sub.Active = *in.Active
		}

		var def model.QuizDefinition
		if in.CompletedAt != nil || regrade || reactivate {
			_, def, err = s.quizVersion(ctx, sub.FormVersionID)
			if err != nil {
				return err
			}
		}
		if limit := def.Settings.MaxAttempts; reactivate && limit != nil {
			// same row lock as CreateQuizSubmission so the count cannot race a new attempt
			if _, err := s.Participation.LockByID(ctx, sub.ParticipationID); err != nil {
				return fmt.Errorf("load participation: %w", err)
			}
			count, err := s.Submissions.CountActive(ctx, sub.ParticipationID, sub.FormVersionID)
			if err != nil {
				return fmt.Errorf("count submissions: %w", err)
			}
			if count >= int64(*limit) {
				return fmt.Errorf("%w: maximum attempts (%d) reached", util.ErrInvalidState, *limit)
			}
		}
		if in.CompletedAt != nil {
			if err := checkTimeLimit(def.Settings, sub.StartedAt, in.CompletedAt); err != nil {
				return err
			}
			sub.CompletedAt = in.CompletedAt
			if in.TimeSpentSeconds == nil {
				sub.TimeSpentSeconds = nil
			}
			regrade = true
		}

		if regrade {
			responses, err := decodeResponse(sub.QuizResponse)
			if err != nil {
				return err
			}
			if err := grade(sub, def, responses); err != nil {
				return err
			}
		}
		if err := s.Submissions.Save(ctx, sub); err != nil {
			return fmt.Errorf("save submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *QuizSubmissionService) GetQuizSubmission(ctx context.Context, id uint) (*model.QuizSubmission, error) {
	sub, err := s.Submissions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: quiz submission %d", util.ErrNotFound, id)
	}
	return sub, nil
}

// ListQuizSubmissions returns every attempt of the pair ordered by attempt number.
func (s *QuizSubmissionService) ListQuizSubmissions(ctx context.Context, participationID, formVersionID uint) ([]model.QuizSubmission, error) {
	rows, err := s.Submissions.ListByParticipationAndVersion(ctx, participationID, formVersionID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if rows == nil {
		rows = []model.QuizSubmission{}
	}
	return rows, nil
}

// quizVersion loads a form version and rejects forms that are not quizzes.
func (s *QuizSubmissionService) quizVersion(ctx context.Context, formVersionID uint) (*model.FormVersion, model.QuizDefinition, error) {
	version, err := s.Forms.FindVersionByID(ctx, formVersionID)
	if err != nil {
		return nil, model.QuizDefinition{}, fmt.Errorf("load form version: %w", err)
	}
	if version == nil {
		return nil, model.QuizDefinition{}, fmt.Errorf("%w: form version %d", util.ErrNotFound, formVersionID)
	}
	if version.Form == nil || version.Form.Type != model.FormTypeQuiz {
		return nil, model.QuizDefinition{}, fmt.Errorf("%w: form version %d is not a quiz", util.ErrInvalidState, formVersionID)
	}
	return version, version.QuizDefinition(), nil
}

// checkTimeLimit rejects a completion earlier than the start whether or not the
// quiz is timed, then applies the time limit when one is set.
func checkTimeLimit(settings model.QuizSettings, startedAt time.Time, completedAt *time.Time) error {
	if completedAt == nil {
		return nil
	}
	if completedAt.Before(startedAt) {
		return fmt.Errorf("%w: completedAt is before startedAt", util.ErrInvalidState)
	}
	if settings.TimeLimitMinutes == nil {
		return nil
	}
	elapsed := completedAt.Sub(startedAt).Minutes()
	if elapsed > float64(*settings.TimeLimitMinutes) {
		return fmt.Errorf("%w: time limit of %d minutes exceeded", util.ErrInvalidState, *settings.TimeLimitMinutes)
	}
	return nil
}

// grade fills the derived fields of sub. Unfinished attempts carry no score.
func grade(sub *model.QuizSubmission, def model.QuizDefinition, responses map[string]interface{}) error {
	if sub.CompletedAt == nil {
		sub.Score = nil
		sub.Percentage = nil
		sub.IsPassed = nil
		sub.QuestionResults = nil
		return nil
	}

	result := ScoreQuiz(def, responses)
	passed := result.Percentage == 100
	if def.Settings.PassingScore != nil {
		passed = result.Score >= *def.Settings.PassingScore
	}

	results, err := json.Marshal(result.QuestionResults)
	if err != nil {
		return fmt.Errorf("encode question results: %w", err)
	}
	sub.Score = &result.Score
	sub.Percentage = &result.Percentage
	sub.IsPassed = &passed
	sub.QuestionResults = datatypes.JSON(results)

	if sub.TimeSpentSeconds == nil {
		spent := int(sub.CompletedAt.Sub(sub.StartedAt) / time.Second)
		sub.TimeSpentSeconds = &spent
	}
	return nil
}

func encodeResponse(responses map[string]interface{}) (datatypes.JSON, error) {
	if responses == nil {
		responses = map[string]interface{}{}
	}
	data, err := json.Marshal(responses)
	if err != nil {
		return nil, fmt.Errorf("%w: quiz response is not serializable", util.ErrInvalidState)
	}
	return datatypes.JSON(data), nil
}

func decodeResponse(raw datatypes.JSON) (map[string]interface{}, error) {
	responses := map[string]interface{}{}
	if len(raw) == 0 {
		return responses, nil
	}
	if err := json.Unmarshal(raw, &responses); err != nil {
		return nil, fmt.Errorf("decode quiz response: %w", err)
	}
	return responses, nil
}

func submissionOutcome(sub *model.QuizSubmission) string {
	switch {
	case sub.IsPassed == nil:
		return monitoring.SubmissionOutcomePending
	case *sub.IsPassed:
		return monitoring.SubmissionOutcomePassed
	default:
		return monitoring.SubmissionOutcomeFailed
	}
}
