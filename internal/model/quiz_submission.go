package model

import (
	"time"

	"gorm.io/datatypes"
)

// swagger:model QuizSubmission
type QuizSubmission struct {
	BaseModel
	ParticipationID    uint           `gorm:"uniqueIndex:idx_quiz_submission_attempt;not null" json:"participationId"`
	FormVersionID      uint           `gorm:"uniqueIndex:idx_quiz_submission_attempt;not null" json:"formVersionId"`
	AttemptNumber      int            `gorm:"uniqueIndex:idx_quiz_submission_attempt;not null" json:"attemptNumber"`
	QuizResponse       datatypes.JSON `json:"quizResponse"`
	QuestionResults    datatypes.JSON `json:"questionResults,omitempty"`
	Score              *float64       `gorm:"type:decimal(5,2)" json:"score"`
	Percentage         *float64       `json:"percentage"`
	IsPassed           *bool          `json:"isPassed"`
	StartedAt          time.Time      `json:"startedAt"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
	TimeSpentSeconds   *int           `json:"timeSpentSeconds,omitempty"`
	SequenceProgressID *uint          `gorm:"index" json:"sequenceProgressId,omitempty"`
	Active             bool           `gorm:"default:true" json:"active"`
}

func (QuizSubmission) TableName() string {
	return "quiz_submissions"
}
