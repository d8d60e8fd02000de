package model

import "time"

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

func (s ProgressStatus) Valid() bool {
	switch s {
	case ProgressNotStarted, ProgressInProgress, ProgressCompleted:
		return true
	}
	return false
}

// swagger:model TrackProgress
type TrackProgress struct {
	BaseModel
	ParticipationID    uint               `gorm:"uniqueIndex:idx_track_progress_participation_cycle;not null" json:"participationId"`
	TrackCycleID       uint               `gorm:"uniqueIndex:idx_track_progress_participation_cycle;not null" json:"trackCycleId"`
	TrackCycle         *TrackCycle        `gorm:"foreignKey:TrackCycleID" json:"trackCycle,omitempty"`
	Status             ProgressStatus     `gorm:"size:20;default:'not_started'" json:"status"`
	ProgressPercentage float64            `gorm:"type:decimal(5,2);default:0" json:"progressPercentage"`
	StartedAt          *time.Time         `json:"startedAt,omitempty"`
	CompletedAt        *time.Time         `json:"completedAt,omitempty"`
	SequenceProgresses []SequenceProgress `gorm:"foreignKey:TrackProgressID" json:"sequenceProgresses,omitempty"`
}

func (TrackProgress) TableName() string {
	return "track_progresses"
}

// swagger:model SequenceProgress
type SequenceProgress struct {
	BaseModel
	TrackProgressID  uint           `gorm:"uniqueIndex:idx_sequence_progress_track_sequence;not null" json:"trackProgressId"`
	SequenceID       uint           `gorm:"uniqueIndex:idx_sequence_progress_track_sequence;not null" json:"sequenceId"`
	Status           ProgressStatus `gorm:"size:20;default:'not_started'" json:"status"`
	VisitsCount      int            `gorm:"default:0" json:"visitsCount"`
	StartedAt        *time.Time     `json:"startedAt,omitempty"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
	TimeSpentSeconds int            `gorm:"default:0" json:"timeSpentSeconds"`
	QuizSubmissionID *uint          `gorm:"index" json:"quizSubmissionId,omitempty"`
}

func (SequenceProgress) TableName() string {
	return "sequence_progresses"
}
