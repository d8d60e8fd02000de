package model

import (
	"time"

	"gorm.io/gorm"
)

// swagger:model
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// AllModels lists every table owned by the service, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Context{},
		&Participation{},
		&Track{},
		&Section{},
		&Sequence{},
		&TrackCycle{},
		&Form{},
		&FormVersion{},
		&TrackProgress{},
		&SequenceProgress{},
		&QuizSubmission{},
	}
}
