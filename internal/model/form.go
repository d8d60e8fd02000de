package model

import (
	"encoding/json"

	"gorm.io/datatypes"
)

type FormType string

const (
	FormTypeQuiz   FormType = "quiz"
	FormTypeSignal FormType = "signal"
	FormTypeSurvey FormType = "survey"
)

// swagger:model Form
type Form struct {
	BaseModel
	Name     string        `gorm:"size:255;not null" json:"name"`
	Type     FormType      `gorm:"size:30;index;not null" json:"type"`
	Active   bool          `gorm:"default:true" json:"active"`
	Versions []FormVersion `gorm:"foreignKey:FormID" json:"versions,omitempty"`
}

func (Form) TableName() string {
	return "forms"
}

// swagger:model FormVersion
type FormVersion struct {
	BaseModel
	FormID     uint           `gorm:"index;not null" json:"formId"`
	Form       *Form          `gorm:"foreignKey:FormID" json:"form,omitempty"`
	Version    int            `gorm:"not null;default:1" json:"version"`
	Definition datatypes.JSON `json:"definition"`
	Active     bool           `gorm:"default:true" json:"active"`
}

func (FormVersion) TableName() string {
	return "form_versions"
}

const (
	QuestionSelect      = "select"
	QuestionMultiselect = "multiselect"
	QuestionText        = "text"
	QuestionNumber      = "number"
	QuestionBoolean     = "boolean"
)

const (
	ScoringSimple   = "simple"
	ScoringWeighted = "weighted"
)

type QuizOption struct {
	Value    interface{} `json:"value"`
	Label    string      `json:"label,omitempty"`
	Feedback string      `json:"feedback,omitempty"`
}

type QuizFeedback struct {
	Correct   string `json:"correct,omitempty"`
	Incorrect string `json:"incorrect,omitempty"`
}

type QuizQuestion struct {
	Name          string        `json:"name"`
	Label         string        `json:"label,omitempty"`
	Type          string        `json:"type"`
	Points        float64       `json:"points"`
	Weight        *float64      `json:"weight"`
	CorrectAnswer interface{}   `json:"correctAnswer"`
	Options       []QuizOption  `json:"options,omitempty"`
	Feedback      *QuizFeedback `json:"feedback,omitempty"`
}

type QuizScoring struct {
	Method string `json:"method"`
}

// QuizSettings are the attempt constraints of a quiz. Nil means "not configured".
type QuizSettings struct {
	PassingScore     *float64 `json:"passing_score,omitempty"`
	MaxAttempts      *int     `json:"max_attempts,omitempty"`
	TimeLimitMinutes *int     `json:"time_limit_minutes,omitempty"`
}

type QuizDefinition struct {
	Fields   []QuizQuestion `json:"fields"`
	Scoring  QuizScoring    `json:"scoring"`
	Settings QuizSettings   `json:"settings"`

	// Malformed is set when the stored fields could not be read as a question list.
	Malformed bool `json:"-"`
}

// Weighted reports whether points are multiplied by the question weight.
func (d QuizDefinition) Weighted() bool {
	return d.Scoring.Method == ScoringWeighted
}

// ParseQuizDefinition reads a stored definition. Definitions whose fields are
// missing or not a list come back empty and flagged Malformed instead of failing,
// so legacy rows still grade to zero.
func ParseQuizDefinition(raw []byte) QuizDefinition {
	var envelope struct {
		Fields   json.RawMessage `json:"fields"`
		Scoring  QuizScoring     `json:"scoring"`
		Settings QuizSettings    `json:"settings"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &envelope) != nil {
		return QuizDefinition{Malformed: true}
	}
	def := QuizDefinition{Scoring: envelope.Scoring, Settings: envelope.Settings}
	if len(envelope.Fields) == 0 || envelope.Fields[0] != '[' {
		def.Malformed = true
		return def
	}
	if err := json.Unmarshal(envelope.Fields, &def.Fields); err != nil {
		def.Fields = nil
		def.Malformed = true
	}
	return def
}

// QuizDefinition decodes the version's definition.
func (v *FormVersion) QuizDefinition() QuizDefinition {
	return ParseQuizDefinition(v.Definition)
}
