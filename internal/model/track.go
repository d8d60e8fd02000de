package model

import "time"

// swagger:model Track
type Track struct {
	BaseModel
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	ContextID   *uint     `gorm:"index" json:"contextId,omitempty"`
	Active      bool      `gorm:"default:true" json:"active"`
	Sections    []Section `gorm:"foreignKey:TrackID" json:"sections,omitempty"`
}

func (Track) TableName() string {
	return "tracks"
}

// swagger:model Section
type Section struct {
	BaseModel
	TrackID   uint       `gorm:"index;not null" json:"trackId"`
	Title     string     `gorm:"size:255;not null" json:"title"`
	Order     int        `gorm:"column:order;default:0" json:"order"`
	Active    bool       `gorm:"default:true" json:"active"`
	Sequences []Sequence `gorm:"foreignKey:SectionID" json:"sequences,omitempty"`
}

func (Section) TableName() string {
	return "sections"
}

// Sequence is either a content page (ContentID set) or a quiz (FormID set).
//
// swagger:model Sequence
type Sequence struct {
	BaseModel
	SectionID uint     `gorm:"uniqueIndex:idx_sequence_section_order;not null" json:"sectionId"`
	Section   *Section `gorm:"foreignKey:SectionID" json:"section,omitempty"`
	Title     string   `gorm:"size:255" json:"title"`
	Order     int      `gorm:"column:order;uniqueIndex:idx_sequence_section_order;default:0" json:"order"`
	ContentID *uint    `gorm:"index" json:"contentId,omitempty"`
	FormID    *uint    `gorm:"index" json:"formId,omitempty"`
	Active    bool     `gorm:"default:true" json:"active"`
}

func (Sequence) TableName() string {
	return "sequences"
}

func (s *Sequence) IsQuiz() bool {
	return s.FormID != nil
}

const (
	TrackCycleDraft  = "draft"
	TrackCycleActive = "active"
	TrackCycleClosed = "closed"
)

// swagger:model TrackCycle
type TrackCycle struct {
	BaseModel
	TrackID       uint      `gorm:"index;not null" json:"trackId"`
	Track         *Track    `gorm:"foreignKey:TrackID" json:"track,omitempty"`
	ContextID     uint      `gorm:"index;not null" json:"contextId"`
	Name          string    `gorm:"size:255" json:"name"`
	StartDate     time.Time `gorm:"index" json:"startDate"`
	EndDate       time.Time `gorm:"index" json:"endDate"`
	MandatorySlug *string   `gorm:"size:100;index" json:"mandatorySlug,omitempty"`
	Status        string    `gorm:"size:20;default:'draft'" json:"status"`
	Active        bool      `gorm:"default:true" json:"active"`
}

func (TrackCycle) TableName() string {
	return "track_cycles"
}
