package model

// swagger:model Context
type Context struct {
	BaseModel
	Name   string `gorm:"size:255;not null" json:"name"`
	Active bool   `gorm:"default:true" json:"active"`
}

func (Context) TableName() string {
	return "contexts"
}

// Participation is a learner's enrollment in a context. Progress is tracked against it.
//
// swagger:model Participation
type Participation struct {
	BaseModel
	UserID    uint     `gorm:"index;not null" json:"userId"`
	ContextID uint     `gorm:"index;not null" json:"contextId"`
	Context   *Context `gorm:"foreignKey:ContextID" json:"context,omitempty"`
	Active    bool     `gorm:"default:true" json:"active"`
}

func (Participation) TableName() string {
	return "participations"
}
