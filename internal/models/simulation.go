package models

import (
	"time"

	"gorm.io/datatypes"
)

type Simulation struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title     string `gorm:"column:title;type:text" json:"title"`
	Role      string `gorm:"column:role;type:text" json:"role"`
	CreatedBy string `gorm:"column:created_by;type:uuid;index" json:"created_by"`

	// Free-text brief the question list is derived from when no explicit
	// questions were supplied.
	Prompt string `gorm:"column:prompt;type:text" json:"prompt"`

	// Questions is the fixed interview sequence, [{text,category,index}].
	Questions datatypes.JSON `gorm:"column:questions;type:jsonb" json:"questions"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Simulation) TableName() string { return "simulations" }
