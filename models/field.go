// models/field.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FieldKind defines how a custom field is entered and validated
type FieldKind string

const (
	FieldKindText     FieldKind = "text"     // free text
	FieldKindDropdown FieldKind = "dropdown" // value must appear in the catalog column
)

// FieldDefinition is a per-project custom attribute schema for units.
// Dropdown fields name a column in the project's uploaded catalog file;
// their vocabulary is read live from that file, never stored.
type FieldDefinition struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_project_field,unique" json:"project_id"`
	Project   *Project  `gorm:"foreignKey:ProjectID" json:"project,omitempty"`

	Name          string    `gorm:"size:100;not null;index:idx_project_field,unique" json:"name"`
	Kind          FieldKind `gorm:"size:20;not null;default:'text'" json:"kind"`
	CatalogColumn string    `gorm:"size:100" json:"catalog_column,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (fd *FieldDefinition) BeforeCreate(tx *gorm.DB) (err error) {
	if fd.ID == uuid.Nil {
		fd.ID = uuid.New()
	}
	return
}

// TableName specifies the table name for FieldDefinition
func (FieldDefinition) TableName() string {
	return "field_definitions"
}

// FieldValue is one unit's value for one field definition.
type FieldValue struct {
	ID      uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	PoleID  uuid.UUID        `gorm:"type:uuid;not null;index:idx_pole_field,unique" json:"pole_id"`
	Pole    *Pole            `gorm:"foreignKey:PoleID" json:"pole,omitempty"`
	FieldID uuid.UUID        `gorm:"type:uuid;not null;index:idx_pole_field,unique" json:"field_id"`
	Field   *FieldDefinition `gorm:"foreignKey:FieldID" json:"field,omitempty"`

	Value string `gorm:"type:text;not null" json:"value"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (fv *FieldValue) BeforeCreate(tx *gorm.DB) (err error) {
	if fv.ID == uuid.Nil {
		fv.ID = uuid.New()
	}
	return
}

// TableName specifies the table name for FieldValue
func (FieldValue) TableName() string {
	return "field_values"
}
