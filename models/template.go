// models/template.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectType is a reusable workflow template. It names the unit being
// installed ("Pole", "Gantry", "Cabinet") and carries the ordered list of
// photographic stages every unit must pass through.
type ProjectType struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	UnitName    string    `gorm:"size:50;not null;default:'Pole'" json:"unit_name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Stages []StageDefinition `gorm:"foreignKey:ProjectTypeID" json:"stages,omitempty"`
}

func (pt *ProjectType) BeforeCreate(tx *gorm.DB) (err error) {
	if pt.ID == uuid.Nil {
		pt.ID = uuid.New()
	}
	return
}

// TableName specifies the table name for ProjectType
func (ProjectType) TableName() string {
	return "project_types"
}

// StageDefinition is one photographic milestone within a template,
// e.g. "Pit Excavation". Stages are ordered by Position; ties are broken
// by Seq, a per-template counter assigned at creation time. Seq exists
// because bulk-created stages share one created_at and uuid v4 ids carry
// no order, so neither can encode insertion order.
type StageDefinition struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectTypeID uuid.UUID    `gorm:"type:uuid;not null;index" json:"project_type_id"`
	ProjectType   *ProjectType `gorm:"foreignKey:ProjectTypeID" json:"project_type,omitempty"`

	Name       string `gorm:"size:100;not null" json:"name"`
	Position   int    `gorm:"not null;default:0" json:"position"`
	Seq        int    `gorm:"not null;default:0" json:"seq"`
	IsRequired bool   `gorm:"not null;default:true" json:"is_required"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *StageDefinition) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}

// TableName specifies the table name for StageDefinition
func (StageDefinition) TableName() string {
	return "stage_definitions"
}

// StagesForType returns a template's stages in workflow order.
func StagesForType(db *gorm.DB, projectTypeID uuid.UUID) ([]StageDefinition, error) {
	var stages []StageDefinition
	err := db.Where("project_type_id = ?", projectTypeID).
		Order("position asc, seq asc").
		Find(&stages).Error
	return stages, err
}

// NextStageSeq returns the next insertion sequence number for a
// template's stages.
func NextStageSeq(db *gorm.DB, projectTypeID uuid.UUID) (int, error) {
	var max int
	err := db.Model(&StageDefinition{}).
		Where("project_type_id = ?", projectTypeID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&max).Error
	return max + 1, err
}

// RequiredStageCount counts the stages a unit must evidence before it is
// considered complete.
func RequiredStageCount(db *gorm.DB, projectTypeID uuid.UUID) (int64, error) {
	var count int64
	err := db.Model(&StageDefinition{}).
		Where("project_type_id = ? AND is_required = ?", projectTypeID, true).
		Count(&count).Error
	return count, err
}
