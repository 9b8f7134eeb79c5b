// models/evidence.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Evidence is one proof photo for one stage of one unit. At most one row
// exists per (pole, stage) pair at any time; a new upload for the same
// stage replaces the old row. Image bytes are stored on the row at final
// quality so the row and its photo live or die together.
type Evidence struct {
	ID      uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	PoleID  uuid.UUID        `gorm:"type:uuid;not null;index:idx_pole_stage,unique" json:"pole_id"`
	Pole    *Pole            `gorm:"foreignKey:PoleID" json:"pole,omitempty"`
	StageID uuid.UUID        `gorm:"type:uuid;not null;index:idx_pole_stage,unique" json:"stage_id"`
	Stage   *StageDefinition `gorm:"foreignKey:StageID" json:"stage,omitempty"`

	Image       []byte `gorm:"not null" json:"-"`
	ContentType string `gorm:"size:100;not null;default:'image/jpeg'" json:"content_type"`

	// Decimal strings with 6 fractional digits, nil when no fix was available.
	GPSLat  *string `gorm:"size:20" json:"gps_lat,omitempty"`
	GPSLong *string `gorm:"size:20" json:"gps_long,omitempty"`

	// Upload context: original filename, coordinate source (client/exif/none),
	// whether the watermark was applied.
	Metadata datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	CapturedAt time.Time `gorm:"autoCreateTime" json:"captured_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (e *Evidence) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return
}

// TableName specifies the table name for Evidence
func (Evidence) TableName() string {
	return "evidences"
}

// distinctStagesWithEvidence counts the distinct stages holding evidence
// for a pole, optionally restricted to required stages.
func distinctStagesWithEvidence(db *gorm.DB, poleID uuid.UUID, requiredOnly bool) (int64, error) {
	q := db.Model(&Evidence{}).
		Joins("JOIN stage_definitions ON stage_definitions.id = evidences.stage_id").
		Where("evidences.pole_id = ?", poleID)
	if requiredOnly {
		q = q.Where("stage_definitions.is_required = ?", true)
	}
	var count int64
	err := q.Distinct("evidences.stage_id").Count(&count).Error
	return count, err
}

// RecomputeCompletion refreshes a pole's derived completion flag from the
// evidence rows currently on file and persists it. The comparison is >=
// rather than ==, so evidence left over from a since-edited template keeps
// the pole complete instead of flapping.
func RecomputeCompletion(db *gorm.DB, pole *Pole) (bool, error) {
	var project Project
	if err := db.First(&project, "id = ?", pole.ProjectID).Error; err != nil {
		return false, err
	}
	required, err := RequiredStageCount(db, project.ProjectTypeID)
	if err != nil {
		return false, err
	}
	uploaded, err := distinctStagesWithEvidence(db, pole.ID, true)
	if err != nil {
		return false, err
	}

	completed := uploaded >= required
	if err := db.Model(pole).Update("is_completed", completed).Error; err != nil {
		return false, err
	}
	pole.IsCompleted = completed
	return completed, nil
}

// ProgressPercent is the share of the template's stages (required or not)
// holding evidence for this pole, floored to a whole percent. A template
// with no stages reports zero, not one hundred.
func ProgressPercent(db *gorm.DB, pole *Pole) (int, error) {
	var project Project
	if err := db.First(&project, "id = ?", pole.ProjectID).Error; err != nil {
		return 0, err
	}
	var total int64
	if err := db.Model(&StageDefinition{}).
		Where("project_type_id = ?", project.ProjectTypeID).
		Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	uploaded, err := distinctStagesWithEvidence(db, pole.ID, false)
	if err != nil {
		return 0, err
	}
	return int(uploaded * 100 / total), nil
}
