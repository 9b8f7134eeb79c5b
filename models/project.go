// models/project.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project statuses
const (
	ProjectStatusActive    = "ACTIVE"
	ProjectStatusCompleted = "COMPLETED"
)

// Project groups the units installed for one client under one workflow
// template. ClientToken is an unguessable identifier handed to the client
// for their read-only status page.
type Project struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string       `gorm:"size:200;not null" json:"name"`
	ProjectTypeID uuid.UUID    `gorm:"type:uuid;not null;index" json:"project_type_id"`
	ProjectType   *ProjectType `gorm:"foreignKey:ProjectTypeID" json:"project_type,omitempty"`
	Status        string       `gorm:"size:20;not null;default:'ACTIVE';index" json:"status"`
	ClientToken   uuid.UUID    `gorm:"type:uuid;uniqueIndex;not null" json:"client_token"`

	// Catalog file feeding dropdown field vocabularies
	CatalogFileName   string     `gorm:"size:255" json:"catalog_file_name,omitempty"`
	CatalogFilePath   string     `gorm:"size:500" json:"catalog_file_path,omitempty"`
	CatalogUploadedAt *time.Time `json:"catalog_uploaded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Poles       []Pole              `gorm:"foreignKey:ProjectID" json:"poles,omitempty"`
	Contractors []ProjectContractor `gorm:"foreignKey:ProjectID" json:"contractors,omitempty"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ClientToken == uuid.Nil {
		p.ClientToken = uuid.New()
	}
	return
}

// TableName specifies the table name for Project
func (Project) TableName() string {
	return "projects"
}

// ProjectContractor assigns a contractor user to a project.
type ProjectContractor struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_project_contractor,unique" json:"project_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_project_contractor,unique" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (pc *ProjectContractor) BeforeCreate(tx *gorm.DB) (err error) {
	if pc.ID == uuid.Nil {
		pc.ID = uuid.New()
	}
	return
}

// TableName specifies the table name for ProjectContractor
func (ProjectContractor) TableName() string {
	return "project_contractors"
}

// ProjectProgress is the share of a project's units marked complete,
// floored to a whole percent. Zero units means zero percent.
func ProjectProgress(db *gorm.DB, projectID uuid.UUID) (int, error) {
	var total, done int64
	if err := db.Model(&Pole{}).Where("project_id = ?", projectID).Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	if err := db.Model(&Pole{}).
		Where("project_id = ? AND is_completed = ?", projectID, true).
		Count(&done).Error; err != nil {
		return 0, err
	}
	return int(done * 100 / total), nil
}

// IsAssignedContractor reports whether the user is assigned to the project.
func IsAssignedContractor(db *gorm.DB, projectID, userID uuid.UUID) (bool, error) {
	var count int64
	err := db.Model(&ProjectContractor{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}
