// models/pole.go
package models

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Pole is one physical unit being installed and tracked, historically a
// pole but named by its template's unit name ("Gantry #4"). IsCompleted is
// derived state: it is recomputed from the evidence set after every
// evidence mutation and must never be written by request payloads.
type Pole struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Project    *Project  `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Identifier string    `gorm:"size:50;not null" json:"identifier"`
	ShortCode  string    `gorm:"size:12;uniqueIndex;not null" json:"short_code"`
	IsCompleted bool     `gorm:"not null;default:false" json:"is_completed"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Evidence []Evidence `gorm:"foreignKey:PoleID" json:"evidence,omitempty"`
}

func (p *Pole) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}

// TableName specifies the table name for Pole
func (Pole) TableName() string {
	return "poles"
}

// Unambiguous alphabet for short codes (no 0/O, 1/I/L).
const shortCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const shortCodeLength = 8

// randomShortCode draws one candidate code.
func randomShortCode() (string, error) {
	buf := make([]byte, shortCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = shortCodeAlphabet[int(b)%len(shortCodeAlphabet)]
	}
	return string(buf), nil
}

// GenerateShortCode generates a unique short code for a pole.
// Codes are random, so a collision with an existing row is possible:
// generate, check uniqueness, retry.
func GenerateShortCode(db *gorm.DB) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := randomShortCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Model(&Pole{}).Where("short_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique short code")
}

// NextIdentifier builds the next display identifier for a project,
// e.g. "Pole #7". It starts at count+1 and bumps past any identifier
// already taken (deleted units leave holes).
func NextIdentifier(db *gorm.DB, project *Project, unitName string) (string, error) {
	var count int64
	if err := db.Model(&Pole{}).Where("project_id = ?", project.ID).Count(&count).Error; err != nil {
		return "", err
	}
	next := count + 1
	identifier := fmt.Sprintf("%s #%d", unitName, next)
	for {
		var taken int64
		if err := db.Model(&Pole{}).
			Where("project_id = ? AND identifier = ?", project.ID, identifier).
			Count(&taken).Error; err != nil {
			return "", err
		}
		if taken == 0 {
			return identifier, nil
		}
		next++
		identifier = fmt.Sprintf("%s #%d", unitName, next)
	}
}
