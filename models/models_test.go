package models

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// openTestDB opens a fresh in-memory database per test. The shared cache
// keeps every pooled connection on the same database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:models_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(&User{}, &ProjectType{}, &StageDefinition{},
		&Project{}, &ProjectContractor{}, &Pole{}, &Evidence{},
		&FieldDefinition{}, &FieldValue{})
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// seedTemplate creates a template with the given stages and one project.
func seedTemplate(t *testing.T, db *gorm.DB, stages []StageDefinition) (*ProjectType, *Project) {
	t.Helper()
	for i := range stages {
		if stages[i].Seq == 0 {
			stages[i].Seq = i + 1
		}
	}
	template := ProjectType{Name: "Solar Lights", UnitName: "Pole", Stages: stages}
	if err := db.Create(&template).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}
	project := Project{Name: "Ward 12 Rollout", ProjectTypeID: template.ID, Status: ProjectStatusActive}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return &template, &project
}
