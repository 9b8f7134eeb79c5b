package models

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func addEvidence(t *testing.T, db *gorm.DB, poleID, stageID uuid.UUID) *Evidence {
	t.Helper()
	e := Evidence{PoleID: poleID, StageID: stageID, Image: []byte("jpeg bytes"), ContentType: "image/jpeg"}
	if err := db.Create(&e).Error; err != nil {
		t.Fatalf("create evidence: %v", err)
	}
	return &e
}

func TestRecomputeCompletionRequiredStagesOnly(t *testing.T) {
	db := openTestDB(t)
	template, project := seedTemplate(t, db, []StageDefinition{
		{Name: "Pit Excavation", Position: 1, IsRequired: true},
		{Name: "Pole Erection", Position: 2, IsRequired: true},
		{Name: "Beautification", Position: 3, IsRequired: false},
	})
	pole := Pole{ProjectID: project.ID, Identifier: "Pole #1", ShortCode: "CCCCCCC2"}
	if err := db.Create(&pole).Error; err != nil {
		t.Fatalf("create pole: %v", err)
	}
	stages, err := StagesForType(db, template.ID)
	if err != nil {
		t.Fatalf("load stages: %v", err)
	}

	// evidence for one required and the optional stage: not complete
	addEvidence(t, db, pole.ID, stages[0].ID)
	addEvidence(t, db, pole.ID, stages[2].ID)
	completed, err := RecomputeCompletion(db, &pole)
	if err != nil {
		t.Fatalf("RecomputeCompletion: %v", err)
	}
	if completed {
		t.Error("expected incomplete with only one required stage evidenced")
	}

	// second required stage tips it over
	addEvidence(t, db, pole.ID, stages[1].ID)
	completed, err = RecomputeCompletion(db, &pole)
	if err != nil {
		t.Fatalf("RecomputeCompletion: %v", err)
	}
	if !completed {
		t.Error("expected complete with all required stages evidenced")
	}
	var stored Pole
	if err := db.First(&stored, "id = ?", pole.ID).Error; err != nil {
		t.Fatalf("reload pole: %v", err)
	}
	if !stored.IsCompleted {
		t.Error("expected the completion flag to be persisted")
	}
}

func TestRecomputeCompletionSurvivesTemplateEdits(t *testing.T) {
	db := openTestDB(t)
	template, project := seedTemplate(t, db, []StageDefinition{
		{Name: "Pit Excavation", Position: 1, IsRequired: true},
		{Name: "Pole Erection", Position: 2, IsRequired: true},
	})
	pole := Pole{ProjectID: project.ID, Identifier: "Pole #1", ShortCode: "DDDDDDD2"}
	if err := db.Create(&pole).Error; err != nil {
		t.Fatalf("create pole: %v", err)
	}
	stages, err := StagesForType(db, template.ID)
	if err != nil {
		t.Fatalf("load stages: %v", err)
	}
	for _, stage := range stages {
		addEvidence(t, db, pole.ID, stage.ID)
	}
	if completed, err := RecomputeCompletion(db, &pole); err != nil || !completed {
		t.Fatalf("expected complete after all uploads, got %v, %v", completed, err)
	}

	// relaxing a stage to optional must not flip the pole back
	err = db.Model(&StageDefinition{}).
		Where("id = ?", stages[1].ID).
		Update("is_required", false).Error
	if err != nil {
		t.Fatalf("edit stage: %v", err)
	}
	if completed, err := RecomputeCompletion(db, &pole); err != nil || !completed {
		t.Fatalf("expected still complete after the template edit, got %v, %v", completed, err)
	}
}

func TestProgressPercentCountsAllStages(t *testing.T) {
	db := openTestDB(t)
	template, project := seedTemplate(t, db, []StageDefinition{
		{Name: "Pit Excavation", Position: 1, IsRequired: true},
		{Name: "Pole Erection", Position: 2, IsRequired: true},
		{Name: "Beautification", Position: 3, IsRequired: false},
	})
	pole := Pole{ProjectID: project.ID, Identifier: "Pole #1", ShortCode: "EEEEEEE2"}
	if err := db.Create(&pole).Error; err != nil {
		t.Fatalf("create pole: %v", err)
	}
	stages, err := StagesForType(db, template.ID)
	if err != nil {
		t.Fatalf("load stages: %v", err)
	}

	progress, err := ProgressPercent(db, &pole)
	if err != nil {
		t.Fatalf("ProgressPercent: %v", err)
	}
	if progress != 0 {
		t.Errorf("expected 0%% with no evidence, got %d", progress)
	}

	addEvidence(t, db, pole.ID, stages[0].ID)
	progress, err = ProgressPercent(db, &pole)
	if err != nil {
		t.Fatalf("ProgressPercent: %v", err)
	}
	if progress != 33 {
		t.Errorf("expected 33%% floored, got %d", progress)
	}

	// the optional stage still counts toward progress
	addEvidence(t, db, pole.ID, stages[2].ID)
	progress, err = ProgressPercent(db, &pole)
	if err != nil {
		t.Fatalf("ProgressPercent: %v", err)
	}
	if progress != 66 {
		t.Errorf("expected 66%% floored, got %d", progress)
	}
}

func TestProgressPercentEmptyTemplate(t *testing.T) {
	db := openTestDB(t)
	_, project := seedTemplate(t, db, nil)
	pole := Pole{ProjectID: project.ID, Identifier: "Pole #1", ShortCode: "FFFFFFF2"}
	if err := db.Create(&pole).Error; err != nil {
		t.Fatalf("create pole: %v", err)
	}

	progress, err := ProgressPercent(db, &pole)
	if err != nil {
		t.Fatalf("ProgressPercent: %v", err)
	}
	if progress != 0 {
		t.Errorf("expected 0%% for a template with no stages, got %d", progress)
	}
}

func TestProjectProgress(t *testing.T) {
	db := openTestDB(t)
	_, project := seedTemplate(t, db, []StageDefinition{
		{Name: "Pole Erection", Position: 1, IsRequired: true},
	})

	progress, err := ProjectProgress(db, project.ID)
	if err != nil {
		t.Fatalf("ProjectProgress: %v", err)
	}
	if progress != 0 {
		t.Errorf("expected 0%% with no poles, got %d", progress)
	}

	done := Pole{ProjectID: project.ID, Identifier: "Pole #1", ShortCode: "GGGGGGG2", IsCompleted: true}
	pending := Pole{ProjectID: project.ID, Identifier: "Pole #2", ShortCode: "GGGGGGG3"}
	for _, p := range []*Pole{&done, &pending} {
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("create pole: %v", err)
		}
	}

	progress, err = ProjectProgress(db, project.ID)
	if err != nil {
		t.Fatalf("ProjectProgress: %v", err)
	}
	if progress != 50 {
		t.Errorf("expected 50%%, got %d", progress)
	}
}
