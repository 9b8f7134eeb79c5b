package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"p9e.in/fieldproof/config"
	"p9e.in/fieldproof/models"
)

// TemplateHandler manages workflow templates (project types and their
// ordered stage definitions).
type TemplateHandler struct {
	db *gorm.DB
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler() *TemplateHandler {
	return NewTemplateHandlerWith(config.DB)
}

// NewTemplateHandlerWith creates a template handler on an explicit DB.
func NewTemplateHandlerWith(db *gorm.DB) *TemplateHandler {
	return &TemplateHandler{db: db}
}

// CreateTemplateRequest represents the request to create a project type
type CreateTemplateRequest struct {
	Name        string `json:"name"`
	UnitName    string `json:"unit_name"`
	Description string `json:"description"`
	Stages      []struct {
		Name       string `json:"name"`
		Position   int    `json:"position"`
		IsRequired *bool  `json:"is_required"`
	} `json:"stages"`
}

// CreateTemplate creates a project type together with its stages.
func (h *TemplateHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}

	template := models.ProjectType{
		Name:        req.Name,
		UnitName:    req.UnitName,
		Description: req.Description,
	}
	if template.UnitName == "" {
		template.UnitName = "Pole"
	}
	for i, s := range req.Stages {
		stage := models.StageDefinition{
			Name:       s.Name,
			Position:   s.Position,
			Seq:        i + 1,
			IsRequired: true,
		}
		if s.IsRequired != nil {
			stage.IsRequired = *s.IsRequired
		}
		template.Stages = append(template.Stages, stage)
	}

	if err := h.db.Create(&template).Error; err != nil {
		log.Printf("❌ Failed to create template: %v", err)
		http.Error(w, "Failed to create template", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Created template: %s (%d stages)", template.Name, len(template.Stages))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "Template created successfully",
		"template": template,
	})
}

// ListTemplates returns all project types with their stages in order.
func (h *TemplateHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	var templates []models.ProjectType
	err := h.db.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc, seq asc")
	}).Find(&templates).Error
	if err != nil {
		http.Error(w, "Failed to load templates", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"templates": templates})
}

// AddStageRequest represents the request to append a stage to a template
type AddStageRequest struct {
	Name       string `json:"name"`
	Position   int    `json:"position"`
	IsRequired *bool  `json:"is_required"`
}

// AddStage appends a stage definition to an existing template.
func (h *TemplateHandler) AddStage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var template models.ProjectType
	if err := h.db.First(&template, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Template not found", http.StatusNotFound)
		return
	}

	var req AddStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}

	seq, err := models.NextStageSeq(h.db, template.ID)
	if err != nil {
		http.Error(w, "Failed to create stage", http.StatusInternalServerError)
		return
	}
	stage := models.StageDefinition{
		ProjectTypeID: template.ID,
		Name:          req.Name,
		Position:      req.Position,
		Seq:           seq,
		IsRequired:    true,
	}
	if req.IsRequired != nil {
		stage.IsRequired = *req.IsRequired
	}
	if err := h.db.Create(&stage).Error; err != nil {
		http.Error(w, "Failed to create stage", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Stage added successfully",
		"stage":   stage,
	})
}
