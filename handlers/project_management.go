package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
	"p9e.in/fieldproof/config"
	"p9e.in/fieldproof/middleware"
	"p9e.in/fieldproof/models"
)

// ProjectHandler handles project and pole management operations
type ProjectHandler struct {
	db *gorm.DB
}

// NewProjectHandler creates a new project handler
func NewProjectHandler() *ProjectHandler {
	return NewProjectHandlerWith(config.DB)
}

// NewProjectHandlerWith creates a project handler on an explicit DB.
func NewProjectHandlerWith(db *gorm.DB) *ProjectHandler {
	return &ProjectHandler{db: db}
}

// CreateProjectRequest represents the request to create a project
type CreateProjectRequest struct {
	Name          string    `json:"name"`
	ProjectTypeID uuid.UUID `json:"project_type_id"`
}

// CreateProject creates a new project
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.ProjectTypeID == uuid.Nil {
		http.Error(w, "Name and project_type_id are required", http.StatusBadRequest)
		return
	}

	var template models.ProjectType
	if err := h.db.First(&template, "id = ?", req.ProjectTypeID).Error; err != nil {
		http.Error(w, "Project type not found", http.StatusBadRequest)
		return
	}

	project := models.Project{
		Name:          req.Name,
		ProjectTypeID: template.ID,
		Status:        models.ProjectStatusActive,
	}
	if err := h.db.Create(&project).Error; err != nil {
		log.Printf("❌ Failed to create project: %v", err)
		http.Error(w, "Failed to create project", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Created project: %s (ID: %s)", project.Name, project.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Project created successfully",
		"project": project,
	})
}

// ListProjects returns projects visible to the caller: admins see all,
// contractors only their assigned projects, split by status.
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	q := h.db.Preload("ProjectType").Order("created_at desc")

	claims := middleware.GetClaims(r)
	if claims != nil && claims.Role == models.RoleContractor {
		q = q.Joins("JOIN project_contractors ON project_contractors.project_id = projects.id").
			Where("project_contractors.user_id = ?", claims.UserID)
	}

	var projects []models.Project
	if err := q.Find(&projects).Error; err != nil {
		http.Error(w, "Failed to load projects", http.StatusInternalServerError)
		return
	}

	active := make([]models.Project, 0)
	completed := make([]models.Project, 0)
	for _, p := range projects {
		if p.Status == models.ProjectStatusCompleted {
			completed = append(completed, p)
		} else {
			active = append(active, p)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"active_projects":    active,
		"completed_projects": completed,
	})
}

// poleSummary is a pole plus its derived progress numbers.
type poleSummary struct {
	models.Pole
	ProgressPercent int `json:"progress_percent"`
}

// GetProject returns one project with its poles and per-pole progress.
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.Preload("ProjectType").First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	var poles []models.Pole
	if err := h.db.Where("project_id = ?", project.ID).Order("created_at asc").Find(&poles).Error; err != nil {
		http.Error(w, "Failed to load poles", http.StatusInternalServerError)
		return
	}

	summaries := make([]poleSummary, 0, len(poles))
	for i := range poles {
		progress, err := models.ProgressPercent(h.db, &poles[i])
		if err != nil {
			log.Printf("project: progress computation failed for %s: %v", poles[i].ID, err)
		}
		summaries = append(summaries, poleSummary{Pole: poles[i], ProgressPercent: progress})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"project": project,
		"poles":   summaries,
	})
}

// MarkProjectCompleted flips a project to COMPLETED status.
func (h *ProjectHandler) MarkProjectCompleted(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	if err := h.db.Model(&project).Update("status", models.ProjectStatusCompleted).Error; err != nil {
		http.Error(w, "Failed to update project", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Project marked completed",
		"project": project,
	})
}

// AssignContractorRequest represents the request to assign a contractor
type AssignContractorRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// AssignContractor assigns a contractor user to a project.
func (h *ProjectHandler) AssignContractor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	var req AssignContractorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", req.UserID).Error; err != nil {
		http.Error(w, "User not found", http.StatusBadRequest)
		return
	}
	if user.Role != models.RoleContractor {
		http.Error(w, "user is not a contractor", http.StatusBadRequest)
		return
	}

	assignment := models.ProjectContractor{ProjectID: project.ID, UserID: user.ID}
	if err := h.db.Create(&assignment).Error; err != nil {
		http.Error(w, "Failed to assign contractor", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":    "Contractor assigned",
		"assignment": assignment,
	})
}

// CreatePole adds the next unit to a project. The display identifier is
// generated from the template's unit name ("Gantry #4"); the short code is
// generated, checked for uniqueness and retried on collision.
func (h *ProjectHandler) CreatePole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.Preload("ProjectType").First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	unitName := "Pole"
	if project.ProjectType != nil && project.ProjectType.UnitName != "" {
		unitName = project.ProjectType.UnitName
	}

	identifier, err := models.NextIdentifier(h.db, &project, unitName)
	if err != nil {
		http.Error(w, "Failed to generate identifier", http.StatusInternalServerError)
		return
	}
	shortCode, err := models.GenerateShortCode(h.db)
	if err != nil {
		http.Error(w, "Failed to generate short code", http.StatusInternalServerError)
		return
	}

	pole := models.Pole{
		ProjectID:  project.ID,
		Identifier: identifier,
		ShortCode:  shortCode,
	}
	if err := h.db.Create(&pole).Error; err != nil {
		log.Printf("❌ Failed to create pole: %v", err)
		http.Error(w, "Failed to create pole", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ New %s added: %s", unitName, identifier)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Pole created successfully",
		"pole":    pole,
	})
}

// GetPole returns one pole with its template stages, the evidence on file
// per stage, and the derived progress numbers.
func (h *ProjectHandler) GetPole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var pole models.Pole
	if err := h.db.First(&pole, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Pole not found", http.StatusNotFound)
		return
	}
	var project models.Project
	if err := h.db.First(&project, "id = ?", pole.ProjectID).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	stages, err := models.StagesForType(h.db, project.ProjectTypeID)
	if err != nil {
		http.Error(w, "Failed to load stages", http.StatusInternalServerError)
		return
	}

	var evidence []models.Evidence
	if err := h.db.Where("pole_id = ?", pole.ID).Find(&evidence).Error; err != nil {
		http.Error(w, "Failed to load evidence", http.StatusInternalServerError)
		return
	}
	evidenceByStage := make(map[uuid.UUID]models.Evidence, len(evidence))
	for _, e := range evidence {
		evidenceByStage[e.StageID] = e
	}

	progress, err := models.ProgressPercent(h.db, &pole)
	if err != nil {
		log.Printf("pole: progress computation failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pole":              pole,
		"stages":            stages,
		"evidence_by_stage": evidenceByStage,
		"progress_percent":  progress,
		"is_completed":      pole.IsCompleted,
	})
}

// ClientView serves the unauthenticated read-only status page for a
// project, addressed by its unguessable client token.
func (h *ProjectHandler) ClientView(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	token, err := uuid.Parse(vars["token"])
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}
	var project models.Project
	if err := h.db.Preload("ProjectType").First(&project, "client_token = ?", token).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	progress, err := models.ProjectProgress(h.db, project.ID)
	if err != nil {
		http.Error(w, "Failed to compute progress", http.StatusInternalServerError)
		return
	}

	history, err := h.polesWithHistory(project.ID)
	if err != nil {
		http.Error(w, "Failed to load poles", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"project": map[string]interface{}{
			"name":      project.Name,
			"status":    project.Status,
			"unit_name": project.ProjectType.UnitName,
		},
		"progress_percent": progress,
		"poles":            history,
	})
}

// Inspection returns every pole of a project with its evidence in stage
// order, for the admin review screen.
func (h *ProjectHandler) Inspection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	history, err := h.polesWithHistory(project.ID)
	if err != nil {
		http.Error(w, "Failed to load poles", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"project":    project,
		"inspection": history,
	})
}

// poleHistory pairs a pole with its stage-ordered evidence.
type poleHistory struct {
	Pole    models.Pole       `json:"pole"`
	History []models.Evidence `json:"history"`
}

func (h *ProjectHandler) polesWithHistory(projectID uuid.UUID) ([]poleHistory, error) {
	var poles []models.Pole
	if err := h.db.Where("project_id = ?", projectID).Order("created_at asc").Find(&poles).Error; err != nil {
		return nil, err
	}

	out := make([]poleHistory, 0, len(poles))
	for _, pole := range poles {
		var history []models.Evidence
		err := h.db.Preload("Stage").
			Joins("JOIN stage_definitions ON stage_definitions.id = evidences.stage_id").
			Where("evidences.pole_id = ?", pole.ID).
			Order("stage_definitions.position asc, stage_definitions.seq asc").
			Find(&history).Error
		if err != nil {
			return nil, err
		}
		out = append(out, poleHistory{Pole: pole, History: history})
	}
	return out, nil
}

// EvidenceGeoJSON returns every located evidence photo of a project as a
// GeoJSON FeatureCollection for map display.
func (h *ProjectHandler) EvidenceGeoJSON(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	var evidence []models.Evidence
	err := h.db.Preload("Stage").Preload("Pole").
		Joins("JOIN poles ON poles.id = evidences.pole_id").
		Where("poles.project_id = ? AND evidences.gps_lat IS NOT NULL AND evidences.gps_long IS NOT NULL", project.ID).
		Find(&evidence).Error
	if err != nil {
		http.Error(w, "Failed to load evidence", http.StatusInternalServerError)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, e := range evidence {
		lat, latErr := strconv.ParseFloat(*e.GPSLat, 64)
		lon, lonErr := strconv.ParseFloat(*e.GPSLong, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		feature := geojson.NewFeature(orb.Point{lon, lat})
		feature.Properties["evidence_id"] = e.ID.String()
		feature.Properties["captured_at"] = e.CapturedAt
		if e.Pole != nil {
			feature.Properties["pole"] = e.Pole.Identifier
		}
		if e.Stage != nil {
			feature.Properties["stage"] = e.Stage.Name
		}
		fc.Append(feature)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, "Failed to encode GeoJSON", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
