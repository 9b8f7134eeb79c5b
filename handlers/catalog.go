package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"p9e.in/fieldproof/config"
	"p9e.in/fieldproof/models"
)

// CatalogHandler manages each project's uploaded catalog file and the
// custom fields validated against it.
type CatalogHandler struct {
	db     *gorm.DB
	reader *CatalogReader
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler() *CatalogHandler {
	return NewCatalogHandlerWith(config.DB)
}

// NewCatalogHandlerWith creates a catalog handler on an explicit DB.
func NewCatalogHandlerWith(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{db: db, reader: NewCatalogReader()}
}

// UploadCatalog handles POST /projects/{id}/catalog. The file lands under
// the upload directory with a timestamped name and replaces the project's
// previous catalog.
func (h *CatalogHandler) UploadCatalog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	if err := r.ParseMultipartForm(50 << 20); err != nil {
		http.Error(w, "bad multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Base name only: a crafted multipart filename must not carry path
	// components into the upload directory.
	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".csv" && ext != ".xlsx" {
		http.Error(w, "only .csv and .xlsx catalogs are supported", http.StatusBadRequest)
		return
	}

	uploadDir := config.UploadDir()
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		http.Error(w, "failed to create upload directory: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Timestamped filename to avoid collisions
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("%s-%s", timestamp, name)
	path := filepath.Join(uploadDir, filename)

	dst, err := os.Create(path)
	if err != nil {
		http.Error(w, "failed to create file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		http.Error(w, "failed to save file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now()
	err = h.db.Model(&project).Updates(map[string]interface{}{
		"catalog_file_name":   name,
		"catalog_file_path":   path,
		"catalog_uploaded_at": &now,
	}).Error
	if err != nil {
		http.Error(w, "failed to record catalog upload", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Catalog uploaded for project %s: %s", project.Name, name)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "Catalog uploaded successfully",
		"filename": name,
	})
}

// GetCatalogHeaders handles GET /projects/{id}/catalog/headers.
func (h *CatalogHandler) GetCatalogHeaders(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	headers := []string{}
	if f := h.openCatalog(&project); f != nil {
		defer f.Close()
		headers = h.reader.ListHeaders(f, project.CatalogFileName)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"headers": headers})
}

// GetCatalogValues handles GET /projects/{id}/catalog/values?column=Name.
func (h *CatalogHandler) GetCatalogValues(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	column := r.URL.Query().Get("column")
	if column == "" {
		http.Error(w, "column parameter required", http.StatusBadRequest)
		return
	}

	var project models.Project
	if err := h.db.First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	values := []string{}
	if f := h.openCatalog(&project); f != nil {
		defer f.Close()
		values = h.reader.ListDistinctValues(f, project.CatalogFileName, column)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"column": column,
		"values": values,
	})
}

// openCatalog opens the project's catalog file, nil when absent. A missing
// file is not an error; vocabulary reads just come back empty.
func (h *CatalogHandler) openCatalog(project *models.Project) *os.File {
	if project.CatalogFilePath == "" {
		return nil
	}
	f, err := os.Open(project.CatalogFilePath)
	if err != nil {
		log.Printf("catalog: open %s failed: %v", project.CatalogFilePath, err)
		return nil
	}
	return f
}

// CreateFieldRequest represents the request to define a custom field
type CreateFieldRequest struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	CatalogColumn string `json:"catalog_column"`
}

// CreateField handles POST /projects/{id}/fields.
func (h *CatalogHandler) CreateField(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	var req CreateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}

	kind := models.FieldKind(req.Kind)
	switch kind {
	case "":
		kind = models.FieldKindText
	case models.FieldKindText, models.FieldKindDropdown:
	default:
		http.Error(w, "kind must be text or dropdown", http.StatusBadRequest)
		return
	}
	if kind == models.FieldKindDropdown && req.CatalogColumn == "" {
		http.Error(w, "dropdown fields require catalog_column", http.StatusBadRequest)
		return
	}

	field := models.FieldDefinition{
		ProjectID:     project.ID,
		Name:          req.Name,
		Kind:          kind,
		CatalogColumn: req.CatalogColumn,
	}
	if err := h.db.Create(&field).Error; err != nil {
		http.Error(w, "Failed to create field", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Field created successfully",
		"field":   field,
	})
}

// ListFields handles GET /projects/{id}/fields. Dropdown fields carry
// their current vocabulary, read live from the catalog file.
func (h *CatalogHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var project models.Project
	if err := h.db.First(&project, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	var fields []models.FieldDefinition
	if err := h.db.Where("project_id = ?", project.ID).Order("created_at asc").Find(&fields).Error; err != nil {
		http.Error(w, "Failed to load fields", http.StatusInternalServerError)
		return
	}

	type fieldWithChoices struct {
		models.FieldDefinition
		Choices []string `json:"choices,omitempty"`
	}
	out := make([]fieldWithChoices, 0, len(fields))
	for _, field := range fields {
		entry := fieldWithChoices{FieldDefinition: field}
		if field.Kind == models.FieldKindDropdown {
			if f := h.openCatalog(&project); f != nil {
				entry.Choices = h.reader.ListDistinctValues(f, project.CatalogFileName, field.CatalogColumn)
				f.Close()
			} else {
				entry.Choices = []string{}
			}
		}
		out = append(out, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"fields": out})
}

// SetFieldValueRequest represents the request to set a pole's field value
type SetFieldValueRequest struct {
	Value string `json:"value"`
}

// SetFieldValue handles PUT /poles/{id}/fields/{fieldId}. Dropdown values
// must appear in the catalog column's current vocabulary.
func (h *CatalogHandler) SetFieldValue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var pole models.Pole
	if err := h.db.First(&pole, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Pole not found", http.StatusNotFound)
		return
	}
	var field models.FieldDefinition
	if err := h.db.First(&field, "id = ?", vars["fieldId"]).Error; err != nil {
		http.Error(w, "Field not found", http.StatusNotFound)
		return
	}
	if field.ProjectID != pole.ProjectID {
		http.Error(w, "field does not belong to this pole's project", http.StatusBadRequest)
		return
	}

	var req SetFieldValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		http.Error(w, "value is required", http.StatusBadRequest)
		return
	}

	if field.Kind == models.FieldKindDropdown {
		var project models.Project
		if err := h.db.First(&project, "id = ?", pole.ProjectID).Error; err != nil {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		allowed := []string{}
		if f := h.openCatalog(&project); f != nil {
			allowed = h.reader.ListDistinctValues(f, project.CatalogFileName, field.CatalogColumn)
			f.Close()
		}
		found := false
		for _, v := range allowed {
			if v == value {
				found = true
				break
			}
		}
		if !found {
			http.Error(w, fmt.Sprintf("value %q is not in the %s vocabulary", value, field.CatalogColumn), http.StatusBadRequest)
			return
		}
	}

	fieldValue := models.FieldValue{PoleID: pole.ID, FieldID: field.ID, Value: value}
	err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pole_id"}, {Name: "field_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&fieldValue).Error
	if err != nil {
		http.Error(w, "Failed to save field value", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Field value saved",
		"value":   fieldValue,
	})
}

// ListFieldValues handles GET /poles/{id}/fields.
func (h *CatalogHandler) ListFieldValues(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var pole models.Pole
	if err := h.db.First(&pole, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Pole not found", http.StatusNotFound)
		return
	}

	var values []models.FieldValue
	if err := h.db.Preload("Field").Where("pole_id = ?", pole.ID).Find(&values).Error; err != nil {
		http.Error(w, "Failed to load field values", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"values": values})
}
