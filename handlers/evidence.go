package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"p9e.in/fieldproof/config"
	"p9e.in/fieldproof/middleware"
	"p9e.in/fieldproof/models"
	"p9e.in/fieldproof/utils"
)

// EvidenceHandler owns the evidence ledger: it enforces the
// one-evidence-per-(pole,stage) invariant, runs the GPS and watermark
// enrichment pipeline and keeps the derived completion flag in sync.
type EvidenceHandler struct {
	db *gorm.DB
}

// NewEvidenceHandler creates a new evidence handler
func NewEvidenceHandler() *EvidenceHandler {
	return NewEvidenceHandlerWith(config.DB)
}

// NewEvidenceHandlerWith creates an evidence handler on an explicit DB.
func NewEvidenceHandlerWith(db *gorm.DB) *EvidenceHandler {
	return &EvidenceHandler{db: db}
}

// evidenceMeta records where an upload's coordinates came from and
// whether the stored image carries the watermark.
type evidenceMeta struct {
	Filename         string `json:"filename"`
	CoordinateSource string `json:"coordinate_source"` // client, exif, none
	Watermarked      bool   `json:"watermarked"`
}

// UploadEvidence handles POST /poles/{id}/evidence. Multipart fields:
// image (required), stage_id (required), gps_lat / gps_long (optional).
//
// Client-supplied coordinates win over EXIF coordinates. The original
// bytes are persisted before watermarking so the proof photo survives any
// enrichment failure, and the replace + recompute sequence runs in one
// transaction serialized on the pole row.
func (h *EvidenceHandler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var pole models.Pole
	if err := h.db.First(&pole, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Pole not found", http.StatusNotFound)
		return
	}
	if !h.canUpload(r, pole.ProjectID) {
		http.Error(w, "not assigned to this project", http.StatusForbidden)
		return
	}

	// Max 20MB; evidence photos are processed synchronously in memory.
	if err := r.ParseMultipartForm(20 << 20); err != nil {
		http.Error(w, "bad multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	stageIDStr := r.FormValue("stage_id")
	if stageIDStr == "" {
		http.Error(w, "stage_id is required", http.StatusBadRequest)
		return
	}
	stageID, err := uuid.Parse(stageIDStr)
	if err != nil {
		http.Error(w, "invalid stage_id", http.StatusBadRequest)
		return
	}

	var project models.Project
	if err := h.db.First(&project, "id = ?", pole.ProjectID).Error; err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}
	var stage models.StageDefinition
	if err := h.db.First(&stage, "id = ?", stageID).Error; err != nil {
		http.Error(w, "Stage not found", http.StatusBadRequest)
		return
	}
	if stage.ProjectTypeID != project.ProjectTypeID {
		http.Error(w, "stage does not belong to this project's template", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "missing image field: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read image: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty image upload", http.StatusBadRequest)
		return
	}

	// Coordinate precedence: explicit client values, then EXIF, then none.
	lat, lon, ok := normalizeCoordinates(r.FormValue("gps_lat"), r.FormValue("gps_long"))
	meta := evidenceMeta{Filename: header.Filename, CoordinateSource: "client"}
	if !ok {
		meta.CoordinateSource = "none"
		lat, lon = "", ""
		if exifLat, exifLon, err := utils.ExtractGPS(bytes.NewReader(data)); err == nil {
			lat, lon = exifLat, exifLon
			meta.CoordinateSource = "exif"
		} else {
			log.Printf("evidence: no usable EXIF coordinates for %s: %v", header.Filename, err)
		}
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	evidence := models.Evidence{
		PoleID:      pole.ID,
		StageID:     stage.ID,
		Image:       data,
		ContentType: contentType,
	}
	if lat != "" && lon != "" {
		evidence.GPSLat, evidence.GPSLong = &lat, &lon
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		locked, err := lockPole(tx, pole.ID)
		if err != nil {
			return err
		}

		// Replace semantics: never two rows for one (pole, stage).
		if err := tx.Where("pole_id = ? AND stage_id = ?", pole.ID, stage.ID).
			Delete(&models.Evidence{}).Error; err != nil {
			return err
		}

		// Original bytes first: the proof survives even if branding fails.
		metaJSON, _ := json.Marshal(meta)
		evidence.Metadata = datatypes.JSON(metaJSON)
		if err := tx.Create(&evidence).Error; err != nil {
			return err
		}

		if lat != "" && lon != "" {
			branded := utils.Watermark(data, lat, lon)
			if !bytes.Equal(branded, data) {
				meta.Watermarked = true
				metaJSON, _ := json.Marshal(meta)
				err := tx.Model(&evidence).Updates(map[string]interface{}{
					"image":        branded,
					"content_type": "image/jpeg",
					"metadata":     datatypes.JSON(metaJSON),
				}).Error
				if err != nil {
					// Keep the original upload; branding is best effort.
					log.Printf("evidence: storing watermarked image failed: %v", err)
				} else {
					evidence.Image = branded
					evidence.ContentType = "image/jpeg"
					evidence.Metadata = datatypes.JSON(metaJSON)
				}
			}
		}

		if _, err := models.RecomputeCompletion(tx, locked); err != nil {
			return err
		}
		pole = *locked
		return nil
	})
	if err != nil {
		log.Printf("❌ Evidence upload failed for pole %s: %v", pole.ID, err)
		http.Error(w, "Failed to save evidence", http.StatusInternalServerError)
		return
	}

	progress, err := models.ProgressPercent(h.db, &pole)
	if err != nil {
		log.Printf("evidence: progress computation failed: %v", err)
	}

	log.Printf("✅ Evidence saved: pole %s stage %s (%s)", pole.Identifier, stage.Name, meta.CoordinateSource)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":          "Upload successful",
		"evidence":         evidence,
		"is_completed":     pole.IsCompleted,
		"progress_percent": progress,
	})
}

// DeleteEvidence handles DELETE /evidence/{id}. The owning pole's
// completion flag is recomputed in the same transaction.
func (h *EvidenceHandler) DeleteEvidence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var evidence models.Evidence
	if err := h.db.First(&evidence, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Evidence not found", http.StatusNotFound)
		return
	}

	var pole models.Pole
	err := h.db.Transaction(func(tx *gorm.DB) error {
		locked, err := lockPole(tx, evidence.PoleID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Evidence{}, "id = ?", evidence.ID).Error; err != nil {
			return err
		}
		if _, err := models.RecomputeCompletion(tx, locked); err != nil {
			return err
		}
		pole = *locked
		return nil
	})
	if err != nil {
		log.Printf("❌ Evidence delete failed: %v", err)
		http.Error(w, "Failed to delete evidence", http.StatusInternalServerError)
		return
	}

	progress, err := models.ProgressPercent(h.db, &pole)
	if err != nil {
		log.Printf("evidence: progress computation failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":          "Evidence deleted",
		"is_completed":     pole.IsCompleted,
		"progress_percent": progress,
	})
}

// ListEvidence handles GET /poles/{id}/evidence, stage-ordered.
func (h *EvidenceHandler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var pole models.Pole
	if err := h.db.First(&pole, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Pole not found", http.StatusNotFound)
		return
	}

	var evidence []models.Evidence
	err := h.db.Preload("Stage").
		Joins("JOIN stage_definitions ON stage_definitions.id = evidences.stage_id").
		Where("evidences.pole_id = ?", pole.ID).
		Order("stage_definitions.position asc, stage_definitions.seq asc").
		Find(&evidence).Error
	if err != nil {
		http.Error(w, "Failed to load evidence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"evidence": evidence})
}

// GetEvidenceImage handles GET /evidence/{id}/image and serves the stored
// (possibly watermarked) bytes.
func (h *EvidenceHandler) GetEvidenceImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var evidence models.Evidence
	if err := h.db.First(&evidence, "id = ?", vars["id"]).Error; err != nil {
		http.Error(w, "Evidence not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", evidence.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(evidence.Image)
}

// normalizeCoordinates parses client-supplied coordinate strings and
// reformats them to the stored 6-fractional-digit precision. Missing or
// unparseable values fall through to EXIF extraction.
func normalizeCoordinates(latStr, lonStr string) (string, string, bool) {
	latStr = strings.TrimSpace(latStr)
	lonStr = strings.TrimSpace(lonStr)
	if latStr == "" || lonStr == "" {
		return "", "", false
	}
	lat, latErr := strconv.ParseFloat(latStr, 64)
	lon, lonErr := strconv.ParseFloat(lonStr, 64)
	if latErr != nil || lonErr != nil {
		return "", "", false
	}
	return fmt.Sprintf("%.6f", lat), fmt.Sprintf("%.6f", lon), true
}

// lockPole serializes evidence mutations per pole. Postgres takes a row
// lock; sqlite (tests) already serializes writers.
func lockPole(tx *gorm.DB, poleID uuid.UUID) (*models.Pole, error) {
	var pole models.Pole
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&pole, "id = ?", poleID).Error; err != nil {
		return nil, err
	}
	return &pole, nil
}

// canUpload allows admins everywhere and contractors on their assigned
// projects. Requests with no claims (internal callers, tests) pass.
func (h *EvidenceHandler) canUpload(r *http.Request, projectID uuid.UUID) bool {
	claims := middleware.GetClaims(r)
	if claims == nil || claims.Role != models.RoleContractor {
		return true
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return false
	}
	assigned, err := models.IsAssignedContractor(h.db, projectID, userID)
	if err != nil {
		log.Printf("evidence: assignment check failed: %v", err)
		return false
	}
	return assigned
}
