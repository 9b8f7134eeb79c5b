package handlers

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"p9e.in/fieldproof/models"
)

var testDBSeq int64

// openTestDB opens a fresh in-memory database per test. The shared cache
// keeps every pooled connection on the same database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(&models.User{}, &models.ProjectType{}, &models.StageDefinition{},
		&models.Project{}, &models.ProjectContractor{}, &models.Pole{}, &models.Evidence{},
		&models.FieldDefinition{}, &models.FieldValue{})
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// seedProject creates a three-stage template, one project and one pole.
func seedProject(t *testing.T, db *gorm.DB) (*models.Project, *models.Pole, []models.StageDefinition) {
	t.Helper()

	template := models.ProjectType{
		Name:     "Solar Lights",
		UnitName: "Pole",
		Stages: []models.StageDefinition{
			{Name: "Pit Excavation", Position: 1, Seq: 1, IsRequired: true},
			{Name: "Pole Erection", Position: 2, Seq: 2, IsRequired: true},
			{Name: "Light Installation", Position: 3, Seq: 3, IsRequired: true},
		},
	}
	if err := db.Create(&template).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}

	project := models.Project{Name: "Ward 12 Rollout", ProjectTypeID: template.ID, Status: models.ProjectStatusActive}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}

	pole := models.Pole{ProjectID: project.ID, Identifier: "Pole #1", ShortCode: "TESTPOLE"}
	if err := db.Create(&pole).Error; err != nil {
		t.Fatalf("seed pole: %v", err)
	}

	stages, err := models.StagesForType(db, template.ID)
	if err != nil {
		t.Fatalf("load stages: %v", err)
	}
	return &project, &pole, stages
}

// newTestRouter registers the handlers without auth middleware.
func newTestRouter(db *gorm.DB) *mux.Router {
	r := mux.NewRouter()
	evidenceHandler := NewEvidenceHandlerWith(db)
	projectHandler := NewProjectHandlerWith(db)
	catalogHandler := NewCatalogHandlerWith(db)

	r.HandleFunc("/poles/{id}/evidence", evidenceHandler.UploadEvidence).Methods("POST")
	r.HandleFunc("/poles/{id}/evidence", evidenceHandler.ListEvidence).Methods("GET")
	r.HandleFunc("/evidence/{id}", evidenceHandler.DeleteEvidence).Methods("DELETE")
	r.HandleFunc("/evidence/{id}/image", evidenceHandler.GetEvidenceImage).Methods("GET")
	r.HandleFunc("/projects/{id}/poles", projectHandler.CreatePole).Methods("POST")
	r.HandleFunc("/poles/{id}", projectHandler.GetPole).Methods("GET")
	r.HandleFunc("/client/{token}", projectHandler.ClientView).Methods("GET")
	r.HandleFunc("/projects/{id}/catalog", catalogHandler.UploadCatalog).Methods("POST")
	r.HandleFunc("/projects/{id}/fields", catalogHandler.CreateField).Methods("POST")
	r.HandleFunc("/poles/{id}/fields/{fieldId}", catalogHandler.SetFieldValue).Methods("PUT")
	return r
}

// testJPEG encodes a small valid JPEG with no EXIF metadata.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 32))
	for x := 0; x < 48; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{R: 40, G: 120, B: 220, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// gpsJPEG wraps testJPEG in a hand-built APP1 EXIF segment carrying a GPS
// fix at 12°30'36"N 77°36'0"E, i.e. 12.510000, 77.600000.
func gpsJPEG(t *testing.T) []byte {
	t.Helper()

	tiff := &bytes.Buffer{}
	le := binary.LittleEndian
	tiff.WriteString("II")
	binary.Write(tiff, le, uint16(42))
	binary.Write(tiff, le, uint32(8)) // IFD0 offset

	// IFD0: one entry, the GPS sub-IFD pointer
	binary.Write(tiff, le, uint16(1))
	binary.Write(tiff, le, uint16(0x8825)) // GPSInfoIFDPointer
	binary.Write(tiff, le, uint16(4))      // LONG
	binary.Write(tiff, le, uint32(1))
	binary.Write(tiff, le, uint32(26))
	binary.Write(tiff, le, uint32(0))

	// GPS IFD at 26: refs inline, rationals in the data area at 80 / 104
	binary.Write(tiff, le, uint16(4))
	entries := []struct {
		tag, typ uint16
		count    uint32
		value    [4]byte
	}{
		{0x0001, 2, 2, [4]byte{'N', 0, 0, 0}}, // GPSLatitudeRef
		{0x0002, 5, 3, [4]byte{80, 0, 0, 0}},  // GPSLatitude
		{0x0003, 2, 2, [4]byte{'E', 0, 0, 0}}, // GPSLongitudeRef
		{0x0004, 5, 3, [4]byte{104, 0, 0, 0}}, // GPSLongitude
	}
	for _, e := range entries {
		binary.Write(tiff, le, e.tag)
		binary.Write(tiff, le, e.typ)
		binary.Write(tiff, le, e.count)
		tiff.Write(e.value[:])
	}
	binary.Write(tiff, le, uint32(0))
	for _, v := range []uint32{12, 30, 36, 77, 36, 0} {
		binary.Write(tiff, le, v)
		binary.Write(tiff, le, uint32(1))
	}

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	app1 := []byte{0xFF, 0xE1, byte((len(payload) + 2) >> 8), byte(len(payload) + 2)}
	app1 = append(app1, payload...)

	base := testJPEG(t)
	out := make([]byte, 0, len(base)+len(app1))
	out = append(out, base[:2]...)
	out = append(out, app1...)
	out = append(out, base[2:]...)
	return out
}

// uploadBody builds the multipart payload for an evidence upload.
func uploadBody(t *testing.T, stageID string, imageData []byte, lat, lon string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if stageID != "" {
		if err := writer.WriteField("stage_id", stageID); err != nil {
			t.Fatalf("write stage_id: %v", err)
		}
	}
	if lat != "" {
		if err := writer.WriteField("gps_lat", lat); err != nil {
			t.Fatalf("write gps_lat: %v", err)
		}
	}
	if lon != "" {
		if err := writer.WriteField("gps_long", lon); err != nil {
			t.Fatalf("write gps_long: %v", err)
		}
	}
	if imageData != nil {
		part, err := writer.CreateFormFile("image", "site-photo.jpg")
		if err != nil {
			t.Fatalf("create image part: %v", err)
		}
		if _, err := part.Write(imageData); err != nil {
			t.Fatalf("write image part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}
