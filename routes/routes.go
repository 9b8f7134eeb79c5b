package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"p9e.in/fieldproof/handlers"
	"p9e.in/fieldproof/middleware"
)

// RegisterRoutes wires all handlers onto the router.
func RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	templateHandler := handlers.NewTemplateHandler()
	projectHandler := handlers.NewProjectHandler()
	evidenceHandler := handlers.NewEvidenceHandler()
	catalogHandler := handlers.NewCatalogHandler()

	// Public routes (no authentication required)
	r.HandleFunc("/api/v1/register", handlers.Register).Methods("POST")
	r.HandleFunc("/api/v1/login", handlers.Login).Methods("POST")
	r.HandleFunc("/api/v1/client/{token}", projectHandler.ClientView).Methods("GET")

	// Protected API routes (require authentication)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.JWTMiddleware)

	admin := middleware.RequireRole("ADMIN")
	staff := middleware.RequireRole("ADMIN", "CONTRACTOR")

	// Workflow templates
	api.Handle("/templates", admin(http.HandlerFunc(templateHandler.CreateTemplate))).Methods("POST")
	api.Handle("/templates", staff(http.HandlerFunc(templateHandler.ListTemplates))).Methods("GET")
	api.Handle("/templates/{id}/stages", admin(http.HandlerFunc(templateHandler.AddStage))).Methods("POST")

	// Projects
	api.Handle("/projects", admin(http.HandlerFunc(projectHandler.CreateProject))).Methods("POST")
	api.Handle("/projects", staff(http.HandlerFunc(projectHandler.ListProjects))).Methods("GET")
	api.Handle("/projects/{id}", staff(http.HandlerFunc(projectHandler.GetProject))).Methods("GET")
	api.Handle("/projects/{id}/complete", admin(http.HandlerFunc(projectHandler.MarkProjectCompleted))).Methods("POST")
	api.Handle("/projects/{id}/contractors", admin(http.HandlerFunc(projectHandler.AssignContractor))).Methods("POST")
	api.Handle("/projects/{id}/inspection", admin(http.HandlerFunc(projectHandler.Inspection))).Methods("GET")
	api.Handle("/projects/{id}/evidence.geojson", staff(http.HandlerFunc(projectHandler.EvidenceGeoJSON))).Methods("GET")

	// Poles
	api.Handle("/projects/{id}/poles", staff(http.HandlerFunc(projectHandler.CreatePole))).Methods("POST")
	api.Handle("/poles/{id}", staff(http.HandlerFunc(projectHandler.GetPole))).Methods("GET")

	// Evidence ledger
	api.Handle("/poles/{id}/evidence", staff(http.HandlerFunc(evidenceHandler.UploadEvidence))).Methods("POST")
	api.Handle("/poles/{id}/evidence", staff(http.HandlerFunc(evidenceHandler.ListEvidence))).Methods("GET")
	api.Handle("/evidence/{id}", staff(http.HandlerFunc(evidenceHandler.DeleteEvidence))).Methods("DELETE")
	api.Handle("/evidence/{id}/image", staff(http.HandlerFunc(evidenceHandler.GetEvidenceImage))).Methods("GET")

	// Catalog and custom fields
	api.Handle("/projects/{id}/catalog", admin(http.HandlerFunc(catalogHandler.UploadCatalog))).Methods("POST")
	api.Handle("/projects/{id}/catalog/headers", staff(http.HandlerFunc(catalogHandler.GetCatalogHeaders))).Methods("GET")
	api.Handle("/projects/{id}/catalog/values", staff(http.HandlerFunc(catalogHandler.GetCatalogValues))).Methods("GET")
	api.Handle("/projects/{id}/fields", admin(http.HandlerFunc(catalogHandler.CreateField))).Methods("POST")
	api.Handle("/projects/{id}/fields", staff(http.HandlerFunc(catalogHandler.ListFields))).Methods("GET")
	api.Handle("/poles/{id}/fields/{fieldId}", staff(http.HandlerFunc(catalogHandler.SetFieldValue))).Methods("PUT")
	api.Handle("/poles/{id}/fields", staff(http.HandlerFunc(catalogHandler.ListFieldValues))).Methods("GET")

	return r
}
