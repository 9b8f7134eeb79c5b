package config

import (
	"errors"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"p9e.in/fieldproof/models"
)

// SeedDefaults creates the initial admin account and a demo workflow
// template. Safe to run on every boot; existing rows are left alone.
func SeedDefaults() {
	SeedAdminUser()
	SeedDemoTemplate()
}

// SeedAdminUser creates the bootstrap admin when no admin exists yet.
// Credentials come from ADMIN_EMAIL / ADMIN_PASSWORD, with dev defaults.
func SeedAdminUser() {
	var existing models.User
	err := DB.Where("role = ?", models.RoleAdmin).First(&existing).Error
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Warning: admin seeding check failed: %v", err)
		return
	}

	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@fieldproof.local"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Warning: could not hash admin password: %v", err)
		return
	}

	admin := models.User{
		Name:         "Administrator",
		Email:        email,
		Phone:        "0000000000",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
	}
	if err := DB.Create(&admin).Error; err != nil {
		log.Printf("Warning: admin seeding failed: %v", err)
		return
	}
	log.Printf("✅ Seeded admin user %s", email)
}

// SeedDemoTemplate creates a sample "Solar Lights" template with the
// standard three-stage pole workflow, skipped once any template exists.
func SeedDemoTemplate() {
	var count int64
	if err := DB.Model(&models.ProjectType{}).Count(&count).Error; err != nil {
		log.Printf("Warning: template seeding check failed: %v", err)
		return
	}
	if count > 0 {
		return
	}

	template := models.ProjectType{
		Name:     "Solar Lights",
		UnitName: "Pole",
		Stages: []models.StageDefinition{
			{Name: "Pit Excavation", Position: 1, Seq: 1, IsRequired: true},
			{Name: "Pole Erection", Position: 2, Seq: 2, IsRequired: true},
			{Name: "Light Installation", Position: 3, Seq: 3, IsRequired: true},
		},
	}
	if err := DB.Create(&template).Error; err != nil {
		log.Printf("Warning: template seeding failed: %v", err)
		return
	}
	log.Printf("✅ Seeded demo template %s with %d stages", template.Name, len(template.Stages))
}
