package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
	"p9e.in/fieldproof/models"
)

func Migrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "20250812_create_core_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.User{}, &models.ProjectType{}, &models.StageDefinition{},
					&models.Project{}, &models.ProjectContractor{}, &models.Pole{}, &models.Evidence{})
			},
		},
		{
			ID: "20250819_add_field_catalog_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.FieldDefinition{}, &models.FieldValue{})
			},
		},
		{
			ID: "20250826_enforce_one_evidence_per_stage",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate already declares the unique index on
				// (pole_id, stage_id); older databases may predate it.
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_pole_stage
					ON evidences (pole_id, stage_id)`).Error
			},
		},
		{
			ID: "20250902_add_stage_sequence",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&models.StageDefinition{}); err != nil {
					return err
				}
				// Number existing stages by the old sort order so their
				// relative positions survive the switch.
				return tx.Exec(`UPDATE stage_definitions SET seq = numbered.rn
					FROM (SELECT id, ROW_NUMBER() OVER (
							PARTITION BY project_type_id
							ORDER BY position, created_at, id) AS rn
						FROM stage_definitions) AS numbered
					WHERE stage_definitions.id = numbered.id
					  AND stage_definitions.seq = 0`).Error
			},
		},
	})

	return m.Migrate()
}
