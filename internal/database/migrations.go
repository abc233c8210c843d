package database

import (
	"errors"
	"time"

	"github.com/Sarvinsurya/docs-sync-backend/internal/documents"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationDeactivateBlankLinkTokens = "2026-07-14_deactivate_blank_link_tokens"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDeactivateBlankLinkTokens, apply: deactivateBlankLinkTokens},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before link rotation landed could carry an empty token with
// the active flag still set, which made every blank-token lookup succeed.
func deactivateBlankLinkTokens(db *gorm.DB) error {
	return db.Model(&documents.Document{}).
		Where("link_token = ? AND link_active = ?", "", true).
		Update("link_active", false).Error
}
