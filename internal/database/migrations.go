package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/notes"
	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeNoteComments = "normalize_note_comments"
	migrationPromoteAdminRole      = "promote_admin_role"

	legacyAdminUsername = "admin"
)

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
		{name: migrationNormalizeNoteComments, apply: normalizeNoteComments},
		{name: migrationPromoteAdminRole, apply: promoteAdminRole},
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
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// normalizeNoteComments rewrites missing comment documents as empty objects.
func normalizeNoteComments(db *gorm.DB) error {
	return db.Model(&notes.Note{}).
		Where("comments_json IS NULL OR TRIM(comments_json) IN ?", []string{"", "null", "[]"}).
		Update("comments_json", "{}").Error
}

// promoteAdminRole grants the admin role to the account that was admin by name.
func promoteAdminRole(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("username = ?", legacyAdminUsername).
		Update("role", users.RoleAdmin).Error
}
