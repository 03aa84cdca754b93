package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/promocheck/internal/repository"
	"gorm.io/gorm"
)

func createPromoBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_promo_batches",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.PromoBatchModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PromoBatchModel{})
		},
	}
}
