package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/promocheck/internal/repository"
	"gorm.io/gorm"
)

func createPromoCodesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_promo_codes",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.PromoCodeModel{}); err != nil {
				return err
			}
			return tx.Exec(`ALTER TABLE promo_codes
				ADD CONSTRAINT fk_promo_codes_batch FOREIGN KEY (batch_id) REFERENCES promo_batches (id) ON DELETE CASCADE`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PromoCodeModel{})
		},
	}
}
