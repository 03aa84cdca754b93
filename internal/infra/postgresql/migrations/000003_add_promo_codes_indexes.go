package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addPromoCodesIndexes() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_promo_codes_indexes",
		Migrate: func(tx *gorm.DB) error {
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_promo_codes_batch_position ON promo_codes (batch_id, position)`,
				`CREATE INDEX IF NOT EXISTS idx_promo_codes_pending ON promo_codes (batch_id, position) WHERE status = 'pending'`,
				`ALTER TABLE promo_codes ADD CONSTRAINT chk_promo_codes_status CHECK (status IN ('pending', 'valid', 'invalid'))`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			statements := []string{
				`ALTER TABLE promo_codes DROP CONSTRAINT IF EXISTS chk_promo_codes_status`,
				`DROP INDEX IF EXISTS idx_promo_codes_pending`,
				`DROP INDEX IF EXISTS idx_promo_codes_batch_position`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
