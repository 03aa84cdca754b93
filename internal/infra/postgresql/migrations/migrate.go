package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var options = &gormigrate.Options{
	TableName:                 "promocheck_migrations",
	IDColumnName:              "id",
	IDColumnSize:              255,
	UseTransaction:            true,
	ValidateUnknownMigrations: true,
}

func all() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createPromoBatchesTable(),
		createPromoCodesTable(),
		addPromoCodesIndexes(),
	}
}

// Migrate applies pending schema migrations in order.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	steps := all()
	if err := gormigrate.New(db, options, steps).Migrate(); err != nil {
		return fmt.Errorf("migrate promo code schema: %w", err)
	}

	logger.Info("database schema up to date", zap.String("version", steps[len(steps)-1].ID))
	return nil
}
