package repository

import (
	"time"

	"github.com/kursadbilgin/promocheck/internal/domain"
)

// PromoBatchModel is the persistence model for the promo_batches table.
type PromoBatchModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time
}

func (PromoBatchModel) TableName() string {
	return "promo_batches"
}

// PromoCodeModel is the persistence model for the promo_codes table.
type PromoCodeModel struct {
	ID        string            `gorm:"type:uuid;primaryKey"`
	BatchID   string            `gorm:"type:uuid;not null"`
	Position  int               `gorm:"not null;default:0"`
	Code      string            `gorm:"type:varchar(255);not null"`
	Status    domain.CodeStatus `gorm:"type:varchar(16);not null;default:'pending'"`
	Message   string            `gorm:"type:text;not null;default:''"`
	Timestamp time.Time         `gorm:"column:timestamp;type:timestamptz;not null"`
	CreatedAt time.Time
}

func (PromoCodeModel) TableName() string {
	return "promo_codes"
}

func batchModelFromDomain(b *domain.Batch) *PromoBatchModel {
	if b == nil {
		return nil
	}

	return &PromoBatchModel{
		ID:        b.ID,
		Name:      b.Name,
		CreatedAt: b.CreatedAt,
	}
}

func batchModelToDomain(m *PromoBatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:        m.ID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
	}
}

func codeModelFromDomain(c *domain.CodeRecord, position int) *PromoCodeModel {
	if c == nil {
		return nil
	}

	return &PromoCodeModel{
		ID:        c.ID,
		BatchID:   c.BatchID,
		Position:  position,
		Code:      c.Code,
		Status:    c.Status,
		Message:   c.Message,
		Timestamp: c.Timestamp,
	}
}

func codeModelToDomain(m *PromoCodeModel) *domain.CodeRecord {
	if m == nil {
		return nil
	}

	return &domain.CodeRecord{
		ID:        m.ID,
		BatchID:   m.BatchID,
		Code:      m.Code,
		Status:    m.Status,
		Message:   m.Message,
		Timestamp: m.Timestamp,
	}
}
