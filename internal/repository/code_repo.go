package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/promocheck/internal/domain"
	"gorm.io/gorm"
)

type StatusCount struct {
	Status domain.CodeStatus `gorm:"column:status"`
	Count  int               `gorm:"column:count"`
}

type CodeRepository interface {
	CreateBatch(ctx context.Context, codes []*domain.CodeRecord) error
	GetByID(ctx context.Context, id string) (*domain.CodeRecord, error)
	ListByBatch(ctx context.Context, batchID string) ([]domain.CodeRecord, error)
	FetchPending(ctx context.Context, batchID string) ([]domain.CodeRecord, error)
	UpdateStatus(ctx context.Context, id string, status domain.CodeStatus, message string, at time.Time) error
	CountByStatus(ctx context.Context, batchID string) ([]StatusCount, error)
	ListBatchesWithPending(ctx context.Context, limit int) ([]string, error)
}

type GormCodeRepo struct {
	db *gorm.DB
}

func NewGormCodeRepo(db *gorm.DB) *GormCodeRepo {
	return &GormCodeRepo{db: db}
}

// CreateBatch inserts codes keeping their slice order as the batch order.
func (r *GormCodeRepo) CreateBatch(ctx context.Context, codes []*domain.CodeRecord) error {
	models := make([]PromoCodeModel, 0, len(codes))
	modelIndexes := make([]int, 0, len(codes))
	for i, c := range codes {
		model := codeModelFromDomain(c, i)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&models, 100).Error
	})
	if err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(codes) && codes[idx] != nil {
			*codes[idx] = *codeModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormCodeRepo) GetByID(ctx context.Context, id string) (*domain.CodeRecord, error) {
	var model PromoCodeModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return codeModelToDomain(&model), nil
}

func (r *GormCodeRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.CodeRecord, error) {
	return r.list(r.db.WithContext(ctx).Where("batch_id = ?", batchID))
}

// FetchPending returns the batch's pending codes in submission order.
func (r *GormCodeRepo) FetchPending(ctx context.Context, batchID string) ([]domain.CodeRecord, error) {
	return r.list(r.db.WithContext(ctx).Where("batch_id = ? AND status = ?", batchID, domain.CodeStatusPending))
}

func (r *GormCodeRepo) list(query *gorm.DB) ([]domain.CodeRecord, error) {
	var models []PromoCodeModel
	if err := query.Order("position ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	codes := make([]domain.CodeRecord, 0, len(models))
	for i := range models {
		codes = append(codes, *codeModelToDomain(&models[i]))
	}
	return codes, nil
}

func (r *GormCodeRepo) UpdateStatus(ctx context.Context, id string, status domain.CodeStatus, message string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&PromoCodeModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":    status,
			"message":   message,
			"timestamp": at.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormCodeRepo) CountByStatus(ctx context.Context, batchID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&PromoCodeModel{}).
		Select("status, COUNT(*) AS count").
		Where("batch_id = ?", batchID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// ListBatchesWithPending returns ids of batches that still hold pending codes,
// oldest pending code first.
func (r *GormCodeRepo) ListBatchesWithPending(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&PromoCodeModel{}).
		Where("status = ?", domain.CodeStatusPending).
		Group("batch_id").
		Order("MIN(created_at) ASC").
		Limit(limit).
		Pluck("batch_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
