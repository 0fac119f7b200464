package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wyfcoding/contractpricing/internal/valuation/domain"
)

type valuationRepository struct {
	db *gorm.DB
}

// NewValuationRepository 创建并返回一个新的 valuationRepository 实例。
func NewValuationRepository(db *gorm.DB) domain.ValuationRepository {
	return &valuationRepository{db: db}
}

// Save 保存一条估值审计记录
func (r *valuationRepository) Save(ctx context.Context, result *domain.ValuationResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

// Latest 按指纹取最近一条估值记录，不存在时返回 (nil, nil)
func (r *valuationRepository) Latest(ctx context.Context, fingerprint string) (*domain.ValuationResult, error) {
	var result domain.ValuationResult
	err := r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("evaluated_at DESC").
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// List 按指纹取最近 limit 条估值记录，按估值时间倒序
func (r *valuationRepository) List(ctx context.Context, fingerprint string, limit int) ([]*domain.ValuationResult, error) {
	var results []*domain.ValuationResult
	err := r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("evaluated_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
