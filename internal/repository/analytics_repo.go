package repository

import (
	"context"

	"funding/internal/domain"

	"gorm.io/gorm"
)

type AnalyticsRepository struct {
	db *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func (r *AnalyticsRepository) Exists(ctx context.Context, date string, provider domain.PaymentProvider) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.PaymentAnalytics{}).
		Where("date = ? AND provider = ?", date, provider).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a rollup row. A concurrent insert for the same (date, provider)
// is reported as created=false without an error.
func (r *AnalyticsRepository) Create(ctx context.Context, row *domain.PaymentAnalytics) (bool, error) {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if IsUniqueConstraintError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns rows with from <= date <= to. Empty bounds are open.
func (r *AnalyticsRepository) List(ctx context.Context, from, to string, provider domain.PaymentProvider) ([]domain.PaymentAnalytics, error) {
	q := r.db.WithContext(ctx).Model(&domain.PaymentAnalytics{})
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	var out []domain.PaymentAnalytics
	if err := q.Order("date ASC, provider ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
