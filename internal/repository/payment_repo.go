package repository

import (
	"context"
	"time"

	"funding/internal/domain"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, "payment", id)
	}
	return &p, nil
}

func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&p).Error; err != nil {
		return nil, notFound(err, "payment", externalID)
	}
	return &p, nil
}

func (r *PaymentRepository) ListByDonation(ctx context.Context, donationID int64) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.db.WithContext(ctx).
		Where("donation_id = ?", donationID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByProviderCreatedBetween returns payments created in [from, to).
func (r *PaymentRepository) ListByProviderCreatedBetween(ctx context.Context, provider domain.PaymentProvider, from, to time.Time) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND created_at >= ? AND created_at < ?", provider, from.UTC(), to.UTC()).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListCreatedBetween returns payments of every provider created in [from, to).
func (r *PaymentRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
