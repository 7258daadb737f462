package repository

import (
	"context"

	"funding/internal/domain"

	"gorm.io/gorm"
)

type DonationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) Create(ctx context.Context, d *domain.Donation) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *DonationRepository) GetByID(ctx context.Context, id int64) (*domain.Donation, error) {
	var d domain.Donation
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, notFound(err, "donation", id)
	}
	return &d, nil
}

// GetWithPayments loads the donation together with every payment attempt.
func (r *DonationRepository) GetWithPayments(ctx context.Context, id int64) (*domain.Donation, error) {
	var d domain.Donation
	err := r.db.WithContext(ctx).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&d, id).Error
	if err != nil {
		return nil, notFound(err, "donation", id)
	}
	return &d, nil
}

func (r *DonationRepository) ListByDonor(ctx context.Context, username string, limit, offset int) ([]domain.Donation, error) {
	return r.list(ctx, "donor_username = ?", username, limit, offset)
}

func (r *DonationRepository) ListByShelter(ctx context.Context, shelterID int64, limit, offset int) ([]domain.Donation, error) {
	return r.list(ctx, "shelter_id = ?", shelterID, limit, offset)
}

func (r *DonationRepository) ListByPet(ctx context.Context, petID int64, limit, offset int) ([]domain.Donation, error) {
	return r.list(ctx, "pet_id = ?", petID, limit, offset)
}

func (r *DonationRepository) ListByFundraiser(ctx context.Context, fundraiserID int64, limit, offset int) ([]domain.Donation, error) {
	return r.list(ctx, "fundraiser_id = ?", fundraiserID, limit, offset)
}

func (r *DonationRepository) list(ctx context.Context, where string, arg interface{}, limit, offset int) ([]domain.Donation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var out []domain.Donation
	err := r.db.WithContext(ctx).
		Where(where, arg).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
