package donation

import (
	"context"

	"funding/internal/domain"
)

type donationRepo interface {
	Create(ctx context.Context, d *domain.Donation) error
	GetByID(ctx context.Context, id int64) (*domain.Donation, error)
	GetWithPayments(ctx context.Context, id int64) (*domain.Donation, error)
	ListByDonor(ctx context.Context, username string, limit, offset int) ([]domain.Donation, error)
	ListByShelter(ctx context.Context, shelterID int64, limit, offset int) ([]domain.Donation, error)
	ListByPet(ctx context.Context, petID int64, limit, offset int) ([]domain.Donation, error)
	ListByFundraiser(ctx context.Context, fundraiserID int64, limit, offset int) ([]domain.Donation, error)
}

// ShelterDirectory confirms that donation targets exist.
type ShelterDirectory interface {
	ShelterExists(ctx context.Context, shelterID int64) (bool, error)
	PetExists(ctx context.Context, shelterID, petID int64) (bool, error)
}

type donationCanceller interface {
	CancelDonation(ctx context.Context, donationID int64) (*domain.Donation, error)
}

// StatusNotifier receives committed donation transitions.
type StatusNotifier interface {
	DonationStatusChanged(ctx context.Context, change domain.DonationStatusChange)
}

type noopNotifier struct{}

func (noopNotifier) DonationStatusChanged(context.Context, domain.DonationStatusChange) {}
