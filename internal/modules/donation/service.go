package donation

import (
	"context"
	"fmt"
	"strings"

	"funding/internal/domain"

	"github.com/shopspring/decimal"
)

const anonymousDonor = "anonymous"

type Service struct {
	donations donationRepo
	shelters  ShelterDirectory
	status    donationCanceller
	loggerf   func(format string, args ...interface{})
}

func NewService(donations donationRepo, shelters ShelterDirectory, status donationCanceller, loggerf func(format string, args ...interface{})) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{donations: donations, shelters: shelters, status: status, loggerf: loggerf}
}

func (s *Service) CreateDonation(ctx context.Context, req CreateDonationRequest) (*domain.Donation, error) {
	d, err := buildDonation(req)
	if err != nil {
		return nil, err
	}

	ok, err := s.shelters.ShelterExists(ctx, d.ShelterID)
	if err != nil {
		return nil, fmt.Errorf("shelter lookup failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("shelter %d: %w", d.ShelterID, domain.ErrNotFound)
	}
	if d.PetID != nil {
		ok, err := s.shelters.PetExists(ctx, d.ShelterID, *d.PetID)
		if err != nil {
			return nil, fmt.Errorf("pet lookup failed: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("pet %d in shelter %d: %w", *d.PetID, d.ShelterID, domain.ErrNotFound)
		}
	}

	if err := s.donations.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("save donation failed: %w", err)
	}
	s.loggerf("level=info msg=donation created donation_id=%d shelter_id=%d type=%s amount=%s currency=%s", d.ID, d.ShelterID, d.DonationType, d.Amount.StringFixed(2), d.Currency)
	return d, nil
}

func buildDonation(req CreateDonationRequest) (*domain.Donation, error) {
	if req.ShelterID <= 0 {
		return nil, fmt.Errorf("shelter_id is required: %w", domain.ErrValidation)
	}
	donor := strings.TrimSpace(req.DonorUsername)
	if donor == "" {
		return nil, fmt.Errorf("donor is required: %w", domain.ErrValidation)
	}
	currency, ok := domain.ParseCurrency(req.Currency)
	if !ok {
		return nil, fmt.Errorf("unsupported currency %q: %w", req.Currency, domain.ErrValidation)
	}
	if len(req.Message) > 1000 {
		return nil, fmt.Errorf("message too long: %w", domain.ErrValidation)
	}

	d := &domain.Donation{
		ShelterID:     req.ShelterID,
		PetID:         req.PetID,
		FundraiserID:  req.FundraiserID,
		DonorUsername: donor,
		Anonymous:     req.Anonymous,
		Currency:      currency,
		Message:       strings.TrimSpace(req.Message),
		Status:        domain.DonationPending,
	}

	switch domain.DonationType(strings.ToUpper(strings.TrimSpace(req.DonationType))) {
	case domain.DonationMoney:
		if !req.Amount.IsPositive() {
			return nil, fmt.Errorf("amount must be positive: %w", domain.ErrValidation)
		}
		d.DonationType = domain.DonationMoney
		d.Amount = req.Amount.Round(2)
	case domain.DonationMaterial:
		if strings.TrimSpace(req.ItemName) == "" {
			return nil, fmt.Errorf("item_name is required: %w", domain.ErrValidation)
		}
		if req.UnitPrice == nil || !req.UnitPrice.IsPositive() {
			return nil, fmt.Errorf("unit_price must be positive: %w", domain.ErrValidation)
		}
		if req.Quantity < 1 {
			return nil, fmt.Errorf("quantity must be at least 1: %w", domain.ErrValidation)
		}
		d.DonationType = domain.DonationMaterial
		d.ItemName = strings.TrimSpace(req.ItemName)
		d.ItemDescription = strings.TrimSpace(req.ItemDescription)
		d.UnitPrice = decimal.NewNullDecimal(req.UnitPrice.Round(2))
		d.Quantity = req.Quantity
		d.Unit = strings.TrimSpace(req.Unit)
		// caller-supplied amount is ignored for in-kind gifts
		d.Amount = domain.MaterialTotal(d.UnitPrice.Decimal, d.Quantity)
	default:
		return nil, fmt.Errorf("unknown donation_type %q: %w", req.DonationType, domain.ErrValidation)
	}
	return d, nil
}

// GetDonation returns the donation with its payment attempts. Only the donor
// or an admin may read it.
func (s *Service) GetDonation(ctx context.Context, id int64, username string, isAdmin bool) (*domain.Donation, error) {
	d, err := s.donations.GetWithPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && d.DonorUsername != username {
		return nil, fmt.Errorf("donation %d: %w", id, domain.ErrForbidden)
	}
	return d, nil
}

func (s *Service) ListDonorDonations(ctx context.Context, username string, q ListQuery) ([]domain.Donation, error) {
	return s.donations.ListByDonor(ctx, username, q.Limit, q.Offset)
}

func (s *Service) ListShelterDonations(ctx context.Context, shelterID int64, q ListQuery) ([]domain.Donation, error) {
	out, err := s.donations.ListByShelter(ctx, shelterID, q.Limit, q.Offset)
	return redactAnonymous(out), err
}

func (s *Service) ListPetDonations(ctx context.Context, petID int64, q ListQuery) ([]domain.Donation, error) {
	out, err := s.donations.ListByPet(ctx, petID, q.Limit, q.Offset)
	return redactAnonymous(out), err
}

func (s *Service) ListFundraiserDonations(ctx context.Context, fundraiserID int64, q ListQuery) ([]domain.Donation, error) {
	out, err := s.donations.ListByFundraiser(ctx, fundraiserID, q.Limit, q.Offset)
	return redactAnonymous(out), err
}

func (s *Service) CancelDonation(ctx context.Context, id int64, username string, isAdmin bool) (*domain.Donation, error) {
	d, err := s.donations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && d.DonorUsername != username {
		return nil, fmt.Errorf("donation %d: %w", id, domain.ErrForbidden)
	}
	cancelled, err := s.status.CancelDonation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=donation cancelled donation_id=%d by=%s", id, username)
	return cancelled, nil
}

func redactAnonymous(in []domain.Donation) []domain.Donation {
	for i := range in {
		if in[i].Anonymous {
			in[i].DonorUsername = anonymousDonor
		}
	}
	return in
}
