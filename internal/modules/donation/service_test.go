package donation

import (
	"context"
	"errors"
	"testing"

	"funding/internal/domain"
	"funding/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockShelterDirectory struct {
	mock.Mock
}

func (m *MockShelterDirectory) ShelterExists(ctx context.Context, shelterID int64) (bool, error) {
	args := m.Called(ctx, shelterID)
	return args.Bool(0), args.Error(1)
}

func (m *MockShelterDirectory) PetExists(ctx context.Context, shelterID, petID int64) (bool, error) {
	args := m.Called(ctx, shelterID, petID)
	return args.Bool(0), args.Error(1)
}

func newTestService(t *testing.T) (*Service, *MockShelterDirectory, *StatusService) {
	db := setupTestDB(t)
	shelters := new(MockShelterDirectory)
	status := NewStatusService(db, 3, nil, nil)
	return NewService(repository.NewDonationRepository(db), shelters, status, nil), shelters, status
}

func ptr(v int64) *int64 { return &v }

func TestCreateDonation_Money(t *testing.T) {
	svc, shelters, _ := newTestService(t)
	shelters.On("ShelterExists", mock.Anything, int64(5)).Return(true, nil)

	d, err := svc.CreateDonation(context.Background(), CreateDonationRequest{
		ShelterID:     5,
		DonationType:  "money",
		Amount:        decimal.RequireFromString("25.499"),
		DonorUsername: "ann",
	})
	require.NoError(t, err)
	assert.NotZero(t, d.ID)
	assert.Equal(t, domain.DonationMoney, d.DonationType)
	assert.Equal(t, domain.CurrencyPLN, d.Currency)
	assert.Equal(t, domain.DonationPending, d.Status)
	assert.Equal(t, 0, d.PaymentAttempts)
	assert.True(t, d.Amount.Equal(decimal.RequireFromString("25.50")))
	shelters.AssertExpectations(t)
}

func TestCreateDonation_MaterialAmountIsDerived(t *testing.T) {
	svc, shelters, _ := newTestService(t)
	shelters.On("ShelterExists", mock.Anything, int64(5)).Return(true, nil)
	unit := decimal.RequireFromString("5.00")

	d, err := svc.CreateDonation(context.Background(), CreateDonationRequest{
		ShelterID:     5,
		DonationType:  "MATERIAL",
		Amount:        decimal.RequireFromString("999"),
		ItemName:      "Blanket",
		UnitPrice:     &unit,
		Quantity:      4,
		DonorUsername: "ann",
	})
	require.NoError(t, err)
	assert.True(t, d.Amount.Equal(decimal.RequireFromString("20.00")), d.Amount.String())
	assert.True(t, d.UnitPrice.Valid)
}

func TestCreateDonation_Validation(t *testing.T) {
	svc, shelters, _ := newTestService(t)
	unit := decimal.RequireFromString("5.00")

	cases := map[string]CreateDonationRequest{
		"missing shelter":     {DonationType: "MONEY", Amount: decimal.NewFromInt(1), DonorUsername: "ann"},
		"zero amount":         {ShelterID: 1, DonationType: "MONEY", DonorUsername: "ann"},
		"unknown type":        {ShelterID: 1, DonationType: "TIME", Amount: decimal.NewFromInt(1), DonorUsername: "ann"},
		"bad currency":        {ShelterID: 1, DonationType: "MONEY", Amount: decimal.NewFromInt(1), Currency: "JPY", DonorUsername: "ann"},
		"material no item":    {ShelterID: 1, DonationType: "MATERIAL", UnitPrice: &unit, Quantity: 1, DonorUsername: "ann"},
		"material no price":   {ShelterID: 1, DonationType: "MATERIAL", ItemName: "Food", Quantity: 1, DonorUsername: "ann"},
		"material zero count": {ShelterID: 1, DonationType: "MATERIAL", ItemName: "Food", UnitPrice: &unit, DonorUsername: "ann"},
		"anonymous caller":    {ShelterID: 1, DonationType: "MONEY", Amount: decimal.NewFromInt(1)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateDonation(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	shelters.AssertNotCalled(t, "ShelterExists", mock.Anything, mock.Anything)
}

func TestCreateDonation_UnknownTargets(t *testing.T) {
	svc, shelters, _ := newTestService(t)
	shelters.On("ShelterExists", mock.Anything, int64(404)).Return(false, nil)
	shelters.On("ShelterExists", mock.Anything, int64(5)).Return(true, nil)
	shelters.On("PetExists", mock.Anything, int64(5), int64(9)).Return(false, nil)
	shelters.On("ShelterExists", mock.Anything, int64(500)).Return(false, errors.New("timeout"))

	_, err := svc.CreateDonation(context.Background(), CreateDonationRequest{ShelterID: 404, DonationType: "MONEY", Amount: decimal.NewFromInt(5), DonorUsername: "ann"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.CreateDonation(context.Background(), CreateDonationRequest{ShelterID: 5, PetID: ptr(9), DonationType: "MONEY", Amount: decimal.NewFromInt(5), DonorUsername: "ann"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.CreateDonation(context.Background(), CreateDonationRequest{ShelterID: 500, DonationType: "MONEY", Amount: decimal.NewFromInt(5), DonorUsername: "ann"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestGetDonation_OwnerOnly(t *testing.T) {
	svc, shelters, _ := newTestService(t)
	shelters.On("ShelterExists", mock.Anything, int64(5)).Return(true, nil)
	d, err := svc.CreateDonation(context.Background(), CreateDonationRequest{ShelterID: 5, DonationType: "MONEY", Amount: decimal.NewFromInt(5), DonorUsername: "ann"})
	require.NoError(t, err)

	_, err = svc.GetDonation(context.Background(), d.ID, "ann", false)
	assert.NoError(t, err)
	_, err = svc.GetDonation(context.Background(), d.ID, "bob", false)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.GetDonation(context.Background(), d.ID, "ops", true)
	assert.NoError(t, err)
}

func TestListShelterDonations_HidesAnonymousDonors(t *testing.T) {
	svc, shelters, _ := newTestService(t)
	shelters.On("ShelterExists", mock.Anything, int64(5)).Return(true, nil)
	ctx := context.Background()
	_, err := svc.CreateDonation(ctx, CreateDonationRequest{ShelterID: 5, DonationType: "MONEY", Amount: decimal.NewFromInt(5), DonorUsername: "ann"})
	require.NoError(t, err)
	_, err = svc.CreateDonation(ctx, CreateDonationRequest{ShelterID: 5, DonationType: "MONEY", Amount: decimal.NewFromInt(7), DonorUsername: "bob", Anonymous: true})
	require.NoError(t, err)

	out, err := svc.ListShelterDonations(ctx, 5, ListQuery{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	names := []string{out[0].DonorUsername, out[1].DonorUsername}
	assert.ElementsMatch(t, []string{"ann", "anonymous"}, names)

	mine, err := svc.ListDonorDonations(ctx, "bob", ListQuery{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "bob", mine[0].DonorUsername)
}

func TestCancelDonation_ChecksOwner(t *testing.T) {
	svc, shelters, _ := newTestService(t)
	shelters.On("ShelterExists", mock.Anything, int64(5)).Return(true, nil)
	d, err := svc.CreateDonation(context.Background(), CreateDonationRequest{ShelterID: 5, DonationType: "MONEY", Amount: decimal.NewFromInt(5), DonorUsername: "ann"})
	require.NoError(t, err)

	_, err = svc.CancelDonation(context.Background(), d.ID, "bob", false)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := svc.CancelDonation(context.Background(), d.ID, "ann", false)
	require.NoError(t, err)
	assert.Equal(t, domain.DonationCancelled, cancelled.Status)
}
