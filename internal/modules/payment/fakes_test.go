package payment

import (
	"context"
	"sync"

	"funding/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// recordingReconciler stores what adapters hand over instead of touching a database.
type recordingReconciler struct {
	mu       sync.Mutex
	attempts []*domain.Payment
	updates  []domain.PaymentUpdate
	applyErr error
	max      int
}

func (r *recordingReconciler) RecordPaymentAttempt(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, p)
	p.ID = int64(len(r.attempts))
	return nil
}

func (r *recordingReconciler) ApplyPaymentUpdate(_ context.Context, upd domain.PaymentUpdate) (*domain.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return nil, false, r.applyErr
	}
	r.updates = append(r.updates, upd)
	return &domain.Payment{ID: upd.PaymentID, ExternalID: upd.ExternalID, Status: upd.Status, RefundedAmount: upd.RefundAmount}, true, nil
}

func (r *recordingReconciler) MaxPaymentAttempts() int {
	if r.max == 0 {
		return 3
	}
	return r.max
}

type fakeProvider struct {
	name       domain.PaymentProvider
	market     string
	rate       decimal.Decimal
	currencies []domain.Currency
	methods    []domain.PaymentMethod

	created    []ProviderPaymentRequest
	refunds    []decimal.Decimal
	cancelled  []string
	webhookErr error
}

func (f *fakeProvider) Name() domain.PaymentProvider { return f.name }
func (f *fakeProvider) PrimaryMarket() string { return f.market }

func (f *fakeProvider) CreatePayment(_ context.Context, req ProviderPaymentRequest) (*domain.Payment, error) {
	f.created = append(f.created, req)
	return &domain.Payment{ID: 1, DonationID: req.Donation.ID, Provider: f.name, ExternalID: "ext-1", Status: domain.PaymentPending}, nil
}

func (f *fakeProvider) GetPaymentStatus(_ context.Context, externalID string) (*domain.Payment, error) {
	return &domain.Payment{ExternalID: externalID, Status: domain.PaymentProcessing}, nil
}

func (f *fakeProvider) CancelPayment(_ context.Context, externalID string) (*domain.Payment, error) {
	f.cancelled = append(f.cancelled, externalID)
	return &domain.Payment{ExternalID: externalID, Status: domain.PaymentCancelled}, nil
}

func (f *fakeProvider) RefundPayment(_ context.Context, externalID string, amount decimal.Decimal) (*domain.Payment, error) {
	f.refunds = append(f.refunds, amount)
	return &domain.Payment{ExternalID: externalID, Status: domain.PaymentPartiallyRefunded, RefundedAmount: amount}, nil
}

func (f *fakeProvider) HandleWebhook(context.Context, []byte, string) error { return f.webhookErr }

func (f *fakeProvider) SupportsPaymentMethod(m domain.PaymentMethod) bool {
	return containsMethod(f.methods, m)
}
func (f *fakeProvider) SupportsCurrency(c domain.Currency) bool { return containsCurrency(f.currencies, c) }
func (f *fakeProvider) SupportedCurrencies() []domain.Currency { return f.currencies }
func (f *fakeProvider) SupportedMethods() []domain.PaymentMethod { return f.methods }

func (f *fakeProvider) CalculateFee(amount decimal.Decimal, _ domain.Currency) decimal.Decimal {
	return percentFee(amount, f.rate, decimal.Zero)
}

type MockDonationReader struct {
	mock.Mock
}

func (m *MockDonationReader) GetWithPayments(ctx context.Context, id int64) (*domain.Donation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Donation), args.Error(1)
}

type MockPaymentReader struct {
	mock.Mock
}

func (m *MockPaymentReader) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentReader) ListByDonation(ctx context.Context, donationID int64) ([]domain.Payment, error) {
	args := m.Called(ctx, donationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Payment), args.Error(1)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
