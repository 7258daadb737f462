package payment

import (
	"context"

	"funding/internal/domain"
)

// Reconciler persists payment attempts and status observations and keeps the
// parent donation in step with them.
type Reconciler interface {
	RecordPaymentAttempt(ctx context.Context, p *domain.Payment) error
	ApplyPaymentUpdate(ctx context.Context, upd domain.PaymentUpdate) (*domain.Payment, bool, error)
	MaxPaymentAttempts() int
}

type donationReader interface {
	GetWithPayments(ctx context.Context, id int64) (*domain.Donation, error)
}

type paymentReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	ListByDonation(ctx context.Context, donationID int64) ([]domain.Payment, error)
}
