package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"funding/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Provider is one external payment processor. Adapters translate between the
// processor's API and the neutral payment model, and hand every status
// observation to the Reconciler.
type Provider interface {
	Name() domain.PaymentProvider
	CreatePayment(ctx context.Context, req ProviderPaymentRequest) (*domain.Payment, error)
	GetPaymentStatus(ctx context.Context, externalID string) (*domain.Payment, error)
	CancelPayment(ctx context.Context, externalID string) (*domain.Payment, error)
	RefundPayment(ctx context.Context, externalID string, amount decimal.Decimal) (*domain.Payment, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error

	SupportsPaymentMethod(method domain.PaymentMethod) bool
	SupportsCurrency(currency domain.Currency) bool
	SupportedCurrencies() []domain.Currency
	SupportedMethods() []domain.PaymentMethod
	CalculateFee(amount decimal.Decimal, currency domain.Currency) decimal.Decimal
	// PrimaryMarket is an ISO country code, or "" for a global processor.
	PrimaryMarket() string
}

type ProviderPaymentRequest struct {
	Donation  *domain.Donation
	Method    domain.PaymentMethod
	ReturnURL string
	BlikCode  string
	BankCode  string
	ClientIP  string
}

var hundred = decimal.NewFromInt(100)

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func percentFee(amount, rate, fixed decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Add(fixed).Round(2)
}

func donationMetadata(provider domain.PaymentProvider, d *domain.Donation) map[string]string {
	meta := map[string]string{
		"donationId":    strconv.FormatInt(d.ID, 10),
		"provider":      string(provider),
		"donationType":  string(d.DonationType),
		"shelterId":     strconv.FormatInt(d.ShelterID, 10),
		"donorUsername": d.DonorUsername,
	}
	if d.PetID != nil {
		meta["petId"] = strconv.FormatInt(*d.PetID, 10)
	}
	if d.FundraiserID != nil {
		meta["fundraiserId"] = strconv.FormatInt(*d.FundraiserID, 10)
	}
	return meta
}

func donationDescription(d *domain.Donation) string {
	if d.DonationType == domain.DonationMaterial {
		return fmt.Sprintf("In-kind donation #%d: %s x%d", d.ID, d.ItemName, d.Quantity)
	}
	return fmt.Sprintf("Donation #%d for shelter %d", d.ID, d.ShelterID)
}

// newPendingPayment fills the fields every adapter sets on a fresh attempt.
func newPendingPayment(p Provider, req ProviderPaymentRequest, externalID string, status domain.PaymentStatus, expiresAt time.Time, meta map[string]string) *domain.Payment {
	d := req.Donation
	fee := p.CalculateFee(d.Amount, d.Currency)
	raw, _ := json.Marshal(meta)
	if status == "" {
		status = domain.PaymentPending
	}
	return &domain.Payment{
		DonationID:    d.ID,
		Provider:      p.Name(),
		ExternalID:    externalID,
		Status:        status,
		Amount:        d.Amount,
		Currency:      d.Currency,
		FeeAmount:     fee,
		NetAmount:     d.Amount.Sub(fee),
		PaymentMethod: req.Method,
		Metadata:      datatypes.JSON(raw),
		ExpiresAt:     &expiresAt,
	}
}

// applyNotification forwards a verified webhook observation. Notifications
// for payments this service never created are ignored.
func applyNotification(ctx context.Context, rec Reconciler, loggerf func(string, ...interface{}), upd domain.PaymentUpdate) error {
	p, changed, err := rec.ApplyPaymentUpdate(ctx, upd)
	if errors.Is(err, domain.ErrNotFound) {
		loggerf("level=warn msg=webhook for unknown payment ignored external_id=%s status=%s", upd.ExternalID, upd.Status)
		return nil
	}
	if err != nil {
		return err
	}
	if !changed {
		loggerf("level=info msg=idempotent webhook status unchanged external_id=%s status=%s", upd.ExternalID, p.Status)
	}
	return nil
}

func containsCurrency(list []domain.Currency, c domain.Currency) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func containsMethod(list []domain.PaymentMethod, m domain.PaymentMethod) bool {
	for _, v := range list {
		if v == m {
			return true
		}
	}
	return false
}
