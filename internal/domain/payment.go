package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderPayU   PaymentProvider = "payu"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentSucceeded         PaymentStatus = "SUCCEEDED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentCancelled         PaymentStatus = "CANCELLED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case PaymentPending, PaymentProcessing, PaymentSucceeded, PaymentFailed,
		PaymentCancelled, PaymentRefunded, PaymentPartiallyRefunded:
		return st, true
	}
	return "", false
}

func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentPending && s != PaymentProcessing
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "CARD"
	MethodBlik         PaymentMethod = "BLIK"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodGooglePay    PaymentMethod = "GOOGLE_PAY"
	MethodApplePay     PaymentMethod = "APPLE_PAY"
	MethodPayPal       PaymentMethod = "PAYPAL"
	MethodPrzelewy24   PaymentMethod = "PRZELEWY24"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodCard, MethodBlik, MethodBankTransfer, MethodGooglePay, MethodApplePay, MethodPayPal, MethodPrzelewy24:
		return m, true
	}
	return "", false
}

type Payment struct {
	ID             int64           `json:"id" gorm:"primaryKey"`
	DonationID     int64           `json:"donation_id" gorm:"index;not null"`
	Provider       PaymentProvider `json:"provider" gorm:"type:varchar(20);not null;index"`
	ExternalID     string          `json:"external_id" gorm:"type:varchar(255);uniqueIndex;not null"`
	Status         PaymentStatus   `json:"status" gorm:"type:varchar(30);not null;default:'PENDING';index"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency       Currency        `json:"currency" gorm:"type:varchar(3);not null"`
	FeeAmount      decimal.Decimal `json:"fee_amount" gorm:"type:numeric(12,2);not null;default:0"`
	NetAmount      decimal.Decimal `json:"net_amount" gorm:"type:numeric(12,2);not null;default:0"`
	RefundedAmount decimal.Decimal `json:"refunded_amount" gorm:"type:numeric(12,2);not null;default:0"`
	PaymentMethod  PaymentMethod   `json:"payment_method,omitempty" gorm:"type:varchar(30)"`
	CheckoutURL    string          `json:"checkout_url,omitempty" gorm:"type:text"`
	ClientSecret   string          `json:"client_secret,omitempty" gorm:"type:text"`
	FailureReason  string          `json:"failure_reason,omitempty" gorm:"type:text"`
	FailureCode    string          `json:"failure_code,omitempty" gorm:"type:varchar(100)"`
	Metadata       datatypes.JSON  `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) IsTerminal() bool { return p.Status.IsTerminal() }

func (p *Payment) IsActive() bool { return !p.Status.IsTerminal() }

// CanTransitionTo reports whether an administrative status change is allowed.
// Setting the current status again is allowed and is a no-op.
func (p *Payment) CanTransitionTo(next PaymentStatus) bool {
	if next == p.Status {
		return true
	}
	switch p.Status {
	case PaymentPending, PaymentProcessing:
		return true
	case PaymentSucceeded:
		return next == PaymentRefunded || next == PaymentPartiallyRefunded
	case PaymentPartiallyRefunded:
		return next == PaymentRefunded
	}
	return false
}

// RefundableAmount is what is left to refund on a settled payment.
func (p *Payment) RefundableAmount() decimal.Decimal {
	if p.Status != PaymentSucceeded && p.Status != PaymentPartiallyRefunded {
		return decimal.Zero
	}
	left := p.Amount.Sub(p.RefundedAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// PaymentUpdate is a status observation for one payment, from a webhook,
// a status poll or an operator. Either PaymentID or ExternalID identifies the row.
type PaymentUpdate struct {
	PaymentID     int64
	ExternalID    string
	Status        PaymentStatus
	RefundAmount  decimal.Decimal
	FailureReason string
	FailureCode   string
}
