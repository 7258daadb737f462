package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DonationType string

const (
	DonationMoney    DonationType = "MONEY"
	DonationMaterial DonationType = "MATERIAL"
)

type DonationStatus string

const (
	DonationPending   DonationStatus = "PENDING"
	DonationCompleted DonationStatus = "COMPLETED"
	DonationFailed    DonationStatus = "FAILED"
	DonationCancelled DonationStatus = "CANCELLED"
)

type Currency string

const (
	CurrencyPLN Currency = "PLN"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

func ParseCurrency(s string) (Currency, bool) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case CurrencyPLN, CurrencyEUR, CurrencyUSD, CurrencyGBP:
		return c, true
	case "":
		return CurrencyPLN, true
	}
	return "", false
}

type Donation struct {
	ID            int64           `json:"id" gorm:"primaryKey"`
	ShelterID     int64           `json:"shelter_id" gorm:"index;not null"`
	PetID         *int64          `json:"pet_id,omitempty" gorm:"index"`
	FundraiserID  *int64          `json:"fundraiser_id,omitempty" gorm:"index"`
	DonorUsername string          `json:"donor_username" gorm:"type:varchar(255);index;not null"`
	Anonymous     bool            `json:"anonymous"`
	DonationType  DonationType    `json:"donation_type" gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency      Currency        `json:"currency" gorm:"type:varchar(3);not null;default:'PLN'"`
	Message       string          `json:"message,omitempty" gorm:"type:text"`

	// In-kind donations only
	ItemName        string              `json:"item_name,omitempty" gorm:"type:varchar(255)"`
	ItemDescription string              `json:"item_description,omitempty" gorm:"type:text"`
	UnitPrice       decimal.NullDecimal `json:"unit_price,omitempty" gorm:"type:numeric(12,2)"`
	Quantity        int                 `json:"quantity,omitempty"`
	Unit            string              `json:"unit,omitempty" gorm:"type:varchar(50)"`

	Status          DonationStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	PaymentAttempts int            `json:"payment_attempts" gorm:"not null;default:0"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`

	Payments []Payment `json:"payments,omitempty" gorm:"foreignKey:DonationID"`
}

func (Donation) TableName() string { return "donations" }

// MaterialTotal is unit price times quantity; zero when either is missing.
func MaterialTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

func (d *Donation) IsAbsorbing() bool {
	return d.Status == DonationCompleted || d.Status == DonationFailed || d.Status == DonationCancelled
}

func (d *Donation) HasSuccessfulPayment() bool {
	for i := range d.Payments {
		if d.Payments[i].Status == PaymentSucceeded {
			return true
		}
	}
	return false
}

func (d *Donation) HasActivePayment() bool {
	for i := range d.Payments {
		if d.Payments[i].IsActive() {
			return true
		}
	}
	return false
}

func (d *Donation) HasReachedMaxPaymentAttempts(max int) bool {
	return d.PaymentAttempts >= max
}

// Payments must be loaded for the checks below.

func (d *Donation) CanAcceptNewPayment(maxAttempts int) bool {
	return d.Status == DonationPending && !d.HasActivePayment() && !d.HasReachedMaxPaymentAttempts(maxAttempts)
}

func (d *Donation) CanBeCancelled() bool {
	return d.Status == DonationPending && !d.HasSuccessfulPayment() && !d.HasActivePayment()
}

func (d *Donation) CanBeRefunded() bool {
	return d.Status == DonationCompleted && d.HasSuccessfulPayment()
}

func (d *Donation) IsDonorUsernameEmail() bool {
	return LooksLikeEmail(d.DonorUsername)
}

func LooksLikeEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "@") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// DonationStatusChange is emitted after a committed donation transition.
type DonationStatusChange struct {
	DonationID    int64          `json:"donation_id"`
	ShelterID     int64          `json:"shelter_id"`
	DonorUsername string         `json:"donor_username,omitempty"`
	PaymentID     int64          `json:"payment_id,omitempty"`
	PaymentStatus PaymentStatus  `json:"payment_status,omitempty"`
	From          DonationStatus `json:"from"`
	To            DonationStatus `json:"to"`
	At            time.Time      `json:"at"`
}
