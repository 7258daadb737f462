package payment

import (
	"funding/internal/domain"

	"github.com/shopspring/decimal"
)

type FeeCalculation struct {
	Provider      domain.PaymentProvider `json:"provider" example:"stripe"`
	Currency      domain.Currency        `json:"currency" example:"PLN"`
	GrossAmount   decimal.Decimal        `json:"gross_amount" example:"100.00"`
	FeeAmount     decimal.Decimal        `json:"fee_amount" example:"3.00"`
	NetAmount     decimal.Decimal        `json:"net_amount" example:"97.00"`
	FeePercentage decimal.Decimal        `json:"fee_percentage" example:"3.0000"`
}

type PaymentOption struct {
	Provider         domain.PaymentProvider `json:"provider"`
	Currency         domain.Currency        `json:"currency"`
	SupportedMethods []domain.PaymentMethod `json:"supported_methods"`
	Fee              FeeCalculation         `json:"fee"`
	Recommended      bool                   `json:"recommended"`
}

type ProviderHealth struct {
	Provider   domain.PaymentProvider `json:"provider"`
	Status     string                 `json:"status" example:"UP"`
	Currencies []domain.Currency      `json:"currencies"`
	Methods    []domain.PaymentMethod `json:"methods"`
}

const (
	HealthUp   = "UP"
	HealthDown = "DOWN"
)

type CreatePaymentRequest struct {
	DonationID int64                  `json:"-"`
	Provider   domain.PaymentProvider `json:"provider" example:"payu"`
	Method     domain.PaymentMethod   `json:"payment_method" binding:"required" validate:"payment_method" example:"BLIK"`
	ReturnURL  string                 `json:"return_url" validate:"omitempty,url"`
	BlikCode   string                 `json:"blik_code" validate:"omitempty,len=6,numeric"`
	BankCode   string                 `json:"bank_code" validate:"omitempty,max=20"`

	DonorUsername string `json:"-"`
	IsAdmin       bool   `json:"-"`
	ClientIP      string `json:"-"`
}

type UpdateStatusRequest struct {
	Status domain.PaymentStatus `json:"status" binding:"required" example:"SUCCEEDED"`
}

type RefundRequest struct {
	// Zero or omitted refunds everything that is left.
	Amount decimal.Decimal `json:"amount" example:"25.00"`
}

type FeeQuery struct {
	Amount   string `form:"amount" binding:"required"`
	Provider string `form:"provider" binding:"required"`
	Currency string `form:"currency"`
}

type OptionsQuery struct {
	Amount  string `form:"amount" binding:"required"`
	Country string `form:"country"`
}
