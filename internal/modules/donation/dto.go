package donation

import "github.com/shopspring/decimal"

type CreateDonationRequest struct {
	ShelterID    int64           `json:"shelter_id" binding:"required" validate:"required,gt=0" example:"12"`
	PetID        *int64          `json:"pet_id,omitempty" example:"7"`
	FundraiserID *int64          `json:"fundraiser_id,omitempty"`
	DonationType string          `json:"donation_type" binding:"required" example:"MONEY"`
	Amount       decimal.Decimal `json:"amount" example:"50.00"`
	Currency     string          `json:"currency" validate:"omitempty,currency" example:"PLN"`
	Message      string          `json:"message" validate:"max=1000"`
	Anonymous    bool            `json:"anonymous"`

	ItemName        string           `json:"item_name,omitempty" validate:"max=255"`
	ItemDescription string           `json:"item_description,omitempty"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	Quantity        int              `json:"quantity,omitempty" validate:"gte=0"`
	Unit            string           `json:"unit,omitempty" validate:"max=50"`

	DonorUsername string `json:"-"`
}

type ListQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}
