package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const AnalyticsDateLayout = "2006-01-02"

type PaymentAnalytics struct {
	ID                       int64           `json:"id" gorm:"primaryKey"`
	Date                     string          `json:"date" gorm:"type:varchar(10);not null;uniqueIndex:idx_payment_analytics_date_provider"`
	Provider                 PaymentProvider `json:"provider" gorm:"type:varchar(20);not null;uniqueIndex:idx_payment_analytics_date_provider"`
	TotalTransactions        int64           `json:"total_transactions"`
	SuccessfulTransactions   int64           `json:"successful_transactions"`
	FailedTransactions       int64           `json:"failed_transactions"`
	TotalAmount              decimal.Decimal `json:"total_amount" gorm:"type:numeric(14,2);not null;default:0"`
	TotalFees                decimal.Decimal `json:"total_fees" gorm:"type:numeric(14,2);not null;default:0"`
	SuccessRate              decimal.Decimal `json:"success_rate" gorm:"type:numeric(5,2);not null;default:0"`
	AverageTransactionAmount decimal.Decimal `json:"average_transaction_amount" gorm:"type:numeric(12,2);not null;default:0"`
	CreatedAt                time.Time       `json:"created_at"`
}

func (PaymentAnalytics) TableName() string { return "payment_analytics" }
