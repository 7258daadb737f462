package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"funding/internal/database"
	"funding/internal/domain"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

const seedDays = 14

func main() {
	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "file:funding.db"
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	// Cleanup old data (payments first)
	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM payment_analytics")
	db.Exec("DELETE FROM payments")
	db.Exec("DELETE FROM donations")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	donors := []string{"ann@example.org", "bartek", "celina@example.org", "dawid"}
	now := time.Now().UTC()

	// ================== DONATIONS ==================
	log.Println("Creating donations and payments...")
	var donations, payments int
	for day := seedDays; day >= 1; day-- {
		for i := 0; i < 3+rng.Intn(5); i++ {
			at := now.AddDate(0, 0, -day).Add(time.Duration(rng.Intn(24*60)) * time.Minute)
			currency, provider := domain.CurrencyPLN, domain.ProviderPayU
			if rng.Intn(4) == 0 {
				currency, provider = domain.CurrencyEUR, domain.ProviderStripe
			}
			amount := decimal.NewFromInt(int64(10 + rng.Intn(490)))

			d := domain.Donation{
				ShelterID:     int64(1 + rng.Intn(3)),
				DonorUsername: donors[rng.Intn(len(donors))],
				Anonymous:     rng.Intn(5) == 0,
				DonationType:  domain.DonationMoney,
				Amount:        amount,
				Currency:      currency,
				Status:        domain.DonationPending,
				CreatedAt:     at,
				UpdatedAt:     at,
			}

			status := randomPaymentStatus(rng)
			switch status {
			case domain.PaymentSucceeded, domain.PaymentRefunded, domain.PaymentPartiallyRefunded:
				d.Status = domain.DonationCompleted
				d.CompletedAt = &at
			case domain.PaymentCancelled:
				d.Status = domain.DonationCancelled
				d.CancelledAt = &at
			}
			d.PaymentAttempts = 1
			if err := db.Create(&d).Error; err != nil {
				log.Fatalf("create donation: %v", err)
			}
			donations++

			fee := seedFee(provider, amount)
			p := domain.Payment{
				DonationID:    d.ID,
				Provider:      provider,
				ExternalID:    fmt.Sprintf("seed_%s_%s", provider, uuid.NewString()[:8]),
				Status:        status,
				Amount:        amount,
				Currency:      currency,
				FeeAmount:     fee,
				NetAmount:     amount.Sub(fee),
				PaymentMethod: domain.MethodCard,
				CreatedAt:     at,
				UpdatedAt:     at,
			}
			if provider == domain.ProviderPayU && rng.Intn(2) == 0 {
				p.PaymentMethod = domain.MethodBlik
			}
			switch status {
			case domain.PaymentRefunded:
				p.RefundedAmount = amount
			case domain.PaymentPartiallyRefunded:
				p.RefundedAmount = amount.Div(decimal.NewFromInt(2)).Round(2)
			case domain.PaymentFailed:
				p.FailureReason = "card declined"
				p.FailureCode = "card_declined"
			}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
				log.Fatalf("create payment: %v", err)
			}
			payments++
		}
	}

	log.Printf("Seed completed: donations=%d payments=%d days=%d", donations, payments, seedDays)
}

func randomPaymentStatus(rng *rand.Rand) domain.PaymentStatus {
	switch n := rng.Intn(20); {
	case n < 13:
		return domain.PaymentSucceeded
	case n < 16:
		return domain.PaymentFailed
	case n < 17:
		return domain.PaymentCancelled
	case n < 18:
		return domain.PaymentRefunded
	case n < 19:
		return domain.PaymentPartiallyRefunded
	default:
		return domain.PaymentPending
	}
}

// seedFee mirrors the adapters' published rates closely enough for demo data.
func seedFee(provider domain.PaymentProvider, amount decimal.Decimal) decimal.Decimal {
	if provider == domain.ProviderPayU {
		return amount.Mul(decimal.RequireFromString("0.019")).Round(2)
	}
	return amount.Mul(decimal.RequireFromString("0.029")).Add(decimal.RequireFromString("0.25")).Round(2)
}
