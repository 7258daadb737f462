package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"funding/internal/database"
	"funding/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:repo_test_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(gormsqlite.New(gormsqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func TestAnalyticsRepository_CreateIsIdempotent(t *testing.T) {
	repo := NewAnalyticsRepository(setupTestDB(t))
	ctx := context.Background()

	row := func() *domain.PaymentAnalytics {
		return &domain.PaymentAnalytics{Date: "2026-03-01", Provider: domain.ProviderPayU, TotalTransactions: 2}
	}
	created, err := repo.Create(ctx, row())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(ctx, row())
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := repo.Exists(ctx, "2026-03-01", domain.ProviderPayU)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.Exists(ctx, "2026-03-01", domain.ProviderStripe)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAnalyticsRepository_List(t *testing.T) {
	repo := NewAnalyticsRepository(setupTestDB(t))
	ctx := context.Background()
	for _, d := range []string{"2026-03-01", "2026-03-02", "2026-03-03"} {
		for _, p := range []domain.PaymentProvider{domain.ProviderPayU, domain.ProviderStripe} {
			_, err := repo.Create(ctx, &domain.PaymentAnalytics{Date: d, Provider: p})
			require.NoError(t, err)
		}
	}

	all, err := repo.List(ctx, "", "", "")
	require.NoError(t, err)
	assert.Len(t, all, 6)

	window, err := repo.List(ctx, "2026-03-02", "2026-03-03", domain.ProviderStripe)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "2026-03-02", window[0].Date)
	assert.Equal(t, domain.ProviderStripe, window[1].Provider)
}

func TestPaymentRepository_ListByProviderCreatedBetween(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mk := func(ext string, provider domain.PaymentProvider, at time.Time) {
		require.NoError(t, db.Create(&domain.Payment{
			DonationID: 1, Provider: provider, ExternalID: ext, Status: domain.PaymentSucceeded,
			Amount: decimal.NewFromInt(10), Currency: domain.CurrencyPLN, CreatedAt: at, UpdatedAt: at,
		}).Error)
	}
	mk("before", domain.ProviderPayU, day.Add(-time.Second))
	mk("start", domain.ProviderPayU, day)
	mk("late", domain.ProviderPayU, day.Add(23*time.Hour+59*time.Minute))
	mk("next", domain.ProviderPayU, day.Add(24*time.Hour))
	mk("other", domain.ProviderStripe, day.Add(time.Hour))

	out, err := repo.ListByProviderCreatedBetween(ctx, domain.ProviderPayU, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	var ids []string
	for _, p := range out {
		ids = append(ids, p.ExternalID)
	}
	assert.Equal(t, []string{"start", "late"}, ids)

	got, err := repo.GetByExternalID(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, "late", got.ExternalID)

	_, err = repo.GetByExternalID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDonationRepository_GetWithPayments(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDonationRepository(db)
	ctx := context.Background()

	d := &domain.Donation{ShelterID: 1, DonorUsername: "ann", DonationType: domain.DonationMoney, Amount: decimal.NewFromInt(10), Currency: domain.CurrencyPLN, Status: domain.DonationPending}
	require.NoError(t, repo.Create(ctx, d))
	require.NoError(t, db.Create(&domain.Payment{DonationID: d.ID, Provider: domain.ProviderPayU, ExternalID: "a", Status: domain.PaymentFailed, Amount: d.Amount, Currency: d.Currency}).Error)
	require.NoError(t, db.Create(&domain.Payment{DonationID: d.ID, Provider: domain.ProviderPayU, ExternalID: "b", Status: domain.PaymentPending, Amount: d.Amount, Currency: d.Currency}).Error)

	got, err := repo.GetWithPayments(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got.Payments, 2)
	assert.True(t, got.HasActivePayment())
	assert.False(t, got.CanAcceptNewPayment(3))

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.True(t, IsUniqueConstraintError(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueConstraintError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsUniqueConstraintError(errors.New("UNIQUE constraint failed: payment_analytics.date")))
	assert.False(t, IsUniqueConstraintError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueConstraintError(nil))
}
