package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"funding/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	defaultSummaryDays = 30
	maxSummaryDays     = 365
	maxBackfillDays    = 366
)

var hundred = decimal.NewFromInt(100)

type paymentSource interface {
	ListByProviderCreatedBetween(ctx context.Context, provider domain.PaymentProvider, from, to time.Time) ([]domain.Payment, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Payment, error)
}

type analyticsStore interface {
	Exists(ctx context.Context, date string, provider domain.PaymentProvider) (bool, error)
	Create(ctx context.Context, row *domain.PaymentAnalytics) (bool, error)
	List(ctx context.Context, from, to string, provider domain.PaymentProvider) ([]domain.PaymentAnalytics, error)
}

// Service rolls payments up into one row per (UTC day, provider). It only
// reads payments and never takes part in reconciliation.
type Service struct {
	payments  paymentSource
	store     analyticsStore
	providers []domain.PaymentProvider
	loggerf   func(format string, args ...interface{})
	now       func() time.Time
}

func NewService(payments paymentSource, store analyticsStore, providers []domain.PaymentProvider, loggerf func(format string, args ...interface{})) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{
		payments:  payments,
		store:     store,
		providers: providers,
		loggerf:   loggerf,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Providers() []domain.PaymentProvider { return s.providers }

// GenerateDailyAnalytics rolls up yesterday for every provider. A failure for
// one provider does not stop the others.
func (s *Service) GenerateDailyAnalytics(ctx context.Context) error {
	yesterday := startOfDay(s.now()).AddDate(0, 0, -1)
	s.loggerf("level=info msg=daily analytics started date=%s", yesterday.Format(domain.AnalyticsDateLayout))

	var errs []error
	for _, p := range s.providers {
		if _, _, err := s.GenerateForDate(ctx, yesterday, p); err != nil {
			s.loggerf("level=error msg=analytics rollup failed date=%s provider=%s err=%v", yesterday.Format(domain.AnalyticsDateLayout), p, err)
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	s.loggerf("level=info msg=daily analytics completed date=%s failures=%d", yesterday.Format(domain.AnalyticsDateLayout), len(errs))
	return errors.Join(errs...)
}

// GenerateForDate is idempotent: an existing row is returned untouched and
// created is false.
func (s *Service) GenerateForDate(ctx context.Context, day time.Time, provider domain.PaymentProvider) (*domain.PaymentAnalytics, bool, error) {
	from := startOfDay(day)
	date := from.Format(domain.AnalyticsDateLayout)

	exists, err := s.store.Exists(ctx, date, provider)
	if err != nil {
		return nil, false, err
	}
	if exists {
		s.loggerf("level=info msg=analytics already exist date=%s provider=%s", date, provider)
		return s.existing(ctx, date, provider)
	}

	payments, err := s.payments.ListByProviderCreatedBetween(ctx, provider, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, false, fmt.Errorf("load payments: %w", err)
	}
	row := Aggregate(date, provider, payments)

	created, err := s.store.Create(ctx, &row)
	if err != nil {
		return nil, false, fmt.Errorf("save analytics: %w", err)
	}
	if !created {
		s.loggerf("level=info msg=analytics row written concurrently date=%s provider=%s", date, provider)
		return s.existing(ctx, date, provider)
	}
	s.loggerf("level=info msg=analytics saved date=%s provider=%s total=%d successful=%d", date, provider, row.TotalTransactions, row.SuccessfulTransactions)
	return &row, true, nil
}

func (s *Service) existing(ctx context.Context, date string, provider domain.PaymentProvider) (*domain.PaymentAnalytics, bool, error) {
	rows, err := s.store.List(ctx, date, date, provider)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, fmt.Errorf("analytics %s/%s: %w", date, provider, domain.ErrNotFound)
	}
	return &rows[0], false, nil
}

// Backfill runs GenerateForDate for every day in [from, to] and every
// provider given, or every registered provider when none is.
func (s *Service) Backfill(ctx context.Context, from, to time.Time, providers ...domain.PaymentProvider) (int, error) {
	from, to = startOfDay(from), startOfDay(to)
	if to.Before(from) {
		return 0, fmt.Errorf("range end before start: %w", domain.ErrValidation)
	}
	if to.Sub(from) > maxBackfillDays*24*time.Hour {
		return 0, fmt.Errorf("range longer than %d days: %w", maxBackfillDays, domain.ErrValidation)
	}
	if len(providers) == 0 {
		providers = s.providers
	}

	created := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, p := range providers {
			if err := ctx.Err(); err != nil {
				return created, err
			}
			_, ok, err := s.GenerateForDate(ctx, day, p)
			if err != nil {
				return created, fmt.Errorf("%s %s: %w", day.Format(domain.AnalyticsDateLayout), p, err)
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

// Aggregate computes one rollup row. Refunded payments count as successful;
// amounts and fees are summed over successful payments only.
func Aggregate(date string, provider domain.PaymentProvider, payments []domain.Payment) domain.PaymentAnalytics {
	t := emptyTotals()
	for i := range payments {
		t = addPayment(t, &payments[i])
	}
	avg := decimal.Zero
	if t.SuccessfulTransactions > 0 {
		avg = t.TotalAmount.Div(decimal.NewFromInt(t.SuccessfulTransactions)).Round(2)
	}
	return domain.PaymentAnalytics{
		Date:                     date,
		Provider:                 provider,
		TotalTransactions:        t.TotalTransactions,
		SuccessfulTransactions:   t.SuccessfulTransactions,
		FailedTransactions:       t.FailedTransactions,
		TotalAmount:              t.TotalAmount,
		TotalFees:                t.TotalFees,
		SuccessRate:              t.SuccessRate,
		AverageTransactionAmount: avg,
	}
}

func isSuccessful(s domain.PaymentStatus) bool {
	return s == domain.PaymentSucceeded || s == domain.PaymentRefunded || s == domain.PaymentPartiallyRefunded
}

func rate(part, total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Mul(hundred).Div(decimal.NewFromInt(total)).Round(2)
}

// GetAnalytics reads stored rows. Dates are YYYY-MM-DD and inclusive.
func (s *Service) GetAnalytics(ctx context.Context, from, to string, provider domain.PaymentProvider) ([]domain.PaymentAnalytics, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(domain.AnalyticsDateLayout, d); err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", d, domain.ErrValidation)
		}
	}
	if from != "" && to != "" && to < from {
		return nil, fmt.Errorf("range end before start: %w", domain.ErrValidation)
	}
	return s.store.List(ctx, from, to, provider)
}

type Totals struct {
	TotalTransactions      int64           `json:"total_transactions"`
	SuccessfulTransactions int64           `json:"successful_transactions"`
	FailedTransactions     int64           `json:"failed_transactions"`
	TotalAmount            decimal.Decimal `json:"total_amount"`
	TotalFees              decimal.Decimal `json:"total_fees"`
	SuccessRate            decimal.Decimal `json:"success_rate"`
}

type DailyTrend struct {
	Date         string          `json:"date"`
	Transactions int64           `json:"transactions"`
	Amount       decimal.Decimal `json:"amount"`
	SuccessRate  decimal.Decimal `json:"success_rate"`
}

type Summary struct {
	From              string                            `json:"from"`
	To                string                            `json:"to"`
	Totals            Totals                            `json:"totals"`
	ProviderBreakdown map[domain.PaymentProvider]Totals `json:"provider_breakdown"`
	CurrencyBreakdown map[domain.Currency]Totals        `json:"currency_breakdown"`
	MethodBreakdown   map[domain.PaymentMethod]int64    `json:"method_breakdown"`
	DailyTrends       []DailyTrend                      `json:"daily_trends"`
}

// GetSummary is computed live from payments of the last days days, today
// included. Amounts in Totals mix currencies; CurrencyBreakdown separates them.
func (s *Service) GetSummary(ctx context.Context, days int) (*Summary, error) {
	if days <= 0 {
		days = defaultSummaryDays
	}
	if days > maxSummaryDays {
		days = maxSummaryDays
	}
	today := startOfDay(s.now())
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	payments, err := s.payments.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}

	sum := &Summary{
		From:              from.Format(domain.AnalyticsDateLayout),
		To:                today.Format(domain.AnalyticsDateLayout),
		Totals:            emptyTotals(),
		ProviderBreakdown: map[domain.PaymentProvider]Totals{},
		CurrencyBreakdown: map[domain.Currency]Totals{},
		MethodBreakdown:   map[domain.PaymentMethod]int64{},
	}
	daily := map[string]Totals{}
	for i := range payments {
		p := &payments[i]
		sum.Totals = addPayment(sum.Totals, p)
		sum.ProviderBreakdown[p.Provider] = addPayment(orEmpty(sum.ProviderBreakdown[p.Provider]), p)
		sum.CurrencyBreakdown[p.Currency] = addPayment(orEmpty(sum.CurrencyBreakdown[p.Currency]), p)
		if p.PaymentMethod != "" {
			sum.MethodBreakdown[p.PaymentMethod]++
		}
		key := p.CreatedAt.UTC().Format(domain.AnalyticsDateLayout)
		daily[key] = addPayment(orEmpty(daily[key]), p)
	}

	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		key := day.Format(domain.AnalyticsDateLayout)
		trend := DailyTrend{Date: key, Amount: decimal.Zero, SuccessRate: decimal.Zero}
		if t, ok := daily[key]; ok {
			trend.Transactions = t.TotalTransactions
			trend.Amount = t.TotalAmount
			trend.SuccessRate = t.SuccessRate
		}
		sum.DailyTrends = append(sum.DailyTrends, trend)
	}
	return sum, nil
}

func emptyTotals() Totals {
	return Totals{TotalAmount: decimal.Zero, TotalFees: decimal.Zero, SuccessRate: decimal.Zero}
}

func orEmpty(t Totals) Totals {
	if t.TotalTransactions == 0 {
		return emptyTotals()
	}
	return t
}

func addPayment(t Totals, p *domain.Payment) Totals {
	t.TotalTransactions++
	switch {
	case isSuccessful(p.Status):
		t.SuccessfulTransactions++
		t.TotalAmount = t.TotalAmount.Add(p.Amount)
		t.TotalFees = t.TotalFees.Add(p.FeeAmount)
	case p.Status == domain.PaymentFailed || p.Status == domain.PaymentCancelled:
		t.FailedTransactions++
	}
	t.SuccessRate = rate(t.SuccessfulTransactions, t.TotalTransactions)
	return t
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate reads a YYYY-MM-DD day in UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(domain.AnalyticsDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, domain.ErrValidation)
	}
	return d.UTC(), nil
}
