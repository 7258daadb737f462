package payment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"funding/internal/domain"

	"github.com/shopspring/decimal"
)

var euroArea = map[string]bool{
	"AT": true, "BE": true, "HR": true, "CY": true, "EE": true, "FI": true, "FR": true,
	"DE": true, "GR": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PT": true, "SK": true, "SI": true, "ES": true,
}

// Service is the payment orchestrator: it picks an adapter, checks that a
// donation may take another attempt and routes follow-up calls by provider.
type Service struct {
	registry  *Registry
	donations donationReader
	payments  paymentReader
	status    Reconciler
	loggerf   func(format string, args ...interface{})
}

func NewService(registry *Registry, donations donationReader, payments paymentReader, status Reconciler, loggerf func(format string, args ...interface{})) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{
		registry:  registry,
		donations: donations,
		payments:  payments,
		status:    status,
		loggerf:   loggerf,
	}
}

func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) CalculatePaymentFee(amount decimal.Decimal, provider domain.PaymentProvider, currency domain.Currency) (*FeeCalculation, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %w", domain.ErrValidation)
	}
	if currency == "" {
		currency = domain.CurrencyPLN
	}
	p, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	if !p.SupportsCurrency(currency) {
		return nil, fmt.Errorf("%s does not take %s: %w", provider, currency, ErrUnsupportedCurrency)
	}
	calc := feeFor(p, amount, currency)
	return &calc, nil
}

func feeFor(p Provider, amount decimal.Decimal, currency domain.Currency) FeeCalculation {
	gross := amount.Round(2)
	fee := p.CalculateFee(gross, currency)
	pct := decimal.Zero
	if !gross.IsZero() {
		pct = fee.Div(gross).Round(4).Mul(hundred)
	}
	return FeeCalculation{
		Provider:      p.Name(),
		Currency:      currency,
		GrossAmount:   gross,
		FeeAmount:     fee,
		NetAmount:     gross.Sub(fee),
		FeePercentage: pct,
	}
}

// CurrencyForCountry maps a donor's ISO country code to the currency they
// are charged in.
func CurrencyForCountry(country string) domain.Currency {
	switch c := strings.ToUpper(strings.TrimSpace(country)); {
	case c == "PL":
		return domain.CurrencyPLN
	case c == "GB":
		return domain.CurrencyGBP
	case c == "US":
		return domain.CurrencyUSD
	case euroArea[c]:
		return domain.CurrencyEUR
	}
	return domain.CurrencyPLN
}

// GetAvailablePaymentOptions lists every provider able to charge the donor's
// currency. Providers whose home market is the donor's country come first,
// then the cheapest; the first option is flagged as recommended.
func (s *Service) GetAvailablePaymentOptions(amount decimal.Decimal, donorCountry string) ([]PaymentOption, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", domain.ErrValidation)
	}
	country := strings.ToUpper(strings.TrimSpace(donorCountry))
	currency := CurrencyForCountry(country)

	var options []PaymentOption
	home := map[domain.PaymentProvider]bool{}
	for _, p := range s.registry.All() {
		if !p.SupportsCurrency(currency) {
			continue
		}
		home[p.Name()] = country != "" && p.PrimaryMarket() == country
		options = append(options, PaymentOption{
			Provider:         p.Name(),
			Currency:         currency,
			SupportedMethods: p.SupportedMethods(),
			Fee:              feeFor(p, amount, currency),
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if home[a.Provider] != home[b.Provider] {
			return home[a.Provider]
		}
		if c := a.Fee.FeeAmount.Cmp(b.Fee.FeeAmount); c != 0 {
			return c < 0
		}
		return a.Provider < b.Provider
	})
	if len(options) > 0 {
		options[0].Recommended = true
	}
	return options, nil
}

func (s *Service) GetSupportedPaymentMethods(provider domain.PaymentProvider) ([]domain.PaymentMethod, error) {
	p, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	return p.SupportedMethods(), nil
}

// GetPaymentProvidersHealth is a capability check only; no network calls.
func (s *Service) GetPaymentProvidersHealth() []ProviderHealth {
	all := s.registry.All()
	out := make([]ProviderHealth, 0, len(all))
	for _, p := range all {
		h := ProviderHealth{
			Provider:   p.Name(),
			Status:     HealthDown,
			Currencies: p.SupportedCurrencies(),
			Methods:    p.SupportedMethods(),
		}
		if len(h.Currencies) > 0 && len(h.Methods) > 0 {
			h.Status = HealthUp
		}
		out = append(out, h)
	}
	return out
}

func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	d, err := s.donations.GetWithPayments(ctx, req.DonationID)
	if err != nil {
		return nil, err
	}
	if !req.IsAdmin && d.DonorUsername != req.DonorUsername {
		return nil, fmt.Errorf("donation %d: %w", d.ID, domain.ErrForbidden)
	}
	if !d.CanAcceptNewPayment(s.status.MaxPaymentAttempts()) {
		return nil, fmt.Errorf("donation %d status=%s attempts=%d: %w", d.ID, d.Status, d.PaymentAttempts, domain.ErrPaymentNotAllowed)
	}

	name := req.Provider
	if name == "" {
		name = DefaultProvider(d.Currency)
	}
	p, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if !p.SupportsCurrency(d.Currency) {
		return nil, fmt.Errorf("%s does not take %s: %w", name, d.Currency, ErrUnsupportedCurrency)
	}
	method := req.Method
	if method == "" {
		method = domain.MethodCard
	}
	if !p.SupportsPaymentMethod(method) {
		return nil, fmt.Errorf("%s does not offer %s: %w", name, method, ErrUnsupportedMethod)
	}

	payment, err := p.CreatePayment(ctx, ProviderPaymentRequest{
		Donation:  d,
		Method:    method,
		ReturnURL: req.ReturnURL,
		BlikCode:  req.BlikCode,
		BankCode:  req.BankCode,
		ClientIP:  req.ClientIP,
	})
	if err != nil {
		s.loggerf("level=error msg=create payment failed donation_id=%d provider=%s err=%v", d.ID, name, err)
		return nil, err
	}
	s.loggerf("level=info msg=payment created donation_id=%d payment_id=%d provider=%s external_id=%s", d.ID, payment.ID, name, payment.ExternalID)
	return payment, nil
}

// DefaultProvider is PayU for zloty and Stripe for everything else.
func DefaultProvider(c domain.Currency) domain.PaymentProvider {
	if c == domain.CurrencyPLN {
		return domain.ProviderPayU
	}
	return domain.ProviderStripe
}

func (s *Service) GetPayment(ctx context.Context, id int64, username string, isAdmin bool) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p.DonationID, username, isAdmin); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListDonationPayments(ctx context.Context, donationID int64, username string, isAdmin bool) ([]domain.Payment, error) {
	if err := s.authorize(ctx, donationID, username, isAdmin); err != nil {
		return nil, err
	}
	return s.payments.ListByDonation(ctx, donationID)
}

// RefreshPaymentStatus polls the provider and applies whatever it reports.
func (s *Service) RefreshPaymentStatus(ctx context.Context, id int64, username string, isAdmin bool) (*domain.Payment, error) {
	p, err := s.GetPayment(ctx, id, username, isAdmin)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Get(p.Provider)
	if err != nil {
		return nil, err
	}
	return adapter.GetPaymentStatus(ctx, p.ExternalID)
}

// UpdatePaymentStatus is the operator override. It goes through the same
// reconciliation as a provider notification.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanTransitionTo(status) {
		return nil, fmt.Errorf("payment %d %s -> %s: %w", p.ID, p.Status, status, domain.ErrInvalidTransition)
	}
	updated, _, err := s.status.ApplyPaymentUpdate(ctx, domain.PaymentUpdate{
		PaymentID:     p.ID,
		Status:        status,
		FailureReason: manualReason(status),
	})
	if err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=payment status set manually payment_id=%d from=%s to=%s", p.ID, p.Status, updated.Status)
	return updated, nil
}

func manualReason(status domain.PaymentStatus) string {
	if status == domain.PaymentFailed || status == domain.PaymentCancelled {
		return "set by operator"
	}
	return ""
}

func (s *Service) CancelPayment(ctx context.Context, id int64, username string, isAdmin bool) (*domain.Payment, error) {
	p, err := s.GetPayment(ctx, id, username, isAdmin)
	if err != nil {
		return nil, err
	}
	if p.IsTerminal() {
		return nil, fmt.Errorf("payment %d is %s: %w", p.ID, p.Status, domain.ErrInvalidTransition)
	}
	adapter, err := s.registry.Get(p.Provider)
	if err != nil {
		return nil, err
	}
	return adapter.CancelPayment(ctx, p.ExternalID)
}

// RefundPayment refunds amount, or everything left when amount is zero.
func (s *Service) RefundPayment(ctx context.Context, id int64, amount decimal.Decimal) (*domain.Payment, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("refund amount must not be negative: %w", domain.ErrValidation)
	}
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	left := p.RefundableAmount()
	if !left.IsPositive() {
		return nil, fmt.Errorf("payment %d is %s: %w", p.ID, p.Status, domain.ErrInvalidTransition)
	}
	if amount.IsZero() {
		amount = left
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("refund amount rounds to zero: %w", domain.ErrValidation)
	}
	if amount.GreaterThan(left) {
		return nil, fmt.Errorf("refund %s exceeds refundable %s: %w", amount.StringFixed(2), left.StringFixed(2), domain.ErrInvalidTransition)
	}
	adapter, err := s.registry.Get(p.Provider)
	if err != nil {
		return nil, err
	}
	return adapter.RefundPayment(ctx, p.ExternalID, amount)
}

func (s *Service) HandleWebhook(ctx context.Context, provider domain.PaymentProvider, payload []byte, signature string) error {
	p, err := s.registry.Get(provider)
	if err != nil {
		return err
	}
	return p.HandleWebhook(ctx, payload, signature)
}

func (s *Service) authorize(ctx context.Context, donationID int64, username string, isAdmin bool) error {
	if isAdmin {
		return nil
	}
	d, err := s.donations.GetWithPayments(ctx, donationID)
	if err != nil {
		return err
	}
	if d.DonorUsername != username {
		return fmt.Errorf("donation %d: %w", donationID, domain.ErrForbidden)
	}
	return nil
}
