package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"funding/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

const stripeSessionTTL = time.Hour

var (
	stripeRate     = decimal.RequireFromString("0.029")
	stripeFixedFee = map[domain.Currency]decimal.Decimal{
		domain.CurrencyUSD: decimal.RequireFromString("0.30"),
		domain.CurrencyEUR: decimal.RequireFromString("0.25"),
		domain.CurrencyGBP: decimal.RequireFromString("0.20"),
		domain.CurrencyPLN: decimal.RequireFromString("1.20"),
	}
	stripeCurrencies = []domain.Currency{domain.CurrencyUSD, domain.CurrencyEUR, domain.CurrencyGBP, domain.CurrencyPLN}
	stripeMethods    = []domain.PaymentMethod{domain.MethodCard, domain.MethodGooglePay, domain.MethodApplePay, domain.MethodPayPal}
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API host, e.g. for stripe-mock.
	APIURL     string
	HTTPClient *http.Client
}

type StripeProvider struct {
	api           *client.API
	webhookSecret string
	rec           Reconciler
	loggerf       func(format string, args ...interface{})
	now           func() time.Time
}

func NewStripeProvider(cfg StripeConfig, rec Reconciler, loggerf func(format string, args ...interface{})) *StripeProvider {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	if cfg.HTTPClient != nil {
		backendCfg.HTTPClient = cfg.HTTPClient
	} else {
		backendCfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}
	return &StripeProvider{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		rec:           rec,
		loggerf:       loggerf,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (p *StripeProvider) Name() domain.PaymentProvider { return domain.ProviderStripe }

func (p *StripeProvider) PrimaryMarket() string { return "" }

func (p *StripeProvider) SupportedCurrencies() []domain.Currency { return stripeCurrencies }

func (p *StripeProvider) SupportedMethods() []domain.PaymentMethod { return stripeMethods }

func (p *StripeProvider) SupportsCurrency(c domain.Currency) bool {
	return containsCurrency(stripeCurrencies, c)
}

func (p *StripeProvider) SupportsPaymentMethod(m domain.PaymentMethod) bool {
	return containsMethod(stripeMethods, m)
}

// CalculateFee is 2.9% plus a fixed per-currency component.
func (p *StripeProvider) CalculateFee(amount decimal.Decimal, currency domain.Currency) decimal.Decimal {
	return percentFee(amount, stripeRate, stripeFixedFee[currency])
}

func (p *StripeProvider) CreatePayment(ctx context.Context, req ProviderPaymentRequest) (*domain.Payment, error) {
	d := req.Donation
	meta := donationMetadata(p.Name(), d)

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(d.Amount)),
		Currency:           stripe.String(strings.ToLower(string(d.Currency))),
		PaymentMethodTypes: stripe.StringSlice(stripeMethodTypes(d.Currency)),
		Description:        stripe.String(donationDescription(d)),
	}
	params.Context = ctx
	if d.IsDonorUsernameEmail() {
		params.ReceiptEmail = stripe.String(d.DonorUsername)
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(uuid.NewString())

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		p.loggerf("level=error msg=stripe create payment intent failed donation_id=%d err=%v", d.ID, err)
		return nil, fmt.Errorf("stripe create payment intent: %w: %w", domain.ErrProviderUnavailable, err)
	}
	p.loggerf("level=info msg=stripe payment intent created donation_id=%d external_id=%s status=%s", d.ID, pi.ID, pi.Status)

	payment := newPendingPayment(p, req, pi.ID, mapStripeStatus(pi.Status), p.now().Add(stripeSessionTTL), meta)
	payment.ClientSecret = pi.ClientSecret
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		payment.CheckoutURL = pi.NextAction.RedirectToURL.URL
	}
	if err := p.rec.RecordPaymentAttempt(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (p *StripeProvider) GetPaymentStatus(ctx context.Context, externalID string) (*domain.Payment, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(externalID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get payment intent %s: %w: %w", externalID, domain.ErrProviderUnavailable, err)
	}
	payment, _, err := p.rec.ApplyPaymentUpdate(ctx, stripeUpdate(pi, mapStripeStatus(pi.Status)))
	return payment, err
}

func (p *StripeProvider) CancelPayment(ctx context.Context, externalID string) (*domain.Payment, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Cancel(externalID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe cancel payment intent %s: %w: %w", externalID, domain.ErrProviderUnavailable, err)
	}
	payment, _, err := p.rec.ApplyPaymentUpdate(ctx, stripeUpdate(pi, domain.PaymentCancelled))
	return payment, err
}

func (p *StripeProvider) RefundPayment(ctx context.Context, externalID string, amount decimal.Decimal) (*domain.Payment, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(externalID),
		Amount:        stripe.Int64(toMinorUnits(amount)),
	}
	params.Context = ctx
	r, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund %s: %w: %w", externalID, domain.ErrProviderUnavailable, err)
	}
	if r.Status == stripe.RefundStatusFailed || string(r.Status) == "canceled" {
		return nil, fmt.Errorf("stripe refund %s ended in status %s: %w", r.ID, r.Status, domain.ErrProviderUnavailable)
	}
	p.loggerf("level=info msg=stripe refund created external_id=%s refund_id=%s amount=%s", externalID, r.ID, amount.StringFixed(2))

	payment, _, err := p.rec.ApplyPaymentUpdate(ctx, domain.PaymentUpdate{
		ExternalID:   externalID,
		RefundAmount: fromMinorUnits(r.Amount),
	})
	return payment, err
}

func (p *StripeProvider) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if p.webhookSecret == "" {
		return fmt.Errorf("%w: stripe webhook secret is not configured", ErrInvalidSignature)
	}
	if err := webhook.ValidatePayload(payload, signature, p.webhookSecret); err != nil {
		p.loggerf("level=warn msg=stripe webhook signature rejected err=%v", err)
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode stripe event: %w", err)
	}

	var status domain.PaymentStatus
	switch string(event.Type) {
	case "payment_intent.succeeded":
		status = domain.PaymentSucceeded
	case "payment_intent.payment_failed":
		status = domain.PaymentFailed
	case "payment_intent.canceled":
		status = domain.PaymentCancelled
	case "payment_intent.processing":
		status = domain.PaymentProcessing
	default:
		p.loggerf("level=info msg=stripe webhook event ignored event_id=%s type=%s", event.ID, event.Type)
		return nil
	}
	if event.Data == nil {
		return fmt.Errorf("stripe event %s has no data", event.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("decode stripe payment intent: %w", err)
	}
	p.loggerf("level=info msg=stripe webhook received event_id=%s type=%s external_id=%s", event.ID, event.Type, pi.ID)
	return applyNotification(ctx, p.rec, p.loggerf, stripeUpdate(&pi, status))
}

func stripeUpdate(pi *stripe.PaymentIntent, status domain.PaymentStatus) domain.PaymentUpdate {
	upd := domain.PaymentUpdate{ExternalID: pi.ID, Status: status}
	if pi.LastPaymentError != nil && (status == domain.PaymentFailed || status == domain.PaymentCancelled) {
		upd.FailureReason = pi.LastPaymentError.Msg
		upd.FailureCode = string(pi.LastPaymentError.Code)
	}
	if status == domain.PaymentCancelled && upd.FailureReason == "" && pi.CancellationReason != "" {
		upd.FailureReason = string(pi.CancellationReason)
	}
	return upd
}

// stripeMethodTypes lists the payment method types offered on the intent.
// Wallets ride on the card rails.
func stripeMethodTypes(c domain.Currency) []string {
	types := []string{"card"}
	if c == domain.CurrencyUSD || c == domain.CurrencyEUR {
		types = append(types, "paypal")
	}
	if c == domain.CurrencyUSD {
		types = append(types, "us_bank_account")
	}
	return types
}

func mapStripeStatus(s stripe.PaymentIntentStatus) domain.PaymentStatus {
	switch s {
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture:
		return domain.PaymentPending
	case stripe.PaymentIntentStatusProcessing:
		return domain.PaymentProcessing
	case stripe.PaymentIntentStatusSucceeded:
		return domain.PaymentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return domain.PaymentCancelled
	}
	return domain.PaymentPending
}
