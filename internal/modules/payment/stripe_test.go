package payment

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"funding/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74/webhook"
)

const testWebhookSecret = "whsec_test"

func signStripe(payload []byte, secret string) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func stripeEvent(eventType, intentID, status string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": %q,
  "data": {"object": {"id": %q, "object": "payment_intent", "status": %q,
    "last_payment_error": {"message": "Your card was declined.", "code": "card_declined"}}}
}`, eventType, intentID, status))
}

func TestStripeWebhook_AppliesMappedStatus(t *testing.T) {
	cases := map[string]domain.PaymentStatus{
		"payment_intent.succeeded":      domain.PaymentSucceeded,
		"payment_intent.payment_failed": domain.PaymentFailed,
		"payment_intent.canceled":       domain.PaymentCancelled,
		"payment_intent.processing":     domain.PaymentProcessing,
	}
	for eventType, want := range cases {
		t.Run(eventType, func(t *testing.T) {
			rec := &recordingReconciler{}
			p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret}, rec, nil)
			payload := stripeEvent(eventType, "pi_123", "ignored")

			require.NoError(t, p.HandleWebhook(context.Background(), payload, signStripe(payload, testWebhookSecret)))
			require.Len(t, rec.updates, 1)
			assert.Equal(t, "pi_123", rec.updates[0].ExternalID)
			assert.Equal(t, want, rec.updates[0].Status)
		})
	}
}

func TestStripeWebhook_FailureDetails(t *testing.T) {
	rec := &recordingReconciler{}
	p := NewStripeProvider(StripeConfig{WebhookSecret: testWebhookSecret}, rec, nil)
	payload := stripeEvent("payment_intent.payment_failed", "pi_9", "requires_payment_method")

	require.NoError(t, p.HandleWebhook(context.Background(), payload, signStripe(payload, testWebhookSecret)))
	require.Len(t, rec.updates, 1)
	assert.Equal(t, "Your card was declined.", rec.updates[0].FailureReason)
	assert.Equal(t, "card_declined", rec.updates[0].FailureCode)
}

func TestStripeWebhook_RejectsBadSignature(t *testing.T) {
	rec := &recordingReconciler{}
	p := NewStripeProvider(StripeConfig{WebhookSecret: testWebhookSecret}, rec, nil)
	payload := stripeEvent("payment_intent.succeeded", "pi_123", "succeeded")

	err := p.HandleWebhook(context.Background(), payload, signStripe(payload, "whsec_other"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	err = p.HandleWebhook(context.Background(), payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, rec.updates)

	unconfigured := NewStripeProvider(StripeConfig{}, rec, nil)
	err = unconfigured.HandleWebhook(context.Background(), payload, signStripe(payload, ""))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeWebhook_IgnoresOtherEvents(t *testing.T) {
	rec := &recordingReconciler{}
	p := NewStripeProvider(StripeConfig{WebhookSecret: testWebhookSecret}, rec, nil)
	payload := stripeEvent("charge.refunded", "pi_123", "succeeded")

	require.NoError(t, p.HandleWebhook(context.Background(), payload, signStripe(payload, testWebhookSecret)))
	assert.Empty(t, rec.updates)
}

func TestStripeWebhook_UnknownPaymentIsAccepted(t *testing.T) {
	rec := &recordingReconciler{applyErr: fmt.Errorf("payment pi_x: %w", domain.ErrNotFound)}
	p := NewStripeProvider(StripeConfig{WebhookSecret: testWebhookSecret}, rec, nil)
	payload := stripeEvent("payment_intent.succeeded", "pi_x", "succeeded")

	assert.NoError(t, p.HandleWebhook(context.Background(), payload, signStripe(payload, testWebhookSecret)))
}

func TestStripeCreatePayment(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k, v := range r.PostForm {
			form[k] = v[0]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_new","object":"payment_intent","status":"requires_payment_method","client_secret":"pi_new_secret_abc","amount":2550,"currency":"eur"}`))
	}))
	defer srv.Close()

	rec := &recordingReconciler{}
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", APIURL: srv.URL}, rec, nil)
	d := &domain.Donation{ID: 42, ShelterID: 7, DonorUsername: "eve@example.com", DonationType: domain.DonationMoney, Amount: dec("25.50"), Currency: domain.CurrencyEUR}

	payment, err := p.CreatePayment(context.Background(), ProviderPaymentRequest{Donation: d, Method: domain.MethodCard})
	require.NoError(t, err)

	assert.Equal(t, "2550", form["amount"])
	assert.Equal(t, "eur", form["currency"])
	assert.Equal(t, "eve@example.com", form["receipt_email"])
	assert.Equal(t, "42", form["metadata[donationId]"])
	assert.Equal(t, "card", form["payment_method_types[0]"])
	assert.Equal(t, "paypal", form["payment_method_types[1]"])

	require.Len(t, rec.attempts, 1)
	assert.Same(t, payment, rec.attempts[0])
	assert.Equal(t, "pi_new", payment.ExternalID)
	assert.Equal(t, domain.PaymentPending, payment.Status)
	assert.Equal(t, "pi_new_secret_abc", payment.ClientSecret)
	assert.True(t, payment.FeeAmount.Equal(dec("0.99")), payment.FeeAmount.String())
	assert.True(t, payment.NetAmount.Equal(dec("24.51")), payment.NetAmount.String())
	require.NotNil(t, payment.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *payment.ExpiresAt, time.Minute)
}

func TestStripeCreatePayment_ProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	rec := &recordingReconciler{}
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", APIURL: srv.URL}, rec, nil)
	d := &domain.Donation{ID: 1, Amount: dec("10"), Currency: domain.CurrencyUSD}

	_, err := p.CreatePayment(context.Background(), ProviderPaymentRequest{Donation: d, Method: domain.MethodCard})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Empty(t, rec.attempts)
}

func TestStripeRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "2500", r.PostForm.Get("amount"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","amount":2500,"status":"succeeded","payment_intent":"pi_1"}`))
	}))
	defer srv.Close()

	rec := &recordingReconciler{}
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", APIURL: srv.URL}, rec, nil)

	_, err := p.RefundPayment(context.Background(), "pi_1", dec("25.00"))
	require.NoError(t, err)
	require.Len(t, rec.updates, 1)
	assert.Equal(t, "pi_1", rec.updates[0].ExternalID)
	assert.True(t, rec.updates[0].RefundAmount.Equal(dec("25.00")))
}

func TestMapStripeStatus(t *testing.T) {
	assert.Equal(t, domain.PaymentPending, mapStripeStatus("requires_action"))
	assert.Equal(t, domain.PaymentProcessing, mapStripeStatus("processing"))
	assert.Equal(t, domain.PaymentSucceeded, mapStripeStatus("succeeded"))
	assert.Equal(t, domain.PaymentCancelled, mapStripeStatus("canceled"))
	assert.Equal(t, domain.PaymentPending, mapStripeStatus("something_new"))
}

func TestStripeFee(t *testing.T) {
	p := NewStripeProvider(StripeConfig{}, &recordingReconciler{}, nil)
	assert.True(t, p.CalculateFee(dec("100"), domain.CurrencyUSD).Equal(dec("3.20")))
	assert.True(t, p.CalculateFee(dec("10"), domain.CurrencyPLN).Equal(dec("1.49")))
}
