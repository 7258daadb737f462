package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMaterialTotal(t *testing.T) {
	assert.True(t, MaterialTotal(decimal.RequireFromString("5.00"), 4).Equal(decimal.RequireFromString("20.00")))
	assert.True(t, MaterialTotal(decimal.RequireFromString("0.333"), 3).Equal(decimal.RequireFromString("1.00")))
	assert.True(t, MaterialTotal(decimal.RequireFromString("5.00"), 0).IsZero())
}

func TestDonationPredicates(t *testing.T) {
	d := &Donation{Status: DonationPending, PaymentAttempts: 1}
	assert.True(t, d.CanAcceptNewPayment(3))
	assert.True(t, d.CanBeCancelled())
	assert.False(t, d.CanBeRefunded())

	d.Payments = []Payment{{Status: PaymentProcessing}}
	assert.True(t, d.HasActivePayment())
	assert.False(t, d.CanAcceptNewPayment(3))
	assert.False(t, d.CanBeCancelled())

	d.Payments = []Payment{{Status: PaymentFailed}}
	d.PaymentAttempts = 3
	assert.True(t, d.HasReachedMaxPaymentAttempts(3))
	assert.False(t, d.CanAcceptNewPayment(3))

	done := &Donation{Status: DonationCompleted, Payments: []Payment{{Status: PaymentSucceeded}}}
	assert.True(t, done.CanBeRefunded())
	assert.True(t, done.IsAbsorbing())
	assert.False(t, done.CanBeCancelled())
}

func TestLooksLikeEmail(t *testing.T) {
	assert.True(t, LooksLikeEmail("ann@example.com"))
	assert.False(t, LooksLikeEmail("ann"))
	assert.False(t, LooksLikeEmail("Ann <ann@example.com>"))
	assert.False(t, LooksLikeEmail(""))
}

func TestPaymentTransitions(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		ok       bool
	}{
		{PaymentPending, PaymentSucceeded, true},
		{PaymentProcessing, PaymentFailed, true},
		{PaymentSucceeded, PaymentPartiallyRefunded, true},
		{PaymentSucceeded, PaymentRefunded, true},
		{PaymentPartiallyRefunded, PaymentRefunded, true},
		{PaymentSucceeded, PaymentSucceeded, true},
		{PaymentSucceeded, PaymentFailed, false},
		{PaymentFailed, PaymentSucceeded, false},
		{PaymentCancelled, PaymentPending, false},
		{PaymentRefunded, PaymentPartiallyRefunded, false},
	}
	for _, tc := range cases {
		p := &Payment{Status: tc.from}
		assert.Equal(t, tc.ok, p.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRefundableAmount(t *testing.T) {
	p := &Payment{Status: PaymentPartiallyRefunded, Amount: decimal.NewFromInt(100), RefundedAmount: decimal.NewFromInt(30)}
	assert.True(t, p.RefundableAmount().Equal(decimal.NewFromInt(70)))

	p.Status = PaymentFailed
	assert.True(t, p.RefundableAmount().IsZero())
}

func TestParsers(t *testing.T) {
	c, ok := ParseCurrency("")
	assert.True(t, ok)
	assert.Equal(t, CurrencyPLN, c)
	_, ok = ParseCurrency("JPY")
	assert.False(t, ok)

	s, ok := ParsePaymentStatus("partially_refunded")
	assert.True(t, ok)
	assert.Equal(t, PaymentPartiallyRefunded, s)

	m, ok := ParsePaymentMethod("blik")
	assert.True(t, ok)
	assert.Equal(t, MethodBlik, m)
}
