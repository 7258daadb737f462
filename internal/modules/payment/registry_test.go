package payment

import (
	"testing"

	"funding/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetAndOrder(t *testing.T) {
	payu := &fakeProvider{name: domain.ProviderPayU}
	stripe := &fakeProvider{name: domain.ProviderStripe}
	r := NewRegistry(stripe, nil, payu)

	got, err := r.Get(domain.ProviderPayU)
	require.NoError(t, err)
	assert.Same(t, payu, got)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, domain.ProviderPayU, all[0].Name())
	assert.Equal(t, domain.ProviderStripe, all[1].Name())
	assert.Equal(t, []domain.PaymentProvider{domain.ProviderPayU, domain.ProviderStripe}, r.Names())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry(&fakeProvider{name: domain.ProviderStripe})

	_, err := r.Get(domain.ProviderPayU)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" PayU ")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderPayU, p)

	_, err = ParseProvider("paypal")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
