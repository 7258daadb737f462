package payment

import (
	"fmt"
	"sort"
	"strings"

	"funding/internal/domain"
)

// Registry is built once at startup and only read afterwards.
type Registry struct {
	providers map[domain.PaymentProvider]Provider
	order     []domain.PaymentProvider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.PaymentProvider]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := r.providers[p.Name()]; !dup {
			r.order = append(r.order, p.Name())
		}
		r.providers[p.Name()] = p
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	return r
}

func (r *Registry) Get(name domain.PaymentProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// All returns the registered adapters ordered by name.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

func (r *Registry) Names() []domain.PaymentProvider {
	return append([]domain.PaymentProvider(nil), r.order...)
}

func ParseProvider(s string) (domain.PaymentProvider, error) {
	switch p := domain.PaymentProvider(strings.ToLower(strings.TrimSpace(s))); p {
	case domain.ProviderStripe, domain.ProviderPayU:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}
