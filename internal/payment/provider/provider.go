package provider

import (
	"context"
	"errors"

	"ms-reservations/internal/models"
)

var ErrUnknownProvider = errors.New("unknown provider")

// DispatchResult is the synchronous outcome of handing a payment to a
// gateway. Status is "processing" for asynchronous providers and
// "completed" for synchronous settlement (wallet).
type DispatchResult struct {
	ExternalReference string
	Status            models.PaymentStatus
	ProviderData      map[string]string
}

type Provider interface {
	Name() string
	Dispatch(ctx context.Context, payment *models.Payment) (*DispatchResult, error)
	// CheckStatus polls the provider; used as a fallback when
	// webhooks are delayed.
	CheckStatus(ctx context.Context, externalRef string) (models.PaymentStatus, error)
}

// Registry holds the static priority lists per payment method.
// Providers are tried strictly in registration order.
type Registry struct {
	byMethod map[string][]Provider
	byName   map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		byMethod: make(map[string][]Provider),
		byName:   make(map[string]Provider),
	}
}

func (r *Registry) Register(method string, p Provider) {
	r.byMethod[method] = append(r.byMethod[method], p)
	r.byName[p.Name()] = p
}

func (r *Registry) ForMethod(method string) []Provider {
	return r.byMethod[method]
}

func (r *Registry) ByName(name string) (Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}
