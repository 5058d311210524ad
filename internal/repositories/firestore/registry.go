package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry interface.
type Registry struct {
	provider *pfirestore.Provider

	carts         *CartRepository
	listings      *ListingRepository
	shippingRates *ShippingRateRepository
	orders        *OrderRepository
	payments      *PaymentRepository
	holds         *HoldRepository
	notifications *NotificationRepository
	counters      *CounterRepository
}

// NewRegistry wires every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	listings, err := NewListingRepository(provider)
	if err != nil {
		return nil, err
	}
	shippingRates, err := NewShippingRateRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	holds, err := NewHoldRepository(provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      provider,
		carts:         carts,
		listings:      listings,
		shippingRates: shippingRates,
		orders:        orders,
		payments:      payments,
		holds:         holds,
		notifications: notifications,
		counters:      counters,
	}, nil
}

var _ repositories.Registry = (*Registry)(nil)

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Carts() repositories.CartRepository                 { return r.carts }
func (r *Registry) Listings() repositories.ListingRepository           { return r.listings }
func (r *Registry) ShippingRates() repositories.ShippingRateRepository { return r.shippingRates }
func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository           { return r.payments }
func (r *Registry) Holds() repositories.HoldRepository                 { return r.holds }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }
