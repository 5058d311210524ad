package repositories

import (
	"context"
	"time"

	domain "github.com/vendora/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Listings() ListingRepository
	ShippingRates() ShippingRateRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Holds() HoldRepository
	Notifications() NotificationRepository
	Counters() CounterRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository reads and clears buyer carts. Carts are keyed by buyer ID.
type CartRepository interface {
	GetCart(ctx context.Context, buyerID string) (domain.Cart, error)
	ClearCart(ctx context.Context, buyerID string) error
}

// ListingRepository resolves listing snapshots referenced from cart items.
type ListingRepository interface {
	FindByID(ctx context.Context, listingID string) (domain.Listing, error)
	FindByIDs(ctx context.Context, listingIDs []string) (map[string]domain.Listing, error)
}

// ShippingRateRepository resolves the flat rate a seller currently charges.
// The most recently created active rate wins.
type ShippingRateRepository interface {
	LatestActiveBySeller(ctx context.Context, sellerID string) (domain.ShippingRate, error)
}

// OrderScope narrows buyer order listings by settlement progress.
type OrderScope string

const (
	OrderScopeAll       OrderScope = "all"
	OrderScopeActive    OrderScope = "active"
	OrderScopeCompleted OrderScope = "completed"
)

// OrderListFilter carries listing inputs for buyer order queries.
type OrderListFilter struct {
	Scope OrderScope
	Pager domain.Pagination
}

// OrderUpdate carries the optional fields mutated during an order transition.
// Nil fields are left untouched.
type OrderUpdate struct {
	OrderStatus    *domain.OrderStatus
	DeliveryStatus *domain.DeliveryStatus
	PayoutStatus   *domain.PayoutStatus
	TrackingNumber *string
	DeliveredDate  *time.Time
}

// DeliverySettlement is the outcome of the buyer's delivery confirmation.
// HoldMissing is set when no escrow hold document existed for the order; the
// order transition still commits so settlement is never blocked on a missing
// ledger row.
type DeliverySettlement struct {
	Order       domain.Order
	Hold        domain.PaymentHold
	HoldMissing bool
}

// OrderRepository persists orders and drives their settlement transitions.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Update(ctx context.Context, orderID string, update OrderUpdate) (domain.Order, error)

	// ConfirmDelivery atomically marks the order delivered and releases its
	// escrow hold in a single transaction.
	ConfirmDelivery(ctx context.Context, orderID string, deliveredAt time.Time) (DeliverySettlement, error)
}

// PaymentUpdate carries optional fields mutated alongside a payment status transition.
type PaymentUpdate struct {
	TransactionRef  *string
	GatewayResponse map[string]any
}

// PaymentRepository persists payment attempts with compare-and-set transitions.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Payment, error)

	// TransitionStatus moves the payment from the expected status to the new
	// one inside a transaction, failing with a conflict when the stored status
	// no longer matches.
	TransitionStatus(ctx context.Context, paymentID string, from, to domain.PaymentStatus, update PaymentUpdate) (domain.Payment, error)
}

// HoldRepository persists escrow holds. Hold documents are keyed by order ID
// so a second active hold for the same order is unrepresentable.
type HoldRepository interface {
	Create(ctx context.Context, hold domain.PaymentHold) error
	FindByOrder(ctx context.Context, orderID string) (domain.PaymentHold, error)
}

// NotificationRepository stores the append-only notification feed.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error)
	MarkRead(ctx context.Context, recipientID, notificationID string) error
	MarkStarred(ctx context.Context, recipientID, notificationID string, starred bool) error
}

// CounterRepository allocates monotonically increasing order numbers.
type CounterRepository interface {
	NextOrderNumber(ctx context.Context, now time.Time) (string, error)
}
