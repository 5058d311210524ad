package domain

import (
	"time"
)

// DeliveryStatus tracks the physical fulfilment progress of an order.
type DeliveryStatus string

const (
	DeliveryStatusNotShipped DeliveryStatus = "not_shipped"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusInTransit  DeliveryStatus = "in_transit"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
)

// PayoutStatus tracks how far escrowed funds have progressed toward the seller.
type PayoutStatus string

const (
	PayoutStatusInEscrow   PayoutStatus = "in_escrow"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
)

// OrderStatus is the top-level order lifecycle state.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// IsTerminal reports whether the order can no longer progress.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// PaymentStatus mirrors the ledger state of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// PaymentMethod is the closed set of supported payment instruments.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCrypto       PaymentMethod = "crypto"
)

// ParsePaymentMethod validates a raw method string against the closed enum.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(raw) {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodCrypto:
		return PaymentMethod(raw), true
	default:
		return "", false
	}
}

// HoldStatus tracks the escrow hold lifecycle. Holds move active -> released
// exactly once, or active -> disputed; never backwards.
type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "active"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusDisputed HoldStatus = "disputed"
)

// CartItem is a single line within a buyer's cart. UnitPriceCents is frozen
// at add-to-cart time so live listing edits do not move an in-flight checkout.
type CartItem struct {
	ID             string
	ListingID      string
	SellerID       string
	Quantity       int
	UnitPriceCents int64
	Currency       string
	AddedAt        time.Time
}

// Cart is the buyer-scoped mutable pre-checkout container.
type Cart struct {
	ID        string
	BuyerID   string
	Currency  string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Listing is the snapshot of a sellable item read during checkout.
type Listing struct {
	ID       string
	SellerID string
	Title    string
	ImageURL string
	// PriceCents is the live listing price; checkout totals use the cart
	// item's frozen unit price instead.
	PriceCents int64
	Currency   string
	Active     bool
}

// ShippingRate is a seller-configured flat rate. The most recently created
// active rate wins; sellers without one ship free by policy.
type ShippingRate struct {
	ID          string
	SellerID    string
	AmountCents int64
	Currency    string
	Active      bool
	CreatedAt   time.Time
}

// Order is created by checkout at payment-initialisation time and driven
// forward by the settlement service.
type Order struct {
	ID             string
	OrderNumber    string
	BuyerID        string
	SellerID       string
	ListingIDs     []string
	AmountCents    int64
	Currency       string
	OrderStatus    OrderStatus
	DeliveryStatus DeliveryStatus
	PayoutStatus   PayoutStatus
	TrackingNumber string
	DeliveredDate  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Payment is one row per payment attempt, keyed by a gateway transaction
// reference. GatewayResponse is opaque audit data and never leaves the server.
type Payment struct {
	ID              string
	OrderID         string
	BuyerID         string
	AmountCents     int64
	Currency        string
	Method          PaymentMethod
	Status          PaymentStatus
	TransactionRef  string
	GatewayResponse map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentHold is the escrow record. Exactly one hold exists per order; the
// repository keys the document by order ID to make a duplicate unrepresentable.
type PaymentHold struct {
	OrderID      string
	SellerID     string
	AmountCents  int64
	Currency     string
	Status       HoldStatus
	DurationDays int
	CreatedAt    time.Time
	ReleasedAt   *time.Time
}

// NotificationType names the business events surfaced to buyers and sellers.
type NotificationType string

const (
	NotificationOrderPlaced       NotificationType = "order_placed"
	NotificationOrderConfirmed    NotificationType = "order_confirmed"
	NotificationOrderShipped      NotificationType = "order_shipped"
	NotificationDeliveryConfirmed NotificationType = "delivery_confirmed"
	NotificationPaymentFailed     NotificationType = "payment_failed"
	NotificationRefundIssued      NotificationType = "refund_issued"
	NotificationSellerMessage     NotificationType = "seller_message"
)

// Notification is an append-only side-channel record; it carries no
// settlement semantics.
type Notification struct {
	ID          string
	RecipientID string
	Type        NotificationType
	Title       string
	Body        string
	OrderID     string
	IsRead      bool
	IsStarred   bool
	Metadata    map[string]any
	CreatedAt   time.Time
}

// Pagination carries cursor paging inputs shared by list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
