package services

import (
	"context"

	domain "github.com/vendora/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination    = domain.Pagination
	Cart          = domain.Cart
	CartItem      = domain.CartItem
	CheckoutLine  = domain.CheckoutLine
	CheckoutQuote = domain.CheckoutQuote
	Order         = domain.Order
	Payment       = domain.Payment
	PaymentHold   = domain.PaymentHold
	Notification  = domain.Notification
)

// CheckoutService orchestrates cart pricing, payment initialisation against
// the gateway, and the escrow-creating confirmation step.
type CheckoutService interface {
	PrepareCheckout(ctx context.Context, cmd PrepareCheckoutCommand) (CheckoutQuote, error)
	InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (PaymentInitialization, error)
	ConfirmCheckout(ctx context.Context, cmd ConfirmCheckoutCommand) (OrderConfirmation, error)
}

// OrderService drives the settlement state machine on existing orders.
type OrderService interface {
	SellerConfirmOrder(ctx context.Context, cmd SellerOrderCommand) (Order, error)
	SellerConfirmDelivery(ctx context.Context, cmd SellerOrderCommand) (Order, error)
	BuyerConfirmDelivery(ctx context.Context, cmd BuyerOrderCommand) (Order, error)
	ListBuyerOrders(ctx context.Context, cmd ListBuyerOrdersCommand) (domain.CursorPage[Order], error)
	GetOrderDetails(ctx context.Context, cmd SellerOrderCommand) (OrderDetails, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	SendMessageToBuyer(ctx context.Context, cmd SendMessageCommand) error
}

// NotificationService is the best-effort side channel plus its inbox surface.
// Send never reports failure; Deliver is for callers whose operation is the
// notification itself.
type NotificationService interface {
	Send(ctx context.Context, cmd SendNotificationCommand)
	Deliver(ctx context.Context, cmd SendNotificationCommand) (Notification, error)
	List(ctx context.Context, cmd ListNotificationsCommand) (domain.CursorPage[Notification], error)
	MarkRead(ctx context.Context, cmd NotificationFlagCommand) error
	MarkStarred(ctx context.Context, cmd NotificationFlagCommand) error
}

// PrepareCheckoutCommand identifies the cart to summarise.
type PrepareCheckoutCommand struct {
	BuyerID string
	CartID  string
}

// InitializePaymentCommand carries the buyer's checkout submission. Method is
// the raw payment-method string; the service validates it against the closed
// enum.
type InitializePaymentCommand struct {
	BuyerID         string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string
	Method          string
	Currency        string
	RedirectURL     string
	SuccessURL      string
	CancelURL       string
}

// PaymentInitialization is the redirect handle returned to the buyer.
type PaymentInitialization struct {
	PaymentID      string
	OrderID        string
	PaymentURL     string
	TotalCents     int64
	Currency       string
	TransactionRef string
}

// ConfirmCheckoutCommand finalises a payment after the gateway redirect.
type ConfirmCheckoutCommand struct {
	BuyerID        string
	PaymentID      string
	TransactionRef string
}

// OrderConfirmation is the result of a successful checkout confirmation.
type OrderConfirmation struct {
	OrderID               string
	TotalCents            int64
	Currency              string
	PaymentID             string
	EstimatedDeliveryDays int
}

// SellerOrderCommand scopes an order operation to the acting seller.
type SellerOrderCommand struct {
	SellerID string
	OrderID  string
}

// BuyerOrderCommand scopes an order operation to the acting buyer.
type BuyerOrderCommand struct {
	BuyerID string
	OrderID string
}

// ListBuyerOrdersCommand filters the buyer's order history.
type ListBuyerOrdersCommand struct {
	BuyerID string
	Status  string
	Pager   Pagination
}

// OrderDetails bundles an order with its payment and hold state for the
// seller dashboard.
type OrderDetails struct {
	Order   Order
	Payment *Payment
	Hold    *PaymentHold
}

// UpdateOrderStatusCommand moves the delivery status forward, optionally
// attaching a tracking number.
type UpdateOrderStatusCommand struct {
	SellerID       string
	OrderID        string
	DeliveryStatus string
	TrackingNumber string
}

// SendMessageCommand delivers a seller message to the buyer's inbox.
type SendMessageCommand struct {
	SellerID string
	OrderID  string
	BuyerID  string
	Message  string
}

// SendNotificationCommand is the best-effort notification payload. Email is
// optional; when empty the SMTP leg is skipped.
type SendNotificationCommand struct {
	RecipientID    string
	RecipientEmail string
	Type           domain.NotificationType
	Title          string
	Body           string
	OrderID        string
	Metadata       map[string]any
}

// ListNotificationsCommand pages through a recipient's inbox.
type ListNotificationsCommand struct {
	RecipientID string
	Pager       Pagination
}

// NotificationFlagCommand flips a per-recipient notification flag.
type NotificationFlagCommand struct {
	RecipientID    string
	NotificationID string
	Starred        bool
}
