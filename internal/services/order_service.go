package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/repositories"
)

const (
	messageIDPrefix = "msg_"

	settlementEventHoldMissing = "settlement.release.hold_missing"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located for the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an illegal settlement transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid state transition")
	// ErrOrderPaymentNotVerified indicates no active escrow hold backs the order.
	ErrOrderPaymentNotVerified = errors.New("order: payment verification failed")
	// ErrOrderConflict indicates a concurrent transition won the race.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// deliveryTransitions enumerates the legal forward moves of the delivery status.
var deliveryTransitions = map[domain.DeliveryStatus][]domain.DeliveryStatus{
	domain.DeliveryStatusNotShipped: {domain.DeliveryStatusProcessing, domain.DeliveryStatusInTransit},
	domain.DeliveryStatusProcessing: {domain.DeliveryStatusInTransit, domain.DeliveryStatusDelivered},
	domain.DeliveryStatusInTransit:  {domain.DeliveryStatusDelivered},
	domain.DeliveryStatusDelivered:  {},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Payments repositories.PaymentRepository
	Holds    repositories.HoldRepository
	Notifier NotificationService

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	holds    repositories.HoldRepository
	notifier NotificationService

	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Holds == nil {
		return nil, errors.New("order service: hold repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		payments: deps.Payments,
		holds:    deps.Holds,
		notifier: deps.Notifier,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// SellerConfirmOrder acknowledges receipt of escrowed funds. An order without
// an active hold was never properly escrowed and must not be confirmed.
func (s *orderService) SellerConfirmOrder(ctx context.Context, cmd SellerOrderCommand) (Order, error) {
	order, err := s.loadSellerOrder(ctx, cmd)
	if err != nil {
		return Order{}, err
	}
	if order.OrderStatus.IsTerminal() {
		return Order{}, fmt.Errorf("%w: order is %s", ErrOrderInvalidState, order.OrderStatus)
	}
	if order.OrderStatus == domain.OrderStatusConfirmed {
		return Order{}, fmt.Errorf("%w: order already confirmed", ErrOrderInvalidState)
	}

	hold, err := s.holds.FindByOrder(ctx, order.ID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, ErrOrderPaymentNotVerified
		}
		return Order{}, s.translateRepoError(err, ErrOrderUnavailable)
	}
	if hold.Status != domain.HoldStatusActive {
		return Order{}, fmt.Errorf("%w: hold is %s", ErrOrderPaymentNotVerified, hold.Status)
	}

	confirmed := domain.OrderStatusConfirmed
	processing := domain.DeliveryStatusProcessing
	updated, err := s.orders.Update(ctx, order.ID, repositories.OrderUpdate{
		OrderStatus:    &confirmed,
		DeliveryStatus: &processing,
	})
	if err != nil {
		return Order{}, s.translateRepoError(err, ErrOrderUnavailable)
	}

	s.notify(ctx, SendNotificationCommand{
		RecipientID: updated.BuyerID,
		Type:        domain.NotificationOrderConfirmed,
		Title:       "Order confirmed",
		Body:        fmt.Sprintf("The seller has confirmed your order %s and is preparing it for shipment.", updated.OrderNumber),
		OrderID:     updated.ID,
	})
	return updated, nil
}

// SellerConfirmDelivery marks the shipment delivered from the seller's side.
func (s *orderService) SellerConfirmDelivery(ctx context.Context, cmd SellerOrderCommand) (Order, error) {
	order, err := s.loadSellerOrder(ctx, cmd)
	if err != nil {
		return Order{}, err
	}
	if order.OrderStatus != domain.OrderStatusConfirmed {
		return Order{}, fmt.Errorf("%w: order must be confirmed before delivery, currently %s", ErrOrderInvalidState, order.OrderStatus)
	}
	if order.DeliveryStatus == domain.DeliveryStatusDelivered {
		return Order{}, fmt.Errorf("%w: order has already been marked as delivered", ErrOrderInvalidState)
	}

	delivered := domain.DeliveryStatusDelivered
	updated, err := s.orders.Update(ctx, order.ID, repositories.OrderUpdate{
		DeliveryStatus: &delivered,
	})
	if err != nil {
		return Order{}, s.translateRepoError(err, ErrOrderUnavailable)
	}

	s.notify(ctx, SendNotificationCommand{
		RecipientID: updated.BuyerID,
		Type:        domain.NotificationOrderShipped,
		Title:       "Order delivered",
		Body:        fmt.Sprintf("Your order %s has been marked as delivered. Please confirm receipt to release payment.", updated.OrderNumber),
		OrderID:     updated.ID,
	})
	return updated, nil
}

// BuyerConfirmDelivery releases the escrow hold. The order update and the hold
// release share one transaction; a missing hold is tolerated but reported
// through a distinct log event.
func (s *orderService) BuyerConfirmDelivery(ctx context.Context, cmd BuyerOrderCommand) (Order, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if buyerID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: buyer id and order id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err, ErrOrderNotFound)
	}
	if order.BuyerID != buyerID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	if order.DeliveryStatus != domain.DeliveryStatusDelivered {
		return Order{}, fmt.Errorf("%w: delivery not yet marked, currently %s", ErrOrderInvalidState, order.DeliveryStatus)
	}
	if order.PayoutStatus == domain.PayoutStatusProcessing || order.PayoutStatus == domain.PayoutStatusPaid {
		return Order{}, fmt.Errorf("%w: payout already %s", ErrOrderInvalidState, order.PayoutStatus)
	}

	settlement, err := s.orders.ConfirmDelivery(ctx, orderID, s.now())
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderConflict, repoErr.Error())
		}
		return Order{}, s.translateRepoError(err, ErrOrderUnavailable)
	}

	metadata := map[string]any{}
	if settlement.HoldMissing {
		s.logger(ctx, settlementEventHoldMissing, map[string]any{
			"orderId": orderID,
			"buyerId": buyerID,
		})
		metadata["holdMissing"] = true
	}

	s.notify(ctx, SendNotificationCommand{
		RecipientID: settlement.Order.SellerID,
		Type:        domain.NotificationDeliveryConfirmed,
		Title:       "Delivery confirmed",
		Body:        fmt.Sprintf("The buyer confirmed delivery of order %s. Your payout is being processed.", settlement.Order.OrderNumber),
		OrderID:     settlement.Order.ID,
		Metadata:    metadata,
	})
	return settlement.Order, nil
}

// ListBuyerOrders pages through the buyer's order history.
func (s *orderService) ListBuyerOrders(ctx context.Context, cmd ListBuyerOrdersCommand) (domain.CursorPage[Order], error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
	}

	scope, err := parseOrderScope(cmd.Status)
	if err != nil {
		return domain.CursorPage[Order]{}, err
	}

	page, err := s.orders.ListByBuyer(ctx, buyerID, repositories.OrderListFilter{
		Scope: scope,
		Pager: cmd.Pager,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err, ErrOrderUnavailable)
	}
	return page, nil
}

// GetOrderDetails returns the order plus payment and hold state, seller-scoped.
func (s *orderService) GetOrderDetails(ctx context.Context, cmd SellerOrderCommand) (OrderDetails, error) {
	order, err := s.loadSellerOrder(ctx, cmd)
	if err != nil {
		return OrderDetails{}, err
	}
	details := OrderDetails{Order: order}

	if s.payments != nil {
		payment, err := s.payments.FindByOrder(ctx, order.ID)
		switch {
		case err == nil:
			details.Payment = &payment
		case !isNotFound(err):
			return OrderDetails{}, s.translateRepoError(err, ErrOrderUnavailable)
		}
	}

	hold, err := s.holds.FindByOrder(ctx, order.ID)
	switch {
	case err == nil:
		details.Hold = &hold
	case !isNotFound(err):
		return OrderDetails{}, s.translateRepoError(err, ErrOrderUnavailable)
	}

	return details, nil
}

// UpdateOrderStatus advances the delivery status along the legal transitions,
// optionally attaching a tracking number.
func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	order, err := s.loadSellerOrder(ctx, SellerOrderCommand{SellerID: cmd.SellerID, OrderID: cmd.OrderID})
	if err != nil {
		return Order{}, err
	}
	if order.OrderStatus.IsTerminal() {
		return Order{}, fmt.Errorf("%w: order is %s", ErrOrderInvalidState, order.OrderStatus)
	}

	target := domain.DeliveryStatus(strings.TrimSpace(cmd.DeliveryStatus))
	allowed, known := deliveryTransitions[order.DeliveryStatus]
	if _, targetKnown := deliveryTransitions[target]; !targetKnown {
		return Order{}, fmt.Errorf("%w: unknown delivery status %q", ErrOrderInvalidInput, cmd.DeliveryStatus)
	}
	if !known || !containsDeliveryStatus(allowed, target) {
		return Order{}, fmt.Errorf("%w: cannot move delivery from %s to %s", ErrOrderInvalidState, order.DeliveryStatus, target)
	}

	update := repositories.OrderUpdate{DeliveryStatus: &target}
	if tracking := strings.TrimSpace(cmd.TrackingNumber); tracking != "" {
		update.TrackingNumber = &tracking
	}
	updated, err := s.orders.Update(ctx, order.ID, update)
	if err != nil {
		return Order{}, s.translateRepoError(err, ErrOrderUnavailable)
	}

	if target == domain.DeliveryStatusInTransit || target == domain.DeliveryStatusDelivered {
		s.notify(ctx, SendNotificationCommand{
			RecipientID: updated.BuyerID,
			Type:        domain.NotificationOrderShipped,
			Title:       "Shipment update",
			Body:        fmt.Sprintf("Your order %s is now %s.", updated.OrderNumber, strings.ReplaceAll(string(target), "_", " ")),
			OrderID:     updated.ID,
		})
	}
	return updated, nil
}

// SendMessageToBuyer delivers a seller message into the buyer's inbox. Unlike
// settlement notifications this delivery is the operation itself, so failures
// propagate.
func (s *orderService) SendMessageToBuyer(ctx context.Context, cmd SendMessageCommand) error {
	message := strings.TrimSpace(cmd.Message)
	if message == "" {
		return fmt.Errorf("%w: message is required", ErrOrderInvalidInput)
	}
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
	}

	order, err := s.loadSellerOrder(ctx, SellerOrderCommand{SellerID: cmd.SellerID, OrderID: cmd.OrderID})
	if err != nil {
		return err
	}
	if order.BuyerID != buyerID {
		return fmt.Errorf("%w: buyer does not match order %s", ErrOrderInvalidInput, order.ID)
	}
	if s.notifier == nil {
		return ErrOrderUnavailable
	}

	_, err = s.notifier.Deliver(ctx, SendNotificationCommand{
		RecipientID: buyerID,
		Type:        domain.NotificationSellerMessage,
		Title:       "Message from seller",
		Body:        message,
		OrderID:     order.ID,
		Metadata: map[string]any{
			"messageId": messageIDPrefix + s.newID(),
			"sellerId":  order.SellerID,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	return nil
}

func (s *orderService) loadSellerOrder(ctx context.Context, cmd SellerOrderCommand) (Order, error) {
	sellerID := strings.TrimSpace(cmd.SellerID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if sellerID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: seller id and order id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err, ErrOrderNotFound)
	}
	if order.SellerID != sellerID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) notify(ctx context.Context, cmd SendNotificationCommand) {
	if s.notifier == nil {
		return
	}
	s.notifier.Send(ctx, cmd)
}

func (s *orderService) translateRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", notFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrOrderConflict, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func parseOrderScope(raw string) (repositories.OrderScope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(repositories.OrderScopeAll):
		return repositories.OrderScopeAll, nil
	case string(repositories.OrderScopeActive):
		return repositories.OrderScopeActive, nil
	case string(repositories.OrderScopeCompleted):
		return repositories.OrderScopeCompleted, nil
	default:
		return "", fmt.Errorf("%w: unknown status filter %q", ErrOrderInvalidInput, raw)
	}
}

func containsDeliveryStatus(values []domain.DeliveryStatus, target domain.DeliveryStatus) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
