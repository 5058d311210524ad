package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/repositories"
)

func sellerOrder(id string) domain.Order {
	return domain.Order{
		ID:             id,
		OrderNumber:    "VM-2026-000042",
		BuyerID:        "buyer_1",
		SellerID:       "seller_1",
		AmountCents:    12500,
		Currency:       "USD",
		OrderStatus:    domain.OrderStatusPending,
		DeliveryStatus: domain.DeliveryStatusNotShipped,
		PayoutStatus:   domain.PayoutStatusInEscrow,
	}
}

func newOrderDeps() OrderServiceDeps {
	return OrderServiceDeps{
		Orders:   &stubOrderRepo{},
		Payments: &stubPaymentRepo{},
		Holds:    &stubHoldRepo{},
		Notifier: &captureNotifier{},
		Clock:    func() time.Time { return time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC) },
	}
}

func TestSellerConfirmOrderRequiresActiveHold(t *testing.T) {
	deps := newOrderDeps()
	orders := &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return sellerOrder(orderID), nil
	}}
	deps.Orders = orders
	deps.Holds = &stubHoldRepo{findFn: func(_ context.Context, _ string) (domain.PaymentHold, error) {
		return domain.PaymentHold{}, errRepoNotFound
	}}
	svc, _ := NewOrderService(deps)

	_, err := svc.SellerConfirmOrder(context.Background(), SellerOrderCommand{SellerID: "seller_1", OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderPaymentNotVerified) {
		t.Fatalf("expected payment verification failure, got %v", err)
	}
	if len(orders.updates) != 0 {
		t.Fatal("order must not be mutated without an active hold")
	}
}

func TestSellerConfirmOrderRejectsReleasedHold(t *testing.T) {
	deps := newOrderDeps()
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return sellerOrder(orderID), nil
	}}
	deps.Holds = &stubHoldRepo{findFn: func(_ context.Context, orderID string) (domain.PaymentHold, error) {
		return domain.PaymentHold{OrderID: orderID, Status: domain.HoldStatusReleased}, nil
	}}
	svc, _ := NewOrderService(deps)

	_, err := svc.SellerConfirmOrder(context.Background(), SellerOrderCommand{SellerID: "seller_1", OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderPaymentNotVerified) {
		t.Fatalf("expected payment verification failure, got %v", err)
	}
}

func TestSellerConfirmOrderTransitionsAndNotifies(t *testing.T) {
	deps := newOrderDeps()
	notifier := deps.Notifier.(*captureNotifier)
	deps.Orders = &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return sellerOrder(orderID), nil
		},
		updateFn: func(_ context.Context, orderID string, update repositories.OrderUpdate) (domain.Order, error) {
			if update.OrderStatus == nil || *update.OrderStatus != domain.OrderStatusConfirmed {
				t.Fatalf("expected confirmed transition, got %+v", update)
			}
			if update.DeliveryStatus == nil || *update.DeliveryStatus != domain.DeliveryStatusProcessing {
				t.Fatalf("expected processing delivery, got %+v", update)
			}
			order := sellerOrder(orderID)
			order.OrderStatus = domain.OrderStatusConfirmed
			order.DeliveryStatus = domain.DeliveryStatusProcessing
			return order, nil
		},
	}
	deps.Holds = &stubHoldRepo{findFn: func(_ context.Context, orderID string) (domain.PaymentHold, error) {
		return domain.PaymentHold{OrderID: orderID, Status: domain.HoldStatusActive}, nil
	}}
	svc, _ := NewOrderService(deps)

	updated, err := svc.SellerConfirmOrder(context.Background(), SellerOrderCommand{SellerID: "seller_1", OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.OrderStatus != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected order status %s", updated.OrderStatus)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != domain.NotificationOrderConfirmed {
		t.Fatalf("expected order_confirmed notification, got %+v", notifier.sent)
	}
}

func TestSellerConfirmOrderScopedToSeller(t *testing.T) {
	deps := newOrderDeps()
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return sellerOrder(orderID), nil
	}}
	svc, _ := NewOrderService(deps)

	_, err := svc.SellerConfirmOrder(context.Background(), SellerOrderCommand{SellerID: "seller_2", OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for foreign seller, got %v", err)
	}
}

func TestSellerConfirmDeliveryAlreadyDelivered(t *testing.T) {
	deps := newOrderDeps()
	orders := &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		order := sellerOrder(orderID)
		order.OrderStatus = domain.OrderStatusConfirmed
		order.DeliveryStatus = domain.DeliveryStatusDelivered
		return order, nil
	}}
	deps.Orders = orders
	svc, _ := NewOrderService(deps)

	_, err := svc.SellerConfirmDelivery(context.Background(), SellerOrderCommand{SellerID: "seller_1", OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if len(orders.updates) != 0 {
		t.Fatal("state must not change on a double delivery confirmation")
	}
}

func TestSellerConfirmDeliveryRequiresConfirmedOrder(t *testing.T) {
	deps := newOrderDeps()
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return sellerOrder(orderID), nil
	}}
	svc, _ := NewOrderService(deps)

	_, err := svc.SellerConfirmDelivery(context.Background(), SellerOrderCommand{SellerID: "seller_1", OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for unconfirmed order, got %v", err)
	}
}

func TestBuyerConfirmDeliveryRequiresDeliveredStatus(t *testing.T) {
	deps := newOrderDeps()
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return sellerOrder(orderID), nil
	}}
	svc, _ := NewOrderService(deps)

	_, err := svc.BuyerConfirmDelivery(context.Background(), BuyerOrderCommand{BuyerID: "buyer_1", OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for not_shipped order, got %v", err)
	}
}

func TestBuyerConfirmDeliveryIdempotencyGuard(t *testing.T) {
	deps := newOrderDeps()
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		order := sellerOrder(orderID)
		order.OrderStatus = domain.OrderStatusConfirmed
		order.DeliveryStatus = domain.DeliveryStatusDelivered
		order.PayoutStatus = domain.PayoutStatusProcessing
		return order, nil
	}}
	svc, _ := NewOrderService(deps)

	_, err := svc.BuyerConfirmDelivery(context.Background(), BuyerOrderCommand{BuyerID: "buyer_1", OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for already-processing payout, got %v", err)
	}
}

func TestBuyerConfirmDeliveryReleasesHoldAndNotifiesSeller(t *testing.T) {
	deps := newOrderDeps()
	notifier := deps.Notifier.(*captureNotifier)
	recorder := &logRecorder{}
	deps.Logger = recorder.log

	released := sellerOrder("ord_1")
	released.OrderStatus = domain.OrderStatusConfirmed
	released.DeliveryStatus = domain.DeliveryStatusDelivered
	released.PayoutStatus = domain.PayoutStatusProcessing

	deps.Orders = &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			order := sellerOrder(orderID)
			order.OrderStatus = domain.OrderStatusConfirmed
			order.DeliveryStatus = domain.DeliveryStatusDelivered
			return order, nil
		},
		confirmDeliveryFn: func(_ context.Context, orderID string, deliveredAt time.Time) (repositories.DeliverySettlement, error) {
			releasedAt := deliveredAt
			return repositories.DeliverySettlement{
				Order: released,
				Hold: domain.PaymentHold{
					OrderID:    orderID,
					Status:     domain.HoldStatusReleased,
					ReleasedAt: &releasedAt,
				},
			}, nil
		},
	}
	svc, _ := NewOrderService(deps)

	order, err := svc.BuyerConfirmDelivery(context.Background(), BuyerOrderCommand{BuyerID: "buyer_1", OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.PayoutStatus != domain.PayoutStatusProcessing {
		t.Fatalf("unexpected payout status %s", order.PayoutStatus)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != domain.NotificationDeliveryConfirmed {
		t.Fatalf("expected delivery_confirmed notification to seller, got %+v", notifier.sent)
	}
	if notifier.sent[0].RecipientID != "seller_1" {
		t.Fatalf("notification must target the seller, got %q", notifier.sent[0].RecipientID)
	}
	if recorder.has(settlementEventHoldMissing) {
		t.Fatal("hold-missing event must not fire when the hold was released")
	}
}

func TestBuyerConfirmDeliveryLogsMissingHold(t *testing.T) {
	deps := newOrderDeps()
	recorder := &logRecorder{}
	deps.Logger = recorder.log
	notifier := deps.Notifier.(*captureNotifier)

	released := sellerOrder("ord_1")
	released.DeliveryStatus = domain.DeliveryStatusDelivered
	released.PayoutStatus = domain.PayoutStatusProcessing

	deps.Orders = &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			order := sellerOrder(orderID)
			order.DeliveryStatus = domain.DeliveryStatusDelivered
			return order, nil
		},
		confirmDeliveryFn: func(_ context.Context, _ string, _ time.Time) (repositories.DeliverySettlement, error) {
			return repositories.DeliverySettlement{Order: released, HoldMissing: true}, nil
		},
	}
	svc, _ := NewOrderService(deps)

	if _, err := svc.BuyerConfirmDelivery(context.Background(), BuyerOrderCommand{BuyerID: "buyer_1", OrderID: "ord_1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorder.has(settlementEventHoldMissing) {
		t.Fatalf("expected %s event, got %v", settlementEventHoldMissing, recorder.events)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected seller notification, got %d", len(notifier.sent))
	}
	if flagged, _ := notifier.sent[0].Metadata["holdMissing"].(bool); !flagged {
		t.Fatalf("expected holdMissing metadata flag, got %+v", notifier.sent[0].Metadata)
	}
}

func TestListBuyerOrdersRejectsUnknownStatus(t *testing.T) {
	svc, _ := NewOrderService(newOrderDeps())

	_, err := svc.ListBuyerOrders(context.Background(), ListBuyerOrdersCommand{BuyerID: "buyer_1", Status: "archived"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestListBuyerOrdersPassesScope(t *testing.T) {
	deps := newOrderDeps()
	deps.Orders = &stubOrderRepo{listFn: func(_ context.Context, buyerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
		if buyerID != "buyer_1" {
			t.Fatalf("unexpected buyer %q", buyerID)
		}
		if filter.Scope != repositories.OrderScopeActive {
			t.Fatalf("unexpected scope %q", filter.Scope)
		}
		return domain.CursorPage[domain.Order]{Items: []domain.Order{sellerOrder("ord_1")}}, nil
	}}
	svc, _ := NewOrderService(deps)

	page, err := svc.ListBuyerOrders(context.Background(), ListBuyerOrdersCommand{BuyerID: "buyer_1", Status: "active"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one order, got %d", len(page.Items))
	}
}

func TestGetOrderDetailsToleratesMissingPaymentAndHold(t *testing.T) {
	deps := newOrderDeps()
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return sellerOrder(orderID), nil
	}}
	svc, _ := NewOrderService(deps)

	details, err := svc.GetOrderDetails(context.Background(), SellerOrderCommand{SellerID: "seller_1", OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Payment != nil || details.Hold != nil {
		t.Fatalf("expected nil payment and hold, got %+v", details)
	}
}

func TestUpdateOrderStatusRejectsBackwardTransition(t *testing.T) {
	deps := newOrderDeps()
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		order := sellerOrder(orderID)
		order.OrderStatus = domain.OrderStatusConfirmed
		order.DeliveryStatus = domain.DeliveryStatusInTransit
		return order, nil
	}}
	svc, _ := NewOrderService(deps)

	_, err := svc.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		SellerID:       "seller_1",
		OrderID:        "ord_1",
		DeliveryStatus: "processing",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestUpdateOrderStatusAttachesTracking(t *testing.T) {
	deps := newOrderDeps()
	notifier := deps.Notifier.(*captureNotifier)
	deps.Orders = &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			order := sellerOrder(orderID)
			order.OrderStatus = domain.OrderStatusConfirmed
			order.DeliveryStatus = domain.DeliveryStatusProcessing
			return order, nil
		},
		updateFn: func(_ context.Context, orderID string, update repositories.OrderUpdate) (domain.Order, error) {
			if update.TrackingNumber == nil || *update.TrackingNumber != "TRK-99" {
				t.Fatalf("expected tracking number, got %+v", update)
			}
			order := sellerOrder(orderID)
			order.OrderStatus = domain.OrderStatusConfirmed
			order.DeliveryStatus = domain.DeliveryStatusInTransit
			order.TrackingNumber = "TRK-99"
			return order, nil
		},
	}
	svc, _ := NewOrderService(deps)

	order, err := svc.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		SellerID:       "seller_1",
		OrderID:        "ord_1",
		DeliveryStatus: "in_transit",
		TrackingNumber: "TRK-99",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.DeliveryStatus != domain.DeliveryStatusInTransit {
		t.Fatalf("unexpected delivery status %s", order.DeliveryStatus)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != domain.NotificationOrderShipped {
		t.Fatalf("expected shipment notification, got %+v", notifier.sent)
	}
}

func TestSendMessageToBuyerDelivers(t *testing.T) {
	deps := newOrderDeps()
	notifier := deps.Notifier.(*captureNotifier)
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return sellerOrder(orderID), nil
	}}
	svc, _ := NewOrderService(deps)

	err := svc.SendMessageToBuyer(context.Background(), SendMessageCommand{
		SellerID: "seller_1",
		OrderID:  "ord_1",
		BuyerID:  "buyer_1",
		Message:  "Your item ships tomorrow.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(notifier.sent))
	}
	sent := notifier.sent[0]
	if sent.Type != domain.NotificationSellerMessage || sent.RecipientID != "buyer_1" {
		t.Fatalf("unexpected message notification %+v", sent)
	}
	if sent.Metadata["sellerId"] != "seller_1" {
		t.Fatalf("expected seller metadata, got %+v", sent.Metadata)
	}
}

func TestSendMessageToBuyerRejectsMismatchedBuyer(t *testing.T) {
	deps := newOrderDeps()
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return sellerOrder(orderID), nil
	}}
	svc, _ := NewOrderService(deps)

	err := svc.SendMessageToBuyer(context.Background(), SendMessageCommand{
		SellerID: "seller_1",
		OrderID:  "ord_1",
		BuyerID:  "buyer_2",
		Message:  "hello",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
