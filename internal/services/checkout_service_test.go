package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/payments"
	"github.com/vendora/api/internal/repositories"
)

func testCart(buyerID string) domain.Cart {
	return domain.Cart{
		ID:       buyerID,
		BuyerID:  buyerID,
		Currency: "USD",
		Items: []domain.CartItem{
			{ID: "ci_1", ListingID: "lst_1", SellerID: "seller_1", Quantity: 1, UnitPriceCents: 5000, Currency: "USD"},
			{ID: "ci_2", ListingID: "lst_2", SellerID: "seller_1", Quantity: 2, UnitPriceCents: 3000, Currency: "USD"},
		},
	}
}

func testListings() map[string]domain.Listing {
	return map[string]domain.Listing{
		"lst_1": {ID: "lst_1", SellerID: "seller_1", Title: "Lamp", PriceCents: 5000, Currency: "USD", Active: true},
		"lst_2": {ID: "lst_2", SellerID: "seller_1", Title: "Rug", PriceCents: 3000, Currency: "USD", Active: true},
	}
}

func newCheckoutDeps() CheckoutServiceDeps {
	counter := 0
	return CheckoutServiceDeps{
		Carts: &stubCartRepo{getFn: func(_ context.Context, buyerID string) (domain.Cart, error) {
			return testCart(buyerID), nil
		}},
		Listings: &stubListingRepo{batchFn: func(_ context.Context, _ []string) (map[string]domain.Listing, error) {
			return testListings(), nil
		}},
		ShippingRates: &stubShippingRateRepo{latestFn: func(_ context.Context, sellerID string) (domain.ShippingRate, error) {
			return domain.ShippingRate{SellerID: sellerID, AmountCents: 1500, Currency: "USD", Active: true}, nil
		}},
		Orders:   &stubOrderRepo{},
		Payments: &stubPaymentRepo{},
		Holds:    &stubHoldRepo{},
		Counters: &stubCounterRepo{},
		Gateway:  &stubGateway{},
		Clock:    func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() func() string {
			return func() string {
				counter++
				return fmt.Sprintf("01TESTULID%06d", counter)
			}
		}(),
	}
}

func TestPrepareCheckoutTotals(t *testing.T) {
	deps := newCheckoutDeps()
	svc, err := NewCheckoutService(deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	quote, err := svc.PrepareCheckout(context.Background(), PrepareCheckoutCommand{BuyerID: "buyer_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.SubtotalCents != 11000 {
		t.Fatalf("expected subtotal 11000, got %d", quote.SubtotalCents)
	}
	if quote.ShippingCents != 1500 {
		t.Fatalf("expected shipping 1500, got %d", quote.ShippingCents)
	}
	if quote.TotalCents != 12500 {
		t.Fatalf("expected total 12500, got %d", quote.TotalCents)
	}
	if len(quote.SellerIDs) != 1 || quote.SellerIDs[0] != "seller_1" {
		t.Fatalf("unexpected sellers %v", quote.SellerIDs)
	}
}

func TestPrepareCheckoutDefaultsShippingToFree(t *testing.T) {
	deps := newCheckoutDeps()
	deps.ShippingRates = &stubShippingRateRepo{latestFn: func(_ context.Context, _ string) (domain.ShippingRate, error) {
		return domain.ShippingRate{}, errRepoNotFound
	}}
	svc, _ := NewCheckoutService(deps)

	quote, err := svc.PrepareCheckout(context.Background(), PrepareCheckoutCommand{BuyerID: "buyer_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.ShippingCents != 0 {
		t.Fatalf("expected free shipping, got %d", quote.ShippingCents)
	}
	if quote.TotalCents != 11000 {
		t.Fatalf("expected total 11000, got %d", quote.TotalCents)
	}
}

func TestPrepareCheckoutEmptyCart(t *testing.T) {
	deps := newCheckoutDeps()
	deps.Carts = &stubCartRepo{getFn: func(_ context.Context, buyerID string) (domain.Cart, error) {
		return domain.Cart{ID: buyerID, BuyerID: buyerID, Currency: "USD"}, nil
	}}
	svc, _ := NewCheckoutService(deps)

	_, err := svc.PrepareCheckout(context.Background(), PrepareCheckoutCommand{BuyerID: "buyer_1"})
	if !errors.Is(err, ErrCheckoutCartEmpty) {
		t.Fatalf("expected empty-cart error, got %v", err)
	}
}

func TestInitializePaymentRejectsMultiSellerCart(t *testing.T) {
	deps := newCheckoutDeps()
	deps.Carts = &stubCartRepo{getFn: func(_ context.Context, buyerID string) (domain.Cart, error) {
		cart := testCart(buyerID)
		cart.Items[1].SellerID = "seller_2"
		return cart, nil
	}}
	deps.Listings = &stubListingRepo{batchFn: func(_ context.Context, _ []string) (map[string]domain.Listing, error) {
		listings := testListings()
		second := listings["lst_2"]
		second.SellerID = "seller_2"
		listings["lst_2"] = second
		return listings, nil
	}}
	orders := &stubOrderRepo{}
	paymentsRepo := &stubPaymentRepo{}
	deps.Orders = orders
	deps.Payments = paymentsRepo
	svc, _ := NewCheckoutService(deps)

	_, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{
		BuyerID: "buyer_1",
		Method:  "card",
	})
	if !errors.Is(err, ErrCheckoutMultiSeller) {
		t.Fatalf("expected multi-seller rejection, got %v", err)
	}
	if len(orders.inserted) != 0 || len(paymentsRepo.inserted) != 0 {
		t.Fatal("no order or payment row may be created for a rejected cart")
	}
}

func TestInitializePaymentRejectsUnknownMethod(t *testing.T) {
	svc, _ := NewCheckoutService(newCheckoutDeps())

	_, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{
		BuyerID: "buyer_1",
		Method:  "paypal",
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestInitializePaymentCreatesOrderAfterGatewaySuccess(t *testing.T) {
	deps := newCheckoutDeps()
	orders := &stubOrderRepo{}
	paymentsRepo := &stubPaymentRepo{}
	deps.Orders = orders
	deps.Payments = paymentsRepo
	deps.Gateway = &stubGateway{sessionFn: func(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		if req.AmountCents != 12500 {
			t.Fatalf("expected recomputed total 12500, got %d", req.AmountCents)
		}
		return payments.CheckoutSession{URL: "https://pay.tsara.io/s/1", Reference: "txn_1"}, nil
	}}
	svc, _ := NewCheckoutService(deps)

	result, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{
		BuyerID:    "buyer_1",
		Method:     "card",
		SuccessURL: "https://vendora.io/ok",
		CancelURL:  "https://vendora.io/no",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(result.PaymentID, "pay_") || !strings.HasPrefix(result.OrderID, "ord_") {
		t.Fatalf("unexpected identifiers %q %q", result.PaymentID, result.OrderID)
	}
	if result.TransactionRef != "txn_1" {
		t.Fatalf("unexpected transaction ref %q", result.TransactionRef)
	}
	if len(orders.inserted) != 1 {
		t.Fatalf("expected one order, got %d", len(orders.inserted))
	}
	order := orders.inserted[0]
	if order.OrderStatus != domain.OrderStatusPending || order.PayoutStatus != domain.PayoutStatusInEscrow {
		t.Fatalf("unexpected initial order state %+v", order)
	}
	if order.AmountCents != 12500 {
		t.Fatalf("unexpected order amount %d", order.AmountCents)
	}
	if len(paymentsRepo.inserted) != 1 {
		t.Fatalf("expected one payment, got %d", len(paymentsRepo.inserted))
	}
	if paymentsRepo.inserted[0].Status != domain.PaymentStatusPending {
		t.Fatalf("unexpected payment status %s", paymentsRepo.inserted[0].Status)
	}
}

func TestInitializePaymentForwardsCustomerProfile(t *testing.T) {
	deps := newCheckoutDeps()
	var captured payments.PaymentLinkRequest
	deps.Gateway = &stubGateway{fiatLinkFn: func(_ context.Context, req payments.PaymentLinkRequest) (payments.PaymentLink, error) {
		captured = req
		return payments.PaymentLink{URL: "https://pay.tsara.io/l/1", Reference: "txn_1"}, nil
	}}
	svc, _ := NewCheckoutService(deps)

	_, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{
		BuyerID:         "buyer_1",
		CustomerName:    "Ada Lovelace",
		CustomerEmail:   "ada@example.com",
		CustomerPhone:   "+2348000000000",
		ShippingAddress: "1 Analytical Way, Lagos",
		Method:          "card",
		RedirectURL:     "https://vendora.io/return",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.CustomerName != "Ada Lovelace" || captured.CustomerEmail != "ada@example.com" || captured.CustomerPhone != "+2348000000000" {
		t.Fatalf("customer profile not forwarded: %+v", captured)
	}
	if captured.ShippingAddress != "1 Analytical Way, Lagos" {
		t.Fatalf("shipping address not forwarded: %q", captured.ShippingAddress)
	}
	if captured.RedirectURL != "https://vendora.io/return" {
		t.Fatalf("redirect url not forwarded: %q", captured.RedirectURL)
	}
}

func TestInitializePaymentForwardsCustomerToSession(t *testing.T) {
	deps := newCheckoutDeps()
	var captured payments.CheckoutSessionRequest
	deps.Gateway = &stubGateway{sessionFn: func(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		captured = req
		return payments.CheckoutSession{URL: "https://pay.tsara.io/s/1", Reference: "txn_1"}, nil
	}}
	svc, _ := NewCheckoutService(deps)

	_, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{
		BuyerID:       "buyer_1",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		Method:        "bank_transfer",
		SuccessURL:    "https://vendora.io/ok",
		CancelURL:     "https://vendora.io/no",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.CustomerName != "Ada Lovelace" || captured.CustomerEmail != "ada@example.com" {
		t.Fatalf("customer profile not forwarded: %+v", captured)
	}
}

func TestInitializePaymentGatewayFailureCreatesNothing(t *testing.T) {
	deps := newCheckoutDeps()
	orders := &stubOrderRepo{}
	deps.Orders = orders
	deps.Gateway = &stubGateway{stablecoinLinkFn: func(_ context.Context, _ payments.PaymentLinkRequest) (payments.PaymentLink, error) {
		return payments.PaymentLink{}, &payments.GatewayError{Kind: payments.ErrorKindConnectivity, Op: "create_stablecoin_link", Err: errors.New("boom")}
	}}
	svc, _ := NewCheckoutService(deps)

	_, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{
		BuyerID: "buyer_1",
		Method:  "crypto",
	})
	if !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if len(orders.inserted) != 0 {
		t.Fatal("order must not be created when the gateway call fails")
	}
}

func TestInitializePaymentRejectsNonHTTPURL(t *testing.T) {
	deps := newCheckoutDeps()
	orders := &stubOrderRepo{}
	deps.Orders = orders
	deps.Gateway = &stubGateway{stablecoinLinkFn: func(_ context.Context, _ payments.PaymentLinkRequest) (payments.PaymentLink, error) {
		return payments.PaymentLink{URL: "tsara://pay/1", Reference: "txn_1"}, nil
	}}
	svc, _ := NewCheckoutService(deps)

	_, err := svc.InitializePayment(context.Background(), InitializePaymentCommand{
		BuyerID: "buyer_1",
		Method:  "crypto",
	})
	if !errors.Is(err, ErrCheckoutGatewayContract) {
		t.Fatalf("expected gateway contract violation, got %v", err)
	}
	if len(orders.inserted) != 0 {
		t.Fatal("order must not be created for a malformed gateway response")
	}
}

func TestConfirmCheckoutFailedGatewayStatus(t *testing.T) {
	deps := newCheckoutDeps()
	carts := deps.Carts.(*stubCartRepo)
	holds := &stubHoldRepo{}
	deps.Holds = holds
	deps.Gateway = &stubGateway{verifyFn: func(_ context.Context, _ string) (payments.Verification, error) {
		return payments.Verification{Reference: "txn_1", Status: payments.TransactionStatusFailed}, nil
	}}
	svc, _ := NewCheckoutService(deps)

	_, err := svc.ConfirmCheckout(context.Background(), ConfirmCheckoutCommand{
		BuyerID:        "buyer_1",
		PaymentID:      "pay_1",
		TransactionRef: "txn_1",
	})
	if !errors.Is(err, ErrCheckoutPaymentNotVerified) {
		t.Fatalf("expected payment-not-verified, got %v", err)
	}
	if len(holds.created) != 0 {
		t.Fatal("no hold may be created for a failed gateway status")
	}
	if len(carts.cleared) != 0 {
		t.Fatal("cart must not be cleared on failed confirmation")
	}
}

func TestConfirmCheckoutForeignPayment(t *testing.T) {
	deps := newCheckoutDeps()
	deps.Gateway = &stubGateway{verifyFn: func(_ context.Context, _ string) (payments.Verification, error) {
		return payments.Verification{Status: payments.TransactionStatusSuccess}, nil
	}}
	deps.Payments = &stubPaymentRepo{findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
		return domain.Payment{ID: paymentID, BuyerID: "someone_else", OrderID: "ord_1"}, nil
	}}
	svc, _ := NewCheckoutService(deps)

	_, err := svc.ConfirmCheckout(context.Background(), ConfirmCheckoutCommand{
		BuyerID:        "buyer_1",
		PaymentID:      "pay_1",
		TransactionRef: "txn_1",
	})
	if !errors.Is(err, ErrCheckoutPaymentNotFound) {
		t.Fatalf("expected payment-not-found, got %v", err)
	}
}

func TestConfirmCheckoutHappyPath(t *testing.T) {
	deps := newCheckoutDeps()
	carts := deps.Carts.(*stubCartRepo)
	holds := &stubHoldRepo{}
	deps.Holds = holds
	notifier := &captureNotifier{}
	deps.Notifier = notifier

	payment := domain.Payment{
		ID:      "pay_1",
		OrderID: "ord_1",
		BuyerID: "buyer_1",
		Status:  domain.PaymentStatusPending,
	}
	completed := payment
	completed.Status = domain.PaymentStatusCompleted
	deps.Payments = &stubPaymentRepo{
		findFn: func(_ context.Context, _ string) (domain.Payment, error) {
			return completed, nil
		},
		transitionFn: func(_ context.Context, _ string, from, to domain.PaymentStatus, _ repositories.PaymentUpdate) (domain.Payment, error) {
			if from != domain.PaymentStatusPending || to != domain.PaymentStatusCompleted {
				t.Fatalf("unexpected transition %s -> %s", from, to)
			}
			return completed, nil
		},
	}
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return domain.Order{
			ID:          orderID,
			OrderNumber: "VM-2026-000007",
			BuyerID:     "buyer_1",
			SellerID:    "seller_1",
			AmountCents: 12500,
			Currency:    "USD",
		}, nil
	}}
	deps.Gateway = &stubGateway{
		verifyFn: func(_ context.Context, _ string) (payments.Verification, error) {
			return payments.Verification{Status: payments.TransactionStatusSuccess}, nil
		},
		confirmFn: func(_ context.Context, _ string) (payments.Confirmation, error) {
			return payments.Confirmation{Status: payments.TransactionStatusSuccess}, nil
		},
	}
	svc, _ := NewCheckoutService(deps)

	result, err := svc.ConfirmCheckout(context.Background(), ConfirmCheckoutCommand{
		BuyerID:        "buyer_1",
		PaymentID:      "pay_1",
		TransactionRef: "txn_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OrderID != "ord_1" || result.PaymentID != "pay_1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.EstimatedDeliveryDays != defaultDeliveryDays {
		t.Fatalf("unexpected delivery estimate %d", result.EstimatedDeliveryDays)
	}
	if len(holds.created) != 1 {
		t.Fatalf("expected one hold, got %d", len(holds.created))
	}
	hold := holds.created[0]
	if hold.OrderID != "ord_1" || hold.SellerID != "seller_1" || hold.Status != domain.HoldStatusActive {
		t.Fatalf("unexpected hold %+v", hold)
	}
	if hold.DurationDays != defaultHoldDays {
		t.Fatalf("unexpected hold duration %d", hold.DurationDays)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != domain.NotificationOrderPlaced {
		t.Fatalf("expected buyer order_placed notification, got %+v", notifier.sent)
	}
	if len(carts.cleared) != 1 || carts.cleared[0] != "buyer_1" {
		t.Fatalf("expected cart clear for buyer, got %v", carts.cleared)
	}
}

func TestConfirmCheckoutDuplicateHoldConflicts(t *testing.T) {
	deps := newCheckoutDeps()
	deps.Holds = &stubHoldRepo{createFn: func(_ context.Context, _ domain.PaymentHold) error {
		return errRepoConflict
	}}
	deps.Payments = &stubPaymentRepo{
		findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
			return domain.Payment{ID: paymentID, OrderID: "ord_1", BuyerID: "buyer_1", Status: domain.PaymentStatusPending}, nil
		},
	}
	deps.Orders = &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return domain.Order{ID: orderID, BuyerID: "buyer_1", SellerID: "seller_1"}, nil
	}}
	deps.Gateway = &stubGateway{
		verifyFn: func(_ context.Context, _ string) (payments.Verification, error) {
			return payments.Verification{Status: payments.TransactionStatusSuccess}, nil
		},
		confirmFn: func(_ context.Context, _ string) (payments.Confirmation, error) {
			return payments.Confirmation{Status: payments.TransactionStatusSuccess}, nil
		},
	}
	svc, _ := NewCheckoutService(deps)

	_, err := svc.ConfirmCheckout(context.Background(), ConfirmCheckoutCommand{
		BuyerID:        "buyer_1",
		PaymentID:      "pay_1",
		TransactionRef: "txn_1",
	})
	if !errors.Is(err, ErrCheckoutConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestConfirmCheckoutPostConditionRollsBackOrder(t *testing.T) {
	deps := newCheckoutDeps()
	orders := &stubOrderRepo{findFn: func(_ context.Context, orderID string) (domain.Order, error) {
		return domain.Order{ID: orderID, BuyerID: "buyer_1", SellerID: "seller_1", OrderStatus: domain.OrderStatusPending}, nil
	}}
	deps.Orders = orders
	carts := deps.Carts.(*stubCartRepo)

	calls := 0
	deps.Payments = &stubPaymentRepo{
		findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
			calls++
			status := domain.PaymentStatusPending
			if calls > 1 {
				// Recheck after hold creation observes a regression.
				status = domain.PaymentStatusFailed
			}
			return domain.Payment{ID: paymentID, OrderID: "ord_1", BuyerID: "buyer_1", Status: status}, nil
		},
		transitionFn: func(_ context.Context, paymentID string, _, to domain.PaymentStatus, _ repositories.PaymentUpdate) (domain.Payment, error) {
			return domain.Payment{ID: paymentID, OrderID: "ord_1", BuyerID: "buyer_1", Status: to}, nil
		},
	}
	deps.Gateway = &stubGateway{
		verifyFn: func(_ context.Context, _ string) (payments.Verification, error) {
			return payments.Verification{Status: payments.TransactionStatusSuccess}, nil
		},
		confirmFn: func(_ context.Context, _ string) (payments.Confirmation, error) {
			return payments.Confirmation{Status: payments.TransactionStatusSuccess}, nil
		},
	}
	svc, _ := NewCheckoutService(deps)

	_, err := svc.ConfirmCheckout(context.Background(), ConfirmCheckoutCommand{
		BuyerID:        "buyer_1",
		PaymentID:      "pay_1",
		TransactionRef: "txn_1",
	})
	if !errors.Is(err, ErrCheckoutPaymentNotVerified) {
		t.Fatalf("expected payment-not-verified, got %v", err)
	}
	if len(orders.updates) != 1 || orders.updates[0].OrderStatus == nil || *orders.updates[0].OrderStatus != domain.OrderStatusPending {
		t.Fatalf("expected rollback to pending, got %+v", orders.updates)
	}
	if len(carts.cleared) != 0 {
		t.Fatal("cart must not be cleared when the post-condition fails")
	}
}
