package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/payments"
	"github.com/vendora/api/internal/repositories"
)

const (
	paymentIDPrefix      = "pay_"
	orderIDPrefix        = "ord_"
	defaultHoldDays      = 30
	defaultDeliveryDays  = 7
	paymentDescription   = "Vendora marketplace order"
	checkoutEventCleared = "checkout.cart_clear_failed"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutCartNotFound indicates the buyer has no cart to check out.
	ErrCheckoutCartNotFound = errors.New("checkout: cart not found")
	// ErrCheckoutCartEmpty indicates the cart has no items.
	ErrCheckoutCartEmpty = errors.New("checkout: cart is empty")
	// ErrCheckoutMultiSeller indicates the cart spans more than one seller.
	ErrCheckoutMultiSeller = errors.New("checkout: cart must contain items from a single seller")
	// ErrCheckoutPaymentNotFound indicates the payment does not exist or is not the caller's.
	ErrCheckoutPaymentNotFound = errors.New("checkout: payment not found")
	// ErrCheckoutPaymentNotVerified indicates the gateway did not report a successful payment.
	ErrCheckoutPaymentNotVerified = errors.New("checkout: payment not verified")
	// ErrCheckoutConflict indicates a concurrent confirmation already settled this payment.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutGatewayContract indicates the gateway returned a malformed response.
	ErrCheckoutGatewayContract = errors.New("checkout: gateway contract violation")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts         repositories.CartRepository
	Listings      repositories.ListingRepository
	ShippingRates repositories.ShippingRateRepository
	Orders        repositories.OrderRepository
	Payments      repositories.PaymentRepository
	Holds         repositories.HoldRepository
	Counters      repositories.CounterRepository
	Gateway       payments.Gateway
	Notifier      NotificationService

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)

	EscrowHoldDays        int
	EstimatedDeliveryDays int
	SuccessURLBase        string
	CancelURLBase         string
}

type checkoutService struct {
	carts         repositories.CartRepository
	listings      repositories.ListingRepository
	shippingRates repositories.ShippingRateRepository
	orders        repositories.OrderRepository
	payments      repositories.PaymentRepository
	holds         repositories.HoldRepository
	counters      repositories.CounterRepository
	gateway       payments.Gateway
	notifier      NotificationService

	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)

	holdDays       int
	deliveryDays   int
	successURLBase string
	cancelURLBase  string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Listings == nil {
		return nil, errors.New("checkout service: listing repository is required")
	}
	if deps.ShippingRates == nil {
		return nil, errors.New("checkout service: shipping rate repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment repository is required")
	}
	if deps.Holds == nil {
		return nil, errors.New("checkout service: hold repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
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

	holdDays := deps.EscrowHoldDays
	if holdDays <= 0 {
		holdDays = defaultHoldDays
	}
	deliveryDays := deps.EstimatedDeliveryDays
	if deliveryDays <= 0 {
		deliveryDays = defaultDeliveryDays
	}

	return &checkoutService{
		carts:         deps.Carts,
		listings:      deps.Listings,
		shippingRates: deps.ShippingRates,
		orders:        deps.Orders,
		payments:      deps.Payments,
		holds:         deps.Holds,
		counters:      deps.Counters,
		gateway:       deps.Gateway,
		notifier:      deps.Notifier,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:          idGen,
		logger:         logger,
		holdDays:       holdDays,
		deliveryDays:   deliveryDays,
		successURLBase: strings.TrimSpace(deps.SuccessURLBase),
		cancelURLBase:  strings.TrimSpace(deps.CancelURLBase),
	}, nil
}

// PrepareCheckout summarises the buyer's cart without mutating anything.
func (s *checkoutService) PrepareCheckout(ctx context.Context, cmd PrepareCheckoutCommand) (CheckoutQuote, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return CheckoutQuote{}, fmt.Errorf("%w: buyer id is required", ErrCheckoutInvalidInput)
	}

	cart, err := s.loadCart(ctx, buyerID, cmd.CartID)
	if err != nil {
		return CheckoutQuote{}, err
	}

	quote, err := s.quoteCart(ctx, cart, false)
	if err != nil {
		return CheckoutQuote{}, err
	}
	return quote, nil
}

// InitializePayment recomputes the totals server-side, dispatches to the
// gateway by payment method, and persists the order and payment rows only
// after the gateway call succeeds.
func (s *checkoutService) InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (PaymentInitialization, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return PaymentInitialization{}, fmt.Errorf("%w: buyer id is required", ErrCheckoutInvalidInput)
	}
	method, ok := domain.ParsePaymentMethod(strings.TrimSpace(cmd.Method))
	if !ok {
		return PaymentInitialization{}, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, cmd.Method)
	}

	cart, err := s.loadCart(ctx, buyerID, "")
	if err != nil {
		return PaymentInitialization{}, err
	}

	quote, err := s.quoteCart(ctx, cart, true)
	if err != nil {
		return PaymentInitialization{}, err
	}
	if len(quote.SellerIDs) != 1 {
		return PaymentInitialization{}, fmt.Errorf("%w: cart references %d sellers", ErrCheckoutMultiSeller, len(quote.SellerIDs))
	}
	sellerID := quote.SellerIDs[0]

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = quote.Currency
	}
	if currency == "" {
		return PaymentInitialization{}, fmt.Errorf("%w: currency is required", ErrCheckoutInvalidInput)
	}

	paymentID := paymentIDPrefix + s.newID()
	orderID := orderIDPrefix + s.newID()

	link, raw, err := s.dispatchGateway(ctx, method, cmd, paymentID, orderID, quote.TotalCents, currency, buyerID)
	if err != nil {
		return PaymentInitialization{}, err
	}
	if !strings.HasPrefix(link.URL, "http") {
		s.logger(ctx, "checkout.gateway_bad_url", map[string]any{
			"paymentId": paymentID,
			"url":       link.URL,
		})
		return PaymentInitialization{}, fmt.Errorf("%w: payment url is not absolute", ErrCheckoutGatewayContract)
	}

	now := s.now()
	orderNumber, err := s.counters.NextOrderNumber(ctx, now)
	if err != nil {
		return PaymentInitialization{}, s.translateRepoError(err, ErrCheckoutUnavailable)
	}

	listingIDs := make([]string, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		listingIDs = append(listingIDs, line.ListingID)
	}

	order := domain.Order{
		ID:             orderID,
		OrderNumber:    orderNumber,
		BuyerID:        buyerID,
		SellerID:       sellerID,
		ListingIDs:     listingIDs,
		AmountCents:    quote.TotalCents,
		Currency:       currency,
		OrderStatus:    domain.OrderStatusPending,
		DeliveryStatus: domain.DeliveryStatusNotShipped,
		PayoutStatus:   domain.PayoutStatusInEscrow,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		return PaymentInitialization{}, s.translateRepoError(err, ErrCheckoutUnavailable)
	}

	payment := domain.Payment{
		ID:              paymentID,
		OrderID:         orderID,
		BuyerID:         buyerID,
		AmountCents:     quote.TotalCents,
		Currency:        currency,
		Method:          method,
		Status:          domain.PaymentStatusPending,
		TransactionRef:  link.Reference,
		GatewayResponse: raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return PaymentInitialization{}, s.translateRepoError(err, ErrCheckoutUnavailable)
	}

	return PaymentInitialization{
		PaymentID:      paymentID,
		OrderID:        orderID,
		PaymentURL:     link.URL,
		TotalCents:     quote.TotalCents,
		Currency:       currency,
		TransactionRef: link.Reference,
	}, nil
}

// ConfirmCheckout is the sole path that creates an escrow hold. Every
// settlement-critical step aborts the call on failure; only the notification
// and cart-clear legs are best-effort.
func (s *checkoutService) ConfirmCheckout(ctx context.Context, cmd ConfirmCheckoutCommand) (OrderConfirmation, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	transactionRef := strings.TrimSpace(cmd.TransactionRef)
	if buyerID == "" || paymentID == "" || transactionRef == "" {
		return OrderConfirmation{}, fmt.Errorf("%w: buyer, payment id, and transaction reference are required", ErrCheckoutInvalidInput)
	}

	verification, err := s.gateway.VerifyPayment(ctx, transactionRef)
	if err != nil {
		return OrderConfirmation{}, s.translateGatewayError(ctx, "verify_payment", err)
	}
	if verification.Status != payments.TransactionStatusSuccess {
		return OrderConfirmation{}, fmt.Errorf("%w: gateway reports status %s", ErrCheckoutPaymentNotVerified, verification.Status)
	}

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return OrderConfirmation{}, s.translateRepoError(err, ErrCheckoutPaymentNotFound)
	}
	if payment.BuyerID != buyerID {
		return OrderConfirmation{}, fmt.Errorf("%w: payment %s", ErrCheckoutPaymentNotFound, paymentID)
	}
	if strings.TrimSpace(payment.OrderID) == "" {
		return OrderConfirmation{}, fmt.Errorf("%w: payment %s has no order", ErrCheckoutInvalidInput, paymentID)
	}

	confirmation, err := s.gateway.ConfirmPayment(ctx, transactionRef)
	if err != nil {
		return OrderConfirmation{}, s.translateGatewayError(ctx, "confirm_payment", err)
	}
	if confirmation.Status != payments.TransactionStatusSuccess {
		return OrderConfirmation{}, fmt.Errorf("%w: gateway confirmation status %s", ErrCheckoutPaymentNotVerified, confirmation.Status)
	}

	payment, err = s.payments.TransitionStatus(ctx, paymentID, domain.PaymentStatusPending, domain.PaymentStatusCompleted, repositories.PaymentUpdate{
		GatewayResponse: confirmation.Raw,
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return OrderConfirmation{}, fmt.Errorf("%w: payment %s already settled", ErrCheckoutConflict, paymentID)
		}
		return OrderConfirmation{}, s.translateRepoError(err, ErrCheckoutUnavailable)
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return OrderConfirmation{}, s.translateRepoError(err, ErrCheckoutUnavailable)
	}

	now := s.now()
	hold := domain.PaymentHold{
		OrderID:      order.ID,
		SellerID:     order.SellerID,
		AmountCents:  order.AmountCents,
		Currency:     order.Currency,
		Status:       domain.HoldStatusActive,
		DurationDays: s.holdDays,
		CreatedAt:    now,
	}
	if err := s.holds.Create(ctx, hold); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return OrderConfirmation{}, fmt.Errorf("%w: hold already exists for order %s", ErrCheckoutConflict, order.ID)
		}
		return OrderConfirmation{}, s.translateRepoError(err, ErrCheckoutUnavailable)
	}

	// Post-condition recheck against any race between confirmation and hold
	// creation. On mismatch the order drops back to pending and the call fails.
	recheck, err := s.payments.FindByID(ctx, paymentID)
	if err != nil || recheck.Status != domain.PaymentStatusCompleted {
		s.rollbackOrder(ctx, order.ID)
		if err != nil {
			return OrderConfirmation{}, s.translateRepoError(err, ErrCheckoutUnavailable)
		}
		return OrderConfirmation{}, fmt.Errorf("%w: payment %s is %s after hold creation", ErrCheckoutPaymentNotVerified, paymentID, recheck.Status)
	}

	if s.notifier != nil {
		s.notifier.Send(ctx, SendNotificationCommand{
			RecipientID: buyerID,
			Type:        domain.NotificationOrderPlaced,
			Title:       "Order placed",
			Body:        fmt.Sprintf("Your order %s has been placed and payment is held in escrow.", order.OrderNumber),
			OrderID:     order.ID,
		})
	}

	if err := s.carts.ClearCart(ctx, buyerID); err != nil {
		s.logger(ctx, checkoutEventCleared, map[string]any{
			"buyerId": buyerID,
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}

	return OrderConfirmation{
		OrderID:               order.ID,
		TotalCents:            order.AmountCents,
		Currency:              order.Currency,
		PaymentID:             paymentID,
		EstimatedDeliveryDays: s.deliveryDays,
	}, nil
}

func (s *checkoutService) loadCart(ctx context.Context, buyerID, cartID string) (domain.Cart, error) {
	cart, err := s.carts.GetCart(ctx, buyerID)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err, ErrCheckoutCartNotFound)
	}
	if cart.BuyerID != "" && cart.BuyerID != buyerID {
		return domain.Cart{}, fmt.Errorf("%w: cart does not belong to caller", ErrCheckoutCartNotFound)
	}
	if cartID = strings.TrimSpace(cartID); cartID != "" && !strings.EqualFold(cart.ID, cartID) {
		return domain.Cart{}, fmt.Errorf("%w: cart %s", ErrCheckoutCartNotFound, cartID)
	}
	if len(cart.Items) == 0 {
		return domain.Cart{}, ErrCheckoutCartEmpty
	}
	return cart, nil
}

// quoteCart derives the priced summary shared by preparation and payment
// initialisation. strict requires every cart item to resolve to a listing.
func (s *checkoutService) quoteCart(ctx context.Context, cart domain.Cart, strict bool) (CheckoutQuote, error) {
	listingIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		listingIDs = append(listingIDs, item.ListingID)
	}

	resolved, err := s.listings.FindByIDs(ctx, listingIDs)
	if err != nil {
		return CheckoutQuote{}, s.translateRepoError(err, ErrCheckoutUnavailable)
	}
	if strict {
		for _, item := range cart.Items {
			if _, ok := resolved[item.ListingID]; !ok {
				return CheckoutQuote{}, fmt.Errorf("%w: listing %s no longer exists", ErrCheckoutInvalidInput, item.ListingID)
			}
		}
	}

	listings := make(map[string]*domain.Listing, len(resolved))
	for id := range resolved {
		listing := resolved[id]
		listings[id] = &listing
	}

	sellerRates := make(map[string]int64)
	for _, item := range cart.Items {
		sellerID := item.SellerID
		if sellerID == "" {
			if listing := listings[item.ListingID]; listing != nil {
				sellerID = listing.SellerID
			}
		}
		if sellerID == "" {
			continue
		}
		if _, seen := sellerRates[sellerID]; seen {
			continue
		}
		rate, err := s.shippingRates.LatestActiveBySeller(ctx, sellerID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				// Sellers without a configured rate ship free by policy.
				sellerRates[sellerID] = 0
				continue
			}
			return CheckoutQuote{}, s.translateRepoError(err, ErrCheckoutUnavailable)
		}
		sellerRates[sellerID] = rate.AmountCents
	}

	quote := domain.QuoteCart(&cart, listings, func(sellerID string) int64 {
		return sellerRates[sellerID]
	})
	return quote, nil
}

func (s *checkoutService) dispatchGateway(ctx context.Context, method domain.PaymentMethod, cmd InitializePaymentCommand, paymentID, orderID string, totalCents int64, currency, buyerID string) (payments.PaymentLink, map[string]any, error) {
	successURL := strings.TrimSpace(cmd.SuccessURL)
	if successURL == "" {
		successURL = s.successURLBase
	}
	cancelURL := strings.TrimSpace(cmd.CancelURL)
	if cancelURL == "" {
		cancelURL = s.cancelURLBase
	}

	linkRequest := payments.PaymentLinkRequest{
		PaymentID:       paymentID,
		OrderID:         orderID,
		AmountCents:     totalCents,
		Currency:        currency,
		Description:     paymentDescription,
		CustomerID:      buyerID,
		CustomerName:    strings.TrimSpace(cmd.CustomerName),
		CustomerEmail:   strings.TrimSpace(cmd.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(cmd.CustomerPhone),
		ShippingAddress: strings.TrimSpace(cmd.ShippingAddress),
		RedirectURL:     strings.TrimSpace(cmd.RedirectURL),
	}

	switch method {
	case domain.PaymentMethodCrypto:
		link, err := s.gateway.CreateStablecoinPaymentLink(ctx, linkRequest)
		if err != nil {
			return payments.PaymentLink{}, nil, s.translateGatewayError(ctx, "create_stablecoin_link", err)
		}
		return link, link.Raw, nil

	case domain.PaymentMethodCard, domain.PaymentMethodBankTransfer:
		if successURL != "" && cancelURL != "" {
			session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
				PaymentID:       paymentID,
				OrderID:         orderID,
				AmountCents:     totalCents,
				Currency:        currency,
				CustomerID:      buyerID,
				CustomerName:    linkRequest.CustomerName,
				CustomerEmail:   linkRequest.CustomerEmail,
				CustomerPhone:   linkRequest.CustomerPhone,
				ShippingAddress: linkRequest.ShippingAddress,
				SuccessURL:      successURL,
				CancelURL:       cancelURL,
			})
			if err != nil {
				return payments.PaymentLink{}, nil, s.translateGatewayError(ctx, "create_checkout_session", err)
			}
			return payments.PaymentLink{URL: session.URL, Reference: session.Reference, Raw: session.Raw}, session.Raw, nil
		}
		link, err := s.gateway.CreateFiatPaymentLink(ctx, linkRequest)
		if err != nil {
			return payments.PaymentLink{}, nil, s.translateGatewayError(ctx, "create_fiat_link", err)
		}
		return link, link.Raw, nil

	default:
		return payments.PaymentLink{}, nil, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, method)
	}
}

func (s *checkoutService) rollbackOrder(ctx context.Context, orderID string) {
	pending := domain.OrderStatusPending
	if _, err := s.orders.Update(ctx, orderID, repositories.OrderUpdate{OrderStatus: &pending}); err != nil {
		s.logger(ctx, "checkout.rollback_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) translateGatewayError(ctx context.Context, op string, err error) error {
	var gwErr *payments.GatewayError
	if errors.As(err, &gwErr) {
		s.logger(ctx, "checkout.gateway_error", map[string]any{
			"op":    op,
			"kind":  string(gwErr.Kind),
			"error": gwErr.Error(),
		})
		if gwErr.IsValidation() {
			return fmt.Errorf("%w: gateway rejected the request", ErrCheckoutInvalidInput)
		}
		return fmt.Errorf("%w: payment gateway failure", ErrCheckoutUnavailable)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger(ctx, "checkout.gateway_error", map[string]any{"op": op, "error": err.Error()})
	return fmt.Errorf("%w: payment gateway failure", ErrCheckoutUnavailable)
}

func (s *checkoutService) translateRepoError(err error, notFound error) error {
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
			return fmt.Errorf("%w: %s", ErrCheckoutConflict, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}
