package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/payments"
	"github.com/vendora/api/internal/platform/jobs"
	"github.com/vendora/api/internal/repositories"
)

type repoError struct {
	message     string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string {
	if e.message != "" {
		return e.message
	}
	return "repository error"
}

func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

var (
	errRepoNotFound = repoError{notFound: true}
	errRepoConflict = repoError{conflict: true}
)

type stubCartRepo struct {
	getFn   func(context.Context, string) (domain.Cart, error)
	clearFn func(context.Context, string) error
	cleared []string
}

func (s *stubCartRepo) GetCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, buyerID)
	}
	return domain.Cart{}, errRepoNotFound
}

func (s *stubCartRepo) ClearCart(ctx context.Context, buyerID string) error {
	s.cleared = append(s.cleared, buyerID)
	if s.clearFn != nil {
		return s.clearFn(ctx, buyerID)
	}
	return nil
}

type stubListingRepo struct {
	findFn  func(context.Context, string) (domain.Listing, error)
	batchFn func(context.Context, []string) (map[string]domain.Listing, error)
}

func (s *stubListingRepo) FindByID(ctx context.Context, listingID string) (domain.Listing, error) {
	if s.findFn != nil {
		return s.findFn(ctx, listingID)
	}
	return domain.Listing{}, errRepoNotFound
}

func (s *stubListingRepo) FindByIDs(ctx context.Context, listingIDs []string) (map[string]domain.Listing, error) {
	if s.batchFn != nil {
		return s.batchFn(ctx, listingIDs)
	}
	return map[string]domain.Listing{}, nil
}

type stubShippingRateRepo struct {
	latestFn func(context.Context, string) (domain.ShippingRate, error)
}

func (s *stubShippingRateRepo) LatestActiveBySeller(ctx context.Context, sellerID string) (domain.ShippingRate, error) {
	if s.latestFn != nil {
		return s.latestFn(ctx, sellerID)
	}
	return domain.ShippingRate{}, errRepoNotFound
}

type stubOrderRepo struct {
	insertFn          func(context.Context, domain.Order) error
	findFn            func(context.Context, string) (domain.Order, error)
	listFn            func(context.Context, string, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	updateFn          func(context.Context, string, repositories.OrderUpdate) (domain.Order, error)
	confirmDeliveryFn func(context.Context, string, time.Time) (repositories.DeliverySettlement, error)

	inserted []domain.Order
	updates  []repositories.OrderUpdate
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	s.inserted = append(s.inserted, order)
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errRepoNotFound
}

func (s *stubOrderRepo) ListByBuyer(ctx context.Context, buyerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, buyerID, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) Update(ctx context.Context, orderID string, update repositories.OrderUpdate) (domain.Order, error) {
	s.updates = append(s.updates, update)
	if s.updateFn != nil {
		return s.updateFn(ctx, orderID, update)
	}
	return domain.Order{ID: orderID}, nil
}

func (s *stubOrderRepo) ConfirmDelivery(ctx context.Context, orderID string, deliveredAt time.Time) (repositories.DeliverySettlement, error) {
	if s.confirmDeliveryFn != nil {
		return s.confirmDeliveryFn(ctx, orderID, deliveredAt)
	}
	return repositories.DeliverySettlement{}, errors.New("not implemented")
}

type stubPaymentRepo struct {
	insertFn      func(context.Context, domain.Payment) error
	findFn        func(context.Context, string) (domain.Payment, error)
	findByOrderFn func(context.Context, string) (domain.Payment, error)
	transitionFn  func(context.Context, string, domain.PaymentStatus, domain.PaymentStatus, repositories.PaymentUpdate) (domain.Payment, error)

	inserted []domain.Payment
}

func (s *stubPaymentRepo) Insert(ctx context.Context, payment domain.Payment) error {
	s.inserted = append(s.inserted, payment)
	if s.insertFn != nil {
		return s.insertFn(ctx, payment)
	}
	return nil
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findFn != nil {
		return s.findFn(ctx, paymentID)
	}
	return domain.Payment{}, errRepoNotFound
}

func (s *stubPaymentRepo) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	if s.findByOrderFn != nil {
		return s.findByOrderFn(ctx, orderID)
	}
	return domain.Payment{}, errRepoNotFound
}

func (s *stubPaymentRepo) TransitionStatus(ctx context.Context, paymentID string, from, to domain.PaymentStatus, update repositories.PaymentUpdate) (domain.Payment, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, paymentID, from, to, update)
	}
	return domain.Payment{ID: paymentID, Status: to}, nil
}

type stubHoldRepo struct {
	createFn func(context.Context, domain.PaymentHold) error
	findFn   func(context.Context, string) (domain.PaymentHold, error)

	created []domain.PaymentHold
}

func (s *stubHoldRepo) Create(ctx context.Context, hold domain.PaymentHold) error {
	s.created = append(s.created, hold)
	if s.createFn != nil {
		return s.createFn(ctx, hold)
	}
	return nil
}

func (s *stubHoldRepo) FindByOrder(ctx context.Context, orderID string) (domain.PaymentHold, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.PaymentHold{}, errRepoNotFound
}

type stubCounterRepo struct {
	nextFn func(context.Context, time.Time) (string, error)
}

func (s *stubCounterRepo) NextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, now)
	}
	return "VM-2026-000001", nil
}

type stubNotificationRepo struct {
	insertFn      func(context.Context, domain.Notification) error
	listFn        func(context.Context, string, domain.Pagination) (domain.CursorPage[domain.Notification], error)
	markReadFn    func(context.Context, string, string) error
	markStarredFn func(context.Context, string, string, bool) error

	inserted []domain.Notification
}

func (s *stubNotificationRepo) Insert(ctx context.Context, notification domain.Notification) error {
	s.inserted = append(s.inserted, notification)
	if s.insertFn != nil {
		return s.insertFn(ctx, notification)
	}
	return nil
}

func (s *stubNotificationRepo) ListByRecipient(ctx context.Context, recipientID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if s.listFn != nil {
		return s.listFn(ctx, recipientID, pager)
	}
	return domain.CursorPage[domain.Notification]{}, nil
}

func (s *stubNotificationRepo) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, recipientID, notificationID)
	}
	return nil
}

func (s *stubNotificationRepo) MarkStarred(ctx context.Context, recipientID, notificationID string, starred bool) error {
	if s.markStarredFn != nil {
		return s.markStarredFn(ctx, recipientID, notificationID, starred)
	}
	return nil
}

type stubGateway struct {
	fiatLinkFn       func(context.Context, payments.PaymentLinkRequest) (payments.PaymentLink, error)
	stablecoinLinkFn func(context.Context, payments.PaymentLinkRequest) (payments.PaymentLink, error)
	sessionFn        func(context.Context, payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	verifyFn         func(context.Context, string) (payments.Verification, error)
	confirmFn        func(context.Context, string) (payments.Confirmation, error)
}

func (s *stubGateway) CreateFiatPaymentLink(ctx context.Context, req payments.PaymentLinkRequest) (payments.PaymentLink, error) {
	if s.fiatLinkFn != nil {
		return s.fiatLinkFn(ctx, req)
	}
	return payments.PaymentLink{}, errors.New("not implemented")
}

func (s *stubGateway) CreateStablecoinPaymentLink(ctx context.Context, req payments.PaymentLinkRequest) (payments.PaymentLink, error) {
	if s.stablecoinLinkFn != nil {
		return s.stablecoinLinkFn(ctx, req)
	}
	return payments.PaymentLink{}, errors.New("not implemented")
}

func (s *stubGateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	if s.sessionFn != nil {
		return s.sessionFn(ctx, req)
	}
	return payments.CheckoutSession{}, errors.New("not implemented")
}

func (s *stubGateway) VerifyPayment(ctx context.Context, reference string) (payments.Verification, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, reference)
	}
	return payments.Verification{}, errors.New("not implemented")
}

func (s *stubGateway) ConfirmPayment(ctx context.Context, reference string) (payments.Confirmation, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, reference)
	}
	return payments.Confirmation{}, errors.New("not implemented")
}

type captureNotifier struct {
	sent      []SendNotificationCommand
	deliverFn func(context.Context, SendNotificationCommand) (Notification, error)
}

func (c *captureNotifier) Send(_ context.Context, cmd SendNotificationCommand) {
	c.sent = append(c.sent, cmd)
}

func (c *captureNotifier) Deliver(ctx context.Context, cmd SendNotificationCommand) (Notification, error) {
	c.sent = append(c.sent, cmd)
	if c.deliverFn != nil {
		return c.deliverFn(ctx, cmd)
	}
	return Notification{}, nil
}

func (c *captureNotifier) List(context.Context, ListNotificationsCommand) (domain.CursorPage[Notification], error) {
	return domain.CursorPage[Notification]{}, errors.New("not implemented")
}

func (c *captureNotifier) MarkRead(context.Context, NotificationFlagCommand) error {
	return errors.New("not implemented")
}

func (c *captureNotifier) MarkStarred(context.Context, NotificationFlagCommand) error {
	return errors.New("not implemented")
}

type capturePublisher struct {
	events    []jobs.NotificationEvent
	publishFn func(context.Context, jobs.NotificationEvent) (string, error)
}

func (c *capturePublisher) PublishNotificationEvent(ctx context.Context, event jobs.NotificationEvent) (string, error) {
	c.events = append(c.events, event)
	if c.publishFn != nil {
		return c.publishFn(ctx, event)
	}
	return "m-1", nil
}

type logRecorder struct {
	events []string
	fields []map[string]any
}

func (l *logRecorder) log(_ context.Context, event string, fields map[string]any) {
	l.events = append(l.events, event)
	l.fields = append(l.fields, fields)
}

func (l *logRecorder) has(event string) bool {
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}
