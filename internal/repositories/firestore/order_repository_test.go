package firestore

import (
	"errors"
	"testing"
	"time"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/repositories"
)

func settlementOrder() domain.Order {
	return domain.Order{
		ID:             "ord_1",
		BuyerID:        "buyer_1",
		SellerID:       "seller_1",
		OrderStatus:    domain.OrderStatusConfirmed,
		DeliveryStatus: domain.DeliveryStatusDelivered,
		PayoutStatus:   domain.PayoutStatusInEscrow,
	}
}

func assertConflict(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected conflict error")
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSettlementGuardAllowsDeliveredOrder(t *testing.T) {
	if err := settlementGuard("ord_1", settlementOrder()); err != nil {
		t.Fatalf("delivered order awaiting payout must pass the guard: %v", err)
	}
}

func TestSettlementGuardRejectsRepeatedConfirmation(t *testing.T) {
	order := settlementOrder()
	order.PayoutStatus = domain.PayoutStatusProcessing
	assertConflict(t, settlementGuard("ord_1", order))

	order.PayoutStatus = domain.PayoutStatusPaid
	assertConflict(t, settlementGuard("ord_1", order))
}

func TestSettlementGuardRejectsTerminalOrder(t *testing.T) {
	order := settlementOrder()
	order.OrderStatus = domain.OrderStatusCancelled
	assertConflict(t, settlementGuard("ord_1", order))

	order.OrderStatus = domain.OrderStatusRefunded
	assertConflict(t, settlementGuard("ord_1", order))
}

func TestSettleHoldReleasesActiveHold(t *testing.T) {
	releasedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	hold := domain.PaymentHold{OrderID: "ord_1", Status: domain.HoldStatusActive}

	settled, write, err := settleHold("ord_1", hold, releasedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !write {
		t.Fatal("active hold must be written on release")
	}
	if settled.Status != domain.HoldStatusReleased {
		t.Fatalf("unexpected status %s", settled.Status)
	}
	if settled.ReleasedAt == nil || !settled.ReleasedAt.Equal(releasedAt) {
		t.Fatalf("unexpected release time %v", settled.ReleasedAt)
	}
}

func TestSettleHoldAlreadyReleasedSkipsWrite(t *testing.T) {
	original := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	hold := domain.PaymentHold{
		OrderID:    "ord_1",
		Status:     domain.HoldStatusReleased,
		ReleasedAt: &original,
	}

	settled, write, err := settleHold("ord_1", hold, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if write {
		t.Fatal("released hold must not be rewritten")
	}
	if settled.ReleasedAt == nil || !settled.ReleasedAt.Equal(original) {
		t.Fatalf("original release time must be preserved, got %v", settled.ReleasedAt)
	}
}

func TestSettleHoldDisputedConflicts(t *testing.T) {
	hold := domain.PaymentHold{OrderID: "ord_1", Status: domain.HoldStatusDisputed}

	_, _, err := settleHold("ord_1", hold, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	assertConflict(t, err)
}
