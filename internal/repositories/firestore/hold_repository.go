package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/vendora/api/internal/domain"
	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/repositories"
)

const holdsCollection = "paymentHolds"

type holdDocument struct {
	SellerID     string     `firestore:"sellerId"`
	AmountCents  int64      `firestore:"amountCents"`
	Currency     string     `firestore:"currency"`
	Status       string     `firestore:"status"`
	DurationDays int        `firestore:"durationDays"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	ReleasedAt   *time.Time `firestore:"releasedAt,omitempty"`
}

// HoldRepository implements repositories.HoldRepository on Firestore. Hold
// documents are keyed by order ID, so Create on an order that already carries
// a hold fails with a conflict.
type HoldRepository struct {
	base *pfirestore.BaseRepository[holdDocument]
}

// NewHoldRepository constructs a Firestore-backed hold repository.
func NewHoldRepository(provider *pfirestore.Provider) (*HoldRepository, error) {
	if provider == nil {
		return nil, errors.New("hold repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[holdDocument](provider, holdsCollection, nil, nil)
	return &HoldRepository{base: base}, nil
}

var _ repositories.HoldRepository = (*HoldRepository)(nil)

// Create stores the escrow hold for the order.
func (r *HoldRepository) Create(ctx context.Context, hold domain.PaymentHold) error {
	if r == nil || r.base == nil {
		return errors.New("hold repository not initialised")
	}
	orderID := strings.TrimSpace(hold.OrderID)
	if orderID == "" {
		return errors.New("hold repository: order id is required")
	}
	_, err := r.base.Create(ctx, orderID, holdDocument{
		SellerID:     strings.TrimSpace(hold.SellerID),
		AmountCents:  hold.AmountCents,
		Currency:     strings.ToUpper(strings.TrimSpace(hold.Currency)),
		Status:       string(hold.Status),
		DurationDays: hold.DurationDays,
		CreatedAt:    hold.CreatedAt.UTC(),
		ReleasedAt:   normalizeTimePointer(hold.ReleasedAt),
	})
	return err
}

// FindByOrder fetches the hold for an order.
func (r *HoldRepository) FindByOrder(ctx context.Context, orderID string) (domain.PaymentHold, error) {
	if r == nil || r.base == nil {
		return domain.PaymentHold{}, errors.New("hold repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.PaymentHold{}, errors.New("hold repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.PaymentHold{}, err
	}
	return decodeHoldDocument(doc.ID, doc.Data, doc.CreateTime), nil
}

func decodeHoldDocument(orderID string, doc holdDocument, createdAt time.Time) domain.PaymentHold {
	return domain.PaymentHold{
		OrderID:      strings.TrimSpace(orderID),
		SellerID:     strings.TrimSpace(doc.SellerID),
		AmountCents:  doc.AmountCents,
		Currency:     strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Status:       domain.HoldStatus(strings.TrimSpace(doc.Status)),
		DurationDays: doc.DurationDays,
		CreatedAt:    chooseTime(doc.CreatedAt, createdAt),
		ReleasedAt:   normalizeTimePointer(doc.ReleasedAt),
	}
}
