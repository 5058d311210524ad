package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vendora/api/internal/domain"
	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/repositories"
)

const ordersCollection = "orders"

type orderDocument struct {
	OrderNumber    string     `firestore:"orderNumber"`
	BuyerID        string     `firestore:"buyerId"`
	SellerID       string     `firestore:"sellerId"`
	ListingIDs     []string   `firestore:"listingIds"`
	AmountCents    int64      `firestore:"amountCents"`
	Currency       string     `firestore:"currency"`
	OrderStatus    string     `firestore:"orderStatus"`
	DeliveryStatus string     `firestore:"deliveryStatus"`
	PayoutStatus   string     `firestore:"payoutStatus"`
	TrackingNumber string     `firestore:"trackingNumber,omitempty"`
	DeliveredDate  *time.Time `firestore:"deliveredDate,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

// OrderRepository implements repositories.OrderRepository on Firestore. It
// also owns the escrow-hold side of delivery settlement so the order update
// and the hold release commit in one transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
	holds    *pfirestore.BaseRepository[holdDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		holds:    pfirestore.NewBaseRepository[holdDocument](provider, holdsCollection, nil, nil),
	}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Insert stores a new order. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Create(ctx, orderID, encodeOrderDocument(order))
	return err
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// ListByBuyer returns the buyer's orders ordered by most recent creation.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: buyer id is required")
	}

	limit := filter.Pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("buyerId", "==", buyerID)

		switch filter.Scope {
		case repositories.OrderScopeCompleted:
			q = q.Where("deliveryStatus", "==", string(domain.DeliveryStatusDelivered))
		case repositories.OrderScopeActive:
			q = q.Where("deliveryStatus", "in", []string{
				string(domain.DeliveryStatusNotShipped),
				string(domain.DeliveryStatusProcessing),
				string(domain.DeliveryStatusInTransit),
			})
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Update applies the non-nil fields of the update and returns the stored order.
func (r *OrderRepository) Update(ctx context.Context, orderID string, update repositories.OrderUpdate) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	updates := make([]firestore.Update, 0, 6)
	if update.OrderStatus != nil {
		updates = append(updates, firestore.Update{Path: "orderStatus", Value: string(*update.OrderStatus)})
	}
	if update.DeliveryStatus != nil {
		updates = append(updates, firestore.Update{Path: "deliveryStatus", Value: string(*update.DeliveryStatus)})
	}
	if update.PayoutStatus != nil {
		updates = append(updates, firestore.Update{Path: "payoutStatus", Value: string(*update.PayoutStatus)})
	}
	if update.TrackingNumber != nil {
		updates = append(updates, firestore.Update{Path: "trackingNumber", Value: strings.TrimSpace(*update.TrackingNumber)})
	}
	if update.DeliveredDate != nil {
		updates = append(updates, firestore.Update{Path: "deliveredDate", Value: update.DeliveredDate.UTC()})
	}
	if len(updates) == 0 {
		return r.FindByID(ctx, orderID)
	}
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now().UTC()})

	if _, err := r.base.Update(ctx, orderID, updates); err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, orderID)
}

// ConfirmDelivery marks the order delivered and releases its escrow hold in a
// single transaction. A missing hold document does not block the order
// transition; the caller decides how loudly to report it.
func (r *OrderRepository) ConfirmDelivery(ctx context.Context, orderID string, deliveredAt time.Time) (repositories.DeliverySettlement, error) {
	if r == nil || r.provider == nil {
		return repositories.DeliverySettlement{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return repositories.DeliverySettlement{}, errors.New("order repository: order id is required")
	}
	deliveredAt = deliveredAt.UTC()

	var settlement repositories.DeliverySettlement

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		holdRef, err := r.holds.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}

		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		orderDoc, err := r.base.Decode(ctx, orderSnap)
		if err != nil {
			return err
		}
		order := decodeOrderDocument(orderDoc.ID, orderDoc.Data, orderDoc.CreateTime, orderDoc.UpdateTime)

		if err := settlementGuard(orderID, order); err != nil {
			return err
		}

		holdMissing := false
		var hold domain.PaymentHold
		holdSnap, err := tx.Get(holdRef)
		switch status.Code(err) {
		case codes.NotFound:
			holdMissing = true
		case codes.OK:
			holdDoc, decodeErr := r.holds.Decode(ctx, holdSnap)
			if decodeErr != nil {
				return decodeErr
			}
			hold = decodeHoldDocument(holdDoc.ID, holdDoc.Data, holdDoc.CreateTime)
		default:
			return err
		}

		writeHold := false
		if !holdMissing {
			hold, writeHold, err = settleHold(orderID, hold, deliveredAt)
			if err != nil {
				return err
			}
		}

		orderUpdates := []firestore.Update{
			{Path: "deliveryStatus", Value: string(domain.DeliveryStatusDelivered)},
			{Path: "payoutStatus", Value: string(domain.PayoutStatusProcessing)},
			{Path: "deliveredDate", Value: deliveredAt},
			{Path: "updatedAt", Value: deliveredAt},
		}
		if err := tx.Update(orderRef, orderUpdates); err != nil {
			return err
		}

		if writeHold {
			if err := tx.Update(holdRef, []firestore.Update{
				{Path: "status", Value: string(domain.HoldStatusReleased)},
				{Path: "releasedAt", Value: deliveredAt},
			}); err != nil {
				return err
			}
		}

		order.DeliveryStatus = domain.DeliveryStatusDelivered
		order.PayoutStatus = domain.PayoutStatusProcessing
		order.DeliveredDate = &deliveredAt
		order.UpdatedAt = deliveredAt

		settlement = repositories.DeliverySettlement{
			Order:       order,
			Hold:        hold,
			HoldMissing: holdMissing,
		}
		return nil
	})
	if err != nil {
		return repositories.DeliverySettlement{}, err
	}
	return settlement, nil
}

// settlementGuard decides whether an order may enter payout. The delivery
// status is vetted by the service before the transaction; inside it, payout
// status is the idempotence guard, so a repeated or concurrent confirmation
// conflicts instead of double-releasing the hold.
func settlementGuard(orderID string, order domain.Order) error {
	if order.OrderStatus.IsTerminal() {
		return pfirestore.ConflictError("orders.confirm_delivery", fmt.Sprintf("order %s is %s", orderID, order.OrderStatus))
	}
	if order.PayoutStatus == domain.PayoutStatusProcessing || order.PayoutStatus == domain.PayoutStatusPaid {
		return pfirestore.ConflictError("orders.confirm_delivery", fmt.Sprintf("payout for order %s is already %s", orderID, order.PayoutStatus))
	}
	return nil
}

// settleHold resolves the hold's post-settlement state, reporting whether the
// document still needs the release write.
func settleHold(orderID string, hold domain.PaymentHold, releasedAt time.Time) (domain.PaymentHold, bool, error) {
	switch hold.Status {
	case domain.HoldStatusDisputed:
		return domain.PaymentHold{}, false, pfirestore.ConflictError("orders.confirm_delivery", fmt.Sprintf("hold for order %s is disputed", orderID))
	case domain.HoldStatusActive:
		hold.Status = domain.HoldStatusReleased
		hold.ReleasedAt = &releasedAt
		return hold, true, nil
	default:
		hold.Status = domain.HoldStatusReleased
		if hold.ReleasedAt == nil {
			hold.ReleasedAt = &releasedAt
		}
		return hold, false, nil
	}
}

func encodeOrderDocument(order domain.Order) orderDocument {
	listingIDs := make([]string, 0, len(order.ListingIDs))
	for _, id := range order.ListingIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			listingIDs = append(listingIDs, trimmed)
		}
	}
	return orderDocument{
		OrderNumber:    strings.TrimSpace(order.OrderNumber),
		BuyerID:        strings.TrimSpace(order.BuyerID),
		SellerID:       strings.TrimSpace(order.SellerID),
		ListingIDs:     listingIDs,
		AmountCents:    order.AmountCents,
		Currency:       strings.ToUpper(strings.TrimSpace(order.Currency)),
		OrderStatus:    string(order.OrderStatus),
		DeliveryStatus: string(order.DeliveryStatus),
		PayoutStatus:   string(order.PayoutStatus),
		TrackingNumber: strings.TrimSpace(order.TrackingNumber),
		DeliveredDate:  normalizeTimePointer(order.DeliveredDate),
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
}

func decodeOrderDocument(id string, doc orderDocument, createdAt, updatedAt time.Time) domain.Order {
	return domain.Order{
		ID:             strings.TrimSpace(id),
		OrderNumber:    strings.TrimSpace(doc.OrderNumber),
		BuyerID:        strings.TrimSpace(doc.BuyerID),
		SellerID:       strings.TrimSpace(doc.SellerID),
		ListingIDs:     doc.ListingIDs,
		AmountCents:    doc.AmountCents,
		Currency:       strings.ToUpper(strings.TrimSpace(doc.Currency)),
		OrderStatus:    domain.OrderStatus(strings.TrimSpace(doc.OrderStatus)),
		DeliveryStatus: domain.DeliveryStatus(strings.TrimSpace(doc.DeliveryStatus)),
		PayoutStatus:   domain.PayoutStatus(strings.TrimSpace(doc.PayoutStatus)),
		TrackingNumber: strings.TrimSpace(doc.TrackingNumber),
		DeliveredDate:  normalizeTimePointer(doc.DeliveredDate),
		CreatedAt:      chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:      chooseTime(doc.UpdatedAt, updatedAt),
	}
}
