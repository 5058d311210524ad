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

const cartsCollection = "carts"

type cartItemDocument struct {
	ID             string    `firestore:"id"`
	ListingID      string    `firestore:"listingId"`
	SellerID       string    `firestore:"sellerId"`
	Quantity       int       `firestore:"quantity"`
	UnitPriceCents int64     `firestore:"unitPriceCents"`
	Currency       string    `firestore:"currency"`
	AddedAt        time.Time `firestore:"addedAt"`
}

type cartDocument struct {
	BuyerID   string             `firestore:"buyerId"`
	Currency  string             `firestore:"currency"`
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// CartRepository implements repositories.CartRepository on Firestore.
// Cart documents are keyed by buyer ID.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// GetCart fetches the buyer's cart.
func (r *CartRepository) GetCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return domain.Cart{}, errors.New("cart repository: buyer id is required")
	}
	doc, err := r.base.Get(ctx, buyerID)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCartDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// ClearCart removes the buyer's cart after a successful checkout.
func (r *CartRepository) ClearCart(ctx context.Context, buyerID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return errors.New("cart repository: buyer id is required")
	}
	return r.base.Delete(ctx, buyerID)
}

func decodeCartDocument(id string, doc cartDocument, createdAt, updatedAt time.Time) domain.Cart {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem{
			ID:             strings.TrimSpace(item.ID),
			ListingID:      strings.TrimSpace(item.ListingID),
			SellerID:       strings.TrimSpace(item.SellerID),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			Currency:       strings.ToUpper(strings.TrimSpace(item.Currency)),
			AddedAt:        item.AddedAt.UTC(),
		})
	}

	buyerID := strings.TrimSpace(doc.BuyerID)
	if buyerID == "" {
		buyerID = strings.TrimSpace(id)
	}

	return domain.Cart{
		ID:        strings.TrimSpace(id),
		BuyerID:   buyerID,
		Currency:  strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Items:     items,
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt: chooseTime(doc.UpdatedAt, updatedAt),
	}
}
