package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vendora/api/internal/domain"
	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/repositories"
)

const shippingRatesCollection = "shippingRates"

type shippingRateDocument struct {
	SellerID    string    `firestore:"sellerId"`
	AmountCents int64     `firestore:"amountCents"`
	Currency    string    `firestore:"currency"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

// ShippingRateRepository implements repositories.ShippingRateRepository on Firestore.
type ShippingRateRepository struct {
	base *pfirestore.BaseRepository[shippingRateDocument]
}

// NewShippingRateRepository constructs a Firestore-backed shipping rate repository.
func NewShippingRateRepository(provider *pfirestore.Provider) (*ShippingRateRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping rate repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[shippingRateDocument](provider, shippingRatesCollection, nil, nil)
	return &ShippingRateRepository{base: base}, nil
}

var _ repositories.ShippingRateRepository = (*ShippingRateRepository)(nil)

// LatestActiveBySeller returns the most recently created active rate for the
// seller. A not-found error means the seller ships free by policy.
func (r *ShippingRateRepository) LatestActiveBySeller(ctx context.Context, sellerID string) (domain.ShippingRate, error) {
	if r == nil || r.base == nil {
		return domain.ShippingRate{}, errors.New("shipping rate repository not initialised")
	}
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return domain.ShippingRate{}, errors.New("shipping rate repository: seller id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sellerId", "==", sellerID).
			Where("active", "==", true).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.ShippingRate{}, err
	}
	if len(docs) == 0 {
		return domain.ShippingRate{}, pfirestore.NotFoundError("shippingRates.latest_active", "no active shipping rate for seller "+sellerID)
	}

	doc := docs[0]
	return domain.ShippingRate{
		ID:          strings.TrimSpace(doc.ID),
		SellerID:    strings.TrimSpace(doc.Data.SellerID),
		AmountCents: doc.Data.AmountCents,
		Currency:    strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
		Active:      doc.Data.Active,
		CreatedAt:   chooseTime(doc.Data.CreatedAt, doc.CreateTime),
	}, nil
}
