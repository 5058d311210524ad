package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/vendora/api/internal/domain"
	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/repositories"
)

const listingsCollection = "listings"

type listingDocument struct {
	SellerID   string `firestore:"sellerId"`
	Title      string `firestore:"title"`
	ImageURL   string `firestore:"imageUrl"`
	PriceCents int64  `firestore:"priceCents"`
	Currency   string `firestore:"currency"`
	Active     bool   `firestore:"active"`
}

// ListingRepository implements repositories.ListingRepository on Firestore.
type ListingRepository struct {
	base *pfirestore.BaseRepository[listingDocument]
}

// NewListingRepository constructs a Firestore-backed listing repository.
func NewListingRepository(provider *pfirestore.Provider) (*ListingRepository, error) {
	if provider == nil {
		return nil, errors.New("listing repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[listingDocument](provider, listingsCollection, nil, nil)
	return &ListingRepository{base: base}, nil
}

var _ repositories.ListingRepository = (*ListingRepository)(nil)

// FindByID fetches a single listing snapshot.
func (r *ListingRepository) FindByID(ctx context.Context, listingID string) (domain.Listing, error) {
	if r == nil || r.base == nil {
		return domain.Listing{}, errors.New("listing repository not initialised")
	}
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return domain.Listing{}, errors.New("listing repository: listing id is required")
	}
	doc, err := r.base.Get(ctx, listingID)
	if err != nil {
		return domain.Listing{}, err
	}
	return decodeListingDocument(doc.ID, doc.Data), nil
}

// FindByIDs resolves the referenced listings. Listings that no longer exist
// are omitted from the result rather than failing the batch.
func (r *ListingRepository) FindByIDs(ctx context.Context, listingIDs []string) (map[string]domain.Listing, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("listing repository not initialised")
	}

	resolved := make(map[string]domain.Listing, len(listingIDs))
	for _, id := range listingIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := resolved[id]; ok {
			continue
		}
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		resolved[id] = decodeListingDocument(doc.ID, doc.Data)
	}
	return resolved, nil
}

func decodeListingDocument(id string, doc listingDocument) domain.Listing {
	return domain.Listing{
		ID:         strings.TrimSpace(id),
		SellerID:   strings.TrimSpace(doc.SellerID),
		Title:      strings.TrimSpace(doc.Title),
		ImageURL:   strings.TrimSpace(doc.ImageURL),
		PriceCents: doc.PriceCents,
		Currency:   strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Active:     doc.Active,
	}
}
