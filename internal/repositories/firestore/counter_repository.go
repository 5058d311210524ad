package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/repositories"
)

const countersCollection = "counters"

// orderNumberFormat renders the public order number, e.g. VM-2026-000042.
const orderNumberFormat = "VM-%04d-%06d"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by
// Firestore transactions. Order numbers reset each calendar year via a
// per-year counter document.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil, nil)
	return &CounterRepository{provider: provider, counters: base}, nil
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NextOrderNumber atomically allocates the next order number for the year of now.
func (r *CounterRepository) NextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	if r == nil || r.provider == nil {
		return "", errors.New("counter repository not initialised")
	}

	year := now.UTC().Year()
	counterID := fmt.Sprintf("orders-%04d", year)
	updatedAt := now.UTC()

	var nextValue int64

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, counterID)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			doc := counterDocument{CurrentValue: 1, UpdatedAt: updatedAt}
			if err := tx.Create(ref, doc); err != nil {
				return err
			}
			nextValue = doc.CurrentValue
			return nil
		case codes.OK:
			// proceed
		default:
			return err
		}

		var doc counterDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore counters decode %s: %w", counterID, err)
		}

		doc.CurrentValue++
		doc.UpdatedAt = updatedAt
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		nextValue = doc.CurrentValue
		return nil
	})
	if err != nil {
		return "", pfirestore.WrapError("counters.next_order_number", err)
	}

	return fmt.Sprintf(orderNumberFormat, year, nextValue), nil
}
