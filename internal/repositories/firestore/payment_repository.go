package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vendora/api/internal/domain"
	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/repositories"
)

const paymentsCollection = "payments"

type paymentDocument struct {
	OrderID         string         `firestore:"orderId"`
	BuyerID         string         `firestore:"buyerId"`
	AmountCents     int64          `firestore:"amountCents"`
	Currency        string         `firestore:"currency"`
	Method          string         `firestore:"method"`
	Status          string         `firestore:"status"`
	TransactionRef  string         `firestore:"transactionRef,omitempty"`
	GatewayResponse map[string]any `firestore:"gatewayResponse,omitempty"`
	CreatedAt       time.Time      `firestore:"createdAt"`
	UpdatedAt       time.Time      `firestore:"updatedAt"`
}

// PaymentRepository implements repositories.PaymentRepository on Firestore.
type PaymentRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository: firestore provider is required")
	}
	return &PaymentRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil, nil),
	}, nil
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// Insert stores a new payment attempt. The ID must be unique.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	_, err := r.base.Create(ctx, paymentID, encodePaymentDocument(payment))
	return err
}

// FindByID fetches a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}
	doc, err := r.base.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return decodePaymentDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindByOrder fetches the most recent payment attempt for an order.
func (r *PaymentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Payment{}, errors.New("payment repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NotFoundError("payments.find_by_order", "no payment for order "+orderID)
	}
	doc := docs[0]
	return decodePaymentDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// TransitionStatus moves the payment between statuses with a compare-and-set
// guard, so concurrent confirmations cannot double-apply a transition.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, paymentID string, from, to domain.PaymentStatus, update repositories.PaymentUpdate) (domain.Payment, error) {
	if r == nil || r.provider == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}

	var result domain.Payment

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, paymentID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}
		payment := decodePaymentDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)

		if payment.Status != from {
			return pfirestore.ConflictError("payments.transition", fmt.Sprintf("payment %s is %s, expected %s", paymentID, payment.Status, from))
		}

		now := time.Now().UTC()
		updates := []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: now},
		}
		if update.TransactionRef != nil {
			updates = append(updates, firestore.Update{Path: "transactionRef", Value: strings.TrimSpace(*update.TransactionRef)})
			payment.TransactionRef = strings.TrimSpace(*update.TransactionRef)
		}
		if len(update.GatewayResponse) > 0 {
			response := cloneMap(update.GatewayResponse)
			updates = append(updates, firestore.Update{Path: "gatewayResponse", Value: response})
			payment.GatewayResponse = response
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}

		payment.Status = to
		payment.UpdatedAt = now
		result = payment
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}
	return result, nil
}

func encodePaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:         strings.TrimSpace(payment.OrderID),
		BuyerID:         strings.TrimSpace(payment.BuyerID),
		AmountCents:     payment.AmountCents,
		Currency:        strings.ToUpper(strings.TrimSpace(payment.Currency)),
		Method:          string(payment.Method),
		Status:          string(payment.Status),
		TransactionRef:  strings.TrimSpace(payment.TransactionRef),
		GatewayResponse: cloneMap(payment.GatewayResponse),
		CreatedAt:       payment.CreatedAt.UTC(),
		UpdatedAt:       payment.UpdatedAt.UTC(),
	}
}

func decodePaymentDocument(id string, doc paymentDocument, createdAt, updatedAt time.Time) domain.Payment {
	return domain.Payment{
		ID:              strings.TrimSpace(id),
		OrderID:         strings.TrimSpace(doc.OrderID),
		BuyerID:         strings.TrimSpace(doc.BuyerID),
		AmountCents:     doc.AmountCents,
		Currency:        strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Method:          domain.PaymentMethod(strings.TrimSpace(doc.Method)),
		Status:          domain.PaymentStatus(strings.TrimSpace(doc.Status)),
		TransactionRef:  strings.TrimSpace(doc.TransactionRef),
		GatewayResponse: cloneMap(doc.GatewayResponse),
		CreatedAt:       chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:       chooseTime(doc.UpdatedAt, updatedAt),
	}
}
