package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	domain "github.com/vendora/api/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = 8 * 1024
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// parsePagination reads page_size and page_token query parameters. A
// malformed page_size is reported, out-of-range values are clamped.
func parsePagination(r *http.Request) (domain.Pagination, error) {
	query := r.URL.Query()
	pageSize := defaultPageSize
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Pagination{}, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
			pageSize = defaultPageSize
		case size > maxPageSize:
			pageSize = maxPageSize
		default:
			pageSize = size
		}
	}
	return domain.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

type orderPayload struct {
	ID             string   `json:"id"`
	OrderNumber    string   `json:"orderNumber"`
	BuyerID        string   `json:"buyerId"`
	SellerID       string   `json:"sellerId"`
	ListingIDs     []string `json:"listingIds,omitempty"`
	AmountCents    int64    `json:"amountCents"`
	Currency       string   `json:"currency"`
	OrderStatus    string   `json:"orderStatus"`
	DeliveryStatus string   `json:"deliveryStatus"`
	PayoutStatus   string   `json:"payoutStatus"`
	TrackingNumber string   `json:"trackingNumber,omitempty"`
	DeliveredDate  string   `json:"deliveredDate,omitempty"`
	CreatedAt      string   `json:"createdAt,omitempty"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	return orderPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		ListingIDs:     order.ListingIDs,
		AmountCents:    order.AmountCents,
		Currency:       order.Currency,
		OrderStatus:    string(order.OrderStatus),
		DeliveryStatus: string(order.DeliveryStatus),
		PayoutStatus:   string(order.PayoutStatus),
		TrackingNumber: order.TrackingNumber,
		DeliveredDate:  formatTimePointer(order.DeliveredDate),
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
}

type notificationPayload struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipientId"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	OrderID     string         `json:"orderId,omitempty"`
	IsRead      bool           `json:"isRead"`
	IsStarred   bool           `json:"isStarred"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   string         `json:"createdAt,omitempty"`
}

func buildNotificationPayload(n domain.Notification) notificationPayload {
	return notificationPayload{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        string(n.Type),
		Title:       n.Title,
		Body:        n.Body,
		OrderID:     n.OrderID,
		IsRead:      n.IsRead,
		IsStarred:   n.IsStarred,
		Metadata:    n.Metadata,
		CreatedAt:   formatTime(n.CreatedAt),
	}
}
