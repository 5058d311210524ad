package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vendora/api/internal/platform/auth"
	"github.com/vendora/api/internal/platform/httpx"
	"github.com/vendora/api/internal/services"
)

const maxOrderRequestBody = 8 * 1024

// OrderHandlers exposes the settlement surface: buyer order history and
// confirmation, seller fulfilment actions.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints. Buyer and seller actions carry
// separate role requirements.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	buyer := r
	seller := r
	if h.authn != nil {
		buyer = r.With(h.authn.RequireFirebaseAuth(auth.RoleBuyer))
		seller = r.With(h.authn.RequireFirebaseAuth(auth.RoleSeller))
	}

	buyer.Get("/", h.listBuyerOrders)
	buyer.Post("/{orderID}/delivery-confirmation", h.buyerConfirmDelivery)

	seller.Get("/{orderID}", h.getOrderDetails)
	seller.Post("/{orderID}/confirmation", h.sellerConfirmOrder)
	seller.Post("/{orderID}/delivery", h.sellerConfirmDelivery)
	seller.Patch("/{orderID}/status", h.updateOrderStatus)
	seller.Post("/{orderID}/messages", h.sendMessageToBuyer)
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type orderDetailsResponse struct {
	Order   orderPayload           `json:"order"`
	Payment *orderPaymentPayload   `json:"payment,omitempty"`
	Hold    *orderHoldPayload      `json:"hold,omitempty"`
}

type orderPaymentPayload struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Method         string `json:"method"`
	AmountCents    int64  `json:"amountCents"`
	Currency       string `json:"currency"`
	TransactionRef string `json:"transactionRef,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

type orderHoldPayload struct {
	Status       string `json:"status"`
	AmountCents  int64  `json:"amountCents"`
	Currency     string `json:"currency"`
	DurationDays int    `json:"durationDays"`
	CreatedAt    string `json:"createdAt,omitempty"`
	ReleasedAt   string `json:"releasedAt,omitempty"`
}

type updateOrderStatusRequest struct {
	DeliveryStatus string `json:"deliveryStatus"`
	TrackingNumber string `json:"trackingNumber"`
}

type sendMessageRequest struct {
	BuyerID string `json:"buyerId"`
	Message string `json:"message"`
}

func (h *OrderHandlers) listBuyerOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "order")
	if !ok {
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
		return
	}

	page, err := h.orders.ListBuyerOrders(ctx, services.ListBuyerOrdersCommand{
		BuyerID: identity.UID,
		Status:  strings.TrimSpace(r.URL.Query().Get("status")),
		Pager:   pager,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) buyerConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "order")
	if !ok {
		return
	}

	order, err := h.orders.BuyerConfirmDelivery(ctx, services.BuyerOrderCommand{
		BuyerID: identity.UID,
		OrderID: chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrderDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "order")
	if !ok {
		return
	}

	details, err := h.orders.GetOrderDetails(ctx, services.SellerOrderCommand{
		SellerID: identity.UID,
		OrderID:  chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	resp := orderDetailsResponse{Order: buildOrderPayload(details.Order)}
	if details.Payment != nil {
		resp.Payment = &orderPaymentPayload{
			ID:             details.Payment.ID,
			Status:         string(details.Payment.Status),
			Method:         string(details.Payment.Method),
			AmountCents:    details.Payment.AmountCents,
			Currency:       details.Payment.Currency,
			TransactionRef: details.Payment.TransactionRef,
			CreatedAt:      formatTime(details.Payment.CreatedAt),
		}
	}
	if details.Hold != nil {
		resp.Hold = &orderHoldPayload{
			Status:       string(details.Hold.Status),
			AmountCents:  details.Hold.AmountCents,
			Currency:     details.Hold.Currency,
			DurationDays: details.Hold.DurationDays,
			CreatedAt:    formatTime(details.Hold.CreatedAt),
			ReleasedAt:   formatTimePointer(details.Hold.ReleasedAt),
		}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) sellerConfirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "order")
	if !ok {
		return
	}

	order, err := h.orders.SellerConfirmOrder(ctx, services.SellerOrderCommand{
		SellerID: identity.UID,
		OrderID:  chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) sellerConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "order")
	if !ok {
		return
	}

	order, err := h.orders.SellerConfirmDelivery(ctx, services.SellerOrderCommand{
		SellerID: identity.UID,
		OrderID:  chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "order")
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if !decodeRequest(ctx, w, r, maxOrderRequestBody, &req) {
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		SellerID:       identity.UID,
		OrderID:        chi.URLParam(r, "orderID"),
		DeliveryStatus: strings.TrimSpace(req.DeliveryStatus),
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) sendMessageToBuyer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "order")
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeRequest(ctx, w, r, maxOrderRequestBody, &req) {
		return
	}

	err := h.orders.SendMessageToBuyer(ctx, services.SendMessageCommand{
		SellerID: identity.UID,
		OrderID:  chi.URLParam(r, "orderID"),
		BuyerID:  strings.TrimSpace(req.BuyerID),
		Message:  req.Message,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "sent"})
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrOrderPaymentNotVerified),
		errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound(err.Error()))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.PreconditionFailed(err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("failed to process order request"))
	}
}
