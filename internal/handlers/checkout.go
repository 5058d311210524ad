package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vendora/api/internal/platform/auth"
	"github.com/vendora/api/internal/platform/httpx"
	"github.com/vendora/api/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes the checkout flow for authenticated buyers.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth(auth.RoleBuyer))
	}
	group.Get("/quote", h.prepareCheckout)
	group.Post("/payment", h.initializePayment)
	group.Post("/confirm", h.confirmCheckout)
}

type checkoutLinePayload struct {
	ListingID      string `json:"listingId"`
	SellerID       string `json:"sellerId"`
	Title          string `json:"title,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

type checkoutQuoteResponse struct {
	Lines         []checkoutLinePayload `json:"lines"`
	SellerIDs     []string              `json:"sellerIds"`
	SubtotalCents int64                 `json:"subtotalCents"`
	ShippingCents int64                 `json:"shippingCents"`
	TotalCents    int64                 `json:"totalCents"`
	Currency      string                `json:"currency"`
}

type initializePaymentRequest struct {
	CustomerName    string `json:"customerName"`
	CustomerEmail   string `json:"customerEmail"`
	CustomerPhone   string `json:"customerPhone"`
	ShippingAddress string `json:"shippingAddress"`
	PaymentMethod   string `json:"paymentMethod"`
	Currency        string `json:"currency"`
	RedirectURL     string `json:"redirectUrl"`
	SuccessURL      string `json:"successUrl"`
	CancelURL       string `json:"cancelUrl"`
}

type initializePaymentResponse struct {
	PaymentID      string `json:"paymentId"`
	OrderID        string `json:"orderId"`
	PaymentURL     string `json:"paymentUrl"`
	TotalCents     int64  `json:"totalCents"`
	Currency       string `json:"currency"`
	TransactionRef string `json:"transactionRef,omitempty"`
}

type confirmCheckoutRequest struct {
	PaymentID      string `json:"paymentId"`
	TransactionRef string `json:"transactionRef"`
}

type confirmCheckoutResponse struct {
	OrderID    string `json:"orderId"`
	TotalCents int64  `json:"totalCents"`
	Currency   string `json:"currency"`
	// PaymentURL is always empty after confirmation; the field stays on the
	// wire because clients parse a fixed shape.
	PaymentURL            string `json:"paymentUrl"`
	PaymentID             string `json:"paymentId"`
	EstimatedDeliveryDays int    `json:"estimatedDeliveryDays"`
}

func (h *CheckoutHandlers) prepareCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.checkout != nil, "checkout")
	if !ok {
		return
	}

	quote, err := h.checkout.PrepareCheckout(ctx, services.PrepareCheckoutCommand{
		BuyerID: identity.UID,
		CartID:  strings.TrimSpace(r.URL.Query().Get("cart_id")),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildQuoteResponse(quote))
}

func (h *CheckoutHandlers) initializePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.checkout != nil, "checkout")
	if !ok {
		return
	}

	var req initializePaymentRequest
	if !decodeRequest(ctx, w, r, maxCheckoutRequestBody, &req) {
		return
	}

	result, err := h.checkout.InitializePayment(ctx, services.InitializePaymentCommand{
		BuyerID:         identity.UID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		Method:          strings.TrimSpace(req.PaymentMethod),
		Currency:        strings.TrimSpace(req.Currency),
		RedirectURL:     strings.TrimSpace(req.RedirectURL),
		SuccessURL:      strings.TrimSpace(req.SuccessURL),
		CancelURL:       strings.TrimSpace(req.CancelURL),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, initializePaymentResponse{
		PaymentID:      result.PaymentID,
		OrderID:        result.OrderID,
		PaymentURL:     result.PaymentURL,
		TotalCents:     result.TotalCents,
		Currency:       result.Currency,
		TransactionRef: result.TransactionRef,
	})
}

func (h *CheckoutHandlers) confirmCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.checkout != nil, "checkout")
	if !ok {
		return
	}

	var req confirmCheckoutRequest
	if !decodeRequest(ctx, w, r, maxCheckoutRequestBody, &req) {
		return
	}

	result, err := h.checkout.ConfirmCheckout(ctx, services.ConfirmCheckoutCommand{
		BuyerID:        identity.UID,
		PaymentID:      strings.TrimSpace(req.PaymentID),
		TransactionRef: strings.TrimSpace(req.TransactionRef),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, confirmCheckoutResponse{
		OrderID:               result.OrderID,
		TotalCents:            result.TotalCents,
		Currency:              result.Currency,
		PaymentID:             result.PaymentID,
		EstimatedDeliveryDays: result.EstimatedDeliveryDays,
	})
}

func buildQuoteResponse(quote services.CheckoutQuote) checkoutQuoteResponse {
	lines := make([]checkoutLinePayload, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		lines = append(lines, checkoutLinePayload{
			ListingID:      line.ListingID,
			SellerID:       line.SellerID,
			Title:          line.Title,
			ImageURL:       line.ImageURL,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: line.LineTotalCents,
		})
	}
	return checkoutQuoteResponse{
		Lines:         lines,
		SellerIDs:     quote.SellerIDs,
		SubtotalCents: quote.SubtotalCents,
		ShippingCents: quote.ShippingCents,
		TotalCents:    quote.TotalCents,
		Currency:      quote.Currency,
	}
}

// requireIdentity resolves the authenticated principal, writing the
// appropriate error envelope when the service is down or auth is missing.
func requireIdentity(ctx context.Context, w http.ResponseWriter, serviceReady bool, name string) (*auth.Identity, bool) {
	if !serviceReady {
		httpx.WriteError(ctx, w, httpx.Internal(name+" service unavailable"))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.Unauthorized("authentication required"))
		return nil, false
	}
	return identity, true
}

// decodeRequest reads and unmarshals a JSON body, writing the error envelope
// on failure. A missing body decodes into the zero request.
func decodeRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		if errors.Is(err, errEmptyBody) {
			return true
		}
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeBadRequest, err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("request body must be valid JSON"))
		return false
	}
	return true
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrCheckoutCartEmpty),
		errors.Is(err, services.ErrCheckoutMultiSeller):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	case errors.Is(err, services.ErrCheckoutCartNotFound),
		errors.Is(err, services.ErrCheckoutPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound(err.Error()))
	case errors.Is(err, services.ErrCheckoutPaymentNotVerified),
		errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.PreconditionFailed(err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("failed to process checkout request"))
	}
}
