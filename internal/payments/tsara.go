package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vendora/api/internal/platform/config"
)

const (
	fiatLinkPath       = "/v1/payment-links"
	stablecoinLinkPath = "/v1/stablecoin/payment-links"
	checkoutPath       = "/v1/checkout/sessions"
	verifyPathFormat   = "/v1/transactions/%s/verify"
	confirmPathFormat  = "/v1/transactions/%s/confirm"

	maxResponseBytes = 1 << 20
)

// TsaraClient is the HTTP implementation of Gateway.
type TsaraClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// TsaraOption customises the client.
type TsaraOption func(*TsaraClient)

// WithHTTPClient overrides the underlying HTTP client, primarily for tests.
func WithHTTPClient(c *http.Client) TsaraOption {
	return func(t *TsaraClient) {
		if c != nil {
			t.httpc = c
		}
	}
}

// NewTsaraClient constructs a gateway client from configuration.
func NewTsaraClient(cfg config.TsaraConfig, opts ...TsaraOption) (*TsaraClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("tsara: base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("tsara: api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := &TsaraClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

var _ Gateway = (*TsaraClient)(nil)

type linkPayload struct {
	Reference       string `json:"reference"`
	OrderID         string `json:"order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Description     string `json:"description,omitempty"`
	CustomerID      string `json:"customer_id,omitempty"`
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	ShippingAddress string `json:"shipping_address,omitempty"`
	RedirectURL     string `json:"redirect_url,omitempty"`
}

type sessionPayload struct {
	Reference       string `json:"reference"`
	OrderID         string `json:"order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	CustomerID      string `json:"customer_id,omitempty"`
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	ShippingAddress string `json:"shipping_address,omitempty"`
	SuccessURL      string `json:"success_url"`
	CancelURL       string `json:"cancel_url"`
}

// CreateFiatPaymentLink requests a hosted fiat payment link.
func (t *TsaraClient) CreateFiatPaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error) {
	return t.createLink(ctx, "create_fiat_link", fiatLinkPath, req)
}

// CreateStablecoinPaymentLink requests a hosted stablecoin payment link.
func (t *TsaraClient) CreateStablecoinPaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error) {
	return t.createLink(ctx, "create_stablecoin_link", stablecoinLinkPath, req)
}

func (t *TsaraClient) createLink(ctx context.Context, op, path string, req PaymentLinkRequest) (PaymentLink, error) {
	if err := validateLinkRequest(req); err != nil {
		return PaymentLink{}, &GatewayError{Kind: ErrorKindValidation, Op: op, Err: err}
	}

	payload := linkPayload{
		Reference:       req.PaymentID,
		OrderID:         req.OrderID,
		Amount:          req.AmountCents,
		Currency:        strings.ToUpper(req.Currency),
		Description:     req.Description,
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		RedirectURL:     req.RedirectURL,
	}

	raw, err := t.post(ctx, op, path, payload)
	if err != nil {
		return PaymentLink{}, err
	}

	url, _ := raw["url"].(string)
	reference, _ := raw["reference"].(string)
	if strings.TrimSpace(url) == "" {
		return PaymentLink{}, &GatewayError{Kind: ErrorKindUnknown, Op: op, Err: errors.New("response missing payment url")}
	}
	if reference == "" {
		reference = req.PaymentID
	}
	return PaymentLink{URL: url, Reference: reference, Raw: raw}, nil
}

// CreateCheckoutSession requests a redirect checkout session.
func (t *TsaraClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	const op = "create_checkout_session"
	if req.AmountCents <= 0 {
		return CheckoutSession{}, &GatewayError{Kind: ErrorKindValidation, Op: op, Err: errors.New("amount must be positive")}
	}
	if strings.TrimSpace(req.PaymentID) == "" {
		return CheckoutSession{}, &GatewayError{Kind: ErrorKindValidation, Op: op, Err: errors.New("payment id is required")}
	}
	if strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		return CheckoutSession{}, &GatewayError{Kind: ErrorKindValidation, Op: op, Err: errors.New("success and cancel urls are required")}
	}

	payload := sessionPayload{
		Reference:       req.PaymentID,
		OrderID:         req.OrderID,
		Amount:          req.AmountCents,
		Currency:        strings.ToUpper(req.Currency),
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
	}

	raw, err := t.post(ctx, op, checkoutPath, payload)
	if err != nil {
		return CheckoutSession{}, err
	}

	url, _ := raw["url"].(string)
	reference, _ := raw["reference"].(string)
	if strings.TrimSpace(url) == "" {
		return CheckoutSession{}, &GatewayError{Kind: ErrorKindUnknown, Op: op, Err: errors.New("response missing session url")}
	}
	if reference == "" {
		reference = req.PaymentID
	}
	return CheckoutSession{URL: url, Reference: reference, Raw: raw}, nil
}

// VerifyPayment fetches the gateway's current view of the transaction.
func (t *TsaraClient) VerifyPayment(ctx context.Context, reference string) (Verification, error) {
	const op = "verify_payment"
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Verification{}, &GatewayError{Kind: ErrorKindValidation, Op: op, Err: errors.New("transaction reference is required")}
	}

	raw, err := t.get(ctx, op, fmt.Sprintf(verifyPathFormat, reference))
	if err != nil {
		return Verification{}, err
	}

	verification := Verification{
		Reference: reference,
		Status:    statusFromRaw(raw),
		Raw:       raw,
	}
	if amount, ok := raw["amount"].(float64); ok {
		verification.AmountCents = int64(amount)
	}
	if currency, ok := raw["currency"].(string); ok {
		verification.Currency = strings.ToUpper(currency)
	}
	return verification, nil
}

// ConfirmPayment performs the gateway-side capture of the transaction.
func (t *TsaraClient) ConfirmPayment(ctx context.Context, reference string) (Confirmation, error) {
	const op = "confirm_payment"
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Confirmation{}, &GatewayError{Kind: ErrorKindValidation, Op: op, Err: errors.New("transaction reference is required")}
	}

	raw, err := t.post(ctx, op, fmt.Sprintf(confirmPathFormat, reference), struct{}{})
	if err != nil {
		return Confirmation{}, err
	}

	return Confirmation{
		Reference: reference,
		Status:    statusFromRaw(raw),
		Raw:       raw,
	}, nil
}

func validateLinkRequest(req PaymentLinkRequest) error {
	if strings.TrimSpace(req.PaymentID) == "" {
		return errors.New("payment id is required")
	}
	if req.AmountCents <= 0 {
		return errors.New("amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return errors.New("currency is required")
	}
	return nil
}

func statusFromRaw(raw map[string]any) TransactionStatus {
	status, _ := raw["status"].(string)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "succeeded", "completed":
		return TransactionStatusSuccess
	case "pending", "processing":
		return TransactionStatusPending
	default:
		return TransactionStatusFailed
	}
}

func (t *TsaraClient) post(ctx context.Context, op, path string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &GatewayError{Kind: ErrorKindValidation, Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}
	return t.do(ctx, op, http.MethodPost, path, bytes.NewReader(body))
}

func (t *TsaraClient) get(ctx context.Context, op, path string) (map[string]any, error) {
	return t.do(ctx, op, http.MethodGet, path, nil)
}

func (t *TsaraClient) do(ctx context.Context, op, method, path string, body io.Reader) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, &GatewayError{Kind: ErrorKindUnknown, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &GatewayError{Kind: ErrorKindConnectivity, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &GatewayError{Kind: ErrorKindConnectivity, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, classifyHTTPError(op, resp.StatusCode, data)
	}

	raw := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &GatewayError{Kind: ErrorKindUnknown, Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return raw, nil
}

func classifyHTTPError(op string, status int, body []byte) *GatewayError {
	message := gatewayMessage(body)
	err := fmt.Errorf("status %d: %s", status, message)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &GatewayError{Kind: ErrorKindAuth, Op: op, Err: err}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusNotFound:
		return &GatewayError{Kind: ErrorKindValidation, Op: op, Err: err}
	case status >= 500 || status == http.StatusTooManyRequests:
		return &GatewayError{Kind: ErrorKindConnectivity, Op: op, Err: err}
	default:
		return &GatewayError{Kind: ErrorKindUnknown, Op: op, Err: err}
	}
}

func gatewayMessage(body []byte) string {
	if len(body) == 0 {
		return "empty response"
	}
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}
