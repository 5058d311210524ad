// Package payments integrates the Tsara payment gateway. All amounts are
// integer minor units; raw gateway payloads are surfaced for audit logging
// only and never returned to API clients.
package payments

import (
	"context"
	"fmt"
)

// TransactionStatus is the gateway-reported state of a transaction.
type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// PaymentLinkRequest asks the gateway for a hosted payment link.
type PaymentLinkRequest struct {
	PaymentID       string
	OrderID         string
	AmountCents     int64
	Currency        string
	Description     string
	CustomerID      string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string
	RedirectURL     string
}

// PaymentLink is the gateway's hosted-payment handle.
type PaymentLink struct {
	URL       string
	Reference string
	Raw       map[string]any
}

// CheckoutSessionRequest asks the gateway for a redirect checkout session.
type CheckoutSessionRequest struct {
	PaymentID       string
	OrderID         string
	AmountCents     int64
	Currency        string
	CustomerID      string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string
	SuccessURL      string
	CancelURL       string
}

// CheckoutSession is the gateway's redirect session handle.
type CheckoutSession struct {
	URL       string
	Reference string
	Raw       map[string]any
}

// Verification is the gateway's view of a transaction at verify time.
type Verification struct {
	Reference   string
	Status      TransactionStatus
	AmountCents int64
	Currency    string
	Raw         map[string]any
}

// Confirmation is the result of the gateway-side capture step.
type Confirmation struct {
	Reference string
	Status    TransactionStatus
	Raw       map[string]any
}

// Gateway abstracts the Tsara payment API.
type Gateway interface {
	CreateFiatPaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error)
	CreateStablecoinPaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	VerifyPayment(ctx context.Context, reference string) (Verification, error)
	ConfirmPayment(ctx context.Context, reference string) (Confirmation, error)
}

// ErrorKind partitions gateway failures for callers that need to map them
// onto API errors without inspecting raw payloads.
type ErrorKind string

const (
	ErrorKindAuth         ErrorKind = "auth"
	ErrorKindConnectivity ErrorKind = "connectivity"
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindUnknown      ErrorKind = "unknown"
)

// GatewayError carries the classified failure alongside the wrapped cause.
type GatewayError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("tsara %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying error.
func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsAuth reports whether the failure was an authentication problem with the gateway.
func (e *GatewayError) IsAuth() bool { return e != nil && e.Kind == ErrorKindAuth }

// IsConnectivity reports whether the failure was transient transport trouble.
func (e *GatewayError) IsConnectivity() bool { return e != nil && e.Kind == ErrorKindConnectivity }

// IsValidation reports whether the gateway rejected the request payload.
func (e *GatewayError) IsValidation() bool { return e != nil && e.Kind == ErrorKindValidation }
