package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vendora/api/internal/platform/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*TsaraClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewTsaraClient(config.TsaraConfig{
		BaseURL: server.URL,
		APIKey:  "sk_test_123",
	}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client, server
}

func TestCreateCheckoutSession(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != checkoutPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["amount"].(float64) != 7700 {
			t.Fatalf("unexpected amount %v", payload["amount"])
		}
		if payload["currency"].(string) != "USD" {
			t.Fatalf("unexpected currency %v", payload["currency"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"url":       "https://pay.tsara.io/s/abc",
			"reference": "txn_abc",
			"status":    "pending",
		})
	})

	session, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		PaymentID:   "pay_1",
		OrderID:     "ord_1",
		AmountCents: 7700,
		Currency:    "usd",
		SuccessURL:  "https://vendora.io/checkout/success",
		CancelURL:   "https://vendora.io/checkout/cancel",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.URL != "https://pay.tsara.io/s/abc" {
		t.Fatalf("unexpected url %q", session.URL)
	}
	if session.Reference != "txn_abc" {
		t.Fatalf("unexpected reference %q", session.Reference)
	}
}

func TestCreateFiatLinkValidation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("server must not be reached for invalid requests")
	})

	_, err := client.CreateFiatPaymentLink(context.Background(), PaymentLinkRequest{
		PaymentID:   "pay_1",
		AmountCents: 0,
		Currency:    "USD",
	})

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || !gwErr.IsValidation() {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVerifyPaymentMapsStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transactions/txn_abc/verify" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "succeeded",
			"amount":   7700,
			"currency": "usd",
		})
	})

	verification, err := client.VerifyPayment(context.Background(), "txn_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verification.Status != TransactionStatusSuccess {
		t.Fatalf("expected success status, got %q", verification.Status)
	}
	if verification.AmountCents != 7700 {
		t.Fatalf("unexpected amount %d", verification.AmountCents)
	}
	if verification.Currency != "USD" {
		t.Fatalf("unexpected currency %q", verification.Currency)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, ErrorKindAuth},
		{"forbidden", http.StatusForbidden, ErrorKindAuth},
		{"bad request", http.StatusBadRequest, ErrorKindValidation},
		{"unprocessable", http.StatusUnprocessableEntity, ErrorKindValidation},
		{"server error", http.StatusInternalServerError, ErrorKindConnectivity},
		{"rate limited", http.StatusTooManyRequests, ErrorKindConnectivity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]any{"message": "nope"})
			})

			_, err := client.ConfirmPayment(context.Background(), "txn_x")
			var gwErr *GatewayError
			if !errors.As(err, &gwErr) {
				t.Fatalf("expected gateway error, got %v", err)
			}
			if gwErr.Kind != tc.want {
				t.Fatalf("expected kind %q, got %q", tc.want, gwErr.Kind)
			}
		})
	}
}

func TestConfirmPaymentFailedStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "declined"})
	})

	confirmation, err := client.ConfirmPayment(context.Background(), "txn_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmation.Status != TransactionStatusFailed {
		t.Fatalf("expected failed status, got %q", confirmation.Status)
	}
}

func TestMissingURLIsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"reference": "txn_abc"})
	})

	_, err := client.CreateStablecoinPaymentLink(context.Background(), PaymentLinkRequest{
		PaymentID:   "pay_1",
		AmountCents: 100,
		Currency:    "USD",
	})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != ErrorKindUnknown {
		t.Fatalf("expected unknown-kind error for missing url, got %v", err)
	}
}
