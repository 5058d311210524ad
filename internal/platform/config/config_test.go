package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID": "vendora-test",
			"API_SERVER_PORT":         "9090",
			"API_TSARA_TIMEOUT":       "5s",
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port override, got %q", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "vendora-test" {
		t.Fatalf("expected firestore project to default to firebase project, got %q", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "vendora-test" {
		t.Fatalf("expected pubsub project to default to firebase project, got %q", cfg.PubSub.ProjectID)
	}
	if cfg.Tsara.Timeout != 5*time.Second {
		t.Fatalf("expected tsara timeout 5s, got %v", cfg.Tsara.Timeout)
	}
	if cfg.Checkout.EscrowHoldDays != 30 {
		t.Fatalf("expected default escrow hold days 30, got %d", cfg.Checkout.EscrowHoldDays)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Fatalf("expected default idempotency header, got %q", cfg.Idempotency.Header)
	}
}

func TestLoadRejectsMissingProject(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv())
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID": "vendora-test",
			"API_TSARA_API_KEY":       "sm://projects/p/secrets/tsara/versions/latest",
		}),
		WithSecretResolver(SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			if ref != "secret://projects/p/secrets/tsara/versions/latest" {
				t.Fatalf("unexpected secret ref %q", ref)
			}
			return "sk_live_resolved", nil
		})),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tsara.APIKey != "sk_live_resolved" {
		t.Fatalf("expected resolved secret, got %q", cfg.Tsara.APIKey)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID": "vendora-test",
			"API_TSARA_API_KEY":       "secret://broken",
		}),
		WithSecretResolver(SecretResolverFunc(func(context.Context, string) (string, error) {
			return "", errors.New("boom")
		})),
	)
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
}
