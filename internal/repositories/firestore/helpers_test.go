package firestore

import (
	"testing"
	"time"
)

func TestListTokenRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 7, 14, 8, 30, 0, 123456789, time.UTC)
	token := encodeListToken(createdAt, "ord_01ABC")

	ts, docID, err := decodeListToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ts.Equal(createdAt) {
		t.Fatalf("expected %s, got %s", createdAt, ts)
	}
	if docID != "ord_01ABC" {
		t.Fatalf("unexpected doc id %q", docID)
	}
}

func TestDecodeListTokenRejectsGarbage(t *testing.T) {
	if _, _, err := decodeListToken("not base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, _, err := decodeListToken("bm8tc2VwYXJhdG9y"); err == nil {
		t.Fatal("expected error for missing separator")
	}
}

func TestChooseTimePrefersPrimary(t *testing.T) {
	primary := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fallback := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := chooseTime(primary, fallback); !got.Equal(primary) {
		t.Fatalf("expected primary, got %s", got)
	}
	if got := chooseTime(time.Time{}, fallback); !got.Equal(fallback) {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := chooseTime(time.Time{}, time.Time{}); !got.IsZero() {
		t.Fatalf("expected zero time, got %s", got)
	}
}
