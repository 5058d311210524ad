package domain

import (
	"testing"
)

func TestQuoteCartTotals(t *testing.T) {
	cart := &Cart{
		BuyerID:  "buyer-1",
		Currency: "USD",
		Items: []CartItem{
			{ListingID: "lst-1", SellerID: "seller-a", Quantity: 2, UnitPriceCents: 1500},
			{ListingID: "lst-2", SellerID: "seller-a", Quantity: 1, UnitPriceCents: 4200},
		},
	}
	listings := map[string]*Listing{
		"lst-1": {ID: "lst-1", SellerID: "seller-a", Title: "Brass Compass", ImageURL: "https://img/1"},
		"lst-2": {ID: "lst-2", SellerID: "seller-a", Title: "Field Journal"},
	}

	quote := QuoteCart(cart, listings, func(sellerID string) int64 {
		if sellerID != "seller-a" {
			t.Fatalf("unexpected shipping lookup for %s", sellerID)
		}
		return 500
	})

	if quote.SubtotalCents != 7200 {
		t.Fatalf("expected subtotal 7200 got %d", quote.SubtotalCents)
	}
	if quote.ShippingCents != 500 {
		t.Fatalf("expected shipping 500 got %d", quote.ShippingCents)
	}
	if quote.TotalCents != 7700 {
		t.Fatalf("expected total 7700 got %d", quote.TotalCents)
	}
	if len(quote.SellerIDs) != 1 || quote.SellerIDs[0] != "seller-a" {
		t.Fatalf("expected single seller, got %v", quote.SellerIDs)
	}
	if quote.Lines[0].Title != "Brass Compass" {
		t.Fatalf("expected listing title on line, got %q", quote.Lines[0].Title)
	}
}

func TestQuoteCartUsesFrozenPrices(t *testing.T) {
	cart := &Cart{
		Currency: "USD",
		Items: []CartItem{
			{ListingID: "lst-1", SellerID: "seller-a", Quantity: 1, UnitPriceCents: 1000},
		},
	}
	// Live listing price moved since the item was added; totals must not.
	listings := map[string]*Listing{
		"lst-1": {ID: "lst-1", SellerID: "seller-a", PriceCents: 9999},
	}

	quote := QuoteCart(cart, listings, nil)
	if quote.TotalCents != 1000 {
		t.Fatalf("expected frozen price 1000 got %d", quote.TotalCents)
	}
}

func TestQuoteCartMissingListingKeepsLine(t *testing.T) {
	cart := &Cart{
		Currency: "USD",
		Items: []CartItem{
			{ListingID: "lst-gone", SellerID: "seller-b", Quantity: 3, UnitPriceCents: 250},
		},
	}

	quote := QuoteCart(cart, map[string]*Listing{}, nil)
	if len(quote.Lines) != 1 {
		t.Fatalf("expected line kept, got %d lines", len(quote.Lines))
	}
	if quote.Lines[0].Title != "" {
		t.Fatalf("expected empty title for missing listing")
	}
	if quote.SubtotalCents != 750 {
		t.Fatalf("expected subtotal 750 got %d", quote.SubtotalCents)
	}
}

func TestQuoteCartDeduplicatesSellers(t *testing.T) {
	cart := &Cart{
		Currency: "USD",
		Items: []CartItem{
			{ListingID: "lst-1", SellerID: "seller-b", Quantity: 1, UnitPriceCents: 100},
			{ListingID: "lst-2", SellerID: "seller-a", Quantity: 1, UnitPriceCents: 100},
			{ListingID: "lst-3", SellerID: "seller-b", Quantity: 1, UnitPriceCents: 100},
		},
	}

	calls := 0
	quote := QuoteCart(cart, nil, func(string) int64 {
		calls++
		return 300
	})

	if len(quote.SellerIDs) != 2 {
		t.Fatalf("expected 2 sellers, got %v", quote.SellerIDs)
	}
	if quote.SellerIDs[0] != "seller-a" || quote.SellerIDs[1] != "seller-b" {
		t.Fatalf("expected sorted sellers, got %v", quote.SellerIDs)
	}
	if calls != 2 {
		t.Fatalf("expected one shipping lookup per seller, got %d", calls)
	}
	if quote.ShippingCents != 600 {
		t.Fatalf("expected shipping 600 got %d", quote.ShippingCents)
	}
}
