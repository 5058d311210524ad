package domain

import "sort"

// CheckoutLine is the priced view of a cart item returned by checkout
// preparation and re-derived during payment initialisation.
type CheckoutLine struct {
	ListingID      string
	SellerID       string
	Title          string
	ImageURL       string
	Quantity       int
	UnitPriceCents int64
	LineTotalCents int64
}

// CheckoutQuote is the server-side priced summary of a cart. The same
// derivation runs in preparation and in payment initialisation so the two
// can never disagree.
type CheckoutQuote struct {
	Lines         []CheckoutLine
	SellerIDs     []string
	SubtotalCents int64
	ShippingCents int64
	TotalCents    int64
	Currency      string
}

// ShippingQuoter returns the flat shipping amount for a seller, 0 when the
// seller has no active rate.
type ShippingQuoter func(sellerID string) int64

// QuoteCart derives the checkout quote from frozen cart prices. Listing
// lookups enrich display fields only; a missing listing drops the line's
// title and image, never its price. Seller IDs come back sorted and
// deduplicated.
func QuoteCart(cart *Cart, listings map[string]*Listing, shipping ShippingQuoter) CheckoutQuote {
	quote := CheckoutQuote{Currency: cart.Currency}

	sellers := make(map[string]struct{}, len(cart.Items))
	for _, item := range cart.Items {
		line := CheckoutLine{
			ListingID:      item.ListingID,
			SellerID:       item.SellerID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.UnitPriceCents * int64(item.Quantity),
		}
		if listing := listings[item.ListingID]; listing != nil {
			line.Title = listing.Title
			line.ImageURL = listing.ImageURL
			if line.SellerID == "" {
				line.SellerID = listing.SellerID
			}
		}
		quote.Lines = append(quote.Lines, line)
		quote.SubtotalCents += line.LineTotalCents
		if line.SellerID != "" {
			sellers[line.SellerID] = struct{}{}
		}
	}

	quote.SellerIDs = make([]string, 0, len(sellers))
	for sellerID := range sellers {
		quote.SellerIDs = append(quote.SellerIDs, sellerID)
	}
	sort.Strings(quote.SellerIDs)

	if shipping != nil {
		for _, sellerID := range quote.SellerIDs {
			quote.ShippingCents += shipping(sellerID)
		}
	}

	quote.TotalCents = quote.SubtotalCents + quote.ShippingCents
	return quote
}
