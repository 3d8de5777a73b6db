package marketplace_test

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"reflect"
	"strconv"
	"testing"

	"sessionmarket/core/types"
	marketpkg "sessionmarket/native/marketplace"
)

func TestListingEventsHaveDeterministicPayload(t *testing.T) {
	var seller [20]byte
	copy(seller[:], bytes.Repeat([]byte{0xBB}, 20))
	var root [32]byte
	copy(root[:], bytes.Repeat([]byte{0xAA}, 32))

	listing := &marketpkg.Listing{
		ID:         3,
		ArtifactID: 7,
		Seller:     seller,
		Price:      big.NewInt(42_000),
		Root:       root,
		CreatedAt:  1_700_000_123,
		Status:     marketpkg.ListingOpen,
	}
	expected := map[string]string{
		"listingId":  "3",
		"artifactId": "7",
		"seller":     hex.EncodeToString(seller[:]),
		"price":      listing.Price.String(),
		"root":       hex.EncodeToString(root[:]),
		"createdAt":  strconv.FormatInt(listing.CreatedAt, 10),
		"status":     "open",
	}
	cases := []struct {
		name string
		fn   func(*marketpkg.Listing) *types.Event
		typ  string
	}{
		{"created", marketpkg.NewListingCreatedEvent, marketpkg.EventTypeListingCreated},
		{"closed", marketpkg.NewListingClosedEvent, marketpkg.EventTypeListingClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt := tc.fn(listing)
			if evt.Type != tc.typ {
				t.Fatalf("expected type %s, got %s", tc.typ, evt.Type)
			}
			if !reflect.DeepEqual(evt.Attributes, expected) {
				t.Fatalf("unexpected attributes: %v", evt.Attributes)
			}
		})
	}
}

func TestOrderEventsHaveDeterministicPayload(t *testing.T) {
	var buyer [20]byte
	copy(buyer[:], bytes.Repeat([]byte{0xCC}, 20))

	order := &marketpkg.Order{
		ArtifactID: 7,
		ListingID:  3,
		Buyer:      buyer,
		Challenge:  4_242_424_242,
		Amount:     big.NewInt(42_000),
		OpenedAt:   1_700_000_456,
		Status:     marketpkg.OrderOpen,
	}
	expected := map[string]string{
		"artifactId": "7",
		"listingId":  "3",
		"buyer":      hex.EncodeToString(buyer[:]),
		"challenge":  "4242424242",
		"amount":     order.Amount.String(),
		"openedAt":   strconv.FormatInt(order.OpenedAt, 10),
		"status":     "open",
	}

	evt := marketpkg.NewPurchaseOpenedEvent(order)
	if evt.Type != marketpkg.EventTypePurchaseOpened {
		t.Fatalf("expected type %s, got %s", marketpkg.EventTypePurchaseOpened, evt.Type)
	}
	if !reflect.DeepEqual(evt.Attributes, expected) {
		t.Fatalf("unexpected attributes: %v", evt.Attributes)
	}

	refunded := order.Clone()
	refunded.Status = marketpkg.OrderRefunded
	evt = marketpkg.NewPurchaseRefundedEvent(refunded)
	if evt.Type != marketpkg.EventTypePurchaseRefunded {
		t.Fatalf("expected type %s, got %s", marketpkg.EventTypePurchaseRefunded, evt.Type)
	}
	if evt.Attributes["status"] != "refunded" {
		t.Fatalf("refund status attribute: %q", evt.Attributes["status"])
	}
}

func TestPurchaseSoldEventCarriesListingContext(t *testing.T) {
	var seller [20]byte
	copy(seller[:], bytes.Repeat([]byte{0xBB}, 20))
	var buyer [20]byte
	copy(buyer[:], bytes.Repeat([]byte{0xCC}, 20))
	var root [32]byte
	copy(root[:], bytes.Repeat([]byte{0xAA}, 32))

	listing := &marketpkg.Listing{
		ID:         3,
		ArtifactID: 7,
		Seller:     seller,
		Price:      big.NewInt(42_000),
		Root:       root,
		CreatedAt:  1_700_000_123,
		Status:     marketpkg.ListingClosed,
	}
	order := &marketpkg.Order{
		ArtifactID: 7,
		ListingID:  3,
		Buyer:      buyer,
		Challenge:  4_242_424_242,
		Amount:     big.NewInt(42_000),
		OpenedAt:   1_700_000_456,
		Status:     marketpkg.OrderSettled,
	}

	evt := marketpkg.NewPurchaseSoldEvent(listing, order)
	if evt.Type != marketpkg.EventTypePurchaseSold {
		t.Fatalf("expected type %s, got %s", marketpkg.EventTypePurchaseSold, evt.Type)
	}
	if evt.Attributes["seller"] != hex.EncodeToString(seller[:]) {
		t.Fatalf("seller attribute: %q", evt.Attributes["seller"])
	}
	if evt.Attributes["root"] != hex.EncodeToString(root[:]) {
		t.Fatalf("root attribute: %q", evt.Attributes["root"])
	}
	if evt.Attributes["status"] != "settled" {
		t.Fatalf("status attribute: %q", evt.Attributes["status"])
	}
}

func TestAdminEvents(t *testing.T) {
	previous := [20]byte{0x01}
	next := [20]byte{0x02}

	evt := marketpkg.NewOwnerTransferredEvent(previous, next)
	if evt.Type != marketpkg.EventTypeOwnerTransferred {
		t.Fatalf("expected type %s, got %s", marketpkg.EventTypeOwnerTransferred, evt.Type)
	}
	if evt.Attributes["previousOwner"] != hex.EncodeToString(previous[:]) {
		t.Fatalf("previousOwner attribute: %q", evt.Attributes["previousOwner"])
	}
	if evt.Attributes["newOwner"] != hex.EncodeToString(next[:]) {
		t.Fatalf("newOwner attribute: %q", evt.Attributes["newOwner"])
	}

	evt = marketpkg.NewVerifierUpdatedEvent(next)
	if evt.Type != marketpkg.EventTypeVerifierUpdated {
		t.Fatalf("expected type %s, got %s", marketpkg.EventTypeVerifierUpdated, evt.Type)
	}
	if evt.Attributes["verifier"] != hex.EncodeToString(next[:]) {
		t.Fatalf("verifier attribute: %q", evt.Attributes["verifier"])
	}

	evt = marketpkg.NewPausedEvent(true)
	if evt.Type != marketpkg.EventTypePauseToggled {
		t.Fatalf("expected type %s, got %s", marketpkg.EventTypePauseToggled, evt.Type)
	}
	if evt.Attributes["paused"] != "true" {
		t.Fatalf("paused attribute: %q", evt.Attributes["paused"])
	}
}
