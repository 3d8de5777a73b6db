package marketplace

import (
	"encoding/hex"
	"strconv"

	"sessionmarket/core/types"
)

const (
	EventTypeListingCreated    = "marketplace.listing.created"
	EventTypeListingClosed     = "marketplace.listing.closed"
	EventTypePurchaseOpened    = "marketplace.purchase.opened"
	EventTypePurchaseSold      = "marketplace.purchase.sold"
	EventTypePurchaseRefunded  = "marketplace.purchase.refunded"
	EventTypeOwnerTransferred  = "marketplace.owner.transferred"
	EventTypeVerifierUpdated   = "marketplace.verifier.updated"
	EventTypePauseToggled      = "marketplace.paused"
)

// NewListingCreatedEvent returns the canonical payload for a new listing.
func NewListingCreatedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingCreated, l)
}

// NewListingClosedEvent returns the canonical payload emitted when a listing
// is cancelled by its seller.
func NewListingClosedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingClosed, l)
}

// NewPurchaseOpenedEvent returns the canonical payload emitted when a buyer
// escrows funds against a listing.
func NewPurchaseOpenedEvent(o *Order) *types.Event {
	return newOrderEvent(EventTypePurchaseOpened, o)
}

// NewPurchaseSoldEvent returns the canonical payload emitted when a proof is
// accepted and escrow is released to the seller.
func NewPurchaseSoldEvent(l *Listing, o *Order) *types.Event {
	evt := newOrderEvent(EventTypePurchaseSold, o)
	if l != nil {
		evt.Attributes["seller"] = hex.EncodeToString(l.Seller[:])
		evt.Attributes["root"] = hex.EncodeToString(l.Root[:])
	}
	return evt
}

// NewPurchaseRefundedEvent returns the canonical payload emitted when escrow
// is returned to the buyer.
func NewPurchaseRefundedEvent(o *Order) *types.Event {
	return newOrderEvent(EventTypePurchaseRefunded, o)
}

// NewOwnerTransferredEvent returns the payload emitted when marketplace
// administration changes hands.
func NewOwnerTransferredEvent(previous, next [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeOwnerTransferred,
		Attributes: map[string]string{
			"previousOwner": hex.EncodeToString(previous[:]),
			"newOwner":      hex.EncodeToString(next[:]),
		},
	}
}

// NewVerifierUpdatedEvent returns the payload emitted when the attestor
// address changes.
func NewVerifierUpdatedEvent(addr [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeVerifierUpdated,
		Attributes: map[string]string{
			"verifier": hex.EncodeToString(addr[:]),
		},
	}
}

// NewPausedEvent returns the payload emitted when the pause flag toggles.
func NewPausedEvent(paused bool) *types.Event {
	return &types.Event{
		Type: EventTypePauseToggled,
		Attributes: map[string]string{
			"paused": strconv.FormatBool(paused),
		},
	}
}

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["listingId"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["artifactId"] = strconv.FormatUint(sanitized.ArtifactID, 10)
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["price"] = sanitized.Price.String()
	attrs["root"] = hex.EncodeToString(sanitized.Root[:])
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	attrs["status"] = sanitized.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newOrderEvent(eventType string, o *Order) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeOrder(o)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["artifactId"] = strconv.FormatUint(sanitized.ArtifactID, 10)
	attrs["listingId"] = strconv.FormatUint(sanitized.ListingID, 10)
	attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	attrs["challenge"] = strconv.FormatUint(sanitized.Challenge, 10)
	attrs["amount"] = sanitized.Amount.String()
	attrs["openedAt"] = strconv.FormatInt(sanitized.OpenedAt, 10)
	attrs["status"] = sanitized.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
