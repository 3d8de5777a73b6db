package marketplace

import (
	"math/big"
	"testing"
)

func TestListingCloneIsDeep(t *testing.T) {
	listing := &Listing{
		ID:         1,
		ArtifactID: 7,
		Seller:     newTestAddress(0x01),
		Price:      big.NewInt(100),
		Root:       newTestRoot(0xAB),
		CreatedAt:  1_700_000_000,
		Status:     ListingOpen,
	}
	clone := listing.Clone()
	clone.Price.SetInt64(999)
	clone.Status = ListingClosed
	if listing.Price.Int64() != 100 {
		t.Fatalf("clone shares price with original")
	}
	if listing.Status != ListingOpen {
		t.Fatalf("clone shares status with original")
	}

	var nilListing *Listing
	if nilListing.Clone() != nil {
		t.Fatalf("nil clone must stay nil")
	}
}

func TestSanitizeListing(t *testing.T) {
	base := &Listing{ID: 1, ArtifactID: 7, Status: ListingOpen}
	sanitized, err := SanitizeListing(base)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Price == nil || sanitized.Price.Sign() != 0 {
		t.Fatalf("expected zero price fill-in, got %v", sanitized.Price)
	}

	if _, err := SanitizeListing(nil); err == nil {
		t.Fatalf("expected error for nil listing")
	}
	if _, err := SanitizeListing(&Listing{Price: big.NewInt(-1), Status: ListingOpen}); err == nil {
		t.Fatalf("expected error for negative price")
	}
	if _, err := SanitizeListing(&Listing{Status: ListingStatus(9)}); err == nil {
		t.Fatalf("expected error for invalid status")
	}
}

func TestSanitizeOrder(t *testing.T) {
	base := &Order{
		ArtifactID: 7,
		ListingID:  1,
		Buyer:      newTestAddress(0x02),
		Challenge:  ChallengeMin,
		Amount:     big.NewInt(100),
		Status:     OrderOpen,
	}
	if _, err := SanitizeOrder(base); err != nil {
		t.Fatalf("sanitize: %v", err)
	}

	bad := base.Clone()
	bad.Challenge = ChallengeMin - 1
	if _, err := SanitizeOrder(bad); err == nil {
		t.Fatalf("expected error for out-of-range challenge")
	}
	bad = base.Clone()
	bad.Amount = big.NewInt(-5)
	if _, err := SanitizeOrder(bad); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	bad = base.Clone()
	bad.Status = OrderStatus(9)
	if _, err := SanitizeOrder(bad); err == nil {
		t.Fatalf("expected error for invalid status")
	}
	if _, err := SanitizeOrder(nil); err == nil {
		t.Fatalf("expected error for nil order")
	}
}

func TestStatusStrings(t *testing.T) {
	if ListingOpen.String() != "open" || ListingClosed.String() != "closed" {
		t.Fatalf("listing status strings wrong")
	}
	if OrderOpen.String() != "open" || OrderSettled.String() != "settled" || OrderRefunded.String() != "refunded" {
		t.Fatalf("order status strings wrong")
	}
	if ListingStatus(0).Valid() || OrderStatus(0).Valid() {
		t.Fatalf("zero statuses must be invalid")
	}
	if ListingStatus(0).String() != "unknown" || OrderStatus(0).String() != "unknown" {
		t.Fatalf("unknown status strings wrong")
	}
}

func TestChallengeInRange(t *testing.T) {
	cases := []struct {
		challenge uint64
		want      bool
	}{
		{0, false},
		{ChallengeMin - 1, false},
		{ChallengeMin, true},
		{5_000_000_000, true},
		{ChallengeMax, true},
		{ChallengeMax + 1, false},
	}
	for _, tc := range cases {
		if got := ChallengeInRange(tc.challenge); got != tc.want {
			t.Fatalf("ChallengeInRange(%d) = %v, want %v", tc.challenge, got, tc.want)
		}
	}
}
