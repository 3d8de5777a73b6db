package marketplace

import (
	"fmt"
	"math/big"
)

// ListingStatus represents the lifecycle states of a listing. A closed listing
// is terminal; relisting an artifact allocates a fresh listing id.
type ListingStatus uint8

const (
	ListingOpen ListingStatus = iota + 1
	ListingClosed
)

// Valid reports whether the status value is within the supported range.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingOpen, ListingClosed:
		return true
	default:
		return false
	}
}

func (s ListingStatus) String() string {
	switch s {
	case ListingOpen:
		return "open"
	case ListingClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OrderStatus represents the lifecycle states of a purchase order. Settled and
// Refunded are terminal; escrow moves at most once per order.
type OrderStatus uint8

const (
	OrderOpen OrderStatus = iota + 1
	OrderSettled
	OrderRefunded
)

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderOpen, OrderSettled, OrderRefunded:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderSettled:
		return "settled"
	case OrderRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Challenge nonces must carry enough entropy to make guessing infeasible and
// give the settlement proof a concrete value to bind to. The policy is a
// 10-digit decimal range.
const (
	ChallengeMin uint64 = 1_000_000_000
	ChallengeMax uint64 = 9_999_999_999
)

// ChallengeInRange reports whether the nonce falls inside the reserved range.
func ChallengeInRange(challenge uint64) bool {
	return challenge >= ChallengeMin && challenge <= ChallengeMax
}

// Listing captures a seller's offer to sell one artifact at a fixed price. The
// root commits to the artifact's off-chain content and is the value settlement
// proofs are checked against. Listings are never deleted; closed listings stay
// in the per-artifact history.
type Listing struct {
	ID         uint64
	ArtifactID uint64
	Seller     [20]byte
	Price      *big.Int
	Root       [32]byte
	CreatedAt  int64
	Status     ListingStatus
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with a non-nil price. The original value is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("marketplace: nil listing")
	}
	clone := l.Clone()
	if clone.Price.Sign() < 0 {
		return nil, fmt.Errorf("marketplace: listing price must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("marketplace: invalid listing status: %d", clone.Status)
	}
	return clone, nil
}

// Order captures a buyer's escrowed purchase attempt against a specific
// listing. Orders are keyed by (artifact, buyer); the listing id records which
// listing instance the escrow was opened against so settlements and refunds
// cannot cross listing generations.
type Order struct {
	ArtifactID uint64
	ListingID  uint64
	Buyer      [20]byte
	Challenge  uint64
	Amount     *big.Int
	OpenedAt   int64
	Status     OrderStatus
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Amount != nil {
		clone.Amount = new(big.Int).Set(o.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeOrder validates and normalises the supplied order, returning a
// cloned instance with a non-nil amount. The original value is not mutated.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("marketplace: nil order")
	}
	clone := o.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("marketplace: order amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("marketplace: invalid order status: %d", clone.Status)
	}
	if !ChallengeInRange(clone.Challenge) {
		return nil, fmt.Errorf("marketplace: order challenge outside allowed range")
	}
	return clone, nil
}
