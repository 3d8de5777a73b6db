package marketplace

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"sessionmarket/core/events"
	"sessionmarket/core/types"
	nativecommon "sessionmarket/native/common"
)

var (
	errNilState    = errors.New("marketplace engine: state not configured")
	errNilLedger   = errors.New("marketplace engine: payment ledger not configured")
	errNilRegistry = errors.New("marketplace engine: artifact registry not configured")
	errNilVerifier = errors.New("marketplace engine: proof verifier not configured")
)

// ModuleName is the pause-guard identifier for the marketplace.
const ModuleName = "marketplace"

// defaultPurchaseTimeout bounds how long an unmatched escrow stays locked
// before the buyer may reclaim it.
const defaultPurchaseTimeout int64 = 3600

type engineState interface {
	NextListingID() (uint64, error)
	ListingPut(*Listing) error
	ListingGet(id uint64) (*Listing, bool)
	ActiveListingGet(artifactID uint64) (uint64, bool)
	ActiveListingSet(artifactID, listingID uint64) error
	ActiveListingClear(artifactID uint64) error
	HistoryAppend(artifactID, listingID uint64) error
	HistoryCount(artifactID uint64) (uint64, error)
	HistoryEntry(artifactID uint64, index uint64) (uint64, bool)
	OrderPut(*Order) error
	OrderGet(artifactID uint64, buyer [20]byte) (*Order, bool)
	OrderCount(artifactID uint64) (uint64, error)
	OrderCountIncr(artifactID uint64) error
	MarketOwner() ([20]byte, bool)
	SetMarketOwner([20]byte) error
	VerifierAddress() ([20]byte, bool)
	SetVerifierAddress([20]byte) error
	SetModulePaused(module string, paused bool) error
}

// PaymentLedger is the engine's call surface to the fungible payment token.
// TransferFrom pulls pre-authorized funds from a buyer into marketplace
// custody; Transfer pays out of custody. The marketplace never mints, burns or
// holds balances beyond escrow in flight.
type PaymentLedger interface {
	TransferFrom(from [20]byte, amount *big.Int) error
	Transfer(to [20]byte, amount *big.Int) error
}

// ArtifactRegistry is the read-only ownership collaborator consulted when a
// listing is created.
type ArtifactRegistry interface {
	OwnerOf(artifactID uint64) ([20]byte, error)
	RootOf(artifactID uint64) ([32]byte, error)
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine orchestrates the listing lifecycle, multi-buyer escrow accounting,
// proof-gated settlement and timeout refunds. External collaborators (payment
// ledger, proof verifier, artifact registry) are injected so test doubles can
// be substituted without touching the transition logic.
type Engine struct {
	state           engineState
	ledger          PaymentLedger
	registry        ArtifactRegistry
	verifier        ProofVerifier
	emitter         events.Emitter
	pauses          nativecommon.PauseView
	purchaseTimeout int64
	nowFn           func() int64
}

// NewEngine creates a marketplace engine with a no-op emitter and the default
// purchase timeout. Collaborators are wired via the Set* methods.
func NewEngine() *Engine {
	return &Engine{
		emitter:         events.NoopEmitter{},
		purchaseTimeout: defaultPurchaseTimeout,
		nowFn:           func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the payment ledger adapter.
func (e *Engine) SetLedger(ledger PaymentLedger) { e.ledger = ledger }

// SetRegistry configures the artifact ownership collaborator.
func (e *Engine) SetRegistry(registry ArtifactRegistry) { e.registry = registry }

// SetVerifier configures the proof verifier adapter.
func (e *Engine) SetVerifier(verifier ProofVerifier) { e.verifier = verifier }

// SetPauses configures the pause view consulted before mutating operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetPurchaseTimeout overrides the refund timeout in seconds. Non-positive
// values reset the default.
func (e *Engine) SetPurchaseTimeout(seconds int64) {
	if seconds <= 0 {
		e.purchaseTimeout = defaultPurchaseTimeout
		return
	}
	e.purchaseTimeout = seconds
}

// PurchaseTimeout returns the configured refund timeout in seconds.
func (e *Engine) PurchaseTimeout() int64 { return e.purchaseTimeout }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) readyForWrite() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return fmt.Errorf("%w: %s", ErrState, err)
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CreateListing lists an artifact for sale at a fixed price. The caller must
// be the artifact's current owner and no open listing may exist for the
// artifact. The new listing becomes the artifact's active listing and is
// appended to its history.
func (e *Engine) CreateListing(caller [20]byte, artifactID uint64, price *big.Int) (*Listing, error) {
	if err := e.readyForWrite(); err != nil {
		return nil, err
	}
	if e.registry == nil {
		return nil, errNilRegistry
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	owner, err := e.registry.OwnerOf(artifactID)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact %d: %v", ErrNotFound, artifactID, err)
	}
	if owner != caller {
		return nil, fmt.Errorf("%w: caller does not own artifact %d", ErrUnauthorized, artifactID)
	}
	if _, ok := e.state.ActiveListingGet(artifactID); ok {
		return nil, fmt.Errorf("%w: active listing exists for artifact %d", ErrState, artifactID)
	}
	root, err := e.registry.RootOf(artifactID)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact %d root: %v", ErrNotFound, artifactID, err)
	}
	id, err := e.state.NextListingID()
	if err != nil {
		return nil, err
	}
	listing := &Listing{
		ID:         id,
		ArtifactID: artifactID,
		Seller:     caller,
		Price:      cloneBigInt(price),
		Root:       root,
		CreatedAt:  e.now(),
		Status:     ListingOpen,
	}
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	if err := e.state.ActiveListingSet(artifactID, id); err != nil {
		return nil, err
	}
	if err := e.state.HistoryAppend(artifactID, id); err != nil {
		return nil, err
	}
	e.emit(NewListingCreatedEvent(listing))
	return listing.Clone(), nil
}

// CloseListing cancels the artifact's active listing. Seller only. Open
// orders are untouched; their escrows become refundable once the listing is
// closed or the timeout elapses.
func (e *Engine) CloseListing(caller [20]byte, artifactID uint64) error {
	if err := e.readyForWrite(); err != nil {
		return err
	}
	listing, err := e.activeListing(artifactID)
	if err != nil {
		return err
	}
	if listing.Seller != caller {
		return fmt.Errorf("%w: only the seller may close listing %d", ErrUnauthorized, listing.ID)
	}
	if listing.Status != ListingOpen {
		return fmt.Errorf("%w: listing not open", ErrState)
	}
	listing.Status = ListingClosed
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := e.state.ActiveListingClear(artifactID); err != nil {
		return err
	}
	e.emit(NewListingClosedEvent(listing))
	return nil
}

// OpenPurchase escrows the listing price against the artifact's active
// listing. Multiple distinct buyers may hold open orders against the same
// listing; the seller alone chooses which one to honour at settlement. The
// escrow pull must succeed for the order to exist at all.
func (e *Engine) OpenPurchase(caller [20]byte, artifactID uint64, challenge uint64, amount *big.Int) (*Order, error) {
	if err := e.readyForWrite(); err != nil {
		return nil, err
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	listing, err := e.activeListing(artifactID)
	if err != nil {
		return nil, err
	}
	if listing.Seller == caller {
		return nil, fmt.Errorf("%w: seller cannot purchase own listing", ErrValidation)
	}
	if !ChallengeInRange(challenge) {
		return nil, fmt.Errorf("%w: challenge outside allowed range", ErrValidation)
	}
	if amount == nil || listing.Price.Cmp(amount) != 0 {
		return nil, fmt.Errorf("%w: amount mismatch", ErrValidation)
	}
	if existing, ok := e.state.OrderGet(artifactID, caller); ok {
		if existing.Status == OrderOpen {
			return nil, fmt.Errorf("%w: order already open for artifact %d", ErrState, artifactID)
		}
		// A concluded order blocks the slot only for the listing it was
		// opened against; a fresh listing frees it.
		if existing.ListingID == listing.ID {
			return nil, fmt.Errorf("%w: order already concluded for listing %d", ErrState, listing.ID)
		}
	}
	if err := e.ledger.TransferFrom(caller, amount); err != nil {
		return nil, err
	}
	order := &Order{
		ArtifactID: artifactID,
		ListingID:  listing.ID,
		Buyer:      caller,
		Challenge:  challenge,
		Amount:     cloneBigInt(amount),
		OpenedAt:   e.now(),
		Status:     OrderOpen,
	}
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	if err := e.state.OrderCountIncr(artifactID); err != nil {
		return nil, err
	}
	e.emit(NewPurchaseOpenedEvent(order))
	return order.Clone(), nil
}

// SettlePurchase releases one buyer's escrow to the seller upon presentation
// of a proof binding the listing root to that buyer's challenge. Success
// closes the listing; the proof failing or any precondition failing aborts
// the call with no state change. Other open orders are unaffected and must be
// refunded individually.
func (e *Engine) SettlePurchase(caller [20]byte, artifactID uint64, buyer [20]byte, challenge uint64, proof []byte) error {
	if err := e.readyForWrite(); err != nil {
		return err
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.verifier == nil {
		return errNilVerifier
	}
	listing, err := e.activeListing(artifactID)
	if err != nil {
		return err
	}
	if listing.Seller != caller {
		return fmt.Errorf("%w: only the seller may settle listing %d", ErrUnauthorized, listing.ID)
	}
	order, ok := e.state.OrderGet(artifactID, buyer)
	if !ok {
		return fmt.Errorf("%w: order for artifact %d", ErrNotFound, artifactID)
	}
	if order.Status != OrderOpen {
		return fmt.Errorf("%w: order not open", ErrState)
	}
	if order.ListingID != listing.ID {
		return fmt.Errorf("%w: order not bound to active listing", ErrState)
	}
	if order.Challenge != challenge {
		return fmt.Errorf("%w: challenge mismatch", ErrValidation)
	}
	attestor, ok := e.state.VerifierAddress()
	if !ok {
		return fmt.Errorf("%w: verifier not configured", ErrState)
	}
	if !e.verifier.Verify(proof, listing.Root, order.Challenge, attestor) {
		return ErrProofInvalid
	}
	if err := e.ledger.Transfer(listing.Seller, order.Amount); err != nil {
		return err
	}
	order.Status = OrderSettled
	if err := e.state.OrderPut(order); err != nil {
		return err
	}
	listing.Status = ListingClosed
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := e.state.ActiveListingClear(artifactID); err != nil {
		return err
	}
	e.emit(NewPurchaseSoldEvent(listing, order))
	return nil
}

// RefundPurchase returns the caller's escrow once the purchase timeout has
// elapsed or the order's listing has been closed without settling with this
// buyer. Refunding is terminal for the order.
func (e *Engine) RefundPurchase(caller [20]byte, artifactID uint64) error {
	if err := e.readyForWrite(); err != nil {
		return err
	}
	if e.ledger == nil {
		return errNilLedger
	}
	order, ok := e.state.OrderGet(artifactID, caller)
	if !ok {
		return fmt.Errorf("%w: order for artifact %d", ErrNotFound, artifactID)
	}
	if order.Status != OrderOpen {
		return fmt.Errorf("%w: order not open", ErrState)
	}
	listing, ok := e.state.ListingGet(order.ListingID)
	if !ok {
		return fmt.Errorf("%w: listing %d", ErrNotFound, order.ListingID)
	}
	timedOut := e.now() >= order.OpenedAt+e.purchaseTimeout
	if !timedOut && listing.Status != ListingClosed {
		return fmt.Errorf("%w: too early to refund", ErrState)
	}
	if err := e.ledger.Transfer(order.Buyer, order.Amount); err != nil {
		return err
	}
	order.Status = OrderRefunded
	if err := e.state.OrderPut(order); err != nil {
		return err
	}
	e.emit(NewPurchaseRefundedEvent(order))
	return nil
}

// TransferOwnership hands marketplace administration to a new owner address.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if newOwner == ([20]byte{}) {
		return fmt.Errorf("%w: zero owner address", ErrValidation)
	}
	if err := e.state.SetMarketOwner(newOwner); err != nil {
		return err
	}
	e.emit(NewOwnerTransferredEvent(caller, newOwner))
	return nil
}

// SetVerifierAddress points settlement verification at a new attestor
// address. Owner only.
func (e *Engine) SetVerifierAddress(caller, addr [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if addr == ([20]byte{}) {
		return fmt.Errorf("%w: zero verifier address", ErrValidation)
	}
	if err := e.state.SetVerifierAddress(addr); err != nil {
		return err
	}
	e.emit(NewVerifierUpdatedEvent(addr))
	return nil
}

// SetPaused toggles the marketplace pause flag. Owner only. Paused modules
// reject every mutating operation until resumed.
func (e *Engine) SetPaused(caller [20]byte, paused bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.state.SetModulePaused(ModuleName, paused); err != nil {
		return err
	}
	e.emit(NewPausedEvent(paused))
	return nil
}

func (e *Engine) requireOwner(caller [20]byte) error {
	owner, ok := e.state.MarketOwner()
	if !ok {
		return fmt.Errorf("%w: marketplace owner not configured", ErrState)
	}
	if owner != caller {
		return fmt.Errorf("%w: owner required", ErrUnauthorized)
	}
	return nil
}

func (e *Engine) activeListing(artifactID uint64) (*Listing, error) {
	listingID, ok := e.state.ActiveListingGet(artifactID)
	if !ok {
		return nil, fmt.Errorf("%w: no open listing for artifact %d", ErrState, artifactID)
	}
	listing, ok := e.state.ListingGet(listingID)
	if !ok {
		return nil, fmt.Errorf("%w: listing %d", ErrNotFound, listingID)
	}
	return listing, nil
}

// ActiveListing returns the artifact's current open listing.
func (e *Engine) ActiveListing(artifactID uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listingID, ok := e.state.ActiveListingGet(artifactID)
	if !ok {
		return nil, fmt.Errorf("%w: no open listing for artifact %d", ErrNotFound, artifactID)
	}
	listing, ok := e.state.ListingGet(listingID)
	if !ok {
		return nil, fmt.Errorf("%w: listing %d", ErrNotFound, listingID)
	}
	return listing.Clone(), nil
}

// ListingByID returns the listing stored under the given id, whether open or
// closed.
func (e *Engine) ListingByID(id uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok := e.state.ListingGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: listing %d", ErrNotFound, id)
	}
	return listing.Clone(), nil
}

// ListingHistoryCount returns how many listings were ever created for the
// artifact.
func (e *Engine) ListingHistoryCount(artifactID uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.HistoryCount(artifactID)
}

// ListingHistoryEntry returns the listing id at the given position of the
// artifact's append-only history.
func (e *Engine) ListingHistoryEntry(artifactID, index uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	id, ok := e.state.HistoryEntry(artifactID, index)
	if !ok {
		return 0, fmt.Errorf("%w: history entry %d for artifact %d", ErrNotFound, index, artifactID)
	}
	return id, nil
}

// OrderCount returns how many escrow orders were ever opened against the
// artifact.
func (e *Engine) OrderCount(artifactID uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.OrderCount(artifactID)
}

// OrderFor returns the order keyed by (artifact, buyer).
func (e *Engine) OrderFor(artifactID uint64, buyer [20]byte) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order, ok := e.state.OrderGet(artifactID, buyer)
	if !ok {
		return nil, fmt.Errorf("%w: order for artifact %d", ErrNotFound, artifactID)
	}
	return order.Clone(), nil
}

// Owner returns the configured marketplace owner, if any.
func (e *Engine) Owner() ([20]byte, bool) {
	if e == nil || e.state == nil {
		return [20]byte{}, false
	}
	return e.state.MarketOwner()
}

// Verifier returns the configured attestor address, if any.
func (e *Engine) Verifier() ([20]byte, bool) {
	if e == nil || e.state == nil {
		return [20]byte{}, false
	}
	return e.state.VerifierAddress()
}
