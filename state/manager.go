package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"sessionmarket/native/marketplace"
	"sessionmarket/storage"
)

// ErrArtifactNotFound is returned when an artifact id is absent from the
// registry.
var ErrArtifactNotFound = errors.New("state: artifact not found")

var (
	listingPrefix      = []byte("market/listing/")
	activePrefix       = []byte("market/active/")
	historyPrefix      = []byte("market/history/")
	orderPrefix        = []byte("market/order/")
	orderCountPrefix   = []byte("market/order-count/")
	artifactPrefix     = []byte("market/artifact/")
	accountPrefix      = []byte("token/account/")
	allowancePrefix    = []byte("token/allowance/")
	listingSeqKey      = []byte("market/listing-seq")
	paramsOwnerKey     = []byte("market/params/owner")
	paramsVerifierKey  = []byte("market/params/verifier")
	paramsPausedPrefix = []byte("market/params/paused/")
	paramsGenesisKey   = []byte("market/params/genesis")
)

// Manager reads and writes marketplace state over a key-value store. Keys are
// keccak256-hashed before hitting the store; values are RLP encoded. A
// Manager bound to a storage overlay gives each engine call its atomic
// commit.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func prefixedUint64Key(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return buf
}

func orderKey(artifactID uint64, buyer [20]byte) []byte {
	buf := make([]byte, len(orderPrefix)+8+len(buyer))
	copy(buf, orderPrefix)
	binary.BigEndian.PutUint64(buf[len(orderPrefix):], artifactID)
	copy(buf[len(orderPrefix)+8:], buyer[:])
	return buf
}

func pausedKey(module string) []byte {
	buf := make([]byte, len(paramsPausedPrefix)+len(module))
	copy(buf, paramsPausedPrefix)
	copy(buf[len(paramsPausedPrefix):], module)
	return buf
}

func (m *Manager) get(key []byte) []byte {
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		return nil
	}
	return data
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

func (m *Manager) delete(key []byte) error {
	return m.db.Delete(kvKey(key))
}

// --- Listings ---

// storedListing mirrors marketplace.Listing with RLP-friendly field types;
// signed timestamps travel as big.Int.
type storedListing struct {
	ID         uint64
	ArtifactID uint64
	Seller     [20]byte
	Price      *big.Int
	Root       [32]byte
	CreatedAt  *big.Int
	Status     uint8
}

func newStoredListing(l *marketplace.Listing) *storedListing {
	price := big.NewInt(0)
	if l.Price != nil {
		price = new(big.Int).Set(l.Price)
	}
	return &storedListing{
		ID:         l.ID,
		ArtifactID: l.ArtifactID,
		Seller:     l.Seller,
		Price:      price,
		Root:       l.Root,
		CreatedAt:  big.NewInt(l.CreatedAt),
		Status:     uint8(l.Status),
	}
}

func (s *storedListing) toListing() (*marketplace.Listing, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil listing record")
	}
	out := &marketplace.Listing{
		ID:         s.ID,
		ArtifactID: s.ArtifactID,
		Seller:     s.Seller,
		Price:      big.NewInt(0),
		Root:       s.Root,
		Status:     marketplace.ListingStatus(s.Status),
	}
	if s.Price != nil {
		out.Price = new(big.Int).Set(s.Price)
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("state: invalid listing status %d", s.Status)
	}
	return out, nil
}

// NextListingID allocates the next value of the global monotonically
// increasing listing sequence. The first listing gets id 1.
func (m *Manager) NextListingID() (uint64, error) {
	var current uint64
	if data := m.get(listingSeqKey); len(data) > 0 {
		if err := rlp.DecodeBytes(data, &current); err != nil {
			return 0, err
		}
	}
	next := current + 1
	if err := m.put(listingSeqKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

// ListingPut persists the listing under its id.
func (m *Manager) ListingPut(l *marketplace.Listing) error {
	sanitized, err := marketplace.SanitizeListing(l)
	if err != nil {
		return err
	}
	return m.put(prefixedUint64Key(listingPrefix, sanitized.ID), newStoredListing(sanitized))
}

// ListingGet loads the listing stored under the given id.
func (m *Manager) ListingGet(id uint64) (*marketplace.Listing, bool) {
	data := m.get(prefixedUint64Key(listingPrefix, id))
	if len(data) == 0 {
		return nil, false
	}
	stored := new(storedListing)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	listing, err := stored.toListing()
	if err != nil {
		return nil, false
	}
	return listing, true
}

// ActiveListingGet returns the artifact's current open listing id, if any.
func (m *Manager) ActiveListingGet(artifactID uint64) (uint64, bool) {
	data := m.get(prefixedUint64Key(activePrefix, artifactID))
	if len(data) == 0 {
		return 0, false
	}
	var id uint64
	if err := rlp.DecodeBytes(data, &id); err != nil {
		return 0, false
	}
	if id == 0 {
		return 0, false
	}
	return id, true
}

// ActiveListingSet points the artifact at its open listing.
func (m *Manager) ActiveListingSet(artifactID, listingID uint64) error {
	if listingID == 0 {
		return fmt.Errorf("state: zero listing id")
	}
	return m.put(prefixedUint64Key(activePrefix, artifactID), listingID)
}

// ActiveListingClear removes the artifact's active-listing pointer.
func (m *Manager) ActiveListingClear(artifactID uint64) error {
	return m.delete(prefixedUint64Key(activePrefix, artifactID))
}

// HistoryAppend records the listing id in the artifact's append-only listing
// history.
func (m *Manager) HistoryAppend(artifactID, listingID uint64) error {
	key := prefixedUint64Key(historyPrefix, artifactID)
	var list []uint64
	if data := m.get(key); len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	list = append(list, listingID)
	return m.put(key, list)
}

// HistoryCount returns how many listings were ever created for the artifact.
func (m *Manager) HistoryCount(artifactID uint64) (uint64, error) {
	data := m.get(prefixedUint64Key(historyPrefix, artifactID))
	if len(data) == 0 {
		return 0, nil
	}
	var list []uint64
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return 0, err
	}
	return uint64(len(list)), nil
}

// HistoryEntry returns the listing id at the given index of the artifact's
// history.
func (m *Manager) HistoryEntry(artifactID, index uint64) (uint64, bool) {
	data := m.get(prefixedUint64Key(historyPrefix, artifactID))
	if len(data) == 0 {
		return 0, false
	}
	var list []uint64
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return 0, false
	}
	if index >= uint64(len(list)) {
		return 0, false
	}
	return list[index], true
}

// --- Orders ---

type storedOrder struct {
	ArtifactID uint64
	ListingID  uint64
	Buyer      [20]byte
	Challenge  uint64
	Amount     *big.Int
	OpenedAt   *big.Int
	Status     uint8
}

func newStoredOrder(o *marketplace.Order) *storedOrder {
	amount := big.NewInt(0)
	if o.Amount != nil {
		amount = new(big.Int).Set(o.Amount)
	}
	return &storedOrder{
		ArtifactID: o.ArtifactID,
		ListingID:  o.ListingID,
		Buyer:      o.Buyer,
		Challenge:  o.Challenge,
		Amount:     amount,
		OpenedAt:   big.NewInt(o.OpenedAt),
		Status:     uint8(o.Status),
	}
}

func (s *storedOrder) toOrder() (*marketplace.Order, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil order record")
	}
	out := &marketplace.Order{
		ArtifactID: s.ArtifactID,
		ListingID:  s.ListingID,
		Buyer:      s.Buyer,
		Challenge:  s.Challenge,
		Amount:     big.NewInt(0),
		Status:     marketplace.OrderStatus(s.Status),
	}
	if s.Amount != nil {
		out.Amount = new(big.Int).Set(s.Amount)
	}
	if s.OpenedAt != nil {
		out.OpenedAt = s.OpenedAt.Int64()
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("state: invalid order status %d", s.Status)
	}
	return out, nil
}

// OrderPut persists the order under its (artifact, buyer) key.
func (m *Manager) OrderPut(o *marketplace.Order) error {
	sanitized, err := marketplace.SanitizeOrder(o)
	if err != nil {
		return err
	}
	return m.put(orderKey(sanitized.ArtifactID, sanitized.Buyer), newStoredOrder(sanitized))
}

// OrderGet loads the order keyed by (artifact, buyer).
func (m *Manager) OrderGet(artifactID uint64, buyer [20]byte) (*marketplace.Order, bool) {
	data := m.get(orderKey(artifactID, buyer))
	if len(data) == 0 {
		return nil, false
	}
	stored := new(storedOrder)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	order, err := stored.toOrder()
	if err != nil {
		return nil, false
	}
	return order, true
}

// OrderCount returns how many escrow orders were ever opened against the
// artifact.
func (m *Manager) OrderCount(artifactID uint64) (uint64, error) {
	data := m.get(prefixedUint64Key(orderCountPrefix, artifactID))
	if len(data) == 0 {
		return 0, nil
	}
	var count uint64
	if err := rlp.DecodeBytes(data, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// OrderCountIncr advances the artifact's order counter by one.
func (m *Manager) OrderCountIncr(artifactID uint64) error {
	count, err := m.OrderCount(artifactID)
	if err != nil {
		return err
	}
	return m.put(prefixedUint64Key(orderCountPrefix, artifactID), count+1)
}

// --- Params ---

// MarketOwner returns the configured marketplace owner, if any.
func (m *Manager) MarketOwner() ([20]byte, bool) {
	return m.addressParam(paramsOwnerKey)
}

// SetMarketOwner stores the marketplace owner address.
func (m *Manager) SetMarketOwner(addr [20]byte) error {
	return m.setAddressParam(paramsOwnerKey, addr)
}

// VerifierAddress returns the configured attestor address, if any.
func (m *Manager) VerifierAddress() ([20]byte, bool) {
	return m.addressParam(paramsVerifierKey)
}

// SetVerifierAddress stores the attestor address settlement proofs are
// checked against.
func (m *Manager) SetVerifierAddress(addr [20]byte) error {
	return m.setAddressParam(paramsVerifierKey, addr)
}

func (m *Manager) addressParam(key []byte) ([20]byte, bool) {
	data := m.get(key)
	if len(data) == 0 {
		return [20]byte{}, false
	}
	var addr [20]byte
	if err := rlp.DecodeBytes(data, &addr); err != nil {
		return [20]byte{}, false
	}
	if addr == ([20]byte{}) {
		return [20]byte{}, false
	}
	return addr, true
}

func (m *Manager) setAddressParam(key []byte, addr [20]byte) error {
	if addr == ([20]byte{}) {
		return fmt.Errorf("state: zero address param")
	}
	return m.put(key, addr)
}

// IsPaused implements the pause view consulted before mutating operations.
func (m *Manager) IsPaused(module string) bool {
	data := m.get(pausedKey(module))
	if len(data) == 0 {
		return false
	}
	var paused bool
	if err := rlp.DecodeBytes(data, &paused); err != nil {
		return false
	}
	return paused
}

// SetModulePaused toggles the pause flag for a module.
func (m *Manager) SetModulePaused(module string, paused bool) error {
	if module == "" {
		return fmt.Errorf("state: empty module name")
	}
	return m.put(pausedKey(module), paused)
}

// GenesisDone reports whether the one-time bootstrap allocation has already
// run against this store.
func (m *Manager) GenesisDone() bool {
	data := m.get(paramsGenesisKey)
	if len(data) == 0 {
		return false
	}
	var done bool
	if err := rlp.DecodeBytes(data, &done); err != nil {
		return false
	}
	return done
}

// SetGenesisDone marks the bootstrap allocation as applied.
func (m *Manager) SetGenesisDone() error {
	return m.put(paramsGenesisKey, true)
}

// --- Artifact registry ---

type storedArtifact struct {
	Owner [20]byte
	Root  [32]byte
}

// ArtifactPut records the owner and content root for an artifact id. This is
// the write surface of the ownership collaborator the engine consults at
// listing time.
func (m *Manager) ArtifactPut(artifactID uint64, owner [20]byte, root [32]byte) error {
	if owner == ([20]byte{}) {
		return fmt.Errorf("state: zero artifact owner")
	}
	return m.put(prefixedUint64Key(artifactPrefix, artifactID), &storedArtifact{Owner: owner, Root: root})
}

func (m *Manager) artifactGet(artifactID uint64) (*storedArtifact, error) {
	data := m.get(prefixedUint64Key(artifactPrefix, artifactID))
	if len(data) == 0 {
		return nil, ErrArtifactNotFound
	}
	stored := new(storedArtifact)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// OwnerOf returns the artifact's current owner.
func (m *Manager) OwnerOf(artifactID uint64) ([20]byte, error) {
	artifact, err := m.artifactGet(artifactID)
	if err != nil {
		return [20]byte{}, err
	}
	return artifact.Owner, nil
}

// RootOf returns the commitment to the artifact's off-chain content.
func (m *Manager) RootOf(artifactID uint64) ([32]byte, error) {
	artifact, err := m.artifactGet(artifactID)
	if err != nil {
		return [32]byte{}, err
	}
	return artifact.Root, nil
}
