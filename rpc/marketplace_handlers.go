package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"sessionmarket/core/types"
	"sessionmarket/native/marketplace"
	"sessionmarket/state"
)

type createListingParams struct {
	Caller     string `json:"caller"`
	ArtifactID uint64 `json:"artifactId"`
	Price      string `json:"price"`
}

type closeListingParams struct {
	Caller     string `json:"caller"`
	ArtifactID uint64 `json:"artifactId"`
}

type openPurchaseParams struct {
	Caller     string `json:"caller"`
	ArtifactID uint64 `json:"artifactId"`
	Challenge  uint64 `json:"challenge"`
	Amount     string `json:"amount"`
}

type settlePurchaseParams struct {
	Caller     string `json:"caller"`
	ArtifactID uint64 `json:"artifactId"`
	Buyer      string `json:"buyer"`
	Challenge  uint64 `json:"challenge"`
	Proof      string `json:"proof"`
}

type refundPurchaseParams struct {
	Caller     string `json:"caller"`
	ArtifactID uint64 `json:"artifactId"`
}

type listingIDParams struct {
	ListingID uint64 `json:"listingId"`
}

type artifactParams struct {
	ArtifactID uint64 `json:"artifactId"`
}

type listingHistoryParams struct {
	ArtifactID uint64  `json:"artifactId"`
	Index      *uint64 `json:"index,omitempty"`
}

type orderQueryParams struct {
	ArtifactID uint64 `json:"artifactId"`
	Buyer      string `json:"buyer"`
}

type transferOwnershipParams struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type setVerifierParams struct {
	Caller   string `json:"caller"`
	Verifier string `json:"verifier"`
}

type setPausedParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type registerArtifactParams struct {
	Caller     string `json:"caller"`
	ArtifactID uint64 `json:"artifactId"`
	Owner      string `json:"owner"`
	Root       string `json:"root"`
}

type approveParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type mintParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type listingJSON struct {
	ListingID  uint64 `json:"listingId"`
	ArtifactID uint64 `json:"artifactId"`
	Seller     string `json:"seller"`
	Price      string `json:"price"`
	Root       string `json:"root"`
	CreatedAt  int64  `json:"createdAt"`
	Status     string `json:"status"`
}

type orderJSON struct {
	ArtifactID uint64 `json:"artifactId"`
	ListingID  uint64 `json:"listingId"`
	Buyer      string `json:"buyer"`
	Challenge  uint64 `json:"challenge"`
	Amount     string `json:"amount"`
	OpenedAt   int64  `json:"openedAt"`
	Status     string `json:"status"`
}

type historyResult struct {
	Count     uint64  `json:"count"`
	ListingID *uint64 `json:"listingId,omitempty"`
}

type configResult struct {
	NetworkName     string `json:"networkName"`
	PaymentToken    string `json:"paymentToken"`
	PurchaseTimeout int64  `json:"purchaseTimeoutSeconds"`
	Owner           string `json:"owner,omitempty"`
	Verifier        string `json:"verifier,omitempty"`
	EscrowVault     string `json:"escrowVault"`
}

func listingToJSON(l *marketplace.Listing) *listingJSON {
	if l == nil {
		return nil
	}
	return &listingJSON{
		ListingID:  l.ID,
		ArtifactID: l.ArtifactID,
		Seller:     hexAddress(l.Seller),
		Price:      l.Price.String(),
		Root:       "0x" + hex.EncodeToString(l.Root[:]),
		CreatedAt:  l.CreatedAt,
		Status:     l.Status.String(),
	}
}

func orderToJSON(o *marketplace.Order) *orderJSON {
	if o == nil {
		return nil
	}
	return &orderJSON{
		ArtifactID: o.ArtifactID,
		ListingID:  o.ListingID,
		Buyer:      hexAddress(o.Buyer),
		Challenge:  o.Challenge,
		Amount:     o.Amount.String(),
		OpenedAt:   o.OpenedAt,
		Status:     o.Status.String(),
	}
}

func hexAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

func parseAddress(raw string) ([20]byte, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: "invalid address: " + raw}
	}
	addr := common.HexToAddress(trimmed)
	return [20]byte(addr), nil
}

func parseAmount(raw string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: "amount required"}
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: "invalid amount: " + raw}
	}
	return value, nil
}

func parseHash(raw string) ([32]byte, *RPCError) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 32 {
		return [32]byte{}, &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: "invalid 32-byte hex value"}
	}
	var out [32]byte
	copy(out[:], decoded)
	return out, nil
}

func parseProof(raw string) ([]byte, *RPCError) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) == 0 {
		return nil, &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: "invalid proof encoding"}
	}
	return decoded, nil
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: "exactly one parameter object expected"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: err.Error()}
	}
	return nil
}

// marketError maps engine failures onto JSON-RPC error codes and HTTP
// statuses.
func marketError(err error) (int, int, string) {
	switch {
	case errors.Is(err, marketplace.ErrValidation):
		return http.StatusBadRequest, codeMarketInvalidParams, "invalid_params"
	case errors.Is(err, marketplace.ErrUnauthorized):
		return http.StatusForbidden, codeMarketForbidden, "forbidden"
	case errors.Is(err, marketplace.ErrNotFound):
		return http.StatusNotFound, codeMarketNotFound, "not_found"
	case errors.Is(err, marketplace.ErrProofInvalid):
		return http.StatusConflict, codeMarketProofInvalid, "proof_invalid"
	case errors.Is(err, marketplace.ErrState):
		return http.StatusConflict, codeMarketConflict, "conflict"
	case errors.Is(err, state.ErrInsufficientBalance), errors.Is(err, state.ErrInsufficientAllowance):
		return http.StatusConflict, codeMarketConflict, "insufficient_funds"
	default:
		return http.StatusInternalServerError, codeServerError, "internal"
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	switch req.Method {
	case "market_createListing":
		return s.handleCreateListing(w, r, req)
	case "market_closeListing":
		return s.handleCloseListing(w, r, req)
	case "market_openPurchase":
		return s.handleOpenPurchase(w, r, req)
	case "market_settlePurchase":
		return s.handleSettlePurchase(w, r, req)
	case "market_refundPurchase":
		return s.handleRefundPurchase(w, r, req)
	case "market_transferOwnership":
		return s.handleTransferOwnership(w, r, req)
	case "market_setVerifier":
		return s.handleSetVerifier(w, r, req)
	case "market_setPaused":
		return s.handleSetPaused(w, r, req)
	case "market_registerArtifact":
		return s.handleRegisterArtifact(w, r, req)
	case "token_approve":
		return s.handleTokenApprove(w, r, req)
	case "token_mint":
		return s.handleTokenMint(w, r, req)
	case "token_balance":
		return s.handleTokenBalance(w, req)
	case "market_getListing":
		return s.handleGetListing(w, req)
	case "market_getActiveListing":
		return s.handleGetActiveListing(w, req)
	case "market_listingHistory":
		return s.handleListingHistory(w, req)
	case "market_getOrder":
		return s.handleGetOrder(w, req)
	case "market_orderCount":
		return s.handleOrderCount(w, req)
	case "market_getConfig":
		return s.handleGetConfig(w, req)
	case "market_events":
		return s.handleEvents(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return "error"
	}
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, req *RPCRequest, fn func(*marketplace.Engine, *state.Manager) error) bool {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return false
	}
	if err := s.withCommit(fn); err != nil {
		status, code, message := marketError(err)
		writeError(w, status, req.ID, code, message, err.Error())
		return false
	}
	return true
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params createListingParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	price, rpcErr := parseAmount(params.Price)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	var listing *marketplace.Listing
	ok := s.mutate(w, r, req, func(eng *marketplace.Engine, _ *state.Manager) error {
		created, err := eng.CreateListing(caller, params.ArtifactID, price)
		if err != nil {
			return err
		}
		listing = created
		return nil
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, listingToJSON(listing))
	return "ok"
}

func (s *Server) handleCloseListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params closeListingParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	ok := s.mutate(w, r, req, func(eng *marketplace.Engine, _ *state.Manager) error {
		return eng.CloseListing(caller, params.ArtifactID)
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"closed": true})
	return "ok"
}

func (s *Server) handleOpenPurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params openPurchaseParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	var order *marketplace.Order
	ok := s.mutate(w, r, req, func(eng *marketplace.Engine, _ *state.Manager) error {
		opened, err := eng.OpenPurchase(caller, params.ArtifactID, params.Challenge, amount)
		if err != nil {
			return err
		}
		order = opened
		return nil
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, orderToJSON(order))
	return "ok"
}

func (s *Server) handleSettlePurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params settlePurchaseParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	buyer, rpcErr := parseAddress(params.Buyer)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	proof, rpcErr := parseProof(params.Proof)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	ok := s.mutate(w, r, req, func(eng *marketplace.Engine, _ *state.Manager) error {
		return eng.SettlePurchase(caller, params.ArtifactID, buyer, params.Challenge, proof)
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"settled": true})
	return "ok"
}

func (s *Server) handleRefundPurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params refundPurchaseParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	ok := s.mutate(w, r, req, func(eng *marketplace.Engine, _ *state.Manager) error {
		return eng.RefundPurchase(caller, params.ArtifactID)
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"refunded": true})
	return "ok"
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params transferOwnershipParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	newOwner, rpcErr := parseAddress(params.NewOwner)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	ok := s.mutate(w, r, req, func(eng *marketplace.Engine, _ *state.Manager) error {
		return eng.TransferOwnership(caller, newOwner)
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"transferred": true})
	return "ok"
}

func (s *Server) handleSetVerifier(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params setVerifierParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	verifier, rpcErr := parseAddress(params.Verifier)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	ok := s.mutate(w, r, req, func(eng *marketplace.Engine, _ *state.Manager) error {
		return eng.SetVerifierAddress(caller, verifier)
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
	return "ok"
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params setPausedParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	ok := s.mutate(w, r, req, func(eng *marketplace.Engine, _ *state.Manager) error {
		return eng.SetPaused(caller, params.Paused)
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"paused": params.Paused})
	return "ok"
}

func (s *Server) handleRegisterArtifact(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params registerArtifactParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	owner, rpcErr := parseAddress(params.Owner)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	root, rpcErr := parseHash(params.Root)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	ok := s.mutate(w, r, req, func(_ *marketplace.Engine, mgr *state.Manager) error {
		marketOwner, configured := mgr.MarketOwner()
		if !configured {
			return fmt.Errorf("%w: marketplace owner not configured", marketplace.ErrState)
		}
		if marketOwner != caller {
			return fmt.Errorf("%w: owner required", marketplace.ErrUnauthorized)
		}
		return mgr.ArtifactPut(params.ArtifactID, owner, root)
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"registered": true})
	return "ok"
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params approveParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	ok := s.mutate(w, r, req, func(_ *marketplace.Engine, mgr *state.Manager) error {
		return mgr.Approve(caller, state.EscrowVault(), amount)
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"approved": true})
	return "ok"
}

func (s *Server) handleTokenMint(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params mintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	to, rpcErr := parseAddress(params.To)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	ok := s.mutate(w, r, req, func(_ *marketplace.Engine, mgr *state.Manager) error {
		owner, configured := mgr.MarketOwner()
		if !configured {
			return fmt.Errorf("%w: marketplace owner not configured", marketplace.ErrState)
		}
		if owner != caller {
			return fmt.Errorf("%w: owner required", marketplace.ErrUnauthorized)
		}
		return mgr.Mint(to, amount)
	})
	if !ok {
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"minted": true})
	return "ok"
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, req *RPCRequest) string {
	var params balanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	addr, rpcErr := parseAddress(params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	balance, err := s.readManager().BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal", err.Error())
		return "error"
	}
	writeResult(w, req.ID, map[string]string{
		"address": hexAddress(addr),
		"balance": balance.String(),
	})
	return "ok"
}

func (s *Server) handleGetListing(w http.ResponseWriter, req *RPCRequest) string {
	var params listingIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	listing, ok := s.readManager().ListingGet(params.ListingID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMarketNotFound, "not_found", "unknown listing")
		return "error"
	}
	writeResult(w, req.ID, listingToJSON(listing))
	return "ok"
}

func (s *Server) handleGetActiveListing(w http.ResponseWriter, req *RPCRequest) string {
	var params artifactParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	mgr := s.readManager()
	listingID, ok := mgr.ActiveListingGet(params.ArtifactID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMarketNotFound, "not_found", "no active listing")
		return "error"
	}
	listing, ok := mgr.ListingGet(listingID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMarketNotFound, "not_found", "unknown listing")
		return "error"
	}
	writeResult(w, req.ID, listingToJSON(listing))
	return "ok"
}

func (s *Server) handleListingHistory(w http.ResponseWriter, req *RPCRequest) string {
	var params listingHistoryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	mgr := s.readManager()
	count, err := mgr.HistoryCount(params.ArtifactID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal", err.Error())
		return "error"
	}
	result := historyResult{Count: count}
	if params.Index != nil {
		id, ok := mgr.HistoryEntry(params.ArtifactID, *params.Index)
		if !ok {
			writeError(w, http.StatusNotFound, req.ID, codeMarketNotFound, "not_found", "history index out of range")
			return "error"
		}
		result.ListingID = &id
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleGetOrder(w http.ResponseWriter, req *RPCRequest) string {
	var params orderQueryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	buyer, rpcErr := parseAddress(params.Buyer)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	order, ok := s.readManager().OrderGet(params.ArtifactID, buyer)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMarketNotFound, "not_found", "unknown order")
		return "error"
	}
	writeResult(w, req.ID, orderToJSON(order))
	return "ok"
}

func (s *Server) handleOrderCount(w http.ResponseWriter, req *RPCRequest) string {
	var params artifactParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return "error"
	}
	count, err := s.readManager().OrderCount(params.ArtifactID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal", err.Error())
		return "error"
	}
	writeResult(w, req.ID, map[string]uint64{"count": count})
	return "ok"
}

func (s *Server) handleGetConfig(w http.ResponseWriter, req *RPCRequest) string {
	mgr := s.readManager()
	result := configResult{
		NetworkName:     s.cfg.NetworkName,
		PaymentToken:    s.cfg.PaymentTokenSymbol,
		PurchaseTimeout: s.cfg.PurchaseTimeoutSeconds,
		EscrowVault:     hexAddress(state.EscrowVault()),
	}
	if owner, ok := mgr.MarketOwner(); ok {
		result.Owner = hexAddress(owner)
	}
	if verifier, ok := mgr.VerifierAddress(); ok {
		result.Verifier = hexAddress(verifier)
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleEvents(w http.ResponseWriter, req *RPCRequest) string {
	recorded := s.events.Events()
	out := make([]*types.Event, 0, len(recorded))
	for _, evt := range recorded {
		carrier, ok := evt.(interface{ Event() *types.Event })
		if !ok {
			continue
		}
		out = append(out, carrier.Event())
	}
	writeResult(w, req.ID, out)
	return "ok"
}
