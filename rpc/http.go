package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sessionmarket/core/events"
	"sessionmarket/native/marketplace"
	"sessionmarket/observability"
	"sessionmarket/state"
	"sessionmarket/storage"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

const (
	codeMarketInvalidParams = -32060
	codeMarketForbidden     = -32061
	codeMarketConflict      = -32062
	codeMarketNotFound      = -32063
	codeMarketProofInvalid  = -32064
)

// authTokenEnv names the environment variable carrying the bearer token
// required for mutating methods. An empty value disables the check.
const authTokenEnv = "MARKET_RPC_TOKEN"

// ServerConfig carries the engine parameters the RPC surface needs.
type ServerConfig struct {
	NetworkName            string
	PaymentTokenSymbol     string
	PurchaseTimeoutSeconds int64
}

// Server exposes the marketplace over JSON-RPC 2.0. Mutating methods run
// against a storage overlay committed only on success, and are serialized so
// each call observes the previous one's effects in full.
type Server struct {
	db      storage.Database
	cfg     ServerConfig
	logger  *slog.Logger
	events  *events.Recorder
	metrics *observability.MarketplaceMetrics

	mu        sync.Mutex
	authToken string
}

// NewServer creates a marketplace RPC server over the given store.
func NewServer(db storage.Database, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		db:        db,
		cfg:       cfg,
		logger:    logger,
		events:    events.NewRecorder(0),
		metrics:   observability.Marketplace(),
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
	}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint plus the
// metrics and health surfaces.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start serves the RPC endpoint until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "bearer token required"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "invalid_request", "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "invalid_request", "request too large")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}

	started := time.Now()
	outcome := s.dispatch(w, r, &req)
	s.metrics.Observe(req.Method, outcome, time.Since(started))
}

// readManager returns a manager over the committed store for query methods.
func (s *Server) readManager() *state.Manager {
	return state.NewManager(s.db)
}

// engineFor wires a marketplace engine to the supplied state manager. The
// production collaborators are bound here; tests substitute doubles at the
// engine level.
func (s *Server) engineFor(mgr *state.Manager) *marketplace.Engine {
	eng := marketplace.NewEngine()
	eng.SetState(mgr)
	eng.SetLedger(state.NewLedger(mgr))
	eng.SetRegistry(mgr)
	eng.SetVerifier(marketplace.AttestationVerifier{})
	eng.SetPauses(mgr)
	eng.SetEmitter(s.events)
	eng.SetPurchaseTimeout(s.cfg.PurchaseTimeoutSeconds)
	return eng
}

// withCommit runs a mutating operation against a storage overlay, committing
// only when the operation succeeds. Mutations are serialized.
func (s *Server) withCommit(fn func(*marketplace.Engine, *state.Manager) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	overlay := storage.NewOverlay(s.db)
	mgr := state.NewManager(overlay)
	if err := fn(s.engineFor(mgr), mgr); err != nil {
		overlay.Discard()
		return err
	}
	if err := overlay.Commit(); err != nil {
		return fmt.Errorf("state commit: %w", err)
	}
	return nil
}
