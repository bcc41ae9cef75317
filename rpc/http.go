package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"deedescrow/core"
	"deedescrow/indexer"
	"deedescrow/observability"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	visitorTTL             = 10 * time.Minute
	requestIDHeader        = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// EventStore serves escrow_listEvents.
type EventStore interface {
	List(ctx context.Context, filter indexer.Filter) ([]indexer.StoredEvent, error)
}

// ServerConfig tunes the JSON-RPC surface.
type ServerConfig struct {
	// AuthToken, when set, must be presented as a bearer token on tx_send.
	AuthToken string
	// RateLimitPerSec and RateLimitBurst bound requests per client address.
	// A zero rate disables limiting.
	RateLimitPerSec   float64
	RateLimitBurst    int
	MaxBodyBytes      int64
	TrustProxyHeaders bool
	Logger            *slog.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Server struct {
	node   *core.Node
	events EventStore
	cfg    ServerConfig
	logger *slog.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
	clockNow func() time.Time
}

func NewServer(node *core.Node, events EventStore, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:     node,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

// Handler returns the HTTP surface: JSON-RPC on POST /, plus /healthz and
// /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "escrowd-rpc")
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
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

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// failure pairs an RPC error with the HTTP status it is written with.
type failure struct {
	status int
	err    *RPCError
}

func invalidParams(message string, data interface{}) *failure {
	return &failure{status: http.StatusBadRequest, err: &RPCError{Code: codeInvalidParams, Message: message, Data: data}}
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

// handle decodes one JSON-RPC request and routes it to its handler.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := s.clockNow()
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	source := s.clientSource(r)
	if !s.allowSource(source) {
		observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", source)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	result, fail := s.dispatch(r, req)
	module, method := splitMethod(req.Method)
	code := 0
	if fail != nil {
		code = fail.err.Code
		writeError(w, fail.status, req.ID, fail.err.Code, fail.err.Message, fail.err.Data)
	} else {
		writeResult(w, req.ID, result)
	}
	elapsed := s.clockNow().Sub(start)
	observability.ModuleMetrics().Observe(module, method, code, elapsed)
	s.logger.Debug("rpc request",
		slog.String("method", req.Method),
		slog.Int("code", code),
		slog.String("request_id", w.Header().Get(requestIDHeader)),
		slog.Duration("duration", elapsed))
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	switch req.Method {
	case "tx_send":
		if authErr := s.requireAuth(r); authErr != nil {
			return nil, &failure{status: http.StatusUnauthorized, err: authErr}
		}
		return s.handleSendTransaction(r, req)
	case "chain_info":
		return s.handleChainInfo(r, req)
	case "escrow_getListing":
		return s.handleEscrowGetListing(r, req)
	case "escrow_getApproval":
		return s.handleEscrowGetApproval(r, req)
	case "escrow_getBalance":
		return s.handleEscrowGetBalance(r, req)
	case "escrow_getRefund":
		return s.handleEscrowGetRefund(r, req)
	case "escrow_getRoles":
		return s.handleEscrowGetRoles(r, req)
	case "escrow_listEvents":
		return s.handleEscrowListEvents(r, req)
	case "registry_ownerOf":
		return s.handleRegistryOwnerOf(r, req)
	case "registry_getApproved":
		return s.handleRegistryGetApproved(r, req)
	case "registry_tokenURI":
		return s.handleRegistryTokenURI(r, req)
	case "registry_totalSupply":
		return s.handleRegistryTotalSupply(r, req)
	case "bank_getAccount":
		return s.handleBankGetAccount(r, req)
	}
	return nil, &failure{status: http.StatusNotFound, err: &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %s not found", req.Method)}}
}

func splitMethod(full string) (string, string) {
	module, method, ok := strings.Cut(full, "_")
	if !ok {
		return "unknown", full
	}
	return module, method
}

// requireAuth enforces the bearer token when one is configured.
func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if s.cfg.RateLimitPerSec <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	now := s.clockNow()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(s.visitors, key)
		}
	}
	v, ok := s.visitors[source]
	if !ok {
		burst := s.cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerSec), burst)}
		s.visitors[source] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (s *Server) clientSource(r *http.Request) string {
	if s.cfg.TrustProxyHeaders {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			candidate, _, _ := strings.Cut(forwarded, ",")
			if candidate = strings.TrimSpace(candidate); candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// errorFailure maps a module error onto its public code. Failures outside the
// taxonomy are reported as server errors without leaking details.
func errorFailure(err error) *failure {
	class := core.ClassifyError(err)
	if class == core.Internal {
		return &failure{status: http.StatusInternalServerError, err: &RPCError{Code: class.Code, Message: class.Name}}
	}
	status := http.StatusBadRequest
	switch class.Name {
	case "NotListed", "TokenNotFound":
		status = http.StatusNotFound
	case "Unauthorized", "NotOwnerOrApproved", "NotOwnerOrUnapproved":
		status = http.StatusForbidden
	case "ModulePaused":
		status = http.StatusServiceUnavailable
	}
	return &failure{status: status, err: &RPCError{Code: class.Code, Message: class.Name, Data: err.Error()}}
}
