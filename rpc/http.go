package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"flasharb/core/events"
	"flasharb/native/fees"
	"flasharb/native/registry"
	"flasharb/native/settlement"
	"flasharb/observability"
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
	codeRateLimited    = -32020
)

// Server exposes the orchestrator-facing JSON-RPC surface: the settlement
// entry point, the administrative setters, and read views over allow-lists,
// caps, fee config, and recent events.
type Server struct {
	engine    *settlement.Engine
	registry  *registry.Registry
	feePolicy *fees.Manager
	recorder  *events.Recorder
	logger    *slog.Logger
	metrics   *observability.SettlementMetrics
	authToken string
	limiter   *rate.Limiter
}

// NewServer constructs the RPC server. The bearer token gates every mutating
// method; role checks inside the engines gate semantics.
func NewServer(engine *settlement.Engine, reg *registry.Registry, feePolicy *fees.Manager, recorder *events.Recorder, logger *slog.Logger, authToken string, rps int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if rps <= 0 {
		rps = 25
	}
	return &Server{
		engine:    engine,
		registry:  reg,
		feePolicy: feePolicy,
		recorder:  recorder,
		logger:    logger,
		metrics:   observability.Metrics(),
		authToken: strings.TrimSpace(authToken),
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Router returns the HTTP routes: the JSON-RPC endpoint plus health and
// metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/rpc", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// RPCRequest is a single JSON-RPC call envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

// RPCResponse is the reply envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a structured failure.
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

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
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

	handler, mutating := s.route(req.Method)
	if handler == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			s.logger.Warn("rejected RPC call",
				slog.String("method", req.Method),
				slog.String("remote", r.RemoteAddr),
				slog.String("reason", authErr.Message))
			s.metrics.ObserveRequest(req.Method, "unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	handler(w, req)
}

type handlerFunc func(http.ResponseWriter, *RPCRequest)

func (s *Server) route(method string) (handlerFunc, bool) {
	switch method {
	case "arb_requestSettlement":
		return s.handleRequestSettlement, true
	case "arb_runtime":
		return s.handleRuntime, false
	case "arb_events":
		return s.handleEvents, false
	case "engine_pause":
		return s.handlePause, true
	case "engine_unpause":
		return s.handleUnpause, true
	case "engine_rescueTokens":
		return s.handleRescueTokens, true
	case "engine_approveSpender":
		return s.handleApproveSpender, true
	case "fees_configure":
		return s.handleFeesConfigure, true
	case "fees_policy":
		return s.handleFeesPolicy, false
	case "registry_grantRole":
		return s.handleGrantRole, true
	case "registry_revokeRole":
		return s.handleRevokeRole, true
	case "registry_roleMembers":
		return s.handleRoleMembers, false
	case "registry_setApprovedAsset":
		return s.handleSetApprovedAsset, true
	case "registry_setApprovedTarget":
		return s.handleSetApprovedTarget, true
	case "registry_setAllowedSelector":
		return s.handleSetAllowedSelector, true
	case "registry_setMaxBorrow":
		return s.handleSetMaxBorrow, true
	case "registry_setTreasury":
		return s.handleSetTreasury, true
	case "registry_allowances":
		return s.handleAllowances, false
	}
	return nil, false
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
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
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
