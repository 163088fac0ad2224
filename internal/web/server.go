package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianfi/feemanager/internal/auth"
	"github.com/meridianfi/feemanager/internal/distribution"
	"github.com/meridianfi/feemanager/internal/engine"
	"github.com/meridianfi/feemanager/internal/hub"
	"github.com/meridianfi/feemanager/internal/logger"
	"github.com/meridianfi/feemanager/internal/routing"
	"github.com/meridianfi/feemanager/internal/state"
	"github.com/meridianfi/feemanager/internal/token"
	"github.com/meridianfi/feemanager/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// callerHeader carries the principal every mutating endpoint acts as. The
// engine's role registry decides whether that principal may proceed.
const callerHeader = "X-Caller-Address"

// WebServer exposes the engine's queries and operations over HTTP.
type WebServer struct {
	router    *mux.Router
	port      string
	engine    *engine.Engine
	companion *routing.Companion
	dbEnabled bool
}

// NewWebServer creates a new web server instance.
func NewWebServer(port string, eng *engine.Engine, companion *routing.Companion, dbEnabled bool) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		engine:    eng,
		companion: companion,
		dbEnabled: dbEnabled,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Queries
	api.HandleFunc("/position", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/positions", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/positions/into/{token}", ws.handleGetPositionsInto).Methods("GET")
	api.HandleFunc("/balances", ws.handleGetBalances).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/next-swaps", ws.handleNextSwaps).Methods("POST")

	// Operations
	api.HandleFunc("/fill", ws.handleFill).Methods("POST")
	api.HandleFunc("/withdraw/balance", ws.handleWithdrawBalance).Methods("POST")
	api.HandleFunc("/withdraw/platform", ws.handleWithdrawPlatform).Methods("POST")
	api.HandleFunc("/withdraw/positions", ws.handleWithdrawPositions).Methods("POST")
	api.HandleFunc("/terminate", ws.handleTerminate).Methods("POST")
	api.HandleFunc("/allowances/revoke", ws.handleRevokeAllowances).Methods("POST")
	api.HandleFunc("/admins", ws.handleAddAdmin).Methods("POST")
	api.HandleFunc("/admins", ws.handleRemoveAdmin).Methods("DELETE")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbHealthy := true
	if ws.dbEnabled {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
			hasErrors = true
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "feemanager",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"database_enabled": ws.dbEnabled,
			"database_healthy": dbHealthy,
			"open_positions":   len(ws.engine.OpenPositions()),
			"engine_account":   ws.engine.Self().Hex(),
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetPosition resolves one source -> destination pair.
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	source, ok := parseAddressParam(r, "source")
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid source token address")
		return
	}
	dest, ok := parseAddressParam(r, "dest")
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid dest token address")
		return
	}

	id, found := ws.engine.PositionFor(source, dest)
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "No position for this token pair")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"source_token": source.Hex(),
		"dest_token":   dest.Hex(),
		"position_id":  id,
	})
}

// handleGetPositions enumerates every tracked pair mapping.
func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	entries := ws.engine.OpenPositions()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"positions": entries,
		"count":     len(entries),
	})
}

// handleGetPositionsInto lists positions paying into one destination token.
func (ws *WebServer) handleGetPositionsInto(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !common.IsHexAddress(vars["token"]) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid token address")
		return
	}
	tkn := common.HexToAddress(vars["token"])

	ids := ws.engine.PositionsInto(tkn)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"token":        tkn.Hex(),
		"position_ids": ids,
		"count":        len(ids),
	})
}

// handleGetBalances aggregates settleable balances for the requested tokens.
func (ws *WebServer) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tokens")
	if raw == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Missing tokens query parameter")
		return
	}

	var tokens []common.Address
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if !common.IsHexAddress(part) {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid token address: "+part)
			return
		}
		tokens = append(tokens, common.HexToAddress(part))
	}

	balances, err := ws.engine.AvailableBalances(r.Context(), tokens)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to aggregate balances")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve balances")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"balances": balances,
		"count":    len(balances),
	})
}

// handleGetReceipts returns the newest operation receipts.
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	if !ws.dbEnabled {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipt store is not configured")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 500 {
			limit = parsedLimit
		}
	}

	receipts, err := state.GetRecentReceipts(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	})
}

// handleNextSwaps answers the batched routing queries for a pair list.
func (ws *WebServer) handleNextSwaps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pairs []types.Pair `json:"pairs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	info, err := ws.companion.NextSwapInfo(r.Context(), req.Pairs)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to resolve next swap info")
		ws.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	seconds, err := ws.companion.SecondsUntilNextSwap(r.Context(), req.Pairs)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to resolve next swap times")
		ws.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"swap_info":               info,
		"seconds_until_next_swap": seconds,
	})
}

// handleFill runs a fill over the posted jobs and distribution.
func (ws *WebServer) handleFill(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.requireCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		Jobs         []types.FeeJob            `json:"jobs"`
		Distribution []types.DistributionEntry `json:"distribution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.engine.FillPositions(r.Context(), caller, req.Jobs, req.Distribution); err != nil {
		ws.writeOperationError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"status": "filled", "jobs": len(req.Jobs)})
}

// handleWithdrawBalance pays out of the engine account's own holdings.
func (ws *WebServer) handleWithdrawBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.requireCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		Amounts []struct {
			Token  string       `json:"token"`
			Amount *uint256.Int `json:"amount"`
			Full   bool         `json:"full"`
		} `json:"amounts"`
		Recipient string `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid recipient address")
		return
	}

	amounts := make([]types.TokenAmount, 0, len(req.Amounts))
	for _, entry := range req.Amounts {
		if !common.IsHexAddress(entry.Token) {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid token address: "+entry.Token)
			return
		}
		amount := entry.Amount
		if entry.Full {
			amount = types.MaxAmount()
		}
		amounts = append(amounts, types.TokenAmount{Token: common.HexToAddress(entry.Token), Amount: amount})
	}

	err := ws.engine.WithdrawFromBalance(r.Context(), caller, amounts, common.HexToAddress(req.Recipient))
	if err != nil {
		ws.writeOperationError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"status": "withdrawn", "entries": len(amounts)})
}

// handleWithdrawPlatform forwards a platform-fee withdrawal.
func (ws *WebServer) handleWithdrawPlatform(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.requireCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		Amounts   []types.TokenAmount `json:"amounts"`
		Recipient string              `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid recipient address")
		return
	}

	err := ws.engine.WithdrawFromPlatformBalance(r.Context(), caller, req.Amounts, common.HexToAddress(req.Recipient))
	if err != nil {
		ws.writeOperationError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"status": "withdrawn"})
}

// handleWithdrawPositions collects swap proceeds from open positions.
func (ws *WebServer) handleWithdrawPositions(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.requireCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		Sets      []types.PositionSet `json:"sets"`
		Recipient string              `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid recipient address")
		return
	}

	err := ws.engine.WithdrawFromPositions(r.Context(), caller, req.Sets, common.HexToAddress(req.Recipient))
	if err != nil {
		ws.writeOperationError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"status": "withdrawn"})
}

// handleTerminate closes positions and pays both legs to the recipient.
func (ws *WebServer) handleTerminate(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.requireCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		PositionIDs []types.PositionID `json:"position_ids"`
		Recipient   string             `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid recipient address")
		return
	}

	err := ws.engine.TerminatePositions(r.Context(), caller, req.PositionIDs, common.HexToAddress(req.Recipient))
	if err != nil {
		ws.writeOperationError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"status": "terminated", "count": len(req.PositionIDs)})
}

// handleRevokeAllowances resets spender allowances to zero.
func (ws *WebServer) handleRevokeAllowances(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.requireCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		Revocations []types.AllowanceRevocation `json:"revocations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.engine.RevokeAllowances(r.Context(), caller, req.Revocations); err != nil {
		ws.writeOperationError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"status": "revoked"})
}

// handleAddAdmin grants the admin role. Super-admin only.
func (ws *WebServer) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	ws.handleAdminChange(w, r, ws.engine.AddAdmin, "granted")
}

// handleRemoveAdmin revokes the admin role. Super-admin only.
func (ws *WebServer) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	ws.handleAdminChange(w, r, ws.engine.RemoveAdmin, "revoked")
}

func (ws *WebServer) handleAdminChange(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, caller, admin common.Address) error, status string) {
	caller, ok := ws.requireCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		Admin string `json:"admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.Admin) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid admin address")
		return
	}

	if err := change(r.Context(), caller, common.HexToAddress(req.Admin)); err != nil {
		ws.writeOperationError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"status": status, "admin": req.Admin})
}

// requireCaller extracts and validates the acting principal from the request.
func (ws *WebServer) requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := r.Header.Get(callerHeader)
	if !common.IsHexAddress(raw) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Missing or invalid "+callerHeader+" header")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// writeOperationError maps engine errors to HTTP status codes.
func (ws *WebServer) writeOperationError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, hub.ErrPositionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrZeroAddress),
		errors.Is(err, distribution.ErrInvalidShares),
		errors.Is(err, distribution.ErrEmptyDistribution),
		errors.Is(err, distribution.ErrNilAmount),
		errors.Is(err, engine.ErrNilAmount),
		errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrUnknownPosition),
		errors.Is(err, hub.ErrInvalidArgument),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		status = http.StatusBadRequest
	}
	ws.writeErrorResponse(w, status, err.Error())
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func parseAddressParam(r *http.Request, name string) (common.Address, bool) {
	raw := r.URL.Query().Get(name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+callerHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
