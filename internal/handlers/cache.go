package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"cachegate/internal/gate"
	"cachegate/internal/store"
	"cachegate/pkg/logging"
)

// CacheHandler serves the cache-consult and cache-store endpoints used
// by the chat frontend around its provider call.
type CacheHandler struct {
	Gate *gate.Gate
}

func NewCacheHandler(g *gate.Gate) *CacheHandler {
	return &CacheHandler{Gate: g}
}

type lookupRequest struct {
	TenantID string `json:"tenant_id"`
	ModelID  string `json:"model_id"`
	Query    string `json:"query"`
}

type lookupResponse struct {
	Hit      bool   `json:"hit"`
	Response string `json:"response,omitempty"`
}

// Lookup handles POST /cache/lookup.
func (h *CacheHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	response, hit, err := h.Gate.Lookup(ctx, req.TenantID, req.ModelID, req.Query)
	if err != nil {
		writeGateError(w, logger, err)
		return
	}

	writeJSON(w, lookupResponse{Hit: hit, Response: response})
}

type storeRequest struct {
	TenantID string `json:"tenant_id"`
	ModelID  string `json:"model_id"`
	UserID   string `json:"user_id,omitempty"`
	Query    string `json:"query"`
	Response string `json:"response"`
}

type storeResponse struct {
	Stored bool `json:"stored"`
}

// Store handles POST /cache/store. stored:false signals a PII rejection
// or a disabled cache, not an error — the caller still serves its fresh
// response either way.
func (h *CacheHandler) Store(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Response == "" {
		http.Error(w, "response is required", http.StatusBadRequest)
		return
	}

	stored, err := h.Gate.Store(ctx, req.TenantID, req.ModelID, req.UserID, req.Query, req.Response)
	if err != nil {
		writeGateError(w, logger, err)
		return
	}

	writeJSON(w, storeResponse{Stored: stored})
}

func writeGateError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case gate.InvalidInput(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrTenantIsolation):
		// Abort with a generic body; details stay in the logs.
		logger.Error("tenant isolation violation", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal_server_error"}`))
	default:
		logger.Error("gate error", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal_server_error"}`))
	}
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
