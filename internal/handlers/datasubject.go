package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cachegate/internal/metrics"
	"cachegate/internal/store"
	"cachegate/pkg/logging"
)

// DataSubjectHandler serves regulatory access/delete requests against
// cached data. It reads the durable store directly, filtered by the
// requesting user, and only ever deletes — entry payloads are written by
// the gate alone. Requests are identified and logged but never persisted
// or retried; a failed request must be resubmitted by the caller.
type DataSubjectHandler struct {
	Durable   store.Store
	Ephemeral store.Store
}

func NewDataSubjectHandler(durable, ephemeral store.Store) *DataSubjectHandler {
	return &DataSubjectHandler{Durable: durable, Ephemeral: ephemeral}
}

type cachedEntry struct {
	Key         string    `json:"key"`
	TenantID    string    `json:"tenant_id"`
	ModelID     string    `json:"model_id"`
	Response    string    `json:"response"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ScanVersion int       `json:"pii_scan_version"`
}

type accessResponse struct {
	UserID    string        `json:"user_id"`
	RequestID string        `json:"request_id"`
	Entries   []cachedEntry `json:"entries"`
}

// Access handles GET /api/user/cached-data?user_id=...
func (h *DataSubjectHandler) Access(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	requestID := uuid.NewString()
	requestedAt := time.Now()
	metrics.DataSubjectRequestsTotal.WithLabelValues("access").Inc()

	entries, err := h.Durable.ListUser(ctx, userID)
	if err != nil {
		logger.Error("data_subject_request",
			zap.String("request_id", requestID),
			zap.String("request_type", "access"),
			zap.String("user_id", userID),
			zap.Time("requested_at", requestedAt),
			zap.String("status", "failed"),
			zap.Error(err),
		)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	out := accessResponse{
		UserID:    userID,
		RequestID: requestID,
		Entries:   make([]cachedEntry, 0, len(entries)),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, cachedEntry{
			Key:         e.Key,
			TenantID:    e.TenantID,
			ModelID:     e.ModelID,
			Response:    e.Response,
			CreatedAt:   e.CreatedAt,
			ExpiresAt:   e.ExpiresAt,
			ScanVersion: e.ScanVersion,
		})
	}

	logger.Info("data_subject_request",
		zap.String("request_id", requestID),
		zap.String("request_type", "access"),
		zap.String("user_id", userID),
		zap.Time("requested_at", requestedAt),
		zap.String("status", "completed"),
		zap.Int("entries", len(out.Entries)),
	)
	writeJSON(w, out)
}

type deleteResponse struct {
	UserID       string `json:"user_id"`
	RequestID    string `json:"request_id"`
	DeletedCount int    `json:"deleted_count"`
}

// Delete handles DELETE /api/user/cached-data?user_id=...
// After it returns, a subsequent Access for the same user sees no
// residual entries in either tier.
func (h *DataSubjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	requestID := uuid.NewString()
	requestedAt := time.Now()
	metrics.DataSubjectRequestsTotal.WithLabelValues("delete").Inc()

	deleted, err := h.Durable.DeleteUser(ctx, userID)
	if err != nil {
		logger.Error("data_subject_request",
			zap.String("request_id", requestID),
			zap.String("request_type", "delete"),
			zap.String("user_id", userID),
			zap.Time("requested_at", requestedAt),
			zap.String("status", "failed"),
			zap.Error(err),
		)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	// Purge the best-effort tier as well; its copies count for nothing
	// but must not outlive the durable originals.
	if _, err := h.Ephemeral.DeleteUser(ctx, userID); err != nil {
		logger.Warn("ephemeral_purge_failed", zap.String("user_id", userID), zap.Error(err))
	}

	logger.Info("data_subject_request",
		zap.String("request_id", requestID),
		zap.String("request_type", "delete"),
		zap.String("user_id", userID),
		zap.Time("requested_at", requestedAt),
		zap.String("status", "completed"),
		zap.Int("deleted_count", deleted),
	)
	writeJSON(w, deleteResponse{UserID: userID, RequestID: requestID, DeletedCount: deleted})
}
