package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/auth"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/repositories"
)

// ApiLogsHandler exposes the execute audit trail to admins. Read only.
type ApiLogsHandler struct {
	apiLogs repositories.ApiLogRepository
	logger  *zap.Logger
}

// NewApiLogsHandler creates a new api logs handler.
func NewApiLogsHandler(apiLogs repositories.ApiLogRepository, logger *zap.Logger) *ApiLogsHandler {
	return &ApiLogsHandler{
		apiLogs: apiLogs,
		logger:  logger.Named("api_logs_handler"),
	}
}

// RegisterRoutes registers the api logs handler's routes on the given mux.
func (h *ApiLogsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, adminRole string) {
	mux.HandleFunc("GET /api/admin/api-logs",
		authMiddleware.RequireAuth(auth.RequireRole(adminRole)(h.List)))
}

// List handles GET /api/admin/api-logs
// Optional query params: data_source_id, user_id, since (RFC 3339), limit.
func (h *ApiLogsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, msg := parseApiLogFilter(r)
	if msg != "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", msg); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	logs, err := h.apiLogs.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list api logs", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_api_logs_failed", "Failed to list api logs"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if logs == nil {
		logs = make([]*models.ApiLog, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: logs}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func parseApiLogFilter(r *http.Request) (repositories.ApiLogFilter, string) {
	q := r.URL.Query()
	filter := repositories.ApiLogFilter{UserID: q.Get("user_id")}

	if v := q.Get("data_source_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, "Invalid data_source_id"
		}
		filter.DataSourceID = &id
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, "Invalid since, expected RFC 3339"
		}
		filter.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, "Invalid limit"
		}
		filter.Limit = limit
	}
	return filter, ""
}
