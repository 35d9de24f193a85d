package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/auth"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/services"
)

// ExecuteRequest is the POST body for /api/datasources/{id}/execute.
// Which fields apply depends on Operation.
type ExecuteRequest struct {
	Operation string         `json:"operation"`
	SQL       string         `json:"sql,omitempty"`
	Params    []any          `json:"params,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Filters   map[string]any `json:"filters,omitempty"`
	Limit     int            `json:"limit,omitempty"`
	Offset    int            `json:"offset,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Where     map[string]any `json:"where,omitempty"`
	TimeoutMs int            `json:"timeout_ms,omitempty"`
}

// ListAccessibleResponse wraps the caller's visible data sources.
type ListAccessibleResponse struct {
	DataSources []*services.AccessibleDataSource `json:"data_sources"`
}

// ExecuteHandler serves caller-facing data access.
type ExecuteHandler struct {
	manager services.ConnectorManager
	catalog services.Catalog
	logger  *zap.Logger
}

// NewExecuteHandler creates a new execute handler.
func NewExecuteHandler(manager services.ConnectorManager, catalog services.Catalog, logger *zap.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		manager: manager,
		catalog: catalog,
		logger:  logger.Named("execute_handler"),
	}
}

// RegisterRoutes registers the execute handler's routes on the given mux.
func (h *ExecuteHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/datasources", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/datasources/{id}/execute", authMiddleware.RequireAuth(h.Execute))
}

// List handles GET /api/datasources
// Returns the data sources the caller's department can read.
func (h *ExecuteHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	sources, err := h.catalog.ListAccessible(r.Context(), caller.Department, caller.ToolID)
	if err != nil {
		writeServiceError(w, h.logger, err, "list_failed", "Failed to list data sources")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ListAccessibleResponse{DataSources: sources}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Execute handles POST /api/datasources/{id}/execute
// The response body is always the execute result; its code selects the status.
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req ExecuteRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	result := h.manager.Execute(r.Context(), services.ExecuteParams{
		DataSourceID: id,
		Operation:    models.Operation(req.Operation),
		UserID:       caller.UserID,
		Department:   caller.Department,
		ToolID:       caller.ToolID,
		SQL:          req.SQL,
		Params:       req.Params,
		Filters:      req.Filters,
		Limit:        req.Limit,
		Offset:       req.Offset,
		Resource:     req.Resource,
		Data:         req.Data,
		Where:        req.Where,
		Timeout:      time.Duration(req.TimeoutMs) * time.Millisecond,
	})

	if err := WriteJSON(w, StatusForCode(result.Code), result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ExecuteHandler) caller(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	caller, err := auth.ExtractCallerFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return auth.Caller{}, false
	}
	return caller, true
}
