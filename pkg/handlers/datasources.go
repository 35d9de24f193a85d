package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/auth"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/services"
)

// DataSourceRequest is the POST/PUT body for admin data source edits.
// On update a nil Config keeps the stored credentials.
type DataSourceRequest struct {
	Name                 string                `json:"name"`
	DisplayName          string                `json:"display_name"`
	Type                 models.DataSourceType `json:"type"`
	Config               map[string]any        `json:"config"`
	GlobalBlockedColumns []string              `json:"global_blocked_columns"`
	IsActive             *bool                 `json:"is_active"`
}

// SetActiveRequest for PATCH active body.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// PermissionRequest for PUT permission body. The department comes from the path.
type PermissionRequest struct {
	ReadableTables      []string `json:"readable_tables"`
	WritableTables      []string `json:"writable_tables"`
	DeletableTables     []string `json:"deletable_tables"`
	BlockedColumns      []string `json:"blocked_columns"`
	WriteBlockedColumns []string `json:"write_blocked_columns"`
}

// ToolScopeRequest for PUT tool scope body.
type ToolScopeRequest struct {
	AllowedDataSources []string `json:"allowed_data_sources"`
}

// TestConnectionRequest for connection testing.
type TestConnectionRequest struct {
	Type   models.DataSourceType `json:"type"`
	Config map[string]any        `json:"config"`
}

// TestConnectionResponse for connection test result.
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DataSourcesHandler handles admin data source management.
type DataSourcesHandler struct {
	dataSourceService services.DataSourceService
	logger            *zap.Logger
}

// NewDataSourcesHandler creates a new data sources handler.
func NewDataSourcesHandler(dataSourceService services.DataSourceService, logger *zap.Logger) *DataSourcesHandler {
	return &DataSourcesHandler{
		dataSourceService: dataSourceService,
		logger:            logger.Named("datasources_handler"),
	}
}

// RegisterRoutes registers the admin routes. Every route requires adminRole.
func (h *DataSourcesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, adminRole string) {
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuth(auth.RequireRole(adminRole)(next))
	}
	base := "/api/admin/datasources"

	mux.HandleFunc("GET "+base, admin(h.List))
	mux.HandleFunc("POST "+base, admin(h.Create))
	mux.HandleFunc("POST "+base+"/test", admin(h.TestConnection))
	mux.HandleFunc("GET "+base+"/{id}", admin(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}", admin(h.Update))
	mux.HandleFunc("PATCH "+base+"/{id}/active", admin(h.SetActive))
	mux.HandleFunc("DELETE "+base+"/{id}", admin(h.Delete))
	mux.HandleFunc("POST "+base+"/{id}/schema/refresh", admin(h.RefreshSchema))
	mux.HandleFunc("PUT "+base+"/{id}/permissions/{department}", admin(h.PutPermission))
	mux.HandleFunc("DELETE "+base+"/{id}/permissions/{department}", admin(h.DeletePermission))
	mux.HandleFunc("GET /api/admin/connector-types", admin(h.ConnectorTypes))
	mux.HandleFunc("PUT /api/admin/tool-scopes/{tool}", admin(h.PutToolScope))
	mux.HandleFunc("DELETE /api/admin/tool-scopes/{tool}", admin(h.DeleteToolScope))
}

// List handles GET /api/admin/datasources
func (h *DataSourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.dataSourceService.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list_failed", "Failed to list data sources")
		return
	}
	h.ok(w, http.StatusOK, sources)
}

// Create handles POST /api/admin/datasources
func (h *DataSourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req DataSourceRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	ds, err := h.dataSourceService.Create(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, h.logger, err, "create_failed", "Failed to create data source")
		return
	}
	h.ok(w, http.StatusCreated, ds)
}

// Get handles GET /api/admin/datasources/{id}
// The response includes permission rows but never the connection config.
func (h *DataSourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}

	ds, err := h.dataSourceService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get_failed", "Failed to get data source")
		return
	}
	h.ok(w, http.StatusOK, ds)
}

// Update handles PUT /api/admin/datasources/{id}
func (h *DataSourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}
	var req DataSourceRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	ds, err := h.dataSourceService.Update(r.Context(), id, req.input())
	if err != nil {
		writeServiceError(w, h.logger, err, "update_failed", "Failed to update data source")
		return
	}
	h.ok(w, http.StatusOK, ds)
}

// SetActive handles PATCH /api/admin/datasources/{id}/active
func (h *DataSourcesHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}
	var req SetActiveRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.IsActive == nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "is_active is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.dataSourceService.SetActive(r.Context(), id, *req.IsActive); err != nil {
		writeServiceError(w, h.logger, err, "update_failed", "Failed to update data source")
		return
	}
	h.ok(w, http.StatusOK, nil)
}

// Delete handles DELETE /api/admin/datasources/{id}
func (h *DataSourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.dataSourceService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "delete_failed", "Failed to delete data source")
		return
	}
	h.ok(w, http.StatusOK, nil)
}

// RefreshSchema handles POST /api/admin/datasources/{id}/schema/refresh
func (h *DataSourcesHandler) RefreshSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}

	schema, err := h.dataSourceService.RefreshSchema(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "refresh_failed", "Failed to refresh schema")
		return
	}
	h.ok(w, http.StatusOK, schema)
}

// PutPermission handles PUT /api/admin/datasources/{id}/permissions/{department}
// Use "*" as the department for the fallback row.
func (h *DataSourcesHandler) PutPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}
	department, ok := parsePathString(w, r, "department", "invalid_department", "Department is required", h.logger)
	if !ok {
		return
	}
	var req PermissionRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	perm, err := h.dataSourceService.PutPermission(r.Context(), &models.DataSourcePermission{
		DataSourceID:        id,
		Department:          department,
		ReadableTables:      req.ReadableTables,
		WritableTables:      req.WritableTables,
		DeletableTables:     req.DeletableTables,
		BlockedColumns:      req.BlockedColumns,
		WriteBlockedColumns: req.WriteBlockedColumns,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "permission_failed", "Failed to save permission")
		return
	}
	h.ok(w, http.StatusOK, perm)
}

// DeletePermission handles DELETE /api/admin/datasources/{id}/permissions/{department}
func (h *DataSourcesHandler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}
	department, ok := parsePathString(w, r, "department", "invalid_department", "Department is required", h.logger)
	if !ok {
		return
	}

	if err := h.dataSourceService.DeletePermission(r.Context(), id, department); err != nil {
		writeServiceError(w, h.logger, err, "permission_failed", "Failed to delete permission")
		return
	}
	h.ok(w, http.StatusOK, nil)
}

// TestConnection handles POST /api/admin/datasources/test
// A failed test is reported in the body with status 200.
func (h *DataSourcesHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req TestConnectionRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	response := TestConnectionResponse{Success: true, Message: "Connection successful"}
	if err := h.dataSourceService.TestConnection(r.Context(), req.Type, req.Config); err != nil {
		response = TestConnectionResponse{Success: false, Message: err.Error()}
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ConnectorTypes handles GET /api/admin/connector-types
func (h *DataSourcesHandler) ConnectorTypes(w http.ResponseWriter, r *http.Request) {
	h.ok(w, http.StatusOK, h.dataSourceService.ConnectorTypes())
}

// PutToolScope handles PUT /api/admin/tool-scopes/{tool}
func (h *DataSourcesHandler) PutToolScope(w http.ResponseWriter, r *http.Request) {
	toolID, ok := parsePathString(w, r, "tool", "invalid_tool_id", "Tool ID is required", h.logger)
	if !ok {
		return
	}
	var req ToolScopeRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	scope := &models.ToolScope{ToolID: toolID, AllowedDataSources: req.AllowedDataSources}
	if err := h.dataSourceService.PutToolScope(r.Context(), scope); err != nil {
		writeServiceError(w, h.logger, err, "tool_scope_failed", "Failed to save tool scope")
		return
	}
	h.ok(w, http.StatusOK, scope)
}

// DeleteToolScope handles DELETE /api/admin/tool-scopes/{tool}
func (h *DataSourcesHandler) DeleteToolScope(w http.ResponseWriter, r *http.Request) {
	toolID, ok := parsePathString(w, r, "tool", "invalid_tool_id", "Tool ID is required", h.logger)
	if !ok {
		return
	}

	if err := h.dataSourceService.DeleteToolScope(r.Context(), toolID); err != nil {
		writeServiceError(w, h.logger, err, "tool_scope_failed", "Failed to delete tool scope")
		return
	}
	h.ok(w, http.StatusOK, nil)
}

func (h *DataSourcesHandler) ok(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (req *DataSourceRequest) input() *services.DataSourceInput {
	return &services.DataSourceInput{
		Name:                 req.Name,
		DisplayName:          req.DisplayName,
		Type:                 req.Type,
		Config:               req.Config,
		GlobalBlockedColumns: req.GlobalBlockedColumns,
		IsActive:             req.IsActive,
	}
}
