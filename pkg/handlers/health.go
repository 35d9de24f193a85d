package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/config"
)

// PoolStatsProvider reports live connector pool statistics.
type PoolStatsProvider interface {
	Stats() datasource.PoolStats
}

// DatabaseChecker reports whether the metadata database is reachable.
type DatabaseChecker interface {
	Check(ctx context.Context) error
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status     string                `json:"status"`
	Database   string                `json:"database,omitempty"`
	Connectors *datasource.PoolStats `json:"connectors,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	pool   PoolStatsProvider
	db     DatabaseChecker
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. pool and db may be nil.
func NewHealthHandler(cfg *config.Config, pool PoolStatsProvider, db DatabaseChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, pool: pool, db: db, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// An unreachable metadata database reports "degraded" with 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := HealthResponse{Status: "ok"}
	if h.db != nil {
		response.Database = "ok"
		if err := h.db.Check(r.Context()); err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			response.Status = "degraded"
			response.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.pool != nil {
		stats := h.pool.Stats()
		response.Connectors = &stats
	}
	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-datagate",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
