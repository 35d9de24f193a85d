package datasource

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

// ConnectorInfo describes a registered connector type for UI discovery.
type ConnectorInfo struct {
	Type        models.DataSourceType `json:"type"`
	DisplayName string                `json:"display_name"`
	Description string                `json:"description"`
}

// Factory builds an unconnected connector from a decrypted data source config.
type Factory func(config map[string]any, logger *zap.Logger) (Connector, error)

type registration struct {
	info    ConnectorInfo
	factory Factory
}

// Registry maps backend types to connector factories.
// It holds no connection, pooling or permission logic.
type Registry struct {
	mu      sync.RWMutex
	entries map[models.DataSourceType]registration
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. Each connector package exposes a
// Register(*Registry) function that is called once at startup.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[models.DataSourceType]registration),
		logger:  logger,
	}
}

// Register stores a factory for the given type, replacing any existing one.
func (r *Registry) Register(info ConnectorInfo, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[info.Type] = registration{info: info, factory: factory}
}

// Create instantiates an unconnected connector for dsType.
func (r *Registry) Create(dsType models.DataSourceType, config map[string]any) (Connector, error) {
	r.mu.RLock()
	reg, ok := r.entries[dsType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownConnectorType, dsType)
	}
	if config == nil {
		config = map[string]any{}
	}
	return reg.factory(config, r.logger.Named(string(dsType)))
}

// Has reports whether a factory is registered for dsType.
func (r *Registry) Has(dsType models.DataSourceType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[dsType]
	return ok
}

// Types returns the registered backend types in sorted order.
func (r *Registry) Types() []models.DataSourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.DataSourceType, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Infos returns display info for every registered type, sorted by type.
func (r *Registry) Infos() []ConnectorInfo {
	types := r.Types()

	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ConnectorInfo, 0, len(types))
	for _, t := range types {
		infos = append(infos, r.entries[t].info)
	}
	return infos
}
