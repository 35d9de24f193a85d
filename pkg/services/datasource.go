package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/logging"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/repositories"
)

// ConfigSealer encrypts and decrypts data source configs at rest.
type ConfigSealer interface {
	ConfigOpener
	Seal(config map[string]any) (string, error)
}

// DataSourceInput carries the admin-editable fields of a data source.
// A nil Config on update keeps the stored config.
type DataSourceInput struct {
	Name                 string                `json:"name"`
	DisplayName          string                `json:"display_name"`
	Type                 models.DataSourceType `json:"type"`
	Config               map[string]any        `json:"config"`
	GlobalBlockedColumns []string              `json:"global_blocked_columns"`
	IsActive             *bool                 `json:"is_active,omitempty"`
}

// DataSourceService defines admin operations on data sources, their
// permission rows and tool scopes.
type DataSourceService interface {
	// Create validates the type against the registry and stores the config sealed.
	Create(ctx context.Context, input *DataSourceInput) (*models.DataSource, error)

	// Get returns the data source with its permission rows and decrypted config.
	Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error)

	// List returns every data source, active or not, without configs.
	List(ctx context.Context) ([]*models.DataSource, error)

	// Update replaces mutable fields and evicts the pooled connector.
	Update(ctx context.Context, id uuid.UUID, input *DataSourceInput) (*models.DataSource, error)

	// SetActive toggles the data source. Deactivation evicts the pooled connector.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// Delete removes the data source and its permission rows.
	Delete(ctx context.Context, id uuid.UUID) error

	// PutPermission creates or replaces the row for (data source, department).
	PutPermission(ctx context.Context, perm *models.DataSourcePermission) (*models.DataSourcePermission, error)

	// DeletePermission removes the row for (data source, department).
	DeletePermission(ctx context.Context, dataSourceID uuid.UUID, department string) error

	// PutToolScope replaces a tool's data source allow-list.
	PutToolScope(ctx context.Context, scope *models.ToolScope) error

	// DeleteToolScope removes a tool's allow-list, leaving it unrestricted.
	DeleteToolScope(ctx context.Context, toolID string) error

	// TestConnection builds a throwaway connector and tries it. Nothing is saved.
	TestConnection(ctx context.Context, dsType models.DataSourceType, config map[string]any) error

	// RefreshSchema introspects the backend and stores the table -> columns map.
	RefreshSchema(ctx context.Context, id uuid.UUID) (map[string][]string, error)

	// ConnectorTypes lists the registered backend types.
	ConnectorTypes() []datasource.ConnectorInfo
}

type dataSourceService struct {
	dataSources repositories.DataSourceRepository
	permissions repositories.PermissionRepository
	toolScopes  repositories.ToolScopeRepository
	registry    *datasource.Registry
	manager     ConnectorManager
	sealer      ConfigSealer
	logger      *zap.Logger
}

// NewDataSourceService creates the admin service. The manager is used only to
// evict pooled connectors whose configuration changed.
func NewDataSourceService(
	dataSources repositories.DataSourceRepository,
	permissions repositories.PermissionRepository,
	toolScopes repositories.ToolScopeRepository,
	registry *datasource.Registry,
	manager ConnectorManager,
	sealer ConfigSealer,
	logger *zap.Logger,
) DataSourceService {
	return &dataSourceService{
		dataSources: dataSources,
		permissions: permissions,
		toolScopes:  toolScopes,
		registry:    registry,
		manager:     manager,
		sealer:      sealer,
		logger:      logger.Named("datasources"),
	}
}

var _ DataSourceService = (*dataSourceService)(nil)

func (s *dataSourceService) Create(ctx context.Context, input *DataSourceInput) (*models.DataSource, error) {
	if err := s.validate(input, true); err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(input.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt config: %w", err)
	}

	ds := &models.DataSource{
		Name:                 strings.TrimSpace(input.Name),
		DisplayName:          input.DisplayName,
		Type:                 input.Type,
		Config:               input.Config,
		GlobalBlockedColumns: input.GlobalBlockedColumns,
		IsActive:             true,
	}
	if ds.DisplayName == "" {
		ds.DisplayName = ds.Name
	}
	if input.IsActive != nil {
		ds.IsActive = *input.IsActive
	}

	if err := s.dataSources.Create(ctx, ds, sealed); err != nil {
		return nil, err
	}

	s.logger.Info("Created data source",
		zap.String("id", ds.ID.String()),
		zap.String("name", ds.Name),
		zap.String("type", string(ds.Type)))
	return ds, nil
}

func (s *dataSourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	ds, sealed, err := s.dataSources.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	config, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt config: %w", err)
	}
	ds.Config = config

	perms, err := s.permissions.ListByDataSource(ctx, id)
	if err != nil {
		return nil, err
	}
	ds.Permissions = perms
	return ds, nil
}

func (s *dataSourceService) List(ctx context.Context) ([]*models.DataSource, error) {
	return s.dataSources.List(ctx)
}

func (s *dataSourceService) Update(ctx context.Context, id uuid.UUID, input *DataSourceInput) (*models.DataSource, error) {
	ds, _, err := s.dataSources.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Type != "" && input.Type != ds.Type {
		return nil, fmt.Errorf("%w: data source type cannot be changed", apperrors.ErrInvalidInput)
	}
	input.Type = ds.Type
	if err := s.validate(input, false); err != nil {
		return nil, err
	}

	var sealed string
	if input.Config != nil {
		if sealed, err = s.sealer.Seal(input.Config); err != nil {
			return nil, fmt.Errorf("failed to encrypt config: %w", err)
		}
	}

	ds.Name = strings.TrimSpace(input.Name)
	if input.DisplayName != "" {
		ds.DisplayName = input.DisplayName
	}
	if input.GlobalBlockedColumns != nil {
		ds.GlobalBlockedColumns = input.GlobalBlockedColumns
	}
	if input.IsActive != nil {
		ds.IsActive = *input.IsActive
	}

	if err := s.dataSources.Update(ctx, ds, sealed); err != nil {
		return nil, err
	}
	s.evict(id)

	s.logger.Info("Updated data source",
		zap.String("id", id.String()),
		zap.String("name", ds.Name),
		zap.Bool("config_changed", sealed != ""))
	return ds, nil
}

func (s *dataSourceService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.dataSources.SetActive(ctx, id, active); err != nil {
		return err
	}
	if !active {
		s.evict(id)
	}
	s.logger.Info("Changed data source state",
		zap.String("id", id.String()),
		zap.Bool("active", active))
	return nil
}

func (s *dataSourceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.dataSources.Delete(ctx, id); err != nil {
		return err
	}
	s.evict(id)
	s.logger.Info("Deleted data source", zap.String("id", id.String()))
	return nil
}

func (s *dataSourceService) PutPermission(ctx context.Context, perm *models.DataSourcePermission) (*models.DataSourcePermission, error) {
	perm.Department = strings.TrimSpace(perm.Department)
	if perm.Department == "" {
		return nil, fmt.Errorf("%w: department is required", apperrors.ErrInvalidInput)
	}
	if _, _, err := s.dataSources.GetByID(ctx, perm.DataSourceID); err != nil {
		return nil, err
	}
	if err := s.permissions.Upsert(ctx, perm); err != nil {
		return nil, err
	}

	s.logger.Info("Stored permission",
		zap.String("data_source_id", perm.DataSourceID.String()),
		zap.String("department", perm.Department),
		zap.Int("readable_tables", len(perm.ReadableTables)))
	return perm, nil
}

func (s *dataSourceService) DeletePermission(ctx context.Context, dataSourceID uuid.UUID, department string) error {
	if err := s.permissions.Delete(ctx, dataSourceID, department); err != nil {
		return err
	}
	s.logger.Info("Deleted permission",
		zap.String("data_source_id", dataSourceID.String()),
		zap.String("department", department))
	return nil
}

func (s *dataSourceService) PutToolScope(ctx context.Context, scope *models.ToolScope) error {
	if strings.TrimSpace(scope.ToolID) == "" {
		return fmt.Errorf("%w: tool_id is required", apperrors.ErrInvalidInput)
	}
	return s.toolScopes.Upsert(ctx, scope)
}

func (s *dataSourceService) DeleteToolScope(ctx context.Context, toolID string) error {
	return s.toolScopes.Delete(ctx, toolID)
}

func (s *dataSourceService) TestConnection(ctx context.Context, dsType models.DataSourceType, config map[string]any) error {
	conn, err := s.registry.Create(dsType, config)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnknownConnectorType) {
			return fmt.Errorf("%w: no connector registered for type %q", apperrors.ErrInvalidInput, dsType)
		}
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, logging.SanitizeError(err))
	}
	defer func() { _ = conn.Disconnect() }()

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %s", logging.SanitizeError(err))
	}
	if !conn.TestConnection(ctx) {
		return errors.New("connection test failed")
	}
	return nil
}

func (s *dataSourceService) RefreshSchema(ctx context.Context, id uuid.UUID) (map[string][]string, error) {
	ds, sealed, err := s.dataSources.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	config, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt config: %w", err)
	}

	conn, err := s.registry.Create(ds.Type, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}
	defer func() { _ = conn.Disconnect() }()

	introspector, ok := conn.(datasource.SchemaIntrospector)
	if !ok {
		return nil, fmt.Errorf("%w: %s data sources do not expose a schema", apperrors.ErrInvalidInput, ds.Type)
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %s", logging.SanitizeError(err))
	}

	tables, err := introspector.GetSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %s", logging.SanitizeError(err))
	}
	ds.Schema = SchemaMap(tables)

	if err := s.dataSources.Update(ctx, ds, ""); err != nil {
		return nil, err
	}

	s.logger.Info("Refreshed data source schema",
		zap.String("id", id.String()),
		zap.Int("tables", len(ds.Schema)))
	return ds.Schema, nil
}

func (s *dataSourceService) ConnectorTypes() []datasource.ConnectorInfo {
	return s.registry.Infos()
}

func (s *dataSourceService) validate(input *DataSourceInput, creating bool) error {
	if input == nil {
		return fmt.Errorf("%w: request body is required", apperrors.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: data source name is required", apperrors.ErrInvalidInput)
	}
	if !creating {
		return nil
	}
	if input.Type == "" {
		return fmt.Errorf("%w: data source type is required", apperrors.ErrInvalidInput)
	}
	if !input.Type.IsValid() {
		return fmt.Errorf("%w: unknown data source type %q", apperrors.ErrInvalidInput, input.Type)
	}
	if !s.registry.Has(input.Type) {
		return fmt.Errorf("%w: no connector registered for type %q", apperrors.ErrInvalidInput, input.Type)
	}
	return nil
}

func (s *dataSourceService) evict(id uuid.UUID) {
	if s.manager == nil {
		return
	}
	if err := s.manager.RemoveConnector(id); err != nil {
		s.logger.Warn("Failed to disconnect pooled connector",
			zap.String("data_source_id", id.String()),
			zap.String("error", logging.SanitizeError(err)))
	}
}

// SchemaMap flattens introspected tables into table -> column names. A table
// name that appears in more than one schema is keyed schema-qualified.
func SchemaMap(tables []datasource.Table) map[string][]string {
	seen := make(map[string]int, len(tables))
	for _, t := range tables {
		seen[t.Name]++
	}

	out := make(map[string][]string, len(tables))
	for _, t := range tables {
		key := t.Name
		if seen[t.Name] > 1 && t.Schema != "" {
			key = t.Schema + "." + t.Name
		}
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, c.Name)
		}
		out[key] = cols
	}
	return out
}
