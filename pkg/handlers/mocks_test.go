package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/auth"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/repositories"
	"github.com/ekaya-inc/ekaya-datagate/pkg/services"
)

// mockAuthService accepts every request as the configured claims.
type mockAuthService struct {
	claims *auth.Claims
	err    error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return m.claims, "test-token", nil
}

func (m *mockAuthService) RequireDepartment(claims *auth.Claims) error {
	if claims.Department == "" {
		return auth.ErrMissingDepartment
	}
	return nil
}

func testClaims(department string, roles ...string) *auth.Claims {
	claims := &auth.Claims{Department: department, Roles: roles}
	claims.Subject = "user-1"
	return claims
}

// mockConnectorManager records Execute calls and returns a canned result.
type mockConnectorManager struct {
	mu     sync.Mutex
	calls  []services.ExecuteParams
	result *services.ExecuteResult
	stats  datasource.PoolStats
}

func (m *mockConnectorManager) Execute(ctx context.Context, params services.ExecuteParams) *services.ExecuteResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.result != nil {
		return m.result
	}
	return &services.ExecuteResult{Success: true, Data: []map[string]any{}}
}

func (m *mockConnectorManager) RemoveConnector(id uuid.UUID) error { return nil }

func (m *mockConnectorManager) DisconnectAll() {}

func (m *mockConnectorManager) Stats() datasource.PoolStats { return m.stats }

// mockCatalog returns fixed entries and records the caller.
type mockCatalog struct {
	sources    []*services.AccessibleDataSource
	err        error
	department string
	toolID     string
}

func (m *mockCatalog) ListAccessible(ctx context.Context, department, toolID string) ([]*services.AccessibleDataSource, error) {
	m.department, m.toolID = department, toolID
	if m.err != nil {
		return nil, m.err
	}
	return m.sources, nil
}

// mockDataSourceService is a configurable mock for admin handler tests.
type mockDataSourceService struct {
	dataSource  *models.DataSource
	dataSources []*models.DataSource
	err         error
	testErr     error

	lastInput     *services.DataSourceInput
	lastActive    *bool
	lastPerm      *models.DataSourcePermission
	lastScope     *models.ToolScope
	deletedDept   string
	deletedTool   string
	deletedSource uuid.UUID
}

func (m *mockDataSourceService) Create(ctx context.Context, input *services.DataSourceInput) (*models.DataSource, error) {
	m.lastInput = input
	if m.err != nil {
		return nil, m.err
	}
	return &models.DataSource{ID: uuid.New(), Name: input.Name, Type: input.Type, IsActive: true}, nil
}

func (m *mockDataSourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.dataSource == nil {
		return nil, apperrors.ErrNotFound
	}
	return m.dataSource, nil
}

func (m *mockDataSourceService) List(ctx context.Context) ([]*models.DataSource, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.dataSources, nil
}

func (m *mockDataSourceService) Update(ctx context.Context, id uuid.UUID, input *services.DataSourceInput) (*models.DataSource, error) {
	m.lastInput = input
	if m.err != nil {
		return nil, m.err
	}
	return &models.DataSource{ID: id, Name: input.Name, Type: input.Type}, nil
}

func (m *mockDataSourceService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	m.lastActive = &active
	return m.err
}

func (m *mockDataSourceService) Delete(ctx context.Context, id uuid.UUID) error {
	m.deletedSource = id
	return m.err
}

func (m *mockDataSourceService) PutPermission(ctx context.Context, perm *models.DataSourcePermission) (*models.DataSourcePermission, error) {
	m.lastPerm = perm
	if m.err != nil {
		return nil, m.err
	}
	return perm, nil
}

func (m *mockDataSourceService) DeletePermission(ctx context.Context, dataSourceID uuid.UUID, department string) error {
	m.deletedDept = department
	return m.err
}

func (m *mockDataSourceService) PutToolScope(ctx context.Context, scope *models.ToolScope) error {
	m.lastScope = scope
	return m.err
}

func (m *mockDataSourceService) DeleteToolScope(ctx context.Context, toolID string) error {
	m.deletedTool = toolID
	return m.err
}

func (m *mockDataSourceService) TestConnection(ctx context.Context, dsType models.DataSourceType, config map[string]any) error {
	return m.testErr
}

func (m *mockDataSourceService) RefreshSchema(ctx context.Context, id uuid.UUID) (map[string][]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return map[string][]string{"users": {"id", "email"}}, nil
}

func (m *mockDataSourceService) ConnectorTypes() []datasource.ConnectorInfo {
	return []datasource.ConnectorInfo{{Type: models.DataSourceTypePostgres, DisplayName: "PostgreSQL"}}
}

// mockApiLogRepository returns fixed rows and records the filter.
type mockApiLogRepository struct {
	logs   []*models.ApiLog
	err    error
	filter repositories.ApiLogFilter
}

func (m *mockApiLogRepository) Create(ctx context.Context, log *models.ApiLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockApiLogRepository) List(ctx context.Context, filter repositories.ApiLogFilter) ([]*models.ApiLog, error) {
	m.filter = filter
	if m.err != nil {
		return nil, m.err
	}
	return m.logs, nil
}
