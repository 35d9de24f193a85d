package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/repositories"
)

// testConfigKey is a 32-byte key, base64 encoded.
const testConfigKey = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

// mockDataSourceRepository keeps data sources in memory.
type mockDataSourceRepository struct {
	mu      sync.Mutex
	sources map[uuid.UUID]*models.DataSource
	sealed  map[uuid.UUID]string
	getErr  error

	updates int
}

func newMockDataSourceRepository() *mockDataSourceRepository {
	return &mockDataSourceRepository{
		sources: make(map[uuid.UUID]*models.DataSource),
		sealed:  make(map[uuid.UUID]string),
	}
}

func (m *mockDataSourceRepository) add(ds *models.DataSource, sealed string) *models.DataSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	m.sources[ds.ID] = ds
	m.sealed[ds.ID] = sealed
	return ds
}

func (m *mockDataSourceRepository) Create(ctx context.Context, ds *models.DataSource, sealedConfig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sources {
		if existing.Name == ds.Name {
			return apperrors.ErrConflict
		}
	}
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	copied := *ds
	m.sources[ds.ID] = &copied
	m.sealed[ds.ID] = sealedConfig
	return nil
}

func (m *mockDataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, "", m.getErr
	}
	ds, ok := m.sources[id]
	if !ok {
		return nil, "", apperrors.ErrNotFound
	}
	copied := *ds
	return &copied, m.sealed[id], nil
}

func (m *mockDataSourceRepository) GetByName(ctx context.Context, name string) (*models.DataSource, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ds := range m.sources {
		if ds.Name == name {
			copied := *ds
			return &copied, m.sealed[id], nil
		}
	}
	return nil, "", apperrors.ErrNotFound
}

func (m *mockDataSourceRepository) List(ctx context.Context) ([]*models.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DataSource, 0, len(m.sources))
	for _, ds := range m.sources {
		copied := *ds
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockDataSourceRepository) Update(ctx context.Context, ds *models.DataSource, sealedConfig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[ds.ID]; !ok {
		return apperrors.ErrNotFound
	}
	copied := *ds
	m.sources[ds.ID] = &copied
	if sealedConfig != "" {
		m.sealed[ds.ID] = sealedConfig
	}
	m.updates++
	return nil
}

func (m *mockDataSourceRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.sources[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	ds.IsActive = active
	return nil
}

func (m *mockDataSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.sources, id)
	delete(m.sealed, id)
	return nil
}

var _ repositories.DataSourceRepository = (*mockDataSourceRepository)(nil)

// mockPermissionRepository keeps permission rows in memory.
type mockPermissionRepository struct {
	mu      sync.Mutex
	rows    []*models.DataSourcePermission
	findErr error
}

func (m *mockPermissionRepository) add(p *models.DataSourcePermission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, p)
}

func (m *mockPermissionRepository) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]*models.DataSourcePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DataSourcePermission, 0)
	for _, p := range m.rows {
		if p.DataSourceID == dataSourceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPermissionRepository) FindForDepartment(ctx context.Context, dataSourceID uuid.UUID, department string) ([]*models.DataSourcePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	out := make([]*models.DataSourcePermission, 0)
	for _, p := range m.rows {
		if p.DataSourceID == dataSourceID && (p.Department == department || p.Department == models.WildcardDepartment) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPermissionRepository) ListForDepartment(ctx context.Context, department string) ([]*models.DataSourcePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DataSourcePermission, 0)
	for _, p := range m.rows {
		if p.Department == department || p.Department == models.WildcardDepartment {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPermissionRepository) Upsert(ctx context.Context, p *models.DataSourcePermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.rows {
		if existing.DataSourceID == p.DataSourceID && existing.Department == p.Department {
			p.ID = existing.ID
			m.rows[i] = p
			return nil
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.rows = append(m.rows, p)
	return nil
}

func (m *mockPermissionRepository) Delete(ctx context.Context, dataSourceID uuid.UUID, department string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.rows {
		if existing.DataSourceID == dataSourceID && existing.Department == department {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

var _ repositories.PermissionRepository = (*mockPermissionRepository)(nil)

// mockApiLogRepository records every audit row.
type mockApiLogRepository struct {
	mu        sync.Mutex
	logs      []*models.ApiLog
	createErr error
	ctxErrs   []error
}

func (m *mockApiLogRepository) Create(ctx context.Context, log *models.ApiLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	if m.createErr != nil {
		return m.createErr
	}
	log.ID = uuid.New()
	log.CreatedAt = time.Now()
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockApiLogRepository) List(ctx context.Context, filter repositories.ApiLogFilter) ([]*models.ApiLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ApiLog, len(m.logs))
	copy(out, m.logs)
	return out, nil
}

func (m *mockApiLogRepository) all() []*models.ApiLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ApiLog, len(m.logs))
	copy(out, m.logs)
	return out
}

var _ repositories.ApiLogRepository = (*mockApiLogRepository)(nil)

// mockToolScopeRepository keeps tool scopes in memory.
type mockToolScopeRepository struct {
	mu     sync.Mutex
	scopes map[string]*models.ToolScope
	getErr error
}

func newMockToolScopeRepository() *mockToolScopeRepository {
	return &mockToolScopeRepository{scopes: make(map[string]*models.ToolScope)}
}

func (m *mockToolScopeRepository) Get(ctx context.Context, toolID string) (*models.ToolScope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.scopes[toolID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (m *mockToolScopeRepository) Upsert(ctx context.Context, scope *models.ToolScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[scope.ToolID] = scope
	return nil
}

func (m *mockToolScopeRepository) Delete(ctx context.Context, toolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scopes[toolID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.scopes, toolID)
	return nil
}

var _ repositories.ToolScopeRepository = (*mockToolScopeRepository)(nil)

// mockConnector is a scriptable backend. Queries return rows unless
// queryErr, queryResult or panicWith is set.
type mockConnector struct {
	caps datasource.Capabilities

	connectErr  error
	queryErr    error
	queryResult *datasource.Result
	panicWith   any
	rows        []map[string]any
	testResult  bool
	schema      []datasource.Table

	connects    atomic.Int32
	disconnects atomic.Int32

	mu         sync.Mutex
	lastQuery  datasource.QueryRequest
	lastList   datasource.ListRequest
	lastWrite  datasource.WriteRequest
	queryCalls int
}

func (c *mockConnector) Connect(ctx context.Context) error {
	c.connects.Add(1)
	return c.connectErr
}

func (c *mockConnector) Disconnect() error {
	c.disconnects.Add(1)
	return nil
}

func (c *mockConnector) TestConnection(ctx context.Context) bool { return c.testResult }

func (c *mockConnector) Capabilities() datasource.Capabilities { return c.caps }

func (c *mockConnector) Query(ctx context.Context, req datasource.QueryRequest) (*datasource.Result, error) {
	c.mu.Lock()
	c.lastQuery = req
	c.queryCalls++
	c.mu.Unlock()

	if c.panicWith != nil {
		panic(c.panicWith)
	}
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	if c.queryResult != nil {
		return c.queryResult, nil
	}
	return datasource.Rows(datasource.FilterBlockedColumns(cloneRows(c.rows), req.BlockedColumns), time.Millisecond), nil
}

func (c *mockConnector) List(ctx context.Context, req datasource.ListRequest) (*datasource.Result, error) {
	c.mu.Lock()
	c.lastList = req
	c.mu.Unlock()
	return datasource.Rows(datasource.FilterBlockedColumns(cloneRows(c.rows), req.BlockedColumns), time.Millisecond), nil
}

func (c *mockConnector) Create(ctx context.Context, req datasource.WriteRequest) (*datasource.Result, error) {
	return c.write(req, "create")
}

func (c *mockConnector) Update(ctx context.Context, req datasource.WriteRequest) (*datasource.Result, error) {
	return c.write(req, "update")
}

func (c *mockConnector) Delete(ctx context.Context, req datasource.WriteRequest) (*datasource.Result, error) {
	return c.write(req, "delete")
}

func (c *mockConnector) write(req datasource.WriteRequest, op string) (*datasource.Result, error) {
	c.mu.Lock()
	c.lastWrite = req
	c.mu.Unlock()
	return &datasource.Result{Success: true, Data: []map[string]any{}, RowCount: 1}, nil
}

func (c *mockConnector) GetSchema(ctx context.Context) ([]datasource.Table, error) {
	return c.schema, nil
}

func (c *mockConnector) query() datasource.QueryRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastQuery
}

func (c *mockConnector) list() datasource.ListRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastList
}

func (c *mockConnector) written() datasource.WriteRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastWrite
}

var (
	_ datasource.Connector          = (*mockConnector)(nil)
	_ datasource.SchemaIntrospector = (*mockConnector)(nil)
)

// readOnlyCaps matches the relational connectors.
var readOnlyCaps = datasource.Capabilities{CanQuery: true, CanList: true}

var allCaps = datasource.Capabilities{CanQuery: true, CanList: true, CanCreate: true, CanUpdate: true, CanDelete: true}

func cloneRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		copied := make(map[string]any, len(r))
		for k, v := range r {
			copied[k] = v
		}
		out = append(out, copied)
	}
	return out
}

var errBackendDown = errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
