package tools

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/auth"
	"github.com/ekaya-inc/ekaya-datagate/pkg/services"
)

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
	return &services.ExecuteResult{Success: true}
}

func (m *mockConnectorManager) RemoveConnector(id uuid.UUID) error { return nil }

func (m *mockConnectorManager) DisconnectAll() {}

func (m *mockConnectorManager) Stats() datasource.PoolStats { return m.stats }

func (m *mockConnectorManager) lastCall() services.ExecuteParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return services.ExecuteParams{}
	}
	return m.calls[len(m.calls)-1]
}

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

func callerContext(department, toolID string) context.Context {
	claims := &auth.Claims{Department: department, ToolID: toolID}
	claims.Subject = "user-1"
	return auth.WithClaims(context.Background(), claims, "token")
}
