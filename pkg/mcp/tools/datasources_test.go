package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/services"
)

type toolResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newDataToolServer(manager *mockConnectorManager, catalog *mockCatalog) *server.MCPServer {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterDataTools(mcpServer, &DataToolDeps{Manager: manager, Catalog: catalog, Logger: zap.NewNop()})
	return mcpServer
}

func callTool(t *testing.T, s *server.MCPServer, ctx context.Context, name string, args map[string]any) toolResponse {
	t.Helper()
	reqBytes, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	resultBytes, err := json.Marshal(s.HandleMessage(ctx, reqBytes))
	require.NoError(t, err)

	var response toolResponse
	require.NoError(t, json.Unmarshal(resultBytes, &response))
	return response
}

func (r toolResponse) text(t *testing.T) string {
	t.Helper()
	require.Nil(t, r.Error, "unexpected protocol error")
	require.NotNil(t, r.Result)
	require.NotEmpty(t, r.Result.Content)
	return r.Result.Content[0].Text
}

func TestRegisterDataTools(t *testing.T) {
	mcpServer := newDataToolServer(&mockConnectorManager{}, &mockCatalog{})

	resultBytes, err := json.Marshal(mcpServer.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))

	names := make(map[string]bool)
	for _, tool := range response.Result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"list_data_sources", "query_data_source", "list_records", "create_record", "update_record", "delete_record"} {
		assert.True(t, names[want], "%s should be registered", want)
	}
}

func TestListDataSourcesTool(t *testing.T) {
	catalog := &mockCatalog{sources: []*services.AccessibleDataSource{
		{ID: uuid.New(), Name: "db-main", Type: models.DataSourceTypePostgres, ReadableTables: []string{"users"}},
	}}
	mcpServer := newDataToolServer(&mockConnectorManager{}, catalog)

	resp := callTool(t, mcpServer, callerContext("sales", "report-bot"), "list_data_sources", nil)

	var body struct {
		DataSources []services.AccessibleDataSource `json:"data_sources"`
		Count       int                             `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "db-main", body.DataSources[0].Name)
	assert.Equal(t, "sales", catalog.department)
	assert.Equal(t, "report-bot", catalog.toolID)
}

func TestListDataSourcesTool_CatalogError(t *testing.T) {
	mcpServer := newDataToolServer(&mockConnectorManager{}, &mockCatalog{err: errors.New("db down")})

	resp := callTool(t, mcpServer, callerContext("sales", ""), "list_data_sources", nil)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "failed to list data sources")
}

func TestQueryDataSourceTool(t *testing.T) {
	manager := &mockConnectorManager{result: &services.ExecuteResult{
		Success:    true,
		Data:       []map[string]any{{"id": float64(7)}},
		RowCount:   1,
		DurationMs: 12,
	}}
	mcpServer := newDataToolServer(manager, &mockCatalog{})
	dsID := uuid.New()

	resp := callTool(t, mcpServer, callerContext("engineering", "report-bot"), "query_data_source", map[string]any{
		"data_source_id": dsID.String(),
		"sql":            "SELECT id FROM users WHERE email = $1",
		"params":         []any{"a@example.com"},
		"timeout_ms":     2500,
	})

	var body executeResponse
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &body))
	assert.False(t, resp.Result.IsError)
	assert.Equal(t, 1, body.RowCount)
	assert.Equal(t, int64(12), body.ExecutionTimeMs)

	call := manager.lastCall()
	assert.Equal(t, dsID, call.DataSourceID)
	assert.Equal(t, models.OperationQuery, call.Operation)
	assert.Equal(t, "user-1", call.UserID)
	assert.Equal(t, "engineering", call.Department)
	assert.Equal(t, "report-bot", call.ToolID)
	assert.Equal(t, []any{"a@example.com"}, call.Params)
	assert.Equal(t, 2500*time.Millisecond, call.Timeout)
}

func TestQueryDataSourceTool_DenialIsToolResult(t *testing.T) {
	manager := &mockConnectorManager{result: &services.ExecuteResult{
		Code:  services.CodeForbidden,
		Error: "Table not allowed: payroll",
	}}
	mcpServer := newDataToolServer(manager, &mockCatalog{})

	resp := callTool(t, mcpServer, callerContext("engineering", ""), "query_data_source", map[string]any{
		"data_source_id": uuid.NewString(),
		"sql":            "SELECT * FROM payroll",
	})

	var body ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &body))
	assert.True(t, resp.Result.IsError)
	assert.Equal(t, "forbidden", body.Code)
	assert.Equal(t, "Table not allowed: payroll", body.Message)
}

func TestQueryDataSourceTool_UnencodableRowsIsBackendError(t *testing.T) {
	manager := &mockConnectorManager{result: &services.ExecuteResult{
		Success:  true,
		Data:     []map[string]any{{"ratio": math.NaN()}},
		RowCount: 1,
	}}
	mcpServer := newDataToolServer(manager, &mockCatalog{})

	resp := callTool(t, mcpServer, callerContext("engineering", ""), "query_data_source", map[string]any{
		"data_source_id": uuid.NewString(),
		"sql":            "SELECT ratio FROM metrics",
	})

	var body ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &body))
	assert.True(t, resp.Result.IsError)
	assert.Equal(t, "backend_error", body.Code)
}

func TestDataTools_InvalidDataSourceID(t *testing.T) {
	manager := &mockConnectorManager{}
	mcpServer := newDataToolServer(manager, &mockCatalog{})

	for _, args := range []map[string]any{{}, {"data_source_id": "not-a-uuid"}} {
		resp := callTool(t, mcpServer, callerContext("engineering", ""), "list_records", args)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &body))
		assert.Equal(t, "invalid_request", body.Code)
	}
	assert.Empty(t, manager.calls)
}

func TestDataTools_RequireAuthentication(t *testing.T) {
	manager := &mockConnectorManager{}
	mcpServer := newDataToolServer(manager, &mockCatalog{})

	resp := callTool(t, mcpServer, context.Background(), "query_data_source", map[string]any{
		"data_source_id": uuid.NewString(),
		"sql":            "SELECT 1",
	})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "authentication required")
	assert.Empty(t, manager.calls)
}

func TestListRecordsTool(t *testing.T) {
	manager := &mockConnectorManager{}
	mcpServer := newDataToolServer(manager, &mockCatalog{})

	callTool(t, mcpServer, callerContext("engineering", ""), "list_records", map[string]any{
		"data_source_id": uuid.NewString(),
		"resource":       "public.users",
		"filters":        map[string]any{"status": "active"},
		"limit":          50,
		"offset":         10,
	})

	call := manager.lastCall()
	assert.Equal(t, models.OperationList, call.Operation)
	assert.Equal(t, "public.users", call.Resource)
	assert.Equal(t, map[string]any{"status": "active"}, call.Filters)
	assert.Equal(t, 50, call.Limit)
	assert.Equal(t, 10, call.Offset)
}

func TestWriteTools(t *testing.T) {
	tests := []struct {
		tool  string
		args  map[string]any
		op    models.Operation
		data  bool
		where bool
	}{
		{"create_record", map[string]any{"resource": "tickets", "data": map[string]any{"title": "x"}}, models.OperationCreate, true, false},
		{"update_record", map[string]any{"resource": "tickets", "data": map[string]any{"title": "y"}, "where": map[string]any{"id": 1}}, models.OperationUpdate, true, true},
		{"delete_record", map[string]any{"resource": "tickets", "where": map[string]any{"id": 1}}, models.OperationDelete, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			manager := &mockConnectorManager{}
			mcpServer := newDataToolServer(manager, &mockCatalog{})
			tt.args["data_source_id"] = uuid.NewString()

			resp := callTool(t, mcpServer, callerContext("support", ""), tt.tool, tt.args)
			assert.False(t, resp.Result.IsError)

			call := manager.lastCall()
			assert.Equal(t, tt.op, call.Operation)
			assert.Equal(t, "tickets", call.Resource)
			assert.Equal(t, tt.data, call.Data != nil)
			assert.Equal(t, tt.where, call.Where != nil)
		})
	}
}
