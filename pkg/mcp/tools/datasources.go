package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/services"
)

// DataToolDeps contains dependencies for the data access tools.
type DataToolDeps struct {
	Manager services.ConnectorManager
	Catalog services.Catalog
	Logger  *zap.Logger
}

// RegisterDataTools registers the data access tools. Every tool runs under
// the caller's department permissions and, when the token names a tool, its scope.
func RegisterDataTools(s *server.MCPServer, deps *DataToolDeps) {
	registerListDataSourcesTool(s, deps)
	registerQueryDataSourceTool(s, deps)
	registerListRecordsTool(s, deps)
	registerCreateRecordTool(s, deps)
	registerUpdateRecordTool(s, deps)
	registerDeleteRecordTool(s, deps)
}

func registerListDataSourcesTool(s *server.MCPServer, deps *DataToolDeps) {
	tool := mcp.NewTool(
		"list_data_sources",
		mcp.WithDescription(
			"List the data sources you can read, with readable tables, blocked columns "+
				"and the visible schema. Use the returned id with the other data tools.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		caller, err := requireCaller(ctx)
		if err != nil {
			return nil, err
		}

		sources, err := deps.Catalog.ListAccessible(ctx, caller.Department, caller.ToolID)
		if err != nil {
			return nil, fmt.Errorf("failed to list data sources: %w", err)
		}

		response := struct {
			DataSources []*services.AccessibleDataSource `json:"data_sources"`
			Count       int                              `json:"count"`
		}{DataSources: sources, Count: len(sources)}

		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data sources: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerQueryDataSourceTool(s *server.MCPServer, deps *DataToolDeps) {
	tool := mcp.NewTool(
		"query_data_source",
		mcp.WithDescription(
			"Run a read-only SQL SELECT against a database data source, or call an allow-listed "+
				"endpoint of a REST data source. Use positional placeholders ($1, $2, ...) with params "+
				"instead of inlining values. Only tables you can read may appear in the statement.",
		),
		mcp.WithString("data_source_id", mcp.Required(), mcp.Description("Data source id from list_data_sources")),
		mcp.WithString("sql", mcp.Description("SELECT statement, or the endpoint name for REST data sources")),
		mcp.WithArray("params", mcp.Description("Positional parameter values for the statement")),
		mcp.WithObject("data", mcp.Description("JSON payload for REST endpoints; omit for GET")),
		mcp.WithNumber("timeout_ms", mcp.Description("Per-call timeout in milliseconds (default: 5000)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, errResult, err := baseParams(ctx, req, models.OperationQuery)
		if err != nil || errResult != nil {
			return errResult, err
		}
		params.SQL = getOptionalString(req, "sql")
		params.Params = getOptionalArray(req, "params")
		params.Data = getOptionalObject(req, "data")
		return execute(ctx, deps, params), nil
	})
}

func registerListRecordsTool(s *server.MCPServer, deps *DataToolDeps) {
	tool := mcp.NewTool(
		"list_records",
		mcp.WithDescription(
			"List rows of a readable table with optional equality filters. "+
				"Blocked columns are removed from the result.",
		),
		mcp.WithString("data_source_id", mcp.Required(), mcp.Description("Data source id from list_data_sources")),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Table name, optionally schema-qualified")),
		mcp.WithObject("filters", mcp.Description("Column equality filters as key-value pairs")),
		mcp.WithNumber("limit", mcp.Description("Max rows to return (default: 100, max: 1000)")),
		mcp.WithNumber("offset", mcp.Description("Rows to skip")),
		mcp.WithNumber("timeout_ms", mcp.Description("Per-call timeout in milliseconds (default: 5000)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, errResult, err := baseParams(ctx, req, models.OperationList)
		if err != nil || errResult != nil {
			return errResult, err
		}
		params.Resource = getOptionalString(req, "resource")
		params.Filters = getOptionalObject(req, "filters")
		if limit, ok := getOptionalFloat(req, "limit"); ok {
			params.Limit = int(limit)
		}
		if offset, ok := getOptionalFloat(req, "offset"); ok {
			params.Offset = int(offset)
		}
		return execute(ctx, deps, params), nil
	})
}

func registerCreateRecordTool(s *server.MCPServer, deps *DataToolDeps) {
	tool := mcp.NewTool(
		"create_record",
		mcp.WithDescription("Insert one row into a table you may write. Write-blocked fields are dropped."),
		mcp.WithString("data_source_id", mcp.Required(), mcp.Description("Data source id from list_data_sources")),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Table name")),
		mcp.WithObject("data", mcp.Required(), mcp.Description("Column values for the new row")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, errResult, err := baseParams(ctx, req, models.OperationCreate)
		if err != nil || errResult != nil {
			return errResult, err
		}
		params.Resource = getOptionalString(req, "resource")
		params.Data = getOptionalObject(req, "data")
		return execute(ctx, deps, params), nil
	})
}

func registerUpdateRecordTool(s *server.MCPServer, deps *DataToolDeps) {
	tool := mcp.NewTool(
		"update_record",
		mcp.WithDescription("Update rows matching where in a table you may write. Write-blocked fields are dropped."),
		mcp.WithString("data_source_id", mcp.Required(), mcp.Description("Data source id from list_data_sources")),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Table name")),
		mcp.WithObject("data", mcp.Required(), mcp.Description("Column values to set")),
		mcp.WithObject("where", mcp.Required(), mcp.Description("Equality conditions selecting the rows")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, errResult, err := baseParams(ctx, req, models.OperationUpdate)
		if err != nil || errResult != nil {
			return errResult, err
		}
		params.Resource = getOptionalString(req, "resource")
		params.Data = getOptionalObject(req, "data")
		params.Where = getOptionalObject(req, "where")
		return execute(ctx, deps, params), nil
	})
}

func registerDeleteRecordTool(s *server.MCPServer, deps *DataToolDeps) {
	tool := mcp.NewTool(
		"delete_record",
		mcp.WithDescription("Delete rows matching where from a table you may delete from."),
		mcp.WithString("data_source_id", mcp.Required(), mcp.Description("Data source id from list_data_sources")),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Table name")),
		mcp.WithObject("where", mcp.Required(), mcp.Description("Equality conditions selecting the rows")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, errResult, err := baseParams(ctx, req, models.OperationDelete)
		if err != nil || errResult != nil {
			return errResult, err
		}
		params.Resource = getOptionalString(req, "resource")
		params.Where = getOptionalObject(req, "where")
		return execute(ctx, deps, params), nil
	})
}

// baseParams fills the caller, target and timeout common to every data tool.
func baseParams(ctx context.Context, req mcp.CallToolRequest, op models.Operation) (services.ExecuteParams, *mcp.CallToolResult, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return services.ExecuteParams{}, nil, err
	}
	id, errResult := requireDataSourceID(req)
	if errResult != nil {
		return services.ExecuteParams{}, errResult, nil
	}

	params := services.ExecuteParams{
		DataSourceID: id,
		Operation:    op,
		UserID:       caller.UserID,
		Department:   caller.Department,
		ToolID:       caller.ToolID,
	}
	if ms, ok := getOptionalFloat(req, "timeout_ms"); ok && ms > 0 {
		params.Timeout = time.Duration(ms) * time.Millisecond
	}
	return params, nil, nil
}

type executeResponse struct {
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"row_count"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
}

// execute runs params through the manager. Failures, including denials,
// are tool results so the agent sees the reason.
func execute(ctx context.Context, deps *DataToolDeps, params services.ExecuteParams) *mcp.CallToolResult {
	result := deps.Manager.Execute(ctx, params)
	if !result.Success {
		deps.Logger.Debug("Data tool call failed",
			zap.String("operation", string(params.Operation)),
			zap.String("data_source_id", params.DataSourceID.String()),
			zap.String("code", string(result.Code)))
		return NewErrorResult(string(result.Code), result.Error)
	}

	rows := result.Data
	if rows == nil {
		rows = []map[string]any{}
	}
	jsonResult, err := json.Marshal(executeResponse{
		Rows:            rows,
		RowCount:        result.RowCount,
		ExecutionTimeMs: result.DurationMs,
	})
	if err != nil {
		deps.Logger.Error("Failed to encode data tool result",
			zap.String("operation", string(params.Operation)),
			zap.String("data_source_id", params.DataSourceID.String()),
			zap.Error(err))
		return NewErrorResult(string(services.CodeBackendError), "Result could not be encoded as JSON")
	}
	return mcp.NewToolResultText(string(jsonResult))
}
