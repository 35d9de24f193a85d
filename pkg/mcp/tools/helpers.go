package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-datagate/pkg/auth"
)

func arguments(req mcp.CallToolRequest) map[string]any {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return strings.TrimSpace(val)
}

// getOptionalFloat extracts an optional number argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := arguments(req)[key].(float64)
	return val, ok
}

// getOptionalObject extracts an optional JSON object argument from the request.
func getOptionalObject(req mcp.CallToolRequest, key string) map[string]any {
	val, _ := arguments(req)[key].(map[string]any)
	return val
}

// getOptionalArray extracts an optional JSON array argument from the request.
func getOptionalArray(req mcp.CallToolRequest, key string) []any {
	val, _ := arguments(req)[key].([]any)
	return val
}

// requireCaller returns the authenticated caller. A missing identity is a
// protocol error, not a tool result.
func requireCaller(ctx context.Context) (auth.Caller, error) {
	caller, err := auth.ExtractCallerFromContext(ctx)
	if err != nil {
		return auth.Caller{}, fmt.Errorf("authentication required: %w", err)
	}
	return caller, nil
}

// requireDataSourceID parses the data_source_id argument. On failure the
// returned result carries the error for the caller.
func requireDataSourceID(req mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult) {
	raw := getOptionalString(req, "data_source_id")
	if raw == "" {
		return uuid.Nil, NewErrorResult("invalid_request", "data_source_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_request", "data_source_id must be a UUID")
	}
	return id, nil
}
