package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
)

// PoolStatsProvider reports live connector pool statistics.
type PoolStatsProvider interface {
	Stats() datasource.PoolStats
}

type healthResult struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Connectors int    `json:"connectors"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and live connector count. pool may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, pool PoolStatsProvider) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		health := healthResult{Status: "ok", Version: version}
		if pool != nil {
			health.Connectors = pool.Stats().TotalConnectors
		}
		result, err := json.Marshal(health)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
