package models

import (
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of access requested against a data source.
type Operation string

const (
	OperationQuery  Operation = "query"
	OperationList   Operation = "list"
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ApiLog is one audit row per execute call. Stored in api_logs.
// Rows are append-only: nothing in this service updates or deletes them.
type ApiLog struct {
	ID           uuid.UUID      `json:"id"`
	DataSourceID uuid.UUID      `json:"data_source_id"`
	UserID       string         `json:"user_id"`
	Department   string         `json:"department"`
	ToolID       *string        `json:"tool_id,omitempty"`
	Operation    Operation      `json:"operation"`
	Target       string         `json:"target"` // SQL text or resource name
	Params       map[string]any `json:"params,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	RowCount     int            `json:"row_count"`
	DurationMs   int64          `json:"duration_ms"`
	CreatedAt    time.Time      `json:"created_at"`
}
