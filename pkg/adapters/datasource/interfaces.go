package datasource

import (
	"context"
	"time"
)

// DefaultQueryTimeout bounds a single backend call when the caller does not set one.
const DefaultQueryTimeout = 5 * time.Second

// DefaultListLimit and MaxListLimit bound List results when the connectors
// config leaves them unset.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Capabilities declares which operations a connector supports.
type Capabilities struct {
	CanQuery  bool `json:"can_query"`
	CanList   bool `json:"can_list"`
	CanCreate bool `json:"can_create"`
	CanUpdate bool `json:"can_update"`
	CanDelete bool `json:"can_delete"`
}

// Result is the uniform envelope returned by every connector operation.
// Success=false with a nil Go error is a policy outcome (disallowed table,
// disallowed endpoint, rejected statement); Go errors are reserved for
// infrastructure failures.
type Result struct {
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data,omitempty"`
	Error    string           `json:"error,omitempty"`
	RowCount int              `json:"row_count"`
	Duration time.Duration    `json:"-"`
}

// Denied builds a policy-failure result.
func Denied(reason string) *Result {
	return &Result{Success: false, Error: reason}
}

// Unsupported builds the result returned for an operation the connector does
// not implement.
func Unsupported(op string) *Result {
	return Denied("Operation not supported: " + op)
}

// Rows builds a successful result from rows.
func Rows(rows []map[string]any, elapsed time.Duration) *Result {
	if rows == nil {
		rows = []map[string]any{}
	}
	return &Result{Success: true, Data: rows, RowCount: len(rows), Duration: elapsed}
}

// QueryRequest carries a raw statement. AllowedTables and BlockedColumns are
// injected by the connector manager from the resolved permission.
type QueryRequest struct {
	SQL            string
	Params         []any
	AllowedTables  []string
	BlockedColumns []string
	Timeout        time.Duration
}

// ListRequest lists tables (empty Resource) or rows of one resource.
type ListRequest struct {
	Resource       string
	Filters        map[string]any
	Limit          int
	Offset         int
	AllowedTables  []string
	BlockedColumns []string
	Timeout        time.Duration
}

// WriteRequest targets a single resource for create, update or delete.
// Data is already stripped of write-blocked columns.
type WriteRequest struct {
	Resource string
	Data     map[string]any
	Where    map[string]any
	Timeout  time.Duration
}

// Connector is the capability contract every backend implements.
// Implementations are owned by the connector pool and must be safe for
// concurrent use once connected.
type Connector interface {
	// Connect establishes and validates the backend session.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Safe to call more than once.
	Disconnect() error

	// TestConnection is a best-effort check. It never returns an error.
	TestConnection(ctx context.Context) bool

	// Capabilities returns static flags for the operations below.
	Capabilities() Capabilities

	Query(ctx context.Context, req QueryRequest) (*Result, error)
	List(ctx context.Context, req ListRequest) (*Result, error)
	Create(ctx context.Context, req WriteRequest) (*Result, error)
	Update(ctx context.Context, req WriteRequest) (*Result, error)
	Delete(ctx context.Context, req WriteRequest) (*Result, error)
}

// Table is a discovered table with its columns.
type Table struct {
	Schema  string   `json:"schema"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Column describes a table column for documentation and prompt generation.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
	IsPrimary  bool   `json:"is_primary"`
}

// SchemaIntrospector is implemented by connectors that can describe their schema.
// Schema output is never used for authorization.
type SchemaIntrospector interface {
	GetSchema(ctx context.Context) ([]Table, error)
}
