package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/logging"
)

// Engine runs read-only operations over a database/sql handle.
type Engine struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewEngine wraps an open handle. The engine does not own db until Close is
// called.
func NewEngine(db *sql.DB, dialect Dialect, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, dialect: dialect, logger: logger}
}

// Ping checks the handle with a trivial round trip.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.db == nil {
		return apperrors.ErrNotConnected
	}
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying handle.
func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Query runs a guarded SELECT and redacts blocked columns.
func (e *Engine) Query(ctx context.Context, req datasource.QueryRequest) (*datasource.Result, error) {
	statement, denied := CheckQuery(req)
	if denied != nil {
		return denied, nil
	}

	start := time.Now()
	rows, err := datasource.RunWithTimeout(ctx, req.Timeout, func(ctx context.Context) ([]map[string]any, error) {
		return e.queryMaps(ctx, statement, req.Params...)
	})
	if err != nil {
		e.logger.Debug("query failed",
			zap.String("sql", logging.SanitizeQuery(statement)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, err
	}
	return datasource.Rows(datasource.FilterBlockedColumns(rows, req.BlockedColumns), time.Since(start)), nil
}

// List returns user tables when Resource is empty, otherwise a bounded page
// of the resource's rows.
func (e *Engine) List(ctx context.Context, req datasource.ListRequest) (*datasource.Result, error) {
	start := time.Now()

	if req.Resource == "" {
		tables, err := datasource.RunWithTimeout(ctx, req.Timeout, e.listTables)
		if err != nil {
			return nil, err
		}
		return datasource.Rows(TableRows(tables, req.AllowedTables), time.Since(start)), nil
	}

	if denied := CheckListResource(req); denied != nil {
		return denied, nil
	}
	statement, args, err := BuildListQuery(e.dialect, req.Resource, req.Filters, req.Limit, req.Offset)
	if err != nil {
		return datasource.Denied(err.Error()), nil
	}

	rows, err := datasource.RunWithTimeout(ctx, req.Timeout, func(ctx context.Context) ([]map[string]any, error) {
		return e.queryMaps(ctx, statement, args...)
	})
	if err != nil {
		return nil, err
	}
	return datasource.Rows(datasource.FilterBlockedColumns(rows, req.BlockedColumns), time.Since(start)), nil
}

// GetSchema introspects user tables and their columns.
func (e *Engine) GetSchema(ctx context.Context) ([]datasource.Table, error) {
	if e == nil || e.db == nil {
		return nil, apperrors.ErrNotConnected
	}
	rows, err := e.db.QueryContext(ctx, e.dialect.ColumnsQuery())
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var cols []datasource.SchemaColumn
	for rows.Next() {
		var (
			c        datasource.SchemaColumn
			nullable string
			primary  int
		)
		if err := rows.Scan(&c.Schema, &c.Table, &c.Name, &c.DataType, &nullable, &primary); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.IsNullable = nullable == "YES"
		c.IsPrimary = primary == 1
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return datasource.GroupSchemaColumns(cols), nil
}

func (e *Engine) listTables(ctx context.Context) ([][2]string, error) {
	if e == nil || e.db == nil {
		return nil, apperrors.ErrNotConnected
	}
	rows, err := e.db.QueryContext(ctx, e.dialect.TablesQuery())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables [][2]string
	for rows.Next() {
		var t [2]string
		if err := rows.Scan(&t[0], &t[1]); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (e *Engine) queryMaps(ctx context.Context, statement string, args ...any) ([]map[string]any, error) {
	if e == nil || e.db == nil {
		return nil, apperrors.ErrNotConnected
	}
	rows, err := e.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return ScanMaps(rows)
}

// ScanMaps reads every row into a column-keyed map. Byte slices become
// strings, which is how text columns arrive from most drivers.
func ScanMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}
