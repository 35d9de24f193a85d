package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource/sqldb"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/logging"
)

// Options are process-wide defaults applied to every Postgres data source.
type Options struct {
	MaxConns int32
	MinConns int32
}

// Connector is a read-only PostgreSQL backend over a pgx pool.
type Connector struct {
	cfg    *Config
	opts   Options
	logger *zap.Logger

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

var (
	_ datasource.Connector          = (*Connector)(nil)
	_ datasource.SchemaIntrospector = (*Connector)(nil)
)

// New creates an unconnected connector.
func New(cfg *Config, opts Options, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, opts: opts, logger: logger}
}

func (c *Connector) dial(ctx context.Context) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(c.cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if n := firstPositive(c.cfg.MaxConns, c.opts.MaxConns); n > 0 {
		poolCfg.MaxConns = n
	}
	if n := firstPositive(c.cfg.MinConns, c.opts.MinConns); n > 0 {
		poolCfg.MinConns = n
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return pool, nil
}

// Connect opens the pool and verifies it with a ping.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		return nil
	}
	pool, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.pool = pool
	return nil
}

// Disconnect closes the pool.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
	return nil
}

// TestConnection pings the open pool, or opens and closes a temporary one.
func (c *Connector) TestConnection(ctx context.Context) bool {
	if pool := c.current(); pool != nil {
		return pool.Ping(ctx) == nil
	}
	pool, err := c.dial(ctx)
	if err != nil {
		c.logger.Debug("postgres connection test failed", zap.String("error", logging.SanitizeError(err)))
		return false
	}
	pool.Close()
	return true
}

func (c *Connector) Capabilities() datasource.Capabilities {
	return datasource.Capabilities{CanQuery: true, CanList: true}
}

func (c *Connector) current() *pgxpool.Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

func (c *Connector) connected() (*pgxpool.Pool, error) {
	pool := c.current()
	if pool == nil {
		return nil, apperrors.ErrNotConnected
	}
	return pool, nil
}

// Query runs a guarded SELECT. pgx binds Params natively as $1, $2, ...
func (c *Connector) Query(ctx context.Context, req datasource.QueryRequest) (*datasource.Result, error) {
	statement, denied := sqldb.CheckQuery(req)
	if denied != nil {
		return denied, nil
	}
	pool, err := c.connected()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := datasource.RunWithTimeout(ctx, req.Timeout, func(ctx context.Context) ([]map[string]any, error) {
		return queryMaps(ctx, pool, statement, req.Params...)
	})
	if err != nil {
		c.logger.Debug("query failed",
			zap.String("sql", logging.SanitizeQuery(statement)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, err
	}
	return datasource.Rows(datasource.FilterBlockedColumns(rows, req.BlockedColumns), time.Since(start)), nil
}

// List returns user tables when Resource is empty, otherwise a bounded page
// of the resource's rows.
func (c *Connector) List(ctx context.Context, req datasource.ListRequest) (*datasource.Result, error) {
	pool, err := c.connected()
	if err != nil {
		return nil, err
	}
	start := time.Now()

	if req.Resource == "" {
		tables, err := datasource.RunWithTimeout(ctx, req.Timeout, func(ctx context.Context) ([][2]string, error) {
			return listTables(ctx, pool)
		})
		if err != nil {
			return nil, err
		}
		return datasource.Rows(sqldb.TableRows(tables, req.AllowedTables), time.Since(start)), nil
	}

	if denied := sqldb.CheckListResource(req); denied != nil {
		return denied, nil
	}
	statement, args, err := sqldb.BuildListQuery(dialect{}, req.Resource, req.Filters, req.Limit, req.Offset)
	if err != nil {
		return datasource.Denied(err.Error()), nil
	}

	rows, err := datasource.RunWithTimeout(ctx, req.Timeout, func(ctx context.Context) ([]map[string]any, error) {
		return queryMaps(ctx, pool, statement, args...)
	})
	if err != nil {
		return nil, err
	}
	return datasource.Rows(datasource.FilterBlockedColumns(rows, req.BlockedColumns), time.Since(start)), nil
}

// GetSchema introspects user tables, columns, nullability and primary keys.
func (c *Connector) GetSchema(ctx context.Context) ([]datasource.Table, error) {
	pool, err := c.connected()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, dialect{}.ColumnsQuery())
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (datasource.SchemaColumn, error) {
		var (
			col      datasource.SchemaColumn
			nullable string
			primary  int32
		)
		err := row.Scan(&col.Schema, &col.Table, &col.Name, &col.DataType, &nullable, &primary)
		col.IsNullable = nullable == "YES"
		col.IsPrimary = primary == 1
		return col, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}
	return datasource.GroupSchemaColumns(cols), nil
}

func (c *Connector) Create(context.Context, datasource.WriteRequest) (*datasource.Result, error) {
	return datasource.Unsupported("create"), nil
}

func (c *Connector) Update(context.Context, datasource.WriteRequest) (*datasource.Result, error) {
	return datasource.Unsupported("update"), nil
}

func (c *Connector) Delete(context.Context, datasource.WriteRequest) (*datasource.Result, error) {
	return datasource.Unsupported("delete"), nil
}

func queryMaps(ctx context.Context, pool *pgxpool.Pool, statement string, args ...any) ([]map[string]any, error) {
	rows, err := pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	for _, m := range maps {
		normalizeRow(m)
	}
	return maps, nil
}

func listTables(ctx context.Context, pool *pgxpool.Pool) ([][2]string, error) {
	rows, err := pool.Query(ctx, dialect{}.TablesQuery())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) ([2]string, error) {
		var t [2]string
		err := row.Scan(&t[0], &t[1])
		return t, err
	})
}

// normalizeRow rewrites driver values that do not serialise cleanly.
func normalizeRow(row map[string]any) {
	for k, v := range row {
		if b, ok := v.([16]byte); ok {
			row[k] = uuid.UUID(b).String()
		}
	}
}

func firstPositive(values ...int32) int32 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
