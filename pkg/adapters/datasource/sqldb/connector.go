package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
)

// Opener opens a database/sql handle. The connector pings it.
type Opener func(ctx context.Context) (*sql.DB, error)

// Connector implements the read-only relational contract over an Engine.
// Backend packages embed it and supply an Opener and a Dialect.
type Connector struct {
	name    string
	open    Opener
	dialect Dialect
	logger  *zap.Logger

	mu     sync.RWMutex
	engine *Engine
}

var (
	_ datasource.Connector          = (*Connector)(nil)
	_ datasource.SchemaIntrospector = (*Connector)(nil)
)

// NewConnector creates an unconnected connector. name appears in errors.
func NewConnector(name string, open Opener, dialect Dialect, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{name: name, open: open, dialect: dialect, logger: logger}
}

// Attach installs an already-open handle, replacing any current one.
func (c *Connector) Attach(db *sql.DB) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = NewEngine(db, c.dialect, c.logger)
}

func (c *Connector) dial(ctx context.Context) (*Engine, error) {
	db, err := c.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.name, err)
	}
	engine := NewEngine(db, c.dialect, c.logger)
	if err := engine.Ping(ctx); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("connect to %s: %w", c.name, err)
	}
	return engine, nil
}

// Connect opens and pings the database. Calling it on a connected connector
// is a no-op.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		return nil
	}
	engine, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

// Disconnect closes the handle.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return nil
	}
	err := c.engine.Close()
	c.engine = nil
	return err
}

// TestConnection pings an open handle, or opens and closes a temporary one.
func (c *Connector) TestConnection(ctx context.Context) bool {
	if engine := c.current(); engine != nil {
		return engine.Ping(ctx) == nil
	}
	engine, err := c.dial(ctx)
	if err != nil {
		c.logger.Debug("connection test failed", zap.String("backend", c.name), zap.Error(err))
		return false
	}
	_ = engine.Close()
	return true
}

func (c *Connector) Capabilities() datasource.Capabilities {
	return datasource.Capabilities{CanQuery: true, CanList: true}
}

func (c *Connector) current() *Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

func (c *Connector) connected() (*Engine, error) {
	engine := c.current()
	if engine == nil {
		return nil, apperrors.ErrNotConnected
	}
	return engine, nil
}

func (c *Connector) Query(ctx context.Context, req datasource.QueryRequest) (*datasource.Result, error) {
	if _, denied := CheckQuery(req); denied != nil {
		return denied, nil
	}
	engine, err := c.connected()
	if err != nil {
		return nil, err
	}
	return engine.Query(ctx, req)
}

func (c *Connector) List(ctx context.Context, req datasource.ListRequest) (*datasource.Result, error) {
	engine, err := c.connected()
	if err != nil {
		return nil, err
	}
	return engine.List(ctx, req)
}

func (c *Connector) GetSchema(ctx context.Context) ([]datasource.Table, error) {
	engine, err := c.connected()
	if err != nil {
		return nil, err
	}
	return engine.GetSchema(ctx)
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
