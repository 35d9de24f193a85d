package mysql

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource/sqldb"
)

// Connector is a read-only MySQL backend.
type Connector struct {
	*sqldb.Connector
}

// New creates an unconnected connector.
func New(cfg *Config, logger *zap.Logger) *Connector {
	open := func(context.Context) (*sql.DB, error) {
		db, err := sql.Open("mysql", cfg.DSN())
		if err != nil {
			return nil, err
		}
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		return db, nil
	}
	return &Connector{Connector: sqldb.NewConnector("mysql", open, dialect{}, logger)}
}

// NewWithDB wraps an already-open handle.
func NewWithDB(db *sql.DB, logger *zap.Logger) *Connector {
	c := New(&Config{}, logger)
	c.Attach(db)
	return c
}
