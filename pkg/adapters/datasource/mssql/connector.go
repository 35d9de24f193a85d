package mssql

import (
	"context"
	"database/sql"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource/sqldb"
)

// Connector is a read-only SQL Server backend.
type Connector struct {
	*sqldb.Connector
}

// New creates an unconnected connector.
func New(cfg *Config, logger *zap.Logger) *Connector {
	open := func(context.Context) (*sql.DB, error) {
		return sql.Open(cfg.DriverName(), cfg.URL())
	}
	return &Connector{Connector: sqldb.NewConnector("sqlserver", open, dialect{}, logger)}
}

// NewWithDB wraps an already-open handle.
func NewWithDB(db *sql.DB, logger *zap.Logger) *Connector {
	c := New(&Config{}, logger)
	c.Attach(db)
	return c
}
