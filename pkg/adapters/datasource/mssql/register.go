package mssql

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

var (
	_ datasource.Connector          = (*Connector)(nil)
	_ datasource.SchemaIntrospector = (*Connector)(nil)
)

// Register adds the SQL Server factory to reg.
func Register(reg *datasource.Registry) {
	reg.Register(datasource.ConnectorInfo{
		Type:        models.DataSourceTypeMSSQL,
		DisplayName: "Microsoft SQL Server",
		Description: "Read-only access to SQL Server 2019+ and Azure SQL Database",
	}, func(config map[string]any, logger *zap.Logger) (datasource.Connector, error) {
		cfg, err := FromMap(config)
		if err != nil {
			return nil, err
		}
		return New(cfg, logger), nil
	})
}
