package mysql

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

var (
	_ datasource.Connector          = (*Connector)(nil)
	_ datasource.SchemaIntrospector = (*Connector)(nil)
)

// Register adds the MySQL factory to reg.
func Register(reg *datasource.Registry) {
	reg.Register(datasource.ConnectorInfo{
		Type:        models.DataSourceTypeMySQL,
		DisplayName: "MySQL",
		Description: "Read-only access to MySQL 8+ and MariaDB",
	}, func(config map[string]any, logger *zap.Logger) (datasource.Connector, error) {
		cfg, err := FromMap(config)
		if err != nil {
			return nil, err
		}
		return New(cfg, logger), nil
	})
}
