package postgres

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

// Register adds the PostgreSQL factory to reg.
func Register(reg *datasource.Registry, opts Options) {
	reg.Register(datasource.ConnectorInfo{
		Type:        models.DataSourceTypePostgres,
		DisplayName: "PostgreSQL",
		Description: "Read-only access to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
	}, func(config map[string]any, logger *zap.Logger) (datasource.Connector, error) {
		cfg, err := FromMap(config)
		if err != nil {
			return nil, err
		}
		return New(cfg, opts, logger), nil
	})
}
