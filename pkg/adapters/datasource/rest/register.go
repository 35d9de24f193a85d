package rest

import (
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

// Register adds the REST factory to reg. defaultTimeout applies to data
// sources without timeout_ms.
func Register(reg *datasource.Registry, defaultTimeout time.Duration) {
	reg.Register(datasource.ConnectorInfo{
		Type:        models.DataSourceTypeREST,
		DisplayName: "REST API",
		Description: "Allow-listed HTTP JSON endpoints with static headers",
	}, func(config map[string]any, logger *zap.Logger) (datasource.Connector, error) {
		cfg, err := FromMap(config, defaultTimeout)
		if err != nil {
			return nil, err
		}
		return New(cfg, logger), nil
	})
}
