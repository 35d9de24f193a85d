package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

func TestRegistry_CreateRegistered(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))

	var gotConfig map[string]any
	reg.Register(ConnectorInfo{Type: models.DataSourceTypePostgres, DisplayName: "PostgreSQL"},
		func(config map[string]any, logger *zap.Logger) (Connector, error) {
			gotConfig = config
			return &mockConnector{}, nil
		})

	conn, err := reg.Create(models.DataSourceTypePostgres, map[string]any{"host": "db"})
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, "db", gotConfig["host"])
	assert.True(t, reg.Has(models.DataSourceTypePostgres))
}

func TestRegistry_NilConfigBecomesEmptyMap(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(ConnectorInfo{Type: models.DataSourceTypeREST},
		func(config map[string]any, logger *zap.Logger) (Connector, error) {
			require.NotNil(t, config)
			return &mockConnector{}, nil
		})

	_, err := reg.Create(models.DataSourceTypeREST, nil)
	require.NoError(t, err)
}

func TestRegistry_UnknownType(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))

	conn, err := reg.Create(models.DataSourceTypeSlack, nil)

	assert.Nil(t, conn)
	require.ErrorIs(t, err, apperrors.ErrUnknownConnectorType)
	assert.Contains(t, err.Error(), "slack")
	assert.False(t, reg.Has(models.DataSourceTypeSlack))
}

func TestRegistry_TypesSorted(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	factory := func(map[string]any, *zap.Logger) (Connector, error) { return &mockConnector{}, nil }

	reg.Register(ConnectorInfo{Type: models.DataSourceTypeREST, DisplayName: "REST API"}, factory)
	reg.Register(ConnectorInfo{Type: models.DataSourceTypeMySQL, DisplayName: "MySQL"}, factory)
	reg.Register(ConnectorInfo{Type: models.DataSourceTypePostgres, DisplayName: "PostgreSQL"}, factory)

	assert.Equal(t, []models.DataSourceType{
		models.DataSourceTypeMySQL,
		models.DataSourceTypePostgres,
		models.DataSourceTypeREST,
	}, reg.Types())

	infos := reg.Infos()
	require.Len(t, infos, 3)
	assert.Equal(t, "MySQL", infos[0].DisplayName)
	assert.Equal(t, "REST API", infos[2].DisplayName)
}
