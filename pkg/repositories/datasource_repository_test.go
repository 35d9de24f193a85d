//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/testhelpers"
)

// repoTestContext holds the repositories under test and the shared metadata database.
type repoTestContext struct {
	t           *testing.T
	meta        *testhelpers.MetadataDB
	dataSources DataSourceRepository
	permissions PermissionRepository
	apiLogs     ApiLogRepository
	toolScopes  ToolScopeRepository
}

func setupRepoTest(t *testing.T) *repoTestContext {
	t.Helper()

	meta := testhelpers.GetMetadataDB(t)
	meta.Truncate(t, "api_logs", "tool_scopes", "data_source_permissions", "data_sources")

	return &repoTestContext{
		t:           t,
		meta:        meta,
		dataSources: NewDataSourceRepository(meta.DB),
		permissions: NewPermissionRepository(meta.DB),
		apiLogs:     NewApiLogRepository(meta.DB),
		toolScopes:  NewToolScopeRepository(meta.DB),
	}
}

func (tc *repoTestContext) createDataSource(name string) *models.DataSource {
	tc.t.Helper()
	ds := &models.DataSource{
		Name:                 name,
		DisplayName:          "Test " + name,
		Type:                 models.DataSourceTypePostgres,
		Schema:               map[string][]string{"employees": {"id", "name", "salary"}},
		GlobalBlockedColumns: []string{"ssn"},
		IsActive:             true,
	}
	require.NoError(tc.t, tc.dataSources.Create(context.Background(), ds, "v1:abcd1234:sealed"))
	return ds
}

func TestDataSourceRepository_CreateAndGet(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()

	ds := tc.createDataSource("hr_db")
	assert.NotEqual(t, uuid.Nil, ds.ID)

	got, sealed, err := tc.dataSources.GetByID(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1:abcd1234:sealed", sealed)
	assert.Equal(t, "hr_db", got.Name)
	assert.Equal(t, models.DataSourceTypePostgres, got.Type)
	assert.Equal(t, []string{"ssn"}, got.GlobalBlockedColumns)
	assert.Equal(t, map[string][]string{"employees": {"id", "name", "salary"}}, got.Schema)
	assert.True(t, got.IsActive)

	byName, _, err := tc.dataSources.GetByName(ctx, "hr_db")
	require.NoError(t, err)
	assert.Equal(t, ds.ID, byName.ID)
}

func TestDataSourceRepository_NotFound(t *testing.T) {
	tc := setupRepoTest(t)

	_, _, err := tc.dataSources.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, _, err = tc.dataSources.GetByName(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, tc.dataSources.SetActive(context.Background(), uuid.New(), false), apperrors.ErrNotFound)
}

func TestDataSourceRepository_DuplicateNameConflicts(t *testing.T) {
	tc := setupRepoTest(t)
	tc.createDataSource("dup")

	err := tc.dataSources.Create(context.Background(), &models.DataSource{
		Name: "dup",
		Type: models.DataSourceTypeMySQL,
	}, "")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDataSourceRepository_UpdateKeepsConfigWhenEmpty(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()
	ds := tc.createDataSource("crm")

	ds.DisplayName = "CRM"
	ds.GlobalBlockedColumns = nil
	require.NoError(t, tc.dataSources.Update(ctx, ds, ""))

	got, sealed, err := tc.dataSources.GetByID(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, "CRM", got.DisplayName)
	assert.Empty(t, got.GlobalBlockedColumns)
	assert.Equal(t, "v1:abcd1234:sealed", sealed)

	require.NoError(t, tc.dataSources.Update(ctx, ds, "v1:abcd1234:rotated"))
	_, sealed, err = tc.dataSources.GetByID(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1:abcd1234:rotated", sealed)
}

func TestDataSourceRepository_SetActiveAndList(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()
	b := tc.createDataSource("b_source")
	tc.createDataSource("a_source")

	require.NoError(t, tc.dataSources.SetActive(ctx, b.ID, false))

	list, err := tc.dataSources.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a_source", list[0].Name)
	assert.Equal(t, "b_source", list[1].Name)
	assert.False(t, list[1].IsActive)
}

func TestDataSourceRepository_Delete(t *testing.T) {
	tc := setupRepoTest(t)
	ctx := context.Background()
	ds := tc.createDataSource("temp")

	require.NoError(t, tc.dataSources.Delete(ctx, ds.ID))
	assert.ErrorIs(t, tc.dataSources.Delete(ctx, ds.ID), apperrors.ErrNotFound)
}
