package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/repositories"
)

// PermissionResolver computes the effective access of a department to data sources.
type PermissionResolver interface {
	// ResolvePermission loads the data source by ID and resolves it for department.
	// Returns nil, nil when the data source does not exist or is inactive.
	ResolvePermission(ctx context.Context, dataSourceID uuid.UUID, department string) (*models.ResolvedPermission, error)

	// ResolvePermissionByName is ResolvePermission keyed by data source name.
	ResolvePermissionByName(ctx context.Context, name, department string) (*models.ResolvedPermission, error)

	// Resolve computes the permission for an already loaded data source.
	Resolve(ctx context.Context, ds *models.DataSource, department string) (*models.ResolvedPermission, error)

	// GetAccessibleDataSources returns every active data source the department
	// can read, ordered by name. Sources without a readable row are skipped.
	GetAccessibleDataSources(ctx context.Context, department string) ([]*models.ResolvedPermission, error)
}

type permissionResolver struct {
	dataSources repositories.DataSourceRepository
	permissions repositories.PermissionRepository
	logger      *zap.Logger
}

// NewPermissionResolver creates a resolver over the metadata repositories.
func NewPermissionResolver(
	dataSources repositories.DataSourceRepository,
	permissions repositories.PermissionRepository,
	logger *zap.Logger,
) PermissionResolver {
	return &permissionResolver{
		dataSources: dataSources,
		permissions: permissions,
		logger:      logger.Named("permissions"),
	}
}

var _ PermissionResolver = (*permissionResolver)(nil)

func (r *permissionResolver) ResolvePermission(ctx context.Context, dataSourceID uuid.UUID, department string) (*models.ResolvedPermission, error) {
	ds, _, err := r.dataSources.GetByID(ctx, dataSourceID)
	return r.resolveLoaded(ctx, ds, err, department)
}

func (r *permissionResolver) ResolvePermissionByName(ctx context.Context, name, department string) (*models.ResolvedPermission, error) {
	ds, _, err := r.dataSources.GetByName(ctx, name)
	return r.resolveLoaded(ctx, ds, err, department)
}

func (r *permissionResolver) resolveLoaded(ctx context.Context, ds *models.DataSource, loadErr error, department string) (*models.ResolvedPermission, error) {
	if errors.Is(loadErr, apperrors.ErrNotFound) {
		return nil, nil
	}
	if loadErr != nil {
		return nil, fmt.Errorf("failed to load data source: %w", loadErr)
	}
	if !ds.IsActive {
		return nil, nil
	}
	return r.Resolve(ctx, ds, department)
}

func (r *permissionResolver) Resolve(ctx context.Context, ds *models.DataSource, department string) (*models.ResolvedPermission, error) {
	rows, err := r.permissions.FindForDepartment(ctx, ds.ID, department)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	return ResolveFromRows(ds, rows, department), nil
}

func (r *permissionResolver) GetAccessibleDataSources(ctx context.Context, department string) ([]*models.ResolvedPermission, error) {
	sources, err := r.dataSources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	rows, err := r.permissions.ListForDepartment(ctx, department)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}

	byDataSource := make(map[uuid.UUID][]*models.DataSourcePermission)
	for _, row := range rows {
		byDataSource[row.DataSourceID] = append(byDataSource[row.DataSourceID], row)
	}

	accessible := make([]*models.ResolvedPermission, 0)
	for _, ds := range sources {
		if !ds.IsActive {
			continue
		}
		resolved := ResolveFromRows(ds, byDataSource[ds.ID], department)
		if !resolved.CanRead {
			continue
		}
		accessible = append(accessible, resolved)
	}

	r.logger.Debug("Resolved accessible data sources",
		zap.String("department", department),
		zap.Int("count", len(accessible)))
	return accessible, nil
}

// ResolveFromRows selects the department row, else the "*" row, and merges
// block lists with the data source's global list. With no row the result
// denies everything but still carries the global block list.
func ResolveFromRows(ds *models.DataSource, rows []*models.DataSourcePermission, department string) *models.ResolvedPermission {
	var exact, wildcard *models.DataSourcePermission
	for _, row := range rows {
		if row.DataSourceID != ds.ID {
			continue
		}
		switch row.Department {
		case department:
			exact = row
		case models.WildcardDepartment:
			wildcard = row
		}
	}
	matched := exact
	if matched == nil {
		matched = wildcard
	}

	resolved := &models.ResolvedPermission{
		DataSource:          ds,
		Matched:             matched,
		AllowedTables:       []string{},
		WritableTables:      []string{},
		DeletableTables:     []string{},
		BlockedColumns:      datasource.MergeColumns(ds.GlobalBlockedColumns),
		WriteBlockedColumns: datasource.MergeColumns(ds.GlobalBlockedColumns),
	}
	if matched == nil {
		return resolved
	}

	resolved.AllowedTables = nonNilStrings(matched.ReadableTables)
	resolved.WritableTables = nonNilStrings(matched.WritableTables)
	resolved.DeletableTables = nonNilStrings(matched.DeletableTables)
	resolved.BlockedColumns = datasource.MergeColumns(ds.GlobalBlockedColumns, matched.BlockedColumns)
	resolved.WriteBlockedColumns = datasource.MergeColumns(ds.GlobalBlockedColumns, matched.WriteBlockedColumns)
	resolved.CanRead = len(resolved.AllowedTables) > 0
	return resolved
}

// CheckToolAuthorization reports whether dataSourceName is in a tool's allow-list.
// It is independent of department permissions; both must pass.
func CheckToolAuthorization(toolAllowedSources []string, dataSourceName string) bool {
	for _, name := range toolAllowedSources {
		if name == dataSourceName {
			return true
		}
	}
	return false
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
