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

// AccessibleDataSource is what a caller may see about a data source they can read.
// Schema is reduced to readable tables with blocked columns removed.
type AccessibleDataSource struct {
	ID              uuid.UUID             `json:"id"`
	Name            string                `json:"name"`
	DisplayName     string                `json:"display_name"`
	Type            models.DataSourceType `json:"type"`
	ReadableTables  []string              `json:"readable_tables"`
	WritableTables  []string              `json:"writable_tables"`
	DeletableTables []string              `json:"deletable_tables"`
	BlockedColumns  []string              `json:"blocked_columns"`
	Schema          map[string][]string   `json:"schema,omitempty"`
}

// Catalog lists the data sources visible to a caller.
type Catalog interface {
	// ListAccessible returns active data sources the department can read,
	// narrowed to the tool's allow-list when toolID has a scope row.
	ListAccessible(ctx context.Context, department, toolID string) ([]*AccessibleDataSource, error)
}

type catalog struct {
	resolver   PermissionResolver
	toolScopes repositories.ToolScopeRepository // optional
	logger     *zap.Logger
}

// NewCatalog creates a Catalog. toolScopes may be nil, in which case tools are unrestricted.
func NewCatalog(resolver PermissionResolver, toolScopes repositories.ToolScopeRepository, logger *zap.Logger) Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalog{
		resolver:   resolver,
		toolScopes: toolScopes,
		logger:     logger.Named("catalog"),
	}
}

var _ Catalog = (*catalog)(nil)

func (c *catalog) ListAccessible(ctx context.Context, department, toolID string) ([]*AccessibleDataSource, error) {
	resolved, err := c.resolver.GetAccessibleDataSources(ctx, department)
	if err != nil {
		return nil, err
	}

	var allowed []string
	scoped := false
	if toolID != "" && c.toolScopes != nil {
		scope, err := c.toolScopes.Get(ctx, toolID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("failed to load tool scope: %w", err)
		default:
			allowed, scoped = scope.AllowedDataSources, true
		}
	}

	out := make([]*AccessibleDataSource, 0, len(resolved))
	for _, perm := range resolved {
		ds := perm.DataSource
		if scoped && !CheckToolAuthorization(allowed, ds.Name) {
			continue
		}
		out = append(out, &AccessibleDataSource{
			ID:              ds.ID,
			Name:            ds.Name,
			DisplayName:     ds.DisplayName,
			Type:            ds.Type,
			ReadableTables:  perm.AllowedTables,
			WritableTables:  perm.WritableTables,
			DeletableTables: perm.DeletableTables,
			BlockedColumns:  perm.BlockedColumns,
			Schema:          visibleSchema(ds.Schema, perm),
		})
	}

	c.logger.Debug("Listed accessible data sources",
		zap.String("department", department),
		zap.String("tool_id", toolID),
		zap.Int("count", len(out)))
	return out, nil
}

func visibleSchema(schema map[string][]string, perm *models.ResolvedPermission) map[string][]string {
	if len(schema) == 0 {
		return nil
	}
	visible := make(map[string][]string)
	for table, cols := range schema {
		if !datasource.ResourceAllowed(perm.AllowedTables, table) {
			continue
		}
		kept := make([]string, 0, len(cols))
		for _, col := range cols {
			if !datasource.ContainsFold(perm.BlockedColumns, col) {
				kept = append(kept, col)
			}
		}
		visible[table] = kept
	}
	return visible
}
