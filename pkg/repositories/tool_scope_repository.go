package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/database"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

// ToolScopeRepository stores per-tool data source allow-lists.
type ToolScopeRepository interface {
	// Get returns apperrors.ErrNotFound when the tool has no scope row.
	Get(ctx context.Context, toolID string) (*models.ToolScope, error)
	Upsert(ctx context.Context, scope *models.ToolScope) error
	Delete(ctx context.Context, toolID string) error
}

type toolScopeRepository struct {
	db *database.DB
}

// NewToolScopeRepository creates a tool scope repository on the metadata database.
func NewToolScopeRepository(db *database.DB) ToolScopeRepository {
	return &toolScopeRepository{db: db}
}

var _ ToolScopeRepository = (*toolScopeRepository)(nil)

func (r *toolScopeRepository) Get(ctx context.Context, toolID string) (*models.ToolScope, error) {
	var s models.ToolScope
	err := r.db.QueryRow(ctx,
		`SELECT tool_id, allowed_data_sources, updated_at FROM tool_scopes WHERE tool_id = $1`, toolID).
		Scan(&s.ToolID, &s.AllowedDataSources, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tool scope: %w", err)
	}
	return &s, nil
}

func (r *toolScopeRepository) Upsert(ctx context.Context, scope *models.ToolScope) error {
	scope.UpdatedAt = time.Now()
	_, err := r.db.Exec(ctx, `
		INSERT INTO tool_scopes (tool_id, allowed_data_sources, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tool_id) DO UPDATE SET
			allowed_data_sources = EXCLUDED.allowed_data_sources,
			updated_at = EXCLUDED.updated_at`,
		scope.ToolID, nonNil(scope.AllowedDataSources), scope.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tool scope: %w", err)
	}
	return nil
}

func (r *toolScopeRepository) Delete(ctx context.Context, toolID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tool_scopes WHERE tool_id = $1`, toolID)
	if err != nil {
		return fmt.Errorf("failed to delete tool scope: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
