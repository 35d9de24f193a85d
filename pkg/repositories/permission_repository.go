package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/database"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

// PermissionRepository defines data access for department permission rows.
type PermissionRepository interface {
	// ListByDataSource returns every row for a data source, ordered by department.
	ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]*models.DataSourcePermission, error)

	// FindForDepartment returns the rows for department and the "*" fallback.
	// At most two rows come back.
	FindForDepartment(ctx context.Context, dataSourceID uuid.UUID, department string) ([]*models.DataSourcePermission, error)

	// ListForDepartment returns department and "*" rows across all data sources.
	ListForDepartment(ctx context.Context, department string) ([]*models.DataSourcePermission, error)

	// Upsert creates or replaces the row for (data source, department).
	Upsert(ctx context.Context, p *models.DataSourcePermission) error

	// Delete removes the row for (data source, department).
	Delete(ctx context.Context, dataSourceID uuid.UUID, department string) error
}

type permissionRepository struct {
	db *database.DB
}

// NewPermissionRepository creates a permission repository on the metadata database.
func NewPermissionRepository(db *database.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

var _ PermissionRepository = (*permissionRepository)(nil)

const permissionColumns = `id, data_source_id, department, readable_tables, writable_tables,
	deletable_tables, blocked_columns, write_blocked_columns, created_at, updated_at`

func (r *permissionRepository) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]*models.DataSourcePermission, error) {
	return r.query(ctx, `SELECT `+permissionColumns+`
		FROM data_source_permissions
		WHERE data_source_id = $1
		ORDER BY department`, dataSourceID)
}

func (r *permissionRepository) FindForDepartment(ctx context.Context, dataSourceID uuid.UUID, department string) ([]*models.DataSourcePermission, error) {
	return r.query(ctx, `SELECT `+permissionColumns+`
		FROM data_source_permissions
		WHERE data_source_id = $1 AND department IN ($2, $3)`,
		dataSourceID, department, models.WildcardDepartment)
}

func (r *permissionRepository) ListForDepartment(ctx context.Context, department string) ([]*models.DataSourcePermission, error) {
	return r.query(ctx, `SELECT `+permissionColumns+`
		FROM data_source_permissions
		WHERE department IN ($1, $2)`,
		department, models.WildcardDepartment)
}

func (r *permissionRepository) Upsert(ctx context.Context, p *models.DataSourcePermission) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.UpdatedAt = now

	query := `
		INSERT INTO data_source_permissions (id, data_source_id, department, readable_tables,
			writable_tables, deletable_tables, blocked_columns, write_blocked_columns, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT ON CONSTRAINT data_source_permissions_department_key DO UPDATE SET
			readable_tables = EXCLUDED.readable_tables,
			writable_tables = EXCLUDED.writable_tables,
			deletable_tables = EXCLUDED.deletable_tables,
			blocked_columns = EXCLUDED.blocked_columns,
			write_blocked_columns = EXCLUDED.write_blocked_columns,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		p.ID,
		p.DataSourceID,
		p.Department,
		nonNil(p.ReadableTables),
		nonNil(p.WritableTables),
		nonNil(p.DeletableTables),
		nonNil(p.BlockedColumns),
		nonNil(p.WriteBlockedColumns),
		now,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}
	return nil
}

func (r *permissionRepository) Delete(ctx context.Context, dataSourceID uuid.UUID, department string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM data_source_permissions WHERE data_source_id = $1 AND department = $2`,
		dataSourceID, department)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *permissionRepository) query(ctx context.Context, sql string, args ...any) ([]*models.DataSourcePermission, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	perms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.DataSourcePermission, error) {
		var p models.DataSourcePermission
		err := row.Scan(
			&p.ID,
			&p.DataSourceID,
			&p.Department,
			&p.ReadableTables,
			&p.WritableTables,
			&p.DeletableTables,
			&p.BlockedColumns,
			&p.WriteBlockedColumns,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		return &p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan permissions: %w", err)
	}
	return perms, nil
}
