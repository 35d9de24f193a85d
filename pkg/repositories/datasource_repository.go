package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/database"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

// DataSourceRepository defines data access for data sources.
// Config is stored as sealed TEXT; sealing is handled by the service layer.
type DataSourceRepository interface {
	// Create inserts a data source. Returns apperrors.ErrConflict if the name is taken.
	Create(ctx context.Context, ds *models.DataSource, sealedConfig string) error

	// GetByID returns the data source and its sealed config.
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, error)

	// GetByName returns the data source and its sealed config.
	GetByName(ctx context.Context, name string) (*models.DataSource, string, error)

	// List returns every data source ordered by name, without configs.
	List(ctx context.Context) ([]*models.DataSource, error)

	// Update replaces the mutable fields. An empty sealedConfig keeps the stored one.
	Update(ctx context.Context, ds *models.DataSource, sealedConfig string) error

	// SetActive flips the active flag.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// Delete removes a data source and, by cascade, its permissions.
	Delete(ctx context.Context, id uuid.UUID) error
}

type dataSourceRepository struct {
	db *database.DB
}

// NewDataSourceRepository creates a data source repository on the metadata database.
func NewDataSourceRepository(db *database.DB) DataSourceRepository {
	return &dataSourceRepository{db: db}
}

var _ DataSourceRepository = (*dataSourceRepository)(nil)

const dataSourceColumns = `id, name, display_name, type, config_encrypted, schema,
	global_blocked_columns, is_active, created_at, updated_at`

func (r *dataSourceRepository) Create(ctx context.Context, ds *models.DataSource, sealedConfig string) error {
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	query := `
		INSERT INTO data_sources (id, name, display_name, type, config_encrypted, schema,
			global_blocked_columns, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		ds.ID,
		ds.Name,
		ds.DisplayName,
		ds.Type,
		sealedConfig,
		nonNilSchema(ds.Schema),
		nonNil(ds.GlobalBlockedColumns),
		ds.IsActive,
		ds.CreatedAt,
		ds.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create data source: %w", err)
	}
	return nil
}

func (r *dataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, error) {
	row := r.db.QueryRow(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE id = $1`, id)
	return scanDataSource(row)
}

func (r *dataSourceRepository) GetByName(ctx context.Context, name string) (*models.DataSource, string, error) {
	row := r.db.QueryRow(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE name = $1`, name)
	return scanDataSource(row)
}

func (r *dataSourceRepository) List(ctx context.Context) ([]*models.DataSource, error) {
	rows, err := r.db.Query(ctx, `SELECT `+dataSourceColumns+` FROM data_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	sources := make([]*models.DataSource, 0)
	for rows.Next() {
		ds, _, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data sources: %w", err)
	}
	return sources, nil
}

func (r *dataSourceRepository) Update(ctx context.Context, ds *models.DataSource, sealedConfig string) error {
	ds.UpdatedAt = time.Now()

	query := `
		UPDATE data_sources
		SET name = $2,
			display_name = $3,
			config_encrypted = CASE WHEN $4 = '' THEN config_encrypted ELSE $4 END,
			schema = $5,
			global_blocked_columns = $6,
			is_active = $7,
			updated_at = $8
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		ds.ID,
		ds.Name,
		ds.DisplayName,
		sealedConfig,
		nonNilSchema(ds.Schema),
		nonNil(ds.GlobalBlockedColumns),
		ds.IsActive,
		ds.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update data source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE data_sources SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to set data source active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanDataSource(row pgx.Row) (*models.DataSource, string, error) {
	var ds models.DataSource
	var sealedConfig string
	err := row.Scan(
		&ds.ID,
		&ds.Name,
		&ds.DisplayName,
		&ds.Type,
		&sealedConfig,
		&ds.Schema,
		&ds.GlobalBlockedColumns,
		&ds.IsActive,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", apperrors.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to scan data source: %w", err)
	}
	return &ds, sealedConfig, nil
}

// isUniqueViolation reports PostgreSQL error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nonNil keeps NOT NULL array columns from receiving SQL NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSchema(s map[string][]string) map[string][]string {
	if s == nil {
		return map[string][]string{}
	}
	return s
}
