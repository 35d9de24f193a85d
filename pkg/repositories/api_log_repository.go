package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-datagate/pkg/database"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

// ApiLogFilter narrows List. Zero values are ignored.
type ApiLogFilter struct {
	DataSourceID *uuid.UUID
	UserID       string
	Since        *time.Time
	Limit        int
}

// ApiLogRepository persists audit rows. There is deliberately no update or delete.
type ApiLogRepository interface {
	Create(ctx context.Context, log *models.ApiLog) error
	List(ctx context.Context, filter ApiLogFilter) ([]*models.ApiLog, error)
}

type apiLogRepository struct {
	db *database.DB
}

// NewApiLogRepository creates an audit log repository on the metadata database.
func NewApiLogRepository(db *database.DB) ApiLogRepository {
	return &apiLogRepository{db: db}
}

var _ ApiLogRepository = (*apiLogRepository)(nil)

func (r *apiLogRepository) Create(ctx context.Context, log *models.ApiLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	params := log.Params
	if params == nil {
		params = map[string]any{}
	}

	query := `
		INSERT INTO api_logs (id, data_source_id, user_id, department, tool_id, operation, target,
			params, success, error_message, row_count, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		log.ID,
		log.DataSourceID,
		log.UserID,
		log.Department,
		log.ToolID,
		log.Operation,
		log.Target,
		params,
		log.Success,
		log.ErrorMessage,
		log.RowCount,
		log.DurationMs,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert api log: %w", err)
	}
	return nil
}

func (r *apiLogRepository) List(ctx context.Context, filter ApiLogFilter) ([]*models.ApiLog, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.DataSourceID != nil {
		args = append(args, *filter.DataSourceID)
		conditions = append(conditions, fmt.Sprintf("data_source_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var b strings.Builder
	b.WriteString(`SELECT id, data_source_id, user_id, department, tool_id, operation, target,
		params, success, error_message, row_count, duration_ms, created_at
		FROM api_logs`)
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := r.db.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list api logs: %w", err)
	}
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.ApiLog, error) {
		var l models.ApiLog
		err := row.Scan(
			&l.ID,
			&l.DataSourceID,
			&l.UserID,
			&l.Department,
			&l.ToolID,
			&l.Operation,
			&l.Target,
			&l.Params,
			&l.Success,
			&l.ErrorMessage,
			&l.RowCount,
			&l.DurationMs,
			&l.CreatedAt,
		)
		return &l, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan api logs: %w", err)
	}
	return logs, nil
}
