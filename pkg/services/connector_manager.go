package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/audit"
	"github.com/ekaya-inc/ekaya-datagate/pkg/logging"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
	"github.com/ekaya-inc/ekaya-datagate/pkg/repositories"
	sqlcheck "github.com/ekaya-inc/ekaya-datagate/pkg/sql"
)

// auditWriteTimeout bounds the api_logs insert after the caller's context is gone.
const auditWriteTimeout = 5 * time.Second

// ErrorCode classifies a failed Execute for transport mapping.
type ErrorCode string

const (
	CodeNotFound       ErrorCode = "not_found"
	CodeInactive       ErrorCode = "inactive"
	CodeForbidden      ErrorCode = "forbidden"
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeUnsupported    ErrorCode = "unsupported"
	CodeConfiguration  ErrorCode = "configuration"
	CodeBackendError   ErrorCode = "backend_error"
)

// ExecuteParams is one request against a data source. Which fields apply
// depends on Operation.
type ExecuteParams struct {
	DataSourceID uuid.UUID
	Operation    models.Operation
	UserID       string
	Department   string
	ToolID       string // empty when not invoked on behalf of a tool

	SQL     string
	Params  []any
	Filters map[string]any
	Limit   int
	Offset  int

	Resource string
	Data     map[string]any
	Where    map[string]any

	Timeout time.Duration
}

// target is the SQL text or resource name recorded in the audit log.
func (p ExecuteParams) target() string {
	if p.Operation == models.OperationQuery {
		return p.SQL
	}
	return p.Resource
}

// ExecuteResult is the outcome of Execute. Code is set whenever Success is false.
type ExecuteResult struct {
	Success    bool             `json:"success"`
	Data       []map[string]any `json:"data"`
	Error      string           `json:"error,omitempty"`
	Code       ErrorCode        `json:"code,omitempty"`
	RowCount   int              `json:"row_count"`
	Duration   time.Duration    `json:"-"`
	DurationMs int64            `json:"duration_ms"`
}

func failure(code ErrorCode, message string) *ExecuteResult {
	return &ExecuteResult{Success: false, Code: code, Error: message}
}

// ManagerConfig holds process-wide execution defaults.
type ManagerConfig struct {
	QueryTimeout time.Duration
	DefaultLimit int
	MaxLimit     int
}

func (c ManagerConfig) limit(requested int) int {
	def := c.DefaultLimit
	if def <= 0 {
		def = datasource.DefaultListLimit
	}
	ceiling := c.MaxLimit
	if ceiling <= 0 {
		ceiling = datasource.MaxListLimit
	}
	if requested <= 0 {
		return def
	}
	if requested > ceiling {
		return ceiling
	}
	return requested
}

// ConfigOpener decrypts a sealed data source config.
type ConfigOpener interface {
	Open(sealed string) (map[string]any, error)
}

// ConnectorManager runs the authorize, dispatch, redact and audit pipeline
// and owns the pool of live connectors.
type ConnectorManager interface {
	// Execute never returns a Go error; every failure is an ExecuteResult with a Code.
	// Exactly one api_logs row is written per call.
	Execute(ctx context.Context, params ExecuteParams) *ExecuteResult

	// RemoveConnector disconnects and evicts the pooled connector for id.
	RemoveConnector(id uuid.UUID) error

	// DisconnectAll tears down every pooled connector.
	DisconnectAll()

	// Stats reports the pool contents.
	Stats() datasource.PoolStats
}

type connectorManager struct {
	dataSources repositories.DataSourceRepository
	toolScopes  repositories.ToolScopeRepository // optional
	apiLogs     repositories.ApiLogRepository
	resolver    PermissionResolver
	registry    *datasource.Registry
	pool        *datasource.Pool
	opener      ConfigOpener
	auditor     *audit.SecurityAuditor
	cfg         ManagerConfig
	logger      *zap.Logger
}

// NewConnectorManager wires the execute pipeline. toolScopes may be nil, in
// which case tool authorization is skipped.
func NewConnectorManager(
	dataSources repositories.DataSourceRepository,
	toolScopes repositories.ToolScopeRepository,
	apiLogs repositories.ApiLogRepository,
	resolver PermissionResolver,
	registry *datasource.Registry,
	pool *datasource.Pool,
	opener ConfigOpener,
	auditor *audit.SecurityAuditor,
	cfg ManagerConfig,
	logger *zap.Logger,
) ConnectorManager {
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(logger)
	}
	return &connectorManager{
		dataSources: dataSources,
		toolScopes:  toolScopes,
		apiLogs:     apiLogs,
		resolver:    resolver,
		registry:    registry,
		pool:        pool,
		opener:      opener,
		auditor:     auditor,
		cfg:         cfg,
		logger:      logger.Named("connector_manager"),
	}
}

var _ ConnectorManager = (*connectorManager)(nil)

// execution carries state gathered along the pipeline into the audit row.
type execution struct {
	params    ExecuteParams
	actor     audit.Actor
	logParams map[string]any
}

func (m *connectorManager) Execute(ctx context.Context, params ExecuteParams) *ExecuteResult {
	start := time.Now()
	exec := &execution{
		params: params,
		actor: audit.Actor{
			UserID:     params.UserID,
			Department: params.Department,
			ToolID:     params.ToolID,
		},
		logParams: requestLogParams(params, nil),
	}

	result := m.run(ctx, exec)

	result.Duration = time.Since(start)
	result.DurationMs = result.Duration.Milliseconds()
	m.writeLog(ctx, exec, result)
	return result
}

func (m *connectorManager) run(ctx context.Context, exec *execution) *ExecuteResult {
	p := exec.params

	switch p.Operation {
	case models.OperationQuery, models.OperationList, models.OperationCreate,
		models.OperationUpdate, models.OperationDelete:
	default:
		return failure(CodeInvalidRequest, fmt.Sprintf("Unknown operation: %s", p.Operation))
	}

	ds, sealedConfig, err := m.dataSources.GetByID(ctx, p.DataSourceID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return failure(CodeNotFound, "Data source not found")
	}
	if err != nil {
		m.logger.Error("Failed to load data source",
			zap.String("data_source_id", p.DataSourceID.String()),
			zap.Error(err))
		return failure(CodeBackendError, "Failed to load data source")
	}
	if !ds.IsActive {
		return failure(CodeInactive, "Data source is inactive")
	}

	if res := m.authorizeTool(ctx, exec, ds); res != nil {
		return res
	}

	perm, err := m.resolver.Resolve(ctx, ds, p.Department)
	if err != nil {
		m.logger.Error("Failed to resolve permissions",
			zap.String("data_source_id", ds.ID.String()),
			zap.Error(err))
		return failure(CodeBackendError, "Failed to resolve permissions")
	}
	exec.logParams = requestLogParams(p, perm.WriteBlockedColumns)

	if res := m.authorize(exec, ds, perm); res != nil {
		return res
	}
	if res := m.checkInjection(exec, ds); res != nil {
		return res
	}

	conn, res := m.acquire(ctx, ds, sealedConfig)
	if res != nil {
		return res
	}

	if !supports(conn.Capabilities(), p.Operation) {
		return failure(CodeUnsupported, fmt.Sprintf("Operation not supported: %s", p.Operation))
	}

	return m.dispatch(ctx, conn, p, perm)
}

func (m *connectorManager) authorizeTool(ctx context.Context, exec *execution, ds *models.DataSource) *ExecuteResult {
	if exec.params.ToolID == "" || m.toolScopes == nil {
		return nil
	}
	scope, err := m.toolScopes.Get(ctx, exec.params.ToolID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		m.logger.Error("Failed to load tool scope",
			zap.String("tool_id", exec.params.ToolID),
			zap.Error(err))
		return failure(CodeBackendError, "Failed to load tool scope")
	}
	if CheckToolAuthorization(scope.AllowedDataSources, ds.Name) {
		return nil
	}
	m.auditor.LogToolDenied(exec.actor, ds.ID, ds.Name)
	return failure(CodeForbidden, fmt.Sprintf("Tool not authorized for data source: %s", ds.Name))
}

// authorize applies the department permission for the requested operation.
func (m *connectorManager) authorize(exec *execution, ds *models.DataSource, perm *models.ResolvedPermission) *ExecuteResult {
	p := exec.params

	deny := func(reason, cause string) *ExecuteResult {
		m.auditor.LogAccessDenied(exec.actor, ds.ID, audit.DenialDetails{
			Operation: string(p.Operation),
			Target:    logging.SanitizeQuery(p.target()),
			Reason:    reason,
			Cause:     cause,
		})
		return failure(CodeForbidden, reason)
	}

	switch p.Operation {
	case models.OperationQuery, models.OperationList:
		if !perm.CanRead {
			cause := audit.CauseNoPermissionRow
			if perm.Matched != nil {
				cause = audit.CauseExplicitlyEmpty
			}
			return deny("No read access to this data source", cause)
		}
		if p.Operation == models.OperationQuery {
			if strings.TrimSpace(p.SQL) == "" {
				return failure(CodeInvalidRequest, "SQL is required for query")
			}
			if !ds.Type.IsRelational() {
				// non-SQL backends take an endpoint or resource name in place of SQL
				if !datasource.ResourceAllowed(perm.AllowedTables, p.SQL) {
					return deny("Resource not allowed: "+p.SQL, audit.CauseTableNotAllowed)
				}
				return nil
			}
			for _, table := range sqlcheck.ExtractTableNames(p.SQL) {
				if !datasource.ContainsFold(perm.AllowedTables, table) {
					return deny("Table not allowed: "+table, audit.CauseTableNotAllowed)
				}
			}
			return nil
		}
		if p.Resource != "" && !datasource.ResourceAllowed(perm.AllowedTables, p.Resource) {
			return deny("Resource not allowed: "+p.Resource, audit.CauseTableNotAllowed)
		}
		return nil

	case models.OperationCreate, models.OperationUpdate:
		if p.Resource == "" {
			return failure(CodeInvalidRequest, "Resource is required for "+string(p.Operation))
		}
		if !inAllowList(perm.WritableTables, p.Resource) {
			return deny("Write not allowed: "+p.Resource, audit.CauseWriteNotAllowed)
		}
		return nil

	case models.OperationDelete:
		if p.Resource == "" {
			return failure(CodeInvalidRequest, "Resource is required for delete")
		}
		if !inAllowList(perm.DeletableTables, p.Resource) {
			return deny("Delete not allowed: "+p.Resource, audit.CauseDeleteNotAllowed)
		}
		return nil
	}
	return failure(CodeInvalidRequest, fmt.Sprintf("Unknown operation: %s", p.Operation))
}

// checkInjection runs libinjection over string bind parameters, filters and
// where clauses.
func (m *connectorManager) checkInjection(exec *execution, ds *models.DataSource) *ExecuteResult {
	p := exec.params

	var findings []sqlcheck.InjectionFinding
	switch p.Operation {
	case models.OperationQuery:
		if ds.Type.IsRelational() {
			findings = sqlcheck.CheckPositional(p.Params)
		}
	case models.OperationList:
		findings = sqlcheck.CheckNamed(p.Filters)
	case models.OperationUpdate, models.OperationDelete:
		findings = sqlcheck.CheckNamed(p.Where)
	}
	if len(findings) == 0 {
		return nil
	}

	for _, f := range findings {
		m.auditor.LogInjectionAttempt(exec.actor, ds.ID, audit.InjectionDetails{
			Operation:   string(p.Operation),
			ParamName:   f.Param,
			Fingerprint: f.Fingerprint,
		})
	}
	return failure(CodeInvalidRequest, "Potential SQL injection detected in parameter: "+findings[0].Param)
}

// creationError marks failures building a connector from stored config, as
// opposed to failures reaching the backend.
type creationError struct{ err error }

func (e *creationError) Error() string { return e.err.Error() }
func (e *creationError) Unwrap() error { return e.err }

func (m *connectorManager) acquire(ctx context.Context, ds *models.DataSource, sealedConfig string) (datasource.Connector, *ExecuteResult) {
	conn, err := m.pool.GetOrCreate(ctx, ds.ID, func() (datasource.Connector, error) {
		config, err := m.opener.Open(sealedConfig)
		if err != nil {
			return nil, &creationError{err: err}
		}
		c, err := m.registry.Create(ds.Type, config)
		if err != nil {
			return nil, &creationError{err: err}
		}
		return c, nil
	})
	if err == nil {
		return conn, nil
	}

	var ce *creationError
	switch {
	case errors.Is(err, apperrors.ErrUnknownConnectorType):
		return nil, failure(CodeConfiguration, fmt.Sprintf("No connector registered for type: %s", ds.Type))
	case errors.Is(err, apperrors.ErrCredentialsKeyMismatch):
		m.logger.Error("Data source config sealed with a different key",
			zap.String("data_source_id", ds.ID.String()))
		return nil, failure(CodeConfiguration, "Data source credentials cannot be decrypted")
	case errors.As(err, &ce):
		return nil, failure(CodeConfiguration, "Invalid data source configuration: "+logging.SanitizeError(ce.err))
	default:
		return nil, failure(CodeBackendError, "Failed to connect to data source: "+logging.SanitizeError(err))
	}
}

func supports(caps datasource.Capabilities, op models.Operation) bool {
	switch op {
	case models.OperationQuery:
		return caps.CanQuery
	case models.OperationList:
		return caps.CanList
	case models.OperationCreate:
		return caps.CanCreate
	case models.OperationUpdate:
		return caps.CanUpdate
	case models.OperationDelete:
		return caps.CanDelete
	}
	return false
}

func (m *connectorManager) dispatch(ctx context.Context, conn datasource.Connector, p ExecuteParams, perm *models.ResolvedPermission) (result *ExecuteResult) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Connector panicked",
				zap.String("data_source_id", p.DataSourceID.String()),
				zap.String("operation", string(p.Operation)),
				zap.Any("panic", r))
			result = failure(CodeBackendError, fmt.Sprintf("Connector failure: %v", r))
		}
	}()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = m.cfg.QueryTimeout
	}

	var (
		res *datasource.Result
		err error
	)
	switch p.Operation {
	case models.OperationQuery:
		res, err = conn.Query(ctx, datasource.QueryRequest{
			SQL:            p.SQL,
			Params:         p.Params,
			AllowedTables:  perm.AllowedTables,
			BlockedColumns: perm.BlockedColumns,
			Timeout:        timeout,
		})
	case models.OperationList:
		res, err = conn.List(ctx, datasource.ListRequest{
			Resource:       p.Resource,
			Filters:        p.Filters,
			Limit:          m.cfg.limit(p.Limit),
			Offset:         p.Offset,
			AllowedTables:  perm.AllowedTables,
			BlockedColumns: perm.BlockedColumns,
			Timeout:        timeout,
		})
	case models.OperationCreate:
		res, err = conn.Create(ctx, datasource.WriteRequest{
			Resource: p.Resource,
			Data:     datasource.StripBlockedFields(p.Data, perm.WriteBlockedColumns),
			Timeout:  timeout,
		})
	case models.OperationUpdate:
		res, err = conn.Update(ctx, datasource.WriteRequest{
			Resource: p.Resource,
			Data:     datasource.StripBlockedFields(p.Data, perm.WriteBlockedColumns),
			Where:    p.Where,
			Timeout:  timeout,
		})
	case models.OperationDelete:
		res, err = conn.Delete(ctx, datasource.WriteRequest{
			Resource: p.Resource,
			Where:    p.Where,
			Timeout:  timeout,
		})
	}

	if err != nil {
		m.logger.Warn("Connector operation failed",
			zap.String("data_source_id", p.DataSourceID.String()),
			zap.String("operation", string(p.Operation)),
			zap.String("error", logging.SanitizeError(err)))
		return failure(CodeBackendError, logging.SanitizeError(err))
	}
	if res == nil {
		return failure(CodeBackendError, "Connector returned no result")
	}
	if !res.Success {
		code := CodeForbidden
		if strings.HasPrefix(res.Error, "Operation not supported") {
			code = CodeUnsupported
		}
		return failure(code, res.Error)
	}

	rows := res.Data
	if rows == nil {
		rows = []map[string]any{}
	}
	return &ExecuteResult{Success: true, Data: rows, RowCount: res.RowCount}
}

func (m *connectorManager) writeLog(ctx context.Context, exec *execution, result *ExecuteResult) {
	p := exec.params
	log := &models.ApiLog{
		DataSourceID: p.DataSourceID,
		UserID:       p.UserID,
		Department:   p.Department,
		Operation:    p.Operation,
		Target:       p.target(),
		Params:       exec.logParams,
		Success:      result.Success,
		RowCount:     result.RowCount,
		DurationMs:   result.DurationMs,
	}
	if p.ToolID != "" {
		toolID := p.ToolID
		log.ToolID = &toolID
	}
	if !result.Success {
		msg := result.Error
		log.ErrorMessage = &msg
	}

	// the row must land even when the caller has already gone away
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := m.apiLogs.Create(writeCtx, log); err != nil {
		m.logger.Error("Failed to write api log",
			zap.String("data_source_id", p.DataSourceID.String()),
			zap.String("operation", string(p.Operation)),
			zap.Error(err))
	}
}

func (m *connectorManager) RemoveConnector(id uuid.UUID) error {
	return m.pool.Remove(id)
}

func (m *connectorManager) DisconnectAll() {
	m.pool.CloseAll()
}

func (m *connectorManager) Stats() datasource.PoolStats {
	return m.pool.Stats()
}

// inAllowList is ResourceAllowed without the empty-list-allows-all rule.
func inAllowList(list []string, resource string) bool {
	return len(list) > 0 && datasource.ResourceAllowed(list, resource)
}

// requestLogParams builds the serialized parameters stored with the audit
// row. Write payloads are recorded without write-blocked columns.
func requestLogParams(p ExecuteParams, writeBlocked []string) map[string]any {
	out := map[string]any{}
	if len(p.Params) > 0 {
		out["params"] = p.Params
	}
	if len(p.Filters) > 0 {
		out["filters"] = p.Filters
	}
	if len(p.Where) > 0 {
		out["where"] = p.Where
	}
	if len(p.Data) > 0 {
		if writeBlocked == nil {
			// permission not resolved yet: keys only
			keys := make([]string, 0, len(p.Data))
			for k := range p.Data {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out["data_keys"] = keys
		} else {
			out["data"] = datasource.StripBlockedFields(p.Data, writeBlocked)
		}
	}
	if p.Limit > 0 {
		out["limit"] = p.Limit
	}
	if p.Offset > 0 {
		out["offset"] = p.Offset
	}
	return out
}
