// Package audit provides security audit logging for SIEM consumption.
// Events are written as structured JSON on a dedicated "security_audit"
// logger so they can be filtered apart from operational logs.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a parameter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventAccessDenied is logged when a permission check rejects a request.
	EventAccessDenied SecurityEventType = "access_denied"
	// EventToolDenied is logged when a tool reaches for a data source outside its scope.
	EventToolDenied SecurityEventType = "tool_denied"
)

// Denial causes recorded with EventAccessDenied.
const (
	CauseNoPermissionRow  = "no_permission_row"
	CauseExplicitlyEmpty  = "explicitly_empty"
	CauseTableNotAllowed  = "table_not_allowed"
	CauseWriteNotAllowed  = "write_not_allowed"
	CauseDeleteNotAllowed = "delete_not_allowed"
)

// Actor identifies who made a request.
type Actor struct {
	UserID     string `json:"user_id,omitempty"`
	Department string `json:"department,omitempty"`
	ToolID     string `json:"tool_id,omitempty"`
}

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp    time.Time         `json:"timestamp"`
	EventType    SecurityEventType `json:"event_type"`
	DataSourceID uuid.UUID         `json:"data_source_id"`
	Actor        Actor             `json:"actor"`
	Details      any               `json:"details"`
	Severity     string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes a flagged parameter. The value itself is not logged.
type InjectionDetails struct {
	Operation   string `json:"operation"`
	ParamName   string `json:"param_name"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// DenialDetails describes a rejected request.
type DenialDetails struct {
	Operation string `json:"operation"`
	Target    string `json:"target"`
	Reason    string `json:"reason"`
	Cause     string `json:"cause"`
}

// SecurityAuditor logs security events.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor on a "security_audit" child of logger.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a flagged parameter at ERROR with critical severity.
func (a *SecurityAuditor) LogInjectionAttempt(actor Actor, dataSourceID uuid.UUID, details InjectionDetails) {
	event := a.event(EventSQLInjectionAttempt, actor, dataSourceID, details, "critical")
	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", marshal(event)),
		zap.String("data_source_id", dataSourceID.String()),
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("user_id", actor.UserID),
		zap.String("severity", event.Severity),
	)
}

// LogAccessDenied records a permission denial at WARN.
func (a *SecurityAuditor) LogAccessDenied(actor Actor, dataSourceID uuid.UUID, details DenialDetails) {
	event := a.event(EventAccessDenied, actor, dataSourceID, details, "warning")
	a.logger.Warn("Data access denied",
		zap.String("event_json", marshal(event)),
		zap.String("data_source_id", dataSourceID.String()),
		zap.String("operation", details.Operation),
		zap.String("cause", details.Cause),
		zap.String("user_id", actor.UserID),
		zap.String("department", actor.Department),
		zap.String("severity", event.Severity),
	)
}

// LogToolDenied records a tool scope violation at WARN.
func (a *SecurityAuditor) LogToolDenied(actor Actor, dataSourceID uuid.UUID, dataSourceName string) {
	event := a.event(EventToolDenied, actor, dataSourceID, map[string]string{"data_source": dataSourceName}, "warning")
	a.logger.Warn("Tool not authorized for data source",
		zap.String("event_json", marshal(event)),
		zap.String("data_source_id", dataSourceID.String()),
		zap.String("tool_id", actor.ToolID),
		zap.String("user_id", actor.UserID),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) event(t SecurityEventType, actor Actor, dataSourceID uuid.UUID, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    t,
		DataSourceID: dataSourceID,
		Actor:        actor,
		Details:      details,
		Severity:     severity,
	}
}

// marshal ignores the error; every event field is a plain value.
func marshal(event SecurityEvent) string {
	b, _ := json.Marshal(event)
	return string(b)
}
