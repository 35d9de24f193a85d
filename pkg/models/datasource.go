package models

import (
	"time"

	"github.com/google/uuid"
)

// DataSourceType identifies the backend a data source connects to.
type DataSourceType string

const (
	DataSourceTypePostgres        DataSourceType = "postgres"
	DataSourceTypeMySQL           DataSourceType = "mysql"
	DataSourceTypeMSSQL           DataSourceType = "mssql"
	DataSourceTypeREST            DataSourceType = "rest"
	DataSourceTypeGoogleSheets    DataSourceType = "google_sheets"
	DataSourceTypeGoogleDrive     DataSourceType = "google_drive"
	DataSourceTypeGmail           DataSourceType = "gmail"
	DataSourceTypeGoogleCalendar  DataSourceType = "google_calendar"
	DataSourceTypeSlack           DataSourceType = "slack"
	DataSourceTypeNotion          DataSourceType = "notion"
	DataSourceTypeAsana           DataSourceType = "asana"
	DataSourceTypeGoogleAnalytics DataSourceType = "google_analytics"
	DataSourceTypeGoogleAds       DataSourceType = "google_ads"
)

// AllDataSourceTypes lists every known backend type, including those whose
// connectors are provided outside this service.
var AllDataSourceTypes = []DataSourceType{
	DataSourceTypePostgres,
	DataSourceTypeMySQL,
	DataSourceTypeMSSQL,
	DataSourceTypeREST,
	DataSourceTypeGoogleSheets,
	DataSourceTypeGoogleDrive,
	DataSourceTypeGmail,
	DataSourceTypeGoogleCalendar,
	DataSourceTypeSlack,
	DataSourceTypeNotion,
	DataSourceTypeAsana,
	DataSourceTypeGoogleAnalytics,
	DataSourceTypeGoogleAds,
}

// IsValid reports whether t is one of the known backend types.
func (t DataSourceType) IsValid() bool {
	for _, known := range AllDataSourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsRelational reports whether t is a SQL database backend.
func (t DataSourceType) IsRelational() bool {
	switch t {
	case DataSourceTypePostgres, DataSourceTypeMySQL, DataSourceTypeMSSQL:
		return true
	}
	return false
}

// DataSource is a configured backend endpoint.
// Config holds credentials and is encrypted at rest by the service layer.
// It is never serialized to callers.
type DataSource struct {
	ID                   uuid.UUID               `json:"id"`
	Name                 string                  `json:"name"`
	DisplayName          string                  `json:"display_name"`
	Type                 DataSourceType          `json:"type"`
	Config               map[string]any          `json:"-"`
	Schema               map[string][]string     `json:"schema,omitempty"` // table -> columns, documentation only
	GlobalBlockedColumns []string                `json:"global_blocked_columns"`
	IsActive             bool                    `json:"is_active"`
	Permissions          []*DataSourcePermission `json:"permissions,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

// WildcardDepartment is the department value of the fallback permission row.
const WildcardDepartment = "*"

// DataSourcePermission is the access-control row for one (data source, department) pair.
type DataSourcePermission struct {
	ID                  uuid.UUID `json:"id"`
	DataSourceID        uuid.UUID `json:"data_source_id"`
	Department          string    `json:"department"`
	ReadableTables      []string  `json:"readable_tables"`
	WritableTables      []string  `json:"writable_tables"`
	DeletableTables     []string  `json:"deletable_tables"`
	BlockedColumns      []string  `json:"blocked_columns"`
	WriteBlockedColumns []string  `json:"write_blocked_columns"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ResolvedPermission is the effective access of one department to one data source.
// It is derived on every request and never persisted.
type ResolvedPermission struct {
	DataSource          *DataSource
	Matched             *DataSourcePermission // nil when no row applied
	AllowedTables       []string
	WritableTables      []string
	DeletableTables     []string
	BlockedColumns      []string
	WriteBlockedColumns []string
	CanRead             bool
}
