package models

import "time"

// ToolScope restricts an automated tool to a set of data sources, by name.
// A tool without a scope row is unrestricted.
type ToolScope struct {
	ToolID             string    `json:"tool_id"`
	AllowedDataSources []string  `json:"allowed_data_sources"`
	UpdatedAt          time.Time `json:"updated_at"`
}
