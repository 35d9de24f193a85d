package mysql

import (
	"fmt"
	"strings"
)

type dialect struct{}

func (dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (dialect) Placeholder(int) string { return "?" }

func (dialect) Paginate(limit, offset int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

func (dialect) TablesQuery() string {
	return `SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`
}

func (dialect) ColumnsQuery() string {
	return `SELECT c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable,
			CASE WHEN c.column_key = 'PRI' THEN 1 ELSE 0 END
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = DATABASE() AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`
}
