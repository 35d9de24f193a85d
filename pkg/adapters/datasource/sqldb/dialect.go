// Package sqldb holds the read-only relational engine shared by the SQL
// connectors. Each backend supplies a Dialect; statement checks, List
// statement building, row scanning and schema grouping live here.
package sqldb

import "github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"

// Dialect captures the syntax differences between relational backends.
type Dialect interface {
	// QuoteIdentifier quotes one identifier part.
	QuoteIdentifier(name string) string

	// Placeholder returns the bind marker for the n-th (1-based) parameter.
	Placeholder(n int) string

	// Paginate returns the clause appended to a List statement.
	Paginate(limit, offset int) string

	// TablesQuery returns (schema, name) for every user table.
	TablesQuery() string

	// ColumnsQuery returns (schema, table, column, data_type, is_nullable,
	// is_primary) ordered by table and ordinal position. is_nullable is
	// 'YES'/'NO'; is_primary is 0 or 1.
	ColumnsQuery() string
}

// QuoteResource quotes a plain or schema-qualified resource name.
func QuoteResource(d Dialect, resource string) string {
	schema, table := datasource.SplitResource(resource)
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}
