package datasource

import (
	"regexp"
	"strings"
)

var resourceNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidResourceName reports whether name is a plain or schema-qualified
// identifier that is safe to quote into a statement.
func ValidResourceName(name string) bool {
	return resourceNamePattern.MatchString(name)
}

// defaultSchemas are the schemas an unqualified allow-list entry stands for.
var defaultSchemas = []string{"public", "dbo"}

// ResourceAllowed checks a resource against a read allow-list. An empty list
// places no restriction at this layer; the connector manager never passes one
// for a caller without read access. A schema-qualified name matches its full
// name, or a bare entry for the table part only when the schema is a default
// one (public, dbo). "users" never grants "payroll.users".
func ResourceAllowed(allowed []string, resource string) bool {
	if len(allowed) == 0 {
		return true
	}
	if ContainsFold(allowed, resource) {
		return true
	}
	schema, table := SplitResource(resource)
	if schema == "" || !ContainsFold(defaultSchemas, schema) {
		return false
	}
	return ContainsFold(allowed, table)
}

// SplitResource splits "schema.table" into its parts. Schema is empty for an
// unqualified name.
func SplitResource(resource string) (schema, table string) {
	if i := strings.IndexByte(resource, '.'); i >= 0 {
		return resource[:i], resource[i+1:]
	}
	return "", resource
}

// SchemaColumn is one row of a catalog column query.
type SchemaColumn struct {
	Schema string
	Table  string
	Column
}

// GroupSchemaColumns folds catalog rows, ordered by table, into tables.
func GroupSchemaColumns(cols []SchemaColumn) []Table {
	tables := make([]Table, 0)
	for _, c := range cols {
		n := len(tables)
		if n == 0 || tables[n-1].Schema != c.Schema || tables[n-1].Name != c.Table {
			tables = append(tables, Table{Schema: c.Schema, Name: c.Table, Columns: []Column{}})
			n++
		}
		tables[n-1].Columns = append(tables[n-1].Columns, c.Column)
	}
	return tables
}
