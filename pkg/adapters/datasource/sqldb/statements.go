package sqldb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	sqlcheck "github.com/ekaya-inc/ekaya-datagate/pkg/sql"
)

// ErrOnlySelect is the denial returned for anything but a SELECT.
const ErrOnlySelect = "Only SELECT queries are allowed"

// CheckQuery applies the relational connector's own guards: SELECT only, one
// statement, and every referenced table inside a non-empty allow-list. It
// returns the normalized statement, or a denial result.
func CheckQuery(req datasource.QueryRequest) (string, *datasource.Result) {
	if !sqlcheck.IsSelectStatement(req.SQL) {
		return "", datasource.Denied(ErrOnlySelect)
	}
	normalized, err := sqlcheck.Normalize(req.SQL)
	if err != nil {
		return "", datasource.Denied(err.Error())
	}
	if len(req.AllowedTables) > 0 {
		for _, table := range sqlcheck.ExtractTableNames(normalized) {
			if !datasource.ContainsFold(req.AllowedTables, table) {
				return "", datasource.Denied("Table not allowed: " + table)
			}
		}
	}
	return normalized, nil
}

// CheckListResource validates a List resource against the identifier rules
// and the allow-list.
func CheckListResource(req datasource.ListRequest) *datasource.Result {
	if !datasource.ValidResourceName(req.Resource) {
		return datasource.Denied("Invalid resource name: " + req.Resource)
	}
	if !datasource.ResourceAllowed(req.AllowedTables, req.Resource) {
		return datasource.Denied("Resource not allowed: " + req.Resource)
	}
	return nil
}

// BuildListQuery renders SELECT * FROM resource with equality filters and
// pagination. Filter keys are sorted so the statement is stable. The limit is
// used as given; the connector manager has already applied the configured
// ceiling. Zero or less means DefaultListLimit.
func BuildListQuery(d Dialect, resource string, filters map[string]any, limit, offset int) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(QuoteResource(d, resource))

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	for i, k := range keys {
		if !datasource.ValidResourceName(k) || strings.Contains(k, ".") {
			return "", nil, fmt.Errorf("invalid filter column: %s", k)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(d.QuoteIdentifier(k))
		if filters[k] == nil {
			b.WriteString(" IS NULL")
			continue
		}
		args = append(args, filters[k])
		b.WriteString(" = ")
		b.WriteString(d.Placeholder(len(args)))
	}

	if limit <= 0 {
		limit = datasource.DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ")
	b.WriteString(d.Paginate(limit, offset))
	return b.String(), args, nil
}

// TableRows converts catalog (schema, name) pairs into result rows, keeping
// only tables a non-empty allow-list names. A bare entry matches a table whose
// name is unique in the listing, the same way the stored schema keys tables;
// otherwise ResourceAllowed decides on the qualified name.
func TableRows(tables [][2]string, allowed []string) []map[string]any {
	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		counts[strings.ToLower(t[1])]++
	}
	rows := make([]map[string]any, 0, len(tables))
	for _, t := range tables {
		unique := counts[strings.ToLower(t[1])] == 1
		if !datasource.ResourceAllowed(allowed, t[0]+"."+t[1]) && !(unique && datasource.ContainsFold(allowed, t[1])) {
			continue
		}
		rows = append(rows, map[string]any{"schema": t[0], "name": t[1]})
	}
	return rows
}
