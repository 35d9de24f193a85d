package datasource

import "strings"

// FilterBlockedColumns returns copies of rows without any key that matches a
// blocked name case-insensitively. When blocked is empty the input slice is
// returned as is, without copying.
func FilterBlockedColumns(rows []map[string]any, blocked []string) []map[string]any {
	if len(blocked) == 0 {
		return rows
	}
	if len(rows) == 0 {
		return []map[string]any{}
	}

	blockedSet := make(map[string]struct{}, len(blocked))
	for _, col := range blocked {
		blockedSet[strings.ToLower(col)] = struct{}{}
	}

	filtered := make([]map[string]any, len(rows))
	for i, row := range rows {
		out := make(map[string]any, len(row))
		for key, value := range row {
			if _, hidden := blockedSet[strings.ToLower(key)]; hidden {
				continue
			}
			out[key] = value
		}
		filtered[i] = out
	}
	return filtered
}

// StripBlockedFields removes blocked keys from a single write payload.
// The input map is not modified.
func StripBlockedFields(data map[string]any, blocked []string) map[string]any {
	if data == nil {
		return nil
	}
	if len(blocked) == 0 {
		return data
	}
	return FilterBlockedColumns([]map[string]any{data}, blocked)[0]
}

// ContainsFold reports whether list contains name, ignoring case.
func ContainsFold(list []string, name string) bool {
	for _, item := range list {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}

// MergeColumns returns the case-insensitive union of the given lists, keeping
// the first spelling seen for each name.
func MergeColumns(lists ...[]string) []string {
	seen := make(map[string]struct{})
	merged := make([]string, 0)
	for _, list := range lists {
		for _, col := range list {
			key := strings.ToLower(col)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, col)
		}
	}
	return merged
}
