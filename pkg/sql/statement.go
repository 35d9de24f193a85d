package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates more than one statement in a single request.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed")
	// ErrEmptyStatement indicates a blank statement.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// IsSelectStatement reports whether the trimmed, lower-cased statement begins
// with "select". Leading comments are not skipped: a statement that starts
// with a comment is not accepted as a SELECT.
func IsSelectStatement(query string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(query)), "select")
}

// Normalize trims whitespace and a single trailing semicolon, then rejects
// statements that still contain a semicolon outside quotes or comments.
func Normalize(query string) (string, error) {
	normalized := strings.TrimSpace(query)
	if normalized == "" {
		return "", ErrEmptyStatement
	}
	normalized = strings.TrimSpace(strings.TrimSuffix(normalized, ";"))
	if hasStatementSeparator(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// hasStatementSeparator scans for ';' outside single quotes, double quotes,
// backticks, line comments and block comments.
func hasStatementSeparator(query string) bool {
	const (
		stateNormal = iota
		stateSingle
		stateDouble
		stateBacktick
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	runes := []rune(query)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case c == ';':
				return true
			case c == '\'':
				state = stateSingle
			case c == '"':
				state = stateDouble
			case c == '`':
				state = stateBacktick
			case c == '-' && next == '-':
				state = stateLineComment
				i++
			case c == '/' && next == '*':
				state = stateBlockComment
				i++
			}
		case stateSingle:
			if c == '\\' {
				i++
			} else if c == '\'' {
				// '' is an escaped quote; re-entering on the next rune handles it
				state = stateNormal
			}
		case stateDouble:
			if c == '"' {
				state = stateNormal
			}
		case stateBacktick:
			if c == '`' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return false
}
