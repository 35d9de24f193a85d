// Package sql holds the lightweight SQL checks applied before a statement
// reaches a backend. None of this is a parser.
package sql

import (
	"regexp"
	"strings"
)

// tableKeywordPattern finds FROM and JOIN. Because the scan is over the whole
// statement, subqueries are covered without tracking nesting.
var tableKeywordPattern = regexp.MustCompile(`(?i)\b(?:from|join)\b`)

// notAlias holds the words that can follow a table reference without being
// its alias.
var notAlias = map[string]struct{}{
	"where": {}, "join": {}, "inner": {}, "left": {}, "right": {}, "full": {},
	"cross": {}, "outer": {}, "natural": {}, "on": {}, "using": {}, "group": {},
	"order": {}, "having": {}, "limit": {}, "offset": {}, "fetch": {}, "for": {},
	"union": {}, "except": {}, "intersect": {}, "window": {}, "returning": {},
	"set": {}, "values": {}, "tablesample": {}, "with": {},
}

// ExtractTableNames returns the lower-cased, de-duplicated table names
// referenced after FROM or JOIN, in first-seen order. Comma-separated FROM
// lists are followed and quoted identifiers ("t", `t`, [t]) are unquoted.
//
// This is a heuristic safety gate: aliases and CTE names are not resolved,
// and for schema-qualified references only the first identifier (the schema)
// is returned. A reference the scanner cannot read is returned as written,
// so an allow-list check on the result fails closed.
func ExtractTableNames(query string) []string {
	tables := make([]string, 0)
	seen := make(map[string]struct{})
	for _, loc := range tableKeywordPattern.FindAllStringIndex(query, -1) {
		s := &refScanner{src: query, pos: loc[1]}
		for {
			name, ok := s.tableRef()
			if !ok {
				break
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				tables = append(tables, name)
			}
			s.skipAlias()
			if !s.consume(',') {
				break
			}
		}
	}
	return tables
}

type refScanner struct {
	src string
	pos int
}

func (s *refScanner) skipSpace() {
	for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *refScanner) consume(c byte) bool {
	s.skipSpace()
	if s.pos < len(s.src) && s.src[s.pos] == c {
		s.pos++
		return true
	}
	return false
}

// tableRef reads one possibly qualified reference and returns its first part.
// A parenthesis means a subquery or nothing readable; both report false.
func (s *refScanner) tableRef() (string, bool) {
	s.skipSpace()
	first, ok := s.part()
	if !ok {
		return "", false
	}
	for s.pos < len(s.src) && s.src[s.pos] == '.' {
		s.pos++
		if _, ok := s.part(); !ok {
			break
		}
	}
	return strings.ToLower(first), true
}

// part reads a bare or quoted identifier. Anything else up to the next
// separator is taken verbatim.
func (s *refScanner) part() (string, bool) {
	if s.pos >= len(s.src) {
		return "", false
	}
	var closing byte
	switch s.src[s.pos] {
	case '"':
		closing = '"'
	case '`':
		closing = '`'
	case '[':
		closing = ']'
	}
	if closing != 0 {
		start := s.pos + 1
		end := strings.IndexByte(s.src[start:], closing)
		if end < 0 {
			s.pos = len(s.src)
			return s.src[start:], start < len(s.src)
		}
		s.pos = start + end + 1
		return s.src[start : start+end], true
	}

	start := s.pos
	if isIdentStart(s.src[s.pos]) {
		for s.pos < len(s.src) && isIdentChar(s.src[s.pos]) {
			s.pos++
		}
		return s.src[start:s.pos], true
	}
	for s.pos < len(s.src) && !isSeparator(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos], s.pos > start
}

// skipAlias steps over "AS alias" or a bare alias.
func (s *refScanner) skipAlias() {
	s.skipSpace()
	start := s.pos
	word, ok := s.part()
	if !ok {
		return
	}
	lower := strings.ToLower(word)
	if lower == "as" {
		s.skipSpace()
		_, _ = s.part()
		return
	}
	if _, keyword := notAlias[lower]; keyword {
		s.pos = start
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '$'
}

func isSeparator(c byte) bool {
	return isSpace(c) || c == ',' || c == '(' || c == ')' || c == ';' || c == '.'
}
