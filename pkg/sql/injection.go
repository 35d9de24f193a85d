package sql

import (
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding describes a parameter value libinjection flagged.
type InjectionFinding struct {
	Param       string
	Fingerprint string
}

// CheckValue runs libinjection over a single value. Only strings are checked.
func CheckValue(param string, value any) *InjectionFinding {
	s, ok := value.(string)
	if !ok || s == "" {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionFinding{Param: param, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckPositional checks bind parameters, naming them $1, $2, ...
func CheckPositional(params []any) []InjectionFinding {
	var findings []InjectionFinding
	for i, v := range params {
		if f := CheckValue(fmt.Sprintf("$%d", i+1), v); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

// CheckNamed checks named values such as list filters. Findings are sorted by
// parameter name.
func CheckNamed(params map[string]any) []InjectionFinding {
	var findings []InjectionFinding
	for name, v := range params {
		if f := CheckValue(name, v); f != nil {
			findings = append(findings, *f)
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Param < findings[j].Param })
	return findings
}
