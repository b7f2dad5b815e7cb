// Package safety is the deterministic gate every SQL statement must clear
// before it reaches a database. It never calls a language model.
package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule identifies which check rejected a statement.
type Rule string

const (
	RuleEmpty           Rule = "empty"
	RuleFirstKeyword    Rule = "first_keyword"
	RuleProhibitedToken Rule = "prohibited_token"
	RuleLimit           Rule = "limit"
	RuleMultiStatement  Rule = "multi_statement"
	RuleSelectStar      Rule = "select_star"
)

// ProhibitedTokens are rejected as whole words anywhere in a statement.
var ProhibitedTokens = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "MERGE", "EXEC", "EXECUTE",
}

var (
	firstWordPattern  = regexp.MustCompile(`^\s*([A-Za-z_]+)`)
	limitPattern      = regexp.MustCompile(`(?i)\bLIMIT\b`)
	selectStarPattern = regexp.MustCompile(`(?i)\bSELECT\b\s*` +
		`(?:(?:DISTINCT|ALL)\s+)?` +
		`(?:TOP\s*(?:\(\s*\d+\s*\)|\d+)\s*(?:PERCENT\s+)?(?:WITH\s+TIES\s+)?)?\*`)
	prohibitedPattern = buildProhibitedPattern(ProhibitedTokens)
)

// Violation is returned by Check when a statement is rejected.
type Violation struct {
	Rule   Rule
	Reason string
}

func (v *Violation) Error() string {
	return v.Reason
}

// Check applies the rules in order and returns the first violation, or nil.
func Check(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &Violation{Rule: RuleEmpty, Reason: "SQL is empty."}
	}

	first := ""
	if m := firstWordPattern.FindStringSubmatch(trimmed); m != nil {
		first = strings.ToUpper(m[1])
	}
	if first != "SELECT" && first != "WITH" {
		shown := first
		if shown == "" {
			shown = firstToken(trimmed)
		}
		return &Violation{
			Rule:   RuleFirstKeyword,
			Reason: fmt.Sprintf("Disallowed first keyword: %s. Only SELECT or WITH allowed.", shown),
		}
	}

	if m := prohibitedPattern.FindStringSubmatch(trimmed); m != nil {
		return &Violation{
			Rule:   RuleProhibitedToken,
			Reason: fmt.Sprintf("Prohibited token detected: %s", strings.ToUpper(m[1])),
		}
	}

	if limitPattern.MatchString(trimmed) {
		return &Violation{Rule: RuleLimit, Reason: "LIMIT detected."}
	}

	if idx := strings.Index(trimmed, ";"); idx >= 0 && idx < len(trimmed)-1 {
		return &Violation{Rule: RuleMultiStatement, Reason: "Multiple statements detected (semicolon in middle)."}
	}

	if selectStarPattern.MatchString(trimmed) {
		return &Violation{Rule: RuleSelectStar, Reason: "SELECT * detected. Use explicit columns."}
	}
	return nil
}

func firstToken(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func buildProhibitedPattern(tokens []string) *regexp.Regexp {
	quoted := make([]string, 0, len(tokens))
	for _, token := range tokens {
		quoted = append(quoted, regexp.QuoteMeta(token))
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}
