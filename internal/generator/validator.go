package generator

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation is the validator's verdict on a query.
type Validation struct {
	Valid      bool     `json:"valid"`
	IsReadOnly bool     `json:"is_read_only"`
	Complexity int      `json:"complexity"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

var (
	writeKeywordRe = regexp.MustCompile(`(?i)\b(detach\s+delete|create|merge|set|delete|remove|drop)\b`)
	matchClauseRe  = regexp.MustCompile(`(?i)\b(match|call)\b`)
	returnClauseRe = regexp.MustCompile(`(?i)\breturn\b`)
	limitClauseRe  = regexp.MustCompile(`(?i)\blimit\b`)
	patternStepRe  = regexp.MustCompile(`-\[[^\]]*\]->|<-\[[^\]]*\]-`)
	aggregateRe    = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max|collect)\s*\(`)
	complexityRe   = regexp.MustCompile(`(?i)\b(optional\s+match|match|where|with)\b`)
	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
)

// stripComments removes line comments.
func stripComments(q string) string {
	return lineCommentRe.ReplaceAllString(q, "")
}

// maskStrings blanks out quoted literals so keyword detection cannot be
// fooled by values like 'please delete me'.
func maskStrings(q string) string {
	out := []byte(q)
	var quote byte
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else if c != '\n' {
				out[i] = ' '
			}
		case c == '\'' || c == '"':
			quote = c
		}
	}
	return string(out)
}

// WriteClauses returns the distinct write keywords present in a query,
// upper-cased, in order of first appearance. Quoted literals and line
// comments are ignored. The executor reuses this as its read-only gate.
func WriteClauses(q string) []string {
	return writeClauses(q)
}

// writeClauses returns the distinct write keywords present, upper-cased,
// in order of first appearance.
func writeClauses(q string) []string {
	masked := maskStrings(stripComments(q))
	seen := make(map[string]bool)
	var clauses []string
	for _, m := range writeKeywordRe.FindAllString(masked, -1) {
		kw := strings.ToUpper(strings.Join(strings.Fields(m), " "))
		if !seen[kw] {
			seen[kw] = true
			clauses = append(clauses, kw)
		}
	}
	return clauses
}

// Validate checks a query against the read-only and shape rules.
//
// Complexity is a heuristic: clause keywords count 1, pattern steps 1,
// aggregates 2. Exceeding maxComplexity is a warning, not an error.
func Validate(query string, allowWrite bool, maxComplexity int) Validation {
	v := Validation{}
	stripped := strings.TrimSpace(stripComments(query))
	if stripped == "" {
		v.Errors = append(v.Errors, "query is empty")
		return v
	}
	masked := maskStrings(stripped)

	if !matchClauseRe.MatchString(masked) {
		v.Errors = append(v.Errors, "query has no MATCH or CALL clause")
	}
	if !returnClauseRe.MatchString(masked) {
		v.Errors = append(v.Errors, "query has no RETURN clause")
	}

	clauses := writeClauses(stripped)
	v.IsReadOnly = len(clauses) == 0
	if !v.IsReadOnly && !allowWrite {
		v.Errors = append(v.Errors, fmt.Sprintf("write clauses not allowed: %s", strings.Join(clauses, ", ")))
	}

	v.Complexity = len(complexityRe.FindAllString(masked, -1)) +
		len(patternStepRe.FindAllString(masked, -1)) +
		2*len(aggregateRe.FindAllString(masked, -1))
	if maxComplexity > 0 && v.Complexity > maxComplexity {
		v.Warnings = append(v.Warnings, fmt.Sprintf("complexity %d exceeds threshold %d", v.Complexity, maxComplexity))
	}

	if !limitClauseRe.MatchString(masked) {
		v.Warnings = append(v.Warnings, "query has no LIMIT clause")
	}

	v.Valid = len(v.Errors) == 0
	return v
}
