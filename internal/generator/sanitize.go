package generator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	codeFenceRe      = regexp.MustCompile("(?s)```[a-zA-Z]*\n?(.*?)```")
	clauseBoundaryRe = regexp.MustCompile(`(?i)\b(match|optional\s+match|where|with|return|order\s+by|skip|limit|union)\b`)
)

// ExtractQuery strips code-fence markers and language tags from an LLM
// reply, returning the bare query text.
func ExtractQuery(raw string) string {
	text := strings.TrimSpace(raw)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimPrefix(strings.TrimSpace(text), "cypher")
	return strings.TrimSpace(text)
}

// Sanitize removes residual write clauses and guarantees an explicit row
// limit. Idempotent: sanitizing sanitized text is a no-op.
//
// A write clause is cut from its keyword up to the next clause boundary;
// the rest of the query is preserved. LIMIT is appended only when no
// limit clause survives.
func Sanitize(query string, defaultLimit int) string {
	text := strings.TrimSpace(stripComments(query))
	if text == "" {
		return text
	}

	text = removeWriteClauses(text)
	text = strings.TrimSpace(text)

	if !limitClauseRe.MatchString(maskStrings(text)) {
		text = fmt.Sprintf("%s LIMIT %d", text, defaultLimit)
	}
	return text
}

func removeWriteClauses(text string) string {
	masked := maskStrings(text)
	for {
		loc := writeKeywordRe.FindStringIndex(masked)
		if loc == nil {
			return text
		}
		end := len(text)
		// The clause payload extends to the next clause keyword.
		if next := clauseBoundaryRe.FindStringIndex(masked[loc[1]:]); next != nil {
			end = loc[1] + next[0]
		}
		text = strings.TrimSpace(text[:loc[0]] + " " + text[end:])
		masked = maskStrings(text)
	}
}
