package generator

import (
	"fmt"
	"regexp"
	"strings"

	"graphrag/internal/types"
)

// Match describes a detected template instance: which template fired, the
// schema elements it bound, and the coverage score.
type Match struct {
	Template string
	Label    string
	Score    float64

	// Range bindings.
	Property string
	Operator string
	Value    string

	// Traversal bindings.
	RelType     string
	TargetLabel string
}

// Render produces the query for the match, or "" when the match is empty.
func (m Match) Render(defaultLimit int) string {
	for _, tpl := range templateCatalog {
		if tpl.Name == m.Template {
			return tpl.Build(m, defaultLimit)
		}
	}
	return ""
}

// Template is a question shape answerable without the LLM.
type Template struct {
	Name     string
	Triggers []string // lower-case trigger phrases
	Build    func(m Match, defaultLimit int) string
}

// templateCatalog holds the built-in templates in detection order.
var templateCatalog = []Template{
	{
		Name:     "count",
		Triggers: []string{"how many", "count of", "count", "number of", "total number of"},
		Build: func(m Match, _ int) string {
			return fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS total LIMIT 1", m.Label)
		},
	},
	{
		Name:     "list_all",
		Triggers: []string{"show all", "list all", "show me all", "display all", "get all", "list the", "show the"},
		Build: func(m Match, defaultLimit int) string {
			return fmt.Sprintf("MATCH (n:%s) RETURN n LIMIT %d", m.Label, defaultLimit)
		},
	},
	{
		Name:     "recent",
		Triggers: []string{"most recent", "latest", "newest"},
		Build: func(m Match, defaultLimit int) string {
			return fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.created_at DESC LIMIT %d", m.Label, defaultLimit)
		},
	},
	{
		Name: "range",
		Build: func(m Match, defaultLimit int) string {
			return fmt.Sprintf("MATCH (n:%s) WHERE n.%s %s %s RETURN n LIMIT %d",
				m.Label, m.Property, m.Operator, m.Value, defaultLimit)
		},
	},
	{
		Name:     "traversal",
		Triggers: []string{"and their", "with their", "connected to", "related to", "linked to"},
		Build: func(m Match, defaultLimit int) string {
			return fmt.Sprintf("MATCH (a:%s)-[r:%s]->(b:%s) RETURN a, b LIMIT %d",
				m.Label, m.RelType, m.TargetLabel, defaultLimit)
		},
	},
}

// rangeOperators maps comparison phrases onto operators; longer phrases
// first so "at least" wins over a bare "least".
var rangeOperators = []struct {
	phrase string
	op     string
}{
	{"greater than", ">"},
	{"more than", ">"},
	{"less than", "<"},
	{"fewer than", "<"},
	{"at least", ">="},
	{"at most", "<="},
	{"over", ">"},
	{"above", ">"},
	{"under", "<"},
	{"below", "<"},
}

// Templates returns the static template catalog.
func Templates() []Template {
	out := make([]Template, len(templateCatalog))
	copy(out, templateCatalog)
	return out
}

var wordSplitRe = regexp.MustCompile(`[^a-z0-9_]+`)

func tokenize(s string) []string {
	var out []string
	for _, t := range wordSplitRe.Split(strings.ToLower(s), -1) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// DetectTemplate finds the best-matching template for a question. The
// score is the fraction of question tokens covered by the trigger phrase
// and the schema elements the template bound; detection is
// case-insensitive. Returns a zero Match when nothing triggers.
func DetectTemplate(question string, schema types.GraphSchema) Match {
	tokens := tokenize(question)
	if len(tokens) == 0 {
		return Match{}
	}

	var best Match
	consider := func(m Match) {
		if m.Template != "" && m.Score > best.Score {
			best = m
		}
	}

	label, labelTokens := matchLabel(tokens, schema.Labels)
	if label != "" {
		for _, tpl := range templateCatalog {
			if len(tpl.Triggers) == 0 || tpl.Name == "traversal" {
				continue
			}
			for _, trigger := range tpl.Triggers {
				if !containsPhrase(tokens, tokenize(trigger)) {
					continue
				}
				consider(Match{
					Template: tpl.Name,
					Label:    label,
					Score:    coverage(len(tokenize(trigger))+labelTokens, len(tokens)),
				})
				break // best trigger per template is enough
			}
		}
		consider(detectRange(tokens, label, labelTokens, schema))
	}
	consider(detectTraversal(tokens, schema))

	return best
}

// detectRange matches "label with property over/above/... value" shapes:
// a comparison phrase plus a schema property and a numeric literal.
func detectRange(tokens []string, label string, labelTokens int, schema types.GraphSchema) Match {
	prop := matchProperty(tokens, schema.PropertyKeys)
	value := firstNumber(tokens)
	if prop == "" || value == "" {
		return Match{}
	}
	for _, ro := range rangeOperators {
		phrase := tokenize(ro.phrase)
		if !containsPhrase(tokens, phrase) {
			continue
		}
		return Match{
			Template: "range",
			Label:    label,
			Property: prop,
			Operator: ro.op,
			Value:    value,
			Score:    coverage(len(phrase)+labelTokens+2, len(tokens)),
		}
	}
	return Match{}
}

// detectTraversal matches questions naming two schema labels joined by a
// connective phrase. The relationship type must be named in the question
// or be the only one in the schema.
func detectTraversal(tokens []string, schema types.GraphSchema) Match {
	found := labelsInOrder(tokens, schema.Labels)
	if len(found) < 2 {
		return Match{}
	}
	relType, relTokens := matchRelType(tokens, schema.RelationshipTypes)
	if relType == "" {
		return Match{}
	}
	for _, tpl := range templateCatalog {
		if tpl.Name != "traversal" {
			continue
		}
		for _, trigger := range tpl.Triggers {
			phrase := tokenize(trigger)
			if !containsPhrase(tokens, phrase) {
				continue
			}
			return Match{
				Template:    "traversal",
				Label:       found[0],
				TargetLabel: found[1],
				RelType:     relType,
				Score:       coverage(len(phrase)+2+relTokens, len(tokens)),
			}
		}
	}
	return Match{}
}

func coverage(covered, total int) float64 {
	if covered > total {
		covered = total
	}
	return float64(covered) / float64(total)
}

// containsPhrase reports whether phrase appears as a consecutive token
// run, so the "count" trigger does not fire on "accounts".
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// matchLabel finds a schema label mentioned in the question, tolerating
// plural forms ("customers" matches label "Customer").
func matchLabel(tokens []string, labels []string) (string, int) {
	for _, label := range labels {
		for _, tok := range tokens {
			if tokenMatchesLabel(tok, label) {
				return label, 1
			}
		}
	}
	return "", 0
}

// labelsInOrder returns the distinct schema labels mentioned in the
// question, in question order.
func labelsInOrder(tokens []string, labels []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range tokens {
		for _, label := range labels {
			if seen[label] || !tokenMatchesLabel(tok, label) {
				continue
			}
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

func tokenMatchesLabel(tok, label string) bool {
	want := strings.ToLower(label)
	return tok == want || singular(tok) == want || tok == want+"s"
}

// matchProperty finds a schema property key mentioned verbatim.
func matchProperty(tokens []string, keys []string) string {
	for _, key := range keys {
		want := strings.ToLower(key)
		for _, tok := range tokens {
			if tok == want {
				return key
			}
		}
	}
	return ""
}

// matchRelType finds a relationship type named in the question (type
// tokens split on underscores, e.g. PLACED matches "placed"). When none
// is named but the schema has exactly one type, that one is used.
func matchRelType(tokens []string, relTypes []string) (string, int) {
	for _, rt := range relTypes {
		phrase := tokenize(strings.ReplaceAll(strings.ToLower(rt), "_", " "))
		if containsPhrase(tokens, phrase) {
			return rt, len(phrase)
		}
	}
	if len(relTypes) == 1 {
		return relTypes[0], 0
	}
	return "", 0
}

var numberRe = regexp.MustCompile(`^\d+(\.\d+)?$`)

func firstNumber(tokens []string) string {
	for _, tok := range tokens {
		if numberRe.MatchString(tok) {
			return tok
		}
	}
	return ""
}

func singular(tok string) string {
	switch {
	case strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "ses"):
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss"):
		return tok[:len(tok)-1]
	default:
		return tok
	}
}
