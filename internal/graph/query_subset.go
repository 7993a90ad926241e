package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// The embedded backends (SQLite and in-memory) do not ship a full Cypher
// engine. They execute the subset the built-in query patterns produce:
//
//	MATCH (a:Label) [-[r:TYPE]->(b:Other)]
//	[WHERE a.prop OP value [AND ...]]
//	RETURN a | count(a) | a.prop[, ...]
//	[ORDER BY a.prop [DESC]] [SKIP n] [LIMIT n]
//
// Anything beyond that returns errUnsupportedQuery; deployments that need
// arbitrary generated queries run the Neo4j backend.

var errUnsupportedQuery = fmt.Errorf("query shape not supported by embedded graph store")

type propCond struct {
	Alias string
	Prop  string
	Op    string
	Value interface{}
}

type relPattern struct {
	Alias       string
	Type        string
	Outgoing    bool
	TargetAlias string
	TargetLabel string
}

type returnItem struct {
	Key   string // output column name
	Alias string
	Prop  string // empty means whole node
	Count bool
}

type querySpec struct {
	Alias   string
	Label   string
	Rel     *relPattern
	Conds   []propCond
	Returns []returnItem

	OrderAlias string
	OrderProp  string
	OrderDesc  bool
	Skip       int // -1 when absent
	Limit      int // -1 when absent
}

var (
	nodePatternRe = regexp.MustCompile(`^\(\s*(\w+)\s*:\s*` + "`?" + `(\w+)` + "`?" + `\s*\)`)
	relPatternRe  = regexp.MustCompile(`^(<?)-\[\s*(\w*)\s*:\s*` + "`?" + `(\w+)` + "`?" + `\s*\]-(>?)`)
	condRe        = regexp.MustCompile(`^(\w+)\.(\w+)\s*(=|<>|>=|<=|>|<|CONTAINS)\s*(.+)$`)
	orderRe       = regexp.MustCompile(`^(\w+)\.(\w+)(\s+(?i:DESC|ASC))?$`)
	countRe       = regexp.MustCompile(`^count\s*\(\s*(\*|\w+)\s*\)$`)
	propRefRe     = regexp.MustCompile(`^(\w+)\.(\w+)$`)
)

// parseSubsetQuery parses a query into a spec, resolving $params.
func parseSubsetQuery(query string, params map[string]interface{}) (*querySpec, error) {
	q := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))

	upper := strings.ToUpper(q)
	if !strings.HasPrefix(upper, "MATCH ") && !strings.HasPrefix(upper, "MATCH(") {
		return nil, errUnsupportedQuery
	}
	rest := strings.TrimSpace(q[len("MATCH"):])

	spec := &querySpec{Skip: -1, Limit: -1}

	// Node pattern.
	m := nodePatternRe.FindStringSubmatch(rest)
	if m == nil {
		return nil, errUnsupportedQuery
	}
	spec.Alias, spec.Label = m[1], m[2]
	rest = strings.TrimSpace(rest[len(m[0]):])

	// Optional single-hop relationship.
	if rm := relPatternRe.FindStringSubmatch(rest); rm != nil {
		rel := &relPattern{
			Alias:    rm[2],
			Type:     rm[3],
			Outgoing: rm[4] == ">",
		}
		if rm[1] == "<" && rm[4] == ">" {
			return nil, errUnsupportedQuery
		}
		rest = strings.TrimSpace(rest[len(rm[0]):])
		tm := nodePatternRe.FindStringSubmatch(rest)
		if tm == nil {
			return nil, errUnsupportedQuery
		}
		rel.TargetAlias, rel.TargetLabel = tm[1], tm[2]
		rest = strings.TrimSpace(rest[len(tm[0]):])
		spec.Rel = rel
	}

	// Split the remaining clauses on keywords.
	clauses, err := splitClauses(rest)
	if err != nil {
		return nil, err
	}

	if where, ok := clauses["WHERE"]; ok {
		for _, part := range splitTopLevel(where, " AND ") {
			cond, err := parseCond(strings.TrimSpace(part), params)
			if err != nil {
				return nil, err
			}
			spec.Conds = append(spec.Conds, *cond)
		}
	}

	ret, ok := clauses["RETURN"]
	if !ok {
		return nil, errUnsupportedQuery
	}
	for _, part := range splitTopLevel(ret, ",") {
		item, err := parseReturn(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		spec.Returns = append(spec.Returns, *item)
	}

	if ob, ok := clauses["ORDER BY"]; ok {
		om := orderRe.FindStringSubmatch(strings.TrimSpace(ob))
		if om == nil {
			return nil, errUnsupportedQuery
		}
		spec.OrderAlias, spec.OrderProp = om[1], om[2]
		spec.OrderDesc = strings.EqualFold(strings.TrimSpace(om[3]), "DESC")
	}

	if sk, ok := clauses["SKIP"]; ok {
		n, err := resolveInt(sk, params)
		if err != nil {
			return nil, err
		}
		spec.Skip = n
	}
	if lim, ok := clauses["LIMIT"]; ok {
		n, err := resolveInt(lim, params)
		if err != nil {
			return nil, err
		}
		spec.Limit = n
	}

	return spec, nil
}

// splitClauses divides "WHERE ... RETURN ... ORDER BY ... SKIP n LIMIT n"
// into keyword-indexed segments.
func splitClauses(s string) (map[string]string, error) {
	keywords := []string{"WHERE", "RETURN", "ORDER BY", "SKIP", "LIMIT"}
	type mark struct {
		kw    string
		start int
		end   int
	}
	var marks []mark

	upper := strings.ToUpper(s)
	pos := 0
	for pos < len(s) {
		found := false
		for _, kw := range keywords {
			if strings.HasPrefix(upper[pos:], kw) &&
				(pos == 0 || upper[pos-1] == ' ') &&
				(pos+len(kw) >= len(s) || upper[pos+len(kw)] == ' ' || upper[pos+len(kw)] == '(') {
				marks = append(marks, mark{kw: kw, start: pos, end: pos + len(kw)})
				pos += len(kw)
				found = true
				break
			}
		}
		if !found {
			pos++
		}
	}
	if len(marks) == 0 || marks[0].start != 0 {
		// Leftover text before the first clause keyword means a pattern we
		// did not parse; reject rather than silently ignore it.
		return nil, errUnsupportedQuery
	}

	out := make(map[string]string, len(marks))
	for i, m := range marks {
		end := len(s)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		if _, dup := out[m.kw]; dup {
			return nil, errUnsupportedQuery
		}
		out[m.kw] = strings.TrimSpace(s[m.end:end])
	}
	return out, nil
}

// splitTopLevel splits on sep outside of quotes.
func splitTopLevel(s, sep string) []string {
	var parts []string
	depth := 0
	inQuote := byte(0)
	last := 0
	upper := strings.ToUpper(s)
	upperSep := strings.ToUpper(sep)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && strings.HasPrefix(upper[i:], upperSep):
			parts = append(parts, s[last:i])
			i += len(sep) - 1
			last = i + 1
		}
	}
	parts = append(parts, s[last:])
	return parts
}

func parseCond(s string, params map[string]interface{}) (*propCond, error) {
	m := condRe.FindStringSubmatch(s)
	if m == nil {
		return nil, errUnsupportedQuery
	}
	val, err := resolveLiteral(strings.TrimSpace(m[4]), params)
	if err != nil {
		return nil, err
	}
	return &propCond{Alias: m[1], Prop: m[2], Op: m[3], Value: val}, nil
}

func parseReturn(s string) (*returnItem, error) {
	key := s
	if idx := strings.Index(strings.ToUpper(s), " AS "); idx >= 0 {
		key = strings.TrimSpace(s[idx+4:])
		s = strings.TrimSpace(s[:idx])
	}

	if cm := countRe.FindStringSubmatch(s); cm != nil {
		alias := cm[1]
		if alias == "*" {
			alias = ""
		}
		return &returnItem{Key: key, Alias: alias, Count: true}, nil
	}
	if pm := propRefRe.FindStringSubmatch(s); pm != nil {
		return &returnItem{Key: key, Alias: pm[1], Prop: pm[2]}, nil
	}
	if regexp.MustCompile(`^\w+$`).MatchString(s) {
		return &returnItem{Key: key, Alias: s}, nil
	}
	return nil, errUnsupportedQuery
}

func resolveLiteral(s string, params map[string]interface{}) (interface{}, error) {
	switch {
	case strings.HasPrefix(s, "$"):
		v, ok := params[s[1:]]
		if !ok {
			return nil, fmt.Errorf("missing query parameter: %s", s)
		}
		return v, nil
	case len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0]:
		return s[1 : len(s)-1], nil
	case strings.EqualFold(s, "true"):
		return true, nil
	case strings.EqualFold(s, "false"):
		return false, nil
	default:
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return nil, errUnsupportedQuery
		}
		return f, nil
	}
}

func resolveInt(s string, params map[string]interface{}) (int, error) {
	v, err := resolveLiteral(strings.TrimSpace(s), params)
	if err != nil {
		return 0, err
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, errUnsupportedQuery
	}
	return n, nil
}

// =============================================================================
// EVALUATION
// =============================================================================

// graphData is what the evaluator needs from a backend.
type graphData interface {
	nodesByLabel(label string) []Node
	edgesFrom(sourceID, relType string) []Relationship
	edgesTo(targetID, relType string) []Relationship
}

type binding map[string]Node

// evalSubsetQuery runs a parsed spec over backend data.
func evalSubsetQuery(data graphData, spec *querySpec) ([]map[string]interface{}, error) {
	var bindings []binding

	for _, n := range data.nodesByLabel(spec.Label) {
		if spec.Rel == nil {
			bindings = append(bindings, binding{spec.Alias: n})
			continue
		}
		for _, target := range matchTargets(data, n, spec.Rel) {
			bindings = append(bindings, binding{spec.Alias: n, spec.Rel.TargetAlias: target})
		}
	}

	// Filter.
	var matched []binding
	for _, b := range bindings {
		ok := true
		for _, cond := range spec.Conds {
			pass, err := evalCond(b, cond)
			if err != nil {
				return nil, err
			}
			if !pass {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, b)
		}
	}

	// Aggregate.
	if len(spec.Returns) == 1 && spec.Returns[0].Count {
		return []map[string]interface{}{
			{spec.Returns[0].Key: len(matched)},
		}, nil
	}
	for _, r := range spec.Returns {
		if r.Count {
			return nil, errUnsupportedQuery
		}
	}

	// Order.
	if spec.OrderProp != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			vi := bindingProp(matched[i], spec.OrderAlias, spec.OrderProp)
			vj := bindingProp(matched[j], spec.OrderAlias, spec.OrderProp)
			less := compareValues(vi, vj) < 0
			if spec.OrderDesc {
				return !less && compareValues(vi, vj) != 0
			}
			return less
		})
	}

	// Paginate.
	if spec.Skip > 0 {
		if spec.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[spec.Skip:]
		}
	}
	if spec.Limit >= 0 && len(matched) > spec.Limit {
		matched = matched[:spec.Limit]
	}

	// Project.
	rows := make([]map[string]interface{}, 0, len(matched))
	for _, b := range matched {
		row := make(map[string]interface{}, len(spec.Returns))
		for _, r := range spec.Returns {
			node, ok := b[r.Alias]
			if !ok {
				return nil, fmt.Errorf("unknown return alias: %s", r.Alias)
			}
			if r.Prop == "" {
				row[r.Key] = nodeProps(node)
			} else {
				row[r.Key] = node.Properties[r.Prop]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func matchTargets(data graphData, n Node, rel *relPattern) []Node {
	var targets []Node
	if rel.Outgoing {
		for _, e := range data.edgesFrom(n.ID, rel.Type) {
			if e.TargetLabel != rel.TargetLabel {
				continue
			}
			for _, t := range data.nodesByLabel(rel.TargetLabel) {
				if t.ID == e.TargetID {
					targets = append(targets, t)
				}
			}
		}
	} else {
		for _, e := range data.edgesTo(n.ID, rel.Type) {
			if e.SourceLabel != rel.TargetLabel {
				continue
			}
			for _, t := range data.nodesByLabel(rel.TargetLabel) {
				if t.ID == e.SourceID {
					targets = append(targets, t)
				}
			}
		}
	}
	return targets
}

func evalCond(b binding, cond propCond) (bool, error) {
	node, ok := b[cond.Alias]
	if !ok {
		return false, fmt.Errorf("unknown alias in condition: %s", cond.Alias)
	}
	got, exists := node.Properties[cond.Prop]
	if cond.Prop == "id" && !exists {
		got, exists = node.ID, true
	}
	if !exists {
		return false, nil
	}

	switch cond.Op {
	case "=":
		return compareValues(got, cond.Value) == 0, nil
	case "<>":
		return compareValues(got, cond.Value) != 0, nil
	case ">":
		return compareValues(got, cond.Value) > 0, nil
	case ">=":
		return compareValues(got, cond.Value) >= 0, nil
	case "<":
		return compareValues(got, cond.Value) < 0, nil
	case "<=":
		return compareValues(got, cond.Value) <= 0, nil
	case "CONTAINS":
		return strings.Contains(cast.ToString(got), cast.ToString(cond.Value)), nil
	default:
		return false, errUnsupportedQuery
	}
}

// compareValues orders two property values, numerically when both coerce
// to numbers, lexicographically otherwise.
func compareValues(a, b interface{}) int {
	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(cast.ToString(a), cast.ToString(b))
}

func bindingProp(b binding, alias, prop string) interface{} {
	node, ok := b[alias]
	if !ok {
		return nil
	}
	return node.Properties[prop]
}

func nodeProps(n Node) map[string]interface{} {
	props := make(map[string]interface{}, len(n.Properties)+1)
	for k, v := range n.Properties {
		props[k] = v
	}
	props["id"] = n.ID
	return props
}
