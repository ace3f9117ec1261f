package neo4jstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/gema-kg/internal/graphstore"
)

// Labels and relationship types cannot be parameterized in Cypher, so every identifier that
// reaches a statement goes through graphstore.ValidateIdentifier first. Values never do.

func quoteIdent(name string) (string, error) {
	if err := graphstore.ValidateIdentifier(name); err != nil {
		return "", err
	}
	return "`" + name + "`", nil
}

func createVertexCypher(label string) (string, error) {
	l, err := quoteIdent(label)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE (n:%s) SET n = $props RETURN n.id AS id", l), nil
}

func getVertexCypher(label string) (string, error) {
	l, err := quoteIdent(label)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n.doc_json AS doc", l), nil
}

func updateVertexCypher(label string) (string, error) {
	l, err := quoteIdent(label)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH (n:%s {id: $id}) SET n += $props RETURN n.id AS id", l), nil
}

func deleteVertexCypher(label string) (string, error) {
	l, err := quoteIdent(label)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n RETURN count(n) AS deleted", l), nil
}

func createEdgeCypher(fromLabel, relType, toLabel string) (string, error) {
	fl, err := quoteIdent(fromLabel)
	if err != nil {
		return "", err
	}
	rt, err := quoteIdent(relType)
	if err != nil {
		return "", err
	}
	tl, err := quoteIdent(toLabel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"MATCH (a:%s {id: $from}) MATCH (b:%s {id: $to}) CREATE (a)-[r:%s]->(b) SET r = $props RETURN r.id AS id",
		fl, tl, rt,
	), nil
}

// findCypher builds a label scan with one equality predicate per filter key. Keys are sorted
// so the statement text is stable; values are bound as $f0..$fN.
func findCypher(label string, filter graphstore.Document) (string, map[string]any, graphstore.Document, error) {
	l, err := quoteIdent(label)
	if err != nil {
		return "", nil, nil, err
	}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	params := map[string]any{}
	residual := graphstore.Document{}
	predicates := make([]string, 0, len(keys))
	for _, key := range keys {
		value := filter[key]
		if !isScalar(value) || graphstore.ValidateIdentifier(key) != nil {
			residual[key] = value
			continue
		}
		name := fmt.Sprintf("f%d", len(predicates))
		predicates = append(predicates, fmt.Sprintf("n.`%s` = $%s", key, name))
		params[name] = value
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)", l)
	if len(predicates) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(predicates, " AND "))
	}
	b.WriteString(" RETURN n.doc_json AS doc ORDER BY n.seq")
	return b.String(), params, residual, nil
}

func edgesCypher(relType string, filter graphstore.EdgeFilter) (string, map[string]any, error) {
	rt, err := quoteIdent(relType)
	if err != nil {
		return "", nil, err
	}
	params := map[string]any{}
	predicates := make([]string, 0, 2)
	if len(filter.From) > 0 {
		predicates = append(predicates, "a.id IN $from")
		params["from"] = filter.From
	}
	if len(filter.To) > 0 {
		predicates = append(predicates, "b.id IN $to")
		params["to"] = filter.To
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (a)-[r:%s]->(b)", rt)
	if len(predicates) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(predicates, " AND "))
	}
	b.WriteString(" RETURN r.id AS id, a.id AS from, b.id AS to, r.attrs_json AS attrs ORDER BY r.seq")
	return b.String(), params, nil
}

func traverseCypher(startLabel, relType string, direction graphstore.Direction, maxDepth int) (string, error) {
	sl, err := quoteIdent(startLabel)
	if err != nil {
		return "", err
	}
	rt, err := quoteIdent(relType)
	if err != nil {
		return "", err
	}
	if maxDepth <= 0 {
		return "", fmt.Errorf("%w: max depth must be positive", graphstore.ErrInvalidQuery)
	}
	pattern := fmt.Sprintf("-[:%s*1..%d]->", rt, maxDepth)
	if direction == graphstore.Inbound {
		pattern = fmt.Sprintf("<-[:%s*1..%d]-", rt, maxDepth)
	}
	return fmt.Sprintf(
		"MATCH p = (s:%s {id: $start})%s(n) WHERE n.id <> $start "+
			"WITH n, min(length(p)) AS depth RETURN n.doc_json AS doc ORDER BY depth, n.seq",
		sl, pattern,
	), nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

// nodeProps flattens a document into node properties: the full JSON document plus every
// scalar top-level field so label scans can filter on them. A zero seq keeps the stored one.
func nodeProps(doc graphstore.Document, docJSON string, seq int64) map[string]any {
	props := map[string]any{
		"id":       doc.ID(),
		"doc_json": docJSON,
	}
	if seq > 0 {
		props["seq"] = seq
	}
	for key, value := range doc {
		if key == graphstore.FieldID || graphstore.ValidateIdentifier(key) != nil || !isScalar(value) {
			continue
		}
		props[key] = value
	}
	return props
}
