// Package graph implements the structural graph: a labeled property
// graph with seven node labels and twelve edge labels (plus the
// TaggedWith multi-source group into Concept), merge-by-key node upsert,
// and an ad-hoc query method.
//
// Storage is in-process adjacency maps guarded by one RWMutex rather
// than a network graph database — the runtime is single-process, and a
// networked engine would break that. Query() implements the single-hop
// MATCH patterns the runtime actually issues (herd_checkin's AssignedTo
// restriction, herd_graph's ad-hoc lookups) rather than a general
// Cypher parser.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// NodeLabel is one of the seven node kinds.
type NodeLabel string

const (
	Decision   NodeLabel = "Decision"
	AgentNode  NodeLabel = "Agent"
	Ticket     NodeLabel = "Ticket"
	File       NodeLabel = "File"
	Repository NodeLabel = "Repository"
	Session    NodeLabel = "Session"
	Concept    NodeLabel = "Concept"
)

// EdgeLabel is one of the twelve relationship kinds.
type EdgeLabel string

const (
	Decides    EdgeLabel = "Decides"
	Implements EdgeLabel = "Implements"
	Touches    EdgeLabel = "Touches"
	Reviews    EdgeLabel = "Reviews"
	Supersedes EdgeLabel = "Supersedes"
	DependsOn  EdgeLabel = "DependsOn"
	SpawnedBy  EdgeLabel = "SpawnedBy"
	AssignedTo EdgeLabel = "AssignedTo"
	BlockedBy  EdgeLabel = "BlockedBy"
	CompletedBy EdgeLabel = "CompletedBy"
	BelongsTo  EdgeLabel = "BelongsTo"
	TaggedWith EdgeLabel = "TaggedWith"
)

// Node is one vertex, keyed by (Label, ID) within the graph.
type Node struct {
	Label NodeLabel
	ID    string
	Props map[string]any
}

// Edge is one directed, labeled relationship between two nodes.
type Edge struct {
	Rel       EdgeLabel
	FromLabel NodeLabel
	FromID    string
	ToLabel   NodeLabel
	ToID      string
	Props     map[string]any
	CreatedAt time.Time
}

type nodeKey struct {
	label NodeLabel
	id    string
}

// Graph is the in-process labeled property graph. All node and edge
// storage is guarded by one lock; is_available() never raises, so
// consumers always have a safe way to skip graph-dependent code paths.
type Graph struct {
	mu    sync.RWMutex
	nodes map[nodeKey]*Node
	edges []*Edge
	now   func() time.Time
}

// New constructs an empty, ready-to-use Graph. Schema initialization is
// idempotent by construction: there are no on-disk tables to create.
func New() *Graph {
	return &Graph{nodes: make(map[nodeKey]*Node), now: time.Now}
}

// IsAvailable reports whether the graph backend can serve queries. The
// in-process implementation is always available once constructed; a
// networked backend would report false here instead of raising.
func (g *Graph) IsAvailable() bool { return g != nil }

// MergeNode inserts or updates the node identified by props["id"]. If a
// node with that id already exists under label, its non-key properties
// are replaced by props; otherwise a new node is inserted. Idempotent:
// merging the same id twice always leaves exactly one node.
func (g *Graph) MergeNode(label NodeLabel, props map[string]any) (*Node, error) {
	idVal, ok := props["id"]
	if !ok {
		return nil, fmt.Errorf("graph: MergeNode requires an \"id\" property")
	}
	id := fmt.Sprint(idVal)

	g.mu.Lock()
	defer g.mu.Unlock()

	key := nodeKey{label: label, id: id}
	clone := make(map[string]any, len(props))
	for k, v := range props {
		clone[k] = v
	}
	clone["id"] = id

	if existing, ok := g.nodes[key]; ok {
		existing.Props = clone
		return existing, nil
	}
	n := &Node{Label: label, ID: id, Props: clone}
	g.nodes[key] = n
	return n, nil
}

// GetNode returns the node for (label, id), or nil if absent.
func (g *Graph) GetNode(label NodeLabel, id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[nodeKey{label: label, id: id}]
}

// CreateEdge matches both endpoints by id and creates a directed edge.
// CreatedAt is stamped when absent from props. Returns an error if either
// endpoint does not exist — an edge cannot dangle.
func (g *Graph) CreateEdge(rel EdgeLabel, fromLabel NodeLabel, fromID string, toLabel NodeLabel, toID string, props map[string]any) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[nodeKey{label: fromLabel, id: fromID}]; !ok {
		return nil, fmt.Errorf("graph: CreateEdge: no %s node %q", fromLabel, fromID)
	}
	if _, ok := g.nodes[nodeKey{label: toLabel, id: toID}]; !ok {
		return nil, fmt.Errorf("graph: CreateEdge: no %s node %q", toLabel, toID)
	}

	clone := make(map[string]any, len(props))
	for k, v := range props {
		clone[k] = v
	}
	createdAt := g.now().UTC()
	if v, ok := clone["created_at"].(time.Time); ok {
		createdAt = v
	}
	e := &Edge{
		Rel: rel, FromLabel: fromLabel, FromID: fromID,
		ToLabel: toLabel, ToID: toID, Props: clone, CreatedAt: createdAt,
	}
	g.edges = append(g.edges, e)
	return e, nil
}

// Neighbors returns every node reached by a single rel-labeled hop out of
// (fromLabel, fromID), restricted to toLabel when non-empty.
func (g *Graph) Neighbors(rel EdgeLabel, fromLabel NodeLabel, fromID string, toLabel NodeLabel) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*Node
	for _, e := range g.edges {
		if e.Rel != rel || e.FromLabel != fromLabel || e.FromID != fromID {
			continue
		}
		if toLabel != "" && e.ToLabel != toLabel {
			continue
		}
		if n, ok := g.nodes[nodeKey{label: e.ToLabel, id: e.ToID}]; ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Incoming returns every node with a single rel-labeled hop into
// (toLabel, toID), restricted to fromLabel when non-empty. Used by
// herd_checkin's "agents AssignedTo this ticket" restriction, which reads
// the edge from the Ticket side.
func (g *Graph) Incoming(rel EdgeLabel, toLabel NodeLabel, toID string, fromLabel NodeLabel) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*Node
	for _, e := range g.edges {
		if e.Rel != rel || e.ToLabel != toLabel || e.ToID != toID {
			continue
		}
		if fromLabel != "" && e.FromLabel != fromLabel {
			continue
		}
		if n, ok := g.nodes[nodeKey{label: e.FromLabel, id: e.FromID}]; ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Query runs a small subset of Cypher-shaped single-hop MATCH
// patterns against the graph (two-hop patterns are not parsed), e.g.:
//
//	MATCH (a:Agent)-[:AssignedTo]->(t:Ticket {id: $ticket}) RETURN a
//	MATCH (d:Decision)-[:Supersedes]->(p:Decision {id: $id}) RETURN d
//
// Rows are returned as maps keyed by the RETURN-clause variable name.
// This is not a general Cypher engine: it recognizes exactly the handful
// of shapes the runtime's own tool handlers issue.
func (g *Graph) Query(cypher string, params map[string]any) ([]map[string]any, error) {
	q, err := parseQuery(cypher)
	if err != nil {
		return nil, err
	}

	anchorID := ""
	if q.anchorParam != "" {
		v, ok := params[q.anchorParam]
		if !ok {
			return nil, fmt.Errorf("graph: query references undeclared parameter %q", q.anchorParam)
		}
		anchorID = fmt.Sprint(v)
	} else {
		anchorID = q.anchorLiteral
	}

	var nodes []*Node
	if q.anchorSide == "to" {
		nodes = g.Incoming(q.rel, q.anchorLabel, anchorID, q.otherLabel)
	} else {
		nodes = g.Neighbors(q.rel, q.anchorLabel, anchorID, q.otherLabel)
	}

	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, map[string]any{q.returnVar: nodeToRow(n)})
	}
	return rows, nil
}

func nodeToRow(n *Node) map[string]any {
	row := make(map[string]any, len(n.Props)+1)
	for k, v := range n.Props {
		row[k] = v
	}
	row["id"] = n.ID
	return row
}

type parsedQuery struct {
	anchorLabel   NodeLabel
	anchorSide    string // "from" or "to" — which end carries the {id:$param} filter
	anchorParam   string
	anchorLiteral string
	rel           EdgeLabel
	otherLabel    NodeLabel
	returnVar     string
}

// parseQuery recognizes:
//
//	MATCH (x:Label)-[:REL]->(y:Label {id: $p}) RETURN x
//	MATCH (x:Label {id: $p})-[:REL]->(y:Label) RETURN y
//
// and nothing else. Whitespace between tokens is flexible; the rest of
// the shape is fixed, matching the handful of call sites in
// internal/handlers that issue these queries.
func parseQuery(cypher string) (parsedQuery, error) {
	s := strings.TrimSpace(cypher)
	if !strings.HasPrefix(s, "MATCH") {
		return parsedQuery{}, fmt.Errorf("graph: unsupported query (must start with MATCH): %s", cypher)
	}

	retIdx := strings.LastIndex(s, "RETURN")
	if retIdx < 0 {
		return parsedQuery{}, fmt.Errorf("graph: query missing RETURN clause: %s", cypher)
	}
	returnVar := strings.TrimSpace(s[retIdx+len("RETURN"):])
	pattern := strings.TrimSpace(s[len("MATCH") : retIdx])

	arrowIdx := strings.Index(pattern, "-[:")
	relEnd := strings.Index(pattern, "]->")
	if arrowIdx < 0 || relEnd < 0 {
		return parsedQuery{}, fmt.Errorf("graph: unsupported relationship pattern: %s", pattern)
	}
	left := strings.TrimSpace(pattern[:arrowIdx])
	rel := strings.TrimSpace(pattern[arrowIdx+3 : relEnd])
	right := strings.TrimSpace(pattern[relEnd+3:])

	leftLabel, leftFilter, leftVar, err := parseNodePattern(left)
	if err != nil {
		return parsedQuery{}, err
	}
	rightLabel, rightFilter, rightVar, err := parseNodePattern(right)
	if err != nil {
		return parsedQuery{}, err
	}

	q := parsedQuery{rel: EdgeLabel(rel), returnVar: returnVar}
	switch {
	case leftFilter != "" && returnVar == rightVar:
		q.anchorSide, q.anchorLabel, q.otherLabel = "from", leftLabel, rightLabel
		q.anchorParam, q.anchorLiteral = splitFilterValue(leftFilter)
	case rightFilter != "" && returnVar == leftVar:
		q.anchorSide, q.anchorLabel, q.otherLabel = "to", rightLabel, leftLabel
		q.anchorParam, q.anchorLiteral = splitFilterValue(rightFilter)
	default:
		return parsedQuery{}, fmt.Errorf("graph: query must filter exactly one endpoint by id and RETURN the other: %s", cypher)
	}
	return q, nil
}

// parseNodePattern parses "(x:Label {id: $p})" or "(x:Label)" into its
// label, raw filter-value text (e.g. "$p" or "lit-id"), and variable name.
func parseNodePattern(s string) (NodeLabel, string, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return "", "", "", fmt.Errorf("graph: malformed node pattern: %s", s)
	}
	inner := s[1 : len(s)-1]

	filter := ""
	if idx := strings.Index(inner, "{"); idx >= 0 {
		end := strings.LastIndex(inner, "}")
		if end < 0 {
			return "", "", "", fmt.Errorf("graph: unterminated property filter: %s", s)
		}
		filter = strings.TrimSpace(inner[idx+1 : end])
		inner = strings.TrimSpace(inner[:idx])
	}

	parts := strings.SplitN(inner, ":", 2)
	if len(parts) != 2 {
		return "", "", "", fmt.Errorf("graph: node pattern missing label: %s", s)
	}
	varName := strings.TrimSpace(parts[0])
	label := strings.TrimSpace(parts[1])

	if filter != "" {
		kv := strings.SplitN(filter, ":", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) != "id" {
			return "", "", "", fmt.Errorf("graph: only an id filter is supported: %s", filter)
		}
		filter = strings.TrimSpace(kv[1])
	}
	return NodeLabel(label), filter, varName, nil
}

func splitFilterValue(v string) (param, literal string) {
	if strings.HasPrefix(v, "$") {
		return strings.TrimPrefix(v, "$"), ""
	}
	return "", strings.Trim(v, `"'`)
}
