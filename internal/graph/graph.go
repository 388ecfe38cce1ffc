// Package graph implements the typed DAG of nodes and edges that makes
// up one workflow: structural validation (acyclic, port existence,
// schema compatibility, required-input coverage) and adjacency queries
// the orchestrator needs to schedule work.
package graph

import "github.com/lyzr/workflowengine/internal/id"

// Graph is a directed graph of Nodes connected by Edges. The zero value
// is not usable; construct with New.
//
// Internally nodes live in a slice with a NodeID→index map alongside,
// mirroring the handle+index-map pattern graph libraries use — the
// index is rebuilt whenever a removal would otherwise leave stale
// slots, and is never exposed outside this package.
type Graph struct {
	nodes   []Node
	index   map[id.NodeID]int
	outEdge map[id.NodeID][]edgeEntry // edges keyed by source
	inEdge  map[id.NodeID][]edgeEntry // edges keyed by target
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index:   make(map[id.NodeID]int),
		outEdge: make(map[id.NodeID][]edgeEntry),
		inEdge:  make(map[id.NodeID][]edgeEntry),
	}
}

// AddNode inserts a node and returns its ID.
func (g *Graph) AddNode(n Node) id.NodeID {
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return n.ID
}

// Node returns the node with the given ID.
func (g *Graph) Node(nodeID id.NodeID) (Node, bool) {
	idx, ok := g.index[nodeID]
	if !ok {
		return Node{}, false
	}
	return g.nodes[idx], true
}

// Nodes returns every node in the graph, in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// RemoveNode removes a node and every edge incident to it, then
// rebuilds the index.
func (g *Graph) RemoveNode(nodeID id.NodeID) {
	if _, ok := g.index[nodeID]; !ok {
		return
	}

	filtered := g.nodes[:0]
	for _, n := range g.nodes {
		if n.ID != nodeID {
			filtered = append(filtered, n)
		}
	}
	g.nodes = filtered
	g.rebuildIndex()

	delete(g.outEdge, nodeID)
	delete(g.inEdge, nodeID)
	for src, edges := range g.outEdge {
		g.outEdge[src] = removeEdgesTo(edges, nodeID)
	}
	for tgt, edges := range g.inEdge {
		g.inEdge[tgt] = removeEdgesFrom(edges, nodeID)
	}
}

func (g *Graph) rebuildIndex() {
	g.index = make(map[id.NodeID]int, len(g.nodes))
	for i, n := range g.nodes {
		g.index[n.ID] = i
	}
}

func removeEdgesTo(edges []edgeEntry, target id.NodeID) []edgeEntry {
	filtered := edges[:0]
	for _, e := range edges {
		if e.TargetID != target {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func removeEdgesFrom(edges []edgeEntry, source id.NodeID) []edgeEntry {
	filtered := edges[:0]
	for _, e := range edges {
		if e.SourceID != source {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// AddEdge connects source's output port to target's input port,
// validating both ports exist and their schemas are compatible.
func (g *Graph) AddEdge(source, target id.NodeID, edge Edge) error {
	srcNode, ok := g.Node(source)
	if !ok {
		return &Error{Kind: ErrNodeNotFound, NodeID: source}
	}
	tgtNode, ok := g.Node(target)
	if !ok {
		return &Error{Kind: ErrNodeNotFound, NodeID: target}
	}

	srcPort, ok := srcNode.OutputPort(edge.SourcePort)
	if !ok {
		return &Error{Kind: ErrSourcePortNotFound, NodeID: source, Port: edge.SourcePort}
	}
	tgtPort, ok := tgtNode.InputPort(edge.TargetPort)
	if !ok {
		return &Error{Kind: ErrTargetPortNotFound, NodeID: target, Port: edge.TargetPort}
	}

	if !srcPort.Schema.IsCompatibleWith(tgtPort.Schema) {
		return &Error{Kind: ErrIncompatibleSchemas, NodeID: target, Port: edge.TargetPort}
	}

	entry := edgeEntry{SourceID: source, TargetID: target, Edge: edge}
	g.outEdge[source] = append(g.outEdge[source], entry)
	g.inEdge[target] = append(g.inEdge[target], entry)
	return nil
}

// Predecessor pairs one incoming edge with the node it originates from.
type Predecessor struct {
	Node Node
	Edge Edge
}

// Successor pairs one outgoing edge with the node it targets.
type Successor struct {
	Node Node
	Edge Edge
}

// Predecessors returns every (node, edge) pair feeding into nodeID.
func (g *Graph) Predecessors(nodeID id.NodeID) []Predecessor {
	edges := g.inEdge[nodeID]
	out := make([]Predecessor, 0, len(edges))
	for _, e := range edges {
		n, ok := g.Node(e.SourceID)
		if !ok {
			continue // tolerant: endpoint may have been removed
		}
		out = append(out, Predecessor{Node: n, Edge: e.Edge})
	}
	return out
}

// Successors returns every (node, edge) pair nodeID feeds into.
func (g *Graph) Successors(nodeID id.NodeID) []Successor {
	edges := g.outEdge[nodeID]
	out := make([]Successor, 0, len(edges))
	for _, e := range edges {
		n, ok := g.Node(e.TargetID)
		if !ok {
			continue
		}
		out = append(out, Successor{Node: n, Edge: e.Edge})
	}
	return out
}

// EntryNodes returns nodes with no incoming edges.
func (g *Graph) EntryNodes() []Node {
	var out []Node
	for _, n := range g.nodes {
		if len(g.inEdge[n.ID]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// TerminalNodes returns nodes with no outgoing edges.
func (g *Graph) TerminalNodes() []Node {
	var out []Node
	for _, n := range g.nodes {
		if len(g.outEdge[n.ID]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Between returns every node on some path from fromID to toID,
// exclusive of both endpoints — the subgraph a FanOut node's array feeds
// before reaching its declared FanIn counterpart.
func (g *Graph) Between(fromID, toID id.NodeID) []Node {
	downstream := g.reachableForward(fromID)
	upstream := g.reachableBackward(toID)

	var out []Node
	for _, n := range g.nodes {
		if n.ID == fromID || n.ID == toID {
			continue
		}
		if downstream[n.ID] && upstream[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

// FindFanIn returns the ControlFlow FanIn node declared as closing
// fanOutID, if one exists.
func (g *Graph) FindFanIn(fanOutID id.NodeID) (Node, bool) {
	for _, n := range g.nodes {
		cfg := n.Config.ControlFlow
		if cfg != nil && cfg.Kind == ControlFlowKindFanIn && cfg.FanOutNode == string(fanOutID) {
			return n, true
		}
	}
	return Node{}, false
}

func (g *Graph) reachableForward(start id.NodeID) map[id.NodeID]bool {
	seen := make(map[id.NodeID]bool)
	queue := []id.NodeID{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range g.outEdge[n] {
			if !seen[e.TargetID] {
				seen[e.TargetID] = true
				queue = append(queue, e.TargetID)
			}
		}
	}
	return seen
}

func (g *Graph) reachableBackward(start id.NodeID) map[id.NodeID]bool {
	seen := make(map[id.NodeID]bool)
	queue := []id.NodeID{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range g.inEdge[n] {
			if !seen[e.SourceID] {
				seen[e.SourceID] = true
				queue = append(queue, e.SourceID)
			}
		}
	}
	return seen
}

// Validate checks that every required input port has at least one
// incoming edge and that the graph is acyclic.
func (g *Graph) Validate() error {
	for _, n := range g.nodes {
		for _, port := range n.RequiredInputs() {
			if !g.hasIncomingTo(n.ID, port.Name) {
				return &Error{Kind: ErrRequiredInputMissing, NodeID: n.ID, Port: port.Name}
			}
		}
	}
	if g.hasCycle() {
		return &Error{Kind: ErrCycleDetected}
	}
	return nil
}

func (g *Graph) hasIncomingTo(nodeID id.NodeID, port string) bool {
	for _, e := range g.inEdge[nodeID] {
		if e.Edge.TargetPort == port {
			return true
		}
	}
	return false
}

// hasCycle runs a standard three-color DFS over the node set.
func (g *Graph) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[id.NodeID]int, len(g.nodes))

	var visit func(id.NodeID) bool
	visit = func(n id.NodeID) bool {
		color[n] = gray
		for _, e := range g.outEdge[n] {
			switch color[e.TargetID] {
			case gray:
				return true
			case white:
				if visit(e.TargetID) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for _, n := range g.nodes {
		if color[n.ID] == white {
			if visit(n.ID) {
				return true
			}
		}
	}
	return false
}
