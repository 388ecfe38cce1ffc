// Package remainingwork tracks, for one run, which nodes of the
// workflow graph still need to execute. It is a pure projection: never
// itself durable, always rebuilt from a RunState produced by replaying
// the event log.
//
// Completed and skipped nodes are removed from the graph entirely,
// along with their incident edges, which is what lets a downstream
// node's incoming-edge count reach zero and become ready. A failed
// node is never removed — instead a self-edge is added to it, so it
// never again has zero incoming edges and therefore never reappears in
// ReadyNodes, while its real edges to downstream nodes keep those
// nodes permanently blocked.
package remainingwork

import "github.com/lyzr/workflowengine/internal/id"

// Graph is the dynamic, per-run projection of which nodes remain,
// built from a validated workflow graph: all nodes present, all edges
// present, nothing executing.
//
// Node IDs need not all come from one workflow.Graph: FanOut produces
// synthetic per-element subgraphs whose node IDs are
// "<node_id>#<index>", added to this structure like any other node.
type Graph struct {
	nodes      map[id.NodeID]bool
	inEdges    map[id.NodeID]map[id.NodeID]bool   // target -> set of sources
	outEdges   map[id.NodeID]map[id.NodeID]bool   // source -> set of targets
	branchPort map[id.NodeID]map[id.NodeID]string // Branch source -> target -> its matching output_port
	executing  map[id.NodeID]bool
	failed     map[id.NodeID]bool
	order      []id.NodeID // insertion order, for deterministic test output only
}

// New builds an empty remaining-work graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[id.NodeID]bool),
		inEdges:    make(map[id.NodeID]map[id.NodeID]bool),
		outEdges:   make(map[id.NodeID]map[id.NodeID]bool),
		branchPort: make(map[id.NodeID]map[id.NodeID]string),
		executing:  make(map[id.NodeID]bool),
		failed:     make(map[id.NodeID]bool),
	}
}

// AddNode registers nodeID as present with zero edges.
func (g *Graph) AddNode(nodeID id.NodeID) {
	if !g.nodes[nodeID] {
		g.order = append(g.order, nodeID)
	}
	g.nodes[nodeID] = true
	if g.inEdges[nodeID] == nil {
		g.inEdges[nodeID] = make(map[id.NodeID]bool)
	}
	if g.outEdges[nodeID] == nil {
		g.outEdges[nodeID] = make(map[id.NodeID]bool)
	}
}

// AddEdge records that target depends on source. Both nodes must
// already have been added.
func (g *Graph) AddEdge(source, target id.NodeID) {
	g.outEdges[source][target] = true
	g.inEdges[target][source] = true
}

// AddBranchEdge records that target depends on source exactly as
// AddEdge does, but additionally marks the edge as belonging to
// source's Branch condition named port — one of possibly several
// out-edges from source, only one of which fires per run. Only
// MarkBranchCompleted consults this; MarkCompleted treats the edge
// like any other.
func (g *Graph) AddBranchEdge(source, target id.NodeID, port string) {
	g.AddEdge(source, target)
	if g.branchPort[source] == nil {
		g.branchPort[source] = make(map[id.NodeID]string)
	}
	g.branchPort[source][target] = port
}

// MarkExecuting records nodeID as in-flight. Edges are unaffected.
func (g *Graph) MarkExecuting(nodeID id.NodeID) {
	g.executing[nodeID] = true
}

// MarkCompleted removes nodeID and every edge incident to it,
// unblocking any successor whose incoming-edge count now reaches zero.
func (g *Graph) MarkCompleted(nodeID id.NodeID) {
	g.removeNode(nodeID)
}

// MarkSkipped removes nodeID and its incident edges, same as
// MarkCompleted: a skipped node still satisfies its successors.
func (g *Graph) MarkSkipped(nodeID id.NodeID) {
	g.removeNode(nodeID)
}

// MarkBranchCompleted completes a Branch node, but — unlike
// MarkCompleted — only lets the routing edge whose port equals
// matchedPort behave as a normal completion. Every other out-edge
// recorded via AddBranchEdge is severed immediately instead of ever
// being satisfied, since that condition never held for this run. A
// successor left with no remaining live predecessor as a result is
// never reachable and is cascaded through MarkSkipped rather than
// left to spuriously appear in ReadyNodes with zero incoming edges;
// the full set of nodes skipped this way is returned so the caller can
// record it. A successor still fed by another matched condition or by
// a plain edge is left untouched.
func (g *Graph) MarkBranchCompleted(nodeID id.NodeID, matchedPort string) []id.NodeID {
	var skipped []id.NodeID
	for target, port := range g.branchPort[nodeID] {
		if port == matchedPort {
			continue
		}
		delete(g.outEdges[nodeID], target)
		delete(g.inEdges[target], nodeID)
		g.cascadeSkip(target, &skipped)
	}
	delete(g.branchPort, nodeID)
	g.removeNode(nodeID)
	return skipped
}

// cascadeSkip marks nodeID skipped, and recurses into its successors,
// if nodeID has no remaining incoming edge — i.e. the edge just
// severed by the caller was its only path to ever becoming ready.
func (g *Graph) cascadeSkip(nodeID id.NodeID, skipped *[]id.NodeID) {
	if !g.nodes[nodeID] || len(g.inEdges[nodeID]) > 0 {
		return
	}
	targets := make([]id.NodeID, 0, len(g.outEdges[nodeID]))
	for target := range g.outEdges[nodeID] {
		targets = append(targets, target)
	}
	g.MarkSkipped(nodeID)
	*skipped = append(*skipped, nodeID)
	for _, target := range targets {
		g.cascadeSkip(target, skipped)
	}
}

// MarkFailed retains nodeID but adds a self-edge, guaranteeing it
// never again has zero incoming edges. Its existing outgoing edges to
// real successors are left in place, so those successors stay blocked.
func (g *Graph) MarkFailed(nodeID id.NodeID) {
	delete(g.executing, nodeID)
	g.failed[nodeID] = true
	g.outEdges[nodeID][nodeID] = true
	g.inEdges[nodeID][nodeID] = true
}

// RemoveSilently deletes nodeID and its incident edges without treating
// it as completed or failed — used when a node is superseded by
// synthetic fan-out copies and must never itself become ready.
func (g *Graph) RemoveSilently(nodeID id.NodeID) {
	g.removeNode(nodeID)
}

func (g *Graph) removeNode(nodeID id.NodeID) {
	delete(g.nodes, nodeID)
	delete(g.executing, nodeID)

	for src := range g.inEdges[nodeID] {
		delete(g.outEdges[src], nodeID)
	}
	for tgt := range g.outEdges[nodeID] {
		delete(g.inEdges[tgt], nodeID)
	}
	delete(g.inEdges, nodeID)
	delete(g.outEdges, nodeID)
}

// ReadyNodes returns every present node with zero remaining incoming
// edges that is not currently executing. Order is unspecified;
// callers must not rely on it.
func (g *Graph) ReadyNodes() []id.NodeID {
	var out []id.NodeID
	for _, nodeID := range g.order {
		if !g.nodes[nodeID] || g.executing[nodeID] {
			continue
		}
		if len(g.inEdges[nodeID]) == 0 {
			out = append(out, nodeID)
		}
	}
	return out
}

// IsComplete reports whether no node is executing and no node is
// ready. True both on ordinary completion (every node removed) and on
// a run blocked by failure (every remaining node is transitively
// blocked).
func (g *Graph) IsComplete() bool {
	return len(g.executing) == 0 && len(g.ReadyNodes()) == 0
}

// HasFailures reports whether any node has been marked failed.
func (g *Graph) HasFailures() bool {
	return len(g.failed) > 0
}

// BlockedNodes returns every node reachable from a failed node via
// outgoing edges, excluding the failed nodes themselves. Diagnostic
// only — scheduling never consults it.
func (g *Graph) BlockedNodes() []id.NodeID {
	reachable := make(map[id.NodeID]bool)
	var visit func(id.NodeID)
	visit = func(nodeID id.NodeID) {
		for next := range g.outEdges[nodeID] {
			if next == nodeID || reachable[next] || g.failed[next] {
				continue
			}
			reachable[next] = true
			visit(next)
		}
	}
	for failedID := range g.failed {
		visit(failedID)
	}

	out := make([]id.NodeID, 0, len(reachable))
	for _, nodeID := range g.order {
		if reachable[nodeID] {
			out = append(out, nodeID)
		}
	}
	return out
}
