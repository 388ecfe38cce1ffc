package runstate

import (
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
)

// expandFanOut resolves the fan-out/fan-in pattern: once a
// FanOut node completes, it spawns one synthetic copy of the subgraph
// between it and its declared FanIn counterpart per array element,
// wiring the copies into the remaining-work graph in place of the real
// subgraph nodes (which never themselves execute again). Scoped to
// linear subgraphs: every node between FanOut and FanIn is assumed to
// depend only on other subgraph nodes or on FanOut itself.
func expandFanOut(workflowGraph *graph.Graph, state *RunState, fanOutID id.NodeID, elementKeys []string) {
	if workflowGraph == nil {
		return
	}
	fanInNode, ok := workflowGraph.FindFanIn(fanOutID)
	if !ok {
		return
	}

	subgraph := workflowGraph.Between(fanOutID, fanInNode.ID)
	if len(subgraph) == 0 {
		return
	}
	inSubgraph := make(map[id.NodeID]bool, len(subgraph))
	for _, n := range subgraph {
		inSubgraph[n.ID] = true
	}

	for index := range elementKeys {
		for _, n := range subgraph {
			state.RemainingWork.AddNode(id.SyntheticNodeID(n.ID, index))
		}
		for _, n := range subgraph {
			target := id.SyntheticNodeID(n.ID, index)
			for _, pred := range workflowGraph.Predecessors(n.ID) {
				if pred.Node.ID == fanOutID || !inSubgraph[pred.Node.ID] {
					continue // fed by the element key itself, bound directly at scheduling time
				}
				state.RemainingWork.AddEdge(id.SyntheticNodeID(pred.Node.ID, index), target)
			}
			for _, succ := range workflowGraph.Successors(n.ID) {
				if succ.Node.ID == fanInNode.ID {
					state.RemainingWork.AddEdge(target, fanInNode.ID)
				}
			}
		}
	}

	// The real subgraph nodes are superseded by the synthetic copies
	// above and must never run; dropping them also removes their
	// (now-stale) edge into FanIn, so FanIn waits on the synthetic
	// terminal edges just added instead.
	for _, n := range subgraph {
		state.RemainingWork.RemoveSilently(n.ID)
	}
}
