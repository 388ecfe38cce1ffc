package remainingwork

import "github.com/lyzr/workflowengine/internal/graph"

// FromWorkflowGraph builds a remaining-work Graph mirroring every node
// and edge in g.
func FromWorkflowGraph(g *graph.Graph) *Graph {
	out := New()
	for _, n := range g.Nodes() {
		out.AddNode(n.ID)
	}
	for _, n := range g.Nodes() {
		branch := isBranchNode(n)
		for _, succ := range g.Successors(n.ID) {
			if branch {
				out.AddBranchEdge(n.ID, succ.Node.ID, succ.Edge.SourcePort)
				continue
			}
			out.AddEdge(n.ID, succ.Node.ID)
		}
	}
	return out
}

func isBranchNode(n graph.Node) bool {
	return n.Config.Category == graph.CategoryControlFlow &&
		n.Config.ControlFlow != nil && n.Config.ControlFlow.Kind == graph.ControlFlowKindBranch
}
