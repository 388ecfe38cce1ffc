package graph

import (
	"encoding/json"

	"github.com/lyzr/workflowengine/internal/id"
)

// serializedGraph is the wire form of a graph:
// {"nodes": [...], "edges": [[source_id, target_id, edge], ...]}.
type serializedGraph struct {
	Nodes []Node            `json:"nodes"`
	Edges []json.RawMessage `json:"edges"`
}

// MarshalJSON encodes the graph as a node list and an edge-triple list.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := serializedGraph{Nodes: g.Nodes()}
	for _, n := range g.nodes {
		for _, e := range g.outEdge[n.ID] {
			triple, err := json.Marshal([]interface{}{e.SourceID, e.TargetID, e.Edge})
			if err != nil {
				return nil, err
			}
			out.Edges = append(out.Edges, triple)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a graph. Unknown fields are ignored; edges
// whose endpoints are absent from the node list are dropped silently.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var in serializedGraph
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*g = *New()
	for _, n := range in.Nodes {
		g.AddNode(n)
	}

	for _, raw := range in.Edges {
		var triple [3]json.RawMessage
		if err := json.Unmarshal(raw, &triple); err != nil {
			return err
		}
		var sourceID, targetID id.NodeID
		var edge Edge
		if err := json.Unmarshal(triple[0], &sourceID); err != nil {
			return err
		}
		if err := json.Unmarshal(triple[1], &targetID); err != nil {
			return err
		}
		if err := json.Unmarshal(triple[2], &edge); err != nil {
			return err
		}

		if _, ok := g.Node(sourceID); !ok {
			continue // tolerant decode: endpoint missing
		}
		if _, ok := g.Node(targetID); !ok {
			continue
		}
		entry := edgeEntry{SourceID: sourceID, TargetID: targetID, Edge: edge}
		g.outEdge[sourceID] = append(g.outEdge[sourceID], entry)
		g.inEdge[targetID] = append(g.inEdge[targetID], entry)
	}
	return nil
}
