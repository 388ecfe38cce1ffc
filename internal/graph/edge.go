package graph

import "github.com/lyzr/workflowengine/internal/id"

// Edge connects one source node's output port to one target node's
// input port.
type Edge struct {
	SourcePort string `json:"source_port"`
	TargetPort string `json:"target_port"`
}

// edgeEntry is the serialized form of one (source_id, target_id, edge)
// triple.
type edgeEntry struct {
	SourceID id.NodeID `json:"source_id"`
	TargetID id.NodeID `json:"target_id"`
	Edge     Edge      `json:"edge"`
}
