package graph

import "github.com/lyzr/workflowengine/internal/id"

// Node is one unit of work in a workflow graph. Inputs and Outputs are
// derived from Config (see DerivePorts) and kept alongside the node so
// callers never recompute them, but Config remains the source of truth
// — NewNode always derives them, and callers must not hand-edit ports
// independently of Config.
type Node struct {
	ID      id.NodeID  `json:"id"`
	Name    string     `json:"name"`
	Config  NodeConfig `json:"config"`
	Inputs  []Port     `json:"inputs"`
	Outputs []Port     `json:"outputs"`
}

// NewNode builds a Node, deriving its ports from cfg.
func NewNode(nodeID id.NodeID, name string, cfg NodeConfig) Node {
	inputs, outputs := DerivePorts(cfg)
	return Node{
		ID:      nodeID,
		Name:    name,
		Config:  cfg,
		Inputs:  inputs,
		Outputs: outputs,
	}
}

// InputPort returns the named input port, if present.
func (n Node) InputPort(name string) (Port, bool) {
	for _, p := range n.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// OutputPort returns the named output port, if present.
func (n Node) OutputPort(name string) (Port, bool) {
	for _, p := range n.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// RequiredInputs returns the subset of Inputs whose Required flag is set.
func (n Node) RequiredInputs() []Port {
	var required []Port
	for _, p := range n.Inputs {
		if p.Required {
			required = append(required, p)
		}
	}
	return required
}
