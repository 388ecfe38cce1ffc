package graph

import "github.com/lyzr/workflowengine/internal/portschema"

// Port is a named, typed input or output slot on a node.
type Port struct {
	Name     string             `json:"name"`
	Schema   portschema.Schema  `json:"schema"`
	Required bool               `json:"required,omitempty"` // inputs only
}

// DerivePorts computes a node's default input and output ports as a
// pure function of its NodeConfig. Ports are never hand-authored —
// this keeps every node of a given kind structurally uniform.
func DerivePorts(cfg NodeConfig) (inputs, outputs []Port) {
	switch cfg.Category {
	case CategoryTrigger:
		return nil, []Port{{Name: "output", Schema: portschema.Any()}}

	case CategoryAiLayer:
		inputs = []Port{{Name: "context", Schema: portschema.Any(), Required: true}}
		outputs = []Port{{Name: "output", Schema: portschema.Any()}}
		return inputs, outputs

	case CategoryIntegration:
		inputs = []Port{{Name: "input", Schema: portschema.Any(), Required: true}}
		outputs = []Port{{Name: "output", Schema: portschema.Any()}}
		return inputs, outputs

	case CategoryTransform:
		inputs = []Port{{Name: "input", Schema: portschema.Any(), Required: true}}
		outputs = []Port{{Name: "output", Schema: portschema.Any()}}
		return inputs, outputs

	case CategoryControlFlow:
		return deriveControlFlowPorts(cfg.ControlFlow)

	case CategoryMemory:
		if cfg.Memory != nil && cfg.Memory.Kind == MemoryKindRecord {
			inputs = []Port{{Name: "content", Schema: portschema.Any(), Required: true}}
			outputs = []Port{{Name: "acknowledgement", Schema: portschema.Any()}}
			return inputs, outputs
		}
		// LoadMemory reads at start of execution; no required input.
		return nil, []Port{{Name: "memory", Schema: portschema.Any()}}

	case CategoryOutput:
		inputs = []Port{{Name: "input", Schema: portschema.Any(), Required: true}}
		outputs = []Port{{Name: "acknowledgement", Schema: portschema.Any()}}
		return inputs, outputs

	default:
		return nil, nil
	}
}

func deriveControlFlowPorts(cfg *ControlFlowConfig) (inputs, outputs []Port) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Kind {
	case ControlFlowKindBranch:
		inputs = []Port{{Name: "input", Schema: portschema.Any(), Required: true}}
		for _, cond := range cfg.Conditions {
			outputs = append(outputs, Port{Name: cond.OutputPort, Schema: portschema.Any()})
		}
		return inputs, outputs

	case ControlFlowKindFanOut:
		inputs = []Port{{Name: cfg.FanOutArrayPort, Schema: portschema.Array(portschema.Any()), Required: true}}
		outputs = []Port{{Name: "item", Schema: portschema.Any()}}
		return inputs, outputs

	case ControlFlowKindFanIn:
		inputs = []Port{{Name: "item", Schema: portschema.Any(), Required: true}}
		outputs = []Port{{Name: "items", Schema: portschema.Array(portschema.Any())}}
		return inputs, outputs

	case ControlFlowKindParallel, ControlFlowKindJoin:
		inputs = []Port{{Name: "input", Schema: portschema.Any(), Required: true}}
		outputs = []Port{{Name: "output", Schema: portschema.Any()}}
		return inputs, outputs

	default:
		return nil, nil
	}
}
