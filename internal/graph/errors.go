package graph

import (
	"fmt"

	"github.com/lyzr/workflowengine/internal/id"
)

// Error kinds returned by Graph operations, surfaced under the
// Validation category of the engine's wider error taxonomy.
type ErrorKind string

const (
	ErrNodeNotFound         ErrorKind = "node_not_found"
	ErrSourcePortNotFound   ErrorKind = "source_port_not_found"
	ErrTargetPortNotFound   ErrorKind = "target_port_not_found"
	ErrIncompatibleSchemas  ErrorKind = "incompatible_schemas"
	ErrRequiredInputMissing ErrorKind = "required_input_missing"
	ErrCycleDetected        ErrorKind = "cycle_detected"
)

// Error is a typed validation error raised by Graph operations.
type Error struct {
	Kind    ErrorKind
	NodeID  id.NodeID
	Port    string
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNodeNotFound:
		return fmt.Sprintf("node not found: %s", e.NodeID)
	case ErrSourcePortNotFound:
		return fmt.Sprintf("source port %q not found on node %s", e.Port, e.NodeID)
	case ErrTargetPortNotFound:
		return fmt.Sprintf("target port %q not found on node %s", e.Port, e.NodeID)
	case ErrIncompatibleSchemas:
		return fmt.Sprintf("incompatible schemas on edge into %s:%s", e.NodeID, e.Port)
	case ErrRequiredInputMissing:
		return fmt.Sprintf("required input %q missing on node %s", e.Port, e.NodeID)
	case ErrCycleDetected:
		return "cycle detected in workflow graph"
	default:
		return e.Message
	}
}
