// Package id provides sortable, globally unique identifiers for the
// engine's entities. Each kind wraps a UUIDv7 (time-ordered) value so
// lexicographic order approximates creation order, and renders with a
// short type prefix for diagnostics.
package id

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// WorkflowID identifies a workflow.
type WorkflowID string

// WorkflowRunID identifies a single execution of a workflow.
type WorkflowRunID string

// TriggerID identifies a trigger record.
type TriggerID string

// NodeExecutionID identifies one node's execution within a run.
type NodeExecutionID string

// UserID identifies the caller on whose behalf a run was created.
type UserID string

// IntegrationAccountID identifies a connected integration account.
type IntegrationAccountID string

// CredentialID identifies stored credentials for an integration account.
type CredentialID string

// DecisionTraceID identifies one recorded reasoning step within a
// node's execution (e.g. one step of an AiLayer coordinate loop).
type DecisionTraceID string

// NodeID identifies a node within one workflow's graph. Unlike the
// other identifier kinds it is author-chosen and only unique within its
// workflow, not globally.
type NodeID string

func newPrefixed(prefix string) string {
	return prefix + uuid.Must(uuid.NewV7()).String()
}

// NewWorkflowID generates a fresh workflow identifier.
func NewWorkflowID() WorkflowID { return WorkflowID(newPrefixed("wf_")) }

// NewWorkflowRunID generates a fresh run identifier.
func NewWorkflowRunID() WorkflowRunID { return WorkflowRunID(newPrefixed("run_")) }

// NewTriggerID generates a fresh trigger identifier.
func NewTriggerID() TriggerID { return TriggerID(newPrefixed("trg_")) }

// NewNodeExecutionID generates a fresh node-execution identifier.
func NewNodeExecutionID() NodeExecutionID { return NodeExecutionID(newPrefixed("nex_")) }

// NewIntegrationAccountID generates a fresh integration-account identifier.
func NewIntegrationAccountID() IntegrationAccountID {
	return IntegrationAccountID(newPrefixed("acct_"))
}

// NewCredentialID generates a fresh credential identifier.
func NewCredentialID() CredentialID { return CredentialID(newPrefixed("cred_")) }

// NewDecisionTraceID generates a fresh decision-trace identifier.
func NewDecisionTraceID() DecisionTraceID { return DecisionTraceID(newPrefixed("dtr_")) }

// NewEventID generates a fresh event-envelope identifier. Since it is a
// UUIDv7 it sorts lexicographically in creation order, which is what
// lets an event log use it as a cursor.
func NewEventID() string { return newPrefixed("evt_") }

// Validate checks that s carries a well-formed UUID after its prefix.
// Used at API boundaries to reject malformed identifiers early.
func Validate(prefix, s string) error {
	rest, ok := trimPrefix(prefix, s)
	if !ok {
		return fmt.Errorf("id %q: missing prefix %q", s, prefix)
	}
	if _, err := uuid.Parse(rest); err != nil {
		return fmt.Errorf("id %q: %w", s, err)
	}
	return nil
}

// syntheticSep separates a fan-out subgraph node's base NodeID from its
// element index in the synthetic IDs a FanOut spawns (SyntheticNodeID).
const syntheticSep = "#"

// SyntheticNodeID builds the NodeID one fan-out copy of base uses for
// its index-th array element.
func SyntheticNodeID(base NodeID, index int) NodeID {
	return NodeID(string(base) + syntheticSep + strconv.Itoa(index))
}

// SplitSynthetic parses a synthetic fan-out NodeID back into its base
// NodeID and element index. ok is false for an ordinary NodeID.
func SplitSynthetic(n NodeID) (base NodeID, index int, ok bool) {
	s := string(n)
	i := strings.LastIndex(s, syntheticSep)
	if i < 0 {
		return n, 0, false
	}
	idx, err := strconv.Atoi(s[i+len(syntheticSep):])
	if err != nil {
		return n, 0, false
	}
	return NodeID(s[:i]), idx, true
}

func trimPrefix(prefix, s string) (string, bool) {
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}
