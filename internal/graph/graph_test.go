package graph

import (
	"encoding/json"
	"testing"

	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/portschema"
	"github.com/stretchr/testify/require"
)

func portschemaObject(fields map[string]bool) portschema.Schema {
	out := make(map[string]portschema.Field, len(fields))
	for name, required := range fields {
		out[name] = portschema.Field{Schema: portschema.Number(), Required: required}
	}
	return portschema.Object(out)
}

func triggerNode(nodeID id.NodeID) Node {
	return NewNode(nodeID, string(nodeID), NodeConfig{
		Category: CategoryTrigger,
		Trigger:  &TriggerConfig{Kind: TriggerKindManual},
	})
}

func logOutputNode(nodeID id.NodeID) Node {
	return NewNode(nodeID, string(nodeID), NodeConfig{
		Category: CategoryOutput,
		Output:   &OutputConfig{Kind: OutputKindLog},
	})
}

func TestGraph_AddEdge_Success(t *testing.T) {
	g := New()
	a := g.AddNode(triggerNode("a"))
	b := g.AddNode(logOutputNode("b"))

	err := g.AddEdge(a, b, Edge{SourcePort: "output", TargetPort: "input"})
	require.NoError(t, err)

	require.Len(t, g.Successors(a), 1)
	require.Len(t, g.Predecessors(b), 1)
}

func TestGraph_AddEdge_SourcePortNotFound(t *testing.T) {
	g := New()
	source := g.AddNode(triggerNode("src"))
	target := g.AddNode(logOutputNode("target"))

	err := g.AddEdge(source, target, Edge{SourcePort: "nonexistent", TargetPort: "input"})
	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, ErrSourcePortNotFound, gerr.Kind)
}

// TestGraph_AddEdge_IncompatibleSchemas covers a source
// object{count:number} that cannot feed a target
// object{count:number, note:string(required)}.
func TestGraph_AddEdge_IncompatibleSchemas(t *testing.T) {
	g := New()
	source := g.AddNode(Node{
		ID:      "src",
		Name:    "src",
		Config:  NodeConfig{Category: CategoryTransform, Transform: &TransformConfig{}},
		Outputs: []Port{{Name: "output", Schema: portschemaObject(map[string]bool{"count": true})}},
	})
	target := g.AddNode(Node{
		ID:     "target",
		Name:   "target",
		Config: NodeConfig{Category: CategoryTransform, Transform: &TransformConfig{}},
		Inputs: []Port{{
			Name:     "input",
			Required: true,
			Schema: portschema.Object(map[string]portschema.Field{
				"count": {Schema: portschema.Number(), Required: true},
				"note":  {Schema: portschema.String(), Required: true},
			}),
		}},
	})

	err := g.AddEdge(source, target, Edge{SourcePort: "output", TargetPort: "input"})
	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, ErrIncompatibleSchemas, gerr.Kind)
}

func TestGraph_Validate_CycleDetected(t *testing.T) {
	g := New()
	a := g.AddNode(NewNode("a", "a", NodeConfig{Category: CategoryTransform, Transform: &TransformConfig{}}))
	b := g.AddNode(NewNode("b", "b", NodeConfig{Category: CategoryTransform, Transform: &TransformConfig{}}))

	require.NoError(t, g.AddEdge(a, b, Edge{SourcePort: "output", TargetPort: "input"}))
	require.NoError(t, g.AddEdge(b, a, Edge{SourcePort: "output", TargetPort: "input"}))

	err := g.Validate()
	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, ErrCycleDetected, gerr.Kind)
}

func TestGraph_Validate_RequiredInputMissing(t *testing.T) {
	g := New()
	g.AddNode(logOutputNode("out")) // required "input" port has no incoming edge

	err := g.Validate()
	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, ErrRequiredInputMissing, gerr.Kind)
}

func TestGraph_Validate_EmptyGraphOK(t *testing.T) {
	g := New()
	require.NoError(t, g.Validate())
}

func TestGraph_EntryAndTerminalNodes(t *testing.T) {
	g := New()
	a := g.AddNode(triggerNode("a"))
	b := g.AddNode(logOutputNode("b"))
	require.NoError(t, g.AddEdge(a, b, Edge{SourcePort: "output", TargetPort: "input"}))

	entries := g.EntryNodes()
	require.Len(t, entries, 1)
	require.Equal(t, id.NodeID("a"), entries[0].ID)

	terminals := g.TerminalNodes()
	require.Len(t, terminals, 1)
	require.Equal(t, id.NodeID("b"), terminals[0].ID)
}

func TestGraph_RemoveNode_DropsIncidentEdges(t *testing.T) {
	g := New()
	a := g.AddNode(triggerNode("a"))
	b := g.AddNode(logOutputNode("b"))
	require.NoError(t, g.AddEdge(a, b, Edge{SourcePort: "output", TargetPort: "input"}))

	g.RemoveNode(b)
	require.Len(t, g.Nodes(), 1)
	require.Empty(t, g.Successors(a))
}

func fanOutFanInNode(nodeID id.NodeID, fanOutArrayPort string) Node {
	return NewNode(nodeID, string(nodeID), NodeConfig{
		Category:    CategoryControlFlow,
		ControlFlow: &ControlFlowConfig{Kind: ControlFlowKindFanOut, FanOutArrayPort: fanOutArrayPort},
	})
}

func fanInNodeFor(nodeID id.NodeID, fanOutNode id.NodeID) Node {
	return NewNode(nodeID, string(nodeID), NodeConfig{
		Category:    CategoryControlFlow,
		ControlFlow: &ControlFlowConfig{Kind: ControlFlowKindFanIn, FanOutNode: string(fanOutNode)},
	})
}

func transformNode(nodeID id.NodeID) Node {
	return NewNode(nodeID, string(nodeID), NodeConfig{
		Category:  CategoryTransform,
		Transform: &TransformConfig{},
	})
}

func TestGraph_Between_ReturnsOnlySubgraphNodes(t *testing.T) {
	g := New()
	g.AddNode(fanOutFanInNode("fo", "items"))
	g.AddNode(transformNode("mid"))
	g.AddNode(fanInNodeFor("fi", "fo"))
	g.AddNode(transformNode("outside"))
	require.NoError(t, g.AddEdge("fo", "mid", Edge{SourcePort: "item", TargetPort: "input"}))
	require.NoError(t, g.AddEdge("mid", "fi", Edge{SourcePort: "output", TargetPort: "item"}))

	between := g.Between("fo", "fi")
	require.Len(t, between, 1)
	require.Equal(t, id.NodeID("mid"), between[0].ID)
}

func TestGraph_FindFanIn_MatchesByFanOutNode(t *testing.T) {
	g := New()
	g.AddNode(fanOutFanInNode("fo", "items"))
	g.AddNode(fanInNodeFor("fi", "fo"))

	found, ok := g.FindFanIn("fo")
	require.True(t, ok)
	require.Equal(t, id.NodeID("fi"), found.ID)

	_, ok = g.FindFanIn("does-not-exist")
	require.False(t, ok)
}

func TestGraph_JSONRoundTrip(t *testing.T) {
	g := New()
	a := g.AddNode(triggerNode("a"))
	b := g.AddNode(logOutputNode("b"))
	require.NoError(t, g.AddEdge(a, b, Edge{SourcePort: "output", TargetPort: "input"}))

	data, err := json.Marshal(g)
	require.NoError(t, err)

	g2 := New()
	require.NoError(t, json.Unmarshal(data, g2))

	require.Len(t, g2.Nodes(), 2)
	require.Len(t, g2.Successors(a), 1)
	require.NoError(t, g2.Validate())
}

func TestGraph_JSONDecode_DropsDanglingEdges(t *testing.T) {
	raw := []byte(`{
		"nodes": [{"id":"a","name":"a","config":{"category":"trigger","trigger":{"kind":"manual"}},"outputs":[{"name":"output","schema":{"kind":"any"}}]}],
		"edges": [["a","missing",{"source_port":"output","target_port":"input"}]]
	}`)
	g := New()
	require.NoError(t, json.Unmarshal(raw, g))
	require.Empty(t, g.Successors("a"))
}
