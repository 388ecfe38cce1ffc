package ratelimit

import "github.com/lyzr/workflowengine/internal/graph"

// WorkflowTier represents the rate limit tier based on workflow complexity
type WorkflowTier string

const (
	TierSimple   WorkflowTier = "simple"   // No ai_layer nodes
	TierStandard WorkflowTier = "standard" // 1-2 ai_layer nodes
	TierHeavy    WorkflowTier = "heavy"    // 3+ ai_layer nodes
)

// WorkflowProfile contains analysis of a workflow's complexity
type WorkflowProfile struct {
	Tier         WorkflowTier // Determined tier
	AiLayerCount int          // Number of ai_layer nodes
	TotalNodes   int          // Total node count
}

// InspectWorkflow analyzes a compiled workflow graph and determines its
// complexity tier, so manual triggers of AI-heavy workflows are throttled
// harder than cheap transform-only pipelines.
func InspectWorkflow(g *graph.Graph) WorkflowProfile {
	nodes := g.Nodes()
	profile := WorkflowProfile{TotalNodes: len(nodes)}

	for _, n := range nodes {
		if n.Config.Category == graph.CategoryAiLayer {
			profile.AiLayerCount++
		}
	}
	profile.Tier = determineTier(profile.AiLayerCount)
	return profile
}

// determineTier returns the appropriate tier based on ai_layer node count
func determineTier(aiLayerCount int) WorkflowTier {
	switch {
	case aiLayerCount == 0:
		return TierSimple
	case aiLayerCount <= 2:
		return TierStandard
	default: // 3+
		return TierHeavy
	}
}

// String returns a human-readable description of the tier
func (t WorkflowTier) String() string {
	switch t {
	case TierSimple:
		return "simple"
	case TierStandard:
		return "standard"
	case TierHeavy:
		return "heavy"
	default:
		return "unknown"
	}
}
