package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func aiNode(cfg graph.AiLayerConfig) graph.Node {
	return graph.Node{
		ID:     "classify",
		Name:   "classify",
		Config: graph.NodeConfig{Category: graph.CategoryAiLayer, AiLayer: &cfg},
	}
}

func TestExecutor_Execute_RendersPromptAndReturnsJSON(t *testing.T) {
	backend := &FakeBackend{Response: Response{Content: []byte(`{"label":"spam"}`)}}
	e := New(backend)

	node := aiNode(graph.AiLayerConfig{
		Kind:           graph.AiLayerKindClassify,
		PromptTemplate: "Classify this email: {{.subject}}",
	})

	out, err := e.Execute(context.Background(), id.WorkflowID("wf_test"), node, executor.Inputs{"subject": "buy now!!"})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"label": "spam"}, out)
	require.Len(t, backend.Requests, 1)
	require.Equal(t, "Classify this email: buy now!!", backend.Requests[0].Prompt)
}

func TestExecutor_Execute_NonJSONResponseReturnsRawText(t *testing.T) {
	backend := &FakeBackend{Response: Response{Content: []byte("a plain-text summary")}}
	e := New(backend)

	node := aiNode(graph.AiLayerConfig{Kind: graph.AiLayerKindSummarize, PromptTemplate: "Summarize: {{.body}}"})

	out, err := e.Execute(context.Background(), id.WorkflowID("wf_test"), node, executor.Inputs{"body": "long article"})
	require.NoError(t, err)
	require.Equal(t, "a plain-text summary", out)
}

func TestExecutor_Execute_BackendFailureIsExternalServiceError(t *testing.T) {
	backend := &FakeBackend{Err: errors.New("rate limited")}
	e := New(backend)

	node := aiNode(graph.AiLayerConfig{Kind: graph.AiLayerKindGenerate, PromptTemplate: "Generate: {{.topic}}"})

	_, err := e.Execute(context.Background(), id.WorkflowID("wf_test"), node, executor.Inputs{"topic": "go concurrency"})
	require.Error(t, err)
	var svcErr *executor.ExternalServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "llm", svcErr.Service)
}

func TestExecutor_Execute_MissingConfigIsConfigurationError(t *testing.T) {
	e := New(&FakeBackend{})
	node := graph.Node{ID: "bad", Config: graph.NodeConfig{Category: graph.CategoryAiLayer}}

	_, err := e.Execute(context.Background(), id.WorkflowID("wf_test"), node, executor.Inputs{})
	var cfgErr *executor.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestExecutor_Execute_RateLimitedWaitsForToken(t *testing.T) {
	backend := &FakeBackend{Response: Response{Content: []byte(`{"label":"ok"}`)}}
	e := NewRateLimited(backend, rate.Every(10*time.Millisecond), 1)

	node := aiNode(graph.AiLayerConfig{Kind: graph.AiLayerKindClassify, PromptTemplate: "Classify: {{.subject}}"})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := e.Execute(context.Background(), id.WorkflowID("wf_test"), node, executor.Inputs{"subject": "x"})
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond, "the third call must wait for the limiter to refill its single-token bucket")
	require.Len(t, backend.Requests, 3)
}

func TestExecutor_Execute_RateLimitedCancelledContextIsExternalServiceError(t *testing.T) {
	backend := &FakeBackend{Response: Response{Content: []byte(`{"label":"ok"}`)}}
	e := NewRateLimited(backend, rate.Every(time.Hour), 1)

	node := aiNode(graph.AiLayerConfig{Kind: graph.AiLayerKindClassify, PromptTemplate: "Classify: {{.subject}}"})

	// drain the single token so the next Wait call blocks on the context instead
	_, err := e.Execute(context.Background(), id.WorkflowID("wf_test"), node, executor.Inputs{"subject": "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Execute(ctx, id.WorkflowID("wf_test"), node, executor.Inputs{"subject": "x"})
	require.Error(t, err)
	var svcErr *executor.ExternalServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "llm", svcErr.Service)
	require.Len(t, backend.Requests, 1, "the backend must not be called once the limiter wait fails")
}
