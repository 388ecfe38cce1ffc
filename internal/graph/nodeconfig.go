package graph

// Category names the seven node-config variants a node may carry.
// Dispatch throughout the engine (port derivation, executor selection)
// switches exhaustively on Category — new node kinds require a new
// Category value plus a dispatch arm, never open-ended subclassing.
type Category string

const (
	CategoryTrigger     Category = "trigger"
	CategoryAiLayer     Category = "ai_layer"
	CategoryIntegration Category = "integration"
	CategoryTransform   Category = "transform"
	CategoryControlFlow Category = "control_flow"
	CategoryMemory      Category = "memory"
	CategoryOutput      Category = "output"
)

// NodeConfig is the tagged variant carried by every node. Exactly one
// of the category-matching fields is populated, selected by Category.
type NodeConfig struct {
	Category Category `json:"category"`

	Trigger     *TriggerConfig     `json:"trigger,omitempty"`
	AiLayer     *AiLayerConfig     `json:"ai_layer,omitempty"`
	Integration *IntegrationConfig `json:"integration,omitempty"`
	Transform   *TransformConfig   `json:"transform,omitempty"`
	ControlFlow *ControlFlowConfig `json:"control_flow,omitempty"`
	Memory      *MemoryConfig      `json:"memory,omitempty"`
	Output      *OutputConfig      `json:"output,omitempty"`
}

// TriggerKind enumerates how a Trigger-category node may fire.
type TriggerKind string

const (
	TriggerKindSchedule TriggerKind = "schedule"
	TriggerKindWebhook  TriggerKind = "webhook"
	TriggerKindEvent    TriggerKind = "event"
	TriggerKindManual   TriggerKind = "manual"
)

// TriggerConfig describes a rule that causes a run. Trigger nodes are
// never dispatched as work items — the scheduler (for Schedule) or an
// upstream caller (for the rest) creates the run directly.
type TriggerConfig struct {
	Kind TriggerKind `json:"kind"`

	// Schedule only.
	CronExpression string `json:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	MissedBehavior string `json:"missed_behavior,omitempty"` // skip|fire_once|fire_all

	// Webhook only.
	WebhookPath string `json:"webhook_path,omitempty"`

	// Event only.
	EventType string `json:"event_type,omitempty"`
}

// AiLayerKind enumerates the reasoning operations an AiLayer node may perform.
type AiLayerKind string

const (
	AiLayerKindLLMCall    AiLayerKind = "llm_call"
	AiLayerKindCoordinate AiLayerKind = "coordinate"
	AiLayerKindClassify   AiLayerKind = "classify"
	AiLayerKindExtract    AiLayerKind = "extract"
	AiLayerKindGenerate   AiLayerKind = "generate"
	AiLayerKindSummarize  AiLayerKind = "summarize"
	AiLayerKindScore      AiLayerKind = "score"
	AiLayerKindDeduplicate AiLayerKind = "deduplicate"
	AiLayerKindDecide     AiLayerKind = "decide"
)

// AiLayerConfig configures an LLM-backed reasoning step.
type AiLayerConfig struct {
	Kind AiLayerKind `json:"kind"`

	PromptTemplate string          `json:"prompt_template"`
	SystemPrompt   string          `json:"system_prompt,omitempty"`
	OutputSchema   *RawJSONSchema  `json:"output_schema,omitempty"`
	Model          string          `json:"model,omitempty"`
	MaxSteps       int             `json:"max_steps,omitempty"` // coordinate only
}

// RawJSONSchema is an opaque JSON-schema document constraining an
// AiLayer node's structured output.
type RawJSONSchema struct {
	Document []byte `json:"document"`
}

// IntegrationConfig configures a call to an external connector. The
// connector implementation itself is injected (see internal/executor).
type IntegrationConfig struct {
	IntegrationType string                 `json:"integration_type"`
	Operation       string                 `json:"operation"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
}

// TransformConfig carries a deferred expression-language program. No
// evaluator exists yet (spec non-goal); nodes of this kind always fail
// with executor.UnsupportedNodeTypeError at execution time until one is
// wired in.
type TransformConfig struct {
	Expression string `json:"expression"`
}

// ControlFlowKind enumerates the structural routing node kinds.
type ControlFlowKind string

const (
	ControlFlowKindBranch   ControlFlowKind = "branch"
	ControlFlowKindFanOut   ControlFlowKind = "fan_out"
	ControlFlowKindFanIn    ControlFlowKind = "fan_in"
	ControlFlowKindParallel ControlFlowKind = "parallel"
	ControlFlowKindJoin     ControlFlowKind = "join"
)

// BranchCondition names one CEL predicate and the output port it
// selects when true.
type BranchCondition struct {
	OutputPort string `json:"output_port"`
	Expression string `json:"expression"`
}

// ControlFlowConfig configures one of the structural routing kinds.
type ControlFlowConfig struct {
	Kind ControlFlowKind `json:"kind"`

	// Branch only.
	Conditions []BranchCondition `json:"conditions,omitempty"`

	// FanOut only: the input port whose array value is exploded.
	FanOutArrayPort string `json:"fan_out_array_port,omitempty"`

	// FanIn only: the NodeID of the FanOut this node closes.
	FanOutNode string `json:"fan_out_node,omitempty"`
}

// MemoryKind enumerates the per-workflow memory operations.
type MemoryKind string

const (
	MemoryKindLoad   MemoryKind = "load_memory"
	MemoryKindRecord MemoryKind = "record_memory"
)

// MemoryConfig configures a read or write of the workflow's memory blob.
type MemoryConfig struct {
	Kind         MemoryKind `json:"kind"`
	Instructions string     `json:"instructions,omitempty"` // record only
}

// OutputKind enumerates the terminal side-effecting node kinds.
type OutputKind string

const (
	OutputKindNotify       OutputKind = "notify"
	OutputKindLog          OutputKind = "log"
	OutputKindHTTPResponse OutputKind = "http_response"
)

// OutputConfig configures a terminal side-effecting node.
type OutputConfig struct {
	Kind OutputKind `json:"kind"`
}
