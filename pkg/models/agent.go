package models

import "time"

// ToolExecutor says where a tool runs.
type ToolExecutor string

const (
	// ExecutorBackend tools run inside the agent process.
	ExecutorBackend ToolExecutor = "backend"
	// ExecutorFrontend tools are schema-only; execution happens
	// off-process and results return through the resume API.
	ExecutorFrontend ToolExecutor = "frontend"
)

// ToolDef is the durable, serializable part of a tool descriptor. The
// callable itself is re-registered on every process start and never
// persisted.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Executor    ToolExecutor   `json:"executor"`
}

// PendingToolCall records a frontend tool invocation the agent is paused
// on. The caller executes it off-process and feeds the outcome back via
// the resume API.
type PendingToolCall struct {
	ToolUseID string         `json:"tool_use_id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

// RelayState is the minimal checkpoint needed to pause an agent across an
// off-process tool call and pick the run back up later, possibly in a
// different process.
type RelayState struct {
	// Awaiting is true while the agent is paused on frontend tools.
	Awaiting bool `json:"awaiting"`

	// CurrentStep is the step number the pause happened in.
	CurrentStep int `json:"current_step,omitempty"`

	// RunID identifies the paused run so its log continues on resume.
	RunID string `json:"run_id,omitempty"`

	// StashedAssistant is the assistant message whose tool calls are
	// still outstanding. It is appended to history only on resume, so
	// the assistant message and all its tool results land atomically.
	StashedAssistant *Message `json:"stashed_assistant,omitempty"`

	// BackendResults are tool_result blocks for the backend tools of the
	// paused step, already executed and held until resume.
	BackendResults []Block `json:"backend_results,omitempty"`

	// FrontendCalls are the tool calls awaiting off-process execution.
	FrontendCalls []PendingToolCall `json:"frontend_calls,omitempty"`
}

// AgentConfig is the durable identity and checkpoint of an agent. It is
// created on first initialization and rewritten at the end of every step.
type AgentConfig struct {
	// AgentUUID is assigned once at creation and never changes.
	AgentUUID string `json:"agent_uuid"`

	Title        string `json:"title,omitempty"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Tools lists the schemas of registered tools, both executors.
	Tools []ToolDef `json:"tools,omitempty"`

	// ServerTools are provider-executed tool definitions passed through
	// opaquely (web search, code execution, ...).
	ServerTools []map[string]any `json:"server_tools,omitempty"`

	// BetaHeaders are opaque feature tags passed through to the provider.
	BetaHeaders []string `json:"beta_headers,omitempty"`

	MaxSteps       int     `json:"max_steps"`
	MaxTokens      int     `json:"max_tokens"`
	ThinkingTokens int     `json:"thinking_tokens,omitempty"`
	MaxRetries     int     `json:"max_retries"`
	BaseDelay      float64 `json:"base_delay_seconds"`

	// Compactor, MemoryStore, and Formatter select pluggable strategies
	// by name.
	Compactor   string `json:"compactor,omitempty"`
	MemoryStore string `json:"memory_store,omitempty"`
	Formatter   string `json:"formatter,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// RunCount is the number of runs started on this agent.
	RunCount int `json:"run_count"`

	// Relay holds the pause checkpoint while awaiting frontend tools.
	Relay RelayState `json:"relay"`

	// History is the durable conversation snapshot.
	History []Message `json:"history,omitempty"`
}

// Clone returns a deep copy of the config via its value semantics. Slices
// and the stashed message are copied so callers can mutate freely.
func (c *AgentConfig) Clone() *AgentConfig {
	out := *c
	out.Tools = append([]ToolDef(nil), c.Tools...)
	out.BetaHeaders = append([]string(nil), c.BetaHeaders...)
	out.ServerTools = append([]map[string]any(nil), c.ServerTools...)
	out.History = append([]Message(nil), c.History...)
	out.Relay.BackendResults = append([]Block(nil), c.Relay.BackendResults...)
	out.Relay.FrontendCalls = append([]PendingToolCall(nil), c.Relay.FrontendCalls...)
	if c.Relay.StashedAssistant != nil {
		stash := *c.Relay.StashedAssistant
		stash.Content = append([]Block(nil), c.Relay.StashedAssistant.Content...)
		out.Relay.StashedAssistant = &stash
	}
	return &out
}
