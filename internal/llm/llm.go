// Package llm defines the provider-facing contract of the agent runtime:
// a streaming completion interface, the normalized event union providers
// emit, and the error taxonomy the rest of the runtime keys retry and
// failover decisions on.
package llm

import (
	"context"

	"github.com/haasonsaas/praxis/pkg/models"
)

// Provider is the wire-level LLM client contract. One implementation per
// provider.
//
// Implementations must be safe for concurrent use; multiple goroutines may
// stream different requests simultaneously.
type Provider interface {
	// Name returns the provider name ("anthropic", "openai").
	Name() string

	// Stream sends a completion request and returns a finite event
	// sequence. The channel terminates when the provider closes the
	// stream; failures arrive as a final event with Err set. Initial
	// connection errors are returned directly.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// CountTokens counts the prompt tokens of the request. Best-effort:
	// implementations without a counting endpoint return
	// ErrTokenCountUnavailable and are not retried.
	CountTokens(ctx context.Context, req *Request) (int, error)
}

// ToolSchema is the native wire shape of a tool definition.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request contains everything needed for one streamed completion.
type Request struct {
	Model    string
	System   string
	Messages []models.Message
	Tools    []ToolSchema

	// ServerTools are provider-executed tool definitions passed through
	// opaquely.
	ServerTools []map[string]any

	// BetaHeaders are opaque feature tags forwarded to the provider.
	BetaHeaders []string

	MaxTokens int

	// ThinkingTokens is the extended thinking budget; 0 disables
	// thinking.
	ThinkingTokens int
}

// StopReason is the provider's terminal reason for a response.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopUnknown      StopReason = "unknown"
)

// Terminal reports whether the stop reason ends the run without further
// tool dispatch.
func (s StopReason) Terminal() bool {
	switch s {
	case StopEndTurn, StopStopSequence, StopMaxTokens:
		return true
	default:
		return false
	}
}

// EventType discriminates the normalized provider event union.
type EventType string

const (
	// EventMessageStart opens a response; carries message ID, model, and
	// the input-side usage.
	EventMessageStart EventType = "message_start"

	// EventBlockStart opens a content block at Index. Block holds the
	// initial shape: type, and for tool_use blocks the id and name.
	EventBlockStart EventType = "block_start"

	// EventTextDelta extends the text body of the open block at Index.
	EventTextDelta EventType = "text_delta"

	// EventThinkingDelta extends the thinking body of the open block.
	EventThinkingDelta EventType = "thinking_delta"

	// EventSignatureDelta carries the signature of a thinking block.
	EventSignatureDelta EventType = "signature_delta"

	// EventInputJSONDelta extends the argument JSON of an open tool_use
	// block.
	EventInputJSONDelta EventType = "input_json_delta"

	// EventBlockStop closes the block at Index.
	EventBlockStop EventType = "block_stop"

	// EventMessageDelta carries the stop reason and output-side usage.
	EventMessageDelta EventType = "message_delta"

	// EventMessageStop closes the response.
	EventMessageStop EventType = "message_stop"
)

// Event is one normalized streaming event. Err, when set, terminates the
// stream; no further events follow it.
type Event struct {
	Type  EventType
	Index int

	// message_start fields.
	MessageID string
	Model     string

	// block_start: the initial block shape. Server tool result blocks
	// arrive fully formed here.
	Block *models.Block

	// Delta payload for text, thinking, and signature deltas.
	Text string

	// PartialJSON is the argument fragment of an input_json_delta.
	PartialJSON string

	// message_delta fields.
	StopReason   StopReason
	StopSequence string

	// Usage deltas; input tokens on message_start, output tokens on
	// message_delta.
	Usage *models.Usage

	// Err terminates the stream abnormally.
	Err error
}
