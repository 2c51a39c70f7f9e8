package models

import "time"

// ConversationRecord captures one run: the user turn, every message the
// agent appended while answering it, per-step usage, and the derived cost.
// Seq is assigned by the conversation store and is strictly increasing per
// agent with no gaps.
type ConversationRecord struct {
	AgentUUID string `json:"agent_uuid"`
	Seq       int64  `json:"seq"`
	RunID     string `json:"run_id"`

	UserMessage Message   `json:"user_message"`
	Messages    []Message `json:"messages,omitempty"`

	StepUsage []Usage       `json:"step_usage,omitempty"`
	Cost      CostBreakdown `json:"cost"`

	// StopReason records how the run ended: end_turn, stop_sequence,
	// max_tokens, max_steps, awaiting_frontend_tools, or error.
	StopReason string `json:"stop_reason,omitempty"`

	// MaxTokensHit flags a response that was truncated by the output cap.
	MaxTokensHit bool `json:"max_tokens_hit,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}
