package models

import "time"

// RunLogEventType enumerates the events recorded in a run log.
type RunLogEventType string

const (
	RunLogStepStart  RunLogEventType = "step_start"
	RunLogStepEnd    RunLogEventType = "step_end"
	RunLogToolCall   RunLogEventType = "tool_call"
	RunLogToolResult RunLogEventType = "tool_result"
	RunLogCompaction RunLogEventType = "compaction"
	RunLogRetry      RunLogEventType = "retry"
	RunLogError      RunLogEventType = "error"
	RunLogFinish     RunLogEventType = "finish"
)

// RunLogEvent is one timestamped line in a run log. Only the fields
// relevant to the event type are populated.
type RunLogEvent struct {
	TS           time.Time       `json:"ts"`
	Type         RunLogEventType `json:"type"`
	Step         int             `json:"step,omitempty"`
	ToolName     string          `json:"tool_name,omitempty"`
	ToolUseID    string          `json:"tool_use_id,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	DelaySeconds float64         `json:"delay_seconds,omitempty"`
	Details      string          `json:"details,omitempty"`
}
