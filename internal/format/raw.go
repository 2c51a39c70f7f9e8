package format

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

// Raw frames every provider event as one JSON object per chunk, newline
// terminated, in event order. Used by consumers that want exact fidelity.
type Raw struct {
	acc *accumulator
}

// NewRaw creates a raw formatter for one step.
func NewRaw() *Raw {
	return &Raw{acc: newAccumulator()}
}

// Name returns "raw".
func (f *Raw) Name() string { return ShapeRaw }

// rawFrame is the wire shape of one framed event.
type rawFrame struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`

	MessageID string        `json:"message_id,omitempty"`
	Model     string        `json:"model,omitempty"`
	Block     *models.Block `json:"block,omitempty"`

	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`

	StopReason   string        `json:"stop_reason,omitempty"`
	StopSequence string        `json:"stop_sequence,omitempty"`
	Usage        *models.Usage `json:"usage,omitempty"`

	Error string `json:"error,omitempty"`

	// Agent-originated frames.
	Meta       *Metadata                `json:"meta,omitempty"`
	ToolUseID  string                   `json:"tool_use_id,omitempty"`
	Name       string                   `json:"name,omitempty"`
	Body       string                   `json:"body,omitempty"`
	Pending    []models.PendingToolCall `json:"pending,omitempty"`
}

// Format drains the provider stream, framing each event.
func (f *Raw) Format(ctx context.Context, events <-chan llm.Event, out chan<- string) (*Result, error) {
	for ev := range events {
		if ev.Err != nil {
			f.writeFrame(ctx, out, rawFrame{Type: "error", Error: ev.Err.Error()})
			f.acc.closeAll()
			return f.acc.finish(), ev.Err
		}
		f.acc.observe(ev)
		frame := rawFrame{
			Type:         string(ev.Type),
			Index:        ev.Index,
			MessageID:    ev.MessageID,
			Model:        ev.Model,
			Block:        ev.Block,
			Text:         ev.Text,
			PartialJSON:  ev.PartialJSON,
			StopReason:   string(ev.StopReason),
			StopSequence: ev.StopSequence,
			Usage:        ev.Usage,
		}
		if !f.writeFrame(ctx, out, frame) {
			f.acc.closeAll()
			return f.acc.finish(), ctx.Err()
		}
	}
	f.acc.closeAll()
	return f.acc.finish(), nil
}

// WriteMeta emits the step metadata frame.
func (f *Raw) WriteMeta(ctx context.Context, out chan<- string, meta Metadata) {
	f.writeFrame(ctx, out, rawFrame{Type: "meta_init", Meta: &meta})
}

// WriteToolResult emits one executed tool result frame.
func (f *Raw) WriteToolResult(ctx context.Context, out chan<- string, toolUseID, name, body string) {
	f.writeFrame(ctx, out, rawFrame{Type: "tool_result", ToolUseID: toolUseID, Name: name, Body: body})
}

// WriteAwaiting emits the terminal pause frame.
func (f *Raw) WriteAwaiting(ctx context.Context, out chan<- string, calls []models.PendingToolCall) {
	f.writeFrame(ctx, out, rawFrame{Type: "awaiting_frontend_tools", Pending: calls})
}

// WriteError emits an error frame.
func (f *Raw) WriteError(ctx context.Context, out chan<- string, message string) {
	f.writeFrame(ctx, out, rawFrame{Type: "error", Error: message})
}

func (f *Raw) writeFrame(ctx context.Context, out chan<- string, frame rawFrame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		return true
	}
	return push(ctx, out, string(data)+"\n")
}
