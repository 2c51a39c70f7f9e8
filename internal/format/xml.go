package format

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

// XML is the structured formatter. Text and thinking stream between open
// and close tags; tool calls are buffered until their argument JSON is
// complete and emitted once with attributes; opaque payloads are wrapped
// in CDATA sections.
type XML struct {
	acc *accumulator

	// openTag names the streaming tag currently open at each index.
	openTag map[int]string
}

// NewXML creates a structured formatter for one step.
func NewXML() *XML {
	return &XML{
		acc:     newAccumulator(),
		openTag: make(map[int]string),
	}
}

// Name returns "xml".
func (f *XML) Name() string { return ShapeXML }

// Format drains the provider stream, writing structured chunks.
func (f *XML) Format(ctx context.Context, events <-chan llm.Event, out chan<- string) (*Result, error) {
	for ev := range events {
		if ev.Err != nil {
			f.cleanup(ctx, out)
			f.WriteError(ctx, out, ev.Err.Error())
			f.acc.closeAll()
			return f.acc.finish(), ev.Err
		}
		f.acc.observe(ev)
		if !f.emit(ctx, out, ev) {
			f.acc.closeAll()
			return f.acc.finish(), ctx.Err()
		}
	}
	// Provider ended without an error; close anything still open.
	f.cleanup(ctx, out)
	f.acc.closeAll()
	return f.acc.finish(), nil
}

// emit writes the chunks for one event. Returns false on cancellation.
func (f *XML) emit(ctx context.Context, out chan<- string, ev llm.Event) bool {
	switch ev.Type {
	case llm.EventBlockStart:
		if ev.Block == nil {
			return true
		}
		switch ev.Block.Type {
		case models.BlockTypeText, "":
			f.openTag[ev.Index] = "text"
			return push(ctx, out, "<text>")
		case models.BlockTypeThinking:
			f.openTag[ev.Index] = "thinking"
			return push(ctx, out, "<thinking>")
		case models.BlockTypeServerToolResult:
			return push(ctx, out, fmt.Sprintf("<server_tool_result id=%q name=%q>%s</server_tool_result>",
				escapeAttr(ev.Block.ToolUseID), escapeAttr(ev.Block.Name), cdata(blockBody(*ev.Block))))
		}
		// tool_use and server_tool_use buffer until block_stop.
		return true

	case llm.EventTextDelta, llm.EventThinkingDelta:
		if _, streaming := f.openTag[ev.Index]; !streaming {
			return true
		}
		return push(ctx, out, escapeText(ev.Text))

	case llm.EventBlockStop:
		if tag, streaming := f.openTag[ev.Index]; streaming {
			delete(f.openTag, ev.Index)
			return push(ctx, out, "</"+tag+">")
		}
		return f.emitBufferedCall(ctx, out, ev.Index)
	}
	return true
}

// emitBufferedCall writes a completed tool_use or server_tool_use block.
// The accumulator has already folded the block into done state by the
// time block_stop arrives.
func (f *XML) emitBufferedCall(ctx context.Context, out chan<- string, index int) bool {
	for _, state := range f.acc.done {
		if state.index != index {
			continue
		}
		block := state.finalize()
		switch block.Type {
		case models.BlockTypeToolUse:
			return push(ctx, out, fmt.Sprintf("<tool_call id=%q name=%q arguments=%q/>",
				escapeAttr(block.ID), escapeAttr(block.Name), escapeAttr(block.InputJSON())))
		case models.BlockTypeServerToolUse:
			return push(ctx, out, fmt.Sprintf("<server_tool_call id=%q name=%q arguments=%q/>",
				escapeAttr(block.ID), escapeAttr(block.Name), escapeAttr(block.InputJSON())))
		}
		return true
	}
	return true
}

// cleanup closes every tag still open, keeping the chunk sequence well
// formed on abnormal termination.
func (f *XML) cleanup(ctx context.Context, out chan<- string) {
	for index, tag := range f.openTag {
		delete(f.openTag, index)
		if !push(ctx, out, "</"+tag+">") {
			return
		}
	}
}

// WriteMeta emits the metadata chunk that opens a step.
func (f *XML) WriteMeta(ctx context.Context, out chan<- string, meta Metadata) {
	push(ctx, out, fmt.Sprintf("<meta_init agent_uuid=%q model=%q run_id=%q step=\"%d\"/>",
		escapeAttr(meta.AgentUUID), escapeAttr(meta.Model), escapeAttr(meta.RunID), meta.Step))
}

// WriteToolResult emits one executed tool result with an opaque body.
func (f *XML) WriteToolResult(ctx context.Context, out chan<- string, toolUseID, name, body string) {
	push(ctx, out, fmt.Sprintf("<tool_result id=%q name=%q>%s</tool_result>",
		escapeAttr(toolUseID), escapeAttr(name), cdata(body)))
}

// WriteAwaiting emits the terminal pause marker.
func (f *XML) WriteAwaiting(ctx context.Context, out chan<- string, calls []models.PendingToolCall) {
	var sb strings.Builder
	sb.WriteString("<awaiting_frontend_tools>")
	for _, call := range calls {
		input := models.Block{Type: models.BlockTypeToolUse, Input: call.Input}
		sb.WriteString(fmt.Sprintf("<tool id=%q name=%q input=%q/>",
			escapeAttr(call.ToolUseID), escapeAttr(call.Name), escapeAttr(input.InputJSON())))
	}
	sb.WriteString("</awaiting_frontend_tools>")
	push(ctx, out, sb.String())
}

// WriteError emits an error chunk with an opaque body.
func (f *XML) WriteError(ctx context.Context, out chan<- string, message string) {
	push(ctx, out, "<error>"+cdata(message)+"</error>")
}

// blockBody flattens nested content for opaque emission.
func blockBody(block models.Block) string {
	var sb strings.Builder
	for _, inner := range block.Content {
		sb.WriteString(inner.Text)
	}
	return sb.String()
}
