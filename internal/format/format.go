// Package format converts provider event streams into the normalized
// chunk sequences consumers read from the output channel. Two shapes are
// supported: a structured tag-delimited form for text-protocol consumers
// and a raw form that frames every provider event as JSON.
package format

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

// Shape names selectable in agent configuration.
const (
	ShapeXML = "xml"
	ShapeRaw = "raw"
)

// Metadata identifies the step a chunk sequence belongs to.
type Metadata struct {
	AgentUUID string
	Model     string
	RunID     string
	Step      int
}

// Result is the assembled outcome of one formatted provider stream.
type Result struct {
	// Message is the final assistant message for history.
	Message models.Message

	MessageID string
	Model     string

	StopReason   llm.StopReason
	StopSequence string

	// Usage aggregates the input and output token counts the provider
	// reported for this response.
	Usage models.Usage
}

// Formatter writes normalized chunks to the output channel. Format
// consumes the provider stream; the Write methods emit agent-originated
// chunks (step metadata, executed tool results, pause markers, errors)
// in the same shape.
//
// Formatters are single-use per step and not safe for concurrent use.
type Formatter interface {
	Name() string

	// Format drains the event stream, streaming chunks to out, and
	// returns the assembled message. On abnormal termination it closes
	// any open blocks, returns the partial result, and surfaces the
	// stream error.
	Format(ctx context.Context, events <-chan llm.Event, out chan<- string) (*Result, error)

	// WriteMeta emits the step metadata chunk that opens a response.
	WriteMeta(ctx context.Context, out chan<- string, meta Metadata)

	// WriteToolResult emits one executed tool result.
	WriteToolResult(ctx context.Context, out chan<- string, toolUseID, name, body string)

	// WriteAwaiting emits the terminal pause marker listing pending
	// frontend tool calls.
	WriteAwaiting(ctx context.Context, out chan<- string, calls []models.PendingToolCall)

	// WriteError emits an error chunk.
	WriteError(ctx context.Context, out chan<- string, message string)
}

// New returns the formatter for the configured shape name.
func New(shape string) (Formatter, error) {
	switch shape {
	case ShapeXML, "":
		return NewXML(), nil
	case ShapeRaw:
		return NewRaw(), nil
	default:
		return nil, fmt.Errorf("unknown formatter shape %q", shape)
	}
}

// push delivers one chunk, honoring cancellation. Reports false when the
// consumer went away.
func push(ctx context.Context, out chan<- string, chunk string) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
	"\n", "&#10;",
)

// escapeAttr escapes a value for use inside a double-quoted attribute.
func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
)

// escapeText escapes streamed body text so it cannot open or close tags.
func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// cdata wraps an opaque body. Occurrences of the terminator inside the
// body are split across adjacent sections.
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}
