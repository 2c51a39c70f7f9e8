// Package tools manages the agent's tool surface: registration, schema
// conversion between the native and function-call wire shapes, input
// validation, and backend execution with multimodal persistence.
package tools

import (
	"context"

	"github.com/haasonsaas/praxis/pkg/models"
)

// Result is what a backend tool returns: content blocks for the API
// payload (text, image, document) and an error flag.
type Result struct {
	Content []models.Block
	IsError bool
}

// TextResult builds a single-text success result.
func TextResult(text string) *Result {
	return &Result{Content: []models.Block{models.TextBlock(text)}}
}

// ErrorResult builds a failure result carrying an error string.
func ErrorResult(message string) *Result {
	return &Result{Content: []models.Block{models.TextBlock(message)}, IsError: true}
}

// Callable executes a backend tool. Input has already been validated
// against the tool's schema.
type Callable interface {
	Call(ctx context.Context, input map[string]any) (*Result, error)
}

// CallableFunc adapts a plain function returning text.
type CallableFunc func(ctx context.Context, input map[string]any) (string, error)

// Call implements Callable.
func (f CallableFunc) Call(ctx context.Context, input map[string]any) (*Result, error) {
	text, err := f(ctx, input)
	if err != nil {
		return nil, err
	}
	return TextResult(text), nil
}

// ScopedToAgent is an optional interface for callables that need the
// owning agent's identity, for per-agent storage or quotas. BindAgent is
// invoked before each call.
type ScopedToAgent interface {
	BindAgent(agentUUID string)
}

// Descriptor declares one tool. Backend tools carry a Callable; frontend
// tools are executed by the caller and carry none.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
	Executor    models.ToolExecutor
	Callable    Callable
}

// Def converts the descriptor into the durable config shape.
func (d Descriptor) Def() models.ToolDef {
	return models.ToolDef{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema,
		Executor:    d.Executor,
	}
}
