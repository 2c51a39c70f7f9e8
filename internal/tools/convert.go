package tools

import (
	"fmt"

	"github.com/haasonsaas/praxis/internal/llm"
)

// FunctionDef is the OpenAI-style function-call schema shape.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FunctionSchema wraps a function definition the way chat-completion
// APIs expect.
type FunctionSchema struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// NativeSchemas returns every tool in the native wire shape, in
// registration order.
func (r *Registry) NativeSchemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]llm.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		desc := r.tools[name]
		schemas = append(schemas, llm.ToolSchema{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema,
		})
	}
	return schemas
}

// FunctionSchemas returns every tool in the function-call shape, in
// registration order.
func (r *Registry) FunctionSchemas() []FunctionSchema {
	native := r.NativeSchemas()
	schemas := make([]FunctionSchema, 0, len(native))
	for _, ts := range native {
		schemas = append(schemas, NativeToFunction(ts))
	}
	return schemas
}

// NativeToFunction converts the native shape to the function-call shape.
// Lossless over name, description, and the schema map.
func NativeToFunction(ts llm.ToolSchema) FunctionSchema {
	return FunctionSchema{
		Type: "function",
		Function: FunctionDef{
			Name:        ts.Name,
			Description: ts.Description,
			Parameters:  ts.InputSchema,
		},
	}
}

// FunctionToNative converts the function-call shape back to native.
func FunctionToNative(fs FunctionSchema) (llm.ToolSchema, error) {
	if fs.Type != "" && fs.Type != "function" {
		return llm.ToolSchema{}, fmt.Errorf("unexpected schema type %q", fs.Type)
	}
	return llm.ToolSchema{
		Name:        fs.Function.Name,
		Description: fs.Function.Description,
		InputSchema: fs.Function.Parameters,
	}, nil
}
