// Package builtin provides the bundled backend tools registered by the
// CLI: small, dependency-free callables that exercise the dispatch path.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/praxis/internal/tools"
	"github.com/haasonsaas/praxis/pkg/models"
)

// Descriptors returns the bundled tool set.
func Descriptors() []tools.Descriptor {
	return []tools.Descriptor{
		currentTime(),
		calculate(),
	}
}

func currentTime() tools.Descriptor {
	return tools.Descriptor{
		Name:        "current_time",
		Description: "Returns the current date and time, optionally in a named IANA timezone.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name, e.g. America/New_York. Defaults to UTC.",
				},
			},
		},
		Executor: models.ExecutorBackend,
		Callable: tools.CallableFunc(func(ctx context.Context, input map[string]any) (string, error) {
			loc := time.UTC
			if name, ok := input["timezone"].(string); ok && name != "" {
				parsed, err := time.LoadLocation(name)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", name)
				}
				loc = parsed
			}
			return time.Now().In(loc).Format(time.RFC3339), nil
		}),
	}
}

func calculate() tools.Descriptor {
	return tools.Descriptor{
		Name:        "calculate",
		Description: "Applies a basic arithmetic operation to two numbers.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"op": map[string]any{
					"type": "string",
					"enum": []any{"add", "sub", "mul", "div"},
				},
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []any{"op", "a", "b"},
		},
		Executor: models.ExecutorBackend,
		Callable: tools.CallableFunc(func(ctx context.Context, input map[string]any) (string, error) {
			a, _ := input["a"].(float64)
			b, _ := input["b"].(float64)
			op, _ := input["op"].(string)
			switch op {
			case "add":
				return fmt.Sprintf("%g", a+b), nil
			case "sub":
				return fmt.Sprintf("%g", a-b), nil
			case "mul":
				return fmt.Sprintf("%g", a*b), nil
			case "div":
				if b == 0 {
					return "", fmt.Errorf("division by zero")
				}
				return fmt.Sprintf("%g", a/b), nil
			default:
				return "", fmt.Errorf("unknown operation %q", op)
			}
		}),
	}
}
