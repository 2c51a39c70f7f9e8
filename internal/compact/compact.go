// Package compact shrinks conversation history to fit a token budget.
// It provides the heuristic token estimator and the pluggable strategy
// set: identity, tool-result removal, sliding window, and summarizing.
package compact

import (
	"context"
	"fmt"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

// Strategy names selectable in agent configuration.
const (
	StrategyNone              = "none"
	StrategyToolResultRemoval = "tool_result_removal"
	StrategySlidingWindow     = "sliding_window"
	StrategySummarizing       = "summarizing"
)

// placeholder replaces elided tool result bodies.
const placeholder = "[tool result elided to fit context]"

// Info reports what a compaction pass did.
type Info struct {
	Strategy        string `json:"strategy"`
	TokensBefore    int    `json:"tokens_before"`
	TokensAfter     int    `json:"tokens_after"`
	RemovedMessages int    `json:"removed_messages,omitempty"`
	ReplacedResults int    `json:"replaced_results,omitempty"`
	Summarized      bool   `json:"summarized,omitempty"`
}

// Compactor shrinks history to fit a budget. Implementations operate on
// history only; the in-flight response never participates.
type Compactor interface {
	Name() string
	Compact(ctx context.Context, history []models.Message, system string, tools []llm.ToolSchema, model string, budget int) ([]models.Message, *Info, error)
}

// New constructs a strategy by name. The summarizer is only consulted by
// the summarizing strategy and may be nil otherwise.
func New(name string, summarize SummarizeFunc) (Compactor, error) {
	switch name {
	case StrategyNone, "":
		return None{}, nil
	case StrategyToolResultRemoval:
		return NewToolResultRemoval(0), nil
	case StrategySlidingWindow:
		return NewSlidingWindow(0), nil
	case StrategySummarizing:
		return NewSummarizing(summarize, 0), nil
	default:
		return nil, fmt.Errorf("unknown compactor %q", name)
	}
}

// None is the identity strategy.
type None struct{}

// Name returns "none".
func (None) Name() string { return StrategyNone }

// Compact returns the history unchanged.
func (None) Compact(ctx context.Context, history []models.Message, system string, tools []llm.ToolSchema, model string, budget int) ([]models.Message, *Info, error) {
	estimate := EstimateRequest(history, system, tools)
	return history, &Info{
		Strategy:     StrategyNone,
		TokensBefore: estimate,
		TokensAfter:  estimate,
	}, nil
}

// elideOldToolResults replaces tool result bodies outside the keep
// suffix with a placeholder, preserving tool_use_id and error flags.
// Returns the rewritten history and the replacement count.
func elideOldToolResults(history []models.Message, keep int) ([]models.Message, int) {
	if keep < 0 {
		keep = 0
	}
	cutoff := len(history) - keep
	replaced := 0

	out := make([]models.Message, len(history))
	copy(out, history)
	for i := 0; i < cutoff && i < len(out); i++ {
		if !out[i].HasToolResults() {
			continue
		}
		content := make([]models.Block, len(out[i].Content))
		copy(content, out[i].Content)
		for j, block := range content {
			if block.Type != models.BlockTypeToolResult {
				continue
			}
			if isPlaceholder(block) {
				continue
			}
			content[j] = models.Block{
				Type:      models.BlockTypeToolResult,
				ToolUseID: block.ToolUseID,
				IsError:   block.IsError,
				Content:   []models.Block{models.TextBlock(placeholder)},
			}
			replaced++
		}
		out[i].Content = content
	}
	return out, replaced
}

func isPlaceholder(block models.Block) bool {
	return len(block.Content) == 1 &&
		block.Content[0].Type == models.BlockTypeText &&
		block.Content[0].Text == placeholder
}
