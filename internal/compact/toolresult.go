package compact

import (
	"context"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

// defaultKeepMessages is the suffix left untouched by the lossy
// strategies: the most recent turns keep their full tool results.
const defaultKeepMessages = 6

// ToolResultRemoval elides tool result bodies older than the keep
// suffix. Most aggressive lossy strategy; simplest.
type ToolResultRemoval struct {
	keep int
}

// NewToolResultRemoval creates the strategy. keep <= 0 selects the
// default suffix length.
func NewToolResultRemoval(keep int) ToolResultRemoval {
	if keep <= 0 {
		keep = defaultKeepMessages
	}
	return ToolResultRemoval{keep: keep}
}

// Name returns "tool_result_removal".
func (ToolResultRemoval) Name() string { return StrategyToolResultRemoval }

// Compact replaces old tool result bodies with placeholders.
func (t ToolResultRemoval) Compact(ctx context.Context, history []models.Message, system string, tools []llm.ToolSchema, model string, budget int) ([]models.Message, *Info, error) {
	before := EstimateRequest(history, system, tools)
	info := &Info{Strategy: t.Name(), TokensBefore: before, TokensAfter: before}
	if before <= budget {
		return history, info, nil
	}

	out, replaced := elideOldToolResults(history, t.keep)
	info.ReplacedResults = replaced
	info.TokensAfter = EstimateRequest(out, system, tools)
	return out, info, nil
}
