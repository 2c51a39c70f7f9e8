package compact

import (
	"context"
	"fmt"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

// minWindow is the smallest message suffix the window will cut down to.
const minWindow = 2

// SlidingWindow keeps a suffix of recent messages, inserting a textual
// marker at the cut point. Old tool result bodies are elided first; the
// cut only happens when that alone does not fit the budget.
type SlidingWindow struct {
	keep int
}

// NewSlidingWindow creates the strategy. keep <= 0 selects the default
// suffix length.
func NewSlidingWindow(keep int) SlidingWindow {
	if keep <= 0 {
		keep = defaultKeepMessages
	}
	return SlidingWindow{keep: keep}
}

// Name returns "sliding_window".
func (SlidingWindow) Name() string { return StrategySlidingWindow }

// Compact elides old tool results, then shrinks the window until the
// estimate fits. The cut never splits a tool_use from its results: it
// advances to a boundary where the window starts on a message without
// tool_result blocks.
func (w SlidingWindow) Compact(ctx context.Context, history []models.Message, system string, tools []llm.ToolSchema, model string, budget int) ([]models.Message, *Info, error) {
	before := EstimateRequest(history, system, tools)
	info := &Info{Strategy: w.Name(), TokensBefore: before, TokensAfter: before}
	if before <= budget {
		return history, info, nil
	}

	out, replaced := elideOldToolResults(history, w.keep)
	info.ReplacedResults = replaced
	info.TokensAfter = EstimateRequest(out, system, tools)
	if info.TokensAfter <= budget {
		return out, info, nil
	}

	for window := w.keep; window >= minWindow; window-- {
		cut := cutPoint(out, window)
		if cut <= 0 {
			continue
		}
		marker := models.UserText(fmt.Sprintf(
			"[context window trimmed: %d earlier messages removed]", cut))
		candidate := append([]models.Message{marker}, out[cut:]...)
		estimate := EstimateRequest(candidate, system, tools)
		if estimate <= budget || window == minWindow {
			info.RemovedMessages = cut
			info.TokensAfter = estimate
			return candidate, info, nil
		}
	}
	return out, info, nil
}

// cutPoint finds the cut index for a window of the given size, advanced
// so the remaining suffix does not open with orphaned tool results.
func cutPoint(history []models.Message, window int) int {
	cut := len(history) - window
	if cut <= 0 {
		return 0
	}
	for cut < len(history) && history[cut].HasToolResults() {
		cut++
	}
	if cut >= len(history) {
		return len(history) - 1
	}
	return cut
}
