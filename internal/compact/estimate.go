package compact

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

// Heuristic constants. Text runs about four characters per token; image
// cost follows the provider's pixels-per-token rule after its documented
// auto-resize; PDF pages carry a flat page cost.
const (
	charsPerToken  = 4
	pixelsPerToken = 750

	// Provider-side auto-resize caps.
	maxLongEdge   = 1568
	maxPixelCount = 1600 * 750

	tokensPerPage = 2000

	// perMessageOverhead covers role framing per message.
	perMessageOverhead = 4
)

// defaultContextWindow is assumed when the model is not in the table.
const defaultContextWindow = 200000

// compactionThreshold is the fraction of the context window that
// triggers compaction.
const compactionThreshold = 0.8

// contextWindows lists published context sizes per model family.
var contextWindows = map[string]int{
	"claude-opus-4":     200000,
	"claude-sonnet-4":   200000,
	"claude-sonnet-4-5": 200000,
	"claude-haiku-4-5":  200000,
	"gpt-4o":            128000,
	"gpt-4-turbo":       128000,
	"gpt-3.5-turbo":     16385,
}

// ContextWindow returns the published context window for a model,
// matching by prefix so dated snapshots resolve to their family.
func ContextWindow(model string) int {
	if size, ok := contextWindows[model]; ok {
		return size
	}
	for family, size := range contextWindows {
		if strings.HasPrefix(model, family) {
			return size
		}
	}
	return defaultContextWindow
}

// Budget returns the token budget for a model: the compaction threshold
// applied to its context window.
func Budget(model string) int {
	return int(float64(ContextWindow(model)) * compactionThreshold)
}

// OverBudget reports whether an estimated request size calls for
// compaction before the next provider call.
func OverBudget(estimate int, model string) bool {
	return estimate > Budget(model)
}

// EstimateText estimates tokens for a text body.
func EstimateText(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// EstimateImage estimates tokens for an image with the given pixel
// dimensions, applying the provider's auto-resize first. Unknown
// dimensions assume the post-resize maximum.
func EstimateImage(width, height int) int {
	if width <= 0 || height <= 0 {
		return maxPixelCount / pixelsPerToken
	}
	w, h := float64(width), float64(height)

	if long := math.Max(w, h); long > maxLongEdge {
		scale := maxLongEdge / long
		w *= scale
		h *= scale
	}
	if pixels := w * h; pixels > maxPixelCount {
		scale := math.Sqrt(maxPixelCount / pixels)
		w *= scale
		h *= scale
	}
	return int(math.Ceil(w * h / pixelsPerToken))
}

// EstimateDocument estimates tokens for a PDF by page count. Unknown
// page counts assume a single page.
func EstimateDocument(pages int) int {
	if pages <= 0 {
		pages = 1
	}
	return pages * tokensPerPage
}

// EstimateBlock estimates tokens for one content block.
func EstimateBlock(block models.Block) int {
	switch block.Type {
	case models.BlockTypeText, models.BlockTypeThinking:
		return EstimateText(block.Text)
	case models.BlockTypeToolUse, models.BlockTypeServerToolUse:
		return EstimateText(block.Name) + EstimateText(block.InputJSON())
	case models.BlockTypeToolResult, models.BlockTypeServerToolResult:
		total := 0
		for _, inner := range block.Content {
			total += EstimateBlock(inner)
		}
		return total
	case models.BlockTypeImage:
		return EstimateImage(block.Width, block.Height)
	case models.BlockTypeDocument:
		return EstimateDocument(block.Pages)
	default:
		return EstimateText(block.Text)
	}
}

// EstimateMessage estimates tokens for one message including framing
// overhead.
func EstimateMessage(msg models.Message) int {
	total := perMessageOverhead
	for _, block := range msg.Content {
		total += EstimateBlock(block)
	}
	return total
}

// EstimateRequest estimates the full prompt: system, tool schemas, and
// history.
func EstimateRequest(history []models.Message, system string, tools []llm.ToolSchema) int {
	total := EstimateText(system)
	for _, tool := range tools {
		total += EstimateText(tool.Name) + EstimateText(tool.Description)
		if raw, err := json.Marshal(tool.InputSchema); err == nil {
			total += EstimateText(string(raw))
		}
	}
	for _, msg := range history {
		total += EstimateMessage(msg)
	}
	return total
}
