package compact

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/praxis/pkg/models"
)

func TestEstimateTextRule(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateText(tt.text); got != tt.want {
			t.Errorf("EstimateText(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestEstimateImageResize(t *testing.T) {
	// Small image: no resize, straight pixel division.
	if got := EstimateImage(750, 100); got != 100 {
		t.Errorf("small image = %d, want 100", got)
	}
	// Long edge above the cap scales down before division.
	big := EstimateImage(8000, 8000)
	capped := EstimateImage(1568, 1568)
	if big != capped {
		t.Errorf("oversized image = %d, want post-resize %d", big, capped)
	}
	// Pixel-count cap bounds everything at the maximum token cost.
	if max := maxPixelCount / pixelsPerToken; big > max {
		t.Errorf("estimate %d exceeds pixel cap %d", big, max)
	}
	// Unknown dimensions assume the cap.
	if got := EstimateImage(0, 0); got != maxPixelCount/pixelsPerToken {
		t.Errorf("unknown dims = %d", got)
	}
}

func TestEstimateDocument(t *testing.T) {
	if got := EstimateDocument(3); got != 6000 {
		t.Errorf("3 pages = %d, want 6000", got)
	}
	if got := EstimateDocument(0); got != 2000 {
		t.Errorf("unknown pages = %d, want 2000", got)
	}
}

func TestEstimateMonotonic(t *testing.T) {
	history := []models.Message{models.UserText("first")}
	base := EstimateRequest(history, "system", nil)
	grown := EstimateRequest(append(history, models.UserText("second message")), "system", nil)
	if grown <= base {
		t.Errorf("adding a message decreased estimate: %d -> %d", base, grown)
	}
}

// toolHistory builds a history with tool turns whose result bodies are
// large enough to dominate the estimate.
func toolHistory() []models.Message {
	big := strings.Repeat("data ", 400)
	return []models.Message{
		models.UserText("analyze the logs"),
		{Role: models.RoleAssistant, Content: []models.Block{models.ToolUseBlock("T1", "grep", map[string]any{"q": "error"})}},
		{Role: models.RoleUser, Content: []models.Block{models.ToolResultBlock("T1", []models.Block{models.TextBlock(big)}, false)}},
		{Role: models.RoleAssistant, Content: []models.Block{models.ToolUseBlock("T2", "grep", map[string]any{"q": "panic"})}},
		{Role: models.RoleUser, Content: []models.Block{models.ToolResultBlock("T2", []models.Block{models.TextBlock(big)}, false)}},
		{Role: models.RoleAssistant, Content: []models.Block{models.TextBlock("found both")}},
		models.UserText("now summarize"),
	}
}

func TestToolResultRemoval(t *testing.T) {
	history := toolHistory()
	before := EstimateRequest(history, "", nil)

	strategy := NewToolResultRemoval(2)
	out, info, err := strategy.Compact(context.Background(), history, "", nil, "claude-sonnet-4-5", 100)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	if info.TokensAfter >= before {
		t.Errorf("estimate did not shrink: %d -> %d", before, info.TokensAfter)
	}
	if info.ReplacedResults != 2 {
		t.Errorf("replaced = %d, want 2", info.ReplacedResults)
	}
	if len(out) != len(history) {
		t.Errorf("message count changed: %d -> %d", len(history), len(out))
	}
	// tool_use_ids survive the elision.
	if out[2].Content[0].ToolUseID != "T1" || out[4].Content[0].ToolUseID != "T2" {
		t.Error("tool_use_id lost in elision")
	}
	if got := out[2].Content[0].Content[0].Text; got == "" || strings.Contains(got, "data") {
		t.Errorf("body not replaced by placeholder: %q", got)
	}
	// Original history untouched.
	if !strings.Contains(history[2].Content[0].Content[0].Text, "data") {
		t.Error("compaction mutated input history")
	}
}

func TestToolResultRemovalUnderBudgetIsIdentity(t *testing.T) {
	history := []models.Message{models.UserText("hi")}
	strategy := NewToolResultRemoval(2)
	out, info, err := strategy.Compact(context.Background(), history, "", nil, "claude-sonnet-4-5", 1000)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if len(out) != 1 || info.ReplacedResults != 0 {
		t.Errorf("under-budget pass changed history: %+v", info)
	}
}

func TestSlidingWindowFitsBudget(t *testing.T) {
	history := toolHistory()
	before := EstimateRequest(history, "", nil)
	if before <= 80 {
		t.Fatalf("fixture too small: %d", before)
	}

	strategy := NewSlidingWindow(4)
	out, info, err := strategy.Compact(context.Background(), history, "", nil, "claude-sonnet-4-5", 80)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	if info.TokensAfter > 80 {
		t.Errorf("estimate after = %d, want <= 80", info.TokensAfter)
	}
	if info.ReplacedResults == 0 {
		t.Error("old tool results should be elided before cutting")
	}
	// No orphaned tool_result at the window start.
	if dangling := models.ValidateToolResultRefs(out); dangling != "" {
		t.Errorf("window cut left dangling tool_result %q", dangling)
	}
	// Marker message at the cut point.
	if !strings.Contains(out[0].PlainText(), "trimmed") {
		t.Errorf("missing cut marker: %q", out[0].PlainText())
	}
}

func TestSlidingWindowPreservesOrder(t *testing.T) {
	history := toolHistory()
	strategy := NewSlidingWindow(4)
	out, _, err := strategy.Compact(context.Background(), history, "", nil, "claude-sonnet-4-5", 80)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	// The kept suffix is the tail of the original history, in order.
	suffix := out[1:]
	tail := history[len(history)-len(suffix):]
	for i := range suffix {
		if suffix[i].Role != tail[i].Role || suffix[i].PlainText() != tail[i].PlainText() {
			t.Fatalf("message %d reordered: got %s %q", i, suffix[i].Role, suffix[i].PlainText())
		}
	}
}

func TestSummarizing(t *testing.T) {
	history := toolHistory()
	called := 0
	strategy := NewSummarizing(func(ctx context.Context, messages []models.Message) (string, error) {
		called++
		if len(messages) == 0 {
			t.Error("summarizer received empty prefix")
		}
		return "the user analyzed logs and found errors", nil
	}, 3)

	out, info, err := strategy.Compact(context.Background(), history, "", nil, "claude-sonnet-4-5", 80)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if called != 1 {
		t.Errorf("summarizer called %d times", called)
	}
	if !info.Summarized || info.RemovedMessages == 0 {
		t.Errorf("info = %+v", info)
	}
	if !strings.Contains(out[0].PlainText(), "analyzed logs") {
		t.Errorf("synopsis missing: %q", out[0].PlainText())
	}
	if info.TokensAfter >= info.TokensBefore {
		t.Errorf("estimate did not shrink: %+v", info)
	}
}

func TestSummarizingErrorPropagates(t *testing.T) {
	strategy := NewSummarizing(func(ctx context.Context, messages []models.Message) (string, error) {
		return "", errors.New("summarization model unavailable")
	}, 2)

	history := toolHistory()
	out, _, err := strategy.Compact(context.Background(), history, "", nil, "claude-sonnet-4-5", 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(out) != len(history) {
		t.Error("failed compaction should return history unchanged")
	}
}

func TestNoneIsIdentity(t *testing.T) {
	history := toolHistory()
	out, info, err := None{}.Compact(context.Background(), history, "sys", nil, "claude-sonnet-4-5", 1)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if len(out) != len(history) || info.TokensBefore != info.TokensAfter {
		t.Errorf("identity changed history: %+v", info)
	}
}

func TestBudgetThreshold(t *testing.T) {
	if got := Budget("claude-sonnet-4-5"); got != 160000 {
		t.Errorf("budget = %d, want 160000", got)
	}
	if got := ContextWindow("gpt-4o-2024-08-06"); got != 128000 {
		t.Errorf("prefix match window = %d", got)
	}
	if OverBudget(100, "claude-sonnet-4-5") {
		t.Error("small estimate flagged over budget")
	}
	if !OverBudget(190000, "claude-sonnet-4-5") {
		t.Error("large estimate not flagged")
	}
}

func TestFactory(t *testing.T) {
	for _, name := range []string{"none", "tool_result_removal", "sliding_window", "summarizing", ""} {
		c, err := New(name, nil)
		if err != nil {
			t.Errorf("New(%q): %v", name, err)
			continue
		}
		if name != "" && c.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, c.Name())
		}
	}
	if _, err := New("zip", nil); err == nil {
		t.Error("unknown strategy accepted")
	}
}
