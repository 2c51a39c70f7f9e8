package compact

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/praxis/internal/format"
	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

// summarySystemPrompt drives the offloaded summarization call.
const summarySystemPrompt = "Summarize the conversation below into a compact synopsis. " +
	"Preserve decisions, facts, open tasks, and tool outcomes. Respond with the synopsis only."

// SummarizeFunc condenses a message prefix into one synopsis string.
type SummarizeFunc func(ctx context.Context, messages []models.Message) (string, error)

// Summarizing offloads older messages to a summarization call and
// replaces them with one synopsis block.
type Summarizing struct {
	summarize SummarizeFunc
	keep      int
}

// NewSummarizing creates the strategy. keep <= 0 selects the default
// suffix length.
func NewSummarizing(summarize SummarizeFunc, keep int) Summarizing {
	if keep <= 0 {
		keep = defaultKeepMessages
	}
	return Summarizing{summarize: summarize, keep: keep}
}

// Name returns "summarizing".
func (Summarizing) Name() string { return StrategySummarizing }

// Compact replaces the prefix older than the keep suffix with a single
// synopsis message produced by the summarizer.
func (s Summarizing) Compact(ctx context.Context, history []models.Message, system string, tools []llm.ToolSchema, model string, budget int) ([]models.Message, *Info, error) {
	before := EstimateRequest(history, system, tools)
	info := &Info{Strategy: s.Name(), TokensBefore: before, TokensAfter: before}
	if before <= budget {
		return history, info, nil
	}
	if s.summarize == nil {
		return history, info, fmt.Errorf("summarizing compactor: no summarizer configured")
	}

	cut := cutPoint(history, s.keep)
	if cut <= 0 {
		return history, info, nil
	}

	synopsis, err := s.summarize(ctx, history[:cut])
	if err != nil {
		return history, info, fmt.Errorf("summarize history: %w", err)
	}

	summary := models.UserText("Summary of earlier conversation:\n" + synopsis)
	out := append([]models.Message{summary}, history[cut:]...)
	info.RemovedMessages = cut
	info.Summarized = true
	info.TokensAfter = EstimateRequest(out, system, tools)
	return out, info, nil
}

// ProviderSummarizer builds a SummarizeFunc backed by an LLM provider.
func ProviderSummarizer(provider llm.Provider, model string, maxTokens int) SummarizeFunc {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return func(ctx context.Context, messages []models.Message) (string, error) {
		var transcript strings.Builder
		for _, msg := range messages {
			transcript.WriteString(string(msg.Role))
			transcript.WriteString(": ")
			transcript.WriteString(msg.PlainText())
			for _, use := range msg.ToolUses() {
				fmt.Fprintf(&transcript, " [called %s(%s)]", use.Name, use.InputJSON())
			}
			transcript.WriteString("\n")
		}

		events, err := provider.Stream(ctx, &llm.Request{
			Model:     model,
			System:    summarySystemPrompt,
			Messages:  []models.Message{models.UserText(transcript.String())},
			MaxTokens: maxTokens,
		})
		if err != nil {
			return "", err
		}
		result, err := format.Assemble(events)
		if err != nil {
			return "", err
		}
		return result.Message.PlainText(), nil
	}
}
