// Package openai implements the llm.Provider contract for OpenAI chat
// models. Tool calls stream incrementally and are accumulated per index
// before being surfaced as complete tool_use blocks.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

const providerName = "openai"

// Config holds the provider settings.
type Config struct {
	// APIKey authenticates against the OpenAI API (required).
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and compatible
	// backends.
	BaseURL string

	// DefaultModel is used when a request leaves Model empty.
	DefaultModel string
}

// Provider is the OpenAI implementation of llm.Provider. Safe for
// concurrent use; each Stream call owns an independent chat stream.
type Provider struct {
	client       *openai.Client
	defaultModel string
}

// New creates an OpenAI provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns "openai".
func (p *Provider) Name() string { return providerName }

// Stream opens a streaming chat completion and normalizes its chunks.
func (p *Provider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	model := p.model(req.Model)
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(req.System, req.Messages),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	for _, tool := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	events := make(chan llm.Event)
	go func() {
		defer close(events)
		defer func() { _ = stream.Close() }()
		p.pump(ctx, stream, model, events)
	}()
	return events, nil
}

// pendingCall accumulates one tool call across delta chunks.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// pump reads chat chunks and translates them into normalized events.
// Text streams through an open text block; tool calls accumulate until
// the finish reason marks them complete.
func (p *Provider) pump(ctx context.Context, stream *openai.ChatCompletionStream, model string, events chan<- llm.Event) {
	emit := func(ev llm.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		started    bool
		textOpen   bool
		nextIndex  int
		stopReason llm.StopReason
		usage      *models.Usage
		calls      []*pendingCall
		callByIdx  = map[int]*pendingCall{}
	)

	closeText := func() bool {
		if !textOpen {
			return true
		}
		textOpen = false
		return emit(llm.Event{Type: llm.EventBlockStop, Index: nextIndex - 1})
	}

	flushCalls := func() bool {
		if !closeText() {
			return false
		}
		for _, call := range calls {
			if call.id == "" || call.name == "" {
				continue
			}
			index := nextIndex
			nextIndex++
			block := models.Block{Type: models.BlockTypeToolUse, ID: call.id, Name: call.name}
			if !emit(llm.Event{Type: llm.EventBlockStart, Index: index, Block: &block}) {
				return false
			}
			if args := call.args.String(); args != "" {
				if !emit(llm.Event{Type: llm.EventInputJSONDelta, Index: index, PartialJSON: args}) {
					return false
				}
			}
			if !emit(llm.Event{Type: llm.EventBlockStop, Index: index}) {
				return false
			}
		}
		calls = nil
		callByIdx = map[int]*pendingCall{}
		return true
	}

	finish := func() {
		if !flushCalls() {
			return
		}
		if stopReason == "" {
			stopReason = llm.StopEndTurn
		}
		delta := llm.Event{Type: llm.EventMessageDelta, StopReason: stopReason}
		if usage != nil {
			delta.Usage = usage
		} else {
			delta.Usage = &models.Usage{}
		}
		if !emit(delta) {
			return
		}
		emit(llm.Event{Type: llm.EventMessageStop})
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				finish()
				return
			}
			emit(llm.Event{Err: p.wrapError(err, model)})
			return
		}

		if !started {
			started = true
			if !emit(llm.Event{
				Type:      llm.EventMessageStart,
				MessageID: resp.ID,
				Model:     resp.Model,
				Usage:     &models.Usage{},
			}) {
				return
			}
		}

		// The usage-only trailing chunk has no choices.
		if resp.Usage != nil {
			usage = &models.Usage{
				InputTokens:  int64(resp.Usage.PromptTokens),
				OutputTokens: int64(resp.Usage.CompletionTokens),
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			if !textOpen {
				textOpen = true
				index := nextIndex
				nextIndex++
				block := models.Block{Type: models.BlockTypeText}
				if !emit(llm.Event{Type: llm.EventBlockStart, Index: index, Block: &block}) {
					return
				}
			}
			if !emit(llm.Event{Type: llm.EventTextDelta, Index: nextIndex - 1, Text: choice.Delta.Content}) {
				return
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			call := callByIdx[index]
			if call == nil {
				call = &pendingCall{}
				callByIdx[index] = call
				calls = append(calls, call)
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				call.args.WriteString(tc.Function.Arguments)
			}
		}

		switch choice.FinishReason {
		case openai.FinishReasonToolCalls:
			stopReason = llm.StopToolUse
			if !flushCalls() {
				return
			}
		case openai.FinishReasonStop:
			stopReason = llm.StopEndTurn
		case openai.FinishReasonLength:
			stopReason = llm.StopMaxTokens
		case openai.FinishReasonContentFilter:
			stopReason = llm.StopUnknown
		}
	}
}

// CountTokens is unsupported; OpenAI has no counting endpoint for chat
// requests. Callers fall back to heuristic estimation.
func (p *Provider) CountTokens(ctx context.Context, req *llm.Request) (int, error) {
	return 0, llm.ErrTokenCountUnavailable
}

// convertMessages flattens history into OpenAI chat messages. The system
// prompt leads the array; assistant tool_use blocks become tool calls and
// each tool_result becomes its own tool-role message.
func convertMessages(system string, messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		if msg.Role == models.RoleAssistant {
			out = append(out, convertAssistant(msg))
			continue
		}
		out = append(out, convertUser(msg)...)
	}
	return out
}

// convertAssistant maps an assistant message, folding tool_use blocks
// into OpenAI tool calls. Thinking blocks are dropped; OpenAI has no
// equivalent and rejects unknown content.
func convertAssistant(msg models.Message) openai.ChatCompletionMessage {
	oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case models.BlockTypeText:
			text.WriteString(block.Text)
		case models.BlockTypeToolUse:
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   block.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      block.Name,
					Arguments: block.InputJSON(),
				},
			})
		}
	}
	oaiMsg.Content = text.String()
	return oaiMsg
}

// convertUser maps a user message. Tool results split into one tool-role
// message each; remaining text and images form a single user message.
func convertUser(msg models.Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	var text strings.Builder
	var parts []openai.ChatMessagePart

	for _, block := range msg.Content {
		switch block.Type {
		case models.BlockTypeText:
			text.WriteString(block.Text)
		case models.BlockTypeToolResult:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    resultText(block),
				ToolCallID: block.ToolUseID,
			})
		case models.BlockTypeImage:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", block.MediaType, block.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}

	if len(parts) > 0 {
		if text.Len() > 0 {
			parts = append([]openai.ChatMessagePart{{
				Type: openai.ChatMessagePartTypeText,
				Text: text.String(),
			}}, parts...)
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: parts,
		})
	} else if text.Len() > 0 {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: text.String(),
		})
	}
	return out
}

// resultText flattens a tool result to plain text. Image content is
// summarized; OpenAI tool messages carry strings only.
func resultText(block models.Block) string {
	var text strings.Builder
	for _, inner := range block.Content {
		switch inner.Type {
		case models.BlockTypeText:
			text.WriteString(inner.Text)
		case models.BlockTypeImage:
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString("[image attachment]")
		}
	}
	return text.String()
}

// wrapError converts an SDK failure into a classified llm.Error.
func (p *Provider) wrapError(err error, model string) error {
	wrapped := llm.NewError(providerName, model, err)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrapped.WithStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok {
			wrapped.WithCode(code)
		}
	}
	return wrapped
}

func (p *Provider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}
