// Package anthropic implements the llm.Provider contract on top of the
// official Anthropic SDK. It handles message and tool conversion, SSE
// stream normalization, thinking blocks, server-side tools, and the token
// counting endpoint.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

const providerName = "anthropic"

// defaultMaxTokens caps the response when the request does not.
const defaultMaxTokens = 4096

// Config holds the provider settings.
type Config struct {
	// APIKey authenticates against the Anthropic API (required).
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and test servers.
	BaseURL string

	// DefaultModel is used when a request leaves Model empty.
	DefaultModel string
}

// Provider is the Anthropic implementation of llm.Provider. Safe for
// concurrent use; every Stream call owns an independent SSE stream.
type Provider struct {
	client       sdk.Client
	defaultModel string
}

// New creates an Anthropic provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{
		client:       sdk.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns "anthropic".
func (p *Provider) Name() string { return providerName }

// Stream opens a streaming message request and normalizes its events.
// The first SSE event is consumed synchronously so connection-time
// failures (auth, 4xx) surface as a direct error instead of a channel
// event.
func (p *Provider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	model := p.model(req.Model)
	params, opts, err := p.buildParams(req, model)
	if err != nil {
		return nil, llm.NewError(providerName, model, err)
	}

	stream := p.client.Messages.NewStreaming(ctx, params, opts...)
	if !stream.Next() {
		streamErr := stream.Err()
		_ = stream.Close()
		if streamErr != nil {
			return nil, p.wrapError(streamErr, model)
		}
		// Stream ended with no events and no error; hand back a closed
		// channel so the caller sees a clean empty sequence.
		events := make(chan llm.Event)
		close(events)
		return events, nil
	}
	first := stream.Current()

	events := make(chan llm.Event)
	go func() {
		defer close(events)
		defer func() { _ = stream.Close() }()
		p.pump(ctx, stream, first, model, events)
	}()
	return events, nil
}

// pump translates SSE events into normalized llm events until the stream
// ends or the context is cancelled.
func (p *Provider) pump(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], first sdk.MessageStreamEventUnion, model string, events chan<- llm.Event) {
	emit := func(ev llm.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !p.emitEvent(first, emit) {
		return
	}
	for stream.Next() {
		if !p.emitEvent(stream.Current(), emit) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		emit(llm.Event{Err: p.wrapError(err, model)})
	}
}

// emitEvent maps one SSE event onto zero or more normalized events.
// Returns false when the consumer went away.
func (p *Provider) emitEvent(event sdk.MessageStreamEventUnion, emit func(llm.Event) bool) bool {
	switch e := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		usage := &models.Usage{
			InputTokens:         e.Message.Usage.InputTokens,
			CacheCreationTokens: e.Message.Usage.CacheCreationInputTokens,
			CacheReadTokens:     e.Message.Usage.CacheReadInputTokens,
		}
		return emit(llm.Event{
			Type:      llm.EventMessageStart,
			MessageID: e.Message.ID,
			Model:     string(e.Message.Model),
			Usage:     usage,
		})

	case sdk.ContentBlockStartEvent:
		index := int(e.Index)
		block := convertStartBlock(e.ContentBlock)
		return emit(llm.Event{Type: llm.EventBlockStart, Index: index, Block: &block})

	case sdk.ContentBlockDeltaEvent:
		index := int(e.Index)
		switch delta := e.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return true
			}
			return emit(llm.Event{Type: llm.EventTextDelta, Index: index, Text: delta.Text})
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				return true
			}
			return emit(llm.Event{Type: llm.EventThinkingDelta, Index: index, Text: delta.Thinking})
		case sdk.SignatureDelta:
			return emit(llm.Event{Type: llm.EventSignatureDelta, Index: index, Text: delta.Signature})
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return true
			}
			return emit(llm.Event{Type: llm.EventInputJSONDelta, Index: index, PartialJSON: delta.PartialJSON})
		}
		return true

	case sdk.ContentBlockStopEvent:
		return emit(llm.Event{Type: llm.EventBlockStop, Index: int(e.Index)})

	case sdk.MessageDeltaEvent:
		return emit(llm.Event{
			Type:         llm.EventMessageDelta,
			StopReason:   convertStopReason(string(e.Delta.StopReason)),
			StopSequence: e.Delta.StopSequence,
			Usage:        &models.Usage{OutputTokens: e.Usage.OutputTokens},
		})

	case sdk.MessageStopEvent:
		return emit(llm.Event{Type: llm.EventMessageStop})
	}
	// Ping and unknown event types are ignored.
	return true
}

// convertStartBlock maps the initial content block of a block_start event.
func convertStartBlock(cb sdk.ContentBlockStartEventContentBlockUnion) models.Block {
	switch content := cb.AsAny().(type) {
	case sdk.ThinkingBlock:
		return models.Block{Type: models.BlockTypeThinking}
	case sdk.ToolUseBlock:
		return models.Block{Type: models.BlockTypeToolUse, ID: content.ID, Name: content.Name}
	case sdk.ServerToolUseBlock:
		return models.Block{Type: models.BlockTypeServerToolUse, ID: content.ID, Name: string(content.Name)}
	case sdk.WebSearchToolResultBlock:
		// Server tool results arrive fully formed; keep the raw payload
		// opaque.
		return models.Block{
			Type:      models.BlockTypeServerToolResult,
			ToolUseID: content.ToolUseID,
			Name:      "web_search",
			Content:   []models.Block{models.TextBlock(content.Content.RawJSON())},
		}
	default:
		return models.Block{Type: models.BlockTypeText}
	}
}

func convertStopReason(reason string) llm.StopReason {
	switch reason {
	case "end_turn":
		return llm.StopEndTurn
	case "tool_use":
		return llm.StopToolUse
	case "max_tokens":
		return llm.StopMaxTokens
	case "stop_sequence":
		return llm.StopStopSequence
	case "":
		return ""
	default:
		return llm.StopUnknown
	}
}

// CountTokens calls the token counting endpoint for the request.
func (p *Provider) CountTokens(ctx context.Context, req *llm.Request) (int, error) {
	model := p.model(req.Model)
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return 0, llm.NewError(providerName, model, err)
	}
	// The system prompt is counted as a leading user message; the counting
	// endpoint's system union is avoided and the difference is a handful of
	// framing tokens.
	if req.System != "" {
		system := []sdk.MessageParam{{
			Role:    sdk.MessageParamRoleUser,
			Content: []sdk.ContentBlockParamUnion{sdk.NewTextBlock(req.System)},
		}}
		messages = append(system, messages...)
	}
	if len(messages) == 0 {
		return 0, nil
	}
	params := sdk.MessageCountTokensParams{
		Model:    sdk.Model(model),
		Messages: messages,
	}

	resp, err := p.client.Messages.CountTokens(ctx, params)
	if err != nil {
		return 0, p.wrapError(err, model)
	}
	return int(resp.InputTokens), nil
}

// buildParams converts a normalized request into SDK parameters plus the
// request options that carry server tools and beta headers.
func (p *Provider) buildParams(req *llm.Request, model string) (sdk.MessageNewParams, []option.RequestOption, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, nil, fmt.Errorf("convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	for _, tool := range req.Tools {
		toolParam, err := convertTool(tool)
		if err != nil {
			return sdk.MessageNewParams{}, nil, fmt.Errorf("convert tool %s: %w", tool.Name, err)
		}
		params.Tools = append(params.Tools, toolParam)
	}
	if req.ThinkingTokens > 0 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(req.ThinkingTokens))
	}

	var opts []option.RequestOption
	// Server tools are opaque maps; splice them into the tools array on
	// the wire without forcing them through typed SDK params.
	for _, serverTool := range req.ServerTools {
		opts = append(opts, option.WithJSONSet("tools.-1", serverTool))
	}
	for _, beta := range req.BetaHeaders {
		opts = append(opts, option.WithHeaderAdd("anthropic-beta", beta))
	}
	return params, opts, nil
}

// convertMessages maps history messages onto SDK message params.
func convertMessages(messages []models.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		content := make([]sdk.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			converted, ok, err := convertBlockParam(block)
			if err != nil {
				return nil, err
			}
			if ok {
				content = append(content, converted)
			}
		}
		if len(content) == 0 {
			continue
		}
		role := sdk.MessageParamRoleUser
		if msg.Role == models.RoleAssistant {
			role = sdk.MessageParamRoleAssistant
		}
		out = append(out, sdk.MessageParam{Role: role, Content: content})
	}
	return out, nil
}

// convertBlockParam maps one content block onto the SDK param union. The
// second return is false for blocks that are not replayed to the API
// (server tool blocks; the provider rebuilds that context itself).
func convertBlockParam(block models.Block) (sdk.ContentBlockParamUnion, bool, error) {
	switch block.Type {
	case models.BlockTypeText:
		return sdk.NewTextBlock(block.Text), true, nil

	case models.BlockTypeThinking:
		return sdk.ContentBlockParamUnion{
			OfThinking: &sdk.ThinkingBlockParam{Thinking: block.Text, Signature: block.Signature},
		}, true, nil

	case models.BlockTypeToolUse:
		input := any(block.Input)
		if block.Input == nil {
			input = map[string]any{}
		}
		return sdk.NewToolUseBlock(block.ID, input, block.Name), true, nil

	case models.BlockTypeToolResult:
		return convertToolResultParam(block), true, nil

	case models.BlockTypeImage:
		return sdk.NewImageBlockBase64(block.MediaType, block.Data), true, nil

	case models.BlockTypeDocument:
		return sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{
			MediaType: "application/pdf",
			Data:      block.Data,
		}), true, nil

	case models.BlockTypeServerToolUse, models.BlockTypeServerToolResult:
		return sdk.ContentBlockParamUnion{}, false, nil

	default:
		return sdk.ContentBlockParamUnion{}, false, fmt.Errorf("unsupported block type %q", block.Type)
	}
}

// convertToolResultParam builds a tool_result param carrying text and
// image content blocks.
func convertToolResultParam(block models.Block) sdk.ContentBlockParamUnion {
	result := sdk.ToolResultBlockParam{ToolUseID: block.ToolUseID}
	if block.IsError {
		result.IsError = sdk.Bool(true)
	}
	for _, inner := range block.Content {
		switch inner.Type {
		case models.BlockTypeText:
			result.Content = append(result.Content, sdk.ToolResultBlockParamContentUnion{
				OfText: &sdk.TextBlockParam{Text: inner.Text},
			})
		case models.BlockTypeImage:
			imageBlock := sdk.NewImageBlockBase64(inner.MediaType, inner.Data)
			if imageBlock.OfImage != nil {
				result.Content = append(result.Content, sdk.ToolResultBlockParamContentUnion{
					OfImage: imageBlock.OfImage,
				})
			}
		}
	}
	return sdk.ContentBlockParamUnion{OfToolResult: &result}
}

// convertTool maps a native tool schema onto the SDK tool param.
func convertTool(tool llm.ToolSchema) (sdk.ToolUnionParam, error) {
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return sdk.ToolUnionParam{}, fmt.Errorf("marshal input schema: %w", err)
	}
	var schema sdk.ToolInputSchemaParam
	if err := json.Unmarshal(raw, &schema); err != nil {
		return sdk.ToolUnionParam{}, fmt.Errorf("invalid input schema: %w", err)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	toolParam := sdk.ToolParam{
		Name:        tool.Name,
		Description: sdk.String(tool.Description),
		InputSchema: schema,
	}
	return sdk.ToolUnionParam{OfTool: &toolParam}, nil
}

// wrapError converts an SDK failure into a classified llm.Error.
func (p *Provider) wrapError(err error, model string) error {
	wrapped := llm.NewError(providerName, model, err)
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		wrapped.WithStatus(apiErr.StatusCode)
	}
	return wrapped
}

func (p *Provider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}
