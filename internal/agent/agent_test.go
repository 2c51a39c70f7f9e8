package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/praxis/internal/compact"
	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/internal/storage"
	"github.com/haasonsaas/praxis/internal/tools"
	"github.com/haasonsaas/praxis/pkg/models"
)

const testModel = "claude-sonnet-4-5"

// scriptTurn is one scripted provider call: either a connection error or
// a finite event sequence.
type scriptTurn struct {
	connErr error
	events  []llm.Event
}

// scriptProvider replays scripted turns, capturing every request. Calls
// past the script repeat the last turn.
type scriptProvider struct {
	mu       sync.Mutex
	turns    []scriptTurn
	calls    int
	requests []*llm.Request
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	p.mu.Lock()
	call := p.calls
	p.calls++
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if len(p.turns) == 0 {
		return nil, errors.New("no scripted turns")
	}
	if call >= len(p.turns) {
		call = len(p.turns) - 1
	}
	turn := p.turns[call]
	if turn.connErr != nil {
		return nil, turn.connErr
	}

	ch := make(chan llm.Event, len(turn.events))
	for _, ev := range turn.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *scriptProvider) CountTokens(ctx context.Context, req *llm.Request) (int, error) {
	return 0, llm.ErrTokenCountUnavailable
}

func (p *scriptProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptProvider) request(i int) *llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

// textTurn scripts one response with a single text block.
func textTurn(text string, stop llm.StopReason) scriptTurn {
	return scriptTurn{events: []llm.Event{
		{Type: llm.EventMessageStart, MessageID: "msg_1", Model: testModel,
			Usage: &models.Usage{InputTokens: 10}},
		{Type: llm.EventBlockStart, Index: 0, Block: &models.Block{Type: models.BlockTypeText}},
		{Type: llm.EventTextDelta, Index: 0, Text: text},
		{Type: llm.EventBlockStop, Index: 0},
		{Type: llm.EventMessageDelta, StopReason: stop,
			Usage: &models.Usage{OutputTokens: 5}},
		{Type: llm.EventMessageStop},
	}}
}

// toolTurn scripts one response requesting a single tool call.
func toolTurn(id, name, inputJSON string) scriptTurn {
	return scriptTurn{events: []llm.Event{
		{Type: llm.EventMessageStart, MessageID: "msg_1", Model: testModel,
			Usage: &models.Usage{InputTokens: 20}},
		{Type: llm.EventBlockStart, Index: 0,
			Block: &models.Block{Type: models.BlockTypeToolUse, ID: id, Name: name}},
		{Type: llm.EventInputJSONDelta, Index: 0, PartialJSON: inputJSON},
		{Type: llm.EventBlockStop, Index: 0},
		{Type: llm.EventMessageDelta, StopReason: llm.StopToolUse,
			Usage: &models.Usage{OutputTokens: 15}},
		{Type: llm.EventMessageStop},
	}}
}

func addTool() tools.Descriptor {
	return tools.Descriptor{
		Name:        "add",
		Description: "Adds two numbers.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []any{"a", "b"},
		},
		Executor: models.ExecutorBackend,
		Callable: tools.CallableFunc(func(ctx context.Context, input map[string]any) (string, error) {
			a, _ := input["a"].(float64)
			b, _ := input["b"].(float64)
			return fmt.Sprintf("%g", a+b), nil
		}),
	}
}

func confirmTool() tools.Descriptor {
	return tools.Descriptor{
		Name:        "user_confirm",
		Description: "Asks the user for confirmation.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []any{"message"},
		},
		Executor: models.ExecutorFrontend,
	}
}

func newTestAgent(t *testing.T, provider *scriptProvider, store *storage.Memory, cfg models.AgentConfig, descs ...tools.Descriptor) *Agent {
	t.Helper()
	registry := tools.NewRegistry()
	if err := registry.RegisterAll(descs); err != nil {
		t.Fatalf("register tools: %v", err)
	}
	if cfg.Model == "" {
		cfg.Model = testModel
	}
	agent, err := New(Options{
		AgentUUID: cfg.AgentUUID,
		Config:    cfg,
		Provider:  provider,
		Store:     store,
		Registry:  registry,
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	if err := agent.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return agent
}

func drain(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var chunks []string
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func countChunks(chunks []string, substr string) int {
	n := 0
	for _, c := range chunks {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func assistantCount(history []models.Message) int {
	n := 0
	for _, msg := range history {
		if msg.Role == models.RoleAssistant {
			n++
		}
	}
	return n
}

func TestRunPureTextTurn(t *testing.T) {
	provider := &scriptProvider{turns: []scriptTurn{textTurn("hello", llm.StopEndTurn)}}
	store := storage.NewMemory()
	agent := newTestAgent(t, provider, store, models.AgentConfig{
		SystemPrompt: "You are helpful",
	})

	ch, err := agent.Run(context.Background(), "Say: hello")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	chunks := drain(t, ch)

	if got := countChunks(chunks, "<meta_init"); got != 1 {
		t.Errorf("meta_init chunks = %d, want 1", got)
	}
	if !strings.Contains(strings.Join(chunks, ""), "hello") {
		t.Error("text body missing from stream")
	}

	history := agent.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[1].PlainText() != "hello" {
		t.Errorf("assistant text = %q", history[1].PlainText())
	}
	if provider.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.callCount())
	}
	if req := provider.request(0); req.System != "You are helpful" {
		t.Errorf("system prompt = %q", req.System)
	}

	records, err := store.Conversations().LoadPage(context.Background(), agent.AgentUUID(), 10, 0)
	if err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Seq != 1 {
		t.Errorf("seq = %d, want 1", records[0].Seq)
	}
	if records[0].StopReason != "end_turn" {
		t.Errorf("stop reason = %q", records[0].StopReason)
	}
	if agent.StateOf() != StateIdle {
		t.Errorf("state = %q, want idle", agent.StateOf())
	}
}

func TestRunBackendTool(t *testing.T) {
	provider := &scriptProvider{turns: []scriptTurn{
		toolTurn("T1", "add", `{"a":2,"b":3}`),
		textTurn("5", llm.StopEndTurn),
	}}
	store := storage.NewMemory()
	agent := newTestAgent(t, provider, store, models.AgentConfig{}, addTool())

	ch, err := agent.Run(context.Background(), "compute 2+3")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	chunks := drain(t, ch)

	if got := countChunks(chunks, `<tool_result id="T1"`); got != 1 {
		t.Errorf("tool_result chunks = %d, want 1", got)
	}

	history := agent.History()
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	if uses := history[1].ToolUses(); len(uses) != 1 || uses[0].Name != "add" {
		t.Fatalf("assistant tool uses = %+v", uses)
	}
	toolMsg := history[2]
	if toolMsg.Role != models.RoleUser || !toolMsg.HasToolResults() {
		t.Fatalf("message 2 is not a tool result turn: %+v", toolMsg)
	}
	if body := resultBody(toolMsg.Content[0].Content); body != "5" {
		t.Errorf("tool result body = %q, want 5", body)
	}
	if history[3].PlainText() != "5" {
		t.Errorf("final text = %q, want 5", history[3].PlainText())
	}
	if dangling := models.ValidateToolResultRefs(history); dangling != "" {
		t.Errorf("dangling tool_use_id %q", dangling)
	}

	records, _ := store.Conversations().LoadPage(context.Background(), agent.AgentUUID(), 10, 0)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if len(records[0].StepUsage) != 2 {
		t.Errorf("step usage entries = %d, want 2", len(records[0].StepUsage))
	}

	events, err := agent.RunLog(context.Background(), records[0].RunID)
	if err != nil {
		t.Fatalf("run log: %v", err)
	}
	var steps, toolCalls int
	for _, ev := range events {
		switch ev.Type {
		case models.RunLogStepStart:
			steps++
		case models.RunLogToolCall:
			toolCalls++
			if ev.ToolName != "add" || ev.ToolUseID != "T1" {
				t.Errorf("tool call event = %+v", ev)
			}
		}
	}
	if steps != 2 {
		t.Errorf("step events = %d, want 2", steps)
	}
	if toolCalls != 1 {
		t.Errorf("tool call events = %d, want 1", toolCalls)
	}
}

func TestFrontendPauseAndResume(t *testing.T) {
	provider := &scriptProvider{turns: []scriptTurn{
		toolTurn("F1", "user_confirm", `{"message":"Proceed?"}`),
		textTurn("done", llm.StopEndTurn),
	}}
	store := storage.NewMemory()
	agent := newTestAgent(t, provider, store, models.AgentConfig{
		AgentUUID: "agent-pause",
	}, confirmTool())

	ch, err := agent.Run(context.Background(), "please confirm")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	chunks := drain(t, ch)

	if got := countChunks(chunks, "<awaiting_frontend_tools>"); got != 1 {
		t.Fatalf("awaiting chunks = %d, want 1", got)
	}
	if !agent.Awaiting() {
		t.Fatal("agent not awaiting after frontend tool call")
	}
	if agent.StateOf() != StateAwaitingFrontend {
		t.Errorf("state = %q, want awaiting_frontend", agent.StateOf())
	}
	if len(agent.History()) != 1 {
		t.Errorf("history length = %d, want 1 (assistant stashed, not appended)", len(agent.History()))
	}

	// A fresh instance on the same UUID observes the pause.
	fresh := newTestAgent(t, provider, store, models.AgentConfig{
		AgentUUID: "agent-pause",
	}, confirmTool())
	if !fresh.Awaiting() {
		t.Fatal("fresh instance does not observe the pause")
	}
	pending := fresh.PendingFrontendCalls()
	if len(pending) != 1 || pending[0].ToolUseID != "F1" || pending[0].Name != "user_confirm" {
		t.Fatalf("pending calls = %+v", pending)
	}
	if pending[0].Input["message"] != "Proceed?" {
		t.Errorf("pending input = %+v", pending[0].Input)
	}
	if got := fresh.Config().Relay.CurrentStep; got != 1 {
		t.Errorf("relay step = %d, want 1", got)
	}

	// Mismatched id refuses without mutating state.
	_, err = fresh.Resume(context.Background(), []models.Block{
		models.ToolResultBlock("WRONG", []models.Block{models.TextBlock("yes")}, false),
	})
	if err == nil {
		t.Fatal("resume with mismatched id did not fail")
	}
	if !fresh.Awaiting() {
		t.Fatal("failed resume mutated relay state")
	}

	ch, err = fresh.Resume(context.Background(), []models.Block{
		models.ToolResultBlock("F1", []models.Block{models.TextBlock("yes")}, false),
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	chunks = drain(t, ch)
	if !strings.Contains(strings.Join(chunks, ""), "done") {
		t.Error("final text missing after resume")
	}
	if fresh.Awaiting() {
		t.Error("relay state not cleared after resume")
	}

	history := fresh.History()
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	if dangling := models.ValidateToolResultRefs(history); dangling != "" {
		t.Errorf("dangling tool_use_id %q", dangling)
	}
	if history[3].PlainText() != "done" {
		t.Errorf("final text = %q, want done", history[3].PlainText())
	}
}

func TestRetryOnTransientError(t *testing.T) {
	rateLimited := llm.NewError("script", testModel, errors.New("too many requests")).WithStatus(429)
	provider := &scriptProvider{turns: []scriptTurn{
		{connErr: rateLimited},
		textTurn("ok", llm.StopEndTurn),
	}}
	store := storage.NewMemory()
	agent := newTestAgent(t, provider, store, models.AgentConfig{
		BaseDelay:  0.01,
		MaxRetries: 3,
	})

	ch, err := agent.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	chunks := drain(t, ch)

	if !strings.Contains(strings.Join(chunks, ""), "ok") {
		t.Error("final message missing")
	}
	if provider.callCount() != 2 {
		t.Errorf("provider calls = %d, want 2", provider.callCount())
	}

	records, _ := store.Conversations().LoadPage(context.Background(), agent.AgentUUID(), 1, 0)
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	events, _ := agent.RunLog(context.Background(), records[0].RunID)
	var retries []models.RunLogEvent
	for _, ev := range events {
		if ev.Type == models.RunLogRetry {
			retries = append(retries, ev)
		}
	}
	if len(retries) != 1 {
		t.Fatalf("retry events = %d, want 1", len(retries))
	}
	if retries[0].ErrorKind != "rate_limited" {
		t.Errorf("error kind = %q", retries[0].ErrorKind)
	}
	if retries[0].DelaySeconds < 0.01 || retries[0].DelaySeconds > 1.01 {
		t.Errorf("delay = %v, want within [0.01, 1.01]", retries[0].DelaySeconds)
	}
}

func TestFailFastOnClientError(t *testing.T) {
	badRequest := llm.NewError("script", testModel, errors.New("bad request")).WithStatus(400)
	provider := &scriptProvider{turns: []scriptTurn{
		{connErr: badRequest},
		textTurn("never", llm.StopEndTurn),
	}}
	store := storage.NewMemory()
	agent := newTestAgent(t, provider, store, models.AgentConfig{BaseDelay: 0.01})

	ch, err := agent.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	chunks := drain(t, ch)

	if provider.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry)", provider.callCount())
	}
	if got := countChunks(chunks, "<error>"); got != 1 {
		t.Errorf("error chunks = %d, want 1", got)
	}

	records, _ := store.Conversations().LoadPage(context.Background(), agent.AgentUUID(), 1, 0)
	if len(records) != 1 || records[0].StopReason != "error" {
		t.Fatalf("records = %+v", records)
	}
	events, _ := agent.RunLog(context.Background(), records[0].RunID)
	var errorEvents int
	for _, ev := range events {
		if ev.Type == models.RunLogError {
			errorEvents++
		}
	}
	if errorEvents != 1 {
		t.Errorf("terminal error events = %d, want 1", errorEvents)
	}
	if agent.StateOf() != StateIdle {
		t.Errorf("state = %q, want idle after failure", agent.StateOf())
	}
}

func TestMaxStepsGuard(t *testing.T) {
	provider := &scriptProvider{turns: []scriptTurn{
		toolTurn("T1", "add", `{"a":1,"b":1}`),
	}}
	store := storage.NewMemory()
	agent := newTestAgent(t, provider, store, models.AgentConfig{
		MaxSteps: 2,
	}, addTool())

	ch, err := agent.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	chunks := drain(t, ch)

	if provider.callCount() != 2 {
		t.Errorf("provider calls = %d, want 2", provider.callCount())
	}
	if assistantCount(agent.History()) != 2 {
		t.Errorf("assistant messages = %d, want 2", assistantCount(agent.History()))
	}
	if !strings.Contains(strings.Join(chunks, ""), "max_steps_exceeded") {
		t.Error("max steps error chunk missing")
	}

	records, _ := store.Conversations().LoadPage(context.Background(), agent.AgentUUID(), 1, 0)
	if len(records) != 1 || records[0].StopReason != "max_steps" {
		t.Fatalf("records = %+v", records)
	}
}

func TestCompactionOverBudget(t *testing.T) {
	// Seed a stored history whose bulk lives in old tool result bodies so
	// the sliding window's elision pass alone brings it under budget.
	big := strings.Repeat("x", 80_000)
	var history []models.Message
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("T%d", i)
		history = append(history,
			models.Message{Role: models.RoleAssistant, Content: []models.Block{
				models.ToolUseBlock(id, "add", map[string]any{"a": 1, "b": 1}),
			}},
			models.Message{Role: models.RoleUser, Content: []models.Block{
				models.ToolResultBlock(id, []models.Block{models.TextBlock(big)}, false),
			}},
		)
	}
	seed := &models.AgentConfig{
		AgentUUID: "agent-compact",
		Model:     testModel,
		Compactor: compact.StrategySlidingWindow,
		MaxSteps:  10, MaxTokens: 1024, MaxRetries: 1, BaseDelay: 0.01,
		History: history,
	}
	store := storage.NewMemory()
	if err := store.Configs().Save(context.Background(), seed); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	provider := &scriptProvider{turns: []scriptTurn{textTurn("compact ok", llm.StopEndTurn)}}
	agent := newTestAgent(t, provider, store, models.AgentConfig{
		AgentUUID: "agent-compact",
	}, addTool())

	ch, err := agent.Run(context.Background(), "continue")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	drain(t, ch)

	req := provider.request(0)
	budget := compact.Budget(testModel)
	if estimate := compact.EstimateRequest(req.Messages, req.System, req.Tools); estimate > budget {
		t.Errorf("request estimate = %d, want <= %d", estimate, budget)
	}

	// Old tool result bodies are placeholders; their ids survive.
	compacted := agent.History()
	var elided int
	for _, msg := range compacted {
		for _, block := range msg.Content {
			if block.Type != models.BlockTypeToolResult {
				continue
			}
			if strings.Contains(resultBody(block.Content), "elided") {
				if block.ToolUseID == "" {
					t.Error("elided result lost its tool_use_id")
				}
				elided++
			}
		}
	}
	if elided == 0 {
		t.Error("no tool result bodies were elided")
	}

	records, _ := store.Conversations().LoadPage(context.Background(), "agent-compact", 1, 0)
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	events, _ := agent.RunLog(context.Background(), records[0].RunID)
	var compactions int
	for _, ev := range events {
		if ev.Type == models.RunLogCompaction {
			compactions++
		}
	}
	if compactions != 1 {
		t.Errorf("compaction events = %d, want 1", compactions)
	}
}

func TestRunRefusedWhileAwaiting(t *testing.T) {
	provider := &scriptProvider{turns: []scriptTurn{
		toolTurn("F1", "user_confirm", `{"message":"Proceed?"}`),
	}}
	store := storage.NewMemory()
	agent := newTestAgent(t, provider, store, models.AgentConfig{}, confirmTool())

	ch, err := agent.Run(context.Background(), "confirm")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	drain(t, ch)

	if _, err := agent.Run(context.Background(), "another"); err == nil {
		t.Fatal("run accepted while awaiting frontend results")
	}
}

func TestSanitizeConfigDefaults(t *testing.T) {
	cfg := models.AgentConfig{ThinkingTokens: -5}
	sanitizeConfig(&cfg)

	if cfg.MaxSteps != 10 {
		t.Errorf("max steps = %d, want 10", cfg.MaxSteps)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.BaseDelay != 5 {
		t.Errorf("base delay = %v, want 5", cfg.BaseDelay)
	}
	if cfg.ThinkingTokens != 0 {
		t.Errorf("thinking tokens = %d, want 0", cfg.ThinkingTokens)
	}
}

func TestMergeToolResultsValidation(t *testing.T) {
	assistant := models.Message{Role: models.RoleAssistant, Content: []models.Block{
		models.ToolUseBlock("B1", "add", nil),
		models.ToolUseBlock("F1", "user_confirm", nil),
		models.ToolUseBlock("F2", "user_confirm", nil),
	}}
	relay := models.RelayState{
		Awaiting:         true,
		StashedAssistant: &assistant,
		BackendResults: []models.Block{
			models.ToolResultBlock("B1", []models.Block{models.TextBlock("2")}, false),
		},
		FrontendCalls: []models.PendingToolCall{
			{ToolUseID: "F1", Name: "user_confirm"},
			{ToolUseID: "F2", Name: "user_confirm"},
		},
	}

	ok1 := models.ToolResultBlock("F1", []models.Block{models.TextBlock("yes")}, false)
	ok2 := models.ToolResultBlock("F2", []models.Block{models.TextBlock("no")}, false)

	if _, err := mergeToolResults(relay, []models.Block{ok1}); err == nil {
		t.Error("short result set accepted")
	}
	if _, err := mergeToolResults(relay, []models.Block{ok1, ok1}); err == nil {
		t.Error("duplicate tool_use_id accepted")
	}
	wrong := models.ToolResultBlock("F9", nil, false)
	if _, err := mergeToolResults(relay, []models.Block{ok1, wrong}); err == nil {
		t.Error("unknown tool_use_id accepted")
	}

	// Order-independent input, tool_use order on output.
	merged, err := mergeToolResults(relay, []models.Block{ok2, ok1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	want := []string{"B1", "F1", "F2"}
	if len(merged) != len(want) {
		t.Fatalf("merged length = %d", len(merged))
	}
	for i, id := range want {
		if merged[i].ToolUseID != id {
			t.Errorf("merged[%d] = %q, want %q", i, merged[i].ToolUseID, id)
		}
	}
}

func TestUnknownToolBecomesErrorResult(t *testing.T) {
	provider := &scriptProvider{turns: []scriptTurn{
		toolTurn("T1", "no_such_tool", `{}`),
		textTurn("recovered", llm.StopEndTurn),
	}}
	store := storage.NewMemory()
	agent := newTestAgent(t, provider, store, models.AgentConfig{}, addTool())

	ch, err := agent.Run(context.Background(), "call something odd")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	drain(t, ch)

	history := agent.History()
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	result := history[2].Content[0]
	if !result.IsError {
		t.Error("unknown tool result not flagged as error")
	}
	if !strings.Contains(resultBody(result.Content), "not found") {
		t.Errorf("diagnostic = %q", resultBody(result.Content))
	}
	if history[3].PlainText() != "recovered" {
		t.Errorf("model did not get a recovery step: %q", history[3].PlainText())
	}
}

func TestMaxTokensFlagsRecord(t *testing.T) {
	provider := &scriptProvider{turns: []scriptTurn{textTurn("truncat", llm.StopMaxTokens)}}
	store := storage.NewMemory()
	agent := newTestAgent(t, provider, store, models.AgentConfig{})

	ch, err := agent.Run(context.Background(), "long answer please")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	drain(t, ch)

	records, _ := store.Conversations().LoadPage(context.Background(), agent.AgentUUID(), 1, 0)
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	if !records[0].MaxTokensHit {
		t.Error("max_tokens truncation not flagged")
	}
	if records[0].StopReason != "max_tokens" {
		t.Errorf("stop reason = %q", records[0].StopReason)
	}
	if len(agent.History()) != 2 {
		t.Errorf("history length = %d, want 2 (message still appended)", len(agent.History()))
	}
}
