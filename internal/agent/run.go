package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/praxis/internal/backoff"
	"github.com/haasonsaas/praxis/internal/compact"
	"github.com/haasonsaas/praxis/internal/format"
	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/internal/memorystore"
	"github.com/haasonsaas/praxis/internal/observability"
	"github.com/haasonsaas/praxis/internal/pricing"
	"github.com/haasonsaas/praxis/pkg/models"
)

// Run starts a new run from a user prompt. Chunks stream on the returned
// channel, which closes when the run reaches a terminal state or pauses
// on frontend tools. The channel is bounded; a slow consumer slows the
// provider stream.
func (a *Agent) Run(ctx context.Context, prompt string) (<-chan string, error) {
	if err := a.acquireRun(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.config.Relay.Awaiting {
		a.mu.Unlock()
		a.releaseRun()
		return nil, fmt.Errorf("agent is awaiting frontend tool results; use Resume")
	}
	runID := uuid.NewString()
	a.config.RunCount++
	userMsg := models.UserText(prompt)
	a.config.History = append(a.config.History, userMsg)
	a.mu.Unlock()

	record := &models.ConversationRecord{
		AgentUUID:   a.config.AgentUUID,
		RunID:       runID,
		UserMessage: userMsg,
		StartedAt:   time.Now().UTC(),
	}

	out := make(chan string, outputBuffer)
	go a.loop(ctx, out, runID, 1, newRunLog(), record)
	return out, nil
}

// Resume feeds frontend tool results back into a paused run. Validation
// failures refuse without mutating any state. On success the stashed
// assistant message and the merged tool results are appended to history
// atomically and the step loop continues where it paused.
func (a *Agent) Resume(ctx context.Context, results []models.Block) (<-chan string, error) {
	if err := a.acquireRun(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	relay := a.config.Relay
	if !relay.Awaiting || relay.StashedAssistant == nil {
		a.mu.Unlock()
		a.releaseRun()
		return nil, fmt.Errorf("agent is not awaiting frontend tool results")
	}
	merged, err := mergeToolResults(relay, results)
	if err != nil {
		a.mu.Unlock()
		a.releaseRun()
		return nil, err
	}

	runID := relay.RunID
	step := relay.CurrentStep
	assistant := *relay.StashedAssistant
	toolMsg := models.Message{Role: models.RoleUser, Content: merged}
	a.config.History = append(a.config.History, assistant, toolMsg)
	a.config.Relay = models.RelayState{}
	a.mu.Unlock()

	record := &models.ConversationRecord{
		AgentUUID:   a.config.AgentUUID,
		RunID:       runID,
		UserMessage: toolMsg,
		Messages:    []models.Message{assistant},
		StartedAt:   time.Now().UTC(),
	}

	log := newRunLog()
	if events, err := a.store.RunLogs().Load(ctx, a.config.AgentUUID, runID); err == nil {
		log.events = events
	}

	out := make(chan string, outputBuffer)
	go a.loop(ctx, out, runID, step+1, log, record)
	return out, nil
}

// mergeToolResults validates the caller's frontend results against the
// pending calls and interleaves them with the held backend results,
// preserving the tool_use order of the stashed assistant message.
func mergeToolResults(relay models.RelayState, results []models.Block) ([]models.Block, error) {
	if len(results) != len(relay.FrontendCalls) {
		return nil, fmt.Errorf("expected %d tool results, got %d",
			len(relay.FrontendCalls), len(results))
	}

	pending := make(map[string]bool, len(relay.FrontendCalls))
	for _, call := range relay.FrontendCalls {
		pending[call.ToolUseID] = true
	}

	byID := make(map[string]models.Block, len(results))
	for _, block := range results {
		if block.Type != models.BlockTypeToolResult {
			return nil, fmt.Errorf("result for %q is not a tool_result block", block.ToolUseID)
		}
		if !pending[block.ToolUseID] {
			return nil, fmt.Errorf("unexpected tool_use_id %q", block.ToolUseID)
		}
		if _, dup := byID[block.ToolUseID]; dup {
			return nil, fmt.Errorf("duplicate tool_use_id %q", block.ToolUseID)
		}
		byID[block.ToolUseID] = block
	}

	for _, held := range relay.BackendResults {
		byID[held.ToolUseID] = held
	}

	uses := relay.StashedAssistant.ToolUses()
	merged := make([]models.Block, 0, len(uses))
	for _, use := range uses {
		block, ok := byID[use.ID]
		if !ok {
			return nil, fmt.Errorf("no result for tool_use %q", use.ID)
		}
		merged = append(merged, block)
	}
	return merged, nil
}

// loop is the bounded step loop. It owns the output channel and every
// state transition of the run.
func (a *Agent) loop(ctx context.Context, out chan<- string, runID string, startStep int, log *runLog, record *models.ConversationRecord) {
	defer close(out)
	defer a.releaseRun()
	if a.metrics != nil {
		a.metrics.RunStarted()
		defer a.metrics.RunEnded()
	}

	cfg := a.config
	ctx = observability.WithRun(ctx, cfg.AgentUUID, runID)
	a.logger.Info(ctx, "run started", "model", cfg.Model, "start_step", startStep)

	formatter, err := format.New(cfg.Formatter)
	if err != nil {
		a.fail(ctx, out, nil, startStep, log, record, err)
		return
	}
	mem, err := a.memory()
	if err != nil {
		a.fail(ctx, out, formatter, startStep, log, record, err)
		return
	}

	drv := &driver{
		provider:   a.provider,
		shape:      cfg.Formatter,
		maxRetries: cfg.MaxRetries,
		policy:     backoff.Policy{Base: cfg.BaseDelay, Max: maxDelaySeconds},
		log:        log,
		logger:     a.logger,
		metrics:    a.metrics,
		tracer:     a.tracer,
	}

	for step := startStep; step <= cfg.MaxSteps; step++ {
		stepCtx := observability.WithStep(ctx, step)
		stepStart := time.Now()
		log.stepStart(step)

		a.setState(StatePreparing)
		a.compactIfNeeded(stepCtx, step, log)
		req, err := a.buildRequest(stepCtx, mem)
		if err != nil {
			a.fail(stepCtx, out, formatter, step, log, record, err)
			return
		}

		a.setState(StateStreaming)
		formatter.WriteMeta(stepCtx, out, format.Metadata{
			AgentUUID: cfg.AgentUUID,
			Model:     cfg.Model,
			RunID:     runID,
			Step:      step,
		})
		result, err := drv.stream(stepCtx, req, out, step)
		if err != nil {
			a.recordStepMetrics(cfg.Model, "error", stepStart)
			a.fail(stepCtx, out, formatter, step, log, record, err)
			return
		}
		record.StepUsage = append(record.StepUsage, result.Usage)
		a.recordTokens(result.Usage)

		if result.StopReason == llm.StopToolUse {
			a.setState(StateToolDispatching)
			backendResults, pendingCalls := a.dispatchTools(stepCtx, out, formatter, result.Message, step, log)

			if len(pendingCalls) > 0 {
				a.recordStepMetrics(cfg.Model, "success", stepStart)
				a.pause(stepCtx, out, formatter, runID, step, result.Message, backendResults, pendingCalls, log, record)
				return
			}

			toolMsg := models.Message{Role: models.RoleUser, Content: backendResults}
			a.appendHistory(result.Message, toolMsg)
			record.Messages = append(record.Messages, result.Message, toolMsg)

			a.setState(StatePersisting)
			if err := a.persistStep(stepCtx, runID, log); err != nil {
				a.recordStepMetrics(cfg.Model, "error", stepStart)
				a.fail(stepCtx, out, formatter, step, log, record, err)
				return
			}
			log.stepEnd(step, string(llm.StopToolUse))
			a.recordStepMetrics(cfg.Model, "success", stepStart)
			continue
		}

		if result.StopReason.Terminal() {
			a.appendHistory(result.Message)
			record.Messages = append(record.Messages, result.Message)
			if result.StopReason == llm.StopMaxTokens {
				record.MaxTokensHit = true
			}
			log.stepEnd(step, string(result.StopReason))
			a.recordStepMetrics(cfg.Model, "success", stepStart)
			a.finish(stepCtx, out, formatter, runID, step, log, record, string(result.StopReason))
			return
		}

		a.recordStepMetrics(cfg.Model, "error", stepStart)
		a.fail(stepCtx, out, formatter, step, log, record,
			fmt.Errorf("unexpected stop reason %q", result.StopReason))
		return
	}

	a.failMaxSteps(ctx, out, formatter, runID, log, record)
}

// buildRequest assembles the provider request for the next step. Memory
// retrieval may inject transient messages ahead of the durable history;
// they are never persisted.
func (a *Agent) buildRequest(ctx context.Context, mem memorystore.Store) (*llm.Request, error) {
	a.mu.Lock()
	cfg := a.config
	history := append([]models.Message(nil), cfg.History...)
	a.mu.Unlock()

	transient, err := mem.Retrieve(ctx, cfg.AgentUUID, history)
	if err != nil {
		return nil, fmt.Errorf("memory retrieve: %w", err)
	}
	messages := history
	if len(transient) > 0 {
		messages = append(append([]models.Message(nil), transient...), history...)
	}

	return &llm.Request{
		Model:          cfg.Model,
		System:         cfg.SystemPrompt,
		Messages:       messages,
		Tools:          a.registry.NativeSchemas(),
		ServerTools:    cfg.ServerTools,
		BetaHeaders:    cfg.BetaHeaders,
		MaxTokens:      cfg.MaxTokens,
		ThinkingTokens: cfg.ThinkingTokens,
	}, nil
}

// compactIfNeeded shrinks history when the next request's estimate is
// over the model's budget. Compactor failures never abort the run; the
// history simply goes out unchanged.
func (a *Agent) compactIfNeeded(ctx context.Context, step int, log *runLog) {
	a.mu.Lock()
	cfg := a.config
	history := append([]models.Message(nil), cfg.History...)
	a.mu.Unlock()

	schemas := a.registry.NativeSchemas()
	estimate := compact.EstimateRequest(history, cfg.SystemPrompt, schemas)
	if !compact.OverBudget(estimate, cfg.Model) {
		return
	}

	a.setState(StateCompacting)
	compactor, err := a.compactor()
	if err != nil {
		a.logger.Warn(ctx, "compactor unavailable, continuing uncompacted", "error", err)
		return
	}
	budget := compact.Budget(cfg.Model)
	compacted, info, err := compactor.Compact(ctx, history, cfg.SystemPrompt, schemas, cfg.Model, budget)
	if err != nil {
		a.logger.Warn(ctx, "compaction failed, continuing uncompacted",
			"strategy", compactor.Name(), "error", err)
		return
	}

	a.mu.Lock()
	a.config.History = compacted
	a.mu.Unlock()

	log.compaction(step, fmt.Sprintf("%s: %d -> %d tokens",
		info.Strategy, info.TokensBefore, info.TokensAfter))
	if a.metrics != nil {
		a.metrics.RecordCompaction(info.Strategy)
	}
	a.logger.Info(ctx, "history compacted",
		"strategy", info.Strategy,
		"tokens_before", info.TokensBefore,
		"tokens_after", info.TokensAfter,
		"removed_messages", info.RemovedMessages)
}

// dispatchTools walks the tool_use blocks of the assistant message in
// order. Backend tools execute immediately; frontend tools are recorded
// as pending. Tool failures and unknown names become error results, not
// run failures. Server tool blocks never reach here: they are not
// tool_use blocks and stay in the message as-is.
func (a *Agent) dispatchTools(ctx context.Context, out chan<- string, formatter format.Formatter, assistant models.Message, step int, log *runLog) ([]models.Block, []models.PendingToolCall) {
	var backendResults []models.Block
	var pendingCalls []models.PendingToolCall

	for _, use := range assistant.ToolUses() {
		log.toolCall(step, use.Name, use.ID)

		if a.registry.ExecutorOf(use.Name) == models.ExecutorFrontend {
			pendingCalls = append(pendingCalls, models.PendingToolCall{
				ToolUseID: use.ID,
				Name:      use.Name,
				Input:     use.Input,
			})
			continue
		}

		toolCtx, span := a.tracer.TraceToolExecution(ctx, use.Name)
		start := time.Now()
		result, refs := a.registry.Execute(toolCtx, use.Name, use.Input, a.files, a.config.AgentUUID)
		span.End()

		status := "success"
		if result.IsError {
			status = "error"
		}
		if a.metrics != nil {
			a.metrics.RecordToolExecution(use.Name, status, time.Since(start).Seconds())
		}
		log.toolResult(step, use.Name, use.ID, result.IsError)
		a.logger.Info(ctx, "tool executed",
			"tool", use.Name,
			"tool_use_id", use.ID,
			"status", status,
			"file_refs", len(refs))

		backendResults = append(backendResults,
			models.ToolResultBlock(use.ID, result.Content, result.IsError))
		formatter.WriteToolResult(ctx, out, use.ID, use.Name, resultBody(result.Content))
	}
	return backendResults, pendingCalls
}

// resultBody flattens a tool result's text blocks for the chunk stream.
func resultBody(content []models.Block) string {
	return models.Message{Content: content}.PlainText()
}

// pause checkpoints the run into relay state and emits the terminal
// awaiting chunk. The assistant message is stashed, not appended, so it
// lands in history atomically with its tool results on resume.
func (a *Agent) pause(ctx context.Context, out chan<- string, formatter format.Formatter, runID string, step int, assistant models.Message, backendResults []models.Block, pendingCalls []models.PendingToolCall, log *runLog, record *models.ConversationRecord) {
	a.mu.Lock()
	a.config.Relay = models.RelayState{
		Awaiting:         true,
		CurrentStep:      step,
		RunID:            runID,
		StashedAssistant: &assistant,
		BackendResults:   backendResults,
		FrontendCalls:    pendingCalls,
	}
	a.mu.Unlock()

	a.setState(StatePersisting)
	log.stepEnd(step, "awaiting_frontend_tools")
	if err := a.persistRun(ctx, runID, log, record, "awaiting_frontend_tools"); err != nil {
		a.logger.Error(ctx, "persist on pause failed", "error", err)
		formatter.WriteError(ctx, out, "persist failed: "+err.Error())
		return
	}

	a.logger.Info(ctx, "run paused on frontend tools",
		"step", step, "pending", len(pendingCalls))
	formatter.WriteAwaiting(ctx, out, pendingCalls)
	a.setState(StateAwaitingFrontend)
}

// finish persists the completed run and closes it out.
func (a *Agent) finish(ctx context.Context, out chan<- string, formatter format.Formatter, runID string, step int, log *runLog, record *models.ConversationRecord, stopReason string) {
	a.setState(StatePersisting)
	log.finish(step, stopReason)
	if err := a.persistRun(ctx, runID, log, record, stopReason); err != nil {
		a.fail(ctx, out, formatter, step, log, record, err)
		return
	}
	a.logger.Info(ctx, "run finished", "stop_reason", stopReason, "steps", step)
	a.setState(StateDone)
}

// persistStep writes the per-step checkpoint: config (with history) and
// the run log so far. Write failures are fatal to the run.
func (a *Agent) persistStep(ctx context.Context, runID string, log *runLog) error {
	a.mu.Lock()
	a.config.UpdatedAt = time.Now().UTC()
	cfg := a.config.Clone()
	a.mu.Unlock()

	if err := a.store.Configs().Save(ctx, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := a.store.RunLogs().Save(ctx, cfg.AgentUUID, runID, log.snapshot()); err != nil {
		return fmt.Errorf("save run log: %w", err)
	}
	return nil
}

// persistRun writes the terminal checkpoint: config, the conversation
// record with its derived cost, and the full run log.
func (a *Agent) persistRun(ctx context.Context, runID string, log *runLog, record *models.ConversationRecord, stopReason string) error {
	record.StopReason = stopReason
	record.CompletedAt = time.Now().UTC()
	record.Cost = pricing.Cost(a.config.Model, record.StepUsage)

	if err := a.persistStep(ctx, runID, log); err != nil {
		return err
	}
	if err := a.store.Conversations().Save(ctx, record); err != nil {
		return fmt.Errorf("save conversation record: %w", err)
	}
	return nil
}

// fail terminates the run: one terminal error event in the log, an error
// chunk on the stream, and a best-effort persist of whatever history was
// already appended.
func (a *Agent) fail(ctx context.Context, out chan<- string, formatter format.Formatter, step int, log *runLog, record *models.ConversationRecord, cause error) {
	a.setState(StateFailed)
	kind := string(llm.KindOf(cause))
	log.errorEvent(step, kind, cause.Error())
	a.logger.Error(ctx, "run failed", "step", step, "error_kind", kind, "error", cause)

	if formatter != nil {
		formatter.WriteError(ctx, out, cause.Error())
	}

	runID := record.RunID
	if err := a.persistRun(context.WithoutCancel(ctx), runID, log, record, "error"); err != nil {
		a.logger.Error(ctx, "persist after failure failed", "error", err)
	}
}

// failMaxSteps terminates a run that reached the step cap without a
// terminal stop reason.
func (a *Agent) failMaxSteps(ctx context.Context, out chan<- string, formatter format.Formatter, runID string, log *runLog, record *models.ConversationRecord) {
	a.setState(StateFailed)
	step := a.config.MaxSteps
	log.errorEvent(step, "max_steps", "max_steps_exceeded")
	a.logger.Error(ctx, "run exceeded max steps", "max_steps", step)

	formatter.WriteError(ctx, out, "max_steps_exceeded")
	if err := a.persistRun(context.WithoutCancel(ctx), runID, log, record, "max_steps"); err != nil {
		a.logger.Error(ctx, "persist after max steps failed", "error", err)
	}
}

// appendHistory appends messages to the durable history under the lock.
func (a *Agent) appendHistory(messages ...models.Message) {
	a.mu.Lock()
	a.config.History = append(a.config.History, messages...)
	a.mu.Unlock()
}

func (a *Agent) recordStepMetrics(model, status string, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordStep(model, status, time.Since(start).Seconds())
}

func (a *Agent) recordTokens(usage models.Usage) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordTokens(a.provider.Name(), a.config.Model,
		usage.InputTokens, usage.OutputTokens,
		usage.CacheCreationTokens, usage.CacheReadTokens)
}

// LoadConversation pages the stored records for this agent, newest
// first.
func (a *Agent) LoadConversation(ctx context.Context, limit, offset int) ([]*models.ConversationRecord, error) {
	return a.store.Conversations().LoadPage(ctx, a.config.AgentUUID, limit, offset)
}

// RunLog loads the event log of one run.
func (a *Agent) RunLog(ctx context.Context, runID string) ([]models.RunLogEvent, error) {
	return a.store.RunLogs().Load(ctx, a.config.AgentUUID, runID)
}
