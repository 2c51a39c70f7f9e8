// Package agent implements the run state machine: the bounded step loop
// that streams provider responses, dispatches tools, compacts history,
// persists per-step checkpoints, and pauses on frontend tools.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/praxis/internal/compact"
	"github.com/haasonsaas/praxis/internal/files"
	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/internal/memorystore"
	"github.com/haasonsaas/praxis/internal/observability"
	"github.com/haasonsaas/praxis/internal/storage"
	"github.com/haasonsaas/praxis/internal/tools"
	"github.com/haasonsaas/praxis/pkg/models"
)

// State names the agent lifecycle phase. Transitions happen only inside
// the run goroutine; readers observe them through StateOf.
type State string

const (
	StateIdle             State = "idle"
	StatePreparing        State = "preparing"
	StateStreaming        State = "streaming"
	StateToolDispatching  State = "tool_dispatching"
	StateCompacting       State = "compacting"
	StatePersisting       State = "persisting"
	StateAwaitingFrontend State = "awaiting_frontend"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// outputBuffer is the chunk channel capacity. Small on purpose: a slow
// consumer must apply back-pressure to the provider stream instead of
// accumulating unbounded chunks.
const outputBuffer = 64

// Defaults applied by sanitizeConfig.
const (
	defaultMaxSteps   = 10
	defaultMaxTokens  = 8192
	defaultMaxRetries = 5
	defaultBaseDelay  = 5.0
)

// maxDelaySeconds caps one backoff sleep.
const maxDelaySeconds = 600

// Options wires an agent instance to its collaborators. Provider and
// Store are required; everything else has a working zero value.
type Options struct {
	// AgentUUID selects the durable identity. Empty means a fresh agent
	// with a generated UUID.
	AgentUUID string

	// Config is the template applied when no durable config exists yet.
	// It is ignored when Initialize finds a stored config.
	Config models.AgentConfig

	Provider llm.Provider
	Store    storage.Store
	Registry *tools.Registry
	Files    files.Backend

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Agent executes bounded tool-using runs against one durable identity.
// One instance is the single writer for its agent_uuid; a run occupies
// the instance until its output channel closes.
type Agent struct {
	provider llm.Provider
	store    storage.Store
	registry *tools.Registry
	files    files.Backend

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	mu          sync.Mutex
	state       State
	running     bool
	initialized bool
	config      *models.AgentConfig
}

// New validates the wiring and returns an uninitialized agent. Call
// Initialize before Run or Resume.
func New(opts Options) (*Agent, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("agent requires a provider")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("agent requires a store")
	}
	registry := opts.Registry
	if registry == nil {
		registry = tools.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}

	cfg := opts.Config
	cfg.AgentUUID = opts.AgentUUID
	sanitizeConfig(&cfg)

	return &Agent{
		provider: opts.Provider,
		store:    opts.Store,
		registry: registry,
		files:    opts.Files,
		logger:   logger,
		metrics:  opts.Metrics,
		tracer:   tracer,
		state:    StateIdle,
		config:   &cfg,
	}, nil
}

// sanitizeConfig fills defaults for zero-valued knobs and clamps
// nonsense values.
func sanitizeConfig(cfg *models.AgentConfig) {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.ThinkingTokens < 0 {
		cfg.ThinkingTokens = 0
	}
}

// Initialize loads the durable config for the agent UUID, creating it on
// first use. Tool schemas from the registry are written into the config,
// and stateful tools get the agent UUID bound.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	if a.config.AgentUUID == "" {
		a.config.AgentUUID = uuid.NewString()
	}

	stored, err := a.store.Configs().Load(ctx, a.config.AgentUUID)
	switch {
	case err == nil:
		stored.Tools = a.registry.Defs()
		sanitizeConfig(stored)
		a.config = stored
	case err == storage.ErrNotFound:
		now := time.Now().UTC()
		a.config.CreatedAt = now
		a.config.UpdatedAt = now
		a.config.Tools = a.registry.Defs()
		if err := a.store.Configs().Save(ctx, a.config); err != nil {
			return fmt.Errorf("save initial config: %w", err)
		}
	default:
		return fmt.Errorf("load config: %w", err)
	}

	a.bindScopedTools()
	a.initialized = true
	return nil
}

// bindScopedTools hands the agent UUID to every tool that wants one.
func (a *Agent) bindScopedTools() {
	for _, def := range a.config.Tools {
		desc, ok := a.registry.Get(def.Name)
		if !ok {
			continue
		}
		if scoped, ok := desc.Callable.(tools.ScopedToAgent); ok {
			scoped.BindAgent(a.config.AgentUUID)
		}
	}
}

// AgentUUID returns the durable identity.
func (a *Agent) AgentUUID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config.AgentUUID
}

// StateOf returns the current lifecycle state.
func (a *Agent) StateOf() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Awaiting reports whether the agent is paused on frontend tools.
func (a *Agent) Awaiting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config.Relay.Awaiting
}

// PendingFrontendCalls returns a copy of the tool calls the agent is
// paused on.
func (a *Agent) PendingFrontendCalls() []models.PendingToolCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.PendingToolCall(nil), a.config.Relay.FrontendCalls...)
}

// Config returns a deep copy of the current durable config.
func (a *Agent) Config() *models.AgentConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config.Clone()
}

// History returns a copy of the durable conversation history.
func (a *Agent) History() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Message(nil), a.config.History...)
}

// setState records a lifecycle transition.
func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// acquireRun marks the instance busy. A second concurrent run is refused
// rather than queued.
func (a *Agent) acquireRun() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return fmt.Errorf("agent not initialized")
	}
	if a.running {
		return fmt.Errorf("agent is already running")
	}
	a.running = true
	return nil
}

// releaseRun frees the instance. A paused agent lands in
// AwaitingFrontend; everything else reverts to Idle, ready for another
// run on the same identity.
func (a *Agent) releaseRun() {
	a.mu.Lock()
	a.running = false
	if a.config.Relay.Awaiting {
		a.state = StateAwaitingFrontend
	} else {
		a.state = StateIdle
	}
	a.mu.Unlock()
}

// compactor builds the configured strategy, wiring the provider-backed
// summarizer for the summarizing strategy.
func (a *Agent) compactor() (compact.Compactor, error) {
	summarize := compact.ProviderSummarizer(a.provider, a.config.Model, a.config.MaxTokens)
	return compact.New(a.config.Compactor, summarize)
}

// memory builds the configured memory store.
func (a *Agent) memory() (memorystore.Store, error) {
	return memorystore.New(a.config.MemoryStore)
}
