package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/praxis/internal/files"
	"github.com/haasonsaas/praxis/pkg/models"
)

// Registry manages the registered tools with thread-safe registration
// and lookup. Registration order is preserved for schema emission.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds a tool. Names are unique; backend tools must carry a
// callable and frontend tools must not.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	switch desc.Executor {
	case models.ExecutorBackend:
		if desc.Callable == nil {
			return fmt.Errorf("backend tool %s requires a callable", desc.Name)
		}
	case models.ExecutorFrontend:
		if desc.Callable != nil {
			return fmt.Errorf("frontend tool %s must not carry a callable", desc.Name)
		}
	default:
		return fmt.Errorf("tool %s has unknown executor %q", desc.Name, desc.Executor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("tool %s already registered", desc.Name)
	}
	r.tools[desc.Name] = desc
	r.order = append(r.order, desc.Name)
	return nil
}

// RegisterAll registers every descriptor, stopping at the first failure.
func (r *Registry) RegisterAll(descs []Descriptor) error {
	for _, desc := range descs {
		if err := r.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.tools[name]
	return desc, ok
}

// ExecutorOf reports where the named tool runs. Unknown tools report
// backend so dispatch surfaces the not-found error in-stream.
func (r *Registry) ExecutorOf(name string) models.ToolExecutor {
	if desc, ok := r.Get(name); ok {
		return desc.Executor
	}
	return models.ExecutorBackend
}

// Defs returns the durable config shape of every tool, in registration
// order.
func (r *Registry) Defs() []models.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Def())
	}
	return defs
}

// Execute runs a backend tool. It never returns a Go error for tool
// failures: lookup misses, validation failures, tool errors, and panics
// all become error-string results so the step loop keeps streaming.
// Image and document content is persisted through the file backend and
// referenced alongside the inline payload.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any, backend files.Backend, agentUUID string) (result *Result, refs []files.Ref) {
	desc, ok := r.Get(name)
	if !ok {
		return ErrorResult("tool not found: " + name), nil
	}
	if desc.Executor != models.ExecutorBackend {
		return ErrorResult("tool " + name + " is frontend-executed"), nil
	}
	if err := ValidateInput(desc.InputSchema, input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid input for %s: %v", name, err)), nil
	}

	result = r.call(ctx, desc, input, agentUUID)
	if result.IsError || backend == nil {
		return result, nil
	}
	refs = persistMultimodal(ctx, backend, agentUUID, result.Content)
	return result, refs
}

// call invokes the callable with panic recovery.
func (r *Registry) call(ctx context.Context, desc Descriptor, input map[string]any, agentUUID string) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = ErrorResult(fmt.Sprintf("tool %s panicked: %v", desc.Name, rec))
		}
	}()

	if scoped, ok := desc.Callable.(ScopedToAgent); ok && agentUUID != "" {
		scoped.BindAgent(agentUUID)
	}

	res, err := desc.Callable.Call(ctx, input)
	if err != nil {
		return ErrorResult(fmt.Sprintf("tool %s failed: %v", desc.Name, err))
	}
	if res == nil {
		return TextResult("")
	}
	return res
}

// persistMultimodal stores image and document blocks through the file
// backend and annotates them with their file ids. Storage failures leave
// the inline payload intact; the reference is simply absent.
func persistMultimodal(ctx context.Context, backend files.Backend, agentUUID string, content []models.Block) []files.Ref {
	var refs []files.Ref
	for i := range content {
		block := &content[i]
		if block.Type != models.BlockTypeImage && block.Type != models.BlockTypeDocument {
			continue
		}
		fileID := uuid.NewString()
		meta, err := backend.Store(ctx, agentUUID, fileID, []byte(block.Data), files.StoreOptions{
			MediaType: block.MediaType,
		})
		if err != nil {
			continue
		}
		block.FileID = fileID
		refs = append(refs, files.Ref{
			ID:        fileID,
			URL:       meta.StorageLocation,
			MediaType: block.MediaType,
		})
	}
	return refs
}
