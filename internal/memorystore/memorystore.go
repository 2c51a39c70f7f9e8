// Package memorystore defines the retrieval hook that can inject
// transient context messages into a request. Injected messages are
// never added to durable history.
package memorystore

import (
	"context"
	"fmt"

	"github.com/haasonsaas/praxis/pkg/models"
)

// Store names.
const (
	StoreNone        = "none"
	StorePlaceholder = "placeholder"
)

// Store retrieves transient context for the next request.
type Store interface {
	// Name returns the selector this store registers under.
	Name() string

	// Retrieve returns messages to prepend to the request. The history
	// is read-only input for relevance ranking.
	Retrieve(ctx context.Context, agentUUID string, history []models.Message) ([]models.Message, error)
}

// New resolves a memory store selector. Empty selects none.
func New(name string) (Store, error) {
	switch name {
	case StoreNone, "":
		return None{}, nil
	case StorePlaceholder:
		return Placeholder{}, nil
	default:
		return nil, fmt.Errorf("unknown memory store %q", name)
	}
}

// None injects nothing.
type None struct{}

func (None) Name() string { return StoreNone }

func (None) Retrieve(ctx context.Context, agentUUID string, history []models.Message) ([]models.Message, error) {
	return nil, nil
}

// Placeholder marks where retrieved memories would appear without
// doing any retrieval. Useful for testing the injection path.
type Placeholder struct{}

func (Placeholder) Name() string { return StorePlaceholder }

func (Placeholder) Retrieve(ctx context.Context, agentUUID string, history []models.Message) ([]models.Message, error) {
	return []models.Message{
		models.UserText("[memory placeholder: no stored memories for this agent]"),
	}, nil
}
