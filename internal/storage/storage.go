// Package storage defines the persistence contracts of the agent
// runtime and its three adapter families: in-memory, flat-file, and
// relational.
package storage

import (
	"context"
	"errors"

	"github.com/haasonsaas/praxis/pkg/models"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ConfigStore persists agent configs keyed by agent_uuid. Save is
// read-your-writes: a Load after a successful Save observes the new
// config.
type ConfigStore interface {
	// Save writes the config, creating or replacing it.
	Save(ctx context.Context, cfg *models.AgentConfig) error

	// Load reads a config; ErrNotFound when absent.
	Load(ctx context.Context, agentUUID string) (*models.AgentConfig, error)

	// Delete removes a config, reporting whether one existed.
	Delete(ctx context.Context, agentUUID string) (bool, error)

	// SetTitle updates the title, reporting whether the agent existed.
	SetTitle(ctx context.Context, agentUUID, title string) (bool, error)

	// List returns a page sorted by updated_at descending, plus the
	// total count.
	List(ctx context.Context, limit, offset int) ([]*models.AgentConfig, int, error)
}

// ConversationStore persists per-run conversation records. Save assigns
// a strictly increasing, gapless sequence number per agent.
type ConversationStore interface {
	// Save persists the record, filling in record.Seq.
	Save(ctx context.Context, record *models.ConversationRecord) error

	// LoadPage returns records newest-first.
	LoadPage(ctx context.Context, agentUUID string, limit, offset int) ([]*models.ConversationRecord, error)

	// LoadCursor returns up to limit records with Seq < beforeSeq,
	// newest-first, and whether older records remain. beforeSeq <= 0
	// starts from the newest.
	LoadCursor(ctx context.Context, agentUUID string, beforeSeq int64, limit int) ([]*models.ConversationRecord, bool, error)
}

// RunLogStore persists the event log of one run.
type RunLogStore interface {
	Save(ctx context.Context, agentUUID, runID string, events []models.RunLogEvent) error
	Load(ctx context.Context, agentUUID, runID string) ([]models.RunLogEvent, error)
}

// Store bundles the three adapters behind one lifecycle.
type Store interface {
	Configs() ConfigStore
	Conversations() ConversationStore
	RunLogs() RunLogStore
	Close() error
}
