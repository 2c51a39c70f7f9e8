package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/haasonsaas/praxis/pkg/models"
)

// Memory is the in-process adapter used by tests and ephemeral agents.
// All data is copied on the way in and out so callers cannot alias the
// stored state.
type Memory struct {
	mu      sync.RWMutex
	configs map[string]*models.AgentConfig
	records map[string][]*models.ConversationRecord
	runLogs map[string]map[string][]models.RunLogEvent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		configs: make(map[string]*models.AgentConfig),
		records: make(map[string][]*models.ConversationRecord),
		runLogs: make(map[string]map[string][]models.RunLogEvent),
	}
}

// Configs returns the config adapter.
func (m *Memory) Configs() ConfigStore { return (*memoryConfigs)(m) }

// Conversations returns the conversation adapter.
func (m *Memory) Conversations() ConversationStore { return (*memoryConversations)(m) }

// RunLogs returns the run log adapter.
func (m *Memory) RunLogs() RunLogStore { return (*memoryRunLogs)(m) }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

type memoryConfigs Memory

func (m *memoryConfigs) Save(ctx context.Context, cfg *models.AgentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.AgentUUID] = cfg.Clone()
	return nil
}

func (m *memoryConfigs) Load(ctx context.Context, agentUUID string) (*models.AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[agentUUID]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg.Clone(), nil
}

func (m *memoryConfigs) Delete(ctx context.Context, agentUUID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[agentUUID]; !ok {
		return false, nil
	}
	delete(m.configs, agentUUID)
	return true, nil
}

func (m *memoryConfigs) SetTitle(ctx context.Context, agentUUID, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[agentUUID]
	if !ok {
		return false, nil
	}
	cfg.Title = title
	return true, nil
}

func (m *memoryConfigs) List(ctx context.Context, limit, offset int) ([]*models.AgentConfig, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*models.AgentConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		all = append(all, cfg)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].AgentUUID < all[j].AgentUUID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	total := len(all)
	page := paginate(all, limit, offset)
	out := make([]*models.AgentConfig, len(page))
	for i, cfg := range page {
		out[i] = cfg.Clone()
	}
	return out, total, nil
}

type memoryConversations Memory

func (m *memoryConversations) Save(ctx context.Context, record *models.ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.records[record.AgentUUID]
	record.Seq = int64(len(existing)) + 1
	stored := *record
	m.records[record.AgentUUID] = append(existing, &stored)
	return nil
}

func (m *memoryConversations) LoadPage(ctx context.Context, agentUUID string, limit, offset int) ([]*models.ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	newest := newestFirst(m.records[agentUUID])
	return copyRecords(paginate(newest, limit, offset)), nil
}

func (m *memoryConversations) LoadCursor(ctx context.Context, agentUUID string, beforeSeq int64, limit int) ([]*models.ConversationRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	newest := newestFirst(m.records[agentUUID])
	var filtered []*models.ConversationRecord
	for _, r := range newest {
		if beforeSeq <= 0 || r.Seq < beforeSeq {
			filtered = append(filtered, r)
		}
	}
	hasMore := false
	if limit > 0 && len(filtered) > limit {
		hasMore = true
		filtered = filtered[:limit]
	}
	return copyRecords(filtered), hasMore, nil
}

type memoryRunLogs Memory

func (m *memoryRunLogs) Save(ctx context.Context, agentUUID, runID string, events []models.RunLogEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs, ok := m.runLogs[agentUUID]
	if !ok {
		runs = make(map[string][]models.RunLogEvent)
		m.runLogs[agentUUID] = runs
	}
	runs[runID] = append([]models.RunLogEvent(nil), events...)
	return nil
}

func (m *memoryRunLogs) Load(ctx context.Context, agentUUID, runID string) ([]models.RunLogEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events, ok := m.runLogs[agentUUID][runID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]models.RunLogEvent(nil), events...), nil
}

func newestFirst(records []*models.ConversationRecord) []*models.ConversationRecord {
	out := append([]*models.ConversationRecord(nil), records...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out
}

func copyRecords(records []*models.ConversationRecord) []*models.ConversationRecord {
	out := make([]*models.ConversationRecord, len(records))
	for i, r := range records {
		cp := *r
		out[i] = &cp
	}
	return out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
