package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/praxis/pkg/models"
)

// File is the flat-file adapter. Every record is one JSON document on
// disk; writes go through a temp file and rename so readers never see a
// partial document.
//
// Layout under the base directory:
//
//	configs/<agent_uuid>.json
//	conversations/<agent_uuid>/<seq>.json
//	runlogs/<agent_uuid>/<run_id>.json
type File struct {
	baseDir string
	mu      sync.Mutex
}

// NewFile creates the store rooted at baseDir, creating it if needed.
func NewFile(baseDir string) (*File, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	for _, sub := range []string{"configs", "conversations", "runlogs"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	return &File{baseDir: baseDir}, nil
}

// Configs returns the config adapter.
func (f *File) Configs() ConfigStore { return (*fileConfigs)(f) }

// Conversations returns the conversation adapter.
func (f *File) Conversations() ConversationStore { return (*fileConversations)(f) }

// RunLogs returns the run log adapter.
func (f *File) RunLogs() RunLogStore { return (*fileRunLogs)(f) }

// Close is a no-op; every write is already durable on return.
func (f *File) Close() error { return nil }

func (f *File) configPath(agentUUID string) string {
	return filepath.Join(f.baseDir, "configs", sanitize(agentUUID)+".json")
}

func (f *File) conversationDir(agentUUID string) string {
	return filepath.Join(f.baseDir, "conversations", sanitize(agentUUID))
}

func (f *File) runLogPath(agentUUID, runID string) string {
	return filepath.Join(f.baseDir, "runlogs", sanitize(agentUUID), sanitize(runID)+".json")
}

// sanitize keeps identifiers from escaping the store directory.
func sanitize(id string) string {
	id = strings.ReplaceAll(id, string(os.PathSeparator), "_")
	id = strings.ReplaceAll(id, "..", "_")
	if id == "" {
		return "_"
	}
	return id
}

// writeJSON marshals v and atomically replaces path with the result.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	return nil
}

type fileConfigs File

func (f *fileConfigs) Save(ctx context.Context, cfg *models.AgentConfig) error {
	if cfg == nil || cfg.AgentUUID == "" {
		return fmt.Errorf("config is required")
	}
	return writeJSON((*File)(f).configPath(cfg.AgentUUID), cfg)
}

func (f *fileConfigs) Load(ctx context.Context, agentUUID string) (*models.AgentConfig, error) {
	var cfg models.AgentConfig
	if err := readJSON((*File)(f).configPath(agentUUID), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (f *fileConfigs) Delete(ctx context.Context, agentUUID string) (bool, error) {
	err := os.Remove((*File)(f).configPath(agentUUID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete config: %w", err)
	}
	os.RemoveAll((*File)(f).conversationDir(agentUUID))
	os.RemoveAll(filepath.Join(f.baseDir, "runlogs", sanitize(agentUUID)))
	return true, nil
}

func (f *fileConfigs) SetTitle(ctx context.Context, agentUUID, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := f.Load(ctx, agentUUID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	cfg.Title = title
	cfg.UpdatedAt = time.Now().UTC()
	if err := writeJSON((*File)(f).configPath(agentUUID), cfg); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fileConfigs) List(ctx context.Context, limit, offset int) ([]*models.AgentConfig, int, error) {
	entries, err := os.ReadDir(filepath.Join(f.baseDir, "configs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("list configs: %w", err)
	}

	all := []*models.AgentConfig{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var cfg models.AgentConfig
		if err := readJSON(filepath.Join(f.baseDir, "configs", entry.Name()), &cfg); err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, 0, err
		}
		all = append(all, &cfg)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].AgentUUID < all[j].AgentUUID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	total := len(all)
	return paginate(all, limit, offset), total, nil
}

type fileConversations File

func (f *fileConversations) Save(ctx context.Context, record *models.ConversationRecord) error {
	if record == nil || record.AgentUUID == "" {
		return fmt.Errorf("record is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	seqs, err := f.sequences(record.AgentUUID)
	if err != nil {
		return err
	}
	var max int64
	for _, seq := range seqs {
		if seq > max {
			max = seq
		}
	}
	record.Seq = max + 1

	dir := (*File)(f).conversationDir(record.AgentUUID)
	path := filepath.Join(dir, fmt.Sprintf("%012d.json", record.Seq))
	return writeJSON(path, record)
}

func (f *fileConversations) LoadPage(ctx context.Context, agentUUID string, limit, offset int) ([]*models.ConversationRecord, error) {
	newest, err := f.loadNewestFirst(agentUUID, 0)
	if err != nil {
		return nil, err
	}
	return paginate(newest, limit, offset), nil
}

func (f *fileConversations) LoadCursor(ctx context.Context, agentUUID string, beforeSeq int64, limit int) ([]*models.ConversationRecord, bool, error) {
	newest, err := f.loadNewestFirst(agentUUID, beforeSeq)
	if err != nil {
		return nil, false, err
	}
	hasMore := false
	if limit > 0 && len(newest) > limit {
		hasMore = true
		newest = newest[:limit]
	}
	return newest, hasMore, nil
}

// sequences lists the sequence numbers present for an agent.
func (f *fileConversations) sequences(agentUUID string) ([]int64, error) {
	entries, err := os.ReadDir((*File)(f).conversationDir(agentUUID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	seqs := []int64{}
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".json")
		seq, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

func (f *fileConversations) loadNewestFirst(agentUUID string, beforeSeq int64) ([]*models.ConversationRecord, error) {
	seqs, err := f.sequences(agentUUID)
	if err != nil {
		return nil, err
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })

	dir := (*File)(f).conversationDir(agentUUID)
	records := []*models.ConversationRecord{}
	for _, seq := range seqs {
		if beforeSeq > 0 && seq >= beforeSeq {
			continue
		}
		var record models.ConversationRecord
		path := filepath.Join(dir, fmt.Sprintf("%012d.json", seq))
		if err := readJSON(path, &record); err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		records = append(records, &record)
	}
	return records, nil
}

type fileRunLogs File

func (f *fileRunLogs) Save(ctx context.Context, agentUUID, runID string, events []models.RunLogEvent) error {
	if agentUUID == "" || runID == "" {
		return fmt.Errorf("agent uuid and run id are required")
	}
	return writeJSON((*File)(f).runLogPath(agentUUID, runID), events)
}

func (f *fileRunLogs) Load(ctx context.Context, agentUUID, runID string) ([]models.RunLogEvent, error) {
	var events []models.RunLogEvent
	if err := readJSON((*File)(f).runLogPath(agentUUID, runID), &events); err != nil {
		return nil, err
	}
	return events, nil
}
