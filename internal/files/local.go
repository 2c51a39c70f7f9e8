package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local stores files on the local filesystem under base/agent_uuid/.
// Writes go to a temp file first, then an atomic rename.
type Local struct {
	basePath string
}

// NewLocal creates a local disk backend rooted at basePath.
func NewLocal(basePath string) (*Local, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local file backend: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create file directory: %w", err)
	}
	return &Local{basePath: basePath}, nil
}

// ID returns "local".
func (l *Local) ID() string { return "local" }

// Store writes the file, creating or replacing it.
func (l *Local) Store(ctx context.Context, agentUUID, fileID string, data []byte, opts StoreOptions) (*Metadata, error) {
	filePath, err := l.path(agentUUID, fileID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create agent dir: %w", err)
	}

	var priorSize int64
	isUpdate := false
	if info, statErr := os.Stat(filePath); statErr == nil {
		isUpdate = true
		priorSize = info.Size()
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return nil, fmt.Errorf("rename file: %w", err)
	}

	meta := &Metadata{
		FileID:          fileID,
		Filename:        opts.Filename,
		StorageLocation: "file://" + filePath,
		Size:            int64(len(data)),
		Timestamp:       time.Now().UTC(),
		IsUpdate:        isUpdate,
		BackendID:       l.ID(),
		Extras:          opts.Extras,
	}
	if isUpdate {
		meta.PriorSize = priorSize
	}
	return meta, nil
}

// Update replaces an existing file; ErrNotFound when absent.
func (l *Local) Update(ctx context.Context, agentUUID, fileID string, data []byte, opts StoreOptions) (*Metadata, error) {
	filePath, err := l.path(agentUUID, fileID)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(filePath); statErr != nil {
		return nil, ErrNotFound
	}
	return l.Store(ctx, agentUUID, fileID, data, opts)
}

// Retrieve reads the file bytes.
func (l *Local) Retrieve(ctx context.Context, agentUUID, fileID string) ([]byte, error) {
	filePath, err := l.path(agentUUID, fileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete removes the file. Absent files are not an error.
func (l *Local) Delete(ctx context.Context, agentUUID, fileID string) error {
	filePath, err := l.path(agentUUID, fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (l *Local) Close() error { return nil }

// path resolves the on-disk location, rejecting ids that would escape
// the base directory.
func (l *Local) path(agentUUID, fileID string) (string, error) {
	if agentUUID == "" || fileID == "" {
		return "", fmt.Errorf("agent uuid and file id are required")
	}
	clean := filepath.Join(l.basePath, sanitize(agentUUID), sanitize(fileID))
	if !strings.HasPrefix(clean, l.basePath) {
		return "", fmt.Errorf("invalid file path for %s/%s", agentUUID, fileID)
	}
	return clean, nil
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, string(os.PathSeparator), "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}
