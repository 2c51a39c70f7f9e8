// Package files provides the file backend used to persist multimodal
// tool output: images and documents produced by tools are stored here and
// referenced from history by file_id.
package files

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no file exists for the given scope.
var ErrNotFound = errors.New("file not found")

// Metadata describes one stored file.
type Metadata struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename,omitempty"`

	// StorageLocation is an opaque locator: a path, a URL, or empty for
	// no-op backends.
	StorageLocation string `json:"storage_location,omitempty"`

	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`

	// IsUpdate marks a write that replaced existing bytes; PriorSize is
	// the replaced size.
	IsUpdate  bool  `json:"is_update"`
	PriorSize int64 `json:"prior_size,omitempty"`

	BackendID string            `json:"backend_id"`
	Extras    map[string]string `json:"extras,omitempty"`
}

// Ref is the lightweight reference recorded alongside API payloads when
// a tool returns multimodal content.
type Ref struct {
	ID        string `json:"id"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// StoreOptions carries optional attributes of a write.
type StoreOptions struct {
	Filename  string
	MediaType string
	Extras    map[string]string
}

// Backend stores file bytes scoped by (agent_uuid, file_id). Storing the
// same file_id again fully replaces the earlier bytes.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// ID returns the backend identifier recorded in metadata.
	ID() string

	// Store writes the file, creating or replacing it.
	Store(ctx context.Context, agentUUID, fileID string, data []byte, opts StoreOptions) (*Metadata, error)

	// Update replaces an existing file; ErrNotFound when absent.
	Update(ctx context.Context, agentUUID, fileID string, data []byte, opts StoreOptions) (*Metadata, error)

	// Retrieve reads the file bytes; ErrNotFound when absent.
	Retrieve(ctx context.Context, agentUUID, fileID string) ([]byte, error)

	// Delete removes the file. Deleting an absent file is not an error.
	Delete(ctx context.Context, agentUUID, fileID string) error

	// Close releases resources.
	Close() error
}

// New constructs a backend by name: "noop", "local", or "s3".
func New(ctx context.Context, name string, localPath string, s3cfg *S3Config) (Backend, error) {
	switch name {
	case "noop", "":
		return NewNoop(), nil
	case "local":
		return NewLocal(localPath)
	case "s3":
		return NewS3(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("unknown file backend %q", name)
	}
}
