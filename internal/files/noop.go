package files

import (
	"context"
	"time"
)

// Noop discards file bytes while still returning well-formed metadata.
// Used in tests and in deployments that keep multimodal payloads inline
// only.
type Noop struct{}

// NewNoop creates a no-op backend.
func NewNoop() *Noop { return &Noop{} }

// ID returns "noop".
func (n *Noop) ID() string { return "noop" }

// Store discards the bytes and reports success.
func (n *Noop) Store(ctx context.Context, agentUUID, fileID string, data []byte, opts StoreOptions) (*Metadata, error) {
	return &Metadata{
		FileID:    fileID,
		Filename:  opts.Filename,
		Size:      int64(len(data)),
		Timestamp: time.Now().UTC(),
		BackendID: n.ID(),
		Extras:    opts.Extras,
	}, nil
}

// Update behaves like Store; the no-op backend has no prior state.
func (n *Noop) Update(ctx context.Context, agentUUID, fileID string, data []byte, opts StoreOptions) (*Metadata, error) {
	meta, err := n.Store(ctx, agentUUID, fileID, data, opts)
	if err != nil {
		return nil, err
	}
	meta.IsUpdate = true
	return meta, nil
}

// Retrieve always reports ErrNotFound.
func (n *Noop) Retrieve(ctx context.Context, agentUUID, fileID string) ([]byte, error) {
	return nil, ErrNotFound
}

// Delete is a no-op.
func (n *Noop) Delete(ctx context.Context, agentUUID, fileID string) error { return nil }

// Close is a no-op.
func (n *Noop) Close() error { return nil }
