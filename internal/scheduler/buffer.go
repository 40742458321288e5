package scheduler

import (
	"context"
	"time"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/store"
)

// BufferManager exposes the lookahead queue of upcoming items.
type BufferManager struct {
	store *store.Store
	now   func() time.Time
}

// NewBufferManager creates a buffer manager.
func NewBufferManager(s *store.Store) *BufferManager {
	return &BufferManager{store: s, now: time.Now}
}

// Size returns how many items currently count toward the buffer target:
// drafts plus reviewing and scheduled items whose time has not passed.
func (b *BufferManager) Size(ctx context.Context, ownerID string) (int, error) {
	return b.store.CountBuffered(ctx, ownerID, b.now())
}

// Status returns the buffered items in delivery order with 1-indexed
// positions. Positions are recomputed on every read; they are a projection
// of the ordering, not stored state, so removals never leave gaps.
func (b *BufferManager) Status(ctx context.Context, ownerID string) ([]models.PipelineItem, error) {
	items, err := b.store.ListBuffered(ctx, ownerID, b.now())
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].BufferPosition = i + 1
	}
	return items, nil
}

// Approve releases a reviewing item into the scheduled state.
func (b *BufferManager) Approve(ctx context.Context, id, ownerID string) (*models.PipelineItem, error) {
	return b.store.ApproveItem(ctx, id, ownerID)
}

// Reject discards a reviewing or scheduled item, freeing its slot
// occurrence for future cycles.
func (b *BufferManager) Reject(ctx context.Context, id, ownerID string) (*models.PipelineItem, error) {
	return b.store.RejectItem(ctx, id, ownerID)
}
