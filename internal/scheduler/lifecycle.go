package scheduler

import (
	"context"
	"time"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/logging"
)

// Lifecycle manages publication outcomes and operator-driven retries.
type Lifecycle struct {
	store  *store.Store
	logger logging.Logger
	now    func() time.Time
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(s *store.Store, logger logging.Logger) *Lifecycle {
	return &Lifecycle{store: s, logger: logger, now: time.Now}
}

// Retry requeues a failed item for immediate publication. Only items in
// publish_failed can be retried.
func (l *Lifecycle) Retry(ctx context.Context, id, ownerID string) (*models.PipelineItem, error) {
	item, err := l.store.RetryItem(ctx, id, ownerID, l.now())
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(logging.Fields{
		"item_id":  id,
		"owner_id": ownerID,
	}).Info("Failed item requeued for publication")
	return item, nil
}

// RecordPublished marks a delivery success.
func (l *Lifecycle) RecordPublished(ctx context.Context, id, ownerID string) error {
	return l.store.MarkPublished(ctx, id, ownerID, l.now())
}

// RecordFailure parks a scheduled item in publish_failed with the delivery
// error preserved for inspection.
func (l *Lifecycle) RecordFailure(ctx context.Context, id, ownerID string, cause error) error {
	msg := "unknown publication error"
	if cause != nil {
		msg = cause.Error()
	}
	err := l.store.MarkPublishFailed(ctx, id, ownerID, msg)
	if err != nil {
		return err
	}
	l.logger.WithFields(logging.Fields{
		"item_id":  id,
		"owner_id": ownerID,
		"error":    msg,
	}).Warn("Publication failed, item parked for retry")
	return nil
}
