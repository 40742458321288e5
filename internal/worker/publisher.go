package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"contentops/autopilot/internal/capability"
	"contentops/autopilot/internal/scheduler"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/logging"
)

// PublishMetrics counts sweep outcomes. Any field may be nil.
type PublishMetrics struct {
	Published prometheus.Counter
	Failed    prometheus.Counter
}

func (m *PublishMetrics) inc(c prometheus.Counter) {
	if m != nil && c != nil {
		c.Inc()
	}
}

// PublishWorker sweeps for scheduled items whose delivery time has passed
// and pushes them through the publisher. Failures park the item in
// publish_failed; the next sweep does not pick it up again until an
// operator retries it.
type PublishWorker struct {
	store     *store.Store
	publisher capability.Publisher
	lifecycle *scheduler.Lifecycle
	logger    logging.Logger
	metrics   *PublishMetrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewPublishWorker creates a publish sweep worker.
func NewPublishWorker(s *store.Store, p capability.Publisher, lc *scheduler.Lifecycle, metrics *PublishMetrics, logger logging.Logger, interval time.Duration) *PublishWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PublishWorker{
		store:     s,
		publisher: p,
		lifecycle: lc,
		logger:    logger,
		metrics:   metrics,
		interval:  interval,
		batchSize: 50,
		now:       time.Now,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *PublishWorker) Start(ctx context.Context) {
	w.logger.Info("Starting publication sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping publication sweep worker")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *PublishWorker) sweep(ctx context.Context) {
	items, err := w.store.ListDue(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.WithError(err).Error("Failed to list due items")
		return
	}
	if len(items) == 0 {
		w.logger.Debug("No items due for publication")
		return
	}

	w.logger.WithField("count", len(items)).Info("Publishing due items")

	for i := range items {
		item := &items[i]
		log := w.logger.WithFields(logging.Fields{
			"item_id":  item.ID,
			"owner_id": item.OwnerID,
		})

		if err := w.publisher.Publish(ctx, item); err != nil {
			w.metrics.inc(w.metrics.Failed)
			if recErr := w.lifecycle.RecordFailure(ctx, item.ID, item.OwnerID, err); recErr != nil {
				log.WithError(recErr).Error("Failed to record publication failure")
			}
			continue
		}

		if err := w.lifecycle.RecordPublished(ctx, item.ID, item.OwnerID); err != nil {
			// The item may have been rejected between the sweep read and
			// the publish; leave it for inspection rather than guessing.
			log.WithError(err).Error("Failed to record publication success")
			continue
		}
		w.metrics.inc(w.metrics.Published)
		log.Info("Item published")
	}
}
