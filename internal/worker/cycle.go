// Package worker holds the background halves of the engine: the Kafka
// consumer that executes dispatched autopilot cycles and the sweep loop
// that publishes due items.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/kafka"
	"contentops/autopilot/pkg/logging"
)

// CycleRunner executes one autopilot cycle for an owner.
type CycleRunner interface {
	RunCycle(ctx context.Context, ownerID string, params models.CycleParams) (int, error)
}

// DLQProducer publishes undecodable messages to the dead letter topic.
type DLQProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// CycleMetrics counts cycle outcomes. Any field may be nil.
type CycleMetrics struct {
	Completed prometheus.Counter
	Failed    prometheus.Counter
	Skipped   prometheus.Counter
	DLQ       prometheus.Counter
}

func (m *CycleMetrics) inc(c prometheus.Counter) {
	if m != nil && c != nil {
		c.Inc()
	}
}

// CycleWorker consumes cycle requests and runs them through the
// orchestrator. Delivery is at-least-once: the job record's pending ->
// processing claim makes duplicate deliveries a no-op.
type CycleWorker struct {
	store    *store.Store
	runner   CycleRunner
	producer DLQProducer
	logger   logging.Logger
	metrics  *CycleMetrics
	dlqTopic string
	now      func() time.Time
}

// NewCycleWorker creates a cycle worker.
func NewCycleWorker(s *store.Store, runner CycleRunner, producer DLQProducer, dlqTopic string, metrics *CycleMetrics, logger logging.Logger) *CycleWorker {
	return &CycleWorker{
		store:    s,
		runner:   runner,
		producer: producer,
		logger:   logger,
		metrics:  metrics,
		dlqTopic: dlqTopic,
		now:      time.Now,
	}
}

// HandleCycleRequest processes one cycle request message. A non-nil return
// blocks the partition so the message redelivers; that is reserved for
// infrastructure faults. Business failures are recorded on the job and the
// message commits.
func (w *CycleWorker) HandleCycleRequest(ctx context.Context, msg kafka.Message) error {
	var req models.CycleRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil || req.JobID == "" || req.OwnerID == "" {
		// Malformed payloads never succeed on redelivery; route to the
		// dead letter topic and move on.
		w.sendToDLQ(ctx, msg, err)
		return nil
	}

	claimed, err := w.store.ClaimCycleJob(ctx, req.JobID, w.now())
	if err != nil {
		return err
	}
	if !claimed {
		w.metrics.inc(w.metrics.Skipped)
		w.logger.WithFields(logging.Fields{
			"job_id":   req.JobID,
			"owner_id": req.OwnerID,
		}).Info("Cycle job already claimed, skipping duplicate delivery")
		return nil
	}

	created, runErr := w.runner.RunCycle(ctx, req.OwnerID, req.Params)
	if runErr != nil {
		w.metrics.inc(w.metrics.Failed)
		w.logger.WithError(runErr).WithFields(logging.Fields{
			"job_id":        req.JobID,
			"owner_id":      req.OwnerID,
			"items_created": created,
		}).Error("Autopilot cycle failed")
		if err := w.store.FailCycleJob(ctx, req.JobID, created, runErr.Error(), w.now()); err != nil {
			return err
		}
		return nil
	}

	if err := w.store.CompleteCycleJob(ctx, req.JobID, created, w.now()); err != nil {
		return err
	}
	w.metrics.inc(w.metrics.Completed)
	w.logger.WithFields(logging.Fields{
		"job_id":        req.JobID,
		"owner_id":      req.OwnerID,
		"items_created": created,
	}).Info("Autopilot cycle completed")
	return nil
}

func (w *CycleWorker) sendToDLQ(ctx context.Context, msg kafka.Message, cause error) {
	w.metrics.inc(w.metrics.DLQ)
	payload, err := kafka.EncodeDLQMessage(msg, cause, "autopilot-cycle-worker")
	if err != nil {
		w.logger.WithError(err).Error("Failed to encode DLQ payload, dropping message")
		return
	}
	if err := w.producer.Produce(ctx, w.dlqTopic, msg.Key, payload, nil); err != nil {
		w.logger.WithError(err).WithFields(logging.Fields{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Error("Failed to produce to DLQ, dropping message")
	}
}
