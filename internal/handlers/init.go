package handlers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"contentops/autopilot/internal/scheduler"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/ctxkeys"
	"contentops/autopilot/pkg/logging"
	"contentops/autopilot/pkg/middleware"
)

var (
	logger     logging.Logger
	st         *store.Store
	registry   *scheduler.Registry
	tracker    *scheduler.MixTracker
	buffer     *scheduler.BufferManager
	lifecycle  *scheduler.Lifecycle
	producer   CycleProducer
	cycleTopic string
	metrics    *AutopilotMetrics
	now        = time.Now
)

// CycleProducer dispatches cycle requests onto the queue.
type CycleProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// AutopilotMetrics holds the engine's Prometheus metrics.
type AutopilotMetrics struct {
	CyclesDispatched *prometheus.CounterVec
	ItemActions      *prometheus.CounterVec
	SlotOperations   *prometheus.CounterVec
}

// Init wires the handlers with their dependencies.
func Init(s *store.Store, log logging.Logger, prod CycleProducer, topic string, m *AutopilotMetrics) {
	st = s
	logger = log
	producer = prod
	cycleTopic = topic
	metrics = m
	registry = scheduler.NewRegistry(s, log)
	tracker = scheduler.NewMixTracker(s)
	buffer = scheduler.NewBufferManager(s)
	lifecycle = scheduler.NewLifecycle(s, log)
}

// ownerID extracts the authenticated owner from the request context.
func ownerID(c middleware.Context) string {
	return c.GetString(string(ctxkeys.KeyUserID))
}
