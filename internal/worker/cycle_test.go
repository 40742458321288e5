package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/kafka"
	"contentops/autopilot/pkg/logging"
)

type fakeRunner struct {
	created int
	err     error
	calls   []string
	params  models.CycleParams
}

func (f *fakeRunner) RunCycle(_ context.Context, ownerID string, params models.CycleParams) (int, error) {
	f.calls = append(f.calls, ownerID)
	f.params = params
	return f.created, f.err
}

type fakeProducer struct {
	topic   string
	key     []byte
	value   []byte
	err     error
	produced int
}

func (f *fakeProducer) Produce(_ context.Context, topic string, key, value []byte, _ map[string]string) error {
	f.produced++
	f.topic = topic
	f.key = key
	f.value = value
	return f.err
}

func newCycleWorker(t *testing.T, runner *fakeRunner, producer *fakeProducer) (*CycleWorker, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	w := NewCycleWorker(store.NewStore(db), runner, producer, "autopilot.cycle_requests.dlq", nil, logging.NewLogger())
	return w, mock, func() { db.Close() }
}

func cycleMessage(t *testing.T, req models.CycleRequest) kafka.Message {
	t.Helper()
	value, err := json.Marshal(req)
	require.NoError(t, err)
	return kafka.Message{
		Topic:     "autopilot.cycle_requests",
		Key:       []byte(req.OwnerID),
		Value:     value,
		Timestamp: time.Now(),
	}
}

func TestHandleCycleRequestCompletesJob(t *testing.T) {
	runner := &fakeRunner{created: 2}
	w, mock, done := newCycleWorker(t, runner, &fakeProducer{})
	defer done()

	mock.ExpectExec(`UPDATE cycle_jobs\s+SET status = 'processing'`).
		WithArgs("job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE cycle_jobs\s+SET status = 'completed'`).
		WithArgs("job-1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := models.CycleRequest{
		JobID:   "job-1",
		OwnerID: "owner-1",
		Params:  models.CycleParams{ItemsPerBatch: 3, BufferTarget: 7},
	}
	err := w.HandleCycleRequest(context.Background(), cycleMessage(t, req))
	require.NoError(t, err)
	require.Equal(t, []string{"owner-1"}, runner.calls)
	require.Equal(t, 7, runner.params.BufferTarget)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCycleRequestSkipsDuplicateDelivery(t *testing.T) {
	runner := &fakeRunner{}
	w, mock, done := newCycleWorker(t, runner, &fakeProducer{})
	defer done()

	mock.ExpectExec(`UPDATE cycle_jobs\s+SET status = 'processing'`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := models.CycleRequest{JobID: "job-1", OwnerID: "owner-1"}
	err := w.HandleCycleRequest(context.Background(), cycleMessage(t, req))
	require.NoError(t, err)
	require.Empty(t, runner.calls, "duplicate delivery must not run the cycle")
}

func TestHandleCycleRequestRoutesMalformedToDLQ(t *testing.T) {
	runner := &fakeRunner{}
	producer := &fakeProducer{}
	w, _, done := newCycleWorker(t, runner, producer)
	defer done()

	msg := kafka.Message{
		Topic: "autopilot.cycle_requests",
		Key:   []byte("owner-1"),
		Value: []byte("not json"),
	}
	err := w.HandleCycleRequest(context.Background(), msg)
	require.NoError(t, err, "malformed messages commit after DLQ routing")
	require.Equal(t, 1, producer.produced)
	require.Equal(t, "autopilot.cycle_requests.dlq", producer.topic)

	var payload kafka.DLQPayload
	require.NoError(t, json.Unmarshal(producer.value, &payload))
	require.Equal(t, "autopilot-cycle-worker", payload.Consumer)
	require.NotEmpty(t, payload.Reason)
	require.Empty(t, runner.calls)
}

func TestHandleCycleRequestMissingFieldsToDLQ(t *testing.T) {
	producer := &fakeProducer{}
	w, _, done := newCycleWorker(t, &fakeRunner{}, producer)
	defer done()

	msg := cycleMessage(t, models.CycleRequest{OwnerID: "owner-1"}) // no job id
	err := w.HandleCycleRequest(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, 1, producer.produced)
}

func TestHandleCycleRequestRecordsFailure(t *testing.T) {
	runner := &fakeRunner{created: 1, err: errors.New("generator down")}
	w, mock, done := newCycleWorker(t, runner, &fakeProducer{})
	defer done()

	mock.ExpectExec(`UPDATE cycle_jobs\s+SET status = 'processing'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE cycle_jobs\s+SET status = 'failed'`).
		WithArgs("job-1", 1, "generator down", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := models.CycleRequest{JobID: "job-1", OwnerID: "owner-1"}
	err := w.HandleCycleRequest(context.Background(), cycleMessage(t, req))
	require.NoError(t, err, "business failures commit; the job record carries the error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCycleRequestClaimErrorRedelivers(t *testing.T) {
	w, mock, done := newCycleWorker(t, &fakeRunner{}, &fakeProducer{})
	defer done()

	mock.ExpectExec(`UPDATE cycle_jobs\s+SET status = 'processing'`).
		WillReturnError(errors.New("connection reset"))

	req := models.CycleRequest{JobID: "job-1", OwnerID: "owner-1"}
	err := w.HandleCycleRequest(context.Background(), cycleMessage(t, req))
	require.Error(t, err, "infrastructure faults must block the partition for redelivery")
}
