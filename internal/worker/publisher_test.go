package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/scheduler"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/logging"
)

type fakePublisher struct {
	failFor map[string]error
	calls   []string
}

func (f *fakePublisher) Publish(_ context.Context, item *models.PipelineItem) error {
	f.calls = append(f.calls, item.ID)
	return f.failFor[item.ID]
}

func dueItemRows(now time.Time, ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "owner_id", "slot_id", "pillar", "content", "status", "scheduled_at", "is_buffer", "auto_publish", "error_log", "published_at", "created_at", "updated_at"})
	for _, id := range ids {
		rows.AddRow(id, "owner-1", nil, "education", "payload", "scheduled", now.Add(-time.Minute), true, true, nil, nil, now, now)
	}
	return rows
}

func newPublishWorker(t *testing.T, pub *fakePublisher) (*PublishWorker, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	s := store.NewStore(db)
	logger := logging.NewLogger()
	w := NewPublishWorker(s, pub, scheduler.NewLifecycle(s, logger), nil, logger, time.Minute)
	return w, mock, func() { db.Close() }
}

func TestSweepPublishesDueItems(t *testing.T) {
	pub := &fakePublisher{}
	w, mock, done := newPublishWorker(t, pub)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`FROM pipeline_items\s+WHERE status = 'scheduled' AND scheduled_at <= \$1`).
		WillReturnRows(dueItemRows(now, "item-1", "item-2"))
	mock.ExpectExec(`UPDATE pipeline_items\s+SET status = 'published'`).
		WithArgs("item-1", "owner-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE pipeline_items\s+SET status = 'published'`).
		WithArgs("item-2", "owner-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w.sweep(context.Background())

	require.Equal(t, []string{"item-1", "item-2"}, pub.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepParksFailedDeliveries(t *testing.T) {
	pub := &fakePublisher{failFor: map[string]error{"item-1": errors.New("destination rejected content")}}
	w, mock, done := newPublishWorker(t, pub)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`FROM pipeline_items\s+WHERE status = 'scheduled' AND scheduled_at <= \$1`).
		WillReturnRows(dueItemRows(now, "item-1", "item-2"))
	mock.ExpectExec(`UPDATE pipeline_items\s+SET status = 'publish_failed'`).
		WithArgs("item-1", "owner-1", "destination rejected content").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE pipeline_items\s+SET status = 'published'`).
		WithArgs("item-2", "owner-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w.sweep(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepEmptyQueueIsQuiet(t *testing.T) {
	pub := &fakePublisher{}
	w, mock, done := newPublishWorker(t, pub)
	defer done()

	mock.ExpectQuery(`FROM pipeline_items\s+WHERE status = 'scheduled'`).
		WillReturnRows(dueItemRows(time.Now()))

	w.sweep(context.Background())

	require.Empty(t, pub.calls)
}
