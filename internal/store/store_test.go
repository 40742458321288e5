package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"contentops/autopilot/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewStore(db), mock, func() { db.Close() }
}

func slotRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "slot_number", "time_of_day", "day_of_week", "timezone", "is_active", "created_at", "updated_at"}).
		AddRow("slot-1", "owner-1", 1, "09:00", 1, "UTC", true, now, now)
}

func itemRows(now time.Time, status string, scheduledAt interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "slot_id", "pillar", "content", "status", "scheduled_at", "is_buffer", "auto_publish", "error_log", "published_at", "created_at", "updated_at"}).
		AddRow("item-1", "owner-1", "slot-1", "education", "payload", status, scheduledAt, true, false, nil, nil, now, now)
}

func TestCreateSlotAssignsNextNumber(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO posting_slots`).
		WithArgs("slot-1", "owner-1", "09:00", sqlmock.AnyArg(), "UTC").
		WillReturnRows(sqlmock.NewRows([]string{"slot_number", "created_at", "updated_at"}).AddRow(3, now, now))

	dow := 1
	slot := &models.PostingSlot{ID: "slot-1", OwnerID: "owner-1", TimeOfDay: "09:00", DayOfWeek: &dow, Timezone: "UTC"}
	if err := store.CreateSlot(context.Background(), slot); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	if slot.SlotNumber != 3 {
		t.Fatalf("unexpected slot number: %d", slot.SlotNumber)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateSlotUniqueViolation(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO posting_slots`).
		WillReturnError(&pq.Error{Code: "23505"})

	slot := &models.PostingSlot{ID: "slot-1", OwnerID: "owner-1", TimeOfDay: "09:00", Timezone: "UTC"}
	if err := store.CreateSlot(context.Background(), slot); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestDeleteSlotBlockedByFutureItems(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("slot-1", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := store.DeleteSlot(context.Background(), "slot-1", "owner-1"); !errors.Is(err, ErrSlotInUse) {
		t.Fatalf("expected ErrSlotInUse, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteSlotNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("slot-x", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`DELETE FROM posting_slots`).
		WithArgs("slot-x", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteSlot(context.Background(), "slot-x", "owner-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSlotPartialPatch(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`UPDATE posting_slots\s+SET updated_at = NOW\(\), is_active = \$3`).
		WithArgs("slot-1", "owner-1", false).
		WillReturnRows(slotRows(now))

	active := false
	slot, err := store.UpdateSlot(context.Background(), "slot-1", "owner-1", SlotPatch{IsActive: &active})
	if err != nil {
		t.Fatalf("UpdateSlot: %v", err)
	}
	if slot.ID != "slot-1" {
		t.Fatalf("unexpected slot: %s", slot.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateItemScheduleCollision(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO pipeline_items`).
		WillReturnError(&pq.Error{Code: "23505"})

	at := time.Now()
	item := &models.PipelineItem{ID: "item-1", OwnerID: "owner-1", Content: "payload", Status: models.StatusScheduled, ScheduledAt: &at}
	if err := store.CreateItem(context.Background(), item); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestApproveItem(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`UPDATE pipeline_items\s+SET status = 'scheduled'`).
		WithArgs("item-1", "owner-1").
		WillReturnRows(itemRows(now, "scheduled", now.Add(time.Hour)))

	item, err := store.ApproveItem(context.Background(), "item-1", "owner-1")
	if err != nil {
		t.Fatalf("ApproveItem: %v", err)
	}
	if item.Status != models.StatusScheduled {
		t.Fatalf("unexpected status: %s", item.Status)
	}
}

func TestApproveItemWrongStatus(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	// A published item matches no row in the conditional UPDATE; the
	// follow-up status read classifies the failure.
	mock.ExpectQuery(`UPDATE pipeline_items\s+SET status = 'scheduled'`).
		WithArgs("item-1", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT status FROM pipeline_items`).
		WithArgs("item-1", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("published"))

	if _, err := store.ApproveItem(context.Background(), "item-1", "owner-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestApproveItemNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`UPDATE pipeline_items\s+SET status = 'scheduled'`).
		WithArgs("item-x", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT status FROM pipeline_items`).
		WithArgs("item-x", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	if _, err := store.ApproveItem(context.Background(), "item-x", "owner-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectItemClearsSchedule(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`UPDATE pipeline_items\s+SET status = 'rejected', scheduled_at = NULL`).
		WithArgs("item-1", "owner-1").
		WillReturnRows(itemRows(now, "rejected", nil))

	item, err := store.RejectItem(context.Background(), "item-1", "owner-1")
	if err != nil {
		t.Fatalf("RejectItem: %v", err)
	}
	if item.Status != models.StatusRejected {
		t.Fatalf("unexpected status: %s", item.Status)
	}
	if item.ScheduledAt != nil {
		t.Fatalf("expected cleared scheduled_at")
	}
}

func TestRetryItemRequeuesFailedItem(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`UPDATE pipeline_items\s+SET status = 'scheduled', error_log = NULL, scheduled_at = \$3`).
		WithArgs("item-1", "owner-1", now).
		WillReturnRows(itemRows(now, "scheduled", now))

	item, err := store.RetryItem(context.Background(), "item-1", "owner-1", now)
	if err != nil {
		t.Fatalf("RetryItem: %v", err)
	}
	if item.Status != models.StatusScheduled {
		t.Fatalf("unexpected status: %s", item.Status)
	}
	if item.ErrorLog != nil {
		t.Fatalf("expected cleared error_log, got %q", *item.ErrorLog)
	}
	if item.ScheduledAt == nil || item.ScheduledAt.Before(now) {
		t.Fatalf("expected scheduled_at >= retry time, got %v", item.ScheduledAt)
	}
}

func TestRetryItemWrongStatus(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	// Only publish_failed items are retryable; anything else matches no
	// row and the follow-up status read classifies the failure.
	mock.ExpectQuery(`UPDATE pipeline_items\s+SET status = 'scheduled', error_log = NULL`).
		WithArgs("item-1", "owner-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT status FROM pipeline_items`).
		WithArgs("item-1", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("scheduled"))

	if _, err := store.RetryItem(context.Background(), "item-1", "owner-1", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMarkPublishedRequiresScheduled(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE pipeline_items\s+SET status = 'published'`).
		WithArgs("item-1", "owner-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM pipeline_items`).
		WithArgs("item-1", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("published"))

	err := store.MarkPublished(context.Background(), "item-1", "owner-1", time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCountBuffered(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM pipeline_items`).
		WithArgs("owner-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := store.CountBuffered(context.Background(), "owner-1", time.Now())
	if err != nil {
		t.Fatalf("CountBuffered: %v", err)
	}
	if count != 4 {
		t.Fatalf("unexpected count: %d", count)
	}
}

func TestCreateCycleJobDeduplicates(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectExec(`INSERT INTO cycle_jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM cycle_jobs\s+WHERE idempotency_key = \$1`).
		WithArgs("owner-1:202401081200").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "idempotency_key", "status", "params", "items_created", "error_log", "started_at", "finished_at", "created_at", "updated_at"}).
			AddRow("job-existing", "owner-1", "owner-1:202401081200", "processing", []byte(`{"items_per_batch":3,"buffer_target":7,"auto_publish":false}`), 0, nil, now, nil, now, now))

	job := &models.CycleJob{ID: "job-new", OwnerID: "owner-1", IdempotencyKey: "owner-1:202401081200"}
	created, err := store.CreateCycleJob(context.Background(), job)
	if err != nil {
		t.Fatalf("CreateCycleJob: %v", err)
	}
	if created {
		t.Fatalf("expected dedup, got created=true")
	}
	if job.ID != "job-existing" || job.Status != models.JobProcessing {
		t.Fatalf("expected existing job, got %s (%s)", job.ID, job.Status)
	}
}

func TestClaimCycleJobOnlyOnce(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE cycle_jobs\s+SET status = 'processing'`).
		WithArgs("job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE cycle_jobs\s+SET status = 'processing'`).
		WithArgs("job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := store.ClaimCycleJob(context.Background(), "job-1", time.Now())
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	claimed, err = store.ClaimCycleJob(context.Background(), "job-1", time.Now())
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected second claim to lose")
	}
}

func TestReplacePillarTargetsTransactional(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM pillar_targets`).
		WithArgs("owner-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO pillar_targets`).
		WithArgs("owner-1", "education", 60).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO pillar_targets`).
		WithArgs("owner-1", "promotion", 40).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ReplacePillarTargets(context.Background(), "owner-1", []models.PillarTarget{
		{OwnerID: "owner-1", Pillar: "education", Percentage: 60},
		{OwnerID: "owner-1", Pillar: "promotion", Percentage: 40},
	})
	if err != nil {
		t.Fatalf("ReplacePillarTargets: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOwnerLockKeyStable(t *testing.T) {
	a := ownerLockKey("owner-1")
	b := ownerLockKey("owner-1")
	c := ownerLockKey("owner-2")
	if a != b {
		t.Fatalf("lock key not stable")
	}
	if a == c {
		t.Fatalf("distinct owners mapped to same key")
	}
}
