package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/logging"
)

func newMockRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewRegistry(store.NewStore(db), logging.NewLogger()), mock, func() { db.Close() }
}

func TestCreateSlotValidation(t *testing.T) {
	registry, _, done := newMockRegistry(t)
	defer done()

	badDay := 7
	cases := []struct {
		name  string
		input SlotInput
	}{
		{"bad time format", SlotInput{TimeOfDay: "9:00", Timezone: "UTC"}},
		{"hour out of range", SlotInput{TimeOfDay: "24:00", Timezone: "UTC"}},
		{"minute out of range", SlotInput{TimeOfDay: "09:60", Timezone: "UTC"}},
		{"bad day of week", SlotInput{TimeOfDay: "09:00", DayOfWeek: &badDay, Timezone: "UTC"}},
		{"bad timezone", SlotInput{TimeOfDay: "09:00", Timezone: "Mars/Olympus"}},
		{"empty timezone", SlotInput{TimeOfDay: "09:00", Timezone: ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.CreateSlot(context.Background(), "owner-1", tc.input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateSlotRetriesNumberRace(t *testing.T) {
	registry, mock, done := newMockRegistry(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO posting_slots`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery(`INSERT INTO posting_slots`).
		WillReturnRows(sqlmock.NewRows([]string{"slot_number", "created_at", "updated_at"}).
			AddRow(2, mondayMorning, mondayMorning))

	slot, err := registry.CreateSlot(context.Background(), "owner-1", SlotInput{TimeOfDay: "09:00", Timezone: "Europe/Amsterdam"})
	if err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	if slot.SlotNumber != 2 {
		t.Fatalf("unexpected slot number: %d", slot.SlotNumber)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateSlotValidation(t *testing.T) {
	registry, _, done := newMockRegistry(t)
	defer done()

	bad := "25:00"
	_, err := registry.UpdateSlot(context.Background(), "slot-1", "owner-1", store.SlotPatch{TimeOfDay: &bad})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
