package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrSlotTaken is returned when an insert collides with the unique
	// (owner_id, scheduled_at) index over non-terminal items.
	ErrSlotTaken = errors.New("scheduled time already taken")

	// ErrInvalidTransition is returned when a conditional status update
	// matched the row but not the required current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSlotInUse is returned when deleting a slot that future items
	// still reference.
	ErrSlotInUse = errors.New("slot is referenced by future items")
)

// Store provides raw-SQL access to the autopilot tables.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ownerLockKey maps an owner id onto the 64-bit advisory lock keyspace.
func ownerLockKey(ownerID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ownerID))
	return int64(h.Sum64())
}

// WithOwnerLock runs fn while holding the per-owner advisory lock. At most
// one holder per owner exists across all service instances; a second caller
// blocks until the first releases. The lock is session-scoped on a dedicated
// connection so fn can use the regular pool for its queries.
func (s *Store) WithOwnerLock(ctx context.Context, ownerID string, fn func(ctx context.Context) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	key := ownerLockKey(ownerID)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		_ = conn.Close()
		return fmt.Errorf("acquire owner lock: %w", err)
	}

	defer func() {
		// Release on a background context so a cancelled request still
		// unlocks before the connection returns to the pool.
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		_ = conn.Close()
	}()

	return fn(ctx)
}
