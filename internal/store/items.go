package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"contentops/autopilot/internal/models"
)

const itemColumns = `id, owner_id, slot_id, pillar, content, status, scheduled_at, is_buffer, auto_publish, error_log, published_at, created_at, updated_at`

// bufferStatuses are the states counted as lookahead inventory.
var bufferStatuses = statusList(models.StatusDraft, models.StatusReviewing, models.StatusScheduled)

// occupyingStatuses are the states in which an item holds its slot
// occurrence, matching the scope of the partial unique index.
var occupyingStatuses = statusList(models.NonTerminalStatuses()...)

// statusList renders statuses as a quoted SQL IN-list.
func statusList(statuses ...models.ItemStatus) string {
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, ", ")
}

func scanItem(row interface{ Scan(...interface{}) error }) (*models.PipelineItem, error) {
	var item models.PipelineItem
	var slotID, pillar, errorLog sql.NullString
	var scheduledAt, publishedAt sql.NullTime

	err := row.Scan(&item.ID, &item.OwnerID, &slotID, &pillar, &item.Content,
		&item.Status, &scheduledAt, &item.IsBuffer, &item.AutoPublish,
		&errorLog, &publishedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if slotID.Valid {
		item.SlotID = &slotID.String
	}
	item.Pillar = pillar.String
	if scheduledAt.Valid {
		t := scheduledAt.Time
		item.ScheduledAt = &t
	}
	if errorLog.Valid {
		item.ErrorLog = &errorLog.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		item.PublishedAt = &t
	}
	return &item, nil
}

// CreateItem inserts a new pipeline item. A collision with the partial
// unique index on (owner_id, scheduled_at) surfaces as ErrSlotTaken; the
// caller re-resolves a timestamp and retries.
func (s *Store) CreateItem(ctx context.Context, item *models.PipelineItem) error {
	var slotID sql.NullString
	if item.SlotID != nil {
		slotID = sql.NullString{String: *item.SlotID, Valid: true}
	}
	var pillar sql.NullString
	if item.Pillar != "" {
		pillar = sql.NullString{String: item.Pillar, Valid: true}
	}
	var scheduledAt sql.NullTime
	if item.ScheduledAt != nil {
		scheduledAt = sql.NullTime{Time: *item.ScheduledAt, Valid: true}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pipeline_items (id, owner_id, slot_id, pillar, content, status, scheduled_at, is_buffer, auto_publish, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`, item.ID, item.OwnerID, slotID, pillar, item.Content, item.Status,
		scheduledAt, item.IsBuffer, item.AutoPublish).
		Scan(&item.CreatedAt, &item.UpdatedAt)

	if isUniqueViolation(err) {
		return ErrSlotTaken
	}
	return err
}

// GetItem fetches a single item scoped to its owner.
func (s *Store) GetItem(ctx context.Context, id, ownerID string) (*models.PipelineItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM pipeline_items
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CountBuffered returns the number of items acting as lookahead inventory:
// draft/reviewing/scheduled items not yet past their delivery time.
func (s *Store) CountBuffered(ctx context.Context, ownerID string, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM pipeline_items
		WHERE owner_id = $1
		  AND status IN (`+bufferStatuses+`)
		  AND (scheduled_at IS NULL OR scheduled_at > $2)
	`, ownerID, now).Scan(&count)
	return count, err
}

// ListBuffered returns buffered items ordered by scheduled time ascending
// (unscheduled drafts last). Buffer positions are assigned by the caller;
// they are a view over this ordering, not stored truth.
func (s *Store) ListBuffered(ctx context.Context, ownerID string, now time.Time) ([]models.PipelineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM pipeline_items
		WHERE owner_id = $1
		  AND status IN (`+bufferStatuses+`)
		  AND (scheduled_at IS NULL OR scheduled_at > $2)
		ORDER BY scheduled_at ASC NULLS LAST, created_at ASC
	`, ownerID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PipelineItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListOccupiedTimes returns the scheduled timestamps held by non-terminal
// items at or after the given bound.
func (s *Store) ListOccupiedTimes(ctx context.Context, ownerID string, after time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scheduled_at
		FROM pipeline_items
		WHERE owner_id = $1
		  AND status IN (`+occupyingStatuses+`)
		  AND scheduled_at >= $2
		ORDER BY scheduled_at ASC
	`, ownerID, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// PillarCounts returns per-pillar item counts within the trailing window.
// Rejected items are excluded; everything else that held a schedule counts
// toward the mix.
func (s *Store) PillarCounts(ctx context.Context, ownerID string, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pillar, COUNT(*)
		FROM pipeline_items
		WHERE owner_id = $1
		  AND pillar IS NOT NULL
		  AND status != 'rejected'
		  AND scheduled_at >= $2
		GROUP BY pillar
	`, ownerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var pillar string
		var count int
		if err := rows.Scan(&pillar, &count); err != nil {
			return nil, err
		}
		counts[pillar] = count
	}
	return counts, rows.Err()
}

// PillarLastUsed returns the most recent scheduled time per pillar, used as
// the least-recently-used tie-break during pillar selection.
func (s *Store) PillarLastUsed(ctx context.Context, ownerID string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pillar, MAX(scheduled_at)
		FROM pipeline_items
		WHERE owner_id = $1
		  AND pillar IS NOT NULL
		  AND status != 'rejected'
		  AND scheduled_at IS NOT NULL
		GROUP BY pillar
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lastUsed := make(map[string]time.Time)
	for rows.Next() {
		var pillar string
		var t time.Time
		if err := rows.Scan(&pillar, &t); err != nil {
			return nil, err
		}
		lastUsed[pillar] = t
	}
	return lastUsed, rows.Err()
}

// classifyTransitionFailure turns a zero-row conditional update into the
// precise error: unknown item vs. illegal current status.
func (s *Store) classifyTransitionFailure(ctx context.Context, id, ownerID string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM pipeline_items WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidTransition
}

// ApproveItem moves a reviewing item to scheduled. The status check is part
// of the UPDATE so a concurrent transition cannot slip in between read and
// write.
func (s *Store) ApproveItem(ctx context.Context, id, ownerID string) (*models.PipelineItem, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE pipeline_items
		SET status = 'scheduled', updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status = 'reviewing'
		RETURNING `+itemColumns+`
	`, id, ownerID)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyTransitionFailure(ctx, id, ownerID)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// RejectItem moves a reviewing or scheduled item to the terminal rejected
// state and clears its scheduled time, freeing that slot occurrence.
func (s *Store) RejectItem(ctx context.Context, id, ownerID string) (*models.PipelineItem, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE pipeline_items
		SET status = 'rejected', scheduled_at = NULL, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status IN ('reviewing', 'scheduled')
		RETURNING `+itemColumns+`
	`, id, ownerID)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyTransitionFailure(ctx, id, ownerID)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// RetryItem requeues a failed item for immediate delivery: error log
// cleared, scheduled_at set to now, status back to scheduled.
func (s *Store) RetryItem(ctx context.Context, id, ownerID string, now time.Time) (*models.PipelineItem, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE pipeline_items
		SET status = 'scheduled', error_log = NULL, scheduled_at = $3, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status = 'publish_failed'
		RETURNING `+itemColumns+`
	`, id, ownerID, now)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyTransitionFailure(ctx, id, ownerID)
	}
	if isUniqueViolation(err) {
		return nil, ErrSlotTaken
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// MarkPublished records a successful delivery.
func (s *Store) MarkPublished(ctx context.Context, id, ownerID string, publishedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_items
		SET status = 'published', published_at = $3, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status = 'scheduled'
	`, id, ownerID, publishedAt)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.classifyTransitionFailure(ctx, id, ownerID)
	}
	return nil
}

// MarkPublishFailed records a failed delivery with its error detail. The
// item stays parked until an explicit retry.
func (s *Store) MarkPublishFailed(ctx context.Context, id, ownerID, errorLog string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_items
		SET status = 'publish_failed', error_log = $3, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status = 'scheduled'
	`, id, ownerID, errorLog)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.classifyTransitionFailure(ctx, id, ownerID)
	}
	return nil
}

// ListDue returns scheduled items whose delivery time has arrived, across
// all owners, oldest first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]models.PipelineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM pipeline_items
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PipelineItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
