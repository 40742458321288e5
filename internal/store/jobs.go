package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"contentops/autopilot/internal/models"
)

const jobColumns = `id, owner_id, idempotency_key, status, params, items_created, error_log, started_at, finished_at, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*models.CycleJob, error) {
	var job models.CycleJob
	var params []byte
	var errorLog sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(&job.ID, &job.OwnerID, &job.IdempotencyKey, &job.Status,
		&params, &job.ItemsCreated, &errorLog, &startedAt, &finishedAt,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(params, &job.Params); err != nil {
		return nil, err
	}
	if errorLog.Valid {
		job.ErrorLog = &errorLog.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

// CreateCycleJob inserts a pending job, deduplicating on the idempotency
// key. When a job with the same key already exists, the existing job is
// returned and created is false; no new dispatch should happen.
func (s *Store) CreateCycleJob(ctx context.Context, job *models.CycleJob) (created bool, err error) {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_jobs (id, owner_id, idempotency_key, status, params, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', $4, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.ID, job.OwnerID, job.IdempotencyKey, params)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		job.Status = models.JobPending
		return true, nil
	}

	existing, err := s.getCycleJobByKey(ctx, job.IdempotencyKey)
	if err != nil {
		return false, err
	}
	*job = *existing
	return false, nil
}

func (s *Store) getCycleJobByKey(ctx context.Context, key string) (*models.CycleJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM cycle_jobs
		WHERE idempotency_key = $1
	`, key)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetCycleJob fetches a job scoped to its owner.
func (s *Store) GetCycleJob(ctx context.Context, id, ownerID string) (*models.CycleJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM cycle_jobs
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimCycleJob moves a pending job to processing. Returns false when the
// job was already claimed or finished, which is how a redelivered trigger
// gets dropped without running the cycle twice.
func (s *Store) ClaimCycleJob(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cycle_jobs
		SET status = 'processing', started_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, now)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CompleteCycleJob records a successful cycle and how many items it created.
func (s *Store) CompleteCycleJob(ctx context.Context, id string, itemsCreated int, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cycle_jobs
		SET status = 'completed', items_created = $2, finished_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, itemsCreated, now)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// FailCycleJob records a failed cycle with its error detail. Items created
// before the failure are kept, so the count is recorded here too.
func (s *Store) FailCycleJob(ctx context.Context, id string, itemsCreated int, errorLog string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cycle_jobs
		SET status = 'failed', items_created = $2, error_log = $3, finished_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, itemsCreated, errorLog, now)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ListCycleJobs returns an owner's recent jobs, newest first.
func (s *Store) ListCycleJobs(ctx context.Context, ownerID string, limit int) ([]models.CycleJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM cycle_jobs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.CycleJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
