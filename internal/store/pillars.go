package store

import (
	"context"

	"contentops/autopilot/internal/models"
)

// GetPillarTargets returns the owner's pillar mix, ordered by descending
// target share then name so callers get a stable listing.
func (s *Store) GetPillarTargets(ctx context.Context, ownerID string) ([]models.PillarTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, pillar, percentage
		FROM pillar_targets
		WHERE owner_id = $1
		ORDER BY percentage DESC, pillar ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []models.PillarTarget
	for rows.Next() {
		var t models.PillarTarget
		if err := rows.Scan(&t.OwnerID, &t.Pillar, &t.Percentage); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// ReplacePillarTargets swaps the owner's entire pillar mix in one
// transaction. Validation (shares summing to 100) happens above the store.
func (s *Store) ReplacePillarTargets(ctx context.Context, ownerID string, targets []models.PillarTarget) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM pillar_targets WHERE owner_id = $1
	`, ownerID); err != nil {
		return err
	}

	for _, t := range targets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pillar_targets (owner_id, pillar, percentage)
			VALUES ($1, $2, $3)
		`, ownerID, t.Pillar, t.Percentage); err != nil {
			return err
		}
	}

	return tx.Commit()
}
