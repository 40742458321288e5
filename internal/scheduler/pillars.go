package scheduler

import (
	"context"
	"sort"
	"time"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/config"
)

// defaultPillarWindowDays is the trailing window over which the realized
// mix is measured. Older items stop influencing pillar selection.
const defaultPillarWindowDays = 28

// PillarStanding is one pillar's target vs. realized share.
type PillarStanding struct {
	Pillar   string     `json:"pillar"`
	Target   float64    `json:"target_pct"`
	Actual   float64    `json:"actual_pct"`
	Deficit  float64    `json:"deficit_pct"`
	Count    int        `json:"count"`
	LastUsed *time.Time `json:"last_used,omitempty"`
}

// MixTracker compares an owner's configured pillar mix against recent
// output and ranks pillars by how far behind target they are.
type MixTracker struct {
	store    *store.Store
	lookback time.Duration
}

// NewMixTracker creates a mix tracker. The measurement window is taken from
// PILLAR_WINDOW_DAYS when set.
func NewMixTracker(s *store.Store) *MixTracker {
	days := config.GetEnvInt("PILLAR_WINDOW_DAYS", defaultPillarWindowDays)
	return &MixTracker{store: s, lookback: time.Duration(days) * 24 * time.Hour}
}

// Standings returns every configured pillar ordered most-underserved first.
// Ties on deficit go to the least recently used pillar; pillars with no
// history at all sort before any used pillar, higher target first, then by
// name so the ordering is fully deterministic.
func (m *MixTracker) Standings(ctx context.Context, ownerID string, now time.Time) ([]PillarStanding, error) {
	targets, err := m.store.GetPillarTargets(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	counts, err := m.store.PillarCounts(ctx, ownerID, now.Add(-m.lookback))
	if err != nil {
		return nil, err
	}
	lastUsed, err := m.store.PillarLastUsed(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, t := range targets {
		total += counts[t.Pillar]
	}

	standings := make([]PillarStanding, 0, len(targets))
	for _, t := range targets {
		s := PillarStanding{
			Pillar: t.Pillar,
			Target: float64(t.Percentage),
			Count:  counts[t.Pillar],
		}
		if total > 0 {
			s.Actual = float64(s.Count) / float64(total) * 100
		}
		s.Deficit = s.Target - s.Actual
		if used, ok := lastUsed[t.Pillar]; ok {
			u := used
			s.LastUsed = &u
		}
		standings = append(standings, s)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Deficit != b.Deficit {
			return a.Deficit > b.Deficit
		}
		switch {
		case a.LastUsed == nil && b.LastUsed != nil:
			return true
		case a.LastUsed != nil && b.LastUsed == nil:
			return false
		case a.LastUsed != nil && b.LastUsed != nil && !a.LastUsed.Equal(*b.LastUsed):
			return a.LastUsed.Before(*b.LastUsed)
		}
		if a.Target != b.Target {
			return a.Target > b.Target
		}
		return a.Pillar < b.Pillar
	})
	return standings, nil
}

// NextPillar picks the pillar the next generated item should serve. An
// empty pillar means the owner has no configured mix and items go untagged.
func (m *MixTracker) NextPillar(ctx context.Context, ownerID string, now time.Time) (string, error) {
	standings, err := m.Standings(ctx, ownerID, now)
	if err != nil {
		return "", err
	}
	if len(standings) == 0 {
		return "", nil
	}
	return standings[0].Pillar, nil
}

// Targets returns the owner's configured mix.
func (m *MixTracker) Targets(ctx context.Context, ownerID string) ([]models.PillarTarget, error) {
	return m.store.GetPillarTargets(ctx, ownerID)
}

// SetTargets validates and replaces the owner's mix. Shares must be
// positive and sum to exactly 100.
func (m *MixTracker) SetTargets(ctx context.Context, ownerID string, targets []models.PillarTarget) error {
	if len(targets) == 0 {
		return NewValidationError("pillars", "at least one pillar is required")
	}
	sum := 0
	seen := make(map[string]bool, len(targets))
	for i := range targets {
		t := &targets[i]
		if t.Pillar == "" {
			return NewValidationError("pillar", "name must not be empty")
		}
		if seen[t.Pillar] {
			return NewValidationError("pillar", "duplicate pillar "+t.Pillar)
		}
		seen[t.Pillar] = true
		if t.Percentage <= 0 || t.Percentage > 100 {
			return NewValidationError("percentage", "must be between 1 and 100")
		}
		t.OwnerID = ownerID
		sum += t.Percentage
	}
	if sum != 100 {
		return NewValidationError("percentage", "shares must sum to exactly 100")
	}
	return m.store.ReplacePillarTargets(ctx, ownerID, targets)
}
