package usecase

import (
	"context"
	"sync"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
)

// RateTable holds the price table lines and per-source visibility masks
// in memory, refreshed from the RateRepository. It is read-heavy and
// protected by a plain RWMutex since rate changes are rare operator
// actions, not hot-path writes.
type RateTable struct {
	mu      sync.RWMutex
	all     []domain.Rate
	visible map[string][]domain.Rate
	repo    port.RateRepository
}

// NewRateTable constructs an empty table; call Reload to populate it.
func NewRateTable(repo port.RateRepository) *RateTable {
	return &RateTable{
		visible: make(map[string][]domain.Rate),
		repo:    repo,
	}
}

// Reload replaces the in-memory table from the repository. Called once at
// startup by the composition root; nothing reloads it afterwards.
func (t *RateTable) Reload(ctx context.Context, sourceIDs []string) error {
	all, err := t.repo.List(ctx)
	if err != nil {
		return err
	}

	visible := make(map[string][]domain.Rate, len(sourceIDs))
	for _, id := range sourceIDs {
		lines, err := t.repo.VisibleTo(ctx, id)
		if err != nil {
			return err
		}
		if len(lines) > 0 {
			visible[id] = lines
		}
	}

	t.mu.Lock()
	t.all = all
	t.visible = visible
	t.mu.Unlock()
	return nil
}

// LinesFor returns the visible-to-source subset when one is defined for
// sourceID, otherwise the full table.
func (t *RateTable) LinesFor(sourceID string) []domain.Rate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if lines, ok := t.visible[sourceID]; ok {
		return lines
	}
	return t.all
}
