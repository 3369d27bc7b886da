package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/repository"
)

// FailureRepository implements port.FailureRepository for PostgreSQL,
// backing FailAttemptGate's per-MAC consecutive-failure counter.
type FailureRepository struct {
	pool pgExecutor
}

func NewFailureRepository(pool pgExecutor) *FailureRepository {
	return &FailureRepository{pool: pool}
}

func (r *FailureRepository) Get(ctx context.Context, mac string) (*domain.FailureRecord, error) {
	var f domain.FailureRecord
	f.MAC = mac
	err := r.pool.QueryRow(ctx,
		"SELECT count, kind, banned_until FROM gateway.failures WHERE lower(mac) = lower($1)", mac,
	).Scan(&f.Count, &f.Kind, &f.BannedUntil)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get failure record: %w", err)
	}
	return &f, nil
}

func (r *FailureRepository) Increment(ctx context.Context, mac string, kind domain.FailureKind) (*domain.FailureRecord, error) {
	var f domain.FailureRecord
	f.MAC = mac
	err := r.pool.QueryRow(ctx, `
		INSERT INTO gateway.failures (mac, count, kind, banned_until)
		VALUES ($1, 1, $2, NULL)
		ON CONFLICT (mac) DO UPDATE SET count = gateway.failures.count + 1, kind = EXCLUDED.kind
		RETURNING count, kind, banned_until`, mac, kind,
	).Scan(&f.Count, &f.Kind, &f.BannedUntil)
	if err != nil {
		return nil, fmt.Errorf("increment failure record: %w", err)
	}
	return &f, nil
}

func (r *FailureRepository) Ban(ctx context.Context, mac string, until time.Time) error {
	if _, err := r.pool.Exec(ctx,
		"UPDATE gateway.failures SET banned_until = $1 WHERE lower(mac) = lower($2)", until, mac,
	); err != nil {
		return fmt.Errorf("ban failure record: %w", err)
	}
	return nil
}

func (r *FailureRepository) Reset(ctx context.Context, mac string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM gateway.failures WHERE lower(mac) = lower($1)", mac); err != nil {
		return fmt.Errorf("reset failure record: %w", err)
	}
	return nil
}
