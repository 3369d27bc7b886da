package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/repository"
)

// SourceRepository implements port.SourceRepository for PostgreSQL.
type SourceRepository struct {
	pool    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewSourceRepository(pool pgExecutor) *SourceRepository {
	return &SourceRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *SourceRepository) Upsert(ctx context.Context, s domain.Source) error {
	sql, args, err := r.builder.Insert("gateway.sources").
		Columns("id", "kind", "label", "secret_hash", "pulse_value", "enabled", "rate_up_kbps", "rate_down_kbps", "last_pulse_at", "last_seen_at", "created_at").
		Values(s.ID, s.Kind, s.Label, s.SecretHash, s.PulseValue, s.Enabled, s.RateUpKbps, s.RateDownKbps, s.LastPulseAt, s.LastSeenAt, s.CreatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			secret_hash = EXCLUDED.secret_hash,
			pulse_value = EXCLUDED.pulse_value,
			enabled = EXCLUDED.enabled,
			rate_up_kbps = EXCLUDED.rate_up_kbps,
			rate_down_kbps = EXCLUDED.rate_down_kbps,
			last_pulse_at = EXCLUDED.last_pulse_at,
			last_seen_at = EXCLUDED.last_seen_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert source sql: %w", err)
	}
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

func (r *SourceRepository) FindByID(ctx context.Context, id string) (*domain.Source, error) {
	sql, args, err := r.builder.Select(sourceColumns...).From("gateway.sources").
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find source sql: %w", err)
	}
	s, err := scanSource(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	return s, nil
}

func (r *SourceRepository) List(ctx context.Context) ([]domain.Source, error) {
	sql, args, err := r.builder.Select(sourceColumns...).From("gateway.sources").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sources sql: %w", err)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SourceRepository) Touch(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "UPDATE gateway.sources SET last_seen_at = now() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("touch source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var sourceColumns = []string{
	"id", "kind", "label", "secret_hash", "pulse_value", "enabled", "rate_up_kbps", "rate_down_kbps", "last_pulse_at", "last_seen_at", "created_at",
}

func scanSource(row rowScanner) (*domain.Source, error) {
	var s domain.Source
	if err := row.Scan(&s.ID, &s.Kind, &s.Label, &s.SecretHash, &s.PulseValue, &s.Enabled,
		&s.RateUpKbps, &s.RateDownKbps, &s.LastPulseAt, &s.LastSeenAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
