package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// RateRepository implements port.RateRepository for PostgreSQL. Rates
// default-visible to every source; gateway.source_rates rows narrow
// visibility to a subset of sources (a coin slot that only speaks a
// restricted denomination set, for example).
type RateRepository struct {
	pool    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewRateRepository(pool pgExecutor) *RateRepository {
	return &RateRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *RateRepository) List(ctx context.Context) ([]domain.Rate, error) {
	sql, args, err := r.builder.Select(rateColumns...).From("gateway.rates").OrderBy("amount").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list rates sql: %w", err)
	}
	return r.query(ctx, sql, args...)
}

func (r *RateRepository) VisibleTo(ctx context.Context, sourceID string) ([]domain.Rate, error) {
	sql, args, err := r.builder.Select("r.id", "r.amount", "r.minutes", "r.rate_up_kbps", "r.rate_down_kbps").
		From("gateway.rates r").
		Where(`NOT EXISTS (SELECT 1 FROM gateway.source_rates sr WHERE sr.rate_id = r.id) OR
			EXISTS (SELECT 1 FROM gateway.source_rates sr WHERE sr.rate_id = r.id AND sr.source_id = ?)`, sourceID).
		OrderBy("r.amount").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build visible rates sql: %w", err)
	}
	return r.query(ctx, sql, args...)
}

func (r *RateRepository) query(ctx context.Context, sql string, args ...any) ([]domain.Rate, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query rates: %w", err)
	}
	defer rows.Close()

	var out []domain.Rate
	for rows.Next() {
		var rt domain.Rate
		if err := rows.Scan(&rt.ID, &rt.Amount, &rt.Minutes, &rt.RateUpKbps, &rt.RateDownKbps); err != nil {
			return nil, fmt.Errorf("scan rate row: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

var rateColumns = []string{"id", "amount", "minutes", "rate_up_kbps", "rate_down_kbps"}
