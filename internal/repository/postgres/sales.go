package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// SaleRepository implements port.SaleRepository for PostgreSQL. It is
// append-only: no method here issues an UPDATE or DELETE against
// gateway.sales.
type SaleRepository struct {
	pool    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewSaleRepository(pool pgExecutor) *SaleRepository {
	return &SaleRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *SaleRepository) Insert(ctx context.Context, sale domain.Sale) error {
	sql, args, err := r.builder.Insert("gateway.sales").
		Columns("ts", "amount", "mac", "source_id", "committed_by").
		Values(sale.Timestamp, sale.Amount, sale.MAC, sale.SourceID, sale.CommittedBy).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert sale sql: %w", err)
	}
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (r *SaleRepository) RangeTotal(ctx context.Context, from, to time.Time) (int64, error) {
	sql, args, err := r.builder.Select("COALESCE(SUM(amount), 0)").From("gateway.sales").
		Where(squirrel.And{squirrel.GtOrEq{"ts": from}, squirrel.Lt{"ts": to}}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build range total sql: %w", err)
	}
	var total int64
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("range total: %w", err)
	}
	return total, nil
}

func (r *SaleRepository) BySource(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	sql, args, err := r.builder.Select("source_id", "COALESCE(SUM(amount), 0)").From("gateway.sales").
		Where(squirrel.And{squirrel.GtOrEq{"ts": from}, squirrel.Lt{"ts": to}}).
		GroupBy("source_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build by source sql: %w", err)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("by source: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var sourceID string
		var amount int64
		if err := rows.Scan(&sourceID, &amount); err != nil {
			return nil, fmt.Errorf("scan by source row: %w", err)
		}
		totals[sourceID] = amount
	}
	return totals, rows.Err()
}
