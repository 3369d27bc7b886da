package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/repository"
)

// UserRepository implements port.UserRepository for PostgreSQL.
type UserRepository struct {
	pool    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewUserRepository(pool pgExecutor) *UserRepository {
	return &UserRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *UserRepository) Create(ctx context.Context, u domain.User) error {
	sql, args, err := r.builder.Insert("gateway.users").
		Columns("mac", "client_id", "ip", "user_code", "credit_seconds", "total_seconds_ever",
			"rate_down_kbps", "rate_up_kbps", "paused", "connected", "last_traffic_at", "last_seen_at", "session_expiry_at").
		Values(u.MAC, u.ClientID, u.IP, u.UserCode, u.CreditSeconds, u.TotalSecondsEver,
			u.RateDownKbps, u.RateUpKbps, u.Paused, u.Connected, u.LastTrafficAt, u.LastSeenAt, u.SessionExpiryAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u domain.User) error {
	sql, args, err := r.builder.Update("gateway.users").
		Set("mac", u.MAC).
		Set("client_id", u.ClientID).
		Set("ip", u.IP).
		Set("user_code", u.UserCode).
		Set("credit_seconds", u.CreditSeconds).
		Set("total_seconds_ever", u.TotalSecondsEver).
		Set("rate_down_kbps", u.RateDownKbps).
		Set("rate_up_kbps", u.RateUpKbps).
		Set("paused", u.Paused).
		Set("connected", u.Connected).
		Set("last_traffic_at", u.LastTrafficAt).
		Set("last_seen_at", u.LastSeenAt).
		Set("session_expiry_at", u.SessionExpiryAt).
		Where(squirrel.Eq{"id": u.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Eq{"id": userID})
}

func (r *UserRepository) FindByMAC(ctx context.Context, mac string) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Expr("lower(mac) = lower(?)", mac))
}

func (r *UserRepository) FindByClientID(ctx context.Context, clientID string) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Eq{"client_id": clientID})
}

func (r *UserRepository) FindByUserCode(ctx context.Context, code string) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Expr("upper(user_code) = upper(?)", code))
}

func (r *UserRepository) FindByIP(ctx context.Context, ip string) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Eq{"ip": ip})
}

func (r *UserRepository) findOne(ctx context.Context, pred squirrel.Sqlizer) (*domain.User, error) {
	sql, args, err := r.builder.Select(userColumns...).From("gateway.users").Where(pred).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}
	row := r.pool.QueryRow(ctx, sql, args...)
	u, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// ClaimMAC enforces the single-owner invariant: it deletes any stale
// record on newMAC before rewriting userID's mac field. Both statements
// run in one transaction since the invariant must never be observed
// half-applied.
func (r *UserRepository) ClaimMAC(ctx context.Context, userID, newMAC string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("claim mac: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM gateway.users WHERE lower(mac) = lower($1) AND id <> $2", newMAC, userID); err != nil {
		return fmt.Errorf("claim mac: delete stale: %w", err)
	}
	tag, err := tx.Exec(ctx, "UPDATE gateway.users SET mac = $1 WHERE id = $2", newMAC, userID)
	if err != nil {
		return fmt.Errorf("claim mac: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

// AssignIP clears ip on any other record first, then writes it, honoring
// the partial unique index on active ip ownership.
func (r *UserRepository) AssignIP(ctx context.Context, userID, ip string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assign ip: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "UPDATE gateway.users SET ip = NULL WHERE ip = $1 AND id <> $2", ip, userID); err != nil {
		return fmt.Errorf("assign ip: clear stale: %w", err)
	}
	tag, err := tx.Exec(ctx, "UPDATE gateway.users SET ip = $1 WHERE id = $2", ip, userID)
	if err != nil {
		return fmt.Errorf("assign ip: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *UserRepository) Decrement(ctx context.Context, userID string, seconds int64) (int64, error) {
	var newBalance int64
	err := r.pool.QueryRow(ctx,
		"UPDATE gateway.users SET credit_seconds = GREATEST(credit_seconds - $1, 0) WHERE id = $2 RETURNING credit_seconds",
		seconds, userID).Scan(&newBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("decrement: %w", err)
	}
	return newBalance, nil
}

func (r *UserRepository) Pause(ctx context.Context, userID string) error {
	return r.execOne(ctx, "UPDATE gateway.users SET paused = true, connected = false WHERE id = $1", userID)
}

func (r *UserRepository) Resume(ctx context.Context, userID string) error {
	return r.execOne(ctx, "UPDATE gateway.users SET paused = false, connected = true WHERE id = $1", userID)
}

func (r *UserRepository) Expire(ctx context.Context, userID string) error {
	return r.execOne(ctx, "UPDATE gateway.users SET credit_seconds = 0, connected = false WHERE id = $1", userID)
}

func (r *UserRepository) execOne(ctx context.Context, sql, userID string) error {
	tag, err := r.pool.Exec(ctx, sql, userID)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// IterateActive streams every user with credit_seconds>0 AND !paused.
func (r *UserRepository) IterateActive(ctx context.Context, fn func(domain.User) error) error {
	sql, args, err := r.builder.Select(userColumns...).From("gateway.users").
		Where(squirrel.And{squirrel.Gt{"credit_seconds": 0}, squirrel.Eq{"paused": false}}).ToSql()
	if err != nil {
		return fmt.Errorf("build iterate active sql: %w", err)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("iterate active: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return fmt.Errorf("scan active user: %w", err)
		}
		if err := fn(*u); err != nil {
			return err
		}
	}
	return rows.Err()
}

var userColumns = []string{
	"id", "mac", "client_id", "ip", "user_code", "credit_seconds", "total_seconds_ever",
	"rate_down_kbps", "rate_up_kbps", "paused", "connected", "last_traffic_at", "last_seen_at", "session_expiry_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.MAC, &u.ClientID, &u.IP, &u.UserCode, &u.CreditSeconds, &u.TotalSecondsEver,
		&u.RateDownKbps, &u.RateUpKbps, &u.Paused, &u.Connected, &u.LastTrafficAt, &u.LastSeenAt, &u.SessionExpiryAt); err != nil {
		return nil, err
	}
	return &u, nil
}
