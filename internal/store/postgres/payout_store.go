package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// PayoutStore implements domain.PayoutStore using PostgreSQL.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PayoutStore backed by the given pool.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

// Insert records a completed claim.
func (s *PayoutStore) Insert(ctx context.Context, p domain.Payout) error {
	const query = `
		INSERT INTO payouts (market_id, "user", amount, claimed_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, p.MarketID, p.User, p.Amount, p.ClaimedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert payout %d/%s: %w", p.MarketID, p.User, err)
	}
	return nil
}

// ListByMarket returns payouts for a market in claim order.
func (s *PayoutStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.Payout, error) {
	const query = `
		SELECT market_id, "user", amount, claimed_at
		FROM payouts
		WHERE market_id = $1
		ORDER BY claimed_at`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payouts for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.Payout
	for rows.Next() {
		var p domain.Payout
		if err := rows.Scan(&p.MarketID, &p.User, &p.Amount, &p.ClaimedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan payout: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate payouts: %w", err)
	}
	return out, nil
}

// Leaderboard aggregates lifetime staked and claimed totals per user,
// ordered by total claimed descending.
func (s *PayoutStore) Leaderboard(ctx context.Context, limit int) ([]domain.UserTotals, error) {
	const query = `
		SELECT u."user",
		       COALESCE(st.total_staked, 0),
		       COALESCE(po.total_claimed, 0)
		FROM (
			SELECT "user" FROM stakes
			UNION
			SELECT "user" FROM payouts
		) u
		LEFT JOIN (
			SELECT "user", SUM(amount) AS total_staked FROM stakes GROUP BY "user"
		) st ON st."user" = u."user"
		LEFT JOIN (
			SELECT "user", SUM(amount) AS total_claimed FROM payouts GROUP BY "user"
		) po ON po."user" = u."user"
		ORDER BY COALESCE(po.total_claimed, 0) DESC, u."user"
		LIMIT $1`

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.UserTotals
	for rows.Next() {
		var t domain.UserTotals
		if err := rows.Scan(&t.User, &t.TotalStaked, &t.TotalClaimed); err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate leaderboard: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.PayoutStore = (*PayoutStore)(nil)
