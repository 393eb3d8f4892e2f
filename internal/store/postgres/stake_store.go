package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// StakeStore implements domain.StakeStore using PostgreSQL.
type StakeStore struct {
	pool *pgxpool.Pool
}

// NewStakeStore creates a new StakeStore backed by the given connection pool.
func NewStakeStore(pool *pgxpool.Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

// Upsert writes the stake balance for a (market, user, outcome) triple.
func (s *StakeStore) Upsert(ctx context.Context, st domain.Stake) error {
	const query = `
		INSERT INTO stakes (market_id, "user", outcome, amount, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id, "user", outcome) DO UPDATE SET
			amount     = EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		st.MarketID, st.User, int16(st.Outcome), st.Amount, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert stake %d/%s: %w", st.MarketID, st.User, err)
	}
	return nil
}

func scanStake(row pgx.Row) (domain.Stake, error) {
	var st domain.Stake
	var outcome int16
	if err := row.Scan(&st.MarketID, &st.User, &outcome, &st.Amount, &st.UpdatedAt); err != nil {
		return domain.Stake{}, err
	}
	st.Outcome = domain.Outcome(outcome)
	return st, nil
}

// Get returns the stake balance for a (market, user, outcome) triple.
func (s *StakeStore) Get(ctx context.Context, marketID int64, user string, outcome domain.Outcome) (domain.Stake, error) {
	const query = `
		SELECT market_id, "user", outcome, amount, updated_at
		FROM stakes
		WHERE market_id = $1 AND "user" = $2 AND outcome = $3`

	st, err := scanStake(s.pool.QueryRow(ctx, query, marketID, user, int16(outcome)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stake{}, fmt.Errorf("postgres: stake %d/%s/%d: %w",
				marketID, user, outcome, domain.ErrNotFound)
		}
		return domain.Stake{}, fmt.Errorf("postgres: get stake: %w", err)
	}
	return st, nil
}

// ListByMarket returns every stake record on a market.
func (s *StakeStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.Stake, error) {
	const query = `
		SELECT market_id, "user", outcome, amount, updated_at
		FROM stakes
		WHERE market_id = $1
		ORDER BY "user", outcome`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes for market %d: %w", marketID, err)
	}
	defer rows.Close()

	return collectStakes(rows)
}

// ListByUser returns a user's stake records across markets.
func (s *StakeStore) ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Stake, error) {
	const query = `
		SELECT market_id, "user", outcome, amount, updated_at
		FROM stakes
		WHERE "user" = $1
		ORDER BY market_id, outcome
		LIMIT $2 OFFSET $3`

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, user, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes for user %s: %w", user, err)
	}
	defer rows.Close()

	return collectStakes(rows)
}

func collectStakes(rows pgx.Rows) ([]domain.Stake, error) {
	var out []domain.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate stakes: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.StakeStore = (*StakeStore)(nil)
