package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// PricePointStore implements domain.PricePointStore using PostgreSQL. The
// table is append-only: one row per successful stake, carrying the
// post-stake implied prices.
type PricePointStore struct {
	pool *pgxpool.Pool
}

// NewPricePointStore creates a new PricePointStore backed by the given pool.
func NewPricePointStore(pool *pgxpool.Pool) *PricePointStore {
	return &PricePointStore{pool: pool}
}

// Append inserts one price point.
func (s *PricePointStore) Append(ctx context.Context, p domain.PricePoint) error {
	const query = `
		INSERT INTO price_points (market_id, ts, yes_cents, no_cents, outcome, amount, "user")
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		p.MarketID, p.Timestamp, p.YesCents, p.NoCents,
		int16(p.Outcome), p.Amount, p.User,
	)
	if err != nil {
		return fmt.Errorf("postgres: append price point for market %d: %w", p.MarketID, err)
	}
	return nil
}

// ListByMarket returns a market's price history in timestamp order,
// optionally bounded by Since/Until.
func (s *PricePointStore) ListByMarket(ctx context.Context, marketID int64, opts domain.ListOpts) ([]domain.PricePoint, error) {
	query := `
		SELECT market_id, ts, yes_cents, no_cents, outcome, amount, "user"
		FROM price_points
		WHERE market_id = $1`
	args := []any{marketID}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY ts LIMIT $%d", len(args))
	args = append(args, opts.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list price points for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var outcome int16
		if err := rows.Scan(&p.MarketID, &p.Timestamp, &p.YesCents, &p.NoCents,
			&outcome, &p.Amount, &p.User); err != nil {
			return nil, fmt.Errorf("postgres: scan price point: %w", err)
		}
		p.Outcome = domain.Outcome(outcome)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate price points: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.PricePointStore = (*PricePointStore)(nil)
