package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Create inserts a new market row.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, market_type, oracle_url, close_time,
			resolved, winning_outcome, evidence_ref,
			pool_no, pool_yes, created_at, resolved_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.MarketType, m.OracleURL, m.CloseTime,
		m.Resolved, int16(m.WinningOutcome), m.EvidenceRef,
		m.Pools[domain.OutcomeNo], m.Pools[domain.OutcomeYes],
		m.CreatedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %d: %w", m.ID, err)
	}
	return nil
}

// Update replaces the mutable state of a market (pools, resolution fields).
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			resolved        = $2,
			winning_outcome = $3,
			evidence_ref    = $4,
			pool_no         = $5,
			pool_yes        = $6,
			resolved_at     = $7
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.Resolved, int16(m.WinningOutcome), m.EvidenceRef,
		m.Pools[domain.OutcomeNo], m.Pools[domain.OutcomeYes], m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update market %d: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

const marketColumns = `
	id, question, market_type, oracle_url, close_time,
	resolved, winning_outcome, evidence_ref,
	pool_no, pool_yes, created_at, resolved_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var outcome int16
	err := row.Scan(
		&m.ID, &m.Question, &m.MarketType, &m.OracleURL, &m.CloseTime,
		&m.Resolved, &outcome, &m.EvidenceRef,
		&m.Pools[domain.OutcomeNo], &m.Pools[domain.OutcomeYes],
		&m.CreatedAt, &m.ResolvedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.WinningOutcome = domain.Outcome(outcome)
	return m, nil
}

// GetByID returns a market by id; domain.ErrNotFound for missing rows.
func (s *MarketStore) GetByID(ctx context.Context, id int64) (domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %d: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by id with pagination.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets ORDER BY id LIMIT $1 OFFSET $2`

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	return out, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
