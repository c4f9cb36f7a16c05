package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/songsb13/arbot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL. Every
// candidate the evaluator selects is recorded here, whether or not the cycle
// went on to execute it.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Insert records a detected candidate. Re-inserting the same ID is a no-op.
func (s *OpportunityStore) Insert(ctx context.Context, c domain.ProfitCandidate) error {
	const query = `
		INSERT INTO opportunities (
			id, symbol, direction, spread, real_diff, profit,
			tradable_quote, tradable_base, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		c.ID, string(c.Symbol), c.Direction.String(), c.Spread,
		c.RealDiff, c.Profit, c.TradableQuote, c.TradableBase, c.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", c.ID, err)
	}
	return nil
}

// MarkExecuted stamps executed_at on a recorded candidate.
func (s *OpportunityStore) MarkExecuted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET executed_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: mark executed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark executed %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns the most recently detected candidates, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ProfitCandidate, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, symbol, direction, spread, real_diff, profit,
			tradable_quote, tradable_base, detected_at
		FROM opportunities
		ORDER BY detected_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	candidates, err := scanCandidateRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	return candidates, nil
}

func scanCandidateRows(rows pgx.Rows) ([]domain.ProfitCandidate, error) {
	var candidates []domain.ProfitCandidate
	for rows.Next() {
		var (
			c          domain.ProfitCandidate
			symbol     string
			direction  string
			realDiff   decimal.Decimal
			profit     decimal.Decimal
			quote      decimal.Decimal
			base       decimal.Decimal
			detectedAt time.Time
		)
		if err := rows.Scan(
			&c.ID, &symbol, &direction, &c.Spread,
			&realDiff, &profit, &quote, &base, &detectedAt,
		); err != nil {
			return nil, err
		}
		dir, err := domain.ParseDirection(direction)
		if err != nil {
			return nil, err
		}
		c.Symbol = domain.Symbol(symbol)
		c.Direction = dir
		c.RealDiff = realDiff
		c.Profit = profit
		c.TradableQuote = quote
		c.TradableBase = base
		c.DetectedAt = detectedAt
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
