package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tokenradar/internal/domain"
	"tokenradar/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, user_id, address, chain, symbol,
	entry_price, amount_usd, amount_tokens, entry_tx_hash, opened_at,
	stop_loss_price, take_profit_price, slippage_pct, dex_name, status,
	current_price, current_value_usd, pnl_usd, pnl_pct, last_check,
	exit_price, exit_tx_hash, exit_reason, closed_at, notes
`

// Insert adds a new position. Returns ErrDuplicateKey if the ID exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25
		)
	`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.UserID, p.Address, string(p.Chain), p.Symbol,
		p.EntryPrice, p.AmountUSD, p.AmountTokens, p.EntryTxHash, p.OpenedAt,
		p.StopLossPrice, p.TakeProfitPrice, p.SlippagePct, p.DexName, string(p.Status),
		p.CurrentPrice, p.CurrentValueUSD, p.PnLUSD, p.PnLPct, nullableTime(p.LastCheck),
		p.ExitPrice, p.ExitTxHash, p.ExitReason, p.ClosedAt, p.Notes,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// GetOpen retrieves all OPEN positions, ordered by opened_at ASC.
func (s *PositionStore) GetOpen(ctx context.Context) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status = $1
		ORDER BY opened_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(domain.PositionOpen))
	if err != nil {
		return nil, fmt.Errorf("get open positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetByUser retrieves a user's positions, newest first. An empty status
// matches all statuses.
func (s *PositionStore) GetByUser(ctx context.Context, userID string, status domain.PositionStatus) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY opened_at DESC, id DESC
	`

	rows, err := s.pool.Query(ctx, query, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("get positions by user: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// Update persists a mutated position. The stored status must be OPEN or
// ERROR: closed positions never transition again, while ERROR still accepts
// a retried exit.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE positions SET
			status = $2,
			current_price = $3, current_value_usd = $4, pnl_usd = $5, pnl_pct = $6,
			last_check = $7,
			stop_loss_price = $8, take_profit_price = $9,
			exit_price = $10, exit_tx_hash = $11, exit_reason = $12, closed_at = $13,
			notes = $14
		WHERE id = $1 AND status IN ($15, $16)
	`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, string(p.Status),
		p.CurrentPrice, p.CurrentValueUSD, p.PnLUSD, p.PnLPct,
		nullableTime(p.LastCheck),
		p.StopLossPrice, p.TakeProfitPrice,
		p.ExitPrice, p.ExitTxHash, p.ExitReason, p.ClosedAt,
		p.Notes,
		string(domain.PositionOpen), string(domain.PositionError),
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Guarded update matched nothing: either the row is missing or it is
	// already closed.
	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM positions WHERE id = $1`, p.ID).Scan(&status)
	if isNotFoundError(err) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check position status: %w", err)
	}
	return storage.ErrPositionClosed
}

// CountOpenedSince counts positions opened at or after the cutoff.
func (s *PositionStore) CountOpenedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM positions WHERE opened_at >= $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count opened since: %w", err)
	}
	return count, nil
}

// RealizedPnLSince sums realized PnL of positions closed at or after the cutoff.
func (s *PositionStore) RealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl_usd), 0) FROM positions WHERE closed_at IS NOT NULL AND closed_at >= $1`,
		since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum realized pnl: %w", err)
	}
	return total, nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var chain, status string
	var lastCheck *time.Time

	err := row.Scan(
		&p.ID, &p.UserID, &p.Address, &chain, &p.Symbol,
		&p.EntryPrice, &p.AmountUSD, &p.AmountTokens, &p.EntryTxHash, &p.OpenedAt,
		&p.StopLossPrice, &p.TakeProfitPrice, &p.SlippagePct, &p.DexName, &status,
		&p.CurrentPrice, &p.CurrentValueUSD, &p.PnLUSD, &p.PnLPct, &lastCheck,
		&p.ExitPrice, &p.ExitTxHash, &p.ExitReason, &p.ClosedAt, &p.Notes,
	)
	if err != nil {
		return nil, err
	}

	p.Chain = domain.Chain(chain)
	p.Status = domain.PositionStatus(status)
	if lastCheck != nil {
		p.LastCheck = *lastCheck
	}
	return &p, nil
}

// scanPositions scans multiple rows into a slice of Position.
func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
