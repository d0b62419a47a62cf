package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tokenradar/internal/domain"
	"tokenradar/internal/storage"
)

// SnapshotArchive implements storage.SnapshotArchive using ClickHouse.
// Every committed scan record is appended as one immutable row; the full
// record travels along as JSON for queries the columns do not cover.
type SnapshotArchive struct {
	conn *Conn
}

// NewSnapshotArchive creates a new SnapshotArchive.
func NewSnapshotArchive(conn *Conn) *SnapshotArchive {
	return &SnapshotArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotArchive = (*SnapshotArchive)(nil)

// Append inserts one scan snapshot row.
func (a *SnapshotArchive) Append(ctx context.Context, r *domain.TokenRecord) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	recordJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal snapshot record: %w", err)
	}

	var action string
	var confidence float64
	if r.TradingSignal != nil {
		action = string(r.TradingSignal.Action)
		confidence = r.TradingSignal.Confidence
	}

	query := `
		INSERT INTO scan_snapshots (
			scanned_at, address, chain, symbol,
			price_usd, price_change_1h, price_change_24h,
			volume_24h_usd, liquidity_usd, market_cap_usd,
			rsi_value, fibonacci_pct, pump_dump_score, risk_score,
			is_safe, is_pump_dump_suspect,
			signal_action, signal_confidence, record_json
		)
	`

	batch, err := a.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare snapshot batch: %w", err)
	}

	err = batch.Append(
		r.ScannedAt, r.Address, string(r.Chain), r.Symbol,
		r.Market.PriceUSD, r.Market.PriceChange1h, r.Market.PriceChange24h,
		r.Market.Volume24hUSD, r.Market.LiquidityUSD, r.Market.MarketCapUSD,
		r.Indicators.RSIValue, r.Indicators.FibonacciPct,
		r.Indicators.PumpDumpScore, r.Indicators.RiskScore,
		boolToUInt8(r.IsSafe), boolToUInt8(r.IsPumpDumpSuspect),
		action, confidence, string(recordJSON),
	)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send snapshot batch: %w", err)
	}
	return nil
}

// CountSince reports how many snapshots were archived at or after the cutoff.
func (a *SnapshotArchive) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count uint64
	err := a.conn.QueryRow(ctx,
		`SELECT count(*) FROM scan_snapshots WHERE scanned_at >= ?`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return int(count), nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
