package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenradar/internal/domain"
)

func snapshotRecord(address string, scannedAt time.Time) *domain.TokenRecord {
	return &domain.TokenRecord{
		Address: address,
		Chain:   domain.ChainEthereum,
		Symbol:  "GOOD",
		Market: domain.MarketData{
			PriceUSD:       1.25,
			PriceChange1h:  2,
			PriceChange24h: 15,
			Volume24hUSD:   2000000,
			LiquidityUSD:   1200000,
			MarketCapUSD:   9000000,
		},
		Indicators: domain.IndicatorData{
			RSIValue:      42,
			FibonacciPct:  30,
			PumpDumpScore: 10,
			RiskScore:     5,
		},
		IsSafe: true,
		TradingSignal: &domain.Signal{
			Action:     domain.ActionBuy,
			Confidence: 72,
		},
		ScannedAt: scannedAt,
	}
}

func TestSnapshotArchive_AppendAndCount(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewSnapshotArchive(conn)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, archive.Append(ctx, snapshotRecord("0xaaa", now)))
	require.NoError(t, archive.Append(ctx, snapshotRecord("0xbbb", now)))
	require.NoError(t, archive.Append(ctx, snapshotRecord("0xold", now.Add(-48*time.Hour))))

	count, err := archive.CountSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The archive is append-only: a re-scan of the same token adds a row.
	require.NoError(t, archive.Append(ctx, snapshotRecord("0xaaa", now.Add(time.Minute))))
	count, err = archive.CountSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSnapshotArchive_RowContents(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewSnapshotArchive(conn)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, archive.Append(ctx, snapshotRecord("0xrow", now)))

	var (
		chain      string
		priceUSD   float64
		isSafe     uint8
		action     string
		confidence float64
		recordJSON string
	)
	err := conn.QueryRow(ctx, `
		SELECT chain, price_usd, is_safe, signal_action, signal_confidence, record_json
		FROM scan_snapshots
		WHERE address = ?
	`, "0xrow").Scan(&chain, &priceUSD, &isSafe, &action, &confidence, &recordJSON)
	require.NoError(t, err)

	assert.Equal(t, "ethereum", chain)
	assert.Equal(t, 1.25, priceUSD)
	assert.Equal(t, uint8(1), isSafe)
	assert.Equal(t, "BUY", action)
	assert.Equal(t, 72.0, confidence)
	assert.Contains(t, recordJSON, `"symbol":"GOOD"`)
}
