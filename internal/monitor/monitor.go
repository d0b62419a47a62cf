// Package monitor tracks open positions and closes them when price crosses
// a stop loss or take profit threshold.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tokenradar/internal/domain"
	"tokenradar/internal/storage"
)

// PriceSource yields the current price of a token from its deepest pair.
// ok=false means no pair was found; that is not an error.
type PriceSource interface {
	CurrentPrice(ctx context.Context, chain domain.Chain, address string) (float64, bool, error)
}

// ExitReceipt reports a completed exit swap.
type ExitReceipt struct {
	TxHash        string
	ExecutedPrice float64
}

// ExitFunc sells a position back to the quote asset. A nil ExitFunc puts the
// monitor in tracking-only mode where closes are recorded at market price
// without a swap.
type ExitFunc func(ctx context.Context, p *domain.Position) (*ExitReceipt, error)

// Stats are cumulative monitor counters since start.
type Stats struct {
	Ticks          int64 `json:"ticks"`
	Checked        int64 `json:"positions_checked"`
	ClosedTP       int64 `json:"closed_take_profit"`
	ClosedSL       int64 `json:"closed_stop_loss"`
	ExitFailures   int64 `json:"exit_failures"`
	SkippedNoPrice int64 `json:"skipped_no_price"`
}

// EventSink receives position lifecycle notifications. Implementations must
// not block.
type EventSink interface {
	PositionUpdated(p *domain.Position)
	PositionClosed(p *domain.Position)
}

// Monitor reprices open positions and enforces their exit thresholds. The
// cadence comes from whoever calls Tick, normally a scheduler job.
type Monitor struct {
	store  storage.PositionStore
	prices PriceSource
	exit   ExitFunc
	events EventSink
	logger zerolog.Logger

	mu    sync.Mutex
	stats Stats

	now func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithExit installs the exit swap executor.
func WithExit(exit ExitFunc) Option {
	return func(m *Monitor) {
		m.exit = exit
	}
}

// WithEvents installs the event sink.
func WithEvents(events EventSink) Option {
	return func(m *Monitor) {
		m.events = events
	}
}

// WithLogger sets the monitor logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// New creates a Monitor over the given store and price source.
func New(store storage.PositionStore, prices PriceSource, opts ...Option) *Monitor {
	m := &Monitor{
		store:  store,
		prices: prices,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tick reprices every open position once. A position without a price this
// tick is skipped, never errored: thin pairs drop off aggregators and come
// back. Tick satisfies the scheduler's job signature.
func (m *Monitor) Tick(ctx context.Context) error {
	open, err := m.store.GetOpen(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("load open positions")
		return err
	}

	m.mu.Lock()
	m.stats.Ticks++
	m.mu.Unlock()

	for _, p := range open {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.check(ctx, p)
	}
	return nil
}

func (m *Monitor) check(ctx context.Context, p *domain.Position) {
	m.mu.Lock()
	m.stats.Checked++
	m.mu.Unlock()

	price, ok, err := m.prices.CurrentPrice(ctx, p.Chain, p.Address)
	if err != nil || !ok || price <= 0 {
		m.mu.Lock()
		m.stats.SkippedNoPrice++
		m.mu.Unlock()
		m.logger.Debug().
			Str("position", p.ID).
			Str("token", p.Address).
			Err(err).
			Msg("no price this tick")
		return
	}

	p.Reprice(price, m.now())

	switch {
	case p.StopLossPrice > 0 && price <= p.StopLossPrice:
		m.close(ctx, p, price, domain.PositionClosedSL, domain.ExitReasonStopLoss)
	case p.TakeProfitPrice > 0 && price >= p.TakeProfitPrice:
		m.close(ctx, p, price, domain.PositionClosedTP, domain.ExitReasonTakeProfit)
	default:
		if err := m.store.Update(ctx, p); err != nil {
			m.logger.Error().Err(err).Str("position", p.ID).Msg("persist reprice")
			return
		}
		m.emitUpdated(p)
	}
}

// close exits the position and records exactly one closing transition. When
// the exit swap fails the position lands in ERROR with its thresholds intact
// so an operator can retry or close manually.
func (m *Monitor) close(ctx context.Context, p *domain.Position, price float64, status domain.PositionStatus, reason string) {
	exitPrice := price
	if m.exit != nil {
		receipt, err := m.exit(ctx, p)
		if err != nil {
			m.mu.Lock()
			m.stats.ExitFailures++
			m.mu.Unlock()

			p.Status = domain.PositionError
			p.Notes = fmt.Sprintf("exit swap failed (%s): %v", reason, err)
			if uerr := m.store.Update(ctx, p); uerr != nil {
				m.logger.Error().Err(uerr).Str("position", p.ID).Msg("persist error state")
			}
			m.logger.Error().
				Err(err).
				Str("position", p.ID).
				Str("reason", reason).
				Msg("exit swap failed")
			m.emitClosed(p)
			return
		}
		p.ExitTxHash = receipt.TxHash
		if receipt.ExecutedPrice > 0 {
			exitPrice = receipt.ExecutedPrice
		}
	}

	now := m.now()
	p.Status = status
	p.ExitPrice = exitPrice
	p.ExitReason = reason
	p.ClosedAt = &now
	p.Reprice(exitPrice, now)

	if err := m.store.Update(ctx, p); err != nil {
		m.logger.Error().Err(err).Str("position", p.ID).Msg("persist close")
		return
	}

	m.mu.Lock()
	if status == domain.PositionClosedTP {
		m.stats.ClosedTP++
	} else {
		m.stats.ClosedSL++
	}
	m.mu.Unlock()

	m.logger.Info().
		Str("position", p.ID).
		Str("token", p.Address).
		Str("reason", reason).
		Float64("exit_price", exitPrice).
		Float64("pnl_usd", p.PnLUSD).
		Msg("position closed")
	m.emitClosed(p)
}

// Close closes a position manually at the current market price. ERROR
// positions are accepted so a failed exit can be reconciled; an already
// closed one returns storage.ErrPositionClosed.
func (m *Monitor) Close(ctx context.Context, id string) (*domain.Position, error) {
	p, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsClosed() {
		return nil, storage.ErrPositionClosed
	}

	exitPrice := p.CurrentPrice
	if price, ok, err := m.prices.CurrentPrice(ctx, p.Chain, p.Address); err == nil && ok && price > 0 {
		exitPrice = price
	}

	if m.exit != nil {
		receipt, err := m.exit(ctx, p)
		if err != nil {
			p.Status = domain.PositionError
			p.Notes = fmt.Sprintf("exit swap failed (manual): %v", err)
			if uerr := m.store.Update(ctx, p); uerr != nil {
				return nil, errors.Join(err, uerr)
			}
			m.emitClosed(p)
			return nil, err
		}
		p.ExitTxHash = receipt.TxHash
		if receipt.ExecutedPrice > 0 {
			exitPrice = receipt.ExecutedPrice
		}
	}

	now := m.now()
	p.Status = domain.PositionClosedManual
	p.ExitPrice = exitPrice
	p.ExitReason = domain.ExitReasonManual
	p.ClosedAt = &now
	if exitPrice > 0 {
		p.Reprice(exitPrice, now)
	}

	if err := m.store.Update(ctx, p); err != nil {
		return nil, err
	}

	m.logger.Info().Str("position", p.ID).Msg("position closed manually")
	m.emitClosed(p)
	return p, nil
}

// Stats returns a snapshot of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Monitor) emitUpdated(p *domain.Position) {
	if m.events != nil {
		m.events.PositionUpdated(p)
	}
}

func (m *Monitor) emitClosed(p *domain.Position) {
	if m.events != nil {
		m.events.PositionClosed(p)
	}
}
