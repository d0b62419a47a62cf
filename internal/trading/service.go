// Package trading turns scored tokens into validated signals and executed
// positions, enforcing the account-level safety rails.
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokenradar/internal/domain"
	"tokenradar/internal/monitor"
	"tokenradar/internal/scoring"
	"tokenradar/internal/storage"
	"tokenradar/internal/validator"
)

var (
	// ErrEmergencyStop blocks all execution while the kill switch is set.
	ErrEmergencyStop = errors.New("trading: emergency stop engaged")

	// ErrLimitExceeded means a daily or open-position limit blocks the trade.
	ErrLimitExceeded = errors.New("trading: limit exceeded")

	// ErrNotExecutable means the validated signal does not clear the
	// execution bar.
	ErrNotExecutable = errors.New("trading: signal not executable")

	// ErrExecutionFailed wraps a failed entry swap. No position is recorded.
	ErrExecutionFailed = errors.New("trading: execution failed")
)

// signalTTL bounds how long an analyze result is served from cache.
const signalTTL = 5 * time.Minute

// TradeReceipt reports a completed entry swap.
type TradeReceipt struct {
	TxHash        string
	AmountTokens  float64
	ExecutedPrice float64
	DexName       string
	GasCostNative float64
}

// TradeExecutor performs the on-chain side of a trade.
type TradeExecutor interface {
	// Buy swaps amountUSD of quote asset into the token.
	Buy(ctx context.Context, chain domain.Chain, token string, amountUSD, slippagePct float64) (*TradeReceipt, error)

	// Sell swaps a token amount back into the quote asset.
	Sell(ctx context.Context, chain domain.Chain, token string, amountTokens, slippagePct float64) (*TradeReceipt, error)
}

// SignalValidator is the LLM second-opinion surface. Nil disables validation.
type SignalValidator interface {
	Validate(ctx context.Context, s *domain.Signal, r *domain.TokenRecord, profile validator.UserProfile) *domain.ValidatedSignal
}

// Limits are the account-level safety rails checked before every trade.
type Limits struct {
	MaxOpenPositions     int
	MaxDailyTrades       int
	MaxDailyLossUSD      float64
	MinConfidenceToTrade float64
	DefaultSlippagePct   float64
	EmergencyStop        bool
}

// Service coordinates scoring, validation, and execution.
type Service struct {
	cache     storage.TokenCache
	positions storage.PositionStore
	signals   storage.SignalCache
	engine    *scoring.Engine
	validator SignalValidator
	executor  TradeExecutor
	limits    Limits
	logger    zerolog.Logger

	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithValidator installs the LLM validator.
func WithValidator(v SignalValidator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithExecutor installs the on-chain trade executor.
func WithExecutor(e TradeExecutor) Option {
	return func(s *Service) {
		s.executor = e
	}
}

// WithSignalCache installs the analyze-result cache.
func WithSignalCache(c storage.SignalCache) Option {
	return func(s *Service) {
		s.signals = c
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a trading service.
func New(cache storage.TokenCache, positions storage.PositionStore, engine *scoring.Engine, limits Limits, opts ...Option) *Service {
	s := &Service{
		cache:     cache,
		positions: positions,
		engine:    engine,
		limits:    limits,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signal computes or recalls the deterministic signal for a scanned token.
// Returns storage.ErrNotFound when the token is not in the cache.
func (s *Service) Signal(ctx context.Context, address string, chain domain.Chain) (*domain.Signal, *domain.TokenRecord, error) {
	record, err := s.cache.Get(ctx, address, chain)
	if err != nil {
		return nil, nil, err
	}

	key := record.Key()
	if s.signals != nil {
		if cached, err := s.signals.Get(ctx, key); err == nil {
			return cached, record, nil
		}
	}

	signal := s.engine.Score(record)
	if s.signals != nil {
		if err := s.signals.Put(ctx, key, signal, signalTTL); err != nil {
			s.logger.Warn().Err(err).Str("token", address).Msg("signal cache put failed")
		}
	}
	return signal, record, nil
}

// Analyze produces a validated signal for a scanned token. When the
// validator is absent or unreachable the signal comes back with validation
// status error and the original action retained.
func (s *Service) Analyze(ctx context.Context, address string, chain domain.Chain, profile validator.UserProfile) (*domain.ValidatedSignal, error) {
	signal, record, err := s.Signal(ctx, address, chain)
	if err != nil {
		return nil, err
	}

	if s.validator == nil {
		return &domain.ValidatedSignal{
			Signal:             *signal,
			Status:             domain.ValidationError,
			FinalAction:        signal.Action,
			AdjustedConfidence: signal.Confidence,
			Warnings:           []string{"AI validation unavailable - original signal retained"},
			ValidatedAt:        s.now().UTC(),
		}, nil
	}
	return s.validator.Validate(ctx, signal, record, profile), nil
}

// ExecuteRequest describes a trade to open.
type ExecuteRequest struct {
	Address string
	Chain   domain.Chain
	UserID  string

	// AmountUSD overrides the signal's position sizing when > 0.
	AmountUSD float64

	// SlippagePct falls back to the configured default when 0.
	SlippagePct float64

	Profile validator.UserProfile
}

// Execute analyzes, checks the safety rails, performs the entry swap, and
// records the position. The position exists only after a successful swap.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*domain.Position, *domain.ValidatedSignal, error) {
	if s.limits.EmergencyStop {
		return nil, nil, ErrEmergencyStop
	}
	if s.executor == nil {
		return nil, nil, fmt.Errorf("%w: no trade executor configured", ErrExecutionFailed)
	}

	validated, err := s.Analyze(ctx, req.Address, req.Chain, req.Profile)
	if err != nil {
		return nil, nil, err
	}
	if !validated.ShouldExecute(s.limits.MinConfidenceToTrade) {
		return nil, validated, fmt.Errorf("%w: action %s at confidence %.1f",
			ErrNotExecutable, validated.FinalAction, validated.AdjustedConfidence)
	}

	if err := s.checkLimits(ctx); err != nil {
		return nil, validated, err
	}

	amountUSD := req.AmountUSD
	if amountUSD <= 0 {
		// Position sizing percent applies against a notional account size
		// the caller expresses through AmountUSD; without it, trade the
		// signal's suggested size as whole dollars.
		amountUSD = validated.Signal.PositionSizePct * 10
	}
	slippage := req.SlippagePct
	if slippage <= 0 {
		slippage = s.limits.DefaultSlippagePct
	}

	stopLoss, takeProfit := validated.Signal.StopLoss, validated.Signal.TakeProfit
	if validated.AdjustedTargets != nil {
		if validated.AdjustedTargets.StopLoss > 0 {
			stopLoss = validated.AdjustedTargets.StopLoss
		}
		if validated.AdjustedTargets.TakeProfit > 0 {
			takeProfit = validated.AdjustedTargets.TakeProfit
		}
	}

	receipt, err := s.executor.Buy(ctx, req.Chain, req.Address, amountUSD, slippage)
	if err != nil {
		s.logger.Error().Err(err).
			Str("token", req.Address).
			Str("chain", string(req.Chain)).
			Msg("entry swap failed")
		return nil, validated, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	now := s.now().UTC()
	p := &domain.Position{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Address:         req.Address,
		Chain:           req.Chain,
		EntryPrice:      receipt.ExecutedPrice,
		AmountUSD:       amountUSD,
		AmountTokens:    receipt.AmountTokens,
		EntryTxHash:     receipt.TxHash,
		OpenedAt:        now,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		SlippagePct:     slippage,
		DexName:         receipt.DexName,
		Status:          domain.PositionOpen,
	}
	if record, err := s.cache.Get(ctx, req.Address, req.Chain); err == nil {
		p.Symbol = record.Symbol
	}
	p.Reprice(receipt.ExecutedPrice, now)

	if err := s.positions.Insert(ctx, p); err != nil {
		// The swap went through but the position could not be stored. This
		// is the one state an operator must reconcile by hand.
		s.logger.Error().Err(err).
			Str("tx", receipt.TxHash).
			Str("token", req.Address).
			Msg("position insert failed after successful swap")
		return nil, validated, fmt.Errorf("record position (tx %s): %w", receipt.TxHash, err)
	}

	s.logger.Info().
		Str("position", p.ID).
		Str("token", req.Address).
		Str("chain", string(req.Chain)).
		Float64("amount_usd", amountUSD).
		Str("tx", receipt.TxHash).
		Msg("position opened")

	return p, validated, nil
}

// Seller adapts the executor into the monitor's exit hook. Returns nil when
// no executor is configured, which puts the monitor in tracking-only mode.
func (s *Service) Seller() monitor.ExitFunc {
	if s.executor == nil {
		return nil
	}
	return func(ctx context.Context, p *domain.Position) (*monitor.ExitReceipt, error) {
		slippage := p.SlippagePct
		if slippage <= 0 {
			slippage = s.limits.DefaultSlippagePct
		}
		receipt, err := s.executor.Sell(ctx, p.Chain, p.Address, p.AmountTokens, slippage)
		if err != nil {
			return nil, err
		}
		return &monitor.ExitReceipt{TxHash: receipt.TxHash, ExecutedPrice: receipt.ExecutedPrice}, nil
	}
}

// checkLimits enforces open-position count, daily trade count, and daily
// realized loss.
func (s *Service) checkLimits(ctx context.Context) error {
	open, err := s.positions.GetOpen(ctx)
	if err != nil {
		return err
	}
	if len(open) >= s.limits.MaxOpenPositions {
		return fmt.Errorf("%w: %d open positions (max %d)",
			ErrLimitExceeded, len(open), s.limits.MaxOpenPositions)
	}

	midnight := s.midnight()
	trades, err := s.positions.CountOpenedSince(ctx, midnight)
	if err != nil {
		return err
	}
	if trades >= s.limits.MaxDailyTrades {
		return fmt.Errorf("%w: %d trades today (max %d)",
			ErrLimitExceeded, trades, s.limits.MaxDailyTrades)
	}

	pnl, err := s.positions.RealizedPnLSince(ctx, midnight)
	if err != nil {
		return err
	}
	if s.limits.MaxDailyLossUSD > 0 && pnl <= -s.limits.MaxDailyLossUSD {
		return fmt.Errorf("%w: realized loss %.2f today (max %.2f)",
			ErrLimitExceeded, -pnl, s.limits.MaxDailyLossUSD)
	}
	return nil
}

func (s *Service) midnight() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
