// Package scoring implements the deterministic weighted scorer that turns
// an enriched token record into a trading signal.
package scoring

import (
	"fmt"
	"math"
	"time"

	"tokenradar/internal/domain"
)

// Composite weights. Risk folds in security and the pump heuristic.
const (
	weightTechnical   = 0.35
	weightFundamental = 0.25
	weightSentiment   = 0.20
	weightRisk        = 0.20
)

// Tradeability floors.
const (
	minTradeableLiquidityUSD = 10000
	maxTradeablePumpScore    = 60
)

// Safety override thresholds: an overbought token with a hot pump score is
// never bought, whatever the composite says.
const (
	overrideRSI       = 75
	overridePumpScore = 60
)

// Config bounds the engine output.
type Config struct {
	// MaxPositionSizePct caps the suggested position size. Default 10.
	MaxPositionSizePct float64
}

// DefaultConfig returns the default engine bounds.
func DefaultConfig() Config {
	return Config{MaxPositionSizePct: 10}
}

// Engine is the deterministic scorer. Given the same record it always
// produces the same signal.
type Engine struct {
	cfg Config
	now func() time.Time
}

// New creates a scoring engine.
func New(cfg Config) *Engine {
	if cfg.MaxPositionSizePct <= 0 {
		cfg.MaxPositionSizePct = 10
	}
	return &Engine{cfg: cfg, now: time.Now}
}

// Score evaluates a token record and emits a signal.
func (e *Engine) Score(r *domain.TokenRecord) *domain.Signal {
	s := &domain.Signal{
		EntryPrice: r.Market.PriceUSD,
		Indicators: domain.SignalIndicators{
			RSI:           r.Indicators.RSIValue,
			FibonacciPct:  r.Indicators.FibonacciPct,
			PumpDumpScore: r.Indicators.PumpDumpScore,
			RiskScore:     r.Indicators.RiskScore,
		},
		GeneratedAt: e.now().UTC(),
	}

	// The override outranks everything, including the tradeability check:
	// it exists to name the exact exit conditions rather than hide them
	// behind a generic refusal.
	if r.Indicators.RSIValue >= overrideRSI && r.Indicators.PumpDumpScore >= overridePumpScore {
		s.Action = domain.ActionHold
		s.Confidence = 80
		s.Reasons = []string{
			"exit conditions detected",
			fmt.Sprintf("RSI overbought (%.1f)", r.Indicators.RSIValue),
			fmt.Sprintf("pump score high (%.0f/100)", r.Indicators.PumpDumpScore),
			"wait for a correction before entering",
		}
		return s
	}

	if reason, ok := tradeable(r); !ok {
		s.Action = domain.ActionHold
		s.Confidence = 100
		s.Reasons = []string{reason}
		return s
	}

	s.TechnicalScore = technicalScore(r)
	s.FundamentalScore = fundamentalScore(r)
	s.SentimentScore = sentimentScore(r)
	s.RiskScore = riskScore(r)
	s.GlobalScore = weightTechnical*s.TechnicalScore +
		weightFundamental*s.FundamentalScore +
		weightSentiment*s.SentimentScore +
		weightRisk*s.RiskScore

	s.Action, s.Confidence, s.Reasons = decide(s, r)

	if s.Action == domain.ActionBuy {
		s.StopLoss, s.TakeProfit = targets(s.EntryPrice, r)
		s.PositionSizePct = e.positionSize(s.Confidence, s.RiskScore)
		s.RiskRewardRatio = riskReward(s.EntryPrice, s.StopLoss, s.TakeProfit)
	}

	return s
}

// tradeable checks the hard preconditions for any BUY.
func tradeable(r *domain.TokenRecord) (string, bool) {
	switch {
	case r.Security.IsHoneypot:
		return "honeypot: token cannot be sold", false
	case r.Market.LiquidityUSD < minTradeableLiquidityUSD:
		return fmt.Sprintf("insufficient liquidity ($%.0f < $%d)", r.Market.LiquidityUSD, minTradeableLiquidityUSD), false
	case r.Indicators.PumpDumpScore > maxTradeablePumpScore:
		return fmt.Sprintf("pump score too high (%.0f/100)", r.Indicators.PumpDumpScore), false
	case r.Market.PriceUSD <= 0:
		return "no valid price", false
	}
	return "", true
}

func technicalScore(r *domain.TokenRecord) float64 {
	var score float64

	// Low RSI is the buy opportunity.
	switch rsi := r.Indicators.RSIValue; {
	case rsi <= 30:
		score += 40
	case rsi <= 40:
		score += 30
	case rsi <= 60:
		score += 20
	case rsi <= 70:
		score += 10
	}

	// Position in the retracement range: near support is best.
	switch fib := r.Indicators.FibonacciPct; {
	case fib <= 23.6:
		score += 30
	case fib <= 38.2:
		score += 25
	case fib <= 61.8:
		score += 15
	case fib <= 78.6:
		score += 10
	}

	// Moderate positive momentum beats a runaway spike.
	ch24 := r.Market.PriceChange24h
	ch1 := r.Market.PriceChange1h
	switch {
	case ch24 > 0 && ch24 <= 20 && ch1 > 0:
		score += 30
	case ch24 > 0 && ch24 <= 50:
		score += 20
	case ch24 > 50:
		score += 5
	case ch24 >= -20 && ch24 < 0:
		score += 15
	}

	return score
}

func fundamentalScore(r *domain.TokenRecord) float64 {
	var score float64

	liq := r.Market.LiquidityUSD
	switch {
	case liq >= 1000000:
		score += 40
	case liq >= 500000:
		score += 35
	case liq >= 100000:
		score += 30
	case liq >= 50000:
		score += 20
	case liq >= 10000:
		score += 10
	}

	if liq > 0 {
		switch ratio := r.Market.Volume24hUSD / liq; {
		case ratio >= 0.5 && ratio <= 5:
			score += 30
		case ratio > 5 && ratio <= 10:
			score += 20
		case ratio < 0.5:
			score += 15
		}
	}

	switch conc := holderConcentration(r); {
	case conc < 20:
		score += 30
	case conc < 30:
		score += 25
	case conc < 40:
		score += 15
	case conc < 50:
		score += 10
	}

	return score
}

// holderConcentration sums the top-5 holder shares, falling back to the
// larger of creator and owner share when no holder list was returned.
func holderConcentration(r *domain.TokenRecord) float64 {
	if len(r.Security.TopHolders) == 0 {
		return math.Max(r.Security.CreatorPct, r.Security.OwnerPct)
	}
	var sum float64
	for _, h := range r.Security.TopHolders {
		sum += h.Percent
	}
	return sum
}

func sentimentScore(r *domain.TokenRecord) float64 {
	if r.Social == nil {
		return 0
	}

	var score float64

	switch social := r.Social.SocialScore; {
	case social >= 70:
		score += 70
	case social >= 50:
		score += 60
	case social >= 30:
		score += 45
	case social >= 10:
		score += 25
	case social > 0:
		score += 10
	}

	switch followers := r.Social.Followers; {
	case followers >= 100000:
		score += 30
	case followers >= 50000:
		score += 25
	case followers >= 10000:
		score += 20
	case followers >= 1000:
		score += 15
	default:
		score += 10
	}

	return score
}

// riskScore starts from 100 and subtracts proportional penalties; higher
// means safer.
func riskScore(r *domain.TokenRecord) float64 {
	score := 100.0

	score -= math.Min(r.Indicators.PumpDumpScore*0.4, 40)
	score -= math.Min(r.Indicators.RiskScore*0.3, 30)

	if r.Security.IsMintable {
		score -= 5
	}
	if r.Security.HiddenOwner {
		score -= 10
	}
	if r.Security.OwnerChangeBalance {
		score -= 10
	}
	if r.Security.CanSelfdestruct {
		score -= 15
	}

	buyTax, sellTax := r.Security.BuyTaxPct, r.Security.SellTaxPct
	if buyTax > 10 || sellTax > 10 {
		score -= 10
	} else if buyTax > 5 || sellTax > 5 {
		score -= 5
	}

	return math.Max(score, 0)
}

// decide applies the decision rules top-first.
func decide(s *domain.Signal, r *domain.TokenRecord) (domain.Action, float64, []string) {
	global := s.GlobalScore
	var reasons []string

	switch {
	case global >= 75:
		reasons = append(reasons, fmt.Sprintf("strong composite score (%.1f/100)", global))
		if s.TechnicalScore >= 70 {
			reasons = append(reasons, fmt.Sprintf("strong technicals (RSI %.1f)", r.Indicators.RSIValue))
		}
		if s.FundamentalScore >= 70 {
			reasons = append(reasons, fmt.Sprintf("solid fundamentals (liquidity $%.0f)", r.Market.LiquidityUSD))
		}
		if s.SentimentScore >= 60 && r.Social != nil {
			reasons = append(reasons, fmt.Sprintf("positive social sentiment (%.0f/100)", r.Social.SocialScore))
		}
		if s.RiskScore >= 70 {
			reasons = append(reasons, fmt.Sprintf("low risk profile (%.0f/100)", s.RiskScore))
		}
		return domain.ActionBuy, math.Min(global, 95), reasons

	case global >= 60 && s.TechnicalScore >= 75:
		reasons = append(reasons,
			fmt.Sprintf("strong technical setup (%.1f/100)", s.TechnicalScore),
			"cautious position recommended")
		if r.Indicators.RSIValue <= 35 {
			reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f), entry opportunity", r.Indicators.RSIValue))
		}
		return domain.ActionBuy, 65 + (global - 60), reasons

	case global < 50 || s.RiskScore < 40:
		reasons = append(reasons, fmt.Sprintf("indicators too weak for entry (%.1f/100)", global))
		if s.RiskScore < 40 {
			reasons = append(reasons, fmt.Sprintf("risk too high (%.1f/100)", s.RiskScore))
		}
		if r.Indicators.PumpDumpScore > 50 {
			reasons = append(reasons, fmt.Sprintf("pump and dump risk (%.0f/100)", r.Indicators.PumpDumpScore))
		}
		if r.Indicators.RSIValue >= 70 {
			reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f), wait for correction", r.Indicators.RSIValue))
		}
		return domain.ActionHold, 70, reasons

	default:
		reasons = append(reasons,
			fmt.Sprintf("mixed indicators (%.1f/100)", global),
			"wait for a better entry")
		if s.TechnicalScore < 50 {
			reasons = append(reasons, "unfavorable technicals")
		}
		if s.FundamentalScore < 50 {
			reasons = append(reasons, "weak liquidity or fundamentals")
		}
		return domain.ActionHold, 60 + (global-50)/2, reasons
	}
}

// targets derives stop-loss and take-profit from 24h volatility, then
// adjusts for the position in the retracement range.
func targets(entry float64, r *domain.TokenRecord) (stopLoss, takeProfit float64) {
	if entry <= 0 {
		return 0, 0
	}

	var slPct, tpPct float64
	switch vol := math.Abs(r.Market.PriceChange24h); {
	case vol > 50:
		slPct, tpPct = 15, 40
	case vol > 20:
		slPct, tpPct = 10, 25
	default:
		slPct, tpPct = 7, 20
	}

	switch fib := r.Indicators.FibonacciPct; {
	case fib <= 23.6:
		slPct *= 0.8
		tpPct *= 1.2
	case fib >= 78.6:
		slPct *= 1.3
		tpPct *= 0.9
	}

	return entry * (1 - slPct/100), entry * (1 + tpPct/100)
}

func (e *Engine) positionSize(confidence, riskScore float64) float64 {
	const baseSize = 5.0

	size := baseSize
	switch {
	case confidence >= 80:
		size = baseSize * 1.5
	case confidence >= 70:
		size = baseSize * 1.2
	case confidence >= 60:
		size = baseSize * 1.0
	default:
		size = baseSize * 0.5
	}

	if riskScore < 50 {
		size *= 0.6
	} else if riskScore < 70 {
		size *= 0.8
	}

	return math.Min(size, e.cfg.MaxPositionSizePct)
}

func riskReward(entry, stopLoss, takeProfit float64) float64 {
	if entry <= 0 || stopLoss <= 0 || takeProfit <= 0 {
		return 0
	}
	risk := entry - stopLoss
	if risk <= 0 {
		return 0
	}
	return (takeProfit - entry) / risk
}
