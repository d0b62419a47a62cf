package domain

import "time"

// Action is a trading decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// SignalIndicators is a copy of the indicator values that drove the decision,
// embedded so a signal stays meaningful after the cache record is evicted.
type SignalIndicators struct {
	RSI           float64 `json:"rsi"`
	FibonacciPct  float64 `json:"fibonacci_percentage"`
	PumpDumpScore float64 `json:"pump_dump_score"`
	RiskScore     float64 `json:"risk_score"`
}

// Signal is the deterministic output of the scoring engine.
type Signal struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`

	TechnicalScore   float64 `json:"technical_score"`
	FundamentalScore float64 `json:"fundamental_score"`
	SentimentScore   float64 `json:"sentiment_score"`
	RiskScore        float64 `json:"risk_score"`
	GlobalScore      float64 `json:"global_score"`

	EntryPrice      float64 `json:"entry_price"`
	StopLoss        float64 `json:"suggested_stop_loss"`
	TakeProfit      float64 `json:"suggested_take_profit"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`

	// PositionSizePct is the suggested position size as a percent of
	// available capital, in [0, 10].
	PositionSizePct float64 `json:"position_size_percentage"`

	Reasons    []string         `json:"reasons"`
	Indicators SignalIndicators `json:"indicators"`

	GeneratedAt time.Time `json:"generated_at"`
}

// ValidationStatus is the outcome of LLM validation.
type ValidationStatus string

const (
	ValidationApproved ValidationStatus = "approved"
	ValidationAdjusted ValidationStatus = "adjusted"
	ValidationRejected ValidationStatus = "rejected"
	ValidationError    ValidationStatus = "error"
)

// AdjustedTargets carries validator-adjusted trade parameters.
type AdjustedTargets struct {
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	PositionSizePct float64 `json:"position_size"`
}

// SignalAnalysis is the narrative portion of a validation response.
type SignalAnalysis struct {
	TechnicalAssessment string   `json:"technical_assessment"`
	RiskAssessment      string   `json:"risk_assessment"`
	MarketContext       string   `json:"market_context"`
	KeyConcerns         []string `json:"key_concerns,omitempty"`
	KeyStrengths        []string `json:"key_strengths,omitempty"`
}

// ValidatedSignal wraps a Signal with the validator's verdict.
type ValidatedSignal struct {
	Signal Signal `json:"signal"`

	Status             ValidationStatus `json:"validation_status"`
	FinalAction        Action           `json:"final_action"`
	AdjustedConfidence float64          `json:"adjusted_confidence"`
	ConfidenceReason   string           `json:"confidence_change_reason,omitempty"`

	AdjustedTargets *AdjustedTargets `json:"adjusted_targets,omitempty"`
	Analysis        *SignalAnalysis  `json:"ai_analysis,omitempty"`

	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Verdict         string   `json:"overall_verdict,omitempty"`

	ValidatedAt time.Time `json:"validated_at"`
}

// ShouldExecute reports whether the validated signal clears the bar for
// trade execution. Validation errors never execute.
func (v *ValidatedSignal) ShouldExecute(minConfidence float64) bool {
	return v.Status != ValidationError &&
		v.FinalAction == ActionBuy &&
		v.AdjustedConfidence >= minConfidence
}
