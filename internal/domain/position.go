package domain

import "time"

// PositionStatus is the lifecycle state of a position. OPEN transitions to
// exactly one CLOSED_* state and never back; ERROR marks a failed exit swap
// and still accepts a manual close.
type PositionStatus string

const (
	PositionOpen         PositionStatus = "OPEN"
	PositionClosedTP     PositionStatus = "CLOSED_TP"
	PositionClosedSL     PositionStatus = "CLOSED_SL"
	PositionClosedManual PositionStatus = "CLOSED_MANUAL"
	PositionError        PositionStatus = "ERROR"
)

// Exit reasons recorded when a position leaves OPEN.
const (
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonManual     = "manual"
)

// Position represents an open or closed trade. Created by the DEX executor
// after a successful entry swap; mutated only by the position monitor.
// Positions are never deleted (history retention).
type Position struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Address string `json:"address"`
	Chain   Chain  `json:"chain"`
	Symbol  string `json:"symbol,omitempty"`

	EntryPrice   float64   `json:"entry_price"`
	AmountUSD    float64   `json:"amount_usd"`
	AmountTokens float64   `json:"amount_tokens"`
	EntryTxHash  string    `json:"entry_tx_hash"`
	OpenedAt     time.Time `json:"opened_at"`

	StopLossPrice   float64 `json:"stop_loss_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	SlippagePct     float64 `json:"slippage_pct"`
	DexName         string  `json:"dex_name,omitempty"`

	Status PositionStatus `json:"status"`

	CurrentPrice    float64   `json:"current_price"`
	CurrentValueUSD float64   `json:"current_value_usd"`
	PnLUSD          float64   `json:"pnl_usd"`
	PnLPct          float64   `json:"pnl_pct"`
	LastCheck       time.Time `json:"last_check"`

	// Exit fields stay zero while the position is OPEN.
	ExitPrice  float64    `json:"exit_price,omitempty"`
	ExitTxHash string     `json:"exit_tx_hash,omitempty"`
	ExitReason string     `json:"exit_reason,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// IsOpen reports whether the position is still live.
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// IsClosed reports whether the position reached a CLOSED_* state.
func (p *Position) IsClosed() bool {
	switch p.Status {
	case PositionClosedTP, PositionClosedSL, PositionClosedManual:
		return true
	}
	return false
}

// Reprice updates the live valuation fields from a fresh price.
func (p *Position) Reprice(price float64, now time.Time) {
	p.CurrentPrice = price
	p.CurrentValueUSD = p.AmountTokens * price
	p.PnLUSD = p.CurrentValueUSD - p.AmountUSD
	if p.AmountUSD > 0 {
		p.PnLPct = p.PnLUSD / p.AmountUSD * 100
	}
	p.LastCheck = now
}

// Favorite is a user bookmark on a token.
type Favorite struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	Address string    `json:"address"`
	Chain   Chain     `json:"chain"`
	Symbol  string    `json:"symbol,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
