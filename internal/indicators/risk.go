package indicators

import "fmt"

// RiskInput is the subset of a token snapshot the composite risk score reads.
type RiskInput struct {
	IsHoneypot         bool
	IsMintable         bool
	OwnerChangeBalance bool
	HiddenOwner        bool
	CanSelfdestruct    bool
	IsOpenSource       bool
	BuyTaxPct          float64
	SellTaxPct         float64

	LiquidityUSD float64
	Volume24hUSD float64
	Txns24h      int
}

// RiskResult is the composite security risk score with the ordered list of
// conditions that fired.
type RiskResult struct {
	Score    float64
	Warnings []string
}

// Safe reports whether the token clears the safety threshold.
func (r RiskResult) Safe() bool {
	return r.Score < 50
}

// Risk computes the composite security risk score. Each triggered condition
// adds its fixed penalty; the sum is clamped to 100. Warnings preserve
// evaluation order.
func Risk(in RiskInput) RiskResult {
	var score float64
	var warnings []string
	add := func(points float64, warning string) {
		score += points
		warnings = append(warnings, warning)
	}

	if in.IsHoneypot {
		add(50, "honeypot: token cannot be sold")
	}
	if in.IsMintable {
		add(10, "supply is mintable")
	}
	if in.OwnerChangeBalance {
		add(15, "owner can modify balances")
	}
	if in.HiddenOwner {
		add(10, "hidden owner")
	}
	if in.CanSelfdestruct {
		add(20, "contract can selfdestruct")
	}
	if !in.IsOpenSource {
		add(5, "source not verified")
	}
	if in.BuyTaxPct > 10 || in.SellTaxPct > 10 {
		add(15, fmt.Sprintf("high tax (buy %.1f%% / sell %.1f%%)", in.BuyTaxPct, in.SellTaxPct))
	}

	switch {
	case in.LiquidityUSD < 5000:
		add(15, fmt.Sprintf("low liquidity $%.0f", in.LiquidityUSD))
	case in.LiquidityUSD < 10000:
		add(10, fmt.Sprintf("low liquidity $%.0f", in.LiquidityUSD))
	}

	if in.Volume24hUSD < 1000 {
		add(10, fmt.Sprintf("low 24h volume $%.0f", in.Volume24hUSD))
	}
	if in.Txns24h < 10 {
		add(10, fmt.Sprintf("only %d transactions in 24h", in.Txns24h))
	}

	return RiskResult{Score: clamp(score, 0, 100), Warnings: warnings}
}
