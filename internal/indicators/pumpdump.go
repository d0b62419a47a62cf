package indicators

import "fmt"

// Pump-and-dump risk labels.
const (
	PumpRiskCritical = "CRITICAL"
	PumpRiskHigh     = "HIGH"
	PumpRiskMedium   = "MEDIUM"
	PumpRiskLow      = "LOW"
	PumpRiskSafe     = "SAFE"
)

// youngTokenMaxAgeHours separates freshly launched tokens, which are judged
// with tolerant thresholds, from mature ones.
const youngTokenMaxAgeHours = 72

// PumpDumpInput is the subset of a token snapshot the heuristic reads.
type PumpDumpInput struct {
	Volume24hUSD   float64
	LiquidityUSD   float64
	PriceChange24h float64
	PriceChange1h  float64

	// MaxConcentrationPct is max(creator, owner, top-5 holder) share.
	MaxConcentrationPct float64

	// AgeKnown is false when the pair-creation time was unavailable;
	// the age term then contributes nothing and mature thresholds apply.
	AgeHours float64
	AgeKnown bool
}

// PumpDumpResult is the composite heuristic score with the conditions
// that fired, in evaluation order.
type PumpDumpResult struct {
	Score   float64
	Risk    string
	Signals []string
}

// Suspect reports whether the score crosses the suspect threshold.
func (r PumpDumpResult) Suspect() bool {
	return r.Score >= 50
}

// PumpDump scores the likelihood of a coordinated pump from five weighted
// signals: volume/liquidity ratio, price velocity, holder concentration,
// absolute liquidity floor, and token age. Young tokens (< 72h) get
// tolerant ratio and velocity thresholds since launches are volatile by
// nature. The sum is clamped to 100.
func PumpDump(in PumpDumpInput) PumpDumpResult {
	young := in.AgeKnown && in.AgeHours < youngTokenMaxAgeHours

	var score float64
	var signals []string
	add := func(points float64, signal string) {
		score += points
		signals = append(signals, signal)
	}

	// 1. Volume/liquidity ratio. High turnover relative to the pool is the
	// strongest single pump tell.
	if in.LiquidityUSD > 0 {
		ratio := in.Volume24hUSD / in.LiquidityUSD
		lo, mid, hi := 2.0, 5.0, 10.0
		if young {
			lo, mid, hi = 5.0, 10.0, 20.0
		}
		switch {
		case ratio > hi:
			add(25, fmt.Sprintf("volume/liquidity ratio %.1f", ratio))
		case ratio > mid:
			add(15, fmt.Sprintf("volume/liquidity ratio %.1f", ratio))
		case ratio > lo:
			add(8, fmt.Sprintf("volume/liquidity ratio %.1f", ratio))
		}
	}

	// 2. Price velocity over 24h and 1h. Young tokens tolerated up to +500%.
	ch24, ch1 := in.PriceChange24h, in.PriceChange1h
	if young {
		switch {
		case ch24 > 500:
			add(20, fmt.Sprintf("24h change +%.0f%%", ch24))
		case ch24 > 300:
			add(12, fmt.Sprintf("24h change +%.0f%%", ch24))
		}
		if ch1 > 100 {
			add(5, fmt.Sprintf("1h change +%.0f%%", ch1))
		}
	} else {
		switch {
		case ch24 > 200:
			add(20, fmt.Sprintf("24h change +%.0f%%", ch24))
		case ch24 > 100:
			add(12, fmt.Sprintf("24h change +%.0f%%", ch24))
		case ch24 > 50:
			add(6, fmt.Sprintf("24h change +%.0f%%", ch24))
		}
		if ch1 > 50 {
			add(5, fmt.Sprintf("1h change +%.0f%%", ch1))
		}
	}

	// 3. Holder concentration tiers.
	switch conc := in.MaxConcentrationPct; {
	case conc >= 50:
		add(20, fmt.Sprintf("holder concentration %.0f%%", conc))
	case conc >= 30:
		add(12, fmt.Sprintf("holder concentration %.0f%%", conc))
	case conc >= 20:
		add(6, fmt.Sprintf("holder concentration %.0f%%", conc))
	}

	// 4. Absolute liquidity floor.
	loFloor, hiFloor := 5000.0, 10000.0
	if young {
		loFloor, hiFloor = 1000.0, 3000.0
	}
	switch {
	case in.LiquidityUSD < loFloor:
		add(15, fmt.Sprintf("liquidity $%.0f", in.LiquidityUSD))
	case in.LiquidityUSD < hiFloor:
		add(8, fmt.Sprintf("liquidity $%.0f", in.LiquidityUSD))
	}

	// 5. Token age.
	if in.AgeKnown {
		switch {
		case in.AgeHours < 6:
			add(15, fmt.Sprintf("token age %.1fh", in.AgeHours))
		case in.AgeHours < 24:
			add(10, fmt.Sprintf("token age %.1fh", in.AgeHours))
		case in.AgeHours < youngTokenMaxAgeHours:
			add(5, fmt.Sprintf("token age %.1fh", in.AgeHours))
		}
	}

	score = clamp(score, 0, 100)
	return PumpDumpResult{Score: score, Risk: pumpRisk(score), Signals: signals}
}

func pumpRisk(score float64) string {
	switch {
	case score >= 70:
		return PumpRiskCritical
	case score >= 50:
		return PumpRiskHigh
	case score >= 30:
		return PumpRiskMedium
	case score >= 15:
		return PumpRiskLow
	default:
		return PumpRiskSafe
	}
}
