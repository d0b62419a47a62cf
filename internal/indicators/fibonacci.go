package indicators

// Standard Fibonacci retracement levels, in percent of the low-high range.
var FibLevels = [5]float64{23.6, 38.2, 50, 61.8, 78.6}

// Fibonacci zone labels, from the bottom of the range up.
const (
	FibNearSupport    = "near_support"
	FibSupport        = "support"
	FibBelowMid       = "below_mid"
	FibAboveMid       = "above_mid"
	FibResistance     = "resistance"
	FibNearResistance = "near_resistance"
)

// FibonacciResult locates the current price inside the estimated 24h range.
type FibonacciResult struct {
	Low         float64
	High        float64
	PositionPct float64
	Zone        string
}

// Fibonacci estimates the last-24h low and high from the current price and
// the 24h percent change, then places the price within the retracement
// range. A positive change means the price climbed from the estimated low;
// a negative change means it fell from the estimated high.
func Fibonacci(price, change24h float64) FibonacciResult {
	low, high := price, price
	if change24h > 0 {
		low = price / (1 + change24h/100)
	} else if change24h < 0 {
		high = price / (1 + change24h/100)
	}

	var pct float64
	if high > low {
		pct = (price - low) / (high - low) * 100
	} else {
		// Flat range: price sits mid-zone by convention.
		pct = 50
	}
	pct = clamp(pct, 0, 100)

	return FibonacciResult{Low: low, High: high, PositionPct: pct, Zone: fibZone(pct)}
}

func fibZone(pct float64) string {
	switch {
	case pct <= FibLevels[0]:
		return FibNearSupport
	case pct <= FibLevels[1]:
		return FibSupport
	case pct <= FibLevels[2]:
		return FibBelowMid
	case pct <= FibLevels[3]:
		return FibAboveMid
	case pct <= FibLevels[4]:
		return FibResistance
	default:
		return FibNearResistance
	}
}
