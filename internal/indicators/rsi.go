// Package indicators implements the pure derived-indicator kernel:
// RSI proxy, Fibonacci retracement zone, pump-and-dump heuristic,
// composite risk score, and social score. All functions are
// deterministic and perform no I/O.
package indicators

// RSI signal labels.
const (
	RSIOverbought = "overbought"
	RSIBullish    = "bullish"
	RSINeutral    = "neutral"
	RSIOversold   = "oversold"
)

// RSIResult is the RSI proxy value with its signal label.
type RSIResult struct {
	Value  float64
	Signal string
}

// RSI estimates a relative-strength index from four coarse percent-change
// samples (5m, 1h, 6h, 24h) instead of a full close series. Gains and
// losses are averaged over all four samples; zero average loss yields 100.
func RSI(change5m, change1h, change6h, change24h float64) RSIResult {
	changes := [4]float64{change5m, change1h, change6h, change24h}

	var gains, losses float64
	for _, c := range changes {
		if c > 0 {
			gains += c
		} else {
			losses += -c
		}
	}
	avgGain := gains / 4
	avgLoss := losses / 4

	var value float64
	if avgLoss == 0 {
		value = 100
	} else {
		value = 100 - 100/(1+avgGain/avgLoss)
	}
	value = clamp(value, 0, 100)

	return RSIResult{Value: value, Signal: rsiSignal(value)}
}

func rsiSignal(value float64) string {
	switch {
	case value >= 70:
		return RSIOverbought
	case value >= 50:
		return RSIBullish
	case value >= 30:
		return RSINeutral
	default:
		return RSIOversold
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
