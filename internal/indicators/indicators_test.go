package indicators

import (
	"math"
	"testing"
)

func TestRSI(t *testing.T) {
	tests := []struct {
		name       string
		changes    [4]float64
		wantValue  float64
		wantSignal string
	}{
		{"all gains", [4]float64{30, 30, 30, 30}, 100, RSIOverbought},
		{"mixed bullish", [4]float64{10, -5, 10, -5}, 66.666, RSIBullish},
		{"all losses", [4]float64{-10, -10, -10, -10}, 0, RSIOversold},
		{"balanced", [4]float64{10, -10, 10, -10}, 50, RSIBullish},
		{"zero movement", [4]float64{0, 0, 0, 0}, 100, RSIOverbought},
		{"mostly down", [4]float64{1, -10, -10, -10}, 3.225, RSIOversold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RSI(tt.changes[0], tt.changes[1], tt.changes[2], tt.changes[3])
			if math.Abs(got.Value-tt.wantValue) > 0.01 {
				t.Errorf("RSI value = %v, want %v", got.Value, tt.wantValue)
			}
			if got.Signal != tt.wantSignal {
				t.Errorf("RSI signal = %q, want %q", got.Signal, tt.wantSignal)
			}
		})
	}
}

func TestFibonacci(t *testing.T) {
	// Price climbed 100% over 24h: low = 0.5, high = 1.0, price at the top.
	got := Fibonacci(1.0, 100)
	if math.Abs(got.Low-0.5) > 1e-9 || got.High != 1.0 {
		t.Errorf("range = [%v, %v], want [0.5, 1.0]", got.Low, got.High)
	}
	if got.PositionPct != 100 || got.Zone != FibNearResistance {
		t.Errorf("position = (%v, %q), want (100, %q)", got.PositionPct, got.Zone, FibNearResistance)
	}

	// Price fell 50%: high = 2.0, low = price, position at the bottom.
	got = Fibonacci(1.0, -50)
	if got.Low != 1.0 || got.High != 2.0 {
		t.Errorf("range = [%v, %v], want [1.0, 2.0]", got.Low, got.High)
	}
	if got.PositionPct != 0 || got.Zone != FibNearSupport {
		t.Errorf("position = (%v, %q), want (0, %q)", got.PositionPct, got.Zone, FibNearSupport)
	}

	// Flat 24h: mid-zone by convention.
	got = Fibonacci(1.0, 0)
	if got.PositionPct != 50 || got.Zone != FibBelowMid {
		t.Errorf("flat position = (%v, %q), want (50, %q)", got.PositionPct, got.Zone, FibBelowMid)
	}
}

func TestFibonacciZoneBreakpoints(t *testing.T) {
	tests := []struct {
		pct  float64
		zone string
	}{
		{0, FibNearSupport},
		{23.6, FibNearSupport},
		{23.7, FibSupport},
		{38.2, FibSupport},
		{50, FibBelowMid},
		{61.8, FibAboveMid},
		{78.6, FibResistance},
		{78.7, FibNearResistance},
		{100, FibNearResistance},
	}
	for _, tt := range tests {
		if got := fibZone(tt.pct); got != tt.zone {
			t.Errorf("fibZone(%v) = %q, want %q", tt.pct, got, tt.zone)
		}
	}
}

func TestPumpDumpYoungVsMature(t *testing.T) {
	in := PumpDumpInput{
		Volume24hUSD:        60000,
		LiquidityUSD:        10000, // ratio 6
		PriceChange24h:      120,
		MaxConcentrationPct: 10,
		AgeHours:            12,
		AgeKnown:            true,
	}

	young := PumpDump(in)

	in.AgeHours = 200
	mature := PumpDump(in)

	// Ratio 6 and +120% both clear the mature thresholds but only the
	// ratio clears the tolerant young tier; young also pays the age term.
	if young.Score >= mature.Score+15 {
		t.Errorf("young score %v should not far exceed mature %v", young.Score, mature.Score)
	}
	if mature.Risk == PumpRiskSafe {
		t.Errorf("mature token with ratio 6 and +120%% should not be SAFE, got %v", mature.Score)
	}
}

func TestPumpDumpClampAndLabels(t *testing.T) {
	// Everything fires: the raw sum exceeds 100 and must clamp.
	got := PumpDump(PumpDumpInput{
		Volume24hUSD:        500000,
		LiquidityUSD:        500, // ratio 1000 and below the floor
		PriceChange24h:      600,
		PriceChange1h:       200,
		MaxConcentrationPct: 80,
		AgeHours:            2,
		AgeKnown:            true,
	})
	if got.Score != 100 {
		t.Errorf("score = %v, want clamped 100", got.Score)
	}
	if got.Risk != PumpRiskCritical {
		t.Errorf("risk = %q, want %q", got.Risk, PumpRiskCritical)
	}
	if !got.Suspect() {
		t.Error("Suspect() = false, want true")
	}

	// Healthy mature token.
	got = PumpDump(PumpDumpInput{
		Volume24hUSD:        20000,
		LiquidityUSD:        100000,
		PriceChange24h:      5,
		MaxConcentrationPct: 4,
		AgeHours:            500,
		AgeKnown:            true,
	})
	if got.Score != 0 || got.Risk != PumpRiskSafe {
		t.Errorf("healthy token = (%v, %q), want (0, SAFE)", got.Score, got.Risk)
	}
}

func TestPumpDumpUnknownAge(t *testing.T) {
	in := PumpDumpInput{
		Volume24hUSD:        1000,
		LiquidityUSD:        50000,
		MaxConcentrationPct: 5,
		AgeKnown:            false,
	}
	got := PumpDump(in)
	if got.Score != 0 {
		t.Errorf("unknown age must not contribute an age term, score = %v", got.Score)
	}
}

func TestRisk(t *testing.T) {
	// Honeypot alone crosses the unsafe threshold.
	got := Risk(RiskInput{
		IsHoneypot:   true,
		IsOpenSource: true,
		LiquidityUSD: 50000,
		Volume24hUSD: 10000,
		Txns24h:      100,
	})
	if got.Score != 50 || got.Safe() {
		t.Errorf("honeypot = (%v, safe=%v), want (50, false)", got.Score, got.Safe())
	}
	if len(got.Warnings) != 1 {
		t.Errorf("warnings = %v, want one entry", got.Warnings)
	}

	// Clean token.
	got = Risk(RiskInput{
		IsOpenSource: true,
		LiquidityUSD: 50000,
		Volume24hUSD: 10000,
		Txns24h:      100,
	})
	if got.Score != 0 || !got.Safe() {
		t.Errorf("clean token = (%v, safe=%v), want (0, true)", got.Score, got.Safe())
	}

	// Every penalty at once clamps to 100.
	got = Risk(RiskInput{
		IsHoneypot:         true,
		IsMintable:         true,
		OwnerChangeBalance: true,
		HiddenOwner:        true,
		CanSelfdestruct:    true,
		BuyTaxPct:          20,
		LiquidityUSD:       100,
		Volume24hUSD:       10,
		Txns24h:            1,
	})
	if got.Score != 100 {
		t.Errorf("all penalties = %v, want clamped 100", got.Score)
	}
}

func TestRiskLiquidityTiers(t *testing.T) {
	base := RiskInput{IsOpenSource: true, Volume24hUSD: 10000, Txns24h: 100}

	base.LiquidityUSD = 4000
	if got := Risk(base); got.Score != 15 {
		t.Errorf("liquidity $4000 score = %v, want 15", got.Score)
	}
	base.LiquidityUSD = 8000
	if got := Risk(base); got.Score != 10 {
		t.Errorf("liquidity $8000 score = %v, want 10", got.Score)
	}
	base.LiquidityUSD = 20000
	if got := Risk(base); got.Score != 0 {
		t.Errorf("liquidity $20000 score = %v, want 0", got.Score)
	}
}

func TestSocialScore(t *testing.T) {
	tests := []struct {
		name      string
		followers int
		following int
		tweets    int
		verified  bool
		want      float64
	}{
		{"large verified account", 150000, 1000, 2000, true, 100},
		{"mid account", 12000, 4000, 600, false, 60},
		{"tiny account", 50, 200, 5, false, 5},
		{"no profile activity", 0, 0, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SocialScore(tt.followers, tt.following, tt.tweets, tt.verified)
			if got != tt.want {
				t.Errorf("SocialScore = %v, want %v", got, tt.want)
			}
		})
	}
}
