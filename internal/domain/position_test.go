package domain

import (
	"testing"
	"time"
)

func TestPositionReprice(t *testing.T) {
	now := time.Now()
	p := &Position{
		EntryPrice:   1.00,
		AmountUSD:    100,
		AmountTokens: 100,
		Status:       PositionOpen,
	}

	p.Reprice(0.89, now)

	if p.CurrentPrice != 0.89 {
		t.Errorf("CurrentPrice = %v, want 0.89", p.CurrentPrice)
	}
	if p.CurrentValueUSD != 89 {
		t.Errorf("CurrentValueUSD = %v, want 89", p.CurrentValueUSD)
	}
	if p.PnLUSD != -11 {
		t.Errorf("PnLUSD = %v, want -11", p.PnLUSD)
	}
	if p.PnLPct != -11 {
		t.Errorf("PnLPct = %v, want -11", p.PnLPct)
	}
	if !p.LastCheck.Equal(now) {
		t.Errorf("LastCheck = %v, want %v", p.LastCheck, now)
	}
}

func TestTokenRecordAgeHours(t *testing.T) {
	scanned := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	created := scanned.Add(-36 * time.Hour)

	r := &TokenRecord{ScannedAt: scanned}
	if _, ok := r.AgeHours(); ok {
		t.Error("AgeHours() ok = true for unknown creation time, want false")
	}

	r.Market.PairCreatedAt = &created
	age, ok := r.AgeHours()
	if !ok || age != 36 {
		t.Errorf("AgeHours() = (%v, %v), want (36, true)", age, ok)
	}

	// Creation time in the future is treated as unknown.
	future := scanned.Add(time.Hour)
	r.Market.PairCreatedAt = &future
	if _, ok := r.AgeHours(); ok {
		t.Error("AgeHours() ok = true for future creation time, want false")
	}
}

func TestMaxConcentration(t *testing.T) {
	r := &TokenRecord{
		Security: SecurityData{
			CreatorPct: 5,
			OwnerPct:   12,
			TopHolders: []HolderShare{{Percent: 30}, {Percent: 8}},
		},
	}
	if got := r.MaxConcentration(); got != 30 {
		t.Errorf("MaxConcentration() = %v, want 30", got)
	}
}
