package domain

import "time"

// TokenKey identifies a token uniquely across the system.
type TokenKey struct {
	Address string `json:"address"`
	Chain   Chain  `json:"chain"`
}

// HolderShare is one top-holder entry, share as a percent of supply.
type HolderShare struct {
	Address string  `json:"address"`
	Percent float64 `json:"percent"`
}

// MarketData holds the market-feed snapshot of a token.
// Error is set when the market enrichment step failed; remaining fields
// are then zero values.
type MarketData struct {
	PriceUSD       float64 `json:"price_usd"`
	PriceChange5m  float64 `json:"price_change_5m"`
	PriceChange1h  float64 `json:"price_change_1h"`
	PriceChange6h  float64 `json:"price_change_6h"`
	PriceChange24h float64 `json:"price_change_24h"`
	Volume24hUSD   float64 `json:"volume_24h_usd"`
	LiquidityUSD   float64 `json:"liquidity_usd"`
	MarketCapUSD   float64 `json:"market_cap_usd"`
	Buys24h        int     `json:"buys_24h"`
	Sells24h       int     `json:"sells_24h"`

	// PairCreatedAt is nil when the upstream reported no creation time
	// ("N/A"); age-sensitive scoring then treats the age as unknown.
	PairCreatedAt *time.Time `json:"pair_created_at,omitempty"`

	Error string `json:"error,omitempty"`
}

// SecurityData holds the security-feed snapshot of a token.
type SecurityData struct {
	IsHoneypot         bool    `json:"is_honeypot"`
	IsOpenSource       bool    `json:"is_open_source"`
	IsMintable         bool    `json:"is_mintable"`
	HiddenOwner        bool    `json:"hidden_owner"`
	CanSelfdestruct    bool    `json:"can_selfdestruct"`
	OwnerChangeBalance bool    `json:"owner_change_balance"`
	BuyTaxPct          float64 `json:"buy_tax_pct"`
	SellTaxPct         float64 `json:"sell_tax_pct"`
	HolderCount        int     `json:"holder_count"`

	// TopHolders is truncated to five entries, ordered by share descending.
	TopHolders []HolderShare `json:"top_holders,omitempty"`

	// CreatorPct and OwnerPct are clamped to [0, 100] on ingest.
	CreatorPct float64 `json:"creator_pct"`
	OwnerPct   float64 `json:"owner_pct"`

	Error string `json:"error,omitempty"`
}

// SocialData holds the optional social-profile snapshot.
type SocialData struct {
	Handle      string  `json:"handle"`
	Followers   int     `json:"followers"`
	Following   int     `json:"following"`
	Tweets      int     `json:"tweets"`
	Verified    bool    `json:"verified"`
	Bio         string  `json:"bio,omitempty"`
	SocialScore float64 `json:"social_score"`

	Error string `json:"error,omitempty"`
}

// IndicatorData holds the derived indicators computed at scan time.
// All score fields are clamped to [0, 100].
type IndicatorData struct {
	RSIValue      float64 `json:"rsi_value"`
	RSISignal     string  `json:"rsi_signal"`
	FibonacciPct  float64 `json:"fibonacci_percentage"`
	FibonacciZone string  `json:"fibonacci_zone"`
	PumpDumpScore float64 `json:"pump_dump_score"`
	PumpDumpRisk  string  `json:"pump_dump_risk"`
	RiskScore     float64 `json:"risk_score"`

	// Warnings is the ordered list of risk conditions that fired.
	Warnings []string `json:"warnings,omitempty"`
}

// TokenRecord is an immutable snapshot of one token at scan time.
// The token cache holds exactly one live record per (Address, Chain).
type TokenRecord struct {
	Address string `json:"address"`
	Chain   Chain  `json:"chain"`
	Name    string `json:"name,omitempty"`
	Symbol  string `json:"symbol,omitempty"`

	Market     MarketData    `json:"market"`
	Security   SecurityData  `json:"security"`
	Social     *SocialData   `json:"social,omitempty"`
	Indicators IndicatorData `json:"indicators"`

	IsSafe            bool `json:"is_safe"`
	IsPumpDumpSuspect bool `json:"is_pump_dump_suspect"`

	ScannedAt   time.Time         `json:"scanned_at"`
	Description string            `json:"description,omitempty"`
	IconURL     string            `json:"icon_url,omitempty"`
	Links       map[string]string `json:"links,omitempty"`

	// TradingSignal is a best-effort scoring result attached before commit
	// when signal generation is enabled.
	TradingSignal *Signal `json:"trading_signal,omitempty"`
}

// Key returns the cache key of the record.
func (r *TokenRecord) Key() TokenKey {
	return TokenKey{Address: r.Address, Chain: r.Chain}
}

// AgeHours returns the pair age at scan time. ok is false when the
// creation time is unknown.
func (r *TokenRecord) AgeHours() (float64, bool) {
	if r.Market.PairCreatedAt == nil {
		return 0, false
	}
	age := r.ScannedAt.Sub(*r.Market.PairCreatedAt)
	if age < 0 {
		return 0, false
	}
	return age.Hours(), true
}

// MaxConcentration returns the largest of creator, owner, and top-5 holder
// shares, used by the pump-and-dump heuristic.
func (r *TokenRecord) MaxConcentration() float64 {
	m := r.Security.CreatorPct
	if r.Security.OwnerPct > m {
		m = r.Security.OwnerPct
	}
	for _, h := range r.Security.TopHolders {
		if h.Percent > m {
			m = h.Percent
		}
	}
	return m
}
