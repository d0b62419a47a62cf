package feeds

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"tokenradar/internal/domain"
)

// DefaultMarketBaseURL is the public market feed endpoint.
const DefaultMarketBaseURL = "https://api.dexscreener.com"

// MarketClient wraps the market feed: latest token profiles, per-chain
// search, and pair data for a token.
type MarketClient struct {
	c       *Client
	baseURL string
}

// NewMarketClient creates a market feed client.
func NewMarketClient(baseURL string, opts ...ClientOption) *MarketClient {
	if baseURL == "" {
		baseURL = DefaultMarketBaseURL
	}
	return &MarketClient{
		c:       NewClient("market", opts...),
		baseURL: baseURL,
	}
}

// TokenProfile is one entry of the latest-profiles listing.
type TokenProfile struct {
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
	Description  string `json:"description"`
	Icon         string `json:"icon"`
	Links        []struct {
		Type  string `json:"type"`
		Label string `json:"label"`
		URL   string `json:"url"`
	} `json:"links"`
}

// Pair is one trading pair as reported by the market feed. Prices arrive
// as strings and are parsed lazily.
type Pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD    string `json:"priceUsd"`
	PriceChange struct {
		M5  float64 `json:"m5"`
		H1  float64 `json:"h1"`
		H6  float64 `json:"h6"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
	Txns      struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`

	// PairCreatedAt is milliseconds since epoch; 0 means unknown.
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

// Price parses the pair's USD price. Returns 0 when absent or unparseable.
func (p *Pair) Price() float64 {
	v, err := strconv.ParseFloat(p.PriceUSD, 64)
	if err != nil {
		return 0
	}
	return v
}

// CreatedAt converts the creation timestamp. ok is false when the feed
// reported none.
func (p *Pair) CreatedAt() (time.Time, bool) {
	if p.PairCreatedAt <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(p.PairCreatedAt).UTC(), true
}

// LatestProfiles fetches the most recently promoted token profiles.
func (m *MarketClient) LatestProfiles(ctx context.Context) ([]TokenProfile, error) {
	var profiles []TokenProfile
	err := m.c.GetJSON(ctx, "market.latest_profiles", m.baseURL+"/token-profiles/latest/v1", &profiles)
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

// Search runs a free-text pair search, used as the per-chain discovery
// fallback when the profile listing runs dry.
func (m *MarketClient) Search(ctx context.Context, query string) ([]Pair, error) {
	var resp struct {
		Pairs []Pair `json:"pairs"`
	}
	u := fmt.Sprintf("%s/latest/dex/search?q=%s", m.baseURL, url.QueryEscape(query))
	if err := m.c.GetJSON(ctx, "market.search", u, &resp); err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

// TokenPairs fetches all pairs trading a token on a chain.
func (m *MarketClient) TokenPairs(ctx context.Context, chain domain.Chain, address string) ([]Pair, error) {
	var resp struct {
		Pairs []Pair `json:"pairs"`
	}
	u := fmt.Sprintf("%s/latest/dex/tokens/%s", m.baseURL, url.PathEscape(address))
	if err := m.c.GetJSON(ctx, "market.token_pairs", u, &resp); err != nil {
		return nil, err
	}

	// The feed returns pairs across every chain the token trades on.
	var filtered []Pair
	for _, p := range resp.Pairs {
		if c, ok := domain.NormalizeChain(p.ChainID); ok && c == chain {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// MainPair picks the pair with the deepest liquidity, the price of record
// for a token. Returns nil for an empty slice.
func MainPair(pairs []Pair) *Pair {
	if len(pairs) == 0 {
		return nil
	}
	sorted := make([]Pair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Liquidity.USD > sorted[j].Liquidity.USD
	})
	return &sorted[0]
}

// CurrentPrice returns the live price of a token from its deepest pair.
// ok is false when no pair reports a positive price.
func (m *MarketClient) CurrentPrice(ctx context.Context, chain domain.Chain, address string) (float64, bool, error) {
	pairs, err := m.TokenPairs(ctx, chain, address)
	if err != nil {
		return 0, false, err
	}
	main := MainPair(pairs)
	if main == nil {
		return 0, false, nil
	}
	price := main.Price()
	return price, price > 0, nil
}

// MarketData converts the deepest pair into the market section of a token
// record.
func (p *Pair) MarketData() domain.MarketData {
	md := domain.MarketData{
		PriceUSD:       p.Price(),
		PriceChange5m:  p.PriceChange.M5,
		PriceChange1h:  p.PriceChange.H1,
		PriceChange6h:  p.PriceChange.H6,
		PriceChange24h: p.PriceChange.H24,
		Volume24hUSD:   p.Volume.H24,
		LiquidityUSD:   p.Liquidity.USD,
		MarketCapUSD:   p.MarketCap,
		Buys24h:        p.Txns.H24.Buys,
		Sells24h:       p.Txns.H24.Sells,
	}
	if md.MarketCapUSD == 0 {
		md.MarketCapUSD = p.FDV
	}
	if created, ok := p.CreatedAt(); ok {
		md.PairCreatedAt = &created
	}
	return md
}
