package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tokenradar/internal/domain"
	"tokenradar/internal/feeds"
	"tokenradar/internal/scoring"
	"tokenradar/internal/storage"
	"tokenradar/internal/storage/memory"
)

const (
	addrA = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEbb"
	addrB = "0x1b81D678ffb9C0263b24A97847620C99d213eB14"
)

type fakeMarket struct {
	profiles    []feeds.TokenProfile
	profilesErr error
	searched    []string
	pairsByAddr map[string][]feeds.Pair
	block       chan struct{}
}

func (f *fakeMarket) LatestProfiles(context.Context) ([]feeds.TokenProfile, error) {
	if f.block != nil {
		<-f.block
	}
	return f.profiles, f.profilesErr
}

func (f *fakeMarket) Search(_ context.Context, query string) ([]feeds.Pair, error) {
	f.searched = append(f.searched, query)
	var out []feeds.Pair
	for _, pairs := range f.pairsByAddr {
		for _, p := range pairs {
			if p.ChainID == query {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeMarket) TokenPairs(_ context.Context, _ domain.Chain, address string) ([]feeds.Pair, error) {
	pairs, ok := f.pairsByAddr[address]
	if !ok {
		return nil, errors.New("pairs unavailable")
	}
	return pairs, nil
}

type fakeSecurity struct {
	data map[string]*domain.SecurityData
}

func (f *fakeSecurity) TokenSecurity(_ context.Context, _ domain.Chain, address string) (*domain.SecurityData, error) {
	sd, ok := f.data[address]
	if !ok {
		return nil, errors.New("security unavailable")
	}
	return sd, nil
}

type recordingSink struct {
	mu        sync.Mutex
	started   int
	tokens    []string
	completed int
	errs      []string
}

func (r *recordingSink) ScanStarted(string, int) {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *recordingSink) NewToken(rec *domain.TokenRecord) {
	r.mu.Lock()
	r.tokens = append(r.tokens, rec.Address)
	r.mu.Unlock()
}

func (r *recordingSink) ScanCompleted(string, int, time.Duration) {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
}

func (r *recordingSink) ScanError(_ string, msg string) {
	r.mu.Lock()
	r.errs = append(r.errs, msg)
	r.mu.Unlock()
}

func goodPair(address string) feeds.Pair {
	var p feeds.Pair
	p.ChainID = "ethereum"
	p.BaseToken.Address = address
	p.BaseToken.Name = "Good Token"
	p.BaseToken.Symbol = "GOOD"
	p.PriceUSD = "1.25"
	p.PriceChange.H24 = 12
	p.Volume.H24 = 500000
	p.Liquidity.USD = 250000
	p.Txns.H24.Buys = 300
	p.Txns.H24.Sells = 200
	p.PairCreatedAt = time.Now().Add(-100 * time.Hour).UnixMilli()
	return p
}

func profile(chain, address string) feeds.TokenProfile {
	return feeds.TokenProfile{ChainID: chain, TokenAddress: address}
}

func newTestScanner(t *testing.T, market MarketFeed, security SecurityFeed, cache storage.TokenCache, opts ...Option) *Scanner {
	t.Helper()
	s := New(market, security, cache, scoring.New(scoring.DefaultConfig()), opts...)
	s.sleep = func(context.Context, time.Duration) {}
	return s
}

func TestScanPipeline(t *testing.T) {
	market := &fakeMarket{
		profiles: []feeds.TokenProfile{
			profile("ethereum", addrA),
			profile("tron", "TXYZ"),       // unsupported chain
			profile("ethereum", addrA),    // duplicate
			profile("ethereum", "not-an-address"),
		},
		pairsByAddr: map[string][]feeds.Pair{addrA: {goodPair(addrA)}},
	}
	security := &fakeSecurity{data: map[string]*domain.SecurityData{
		addrA: {IsOpenSource: true, HolderCount: 500},
	}}
	cache := memory.NewTokenCache(0, 0)
	sink := &recordingSink{}

	s := newTestScanner(t, market, security, cache, WithEvents(sink))
	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	rec, err := cache.Get(context.Background(), addrA, domain.ChainEthereum)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Symbol != "GOOD" {
		t.Errorf("Symbol = %q, want GOOD from pair base token", rec.Symbol)
	}
	if rec.Market.PriceUSD != 1.25 {
		t.Errorf("PriceUSD = %v, want 1.25", rec.Market.PriceUSD)
	}
	if rec.Indicators.RSISignal == "" || rec.Indicators.FibonacciZone == "" {
		t.Errorf("indicators not derived: %+v", rec.Indicators)
	}
	if rec.TradingSignal == nil {
		t.Fatal("TradingSignal missing")
	}
	if !rec.IsSafe {
		t.Errorf("IsSafe = false for clean token (risk %v)", rec.Indicators.RiskScore)
	}

	if sink.started != 1 || sink.completed != 1 {
		t.Errorf("events started/completed = %d/%d, want 1/1", sink.started, sink.completed)
	}
	if len(sink.tokens) != 1 || sink.tokens[0] != addrA {
		t.Errorf("new token events = %v, want [%s]", sink.tokens, addrA)
	}

	stats := s.Stats()
	if stats.Scans != 1 || stats.TokensScanned != 1 || stats.SafeTokens != 1 {
		t.Errorf("stats = %+v, want one scanned safe token", stats)
	}

	prog := s.Progress()
	if prog.Running || prog.FinishedAt == nil || prog.Done != 1 {
		t.Errorf("progress = %+v, want finished with one done", prog)
	}
}

func TestScanFallbackToSearch(t *testing.T) {
	market := &fakeMarket{
		profilesErr: errors.New("listing down"),
		pairsByAddr: map[string][]feeds.Pair{addrA: {goodPair(addrA)}},
	}
	security := &fakeSecurity{data: map[string]*domain.SecurityData{addrA: {}}}
	cache := memory.NewTokenCache(0, 0)

	s := newTestScanner(t, market, security, cache,
		WithChains([]domain.Chain{domain.ChainEthereum}))
	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(market.searched) == 0 {
		t.Fatal("search fallback never ran")
	}
	if _, err := cache.Get(context.Background(), addrA, domain.ChainEthereum); err != nil {
		t.Errorf("fallback token not committed: %v", err)
	}
}

func TestScanSearchTopsUpPartialListing(t *testing.T) {
	market := &fakeMarket{
		profiles: []feeds.TokenProfile{profile("ethereum", addrA)},
		pairsByAddr: map[string][]feeds.Pair{
			addrA: {goodPair(addrA)},
			addrB: {goodPair(addrB)},
		},
	}
	security := &fakeSecurity{data: map[string]*domain.SecurityData{addrA: {}, addrB: {}}}
	cache := memory.NewTokenCache(0, 0)

	s := newTestScanner(t, market, security, cache,
		WithChains([]domain.Chain{domain.ChainEthereum, domain.ChainBSC}))
	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// One profile against a batch of ten: the search pass must top up on
	// every enabled chain.
	if len(market.searched) != 2 {
		t.Fatalf("searched = %v, want both chains queried", market.searched)
	}
	if _, err := cache.Get(context.Background(), addrB, domain.ChainEthereum); err != nil {
		t.Errorf("search candidate not committed: %v", err)
	}
	if got := s.Stats().TokensScanned; got != 2 {
		t.Errorf("TokensScanned = %d, want 2 with the duplicate dropped", got)
	}
}

func TestScanSearchCapsPerChain(t *testing.T) {
	market := &fakeMarket{pairsByAddr: map[string][]feeds.Pair{}}
	security := &fakeSecurity{data: map[string]*domain.SecurityData{}}
	for i := 0; i < 6; i++ {
		addr := fmt.Sprintf("0x%040x", i+1)
		market.pairsByAddr[addr] = []feeds.Pair{goodPair(addr)}
		security.data[addr] = &domain.SecurityData{}
	}
	cache := memory.NewTokenCache(0, 0)

	s := newTestScanner(t, market, security, cache,
		WithTokensPerScan(6),
		WithChains([]domain.Chain{domain.ChainEthereum, domain.ChainBSC}))
	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// All six pairs live on ethereum, whose search pass may contribute at
	// most 6/2 = 3 candidates; the bsc pass finds nothing.
	if got := s.Stats().TokensScanned; got != 3 {
		t.Errorf("TokensScanned = %d, want 3", got)
	}
}

func TestScanInFlight(t *testing.T) {
	market := &fakeMarket{block: make(chan struct{})}
	s := newTestScanner(t, market, &fakeSecurity{}, memory.NewTokenCache(0, 0))

	id, err := s.Start(context.Background())
	if err != nil || id == "" {
		t.Fatalf("Start = (%q, %v)", id, err)
	}
	if _, err := s.Start(context.Background()); !errors.Is(err, ErrScanInFlight) {
		t.Errorf("second Start err = %v, want ErrScanInFlight", err)
	}
	if err := s.Scan(context.Background()); !errors.Is(err, ErrScanInFlight) {
		t.Errorf("Scan err = %v, want ErrScanInFlight", err)
	}

	close(market.block)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Progress().Running && s.Stats().Scans == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background scan never finished")
}

func TestScanFeedErrorsMarkSections(t *testing.T) {
	market := &fakeMarket{
		profiles:    []feeds.TokenProfile{profile("ethereum", addrA)},
		pairsByAddr: map[string][]feeds.Pair{}, // TokenPairs fails
	}
	security := &fakeSecurity{} // TokenSecurity fails
	cache := memory.NewTokenCache(0, 0)

	s := newTestScanner(t, market, security, cache)
	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	rec, err := cache.Get(context.Background(), addrA, domain.ChainEthereum)
	if err != nil {
		t.Fatalf("record not committed despite feed errors: %v", err)
	}
	if rec.Market.Error == "" {
		t.Error("Market.Error empty, want marker")
	}
	if rec.Security.Error == "" {
		t.Error("Security.Error empty, want marker")
	}
	if rec.TradingSignal == nil {
		t.Error("TradingSignal missing, scoring must still run")
	}
	if s.Stats().FeedErrors != 2 {
		t.Errorf("FeedErrors = %d, want 2", s.Stats().FeedErrors)
	}
}

type stubSocial struct{ profile *domain.SocialData }

func (s *stubSocial) Enabled() bool { return true }

func (s *stubSocial) Profile(context.Context, string) (*domain.SocialData, error) {
	return s.profile, nil
}

func TestEnrichSocialPacing(t *testing.T) {
	market := &fakeMarket{pairsByAddr: map[string][]feeds.Pair{addrA: {goodPair(addrA)}}}
	security := &fakeSecurity{data: map[string]*domain.SecurityData{addrA: {}}}
	cache := memory.NewTokenCache(0, 0)

	s := newTestScanner(t, market, security, cache,
		WithSocial(&stubSocial{profile: &domain.SocialData{Handle: "good", Followers: 1000}}))
	var pauses []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) { pauses = append(pauses, d) }

	rec := s.enrich(context.Background(), candidate{
		address: addrA,
		chain:   domain.ChainEthereum,
		links:   map[string]string{"twitter": "https://twitter.com/good"},
	})
	if rec.Social == nil || rec.Social.Handle != "good" {
		t.Fatalf("social = %+v, want scraped profile", rec.Social)
	}

	// 500 ms before security, then the slower 1 s pause before the scrape.
	want := []time.Duration{feedPacing, feedPacing, socialPacing}
	if len(pauses) != len(want) {
		t.Fatalf("pauses = %v, want %v", pauses, want)
	}
	for i := range want {
		if pauses[i] != want[i] {
			t.Errorf("pause %d = %v, want %v", i, pauses[i], want[i])
		}
	}
}

func TestScanCapsTokensPerScan(t *testing.T) {
	market := &fakeMarket{pairsByAddr: map[string][]feeds.Pair{}}
	security := &fakeSecurity{data: map[string]*domain.SecurityData{}}
	for i := 0; i < 30; i++ {
		addr := fmt.Sprintf("0x%040x", i+1)
		market.profiles = append(market.profiles, profile("ethereum", addr))
		market.pairsByAddr[addr] = []feeds.Pair{goodPair(addr)}
		security.data[addr] = &domain.SecurityData{}
	}
	cache := memory.NewTokenCache(0, 0)

	s := newTestScanner(t, market, security, cache, WithTokensPerScan(5))
	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if got := s.Stats().TokensScanned; got != 5 {
		t.Errorf("TokensScanned = %d, want capped at 5", got)
	}
}
