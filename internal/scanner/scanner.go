// Package scanner discovers newly promoted tokens, enriches them from the
// market, security, and social feeds, and commits scored records to the
// token cache.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokenradar/internal/domain"
	"tokenradar/internal/feeds"
	"tokenradar/internal/indicators"
	"tokenradar/internal/scoring"
	"tokenradar/internal/storage"
)

// ErrScanInFlight is returned when a scan is requested while one is running.
var ErrScanInFlight = errors.New("scanner: scan already in flight")

const (
	// DefaultTokensPerScan caps how many candidates one tick enriches.
	DefaultTokensPerScan = 10

	// feedPacing spaces the market and security calls for one token so a
	// full batch stays under upstream rate limits.
	feedPacing = 500 * time.Millisecond

	// socialPacing spaces the social profile scrape, which rate limits
	// harder than the data feeds.
	socialPacing = time.Second
)

// MarketFeed is the market data surface the scanner uses.
type MarketFeed interface {
	LatestProfiles(ctx context.Context) ([]feeds.TokenProfile, error)
	Search(ctx context.Context, query string) ([]feeds.Pair, error)
	TokenPairs(ctx context.Context, chain domain.Chain, address string) ([]feeds.Pair, error)
}

// SecurityFeed is the token security surface the scanner uses.
type SecurityFeed interface {
	TokenSecurity(ctx context.Context, chain domain.Chain, address string) (*domain.SecurityData, error)
}

// SocialFeed is the optional social profile surface.
type SocialFeed interface {
	Enabled() bool
	Profile(ctx context.Context, handle string) (*domain.SocialData, error)
}

// EventSink receives scan lifecycle notifications. Implementations must not
// block.
type EventSink interface {
	ScanStarted(scanID string, candidates int)
	NewToken(r *domain.TokenRecord)
	ScanCompleted(scanID string, scanned int, took time.Duration)
	ScanError(scanID string, msg string)
}

// Progress is a snapshot of the current or last scan.
type Progress struct {
	ScanID     string     `json:"scan_id"`
	Running    bool       `json:"running"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Total      int        `json:"total"`
	Done       int        `json:"done"`
	Current    string     `json:"current_token,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Stats are cumulative scanner counters since start.
type Stats struct {
	Scans         int64         `json:"scans"`
	TokensScanned int64         `json:"tokens_scanned"`
	SafeTokens    int64         `json:"safe_tokens"`
	Suspects      int64         `json:"pump_dump_suspects"`
	FeedErrors    int64         `json:"feed_errors"`
	LastScanAt    time.Time     `json:"last_scan_at,omitempty"`
	LastDuration  time.Duration `json:"last_duration,omitempty"`
}

// Scanner runs the discover-enrich-score-commit pipeline.
type Scanner struct {
	market   MarketFeed
	security SecurityFeed
	social   SocialFeed
	cache    storage.TokenCache
	archive  storage.SnapshotArchive
	engine   *scoring.Engine
	events   EventSink
	logger   zerolog.Logger

	tokensPerScan int
	chains        []domain.Chain

	running  sync.Mutex
	mu       sync.Mutex
	progress Progress
	stats    Stats

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithTokensPerScan caps enrichment per tick.
func WithTokensPerScan(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.tokensPerScan = n
		}
	}
}

// WithChains restricts discovery to the given chains.
func WithChains(chains []domain.Chain) Option {
	return func(s *Scanner) {
		s.chains = chains
	}
}

// WithSocial installs the optional social feed.
func WithSocial(social SocialFeed) Option {
	return func(s *Scanner) {
		s.social = social
	}
}

// WithArchive installs the best-effort snapshot archive.
func WithArchive(archive storage.SnapshotArchive) Option {
	return func(s *Scanner) {
		s.archive = archive
	}
}

// WithEvents installs the event sink.
func WithEvents(events EventSink) Option {
	return func(s *Scanner) {
		s.events = events
	}
}

// WithLogger sets the scanner logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// New creates a Scanner.
func New(market MarketFeed, security SecurityFeed, cache storage.TokenCache, engine *scoring.Engine, opts ...Option) *Scanner {
	s := &Scanner{
		market:        market,
		security:      security,
		cache:         cache,
		engine:        engine,
		logger:        zerolog.Nop(),
		tokensPerScan: DefaultTokensPerScan,
		chains:        domain.SupportedChains,
		now:           time.Now,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches a scan in the background and returns its ID. Returns
// ErrScanInFlight when one is already running.
func (s *Scanner) Start(ctx context.Context) (string, error) {
	if !s.running.TryLock() {
		return "", ErrScanInFlight
	}

	scanID := uuid.NewString()
	go func() {
		defer s.running.Unlock()
		s.run(ctx, scanID)
	}()
	return scanID, nil
}

// Scan runs one full scan synchronously, for the scheduler. Returns
// ErrScanInFlight when a manual scan is already running.
func (s *Scanner) Scan(ctx context.Context) error {
	if !s.running.TryLock() {
		return ErrScanInFlight
	}
	defer s.running.Unlock()

	s.run(ctx, uuid.NewString())
	return nil
}

// AnalyzeToken enriches and commits a single token on demand, outside the
// scheduled scan. Returns feeds.ErrorKind NotFound (wrapped) when the token
// has no pairs on the chain.
func (s *Scanner) AnalyzeToken(ctx context.Context, chain domain.Chain, address string) (*domain.TokenRecord, error) {
	normalized, ok := domain.NormalizeChain(string(chain))
	if !ok {
		return nil, fmt.Errorf("scanner: unsupported chain %q", chain)
	}
	if !feeds.ValidAddress(normalized, address) {
		return nil, fmt.Errorf("scanner: invalid %s address %q", normalized, address)
	}

	pairs, err := s.market.TokenPairs(ctx, normalized, address)
	if err != nil {
		return nil, err
	}
	if feeds.MainPair(pairs) == nil {
		return nil, &feeds.Error{Kind: feeds.KindNotFound, Op: "scanner.analyze_token",
			Err: fmt.Errorf("no pairs for %s on %s", address, normalized)}
	}

	record := s.enrich(ctx, candidate{address: address, chain: normalized})
	if err := s.commit(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Progress returns a snapshot of the current or last scan.
func (s *Scanner) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Stats returns a snapshot of the counters.
func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

type candidate struct {
	address     string
	chain       domain.Chain
	name        string
	symbol      string
	description string
	icon        string
	links       map[string]string
}

func (s *Scanner) run(ctx context.Context, scanID string) {
	started := s.now()

	candidates := s.discover(ctx)

	s.mu.Lock()
	s.progress = Progress{
		ScanID:    scanID,
		Running:   true,
		StartedAt: started,
		Total:     len(candidates),
	}
	s.stats.Scans++
	s.mu.Unlock()

	s.logger.Info().
		Str("scan_id", scanID).
		Int("candidates", len(candidates)).
		Msg("scan started")
	if s.events != nil {
		s.events.ScanStarted(scanID, len(candidates))
	}

	scanned := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}

		s.mu.Lock()
		s.progress.Current = c.address
		s.mu.Unlock()

		record := s.enrich(ctx, c)
		if err := s.commit(ctx, record); err != nil {
			s.noteError(scanID, err)
			continue
		}
		scanned++

		s.mu.Lock()
		s.progress.Done = scanned
		s.stats.TokensScanned++
		if record.IsSafe {
			s.stats.SafeTokens++
		}
		if record.IsPumpDumpSuspect {
			s.stats.Suspects++
		}
		s.mu.Unlock()

		if s.events != nil {
			s.events.NewToken(record)
		}
	}

	took := s.now().Sub(started)
	finished := s.now()

	s.mu.Lock()
	s.progress.Running = false
	s.progress.Current = ""
	s.progress.FinishedAt = &finished
	s.stats.LastScanAt = finished
	s.stats.LastDuration = took
	s.mu.Unlock()

	s.logger.Info().
		Str("scan_id", scanID).
		Int("scanned", scanned).
		Dur("took", took).
		Msg("scan completed")
	if s.events != nil {
		s.events.ScanCompleted(scanID, scanned, took)
	}
}

// discover collects candidate tokens from the latest-profiles listing,
// topping up from a per-chain search when the listing yields fewer than a
// full batch. Each chain contributes at most an equal share of the batch.
func (s *Scanner) discover(ctx context.Context) []candidate {
	seen := make(map[domain.TokenKey]struct{})
	var out []candidate

	add := func(c candidate) bool {
		if len(out) >= s.tokensPerScan {
			return false
		}
		chain, ok := domain.NormalizeChain(string(c.chain))
		if !ok || !s.chainEnabled(chain) {
			return true
		}
		c.chain = chain
		if !feeds.ValidAddress(chain, c.address) {
			return true
		}
		key := domain.TokenKey{Address: c.address, Chain: chain}
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		out = append(out, c)
		return len(out) < s.tokensPerScan
	}

	profiles, err := s.market.LatestProfiles(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("latest profiles unavailable, falling back to search")
	}
	for _, p := range profiles {
		links := make(map[string]string, len(p.Links))
		for _, l := range p.Links {
			key := l.Type
			if key == "" {
				key = l.Label
			}
			if key != "" {
				links[key] = l.URL
			}
		}
		if !add(candidate{
			address:     p.TokenAddress,
			chain:       domain.Chain(p.ChainID),
			description: p.Description,
			icon:        p.Icon,
			links:       links,
		}) {
			return out
		}
	}

	if len(out) >= s.tokensPerScan || len(s.chains) == 0 {
		return out
	}

	perChain := s.tokensPerScan / len(s.chains)
	if perChain < 1 {
		perChain = 1
	}
	for _, chain := range s.chains {
		pairs, err := s.market.Search(ctx, string(chain))
		if err != nil {
			s.logger.Warn().Err(err).Str("chain", string(chain)).Msg("search fallback failed")
			continue
		}
		added := 0
		for _, p := range pairs {
			before := len(out)
			if !add(candidate{
				address: p.BaseToken.Address,
				chain:   domain.Chain(p.ChainID),
				name:    p.BaseToken.Name,
				symbol:  p.BaseToken.Symbol,
			}) {
				return out
			}
			if len(out) > before {
				added++
				if added >= perChain {
					break
				}
			}
		}
	}
	return out
}

// enrich builds the full record for one candidate. A failed feed call marks
// its section and the pipeline moves on; one dead upstream must not sink the
// whole scan.
func (s *Scanner) enrich(ctx context.Context, c candidate) *domain.TokenRecord {
	r := &domain.TokenRecord{
		Address:     c.address,
		Chain:       c.chain,
		Name:        c.name,
		Symbol:      c.symbol,
		Description: c.description,
		IconURL:     c.icon,
		Links:       c.links,
		ScannedAt:   s.now().UTC(),
	}

	pairs, err := s.market.TokenPairs(ctx, c.chain, c.address)
	if err != nil {
		r.Market.Error = err.Error()
		s.countFeedError()
	} else if main := feeds.MainPair(pairs); main != nil {
		r.Market = main.MarketData()
		if r.Name == "" {
			r.Name = main.BaseToken.Name
		}
		if r.Symbol == "" {
			r.Symbol = main.BaseToken.Symbol
		}
	} else {
		r.Market.Error = "no pairs found"
	}

	s.sleep(ctx, feedPacing)

	sec, err := s.security.TokenSecurity(ctx, c.chain, c.address)
	if err != nil {
		r.Security.Error = err.Error()
		s.countFeedError()
	} else {
		r.Security = *sec
	}

	s.sleep(ctx, feedPacing)

	if s.social != nil && s.social.Enabled() {
		if handle, ok := feeds.HandleFromLinks(c.links); ok {
			s.sleep(ctx, socialPacing)
			social, err := s.social.Profile(ctx, handle)
			if err != nil {
				r.Social = &domain.SocialData{Handle: handle, Error: err.Error()}
				s.countFeedError()
			} else {
				r.Social = social
			}
		}
	}

	s.derive(r)
	r.TradingSignal = s.engine.Score(r)
	return r
}

// derive computes the indicator section from the enriched feed data.
func (s *Scanner) derive(r *domain.TokenRecord) {
	rsi := indicators.RSI(
		r.Market.PriceChange5m,
		r.Market.PriceChange1h,
		r.Market.PriceChange6h,
		r.Market.PriceChange24h,
	)
	fib := indicators.Fibonacci(r.Market.PriceUSD, r.Market.PriceChange24h)

	age, ageKnown := r.AgeHours()
	pump := indicators.PumpDump(indicators.PumpDumpInput{
		Volume24hUSD:        r.Market.Volume24hUSD,
		LiquidityUSD:        r.Market.LiquidityUSD,
		PriceChange24h:      r.Market.PriceChange24h,
		PriceChange1h:       r.Market.PriceChange1h,
		MaxConcentrationPct: r.MaxConcentration(),
		AgeHours:            age,
		AgeKnown:            ageKnown,
	})

	risk := indicators.Risk(indicators.RiskInput{
		IsHoneypot:         r.Security.IsHoneypot,
		IsMintable:         r.Security.IsMintable,
		OwnerChangeBalance: r.Security.OwnerChangeBalance,
		HiddenOwner:        r.Security.HiddenOwner,
		CanSelfdestruct:    r.Security.CanSelfdestruct,
		IsOpenSource:       r.Security.IsOpenSource,
		BuyTaxPct:          r.Security.BuyTaxPct,
		SellTaxPct:         r.Security.SellTaxPct,
		LiquidityUSD:       r.Market.LiquidityUSD,
		Volume24hUSD:       r.Market.Volume24hUSD,
		Txns24h:            r.Market.Buys24h + r.Market.Sells24h,
	})

	r.Indicators = domain.IndicatorData{
		RSIValue:      rsi.Value,
		RSISignal:     rsi.Signal,
		FibonacciPct:  fib.PositionPct,
		FibonacciZone: fib.Zone,
		PumpDumpScore: pump.Score,
		PumpDumpRisk:  pump.Risk,
		RiskScore:     risk.Score,
		Warnings:      append(risk.Warnings, pump.Signals...),
	}
	r.IsSafe = risk.Safe() && !r.Security.IsHoneypot
	r.IsPumpDumpSuspect = pump.Suspect()
}

// commit upserts the record and archives a snapshot. Archive failures are
// logged, never propagated.
func (s *Scanner) commit(ctx context.Context, r *domain.TokenRecord) error {
	if err := s.cache.Upsert(ctx, r); err != nil {
		return err
	}
	if s.archive != nil {
		go func(r *domain.TokenRecord) {
			actx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.archive.Append(actx, r); err != nil {
				s.logger.Warn().Err(err).Str("token", r.Address).Msg("snapshot archive append failed")
			}
		}(r)
	}
	return nil
}

func (s *Scanner) chainEnabled(chain domain.Chain) bool {
	for _, c := range s.chains {
		if c == chain {
			return true
		}
	}
	return false
}

func (s *Scanner) countFeedError() {
	s.mu.Lock()
	s.stats.FeedErrors++
	s.mu.Unlock()
}

func (s *Scanner) noteError(scanID string, err error) {
	s.mu.Lock()
	s.progress.LastError = err.Error()
	s.mu.Unlock()

	s.logger.Error().Err(err).Str("scan_id", scanID).Msg("scan error")
	if s.events != nil {
		s.events.ScanError(scanID, err.Error())
	}
}
