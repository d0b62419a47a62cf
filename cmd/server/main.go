// Command server runs the full token radar service: the scheduled scanner,
// the position monitor, the trading service, and the HTTP/WebSocket API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"tokenradar/internal/config"
	"tokenradar/internal/dex"
	"tokenradar/internal/domain"
	"tokenradar/internal/feeds"
	"tokenradar/internal/monitor"
	"tokenradar/internal/scanner"
	"tokenradar/internal/scheduler"
	"tokenradar/internal/scoring"
	"tokenradar/internal/server"
	"tokenradar/internal/storage"
	chstore "tokenradar/internal/storage/clickhouse"
	"tokenradar/internal/storage/memory"
	"tokenradar/internal/storage/migrations"
	pgstore "tokenradar/internal/storage/postgres"
	redstore "tokenradar/internal/storage/redis"
	"tokenradar/internal/trading"
	"tokenradar/internal/validator"
)

func main() {
	// Secrets and DSNs come from the environment; .env is a convenience for
	// local runs.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("TOKENRADAR_CONFIG"), "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	logger.Info().Fields(cfg.Redacted()).Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// stores bundles the selected persistence backends.
type stores struct {
	cache     storage.TokenCache
	positions storage.PositionStore
	favorites storage.FavoriteStore
	archive   storage.SnapshotArchive
	signals   storage.SignalCache

	cleanup func()
}

// buildStores selects Postgres, ClickHouse, and Redis when DSNs are
// configured, falling back to in-memory implementations otherwise.
func buildStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	s := &stores{cleanup: func() {}}
	var closers []func()
	s.cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
	s.cache = memory.NewTokenCache(cfg.Cache.MaxEntries, ttl)

	if cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.cleanup()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.positions = pgstore.NewPositionStore(pool)
		s.favorites = pgstore.NewFavoriteStore(pool)
		logger.Info().Msg("using postgres for positions and favorites")
	} else {
		s.positions = memory.NewPositionStore()
		s.favorites = memory.NewFavoriteStore()
		logger.Warn().Msg("no postgres_dsn configured, positions are not durable")
	}

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		s.archive = chstore.NewSnapshotArchive(conn)
		logger.Info().Msg("archiving scan snapshots to clickhouse")
	}

	if cfg.Storage.RedisAddr != "" {
		cache, err := redstore.NewSignalCache(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, 0)
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("redis: %w", err)
		}
		closers = append(closers, func() { cache.Close() })
		s.signals = cache
		logger.Info().Str("addr", cfg.Storage.RedisAddr).Msg("caching signals in redis")
	}

	return s, nil
}

// buildExecutor creates one DEX executor per configured chain. Returns nil
// when no wallet key or RPC endpoints are set; the service then runs in
// analysis-only mode.
func buildExecutor(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*trading.OnChainExecutor, error) {
	if cfg.Trading.WalletKey == "" || len(cfg.Trading.RPCURLs) == 0 {
		logger.Warn().Msg("no wallet key or rpc endpoints configured, trade execution disabled")
		return nil, nil
	}

	wallet, err := dex.NewWallet(cfg.Trading.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}

	executors := make(map[domain.Chain]*dex.Executor)
	for raw, rpcURL := range cfg.Trading.RPCURLs {
		chain, ok := domain.NormalizeChain(raw)
		if !ok {
			logger.Warn().Str("chain", raw).Msg("skipping rpc endpoint for unsupported chain")
			continue
		}
		exec, err := dex.NewExecutor(ctx, chain, rpcURL, wallet, dex.WithExecutorLogger(logger))
		if err != nil {
			logger.Error().Err(err).Str("chain", string(chain)).Msg("dex executor unavailable")
			continue
		}
		executors[chain] = exec
		logger.Info().Str("chain", string(chain)).Str("wallet", wallet.String()).Msg("dex executor ready")
	}
	if len(executors) == 0 {
		return nil, nil
	}
	return trading.NewOnChainExecutor(executors), nil
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger zerolog.Logger) error {
	st, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.cleanup()

	// Upstream feeds.
	market := feeds.NewMarketClient(cfg.Scanner.MarketBaseURL, feeds.WithLogger(logger))
	security := feeds.NewSecurityClient(cfg.Scanner.SecurityBaseURL, feeds.WithLogger(logger))

	engine := scoring.New(scoring.DefaultConfig())
	hub := server.NewHub(logger)

	// Scanner.
	scanOpts := []scanner.Option{
		scanner.WithTokensPerScan(cfg.Scanner.TokensPerScan),
		scanner.WithChains(cfg.EnabledChains()),
		scanner.WithEvents(hub),
		scanner.WithLogger(logger),
	}
	if cfg.Scanner.NitterBaseURL != "" {
		scanOpts = append(scanOpts, scanner.WithSocial(feeds.NewSocialClient(cfg.Scanner.NitterBaseURL, feeds.WithLogger(logger))))
	}
	if st.archive != nil {
		scanOpts = append(scanOpts, scanner.WithArchive(st.archive))
	}
	sc := scanner.New(market, security, st.cache, engine, scanOpts...)

	// Trading.
	tradingOpts := []trading.Option{trading.WithLogger(logger)}
	if cfg.Trading.OpenAIAPIKey != "" {
		valOpts := []validator.Option{validator.WithLogger(logger)}
		if cfg.Trading.OpenAIModel != "" {
			valOpts = append(valOpts, validator.WithModel(cfg.Trading.OpenAIModel))
		}
		tradingOpts = append(tradingOpts, trading.WithValidator(validator.New(cfg.Trading.OpenAIAPIKey, valOpts...)))
	} else {
		logger.Warn().Msg("no openai api key configured, signal validation disabled")
	}
	executor, err := buildExecutor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if executor != nil {
		tradingOpts = append(tradingOpts, trading.WithExecutor(executor))
	}
	if st.signals != nil {
		tradingOpts = append(tradingOpts, trading.WithSignalCache(st.signals))
	}
	svc := trading.New(st.cache, st.positions, engine, trading.Limits{
		MaxOpenPositions:     cfg.Trading.MaxOpenPositions,
		MaxDailyTrades:       cfg.Trading.MaxDailyTrades,
		MaxDailyLossUSD:      cfg.Trading.MaxDailyLossUSD,
		MinConfidenceToTrade: cfg.Trading.MinConfidenceToTrade,
		DefaultSlippagePct:   cfg.Trading.DefaultSlippagePct,
		EmergencyStop:        cfg.Trading.EmergencyStop,
	}, tradingOpts...)

	// Monitor.
	monOpts := []monitor.Option{
		monitor.WithEvents(hub),
		monitor.WithLogger(logger),
	}
	if exit := svc.Seller(); exit != nil {
		monOpts = append(monOpts, monitor.WithExit(exit))
	}
	mon := monitor.New(st.positions, market, monOpts...)

	// Scheduler. The scan, monitor, and cache purge ticks run as named jobs.
	sched := scheduler.New(logger)
	scanInterval := time.Duration(cfg.Scanner.ScanIntervalSeconds) * time.Second
	if err := sched.AddInterval("scan", scanInterval, sc.Scan); err != nil {
		return fmt.Errorf("register scan job: %w", err)
	}
	monInterval := time.Duration(cfg.Monitor.IntervalSeconds) * time.Second
	if err := sched.AddInterval("monitor", monInterval, mon.Tick); err != nil {
		return fmt.Errorf("register monitor job: %w", err)
	}
	cacheTTL := time.Duration(cfg.Cache.TTLHours) * time.Hour
	err = sched.AddInterval("cache_purge", time.Hour, func(ctx context.Context) error {
		purged, err := st.cache.PurgeOlderThan(ctx, time.Now().UTC().Add(-cacheTTL))
		if purged > 0 {
			logger.Info().Int("purged", purged).Msg("cache purge")
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("register cache purge job: %w", err)
	}
	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(cfg.Server.ListenAddr, server.Deps{
		Scanner:   sc,
		Monitor:   mon,
		Trading:   svc,
		Scheduler: sched,
		Cache:     st.cache,
		Positions: st.positions,
		Favorites: st.favorites,
		Hub:       hub,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}
	cancel()

	// A second signal forces exit.
	go func() {
		<-sigCh
		logger.Warn().Msg("second signal, forcing exit")
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
