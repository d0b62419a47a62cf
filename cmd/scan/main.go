// Command scan runs a single scan cycle and prints the committed records as
// JSON. Useful for cron jobs and for inspecting feed output without the
// server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"tokenradar/internal/config"
	"tokenradar/internal/feeds"
	"tokenradar/internal/scanner"
	"tokenradar/internal/scoring"
	"tokenradar/internal/storage"
	"tokenradar/internal/storage/memory"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("TOKENRADAR_CONFIG"), "path to config file (optional)")
	timeout := flag.Duration("timeout", 5*time.Minute, "scan deadline")
	safeOnly := flag.Bool("safe-only", false, "print only records that cleared the safety checks")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cache := memory.NewTokenCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLHours)*time.Hour)
	market := feeds.NewMarketClient(cfg.Scanner.MarketBaseURL, feeds.WithLogger(logger))
	security := feeds.NewSecurityClient(cfg.Scanner.SecurityBaseURL, feeds.WithLogger(logger))

	opts := []scanner.Option{
		scanner.WithTokensPerScan(cfg.Scanner.TokensPerScan),
		scanner.WithChains(cfg.EnabledChains()),
		scanner.WithLogger(logger),
	}
	if cfg.Scanner.NitterBaseURL != "" {
		opts = append(opts, scanner.WithSocial(feeds.NewSocialClient(cfg.Scanner.NitterBaseURL, feeds.WithLogger(logger))))
	}
	sc := scanner.New(market, security, cache, scoring.New(scoring.DefaultConfig()), opts...)

	if err := sc.Scan(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		os.Exit(1)
	}

	records, _, err := cache.List(ctx, cfg.Scanner.TokensPerScan, 0, storage.TokenFilter{SafeOnly: *safeOnly})
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
