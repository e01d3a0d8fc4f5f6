package main

import (
	"context"
	"fmt"
	"log"

	"whaleSnipeBot/config"
	"whaleSnipeBot/internal/adapters/binanceclient"
	"whaleSnipeBot/internal/adapters/logger"
	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/whalewatch"
)

// One-shot scan: fetch the most recent trades for every watched pair, run
// the whale detector over them once and print the findings.
func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 4. Initialize Whale Detector
	detector, err := whalewatch.New(whalewatch.Config{
		LargeTxThreshold:     cfg.LargeTxThreshold,
		ConsecutiveThreshold: cfg.ConsecutiveThreshold,
		TimeWindow:           cfg.TimeWindow,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize whale detector")
		log.Fatalf("FATAL: Failed to initialize whale detector: %v", err)
	}

	// 5. Fetch and Scan
	ctx := context.Background()
	var records []domain.TransactionRecord
	for _, pair := range cfg.WatchPairs {
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		recs, err := binanceClient.ListRecentTransactions(callCtx, pair, cfg.TradeFetchLimit)
		cancel()
		if err != nil {
			appLogger.Error(ctx, err, "Error fetching recent trades", map[string]interface{}{"pair": pair.Key()})
			log.Fatalf("Error fetching recent trades for %s: %v", pair.Key(), err)
		}
		appLogger.Info(ctx, "Fetched recent trades", map[string]interface{}{"pair": pair.Key(), "count": len(recs)})
		records = append(records, recs...)
	}

	events := detector.Detect(records)
	if len(events) == 0 {
		fmt.Println("No whale activity detected.")
		return
	}
	for _, ev := range events {
		fmt.Printf("%s | %s %s on %s | wallet=%s | $%s across %d tx\n",
			ev.Kind, ev.Side, ev.Chain, ev.Venue, ev.Wallet, ev.USDValue.StringFixed(2), len(ev.TxIDs))
	}
}
